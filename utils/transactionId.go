package utils

import (
	"crypto/rand"
	"strings"
)

// Crockford base32: no I, L, O or U, so ids survive being read aloud or retyped.
const transactionIdAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const (
	transactionIdPrefix = "TXN"
	transactionIdGroups = 3
	transactionIdGroup  = 4
)

// GenerateTransactionId returns a human-copyable correlation id such as
// "TXN-4F7K-Q2M9-XC8D". 60 random bits per id.
func GenerateTransactionId() string {
	n := transactionIdGroups * transactionIdGroup
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is gone.
		panic("transaction id: " + err.Error())
	}

	var b strings.Builder
	b.Grow(len(transactionIdPrefix) + n + transactionIdGroups)
	b.WriteString(transactionIdPrefix)
	for i, c := range buf {
		if i%transactionIdGroup == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(transactionIdAlphabet[int(c)&31])
	}
	return b.String()
}

// IsTransactionId reports whether s has the shape produced by GenerateTransactionId.
func IsTransactionId(s string) bool {
	parts := strings.Split(s, "-")
	if len(parts) != transactionIdGroups+1 || parts[0] != transactionIdPrefix {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != transactionIdGroup {
			return false
		}
		for _, r := range p {
			if !strings.ContainsRune(transactionIdAlphabet, r) {
				return false
			}
		}
	}
	return true
}
