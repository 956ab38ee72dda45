package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

// SortTransactions orders by date, then creation sequence, then id. The
// input slice is left untouched.
func SortTransactions(transactions []*Transaction) []*Transaction {
	sorted := make([]*Transaction, len(transactions))
	copy(sorted, transactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.ID < b.ID
	})
	return sorted
}

// ProjectBalance is initial_balance + Σincome − Σexpense over the transactions
// owned by account. No rounding is applied.
func ProjectBalance(account *Account, transactions []*Transaction) decimal.Decimal {
	balance := account.InitialBalance
	for _, t := range transactions {
		if t.AccountId != account.ID {
			continue
		}
		balance = balance.Add(t.SignedAmount())
	}
	return balance
}

// ProjectRunningBalance is the balance right after the transaction whose
// TransactionId (or ID) is asOf, in SortTransactions order. ok is false if
// asOf is not one of the account's transactions.
func ProjectRunningBalance(account *Account, transactions []*Transaction, asOf string) (balance decimal.Decimal, ok bool) {
	balance = account.InitialBalance
	for _, t := range SortTransactions(transactions) {
		if t.AccountId != account.ID {
			continue
		}
		balance = balance.Add(t.SignedAmount())
		if t.TransactionId == asOf || t.ID == asOf {
			return balance, true
		}
	}
	return account.InitialBalance, false
}

type RunningBalanceRow struct {
	Transaction *Transaction    `json:"transaction"`
	Balance     decimal.Decimal `json:"running_balance"`
}

// RunningBalances returns every transaction of the account with the balance
// after it, for audit display.
func RunningBalances(account *Account, transactions []*Transaction) []RunningBalanceRow {
	balance := account.InitialBalance
	rows := make([]RunningBalanceRow, 0, len(transactions))
	for _, t := range SortTransactions(transactions) {
		if t.AccountId != account.ID {
			continue
		}
		balance = balance.Add(t.SignedAmount())
		rows = append(rows, RunningBalanceRow{Transaction: t, Balance: balance})
	}
	return rows
}

// AmountScale is the stored precision of every amount column.
const AmountScale int32 = 4

const scaleMessage = "must have at most 4 decimal places"

// FitsAmountScale reports whether d can be stored without losing digits.
func FitsAmountScale(d decimal.Decimal) bool {
	return d.Equal(d.Round(AmountScale))
}

// CheckAmountScale is the manual form of the dscale tag for fields outside
// validated input structs.
func CheckAmountScale(field string, d decimal.Decimal) error {
	if !FitsAmountScale(d) {
		return NewValidationError(field, scaleMessage)
	}
	return nil
}
