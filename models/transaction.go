package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Transaction struct {
	ID            string          `gorm:"primary_key;size:36" json:"id"`
	UserId        string          `gorm:"index;size:64;not null" json:"user_id"`
	AccountId     string          `gorm:"index;size:36;not null" json:"account_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Type          TransactionType `gorm:"size:10;not null" json:"type"`
	Category      string          `gorm:"size:100" json:"category"`
	Description   string          `gorm:"type:text" json:"description"`
	Date          time.Time       `gorm:"index;not null" json:"date"`
	Tags          []string        `gorm:"serializer:json;type:text" json:"tags"`
	TransactionId string          `gorm:"uniqueIndex;size:32;not null" json:"transaction_id"`
	// Sequence is the creation order, the tie-breaker when dates are equal.
	Sequence  int64     `gorm:"index;not null" json:"sequence"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SequenceCounter holds the last Sequence handed out for a user.
type SequenceCounter struct {
	UserId       string `gorm:"primaryKey;size:64"`
	LastSequence int64  `gorm:"not null"`
}

// SignedAmount is +amount for income and -amount for expense.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Type == TransactionTypeExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

func (t *Transaction) HasTag(tag string) bool {
	for _, v := range t.Tags {
		if v == tag {
			return true
		}
	}
	return false
}

// GroupKey returns the marker tag and the group id (tags[0], tags[1]) of a
// paired entry such as a transfer leg.
func (t *Transaction) GroupKey() (marker string, groupId string, ok bool) {
	if len(t.Tags) < 2 {
		return "", "", false
	}
	return t.Tags[0], t.Tags[1], true
}

func (t *Transaction) IsTransferLeg() bool {
	marker, _, ok := t.GroupKey()
	return ok && marker == TagTransfer
}

type NewTransaction struct {
	AccountId   string          `json:"account_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"dpositive,dscale"`
	Type        TransactionType `json:"type" validate:"required"`
	Category    string          `json:"category" validate:"max=100"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
	Tags        []string        `json:"tags"`
	// Purchase, when set, also records a purchased Purchase linked to this transaction.
	Purchase *PurchaseMeta `json:"purchase,omitempty"`
}

type PurchaseMeta struct {
	ItemName string           `json:"item_name"`
	Priority PurchasePriority `json:"priority"`
	Notes    string           `json:"notes"`
}

func (input *NewTransaction) Validate() error {
	input.Category = strings.TrimSpace(input.Category)
	if err := ValidateStruct(input); err != nil {
		return err
	}
	if !input.Type.IsValid() {
		return NewValidationError("type", "must be income or expense")
	}
	if input.Date.IsZero() {
		return NewValidationError("date", "is required")
	}
	return nil
}

// CarriesPurchase reports whether the input should also produce a Purchase record.
func (input *NewTransaction) CarriesPurchase() bool {
	if input.Purchase != nil {
		return true
	}
	if input.Type != TransactionTypeExpense {
		return false
	}
	if strings.EqualFold(input.Category, CategoryPurchase) {
		return true
	}
	for _, tag := range input.Tags {
		if tag == TagPurchase {
			return true
		}
	}
	return false
}

// TransactionPatch lists the editable fields. Amount, AccountId and Type are
// present only so that an attempt to change them can be rejected.
type TransactionPatch struct {
	Description *string          `json:"description,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Date        *time.Time       `json:"date,omitempty"`
	Tags        *[]string        `json:"tags,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	AccountId   *string          `json:"account_id,omitempty"`
	Type        *TransactionType `json:"type,omitempty"`
}

func (p *TransactionPatch) Validate(current *Transaction) error {
	if p.Amount != nil && !p.Amount.Equal(current.Amount) {
		return &ImmutableFieldError{Entity: "transaction", Field: "amount"}
	}
	if p.AccountId != nil && *p.AccountId != current.AccountId {
		return &ImmutableFieldError{Entity: "transaction", Field: "account_id"}
	}
	if p.Type != nil && *p.Type != current.Type {
		return &ImmutableFieldError{Entity: "transaction", Field: "type"}
	}
	if p.Date != nil && p.Date.IsZero() {
		return NewValidationError("date", "is required")
	}
	if p.Tags != nil {
		// pairing markers are owned by the engine
		before, after := reservedPrefix(current.Tags), reservedPrefix(*p.Tags)
		if strings.Join(before, "|") != strings.Join(after, "|") {
			return &ImmutableFieldError{Entity: "transaction", Field: "tags"}
		}
	}
	return nil
}

// Apply copies the metadata fields onto t.
func (p *TransactionPatch) Apply(t *Transaction) {
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = strings.TrimSpace(*p.Category)
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Tags != nil {
		t.Tags = append([]string(nil), (*p.Tags)...)
	}
}

// reservedPrefix returns the engine-owned leading tags: a reserved marker and,
// for paired entries, its group id.
func reservedPrefix(tags []string) []string {
	if len(tags) == 0 || !IsReservedTag(tags[0]) {
		return nil
	}
	if tags[0] == TagPurchase || len(tags) < 2 {
		return tags[:1]
	}
	return tags[:2]
}
