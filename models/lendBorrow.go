package models

import (
	"strings"
	"time"

	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

type LendBorrow struct {
	ID         string           `gorm:"primary_key;size:36" json:"id"`
	UserId     string           `gorm:"index;size:64;not null" json:"user_id"`
	PersonName string           `gorm:"size:100;not null" json:"person_name"`
	Type       LendBorrowType   `gorm:"size:10;not null" json:"type"`
	Amount     decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"amount"`
	Currency   string           `gorm:"size:3;not null" json:"currency"`
	Status     LendBorrowStatus `gorm:"size:10;index;not null" json:"status"`
	DueDate    *time.Time       `gorm:"index" json:"due_date,omitempty"`
	Notes      string           `gorm:"type:text" json:"notes"`
	SettledAt  *time.Time       `json:"settled_at,omitempty"`
	CreatedAt  time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsOverdue is the computed rule; the persisted status catches up via the batch pass.
func (lb *LendBorrow) IsOverdue(now time.Time) bool {
	return lb.Status == LendBorrowStatusActive && lb.DueDate != nil && lb.DueDate.Before(now)
}

type NewLendBorrow struct {
	PersonName string          `json:"person_name" validate:"required,max=100"`
	Type       LendBorrowType  `json:"type" validate:"required"`
	Amount     decimal.Decimal `json:"amount" validate:"dpositive,dscale"`
	Currency   string          `json:"currency" validate:"required,currency"`
	DueDate    *time.Time      `json:"due_date,omitempty"`
	Notes      string          `json:"notes"`
}

func (input *NewLendBorrow) Validate() error {
	input.PersonName = strings.TrimSpace(input.PersonName)
	input.Currency = utils.NormalizeCurrency(input.Currency)
	if err := ValidateStruct(input); err != nil {
		return err
	}
	if !input.Type.IsValid() {
		return NewValidationError("type", "must be lend or borrow")
	}
	return nil
}
