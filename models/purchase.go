package models

import (
	"strings"
	"time"

	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

type Purchase struct {
	ID                     string           `gorm:"primary_key;size:36" json:"id"`
	UserId                 string           `gorm:"index;size:64;not null" json:"user_id"`
	ItemName               string           `gorm:"size:255;not null" json:"item_name"`
	Category               string           `gorm:"size:100" json:"category"`
	Price                  decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"price"`
	Currency               string           `gorm:"size:3;not null" json:"currency"`
	PurchaseDate           time.Time        `gorm:"not null" json:"purchase_date"`
	Status                 PurchaseStatus   `gorm:"size:20;index;not null" json:"status"`
	Priority               PurchasePriority `gorm:"size:10" json:"priority"`
	Notes                  string           `gorm:"type:text" json:"notes"`
	AccountId              *string          `gorm:"index;size:36" json:"account_id,omitempty"`
	TransactionId          *string          `gorm:"index;size:32" json:"transaction_id,omitempty"`
	ExcludeFromCalculation bool             `gorm:"not null;default:false" json:"exclude_from_calculation"`
	CreatedAt              time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Purchase) LinkedTransactionId() string {
	if p.TransactionId == nil {
		return ""
	}
	return *p.TransactionId
}

func (p *Purchase) LinkedAccountId() string {
	if p.AccountId == nil {
		return ""
	}
	return *p.AccountId
}

// MovesFunds reports whether the purchase must have exactly one linked expense.
func (p *Purchase) MovesFunds() bool {
	return p.Status == PurchaseStatusPurchased && !p.ExcludeFromCalculation
}

type NewPurchase struct {
	ItemName               string           `json:"item_name" validate:"required,max=255"`
	Category               string           `json:"category" validate:"max=100"`
	Price                  decimal.Decimal  `json:"price" validate:"dscale"`
	Currency               string           `json:"currency" validate:"required,currency"`
	PurchaseDate           time.Time        `json:"purchase_date"`
	Status                 PurchaseStatus   `json:"status" validate:"required"`
	Priority               PurchasePriority `json:"priority"`
	Notes                  string           `json:"notes"`
	AccountId              string           `json:"account_id"`
	ExcludeFromCalculation bool             `json:"exclude_from_calculation"`
}

func (input *NewPurchase) Validate() error {
	input.ItemName = strings.TrimSpace(input.ItemName)
	input.Currency = utils.NormalizeCurrency(input.Currency)
	if input.Priority == "" {
		input.Priority = PurchasePriorityMedium
	}
	if err := ValidateStruct(input); err != nil {
		return err
	}
	if !input.Priority.IsValid() {
		return NewValidationError("priority", "must be low, medium or high")
	}
	switch input.Status {
	case PurchaseStatusPlanned:
		return nil
	case PurchaseStatusPurchased:
		if !input.Price.IsPositive() {
			return NewValidationError("price", "must be greater than zero")
		}
		if input.AccountId == "" {
			return NewValidationError("account_id", "is required for a purchased item")
		}
		if input.PurchaseDate.IsZero() {
			return NewValidationError("purchase_date", "is required")
		}
		return nil
	default:
		return NewValidationError("status", "a purchase is created as planned or purchased")
	}
}
