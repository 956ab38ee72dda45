package models

import (
	"strings"
	"time"

	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

type Account struct {
	ID                  string           `gorm:"primary_key;size:36" json:"id"`
	UserId              string           `gorm:"index;size:64;not null" json:"user_id"`
	Name                string           `gorm:"size:100;not null" json:"name"`
	Type                AccountType      `gorm:"size:20;not null" json:"type"`
	Currency            string           `gorm:"size:3;not null" json:"currency"`
	InitialBalance      decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"initial_balance"`
	CalculatedBalance   decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"calculated_balance"`
	IsActive            bool             `gorm:"not null;default:true" json:"isActive"`
	HasDps              bool             `gorm:"not null;default:false" json:"has_dps"`
	DpsType             *DpsType         `gorm:"size:20" json:"dps_type,omitempty"`
	DpsAmountType       *DpsAmountType   `gorm:"size:20" json:"dps_amount_type,omitempty"`
	DpsFixedAmount      *decimal.Decimal `gorm:"type:decimal(20,4)" json:"dps_fixed_amount,omitempty"`
	DpsSavingsAccountId *string          `gorm:"index;size:36" json:"dps_savings_account_id,omitempty"`
	CreatedAt           time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAccount struct {
	Name           string          `json:"name" validate:"required,max=100"`
	Type           AccountType     `json:"type" validate:"required"`
	Currency       string          `json:"currency" validate:"required,currency"`
	InitialBalance decimal.Decimal `json:"initial_balance" validate:"dscale"`
}

func (input *NewAccount) Validate() error {
	input.Name = strings.TrimSpace(input.Name)
	input.Currency = utils.NormalizeCurrency(input.Currency)
	if err := ValidateStruct(input); err != nil {
		return err
	}
	if !input.Type.IsValid() {
		return NewValidationError("type", "invalid account type %q", input.Type)
	}
	return nil
}

// AccountPatch carries the editable account fields; nil means unchanged.
// Currency is immutable because every historic amount is denominated in it.
type AccountPatch struct {
	Name           *string          `json:"name,omitempty"`
	Type           *AccountType     `json:"type,omitempty"`
	IsActive       *bool            `json:"isActive,omitempty"`
	InitialBalance *decimal.Decimal `json:"initial_balance,omitempty"`
	Currency       *string          `json:"currency,omitempty"`
}

func (p *AccountPatch) Validate(current *Account) error {
	if p.Currency != nil && utils.NormalizeCurrency(*p.Currency) != current.Currency {
		return &ImmutableFieldError{Entity: "account", Field: "currency"}
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return NewValidationError("name", "is required")
	}
	if p.Type != nil && !p.Type.IsValid() {
		return NewValidationError("type", "invalid account type %q", *p.Type)
	}
	if p.InitialBalance != nil {
		return CheckAmountScale("initial_balance", *p.InitialBalance)
	}
	return nil
}

// DpsConfig is the enable-time DPS configuration. Only meaningful while has_dps is true.
type DpsConfig struct {
	Type        DpsType          `json:"dps_type"`
	AmountType  DpsAmountType    `json:"dps_amount_type"`
	FixedAmount *decimal.Decimal `json:"dps_fixed_amount,omitempty"`
	// links an existing account instead of creating a new hidden one
	SavingsAccountId string `json:"dps_savings_account_id,omitempty"`
}

func (c DpsConfig) Validate() error {
	if !c.Type.IsValid() {
		return NewValidationError("dps_type", "must be monthly or flexible")
	}
	if !c.AmountType.IsValid() {
		return NewValidationError("dps_amount_type", "must be fixed or custom")
	}
	if c.AmountType == DpsAmountTypeFixed {
		if c.FixedAmount == nil || !c.FixedAmount.IsPositive() {
			return NewValidationError("dps_fixed_amount", "must be greater than zero for fixed DPS")
		}
		return CheckAmountScale("dps_fixed_amount", *c.FixedAmount)
	} else if c.FixedAmount != nil {
		return NewValidationError("dps_fixed_amount", "only allowed for fixed DPS")
	}
	return nil
}

func (a *Account) ApplyDps(c DpsConfig, savingsAccountId string) {
	t, at := c.Type, c.AmountType
	a.HasDps = true
	a.DpsType = &t
	a.DpsAmountType = &at
	a.DpsFixedAmount = nil
	if c.FixedAmount != nil {
		amt := *c.FixedAmount
		a.DpsFixedAmount = &amt
	}
	id := savingsAccountId
	a.DpsSavingsAccountId = &id
}

func (a *Account) ClearDps() {
	a.HasDps = false
	a.DpsType = nil
	a.DpsAmountType = nil
	a.DpsFixedAmount = nil
	a.DpsSavingsAccountId = nil
}

func (a *Account) LinkedDpsAccountId() string {
	if a.DpsSavingsAccountId == nil {
		return ""
	}
	return *a.DpsSavingsAccountId
}

// HiddenDpsAccountIds returns the ids referenced as a DPS savings account by
// some account in the list. Those accounts are excluded from normal listings.
func HiddenDpsAccountIds(accounts []*Account) map[string]bool {
	hidden := make(map[string]bool)
	for _, a := range accounts {
		if id := a.LinkedDpsAccountId(); id != "" {
			hidden[id] = true
		}
	}
	return hidden
}

// VisibleAccounts drops DPS sub-accounts, preserving order.
func VisibleAccounts(accounts []*Account) []*Account {
	hidden := HiddenDpsAccountIds(accounts)
	visible := make([]*Account, 0, len(accounts))
	for _, a := range accounts {
		if !hidden[a.ID] {
			visible = append(visible, a)
		}
	}
	return visible
}

type CurrencyTotal struct {
	Currency     string          `json:"currency"`
	TotalBalance decimal.Decimal `json:"total_balance"`
}

// TotalBalances sums calculated balances per currency over active, visible accounts.
func TotalBalances(accounts []*Account) []CurrencyTotal {
	totals := make(map[string]decimal.Decimal)
	var order []string
	for _, a := range VisibleAccounts(accounts) {
		if !a.IsActive {
			continue
		}
		if _, ok := totals[a.Currency]; !ok {
			order = append(order, a.Currency)
		}
		totals[a.Currency] = totals[a.Currency].Add(a.CalculatedBalance)
	}
	result := make([]CurrencyTotal, 0, len(order))
	for _, c := range order {
		result = append(result, CurrencyTotal{Currency: c, TotalBalance: totals[c]})
	}
	return result
}
