package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type NewCurrencyTransfer struct {
	FromAccountId string          `json:"from_account_id" validate:"required"`
	ToAccountId   string          `json:"to_account_id" validate:"required"`
	FromAmount    decimal.Decimal `json:"from_amount" validate:"dpositive,dscale"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate" validate:"dpositive"`
	Note          string          `json:"note"`
	Date          time.Time       `json:"date"`
}

func (input *NewCurrencyTransfer) Validate() error {
	if err := ValidateStruct(input); err != nil {
		return err
	}
	if input.FromAccountId == input.ToAccountId {
		return NewValidationError("to_account_id", "must differ from the source account")
	}
	return nil
}

// ToAmount is FromAmount × ExchangeRate at storage precision.
func (input *NewCurrencyTransfer) ToAmount() decimal.Decimal {
	return input.FromAmount.Mul(input.ExchangeRate).Round(AmountScale)
}

type NewInBetweenTransfer struct {
	FromAccountId string          `json:"from_account_id" validate:"required"`
	ToAccountId   string          `json:"to_account_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"dpositive,dscale"`
	Note          string          `json:"note"`
	Date          time.Time       `json:"date"`
}

func (input *NewInBetweenTransfer) Validate() error {
	if err := ValidateStruct(input); err != nil {
		return err
	}
	if input.FromAccountId == input.ToAccountId {
		return NewValidationError("to_account_id", "must differ from the source account")
	}
	return nil
}

type NewDpsTransfer struct {
	MainAccountId string          `json:"main_account_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"dpositive,dscale"`
	Note          string          `json:"note"`
	Date          time.Time       `json:"date"`
}

func (input *NewDpsTransfer) Validate() error {
	return ValidateStruct(input)
}

// WrongTransferTypeError rejects a transfer whose currencies do not fit the
// chosen mode. It matches as a ValidationError.
type WrongTransferTypeError struct {
	Requested TransferKind
	Suggested TransferKind
}

func (e *WrongTransferTypeError) Error() string {
	return "wrong transfer type: " + string(e.Requested) + " transfer requires " + e.requirement() + "; use a " + string(e.Suggested) + " transfer"
}

func (e *WrongTransferTypeError) requirement() string {
	if e.Requested == TransferKindCurrency {
		return "accounts in different currencies"
	}
	return "accounts in the same currency"
}

func (e *WrongTransferTypeError) Unwrap() error {
	return &ValidationError{Field: "to_account_id", Message: "currency does not match the transfer type"}
}
