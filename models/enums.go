package models

import (
	"encoding/json"
	"fmt"
)

type AccountType string

const (
	AccountTypeChecking   AccountType = "checking"
	AccountTypeSavings    AccountType = "savings"
	AccountTypeCredit     AccountType = "credit"
	AccountTypeInvestment AccountType = "investment"
	AccountTypeCash       AccountType = "cash"
)

func (t AccountType) IsValid() bool {
	switch t {
	case AccountTypeChecking, AccountTypeSavings, AccountTypeCredit, AccountTypeInvestment, AccountTypeCash:
		return true
	}
	return false
}

func (t *AccountType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, (*string)(t), "account type", func(s string) bool { return AccountType(s).IsValid() })
}

type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

func (t TransactionType) IsValid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

func (t *TransactionType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, (*string)(t), "transaction type", func(s string) bool { return TransactionType(s).IsValid() })
}

// reserved transaction tags
const (
	TagTransfer    = "transfer"
	TagDpsTransfer = "dps_transfer"
	TagDpsDeletion = "dps_deletion"
	TagPurchase    = "purchase"
)

// CategoryPurchase marks a transaction input that should also record a Purchase.
const CategoryPurchase = "purchase"

func IsReservedTag(tag string) bool {
	switch tag {
	case TagTransfer, TagDpsTransfer, TagDpsDeletion, TagPurchase:
		return true
	}
	return false
}

type DpsType string

const (
	DpsTypeMonthly  DpsType = "monthly"
	DpsTypeFlexible DpsType = "flexible"
)

func (t DpsType) IsValid() bool {
	return t == DpsTypeMonthly || t == DpsTypeFlexible
}

type DpsAmountType string

const (
	DpsAmountTypeFixed  DpsAmountType = "fixed"
	DpsAmountTypeCustom DpsAmountType = "custom"
)

func (t DpsAmountType) IsValid() bool {
	return t == DpsAmountTypeFixed || t == DpsAmountTypeCustom
}

// DpsDestination is where a deleted DPS sub-account's balance goes.
type DpsDestination string

const (
	DpsDestinationMain DpsDestination = "main"
	DpsDestinationCash DpsDestination = "cash"
)

func (t DpsDestination) IsValid() bool {
	return t == DpsDestinationMain || t == DpsDestinationCash
}

type PurchaseStatus string

const (
	PurchaseStatusPlanned   PurchaseStatus = "planned"
	PurchaseStatusPurchased PurchaseStatus = "purchased"
	PurchaseStatusCancelled PurchaseStatus = "cancelled"
)

func (t PurchaseStatus) IsValid() bool {
	switch t {
	case PurchaseStatusPlanned, PurchaseStatusPurchased, PurchaseStatusCancelled:
		return true
	}
	return false
}

type PurchasePriority string

const (
	PurchasePriorityLow    PurchasePriority = "low"
	PurchasePriorityMedium PurchasePriority = "medium"
	PurchasePriorityHigh   PurchasePriority = "high"
)

func (t PurchasePriority) IsValid() bool {
	switch t {
	case PurchasePriorityLow, PurchasePriorityMedium, PurchasePriorityHigh:
		return true
	}
	return false
}

type LendBorrowType string

const (
	LendBorrowTypeLend   LendBorrowType = "lend"
	LendBorrowTypeBorrow LendBorrowType = "borrow"
)

func (t LendBorrowType) IsValid() bool {
	return t == LendBorrowTypeLend || t == LendBorrowTypeBorrow
}

type LendBorrowStatus string

const (
	LendBorrowStatusActive  LendBorrowStatus = "active"
	LendBorrowStatusSettled LendBorrowStatus = "settled"
	LendBorrowStatusOverdue LendBorrowStatus = "overdue"
)

func (t LendBorrowStatus) IsValid() bool {
	switch t {
	case LendBorrowStatusActive, LendBorrowStatusSettled, LendBorrowStatusOverdue:
		return true
	}
	return false
}

type TransferKind string

const (
	TransferKindCurrency  TransferKind = "currency"
	TransferKindInBetween TransferKind = "in_between"
	TransferKindDps       TransferKind = "dps"
)

func unmarshalEnum(b []byte, dst *string, name string, valid func(string) bool) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%s must be string", name)
	}
	if !valid(s) {
		return fmt.Errorf("invalid %s %q", name, s)
	}
	*dst = s
	return nil
}
