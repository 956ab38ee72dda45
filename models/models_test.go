package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewTransactionValidate(t *testing.T) {
	base := func() NewTransaction {
		return NewTransaction{
			AccountId: "A",
			Amount:    dec("10"),
			Type:      TransactionTypeExpense,
			Date:      time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		}
	}

	cases := []struct {
		name  string
		edit  func(*NewTransaction)
		field string
	}{
		{"zero amount", func(n *NewTransaction) { n.Amount = decimal.Zero }, "amount"},
		{"negative amount", func(n *NewTransaction) { n.Amount = dec("-1") }, "amount"},
		{"missing account", func(n *NewTransaction) { n.AccountId = "" }, "account_id"},
		{"bad type", func(n *NewTransaction) { n.Type = "refund" }, "type"},
		{"missing date", func(n *NewTransaction) { n.Date = time.Time{} }, "date"},
	}
	for _, tc := range cases {
		in := base()
		tc.edit(&in)
		err := in.Validate()
		ve, ok := err.(*ValidationError)
		if !ok {
			t.Fatalf("%s: expected *ValidationError, got %v", tc.name, err)
		}
		if ve.Field != tc.field {
			t.Fatalf("%s: expected field %s, got %s", tc.name, tc.field, ve.Field)
		}
	}

	ok := base()
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
}

func TestTransactionPatch_RejectsImmutableFields(t *testing.T) {
	current := &Transaction{AccountId: "A", Amount: dec("10"), Type: TransactionTypeIncome, Tags: []string{TagTransfer, "G"}}
	amount := dec("11")
	account := "B"
	typ := TransactionTypeExpense
	tags := []string{"food"}

	patches := map[string]TransactionPatch{
		"amount":     {Amount: &amount},
		"account_id": {AccountId: &account},
		"type":       {Type: &typ},
		"tags":       {Tags: &tags},
	}
	for field, p := range patches {
		err := p.Validate(current)
		ife, ok := err.(*ImmutableFieldError)
		if !ok || ife.Field != field {
			t.Fatalf("patch on %s: expected ImmutableFieldError, got %v", field, err)
		}
	}

	same := dec("10.00")
	desc := "groceries"
	keepTags := []string{TagTransfer, "G", "weekly"}
	p := TransactionPatch{Amount: &same, Description: &desc, Tags: &keepTags}
	if err := p.Validate(current); err != nil {
		t.Fatalf("metadata patch rejected: %v", err)
	}
}

func TestDpsConfigValidate(t *testing.T) {
	fixed := dec("25")
	cases := []struct {
		cfg   DpsConfig
		valid bool
	}{
		{DpsConfig{Type: DpsTypeMonthly, AmountType: DpsAmountTypeFixed, FixedAmount: &fixed}, true},
		{DpsConfig{Type: DpsTypeFlexible, AmountType: DpsAmountTypeCustom}, true},
		{DpsConfig{Type: DpsTypeMonthly, AmountType: DpsAmountTypeFixed}, false},
		{DpsConfig{Type: DpsTypeMonthly, AmountType: DpsAmountTypeCustom, FixedAmount: &fixed}, false},
		{DpsConfig{Type: "weekly", AmountType: DpsAmountTypeCustom}, false},
	}
	for i, tc := range cases {
		err := tc.cfg.Validate()
		if (err == nil) != tc.valid {
			t.Fatalf("case %d: valid=%v, err=%v", i, tc.valid, err)
		}
	}
}

func TestVisibleAccountsAndTotals(t *testing.T) {
	sub := "sub"
	accounts := []*Account{
		{ID: "main", Currency: "USD", IsActive: true, HasDps: true, DpsSavingsAccountId: &sub, CalculatedBalance: dec("100")},
		{ID: "sub", Currency: "USD", IsActive: true, CalculatedBalance: dec("40")},
		{ID: "old", Currency: "USD", IsActive: false, CalculatedBalance: dec("999")},
		{ID: "eur", Currency: "EUR", IsActive: true, CalculatedBalance: dec("7.5")},
	}
	visible := VisibleAccounts(accounts)
	for _, a := range visible {
		if a.ID == "sub" {
			t.Fatalf("DPS sub-account must be hidden")
		}
	}
	if len(visible) != 3 {
		t.Fatalf("expected 3 visible accounts, got %d", len(visible))
	}

	totals := TotalBalances(accounts)
	if len(totals) != 2 {
		t.Fatalf("expected 2 currencies, got %d", len(totals))
	}
	if totals[0].Currency != "USD" || !totals[0].TotalBalance.Equal(dec("100")) {
		t.Fatalf("unexpected USD total %+v", totals[0])
	}
	if totals[1].Currency != "EUR" || !totals[1].TotalBalance.Equal(dec("7.5")) {
		t.Fatalf("unexpected EUR total %+v", totals[1])
	}
}

func TestNewPurchaseValidate(t *testing.T) {
	planned := NewPurchase{ItemName: "Desk", Currency: "usd", Status: PurchaseStatusPlanned}
	if err := planned.Validate(); err != nil {
		t.Fatalf("planned purchase rejected: %v", err)
	}
	if planned.Currency != "USD" || planned.Priority != PurchasePriorityMedium {
		t.Fatalf("expected normalized input, got %+v", planned)
	}

	bought := NewPurchase{ItemName: "Desk", Currency: "USD", Status: PurchaseStatusPurchased, Price: dec("120")}
	if err := bought.Validate(); !IsValidationError(err) {
		t.Fatalf("purchased without account should fail validation, got %v", err)
	}

	cancelled := NewPurchase{ItemName: "Desk", Currency: "USD", Status: PurchaseStatusCancelled}
	if err := cancelled.Validate(); !IsValidationError(err) {
		t.Fatalf("cancelled at creation should fail validation, got %v", err)
	}
}

func TestLendBorrowIsOverdue(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 1)

	cases := []struct {
		lb       LendBorrow
		expected bool
	}{
		{LendBorrow{Status: LendBorrowStatusActive, DueDate: &past}, true},
		{LendBorrow{Status: LendBorrowStatusActive, DueDate: &future}, false},
		{LendBorrow{Status: LendBorrowStatusActive}, false},
		{LendBorrow{Status: LendBorrowStatusSettled, DueDate: &past}, false},
	}
	for i, tc := range cases {
		if got := tc.lb.IsOverdue(now); got != tc.expected {
			t.Fatalf("case %d: expected %v, got %v", i, tc.expected, got)
		}
	}
}

func TestCurrencyTransferToAmountRounding(t *testing.T) {
	in := NewCurrencyTransfer{FromAccountId: "a", ToAccountId: "b", FromAmount: dec("33.33"), ExchangeRate: dec("0.123456")}
	if err := in.Validate(); err != nil {
		t.Fatalf("valid transfer rejected: %v", err)
	}
	// 33.33 * 0.123456 = 4.11478848
	if got := in.ToAmount(); !got.Equal(dec("4.1148")) {
		t.Fatalf("expected 4.1148, got %s", got)
	}

	same := NewCurrencyTransfer{FromAccountId: "a", ToAccountId: "a", FromAmount: dec("1"), ExchangeRate: dec("1")}
	if err := same.Validate(); !IsValidationError(err) {
		t.Fatalf("expected validation error for same account, got %v", err)
	}
}

func TestWrongTransferTypeErrorIsValidationError(t *testing.T) {
	var err error = &WrongTransferTypeError{Requested: TransferKindCurrency, Suggested: TransferKindInBetween}
	if !IsValidationError(err) {
		t.Fatalf("expected WrongTransferTypeError to match as ValidationError")
	}
}

func TestAmountsBeyondStoredScaleAreRejected(t *testing.T) {
	tx := NewTransaction{AccountId: "A", Amount: dec("0.00004"), Type: TransactionTypeIncome, Date: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	err := tx.Validate()
	ve, ok := err.(*ValidationError)
	if !ok || ve.Field != "amount" {
		t.Fatalf("expected amount scale error, got %v", err)
	}

	tx.Amount = dec("0.0001")
	if err := tx.Validate(); err != nil {
		t.Fatalf("amount at scale rejected: %v", err)
	}
	// trailing zeros do not count
	tx.Amount = dec("12.340000")
	if err := tx.Validate(); err != nil {
		t.Fatalf("amount with trailing zeros rejected: %v", err)
	}

	inBetween := NewInBetweenTransfer{FromAccountId: "a", ToAccountId: "b", Amount: dec("1.23456")}
	if err := inBetween.Validate(); !IsValidationError(err) {
		t.Fatalf("expected scale error for in-between transfer, got %v", err)
	}
	currency := NewCurrencyTransfer{FromAccountId: "a", ToAccountId: "b", FromAmount: dec("1.00001"), ExchangeRate: dec("0.123456")}
	if err := currency.Validate(); !IsValidationError(err) {
		t.Fatalf("expected scale error for currency transfer, got %v", err)
	}

	account := NewAccount{Name: "Cash", Type: AccountTypeCash, Currency: "USD", InitialBalance: dec("5.55555")}
	if err := account.Validate(); !IsValidationError(err) {
		t.Fatalf("expected scale error for initial balance, got %v", err)
	}

	patched := dec("3.00005")
	patch := AccountPatch{InitialBalance: &patched}
	if err := patch.Validate(&Account{Currency: "USD"}); !IsValidationError(err) {
		t.Fatalf("expected scale error for patched initial balance, got %v", err)
	}

	fixed := dec("10.12345")
	cfg := DpsConfig{Type: DpsTypeMonthly, AmountType: DpsAmountTypeFixed, FixedAmount: &fixed}
	if err := cfg.Validate(); !IsValidationError(err) {
		t.Fatalf("expected scale error for fixed DPS amount, got %v", err)
	}
}
