package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func tx(id, account string, typ TransactionType, amount string, day int, seq int64) *Transaction {
	return &Transaction{
		ID:            id,
		TransactionId: "TXN-" + id,
		AccountId:     account,
		Type:          typ,
		Amount:        dec(amount),
		Date:          time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC),
		Sequence:      seq,
	}
}

func TestProjectBalance_IncomeThenExpense(t *testing.T) {
	acc := &Account{ID: "A", Currency: "USD", InitialBalance: dec("100")}
	txs := []*Transaction{
		tx("1", "A", TransactionTypeIncome, "30", 1, 1),
		tx("2", "A", TransactionTypeExpense, "20", 2, 2),
	}
	got := ProjectBalance(acc, txs)
	if !got.Equal(dec("110")) {
		t.Fatalf("expected 110, got %s", got)
	}
}

func TestProjectBalance_IgnoresOtherAccounts(t *testing.T) {
	acc := &Account{ID: "A", InitialBalance: dec("0")}
	txs := []*Transaction{
		tx("1", "A", TransactionTypeIncome, "5", 1, 1),
		tx("2", "B", TransactionTypeIncome, "500", 1, 2),
	}
	if got := ProjectBalance(acc, txs); !got.Equal(dec("5")) {
		t.Fatalf("expected 5, got %s", got)
	}
}

func TestProjectBalance_NoFloatDrift(t *testing.T) {
	acc := &Account{ID: "A", InitialBalance: dec("0")}
	var txs []*Transaction
	for i := 0; i < 10; i++ {
		txs = append(txs, tx(string(rune('a'+i)), "A", TransactionTypeIncome, "0.1", 1, int64(i)))
	}
	if got := ProjectBalance(acc, txs); !got.Equal(dec("1")) {
		t.Fatalf("expected exactly 1, got %s", got)
	}
}

func TestProjectBalance_Deterministic(t *testing.T) {
	acc := &Account{ID: "A", InitialBalance: dec("12.3456")}
	txs := []*Transaction{
		tx("1", "A", TransactionTypeIncome, "1.1111", 3, 1),
		tx("2", "A", TransactionTypeExpense, "2.2222", 1, 2),
	}
	first := ProjectBalance(acc, txs)
	for i := 0; i < 5; i++ {
		if got := ProjectBalance(acc, txs); !got.Equal(first) {
			t.Fatalf("projection changed between calls: %s vs %s", first, got)
		}
	}
}

func TestProjectRunningBalance_TieBreaksOnSequence(t *testing.T) {
	acc := &Account{ID: "A", InitialBalance: dec("100")}
	// same date, inserted out of order
	txs := []*Transaction{
		tx("late", "A", TransactionTypeExpense, "50", 5, 2),
		tx("early", "A", TransactionTypeIncome, "10", 5, 1),
		tx("first", "A", TransactionTypeIncome, "1", 1, 3),
	}

	cases := []struct {
		asOf     string
		expected string
	}{
		{"TXN-first", "101"},
		{"TXN-early", "111"},
		{"TXN-late", "61"},
		{"late", "61"},
	}
	for _, tc := range cases {
		got, ok := ProjectRunningBalance(acc, txs, tc.asOf)
		if !ok {
			t.Fatalf("ProjectRunningBalance(%s) not found", tc.asOf)
		}
		if !got.Equal(dec(tc.expected)) {
			t.Fatalf("ProjectRunningBalance(%s) expected %s, got %s", tc.asOf, tc.expected, got)
		}
	}

	if _, ok := ProjectRunningBalance(acc, txs, "missing"); ok {
		t.Fatalf("expected missing transaction to report ok=false")
	}
}

func TestRunningBalances_EndsAtProjectedBalance(t *testing.T) {
	acc := &Account{ID: "A", InitialBalance: dec("10")}
	txs := []*Transaction{
		tx("1", "A", TransactionTypeIncome, "5", 2, 1),
		tx("2", "A", TransactionTypeExpense, "7", 1, 2),
	}
	rows := RunningBalances(acc, txs)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Transaction.ID != "2" || !rows[0].Balance.Equal(dec("3")) {
		t.Fatalf("unexpected first row: %s %s", rows[0].Transaction.ID, rows[0].Balance)
	}
	if !rows[1].Balance.Equal(ProjectBalance(acc, txs)) {
		t.Fatalf("last running balance %s != projected %s", rows[1].Balance, ProjectBalance(acc, txs))
	}
}
