package models

import (
	"testing"
)

func leg(id, account string, typ TransactionType, amount, group string, seq int64) *Transaction {
	t := tx(id, account, typ, amount, 4, seq)
	t.Tags = []string{TagTransfer, group}
	return t
}

func testAccounts() map[string]*Account {
	return AccountIndex([]*Account{
		{ID: "usd1", Currency: "USD"},
		{ID: "usd2", Currency: "USD"},
		{ID: "eur", Currency: "EUR"},
	})
}

func TestGroupTransfers_WellFormedPair(t *testing.T) {
	txs := []*Transaction{
		leg("1", "usd1", TransactionTypeExpense, "50", "G1", 1),
		leg("2", "eur", TransactionTypeIncome, "46", "G1", 2),
	}
	transfers, violations := GroupTransfers(TagTransfer, txs, testAccounts())
	if len(violations) != 0 {
		t.Fatalf("unexpected violations: %v", violations)
	}
	if len(transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(transfers))
	}
	tr := transfers[0]
	if tr.Kind != TransferKindCurrency {
		t.Fatalf("expected currency kind, got %s", tr.Kind)
	}
	if tr.FromAccountId() != "usd1" || tr.ToAccountId() != "eur" {
		t.Fatalf("unexpected direction %s -> %s", tr.FromAccountId(), tr.ToAccountId())
	}
	if !tr.ExchangeRate.Equal(dec("0.92")) {
		t.Fatalf("expected rate 0.92, got %s", tr.ExchangeRate)
	}
}

func TestGroupTransfers_ExcludesMalformedGroups(t *testing.T) {
	txs := []*Transaction{
		// three legs sharing one id
		leg("1", "usd1", TransactionTypeExpense, "10", "THREE", 1),
		leg("2", "usd2", TransactionTypeIncome, "10", "THREE", 2),
		leg("3", "usd2", TransactionTypeIncome, "10", "THREE", 3),
		// orphan
		leg("4", "usd1", TransactionTypeExpense, "5", "ORPHAN", 4),
		// two incomes
		leg("5", "usd1", TransactionTypeIncome, "5", "SAME", 5),
		leg("6", "usd2", TransactionTypeIncome, "5", "SAME", 6),
		// good one
		leg("7", "usd1", TransactionTypeExpense, "40", "OK", 7),
		leg("8", "usd2", TransactionTypeIncome, "40", "OK", 8),
	}
	transfers, violations := GroupTransfers(TagTransfer, txs, testAccounts())
	if len(transfers) != 1 || transfers[0].TransferId != "OK" {
		t.Fatalf("expected only the OK transfer, got %+v", transfers)
	}
	if transfers[0].Kind != TransferKindInBetween {
		t.Fatalf("expected in_between kind, got %s", transfers[0].Kind)
	}
	flagged := map[string]bool{}
	for _, v := range violations {
		if v.Check != CheckTransferGroup {
			t.Fatalf("unexpected check %s", v.Check)
		}
		flagged[v.EntityId] = true
	}
	for _, id := range []string{"THREE", "ORPHAN", "SAME"} {
		if !flagged[id] {
			t.Fatalf("expected group %s to be flagged, got %v", id, flagged)
		}
	}
}

func TestGroupTransfers_IgnoresOtherMarkers(t *testing.T) {
	a := leg("1", "usd1", TransactionTypeExpense, "10", "D1", 1)
	b := leg("2", "usd2", TransactionTypeIncome, "10", "D1", 2)
	a.Tags[0], b.Tags[0] = TagDpsTransfer, TagDpsTransfer
	plain := tx("3", "usd1", TransactionTypeIncome, "1", 1, 3)

	transfers, violations := GroupTransfers(TagTransfer, []*Transaction{a, b, plain}, testAccounts())
	if len(transfers) != 0 || len(violations) != 0 {
		t.Fatalf("expected nothing, got %d transfers %d violations", len(transfers), len(violations))
	}
	dps, violations := GroupTransfers(TagDpsTransfer, []*Transaction{a, b, plain}, testAccounts())
	if len(dps) != 1 || len(violations) != 0 {
		t.Fatalf("expected 1 dps group, got %d (%d violations)", len(dps), len(violations))
	}
}
