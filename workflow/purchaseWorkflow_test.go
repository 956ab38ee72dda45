package workflow

import (
	"testing"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/storage"
)

func (env *testEnv) plan(t *testing.T, item string) *models.Purchase {
	t.Helper()
	p, err := env.engine.RecordPurchase(env.ctx, models.NewPurchase{
		ItemName: item,
		Currency: "USD",
		Price:    d("10"),
		Status:   models.PurchaseStatusPlanned,
	})
	if err != nil {
		t.Fatalf("RecordPurchase: %v", err)
	}
	return p
}

func TestPlannedPurchaseMovesNoFunds(t *testing.T) {
	env := newTestEnv(t)
	a := env.account(t, "A", "USD", "100")
	p := env.plan(t, "Desk")

	if !p.Price.IsZero() || p.LinkedTransactionId() != "" || p.Priority != models.PurchasePriorityMedium {
		t.Fatalf("unexpected planned purchase %+v", p)
	}
	if n := env.transactionCount(t, ""); n != 0 {
		t.Fatalf("planned purchase must not write a transaction, got %d", n)
	}
	env.expectBalance(t, a.ID, "100")
}

func TestTransitionToPurchased(t *testing.T) {
	env := newTestEnv(t)
	a := env.account(t, "A", "USD", "100")
	p := env.plan(t, "Desk")

	updated, err := env.engine.TransitionToPurchased(env.ctx, p.ID, a.ID, d("50"))
	if err != nil {
		t.Fatalf("TransitionToPurchased: %v", err)
	}
	txns, _ := env.store.FetchTransactions(env.ctx, testUser, a.ID)
	if len(txns) != 1 {
		t.Fatalf("expected exactly one expense, got %d", len(txns))
	}
	expense := txns[0]
	if expense.Type != models.TransactionTypeExpense || !expense.Amount.Equal(d("50")) || !expense.HasTag(models.TagPurchase) {
		t.Fatalf("unexpected expense %+v", expense)
	}
	if updated.Status != models.PurchaseStatusPurchased || updated.LinkedTransactionId() != expense.TransactionId ||
		updated.LinkedAccountId() != a.ID || !updated.PurchaseDate.Equal(testNow) {
		t.Fatalf("unexpected purchase %+v", updated)
	}
	env.expectBalance(t, a.ID, "50")

	if _, err := env.engine.TransitionToPurchased(env.ctx, p.ID, a.ID, d("50")); !models.IsValidationError(err) {
		t.Fatalf("expected validation error on second transition, got %v", err)
	}
	env.expectNoDrift(t)
}

func TestTransitionToPurchasedValidation(t *testing.T) {
	env := newTestEnv(t)
	eur := env.account(t, "E", "EUR", "100")
	p := env.plan(t, "Desk")

	if _, err := env.engine.TransitionToPurchased(env.ctx, p.ID, eur.ID, d("50")); !models.IsValidationError(err) {
		t.Fatalf("currency mismatch: expected validation error, got %v", err)
	}
	if _, err := env.engine.TransitionToPurchased(env.ctx, p.ID, eur.ID, d("0")); !models.IsValidationError(err) {
		t.Fatalf("zero price: expected validation error, got %v", err)
	}
	usd := env.account(t, "U", "USD", "100")
	if _, err := env.engine.TransitionToPurchased(env.ctx, p.ID, usd.ID, d("9.99999")); !models.IsValidationError(err) {
		t.Fatalf("price beyond scale: expected validation error, got %v", err)
	}
	env.expectBalance(t, usd.ID, "100")
	if n := env.transactionCount(t, usd.ID); n != 0 {
		t.Fatalf("expected no transactions, got %d", n)
	}
	if _, err := env.engine.TransitionToPurchased(env.ctx, "missing", eur.ID, d("5")); !models.IsReferenceError(err) {
		t.Fatalf("missing purchase: expected reference error, got %v", err)
	}
}

func TestTransitionToPurchasedRemovesExpenseWhenLinkFails(t *testing.T) {
	env := newTestEnv(t)
	a := env.account(t, "A", "USD", "100")
	p := env.plan(t, "Desk")
	env.store.FailAfter(storage.OpUpdatePurchase, 0, errBoom)

	if _, err := env.engine.TransitionToPurchased(env.ctx, p.ID, a.ID, d("50")); !models.IsPersistenceError(err) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	env.store.ClearFaults()
	if n := env.transactionCount(t, ""); n != 0 {
		t.Fatalf("expense should be removed, got %d", n)
	}
	env.expectBalance(t, a.ID, "100")
	current, _ := env.store.GetPurchase(env.ctx, testUser, p.ID)
	if current.Status != models.PurchaseStatusPlanned {
		t.Fatalf("purchase should still be planned, got %s", current.Status)
	}
}

func TestRecordPurchasedAndCancel(t *testing.T) {
	env := newTestEnv(t)
	a := env.account(t, "A", "USD", "100")

	p, err := env.engine.RecordPurchase(env.ctx, models.NewPurchase{
		ItemName:     "Chair",
		Currency:     "usd",
		Price:        d("20"),
		Status:       models.PurchaseStatusPurchased,
		AccountId:    a.ID,
		PurchaseDate: testNow,
	})
	if err != nil {
		t.Fatalf("RecordPurchase: %v", err)
	}
	if p.LinkedTransactionId() == "" {
		t.Fatalf("purchased item should link its expense")
	}
	env.expectBalance(t, a.ID, "80")

	cancelled, err := env.engine.CancelPurchase(env.ctx, p.ID)
	if err != nil {
		t.Fatalf("CancelPurchase: %v", err)
	}
	if cancelled.Status != models.PurchaseStatusCancelled || cancelled.TransactionId != nil {
		t.Fatalf("unexpected cancelled purchase %+v", cancelled)
	}
	env.expectBalance(t, a.ID, "100")
	if n := env.transactionCount(t, ""); n != 0 {
		t.Fatalf("refund should remove the expense, got %d", n)
	}
	if _, err := env.engine.CancelPurchase(env.ctx, p.ID); !models.IsValidationError(err) {
		t.Fatalf("expected validation error on second cancel, got %v", err)
	}
}

func TestCancelPlannedPurchase(t *testing.T) {
	env := newTestEnv(t)
	p := env.plan(t, "Lamp")
	cancelled, err := env.engine.CancelPurchase(env.ctx, p.ID)
	if err != nil {
		t.Fatalf("CancelPurchase: %v", err)
	}
	if cancelled.Status != models.PurchaseStatusCancelled {
		t.Fatalf("unexpected status %s", cancelled.Status)
	}
}

func TestRecordExcludedPurchaseWritesNoTransaction(t *testing.T) {
	env := newTestEnv(t)
	a := env.account(t, "A", "USD", "100")
	p, err := env.engine.RecordPurchase(env.ctx, models.NewPurchase{
		ItemName:               "Gift",
		Currency:               "USD",
		Price:                  d("30"),
		Status:                 models.PurchaseStatusPurchased,
		AccountId:              a.ID,
		PurchaseDate:           testNow,
		ExcludeFromCalculation: true,
	})
	if err != nil {
		t.Fatalf("RecordPurchase: %v", err)
	}
	if p.LinkedTransactionId() != "" || !p.Price.Equal(d("30")) {
		t.Fatalf("unexpected excluded purchase %+v", p)
	}
	env.expectBalance(t, a.ID, "100")
}

func TestRecordPurchaseRemovesExpenseWhenInsertFails(t *testing.T) {
	env := newTestEnv(t)
	a := env.account(t, "A", "USD", "100")
	env.store.FailAfter(storage.OpInsertPurchase, 0, errBoom)

	_, err := env.engine.RecordPurchase(env.ctx, models.NewPurchase{
		ItemName: "Chair", Currency: "USD", Price: d("20"), Status: models.PurchaseStatusPurchased, AccountId: a.ID, PurchaseDate: testNow,
	})
	if !models.IsPersistenceError(err) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	env.store.ClearFaults()
	if n := env.transactionCount(t, ""); n != 0 {
		t.Fatalf("expense should be removed, got %d", n)
	}
	env.expectBalance(t, a.ID, "100")
}

func TestDeletePurchaseRemovesExpense(t *testing.T) {
	env := newTestEnv(t)
	a := env.account(t, "A", "USD", "100")
	p := env.plan(t, "Desk")
	if _, err := env.engine.TransitionToPurchased(env.ctx, p.ID, a.ID, d("40")); err != nil {
		t.Fatalf("TransitionToPurchased: %v", err)
	}

	if err := env.engine.DeletePurchase(env.ctx, p.ID); err != nil {
		t.Fatalf("DeletePurchase: %v", err)
	}
	env.expectBalance(t, a.ID, "100")
	if _, err := env.store.GetPurchase(env.ctx, testUser, p.ID); !storage.IsNotFound(err) {
		t.Fatalf("purchase should be gone, got %v", err)
	}
	if err := env.engine.DeletePurchase(env.ctx, p.ID); !models.IsReferenceError(err) {
		t.Fatalf("expected reference error, got %v", err)
	}
}

func TestDeletePurchaseRestoresWhenExpenseDeleteFails(t *testing.T) {
	env := newTestEnv(t)
	a := env.account(t, "A", "USD", "100")
	p := env.plan(t, "Desk")
	if _, err := env.engine.TransitionToPurchased(env.ctx, p.ID, a.ID, d("40")); err != nil {
		t.Fatalf("TransitionToPurchased: %v", err)
	}
	env.store.FailAfter(storage.OpDeleteTransaction, 0, errBoom)

	if err := env.engine.DeletePurchase(env.ctx, p.ID); !models.IsPersistenceError(err) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	env.store.ClearFaults()
	if _, err := env.store.GetPurchase(env.ctx, testUser, p.ID); err != nil {
		t.Fatalf("purchase should be restored: %v", err)
	}
	env.expectBalance(t, a.ID, "60")
}

func TestDeletePurchaseToleratesMissingTransaction(t *testing.T) {
	env := newTestEnv(t)
	a := env.account(t, "A", "USD", "100")
	p := env.plan(t, "Desk")
	updated, err := env.engine.TransitionToPurchased(env.ctx, p.ID, a.ID, d("40"))
	if err != nil {
		t.Fatalf("TransitionToPurchased: %v", err)
	}
	linked, _ := env.store.FindTransactionByTransactionId(env.ctx, testUser, updated.LinkedTransactionId())
	if err := env.store.DeleteTransaction(env.ctx, testUser, linked.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}

	if err := env.engine.DeletePurchase(env.ctx, p.ID); err != nil {
		t.Fatalf("DeletePurchase with a dangling link: %v", err)
	}
}

func TestLinkedExpenseCannotBeDeletedDirectly(t *testing.T) {
	env := newTestEnv(t)
	a := env.account(t, "A", "USD", "100")
	p := env.plan(t, "Chair")
	updated, err := env.engine.TransitionToPurchased(env.ctx, p.ID, a.ID, d("50"))
	if err != nil {
		t.Fatalf("TransitionToPurchased: %v", err)
	}
	linked, err := env.store.FindTransactionByTransactionId(env.ctx, testUser, updated.LinkedTransactionId())
	if err != nil {
		t.Fatalf("FindTransactionByTransactionId: %v", err)
	}

	if err := env.engine.DeleteTransaction(env.ctx, linked.ID); !models.IsValidationError(err) {
		t.Fatalf("expected deleting a purchase expense to be refused, got %v", err)
	}
	if err := env.engine.DeleteAccount(env.ctx, a.ID); !models.IsValidationError(err) {
		t.Fatalf("expected deleting an account with a purchase expense to be refused, got %v", err)
	}
	if _, err := env.store.GetTransaction(env.ctx, testUser, linked.ID); err != nil {
		t.Fatalf("linked expense should still exist: %v", err)
	}
	env.expectBalance(t, a.ID, "50")

	if _, err := env.engine.CancelPurchase(env.ctx, p.ID); err != nil {
		t.Fatalf("CancelPurchase: %v", err)
	}
	if err := env.engine.DeleteAccount(env.ctx, a.ID); err != nil {
		t.Fatalf("DeleteAccount after cancel: %v", err)
	}
}
