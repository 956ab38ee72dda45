package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/shopspring/decimal"
)

func (e *Engine) ListPurchases(ctx context.Context) (_ []*models.Purchase, err error) {
	ctx, span, userId, err := e.begin(ctx, "Purchase.ListPurchases")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()

	return e.store.FetchPurchases(ctx, userId)
}

// RecordPurchase stores a planned purchase without moving funds, or a
// purchased one together with its expense transaction. Excluded purchases
// keep price and account but never get a transaction.
func (e *Engine) RecordPurchase(ctx context.Context, input models.NewPurchase) (_ *models.Purchase, err error) {
	ctx, span, userId, err := e.begin(ctx, "Purchase.RecordPurchase")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()

	if err := input.Validate(); err != nil {
		return nil, err
	}
	defer e.lock(ctx, userId)()

	purchase := &models.Purchase{
		ID:                     e.newId(),
		UserId:                 userId,
		ItemName:               input.ItemName,
		Category:               input.Category,
		Price:                  input.Price,
		Currency:               input.Currency,
		PurchaseDate:           input.PurchaseDate,
		Status:                 input.Status,
		Priority:               input.Priority,
		Notes:                  input.Notes,
		ExcludeFromCalculation: input.ExcludeFromCalculation,
	}
	if purchase.PurchaseDate.IsZero() {
		purchase.PurchaseDate = e.now()
	}
	if input.AccountId != "" {
		id := input.AccountId
		purchase.AccountId = &id
	}

	if purchase.Status == models.PurchaseStatusPlanned {
		purchase.Price = decimal.Zero
		if err := e.store.InsertPurchase(ctx, purchase); err != nil {
			return nil, err
		}
		e.publish(ctx, userId, EntityPurchase, purchase.ID, ActionCreate)
		return purchase, nil
	}

	account, err := e.activeAccount(ctx, userId, input.AccountId, "account_id")
	if err != nil {
		return nil, err
	}
	if account.Currency != purchase.Currency {
		return nil, models.NewValidationError("currency", "purchase currency %s differs from account currency %s", purchase.Currency, account.Currency)
	}
	if purchase.ExcludeFromCalculation {
		if err := e.store.InsertPurchase(ctx, purchase); err != nil {
			return nil, err
		}
		e.publish(ctx, userId, EntityPurchase, purchase.ID, ActionCreate)
		return purchase, nil
	}

	t, err := e.addTransaction(ctx, userId, account, purchaseExpense(purchase))
	if err != nil {
		return nil, err
	}
	purchase.TransactionId = &t.TransactionId
	if err := e.store.InsertPurchase(ctx, purchase); err != nil {
		undo := e.deleteTransaction(ctx, userId, t)
		return nil, e.compensationErr(ctx, "RecordPurchase", userId, purchase.ID, err, undo)
	}
	e.publish(ctx, userId, EntityPurchase, purchase.ID, ActionCreate, t.TransactionId)
	return purchase, nil
}

// TransitionToPurchased is legal only from planned. It writes the expense
// and then links it; a failed link removes the expense again.
func (e *Engine) TransitionToPurchased(ctx context.Context, purchaseId, accountId string, price decimal.Decimal) (_ *models.Purchase, err error) {
	ctx, span, userId, err := e.begin(ctx, "Purchase.TransitionToPurchased")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()

	if !price.IsPositive() {
		return nil, models.NewValidationError("price", "must be greater than zero")
	}
	if err := models.CheckAmountScale("price", price); err != nil {
		return nil, err
	}
	if accountId == "" {
		return nil, models.NewValidationError("account_id", "is required")
	}
	defer e.lock(ctx, userId)()

	current, err := e.store.GetPurchase(ctx, userId, purchaseId)
	if err != nil {
		return nil, lookupErr("purchase", purchaseId, err)
	}
	if current.Status != models.PurchaseStatusPlanned {
		return nil, models.NewValidationError("status", "only a planned purchase can become purchased, this one is %s", current.Status)
	}
	account, err := e.activeAccount(ctx, userId, accountId, "account_id")
	if err != nil {
		return nil, err
	}
	if account.Currency != current.Currency {
		return nil, models.NewValidationError("account_id", "account currency %s differs from purchase currency %s", account.Currency, current.Currency)
	}

	updated := *current
	updated.Status = models.PurchaseStatusPurchased
	updated.Price = price
	updated.AccountId = &account.ID
	updated.PurchaseDate = e.now()

	var t *models.Transaction
	if !updated.ExcludeFromCalculation {
		t, err = e.addTransaction(ctx, userId, account, purchaseExpense(&updated))
		if err != nil {
			return nil, err
		}
		updated.TransactionId = &t.TransactionId
	}
	if err := e.store.UpdatePurchase(ctx, &updated); err != nil {
		var undo error
		if t != nil {
			undo = e.deleteTransaction(ctx, userId, t)
		}
		return nil, e.compensationErr(ctx, "TransitionToPurchased", userId, purchaseId, lookupErr("purchase", purchaseId, err), undo)
	}
	if t != nil {
		e.publish(ctx, userId, EntityPurchase, purchaseId, ActionUpdate, t.TransactionId)
	} else {
		e.publish(ctx, userId, EntityPurchase, purchaseId, ActionUpdate)
	}
	return &updated, nil
}

// CancelPurchase cancels a planned or purchased item. A purchased item's
// expense is removed, refunding the account.
func (e *Engine) CancelPurchase(ctx context.Context, purchaseId string) (_ *models.Purchase, err error) {
	ctx, span, userId, err := e.begin(ctx, "Purchase.CancelPurchase")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()
	defer e.lock(ctx, userId)()

	current, err := e.store.GetPurchase(ctx, userId, purchaseId)
	if err != nil {
		return nil, lookupErr("purchase", purchaseId, err)
	}
	if current.Status == models.PurchaseStatusCancelled {
		return nil, models.NewValidationError("status", "purchase is already cancelled")
	}

	linked, err := e.linkedTransaction(ctx, userId, current)
	if err != nil {
		return nil, err
	}
	if linked != nil {
		if err := e.deleteTransaction(ctx, userId, linked); err != nil {
			return nil, err
		}
	}

	updated := *current
	updated.Status = models.PurchaseStatusCancelled
	updated.TransactionId = nil
	if err := e.store.UpdatePurchase(ctx, &updated); err != nil {
		var undo error
		if linked != nil {
			undo = e.restoreTransaction(ctx, userId, linked)
		}
		return nil, e.compensationErr(ctx, "CancelPurchase", userId, purchaseId, lookupErr("purchase", purchaseId, err), undo)
	}
	e.publish(ctx, userId, EntityPurchase, purchaseId, ActionUpdate)
	return &updated, nil
}

// DeletePurchase removes the purchase and then its expense. If the expense
// cannot be removed the purchase is put back.
func (e *Engine) DeletePurchase(ctx context.Context, purchaseId string) (err error) {
	ctx, span, userId, err := e.begin(ctx, "Purchase.DeletePurchase")
	if err != nil {
		return err
	}
	defer func() { endSpan(span, err) }()
	defer e.lock(ctx, userId)()

	current, err := e.store.GetPurchase(ctx, userId, purchaseId)
	if err != nil {
		return lookupErr("purchase", purchaseId, err)
	}
	linked, err := e.linkedTransaction(ctx, userId, current)
	if err != nil {
		return err
	}
	if err := e.store.DeletePurchase(ctx, userId, purchaseId); err != nil {
		return lookupErr("purchase", purchaseId, err)
	}
	if linked != nil {
		if err := e.deleteTransaction(ctx, userId, linked); err != nil {
			undo := e.store.InsertPurchase(ctx, current)
			return e.compensationErr(ctx, "DeletePurchase", userId, purchaseId, err, undo)
		}
	}
	e.publish(ctx, userId, EntityPurchase, purchaseId, ActionDelete)
	return nil
}

// linkPurchaseToTransaction records the purchased Purchase for a transaction
// written by AddTransaction with purchase metadata.
func (e *Engine) linkPurchaseToTransaction(ctx context.Context, userId string, account *models.Account, t *models.Transaction, input models.NewTransaction) (*models.Purchase, error) {
	itemName := strings.TrimSpace(t.Description)
	priority := models.PurchasePriorityMedium
	notes := ""
	if input.Purchase != nil {
		if name := strings.TrimSpace(input.Purchase.ItemName); name != "" {
			itemName = name
		}
		if input.Purchase.Priority.IsValid() {
			priority = input.Purchase.Priority
		}
		notes = input.Purchase.Notes
	}
	if itemName == "" {
		itemName = t.Category
	}
	purchase := &models.Purchase{
		ID:            e.newId(),
		UserId:        userId,
		ItemName:      itemName,
		Category:      t.Category,
		Price:         t.Amount,
		Currency:      account.Currency,
		PurchaseDate:  t.Date,
		Status:        models.PurchaseStatusPurchased,
		Priority:      priority,
		Notes:         notes,
		AccountId:     &account.ID,
		TransactionId: &t.TransactionId,
	}
	if err := e.store.InsertPurchase(ctx, purchase); err != nil {
		return nil, err
	}
	e.publish(ctx, userId, EntityPurchase, purchase.ID, ActionCreate, t.TransactionId)
	return purchase, nil
}

// linkedTransaction returns the purchase's expense, or nil when it has none.
// A dangling link is tolerated so a broken purchase can still be cleaned up.
func (e *Engine) linkedTransaction(ctx context.Context, userId string, p *models.Purchase) (*models.Transaction, error) {
	txnId := p.LinkedTransactionId()
	if txnId == "" {
		return nil, nil
	}
	t, err := e.store.FindTransactionByTransactionId(ctx, userId, txnId)
	if err != nil {
		if models.IsReferenceError(lookupErr("transaction", txnId, err)) {
			e.logger.WithFields(e.fields(ctx, "linkedTransaction", userId)).
				WithField("purchase_id", p.ID).
				Warn(models.CheckPurchaseLink + ": linked transaction " + txnId + " is missing")
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func purchaseExpense(p *models.Purchase) models.NewTransaction {
	category := p.Category
	if category == "" {
		category = models.CategoryPurchase
	}
	date := p.PurchaseDate
	if date.IsZero() {
		date = time.Now()
	}
	return models.NewTransaction{
		Amount:      p.Price,
		Type:        models.TransactionTypeExpense,
		Category:    category,
		Description: p.ItemName,
		Date:        date,
		Tags:        []string{models.TagPurchase},
	}
}
