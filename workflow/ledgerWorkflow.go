package workflow

import (
	"context"
	"strings"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/storage"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ---- accounts ----

func (e *Engine) CreateAccount(ctx context.Context, input models.NewAccount) (_ *models.Account, err error) {
	ctx, span, userId, err := e.begin(ctx, "Ledger.CreateAccount")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()

	if err := input.Validate(); err != nil {
		return nil, err
	}
	account := &models.Account{
		ID:                e.newId(),
		UserId:            userId,
		Name:              input.Name,
		Type:              input.Type,
		Currency:          input.Currency,
		InitialBalance:    input.InitialBalance,
		CalculatedBalance: input.InitialBalance,
		IsActive:          true,
	}
	if err := e.store.InsertAccount(ctx, account); err != nil {
		return nil, err
	}
	e.publish(ctx, userId, EntityAccount, account.ID, ActionCreate)
	return account, nil
}

func (e *Engine) GetAccount(ctx context.Context, id string) (_ *models.Account, err error) {
	ctx, span, userId, err := e.begin(ctx, "Ledger.GetAccount")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()

	account, err := e.store.GetAccount(ctx, userId, id)
	if err != nil {
		return nil, lookupErr("account", id, err)
	}
	return account, nil
}

// ListAccounts returns every account of the user, DPS sub-accounts included.
func (e *Engine) ListAccounts(ctx context.Context) (_ []*models.Account, err error) {
	ctx, span, userId, err := e.begin(ctx, "Ledger.ListAccounts")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()

	return e.store.FetchAccounts(ctx, userId)
}

// TotalBalances sums active, visible accounts per currency.
func (e *Engine) TotalBalances(ctx context.Context) (_ []models.CurrencyTotal, err error) {
	ctx, span, userId, err := e.begin(ctx, "Ledger.TotalBalances")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()

	accounts, err := e.store.FetchAccounts(ctx, userId)
	if err != nil {
		return nil, err
	}
	return models.TotalBalances(accounts), nil
}

// UpdateAccount edits name, type, activity or initial balance. A new initial
// balance is followed by a recompute; if that fails the edit is reverted.
func (e *Engine) UpdateAccount(ctx context.Context, id string, patch models.AccountPatch) (_ *models.Account, err error) {
	ctx, span, userId, err := e.begin(ctx, "Ledger.UpdateAccount")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()
	defer e.lock(ctx, userId)()

	current, err := e.store.GetAccount(ctx, userId, id)
	if err != nil {
		return nil, lookupErr("account", id, err)
	}
	if err := patch.Validate(current); err != nil {
		return nil, err
	}

	updated := *current
	if patch.Name != nil {
		updated.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Type != nil {
		updated.Type = *patch.Type
	}
	if patch.IsActive != nil {
		updated.IsActive = *patch.IsActive
	}
	balanceEdit := patch.InitialBalance != nil && !patch.InitialBalance.Equal(current.InitialBalance)
	if balanceEdit {
		updated.InitialBalance = *patch.InitialBalance
	}

	if err := e.store.UpdateAccount(ctx, &updated); err != nil {
		return nil, lookupErr("account", id, err)
	}
	if balanceEdit {
		balance, err := e.recompute(ctx, userId, id)
		if err != nil {
			undo := e.store.UpdateAccount(ctx, current)
			return nil, e.compensationErr(ctx, "UpdateAccount", userId, id, err, undo)
		}
		updated.CalculatedBalance = balance
	}
	e.publish(ctx, userId, EntityAccount, id, ActionUpdate)
	return &updated, nil
}

// DeactivateAccount is the soft delete: history stays, aggregates skip it.
func (e *Engine) DeactivateAccount(ctx context.Context, id string) (*models.Account, error) {
	inactive := false
	return e.UpdateAccount(ctx, id, models.AccountPatch{IsActive: &inactive})
}

// DeleteAccount hard-deletes the account and its transactions. DPS parents
// and DPS sub-accounts are refused; they leave through DeleteDpsWithTransfer.
func (e *Engine) DeleteAccount(ctx context.Context, id string) (err error) {
	ctx, span, userId, err := e.begin(ctx, "Ledger.DeleteAccount")
	if err != nil {
		return err
	}
	defer func() { endSpan(span, err) }()
	defer e.lock(ctx, userId)()

	accounts, err := e.store.FetchAccounts(ctx, userId)
	if err != nil {
		return err
	}
	index := models.AccountIndex(accounts)
	account, ok := index[id]
	if !ok {
		return &models.ReferenceError{Entity: "account", Id: id}
	}
	if account.LinkedDpsAccountId() != "" {
		return models.NewValidationError("id", "account has a linked DPS account; delete the DPS account first")
	}
	if models.HiddenDpsAccountIds(accounts)[id] {
		return models.NewValidationError("id", "account is a DPS savings account; use the DPS delete flow")
	}
	if err := e.refuseLinkedPurchase(ctx, userId, func(p *models.Purchase) bool { return p.LinkedAccountId() == id }); err != nil {
		return err
	}

	if err := e.store.DeleteAccount(ctx, userId, id); err != nil {
		return lookupErr("account", id, err)
	}
	e.publish(ctx, userId, EntityAccount, id, ActionDelete)
	return nil
}

// ---- balance ----

// RecomputeBalance re-derives calculated_balance from history.
func (e *Engine) RecomputeBalance(ctx context.Context, accountId string) (_ decimal.Decimal, err error) {
	ctx, span, userId, err := e.begin(ctx, "Ledger.RecomputeBalance")
	if err != nil {
		return decimal.Zero, err
	}
	defer func() { endSpan(span, err) }()
	defer e.lock(ctx, userId)()

	return e.recompute(ctx, userId, accountId)
}

// recompute is the only path that writes calculated_balance.
func (e *Engine) recompute(ctx context.Context, userId, accountId string) (decimal.Decimal, error) {
	account, err := e.store.GetAccount(ctx, userId, accountId)
	if err != nil {
		return decimal.Zero, lookupErr("account", accountId, err)
	}
	transactions, err := e.store.FetchTransactions(ctx, userId, accountId)
	if err != nil {
		return decimal.Zero, err
	}
	balance := models.ProjectBalance(account, transactions)
	if err := e.store.SetAccountBalance(ctx, userId, accountId, balance); err != nil {
		return decimal.Zero, lookupErr("account", accountId, err)
	}
	return balance, nil
}

// ---- transactions ----

func (e *Engine) GetTransaction(ctx context.Context, id string) (_ *models.Transaction, err error) {
	ctx, span, userId, err := e.begin(ctx, "Ledger.GetTransaction")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()

	t, err := e.store.GetTransaction(ctx, userId, id)
	if err != nil {
		return nil, lookupErr("transaction", id, err)
	}
	return t, nil
}

// ListTransactions returns the account's transactions in projection order
// with the running balance after each one.
func (e *Engine) ListTransactions(ctx context.Context, accountId string) (_ []models.RunningBalanceRow, err error) {
	ctx, span, userId, err := e.begin(ctx, "Ledger.ListTransactions")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()

	account, err := e.store.GetAccount(ctx, userId, accountId)
	if err != nil {
		return nil, lookupErr("account", accountId, err)
	}
	transactions, err := e.store.FetchTransactions(ctx, userId, accountId)
	if err != nil {
		return nil, err
	}
	return models.RunningBalances(account, transactions), nil
}

// AddTransaction writes one transaction and recomputes its account. Inputs
// carrying purchase metadata also record a linked purchased Purchase.
func (e *Engine) AddTransaction(ctx context.Context, input models.NewTransaction) (_ *models.Transaction, err error) {
	ctx, span, userId, err := e.begin(ctx, "Ledger.AddTransaction")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()

	if err := input.Validate(); err != nil {
		return nil, err
	}
	if len(input.Tags) > 0 && models.IsReservedTag(input.Tags[0]) && input.Tags[0] != models.TagPurchase {
		return nil, models.NewValidationError("tags", "%q is reserved for engine-created entries", input.Tags[0])
	}
	withPurchase := input.CarriesPurchase()
	if withPurchase && !utils.ContainsString(input.Tags, models.TagPurchase) {
		input.Tags = append([]string{models.TagPurchase}, input.Tags...)
	}

	defer e.lock(ctx, userId)()

	account, err := e.activeAccount(ctx, userId, input.AccountId, "account_id")
	if err != nil {
		return nil, err
	}
	t, err := e.addTransaction(ctx, userId, account, input)
	if err != nil {
		return nil, err
	}
	if withPurchase {
		if _, err := e.linkPurchaseToTransaction(ctx, userId, account, t, input); err != nil {
			undo := e.deleteTransaction(ctx, userId, t)
			return nil, e.compensationErr(ctx, "AddTransaction", userId, t.TransactionId, err, undo)
		}
	}
	e.publish(ctx, userId, EntityTransaction, t.ID, ActionCreate, t.TransactionId)
	return t, nil
}

// UpdateTransaction edits description, category, date and free tags.
func (e *Engine) UpdateTransaction(ctx context.Context, id string, patch models.TransactionPatch) (_ *models.Transaction, err error) {
	ctx, span, userId, err := e.begin(ctx, "Ledger.UpdateTransaction")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()
	defer e.lock(ctx, userId)()

	current, err := e.store.GetTransaction(ctx, userId, id)
	if err != nil {
		return nil, lookupErr("transaction", id, err)
	}
	if err := patch.Validate(current); err != nil {
		return nil, err
	}
	// both legs of a pair share one date
	if _, _, paired := current.GroupKey(); paired && models.IsReservedTag(current.Tags[0]) &&
		patch.Date != nil && !patch.Date.Equal(current.Date) {
		return nil, &models.ImmutableFieldError{Entity: "transfer leg", Field: "date"}
	}

	updated := *current
	updated.Tags = append([]string(nil), current.Tags...)
	patch.Apply(&updated)
	if err := e.store.UpdateTransaction(ctx, &updated); err != nil {
		return nil, lookupErr("transaction", id, err)
	}
	if _, err := e.recompute(ctx, userId, updated.AccountId); err != nil {
		undo := e.store.UpdateTransaction(ctx, current)
		return nil, e.compensationErr(ctx, "UpdateTransaction", userId, current.TransactionId, err, undo)
	}
	e.publish(ctx, userId, EntityTransaction, id, ActionUpdate, updated.TransactionId)
	return &updated, nil
}

// DeleteTransaction removes one transaction and recomputes its account. The
// paired leg of a transfer is left alone; the broken group is reported by
// ListTransfers.
func (e *Engine) DeleteTransaction(ctx context.Context, id string) (err error) {
	ctx, span, userId, err := e.begin(ctx, "Ledger.DeleteTransaction")
	if err != nil {
		return err
	}
	defer func() { endSpan(span, err) }()
	defer e.lock(ctx, userId)()

	t, err := e.store.GetTransaction(ctx, userId, id)
	if err != nil {
		return lookupErr("transaction", id, err)
	}
	if err := e.refuseLinkedPurchase(ctx, userId, func(p *models.Purchase) bool { return p.LinkedTransactionId() == t.TransactionId }); err != nil {
		return err
	}
	if err := e.deleteTransaction(ctx, userId, t); err != nil {
		return err
	}
	if marker, groupId, ok := t.GroupKey(); ok && models.IsReservedTag(marker) {
		e.logger.WithFields(e.fields(ctx, "DeleteTransaction", userId)).
			WithFields(logrus.Fields{"marker": marker, "group_id": groupId}).
			Warn("deleted one leg of a paired entry; the remaining leg is now unpaired")
	}
	e.publish(ctx, userId, EntityTransaction, id, ActionDelete, t.TransactionId)
	return nil
}

// refuseLinkedPurchase fails when a purchase matched by linked still points at
// an expense. Those expenses only leave through CancelPurchase or DeletePurchase.
func (e *Engine) refuseLinkedPurchase(ctx context.Context, userId string, linked func(p *models.Purchase) bool) error {
	purchases, err := e.store.FetchPurchases(ctx, userId)
	if err != nil {
		return err
	}
	for _, p := range purchases {
		if p.LinkedTransactionId() != "" && linked(p) {
			return models.NewValidationError("id", "linked to purchase %q (%s); cancel or delete the purchase instead", p.ItemName, p.ID)
		}
	}
	return nil
}

// activeAccount loads an account that may receive new entries.
func (e *Engine) activeAccount(ctx context.Context, userId, id, field string) (*models.Account, error) {
	account, err := e.store.GetAccount(ctx, userId, id)
	if err != nil {
		return nil, lookupErr("account", id, err)
	}
	if !account.IsActive {
		return nil, models.NewValidationError(field, "account %q is inactive", account.Name)
	}
	return account, nil
}

// insertEntry persists a transaction without touching any balance.
func (e *Engine) insertEntry(ctx context.Context, userId string, account *models.Account, input models.NewTransaction) (*models.Transaction, error) {
	seq, err := e.store.NextSequence(ctx, userId)
	if err != nil {
		return nil, err
	}
	t := &models.Transaction{
		ID:            e.newId(),
		UserId:        userId,
		AccountId:     account.ID,
		Amount:        input.Amount,
		Type:          input.Type,
		Category:      input.Category,
		Description:   input.Description,
		Date:          input.Date,
		Tags:          append([]string(nil), input.Tags...),
		TransactionId: e.newTxnId(),
		Sequence:      seq,
	}
	if err := e.store.InsertTransaction(ctx, t); err != nil {
		// one retry with a fresh correlation id on collision
		if !storage.IsDuplicateKey(err) {
			return nil, err
		}
		t.TransactionId = e.newTxnId()
		if err := e.store.InsertTransaction(ctx, t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// addTransaction is the write+recompute unit. A failed recompute removes the
// written transaction again.
func (e *Engine) addTransaction(ctx context.Context, userId string, account *models.Account, input models.NewTransaction) (*models.Transaction, error) {
	t, err := e.insertEntry(ctx, userId, account, input)
	if err != nil {
		return nil, err
	}
	if _, err := e.recompute(ctx, userId, account.ID); err != nil {
		undo := e.store.DeleteTransaction(ctx, userId, t.ID)
		return nil, e.compensationErr(ctx, "addTransaction", userId, t.TransactionId, err, undo)
	}
	return t, nil
}

// deleteTransaction is the delete+recompute unit. A failed recompute puts
// the transaction back.
func (e *Engine) deleteTransaction(ctx context.Context, userId string, t *models.Transaction) error {
	if err := e.store.DeleteTransaction(ctx, userId, t.ID); err != nil {
		return lookupErr("transaction", t.ID, err)
	}
	if _, err := e.recompute(ctx, userId, t.AccountId); err != nil {
		undo := e.store.InsertTransaction(ctx, t)
		return e.compensationErr(ctx, "deleteTransaction", userId, t.TransactionId, err, undo)
	}
	return nil
}

// restoreTransaction reinserts a deleted transaction as it was.
func (e *Engine) restoreTransaction(ctx context.Context, userId string, t *models.Transaction) error {
	if err := e.store.InsertTransaction(ctx, t); err != nil {
		return err
	}
	_, err := e.recompute(ctx, userId, t.AccountId)
	return err
}
