package workflow

import (
	"context"
	"errors"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CashAccountName is used for the account auto-created as a DPS deletion destination.
const CashAccountName = "Cash Account"

// EnableDps links a savings sub-account to the account: either a new hidden
// one or the existing account named by config.SavingsAccountId.
func (e *Engine) EnableDps(ctx context.Context, accountId string, cfg models.DpsConfig) (_ *models.Account, err error) {
	ctx, span, userId, err := e.begin(ctx, "Dps.EnableDps")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	defer e.lock(ctx, userId)()

	accounts, err := e.store.FetchAccounts(ctx, userId)
	if err != nil {
		return nil, err
	}
	index := models.AccountIndex(accounts)
	hidden := models.HiddenDpsAccountIds(accounts)

	parent, ok := index[accountId]
	if !ok {
		return nil, &models.ReferenceError{Entity: "account", Id: accountId}
	}
	if !parent.IsActive {
		return nil, models.NewValidationError("id", "account %q is inactive", parent.Name)
	}
	if parent.HasDps || parent.LinkedDpsAccountId() != "" {
		return nil, models.NewValidationError("id", "DPS is already enabled on account %q", parent.Name)
	}
	if hidden[parent.ID] {
		return nil, models.NewValidationError("id", "a DPS savings account cannot have its own DPS")
	}

	var savings *models.Account
	created := false
	if cfg.SavingsAccountId != "" {
		savings, ok = index[cfg.SavingsAccountId]
		if !ok {
			return nil, &models.ReferenceError{Entity: "account", Id: cfg.SavingsAccountId}
		}
		switch {
		case savings.ID == parent.ID:
			return nil, models.NewValidationError("dps_savings_account_id", "an account cannot be its own DPS account")
		case savings.HasDps || savings.LinkedDpsAccountId() != "":
			return nil, models.NewValidationError("dps_savings_account_id", "account %q has DPS of its own", savings.Name)
		case hidden[savings.ID]:
			return nil, models.NewValidationError("dps_savings_account_id", "account %q is already a DPS account", savings.Name)
		case savings.Currency != parent.Currency:
			return nil, models.NewValidationError("dps_savings_account_id", "currency %s differs from %s", savings.Currency, parent.Currency)
		}
	} else {
		savings = &models.Account{
			ID:                e.newId(),
			UserId:            userId,
			Name:              parent.Name + " DPS",
			Type:              models.AccountTypeSavings,
			Currency:          parent.Currency,
			InitialBalance:    decimal.Zero,
			CalculatedBalance: decimal.Zero,
			IsActive:          true,
		}
		if err := e.store.InsertAccount(ctx, savings); err != nil {
			return nil, err
		}
		created = true
	}

	updated := *parent
	updated.ApplyDps(cfg, savings.ID)
	if err := e.store.UpdateAccount(ctx, &updated); err != nil {
		var undo error
		if created {
			undo = e.store.DeleteAccount(ctx, userId, savings.ID)
		}
		return nil, e.compensationErr(ctx, "EnableDps", userId, parent.ID, err, undo)
	}

	e.logger.WithFields(e.fields(ctx, "EnableDps", userId)).
		WithFields(logrus.Fields{"account_id": parent.ID, "dps_account_id": savings.ID, "created": created}).
		Info("DPS enabled")
	e.publish(ctx, userId, EntityAccount, parent.ID, ActionUpdate, savings.ID)
	return &updated, nil
}

// DisableDps clears the DPS fields. The savings account and its balance
// stay and the account shows up in listings again.
func (e *Engine) DisableDps(ctx context.Context, accountId string) (_ *models.Account, err error) {
	ctx, span, userId, err := e.begin(ctx, "Dps.DisableDps")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()
	defer e.lock(ctx, userId)()

	parent, err := e.store.GetAccount(ctx, userId, accountId)
	if err != nil {
		return nil, lookupErr("account", accountId, err)
	}
	if !parent.HasDps && parent.LinkedDpsAccountId() == "" {
		return nil, models.NewValidationError("id", "DPS is not enabled on account %q", parent.Name)
	}
	updated := *parent
	updated.ClearDps()
	if err := e.store.UpdateAccount(ctx, &updated); err != nil {
		return nil, lookupErr("account", accountId, err)
	}
	e.publish(ctx, userId, EntityAccount, accountId, ActionUpdate, parent.LinkedDpsAccountId())
	return &updated, nil
}

// ListVisibleAccounts hides DPS savings accounts.
func (e *Engine) ListVisibleAccounts(ctx context.Context) (_ []*models.Account, err error) {
	ctx, span, userId, err := e.begin(ctx, "Dps.ListVisibleAccounts")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()

	accounts, err := e.store.FetchAccounts(ctx, userId)
	if err != nil {
		return nil, err
	}
	return models.VisibleAccounts(accounts), nil
}

type DpsDeletionResult struct {
	DestinationAccountId string              `json:"destination_account_id"`
	CreatedCashAccount   bool                `json:"created_cash_account"`
	Amount               decimal.Decimal     `json:"amount"`
	Transaction          *models.Transaction `json:"transaction,omitempty"`
}

// dpsDeletion tracks the completed steps of DeleteDpsWithTransfer.
type dpsDeletion struct {
	e           *Engine
	ctx         context.Context
	userId      string
	parent      *models.Account
	dps         *models.Account
	destination *models.Account
	createdCash bool
	moved       *models.Transaction
	unlinked    bool
	closed      bool
}

// DeleteDpsWithTransfer moves the DPS account's balance to the main account
// or to a cash account in the same currency, unlinks it and deletes it. Any
// failure undoes the completed steps; the DPS account is never deleted unless
// its balance has a recorded destination.
func (e *Engine) DeleteDpsWithTransfer(ctx context.Context, mainAccountId string, destination models.DpsDestination) (_ *DpsDeletionResult, err error) {
	ctx, span, userId, err := e.begin(ctx, "Dps.DeleteDpsWithTransfer")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()

	if !destination.IsValid() {
		return nil, models.NewValidationError("destination", "must be main or cash")
	}
	defer e.lock(ctx, userId)()

	parent, err := e.store.GetAccount(ctx, userId, mainAccountId)
	if err != nil {
		return nil, lookupErr("account", mainAccountId, err)
	}
	dpsId := parent.LinkedDpsAccountId()
	if dpsId == "" {
		return nil, models.NewValidationError("main_account_id", "account %q has no DPS account", parent.Name)
	}
	dps, err := e.store.GetAccount(ctx, userId, dpsId)
	if err != nil {
		return nil, lookupErr("account", dpsId, err)
	}
	if err := e.refuseLinkedPurchase(ctx, userId, func(p *models.Purchase) bool { return p.LinkedAccountId() == dps.ID }); err != nil {
		return nil, err
	}

	// re-derive instead of trusting the stored balance
	history, err := e.store.FetchTransactions(ctx, userId, dps.ID)
	if err != nil {
		return nil, err
	}
	balance := models.ProjectBalance(dps, history)
	if !balance.Equal(dps.CalculatedBalance) {
		e.logger.WithFields(e.fields(ctx, "DeleteDpsWithTransfer", userId)).
			WithFields(logrus.Fields{"account_id": dps.ID, "stored": dps.CalculatedBalance.String(), "derived": balance.String()}).
			Warn(models.CheckBalanceDrift)
	}

	op := &dpsDeletion{e: e, ctx: ctx, userId: userId, parent: parent, dps: dps}
	if err := op.resolveDestination(destination); err != nil {
		return nil, op.rollback(err)
	}
	if err := op.moveBalance(balance); err != nil {
		return nil, op.rollback(err)
	}
	if err := op.unlink(); err != nil {
		return nil, op.rollback(err)
	}
	if err := op.closeHistory(); err != nil {
		return nil, op.rollback(err)
	}
	if err := e.store.DeleteAccount(ctx, userId, dps.ID); err != nil {
		return nil, op.rollback(lookupErr("account", dps.ID, err))
	}

	e.logger.WithFields(e.fields(ctx, "DeleteDpsWithTransfer", userId)).
		WithFields(logrus.Fields{"account_id": parent.ID, "dps_account_id": dps.ID, "destination": op.destination.ID, "amount": balance.String()}).
		Info("DPS account deleted")
	e.publish(ctx, userId, EntityAccount, dps.ID, ActionDelete, parent.ID, op.destination.ID)

	return &DpsDeletionResult{
		DestinationAccountId: op.destination.ID,
		CreatedCashAccount:   op.createdCash,
		Amount:               balance,
		Transaction:          op.moved,
	}, nil
}

func (op *dpsDeletion) resolveDestination(destination models.DpsDestination) error {
	if destination == models.DpsDestinationMain {
		op.destination = op.parent
		return nil
	}
	cash, created, err := op.e.findOrCreateCashAccount(op.ctx, op.userId, op.dps.Currency)
	if err != nil {
		return err
	}
	op.destination, op.createdCash = cash, created
	return nil
}

// moveBalance records where the balance goes: an income for a positive
// balance, an expense for an overdrawn one, nothing for zero.
func (op *dpsDeletion) moveBalance(balance decimal.Decimal) error {
	if balance.IsZero() {
		return nil
	}
	kind := models.TransactionTypeIncome
	if balance.IsNegative() {
		kind = models.TransactionTypeExpense
	}
	t, err := op.e.addTransaction(op.ctx, op.userId, op.destination, models.NewTransaction{
		Amount:      balance.Abs(),
		Type:        kind,
		Category:    "dps",
		Description: "Balance of deleted DPS account " + op.dps.Name,
		Date:        op.e.now(),
		Tags:        []string{models.TagDpsDeletion, op.dps.ID},
	})
	if err != nil {
		return err
	}
	op.moved = t
	return nil
}

func (op *dpsDeletion) unlink() error {
	updated := *op.parent
	updated.ClearDps()
	if err := op.e.store.UpdateAccount(op.ctx, &updated); err != nil {
		return err
	}
	op.unlinked = true
	return nil
}

// closeHistory marks the DPS transfer records into the account as closed,
// since deleting the account removes their income legs.
func (op *dpsDeletion) closeHistory() error {
	now := op.e.now()
	if err := op.e.store.SetDpsTransfersClosed(op.ctx, op.userId, op.dps.ID, &now); err != nil {
		return err
	}
	op.closed = true
	return nil
}

// rollback undoes the completed steps in reverse order.
func (op *dpsDeletion) rollback(cause error) error {
	var undo []error
	if op.closed {
		if err := op.e.store.SetDpsTransfersClosed(op.ctx, op.userId, op.dps.ID, nil); err != nil {
			undo = append(undo, err)
		}
	}
	if op.unlinked {
		if err := op.e.store.UpdateAccount(op.ctx, op.parent); err != nil {
			undo = append(undo, err)
		}
	}
	if op.moved != nil {
		if err := op.e.deleteTransaction(op.ctx, op.userId, op.moved); err != nil {
			undo = append(undo, err)
		}
	}
	if op.createdCash {
		if err := op.e.store.DeleteAccount(op.ctx, op.userId, op.destination.ID); err != nil {
			undo = append(undo, err)
		}
	}
	return op.e.compensationErr(op.ctx, "DeleteDpsWithTransfer", op.userId, op.dps.ID, cause, errors.Join(undo...))
}

// findOrCreateCashAccount returns an active, visible cash account in the
// currency, creating one when there is none.
func (e *Engine) findOrCreateCashAccount(ctx context.Context, userId, currency string) (*models.Account, bool, error) {
	accounts, err := e.store.FetchAccounts(ctx, userId)
	if err != nil {
		return nil, false, err
	}
	for _, a := range models.VisibleAccounts(accounts) {
		if a.Type == models.AccountTypeCash && a.Currency == currency && a.IsActive {
			return a, false, nil
		}
	}
	cash := &models.Account{
		ID:                e.newId(),
		UserId:            userId,
		Name:              CashAccountName,
		Type:              models.AccountTypeCash,
		Currency:          currency,
		InitialBalance:    decimal.Zero,
		CalculatedBalance: decimal.Zero,
		IsActive:          true,
	}
	if err := e.store.InsertAccount(ctx, cash); err != nil {
		return nil, false, err
	}
	return cash, true, nil
}
