package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type TransferState string

const (
	TransferStateInit                  TransferState = "INIT"
	TransferStateValidate              TransferState = "VALIDATE"
	TransferStateWriteSourceLeg        TransferState = "WRITE_SOURCE_LEG"
	TransferStateWriteDestLeg          TransferState = "WRITE_DEST_LEG"
	TransferStateWriteDpsRecord        TransferState = "WRITE_DPS_RECORD"
	TransferStateRecomputeBothBalances TransferState = "RECOMPUTE_BOTH_BALANCES"
	TransferStateDone                  TransferState = "DONE"
	TransferStateFailed                TransferState = "FAILED"
)

// transferRun drives one transfer through its states and remembers what was
// written so a failure can undo it.
type transferRun struct {
	e          *Engine
	ctx        context.Context
	userId     string
	kind       models.TransferKind
	marker     string
	transferId string
	state      TransferState
	from, to   *models.Account
	expense    *models.Transaction
	income     *models.Transaction
	dpsRecord  *models.DpsTransfer
}

func (e *Engine) newTransferRun(ctx context.Context, userId string, kind models.TransferKind) *transferRun {
	marker := models.TagTransfer
	if kind == models.TransferKindDps {
		marker = models.TagDpsTransfer
	}
	return &transferRun{
		e:          e,
		ctx:        ctx,
		userId:     userId,
		kind:       kind,
		marker:     marker,
		transferId: e.newTxnId(),
		state:      TransferStateInit,
	}
}

func (r *transferRun) logFields() logrus.Fields {
	f := r.e.fields(r.ctx, "Transfer", r.userId)
	f["transfer_id"] = r.transferId
	f["kind"] = r.kind
	f["state"] = r.state
	return f
}

func (r *transferRun) advance(next TransferState) {
	r.e.logger.WithFields(r.logFields()).WithField("next", next).Debug("transfer state transition")
	r.state = next
}

func (r *transferRun) legInput(t models.TransactionType, amount decimal.Decimal, date time.Time, note string) models.NewTransaction {
	return models.NewTransaction{
		Amount:      amount,
		Type:        t,
		Category:    "transfer",
		Description: note,
		Date:        date,
		Tags:        []string{r.marker, r.transferId},
	}
}

// execute runs WRITE_SOURCE_LEG through DONE.
func (r *transferRun) execute(fromAmount, toAmount decimal.Decimal, date time.Time, note string) error {
	r.advance(TransferStateWriteSourceLeg)
	expense, err := r.e.insertEntry(r.ctx, r.userId, r.from, r.legInput(models.TransactionTypeExpense, fromAmount, date, note))
	if err != nil {
		return r.fail(err)
	}
	r.expense = expense

	r.advance(TransferStateWriteDestLeg)
	income, err := r.e.insertEntry(r.ctx, r.userId, r.to, r.legInput(models.TransactionTypeIncome, toAmount, date, note))
	if err != nil {
		return r.fail(err)
	}
	r.income = income

	if r.kind == models.TransferKindDps {
		r.advance(TransferStateWriteDpsRecord)
		record := &models.DpsTransfer{
			ID:            r.e.newId(),
			UserId:        r.userId,
			FromAccountId: r.from.ID,
			ToAccountId:   r.to.ID,
			Amount:        fromAmount,
			Date:          date,
			Note:          note,
			TransferId:    r.transferId,
		}
		if err := r.e.store.InsertDpsTransfer(r.ctx, record); err != nil {
			return r.fail(err)
		}
		r.dpsRecord = record
	}

	r.advance(TransferStateRecomputeBothBalances)
	if _, err := r.e.recompute(r.ctx, r.userId, r.from.ID); err != nil {
		return r.fail(err)
	}
	if _, err := r.e.recompute(r.ctx, r.userId, r.to.ID); err != nil {
		return r.fail(err)
	}

	r.advance(TransferStateDone)
	return nil
}

// fail moves to FAILED and removes everything already written, newest first,
// then re-derives both balances so none keeps a partial leg.
func (r *transferRun) fail(cause error) error {
	failedAt := r.state
	r.advance(TransferStateFailed)
	r.e.logger.WithFields(r.logFields()).WithField("failed_at", failedAt).Warn("transfer failed, compensating: " + cause.Error())

	var undo []error
	if r.dpsRecord != nil {
		if err := r.e.store.DeleteDpsTransfer(r.ctx, r.userId, r.dpsRecord.ID); err != nil {
			undo = append(undo, err)
		}
	}
	for _, leg := range []*models.Transaction{r.income, r.expense} {
		if leg == nil {
			continue
		}
		if err := r.e.store.DeleteTransaction(r.ctx, r.userId, leg.ID); err != nil {
			undo = append(undo, err)
		}
	}
	if failedAt == TransferStateRecomputeBothBalances {
		for _, acc := range []*models.Account{r.from, r.to} {
			if _, err := r.e.recompute(r.ctx, r.userId, acc.ID); err != nil {
				undo = append(undo, err)
			}
		}
	}
	return r.e.compensationErr(r.ctx, "Transfer", r.userId, r.transferId, cause, errors.Join(undo...))
}

func (r *transferRun) result() models.Transfer {
	t := models.NewTransfer(r.transferId, r.expense, r.income, r.from, r.to)
	if r.kind == models.TransferKindDps {
		t.Kind = models.TransferKindDps
	}
	return t
}

// loadPair validates both ends of a transfer.
func (r *transferRun) loadPair(fromId, toId string) error {
	r.advance(TransferStateValidate)
	from, err := r.e.activeAccount(r.ctx, r.userId, fromId, "from_account_id")
	if err != nil {
		return err
	}
	to, err := r.e.activeAccount(r.ctx, r.userId, toId, "to_account_id")
	if err != nil {
		return err
	}
	r.from, r.to = from, to
	return nil
}

func (e *Engine) transferDate(d time.Time) time.Time {
	if d.IsZero() {
		return e.now()
	}
	return d
}

// TransferCurrency moves FromAmount out of one account and FromAmount ×
// ExchangeRate into an account in another currency.
func (e *Engine) TransferCurrency(ctx context.Context, input models.NewCurrencyTransfer) (_ *models.Transfer, err error) {
	ctx, span, userId, err := e.begin(ctx, "Transfer.TransferCurrency")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()

	if err := input.Validate(); err != nil {
		return nil, err
	}
	defer e.lock(ctx, userId)()

	run := e.newTransferRun(ctx, userId, models.TransferKindCurrency)
	if err := run.loadPair(input.FromAccountId, input.ToAccountId); err != nil {
		return nil, err
	}
	if run.from.Currency == run.to.Currency {
		return nil, &models.WrongTransferTypeError{Requested: models.TransferKindCurrency, Suggested: models.TransferKindInBetween}
	}
	toAmount := input.ToAmount()
	if !toAmount.IsPositive() {
		return nil, models.NewValidationError("exchange_rate", "converted amount rounds to zero")
	}
	if err := run.execute(input.FromAmount, toAmount, e.transferDate(input.Date), input.Note); err != nil {
		return nil, err
	}

	result := run.result()
	e.publish(ctx, userId, EntityTransfer, run.transferId, ActionCreate, run.expense.TransactionId, run.income.TransactionId)
	return &result, nil
}

// TransferInBetween moves the same amount between two accounts in one currency.
func (e *Engine) TransferInBetween(ctx context.Context, input models.NewInBetweenTransfer) (_ *models.Transfer, err error) {
	ctx, span, userId, err := e.begin(ctx, "Transfer.TransferInBetween")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()

	if err := input.Validate(); err != nil {
		return nil, err
	}
	defer e.lock(ctx, userId)()

	run := e.newTransferRun(ctx, userId, models.TransferKindInBetween)
	if err := run.loadPair(input.FromAccountId, input.ToAccountId); err != nil {
		return nil, err
	}
	if run.from.Currency != run.to.Currency {
		return nil, &models.WrongTransferTypeError{Requested: models.TransferKindInBetween, Suggested: models.TransferKindCurrency}
	}
	if err := run.execute(input.Amount, input.Amount, e.transferDate(input.Date), input.Note); err != nil {
		return nil, err
	}

	result := run.result()
	e.publish(ctx, userId, EntityTransfer, run.transferId, ActionCreate, run.expense.TransactionId, run.income.TransactionId)
	return &result, nil
}

// TransferDps contributes to the main account's DPS savings account. Both
// legs carry the dps_transfer marker and a DpsTransfer record is kept.
func (e *Engine) TransferDps(ctx context.Context, input models.NewDpsTransfer) (_ *models.DpsTransfer, err error) {
	ctx, span, userId, err := e.begin(ctx, "Transfer.TransferDps")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()

	if err := input.Validate(); err != nil {
		return nil, err
	}
	defer e.lock(ctx, userId)()

	run := e.newTransferRun(ctx, userId, models.TransferKindDps)
	run.advance(TransferStateValidate)
	main, err := e.activeAccount(ctx, userId, input.MainAccountId, "main_account_id")
	if err != nil {
		return nil, err
	}
	if !main.HasDps || main.LinkedDpsAccountId() == "" {
		return nil, models.NewValidationError("main_account_id", "DPS is not enabled on account %q", main.Name)
	}
	savings, err := e.store.GetAccount(ctx, userId, main.LinkedDpsAccountId())
	if err != nil {
		return nil, lookupErr("account", main.LinkedDpsAccountId(), err)
	}
	run.from, run.to = main, savings

	if err := run.execute(input.Amount, input.Amount, e.transferDate(input.Date), input.Note); err != nil {
		return nil, err
	}
	e.publish(ctx, userId, EntityDpsTransfer, run.dpsRecord.ID, ActionCreate, run.expense.TransactionId, run.income.TransactionId)
	return run.dpsRecord, nil
}

// ListTransfers regroups transfer legs. Malformed groups are left out of the
// result and returned as violations.
func (e *Engine) ListTransfers(ctx context.Context) (_ []models.Transfer, _ []*models.InvariantViolation, err error) {
	ctx, span, userId, err := e.begin(ctx, "Transfer.ListTransfers")
	if err != nil {
		return nil, nil, err
	}
	defer func() { endSpan(span, err) }()

	accounts, err := e.store.FetchAccounts(ctx, userId)
	if err != nil {
		return nil, nil, err
	}
	transactions, err := e.store.FetchTransactions(ctx, userId, "")
	if err != nil {
		return nil, nil, err
	}
	transfers, violations := models.GroupTransfers(models.TagTransfer, transactions, models.AccountIndex(accounts))
	for _, v := range violations {
		e.logger.WithFields(e.fields(ctx, "ListTransfers", userId)).
			WithFields(logrus.Fields{"check": v.Check, "group_id": v.EntityId}).
			Warn(v.Details)
	}
	return transfers, violations, nil
}

func (e *Engine) ListDpsTransfers(ctx context.Context, accountId string) (_ []*models.DpsTransfer, err error) {
	ctx, span, userId, err := e.begin(ctx, "Transfer.ListDpsTransfers")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()

	return e.store.FetchDpsTransfers(ctx, userId, accountId)
}

// DeleteTransfer removes both legs of a transfer and recomputes the accounts
// involved. A malformed group is refused with its InvariantViolation unless
// force is set, in which case whatever legs exist are removed.
func (e *Engine) DeleteTransfer(ctx context.Context, transferId string, force bool) (err error) {
	ctx, span, userId, err := e.begin(ctx, "Transfer.DeleteTransfer")
	if err != nil {
		return err
	}
	defer func() { endSpan(span, err) }()
	defer e.lock(ctx, userId)()

	legs, err := e.store.FetchTransactionsByGroup(ctx, userId, models.TagTransfer, transferId)
	if err != nil {
		return err
	}
	if len(legs) == 0 {
		return &models.ReferenceError{Entity: "transfer", Id: transferId}
	}
	if !force {
		if violation := checkPair(transferId, legs); violation != nil {
			return violation
		}
	}

	var deleted []*models.Transaction
	for _, leg := range legs {
		if err := e.store.DeleteTransaction(ctx, userId, leg.ID); err != nil {
			var undo []error
			for _, d := range deleted {
				if uerr := e.store.InsertTransaction(ctx, d); uerr != nil {
					undo = append(undo, uerr)
				}
			}
			return e.compensationErr(ctx, "DeleteTransfer", userId, transferId, err, errors.Join(undo...))
		}
		deleted = append(deleted, leg)
	}

	var recomputeErrs []error
	seen := map[string]bool{}
	for _, leg := range legs {
		if seen[leg.AccountId] {
			continue
		}
		seen[leg.AccountId] = true
		if _, err := e.recompute(ctx, userId, leg.AccountId); err != nil && !models.IsReferenceError(err) {
			recomputeErrs = append(recomputeErrs, err)
		}
	}
	if len(recomputeErrs) > 0 {
		// put the legs back so no balance is left half-applied
		var undo []error
		for _, d := range deleted {
			if uerr := e.restoreTransaction(ctx, userId, d); uerr != nil {
				undo = append(undo, uerr)
			}
		}
		return e.compensationErr(ctx, "DeleteTransfer", userId, transferId, errors.Join(recomputeErrs...), errors.Join(undo...))
	}

	e.publish(ctx, userId, EntityTransfer, transferId, ActionDelete)
	return nil
}

// checkPair applies the well-formed pair rule to one group.
func checkPair(transferId string, legs []*models.Transaction) *models.InvariantViolation {
	if len(legs) != 2 {
		return &models.InvariantViolation{Check: models.CheckTransferGroup, EntityId: transferId, Details: "transfer group does not have exactly 2 legs"}
	}
	if legs[0].Type == legs[1].Type {
		return &models.InvariantViolation{Check: models.CheckTransferGroup, EntityId: transferId, Details: "transfer legs have the same type"}
	}
	return nil
}
