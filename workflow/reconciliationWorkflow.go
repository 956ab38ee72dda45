package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/sirupsen/logrus"
)

// Entity types recorded on reconciliation reports.
const (
	ReportEntityAccount     = "Account"
	ReportEntityTransfer    = "Transfer"
	ReportEntityDpsTransfer = "DpsTransfer"
	ReportEntityPurchase    = "Purchase"
)

// RunReconciliationChecks re-derives the user's ledger and records every
// invariant finding. Nothing is corrected.
func (e *Engine) RunReconciliationChecks(ctx context.Context, userId string) (_ []*models.ReconciliationReport, err error) {
	ctx, span := e.tracer.Start(ctx, "Reconciler.RunReconciliationChecks")
	defer func() { endSpan(span, err) }()

	if userId == "" {
		return nil, models.NewValidationError("user_id", "is required")
	}
	accounts, err := e.store.FetchAccounts(ctx, userId)
	if err != nil {
		return nil, err
	}
	transactions, err := e.store.FetchTransactions(ctx, userId, "")
	if err != nil {
		return nil, err
	}
	purchases, err := e.store.FetchPurchases(ctx, userId)
	if err != nil {
		return nil, err
	}
	dpsRecords, err := e.store.FetchDpsTransfers(ctx, userId, "")
	if err != nil {
		return nil, err
	}

	var findings []reportFinding
	findings = append(findings, checkBalances(accounts, transactions)...)
	findings = append(findings, checkTransferGroups(accounts, transactions, dpsRecords)...)
	findings = append(findings, checkDpsLinks(accounts)...)
	findings = append(findings, checkPurchaseLinks(purchases, transactions)...)

	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	if cid == "" {
		cid = e.newId()
	}
	reports := make([]*models.ReconciliationReport, 0, len(findings))
	for _, f := range findings {
		reports = append(reports, &models.ReconciliationReport{
			ID:            e.newId(),
			UserId:        userId,
			CheckType:     f.violation.Check,
			EntityType:    f.entityType,
			EntityId:      f.violation.EntityId,
			Details:       f.violation.Details,
			CorrelationId: cid,
		})
		e.logger.WithFields(logrus.Fields{
			"field":       "RunReconciliationChecks",
			"user_id":     userId,
			"check":       f.violation.Check,
			"entity_type": f.entityType,
			"entity_id":   f.violation.EntityId,
		}).Warn(f.violation.Details)
	}
	if err := e.store.InsertReconciliationReports(ctx, reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// RunAllReconciliationChecks checks every user with data.
func (e *Engine) RunAllReconciliationChecks(ctx context.Context) (int, error) {
	userIds, err := e.store.FetchUserIds(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	var errs []error
	for _, userId := range userIds {
		reports, err := e.RunReconciliationChecks(utils.SetUserIdInContext(ctx, userId), userId)
		if err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", userId, err))
			continue
		}
		total += len(reports)
	}
	return total, errors.Join(errs...)
}

type reportFinding struct {
	entityType string
	violation  *models.InvariantViolation
}

func checkBalances(accounts []*models.Account, transactions []*models.Transaction) []reportFinding {
	var findings []reportFinding
	for _, a := range accounts {
		derived := models.ProjectBalance(a, transactions)
		if !derived.Equal(a.CalculatedBalance) {
			findings = append(findings, reportFinding{ReportEntityAccount, &models.InvariantViolation{
				Check:    models.CheckBalanceDrift,
				EntityId: a.ID,
				Details:  fmt.Sprintf("stored %s, derived %s", a.CalculatedBalance.String(), derived.String()),
			}})
		}
	}
	return findings
}

func checkTransferGroups(accounts []*models.Account, transactions []*models.Transaction, dpsRecords []*models.DpsTransfer) []reportFinding {
	index := models.AccountIndex(accounts)
	var findings []reportFinding
	_, violations := models.GroupTransfers(models.TagTransfer, transactions, index)
	for _, v := range violations {
		findings = append(findings, reportFinding{ReportEntityTransfer, v})
	}
	_, violations = models.GroupTransfers(models.TagDpsTransfer, withoutClosedDpsLegs(transactions, dpsRecords), index)
	for _, v := range violations {
		findings = append(findings, reportFinding{ReportEntityDpsTransfer, v})
	}
	return findings
}

// withoutClosedDpsLegs drops the remaining expense leg of every DPS transfer
// whose savings account was deleted. A closed group that does not look
// exactly like that is kept so the grouping check reports it.
func withoutClosedDpsLegs(transactions []*models.Transaction, dpsRecords []*models.DpsTransfer) []*models.Transaction {
	legs := map[string][]*models.Transaction{}
	for _, t := range transactions {
		if marker, groupId, ok := t.GroupKey(); ok && marker == models.TagDpsTransfer {
			legs[groupId] = append(legs[groupId], t)
		}
	}
	closed := map[string]bool{}
	for _, r := range dpsRecords {
		if r.ClosedAt == nil {
			continue
		}
		group := legs[r.TransferId]
		if len(group) == 1 && group[0].Type == models.TransactionTypeExpense &&
			group[0].AccountId == r.FromAccountId && group[0].Amount.Equal(r.Amount) {
			closed[r.TransferId] = true
		}
	}
	if len(closed) == 0 {
		return transactions
	}
	kept := make([]*models.Transaction, 0, len(transactions))
	for _, t := range transactions {
		if marker, groupId, ok := t.GroupKey(); ok && marker == models.TagDpsTransfer && closed[groupId] {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}

func checkDpsLinks(accounts []*models.Account) []reportFinding {
	index := models.AccountIndex(accounts)
	linkedBy := map[string][]string{}
	var findings []reportFinding
	flag := func(id, details string) {
		findings = append(findings, reportFinding{ReportEntityAccount, &models.InvariantViolation{
			Check: models.CheckDpsLink, EntityId: id, Details: details,
		}})
	}
	for _, a := range accounts {
		target := a.LinkedDpsAccountId()
		if a.HasDps && target == "" {
			flag(a.ID, "has_dps is set without a DPS account")
			continue
		}
		if target == "" {
			continue
		}
		if !a.HasDps {
			flag(a.ID, "DPS account linked while has_dps is false")
		}
		linked, ok := index[target]
		if !ok {
			flag(a.ID, "DPS account "+target+" does not exist")
			continue
		}
		if linked.LinkedDpsAccountId() != "" {
			flag(a.ID, "DPS account "+target+" links a DPS account of its own")
		}
		linkedBy[target] = append(linkedBy[target], a.ID)
	}
	for target, parents := range linkedBy {
		if len(parents) > 1 {
			flag(target, fmt.Sprintf("DPS account is linked by %d accounts", len(parents)))
		}
	}
	return findings
}

func checkPurchaseLinks(purchases []*models.Purchase, transactions []*models.Transaction) []reportFinding {
	byTxnId := make(map[string]*models.Transaction, len(transactions))
	for _, t := range transactions {
		byTxnId[t.TransactionId] = t
	}
	var findings []reportFinding
	flag := func(id, details string) {
		findings = append(findings, reportFinding{ReportEntityPurchase, &models.InvariantViolation{
			Check: models.CheckPurchaseLink, EntityId: id, Details: details,
		}})
	}
	for _, p := range purchases {
		txnId := p.LinkedTransactionId()
		if !p.MovesFunds() {
			if txnId != "" {
				flag(p.ID, "purchase without funds movement links transaction "+txnId)
			}
			continue
		}
		if txnId == "" {
			flag(p.ID, "purchased item has no linked transaction")
			continue
		}
		t, ok := byTxnId[txnId]
		switch {
		case !ok:
			flag(p.ID, "linked transaction "+txnId+" does not exist")
		case t.Type != models.TransactionTypeExpense:
			flag(p.ID, "linked transaction "+txnId+" is not an expense")
		case !t.Amount.Equal(p.Price):
			flag(p.ID, fmt.Sprintf("linked amount %s differs from price %s", t.Amount.String(), p.Price.String()))
		case p.LinkedAccountId() != "" && t.AccountId != p.LinkedAccountId():
			flag(p.ID, "linked transaction is on account "+t.AccountId)
		}
	}
	return findings
}
