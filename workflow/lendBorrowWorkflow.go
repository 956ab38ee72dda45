package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/sirupsen/logrus"
)

// LendBorrow records track money owed to or by a person. They do not move
// funds between accounts.

func (e *Engine) CreateLendBorrow(ctx context.Context, input models.NewLendBorrow) (_ *models.LendBorrow, err error) {
	ctx, span, userId, err := e.begin(ctx, "LendBorrow.CreateLendBorrow")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()

	if err := input.Validate(); err != nil {
		return nil, err
	}
	record := &models.LendBorrow{
		ID:         e.newId(),
		UserId:     userId,
		PersonName: input.PersonName,
		Type:       input.Type,
		Amount:     input.Amount,
		Currency:   input.Currency,
		Status:     models.LendBorrowStatusActive,
		DueDate:    input.DueDate,
		Notes:      input.Notes,
	}
	if err := e.store.InsertLendBorrow(ctx, record); err != nil {
		return nil, err
	}
	e.publish(ctx, userId, EntityLendBorrow, record.ID, ActionCreate)
	return record, nil
}

func (e *Engine) ListLendBorrows(ctx context.Context) (_ []*models.LendBorrow, err error) {
	ctx, span, userId, err := e.begin(ctx, "LendBorrow.ListLendBorrows")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()

	return e.store.FetchLendBorrows(ctx, userId)
}

// SettleLendBorrow closes an active or overdue record.
func (e *Engine) SettleLendBorrow(ctx context.Context, id string) (_ *models.LendBorrow, err error) {
	ctx, span, userId, err := e.begin(ctx, "LendBorrow.SettleLendBorrow")
	if err != nil {
		return nil, err
	}
	defer func() { endSpan(span, err) }()

	record, err := e.store.GetLendBorrow(ctx, userId, id)
	if err != nil {
		return nil, lookupErr("lend_borrow", id, err)
	}
	if record.Status == models.LendBorrowStatusSettled {
		return nil, models.NewValidationError("status", "record is already settled")
	}
	now := e.now()
	record.Status = models.LendBorrowStatusSettled
	record.SettledAt = &now
	if err := e.store.UpdateLendBorrow(ctx, record); err != nil {
		return nil, lookupErr("lend_borrow", id, err)
	}
	e.publish(ctx, userId, EntityLendBorrow, id, ActionUpdate)
	return record, nil
}

// MarkOverdue persists status=overdue for every active record of every user
// whose due date is before now. It keeps going past individual failures and
// returns how many records were marked.
func (e *Engine) MarkOverdue(ctx context.Context, now time.Time) (_ int, err error) {
	ctx, span := e.tracer.Start(ctx, "LendBorrow.MarkOverdue")
	defer func() { endSpan(span, err) }()

	candidates, err := e.store.FetchOverdueCandidates(ctx, now)
	if err != nil {
		return 0, err
	}
	marked := 0
	var errs []error
	for _, record := range candidates {
		if !record.IsOverdue(now) {
			continue
		}
		record.Status = models.LendBorrowStatusOverdue
		if err := e.store.UpdateLendBorrow(ctx, record); err != nil {
			errs = append(errs, err)
			continue
		}
		marked++
		e.publish(ctx, record.UserId, EntityLendBorrow, record.ID, ActionUpdate)
	}
	e.logger.WithFields(logrus.Fields{
		"field":      "MarkOverdue",
		"candidates": len(candidates),
		"marked":     marked,
		"failed":     len(errs),
	}).Info("overdue pass finished")
	return marked, errors.Join(errs...)
}
