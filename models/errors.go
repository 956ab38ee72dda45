package models

import (
	"errors"
	"fmt"
)

// ValidationError is a field-level input problem. Nothing was written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ImmutableFieldError rejects a change to amount, account or type after creation.
type ImmutableFieldError struct {
	Entity string
	Field  string
}

func (e *ImmutableFieldError) Error() string {
	return fmt.Sprintf("%s.%s cannot be changed after creation; delete and recreate instead", e.Entity, e.Field)
}

// ReferenceError is a missing account, transaction, purchase or record.
type ReferenceError struct {
	Entity string
	Id     string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Id)
}

// PersistenceError wraps a failure of the remote store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Invariant check names used in InvariantViolation and reconciliation reports.
const (
	CheckBalanceDrift   = "BALANCE_DRIFT"
	CheckTransferGroup  = "TRANSFER_GROUP"
	CheckDpsLink        = "DPS_LINK"
	CheckPurchaseLink   = "PURCHASE_LINK"
	CheckIncompleteStep = "INCOMPLETE_STEP"
)

// InvariantViolation is a data-integrity finding. It is reported, never auto-corrected.
type InvariantViolation struct {
	Check    string `json:"check"`
	EntityId string `json:"entity_id"`
	Details  string `json:"details"`
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant %s violated for %s: %s", e.Check, e.EntityId, e.Details)
}

func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsReferenceError(err error) bool {
	var target *ReferenceError
	return errors.As(err, &target)
}

func IsPersistenceError(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}

func IsImmutableFieldError(err error) bool {
	var target *ImmutableFieldError
	return errors.As(err, &target)
}
