package storage

import (
	"context"
	"time"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/shopspring/decimal"
)

// Store is the remote persistence collaborator. Every lookup by id returns
// utils.ErrorRecordNotFound when the row does not exist for the user; every
// other failure is a *models.PersistenceError. Returned values are copies.
type Store interface {
	AccountStore
	TransactionStore
	PurchaseStore
	DpsTransferStore
	LendBorrowStore
	ReportStore

	// FetchUserIds lists every user that owns at least one account or record.
	FetchUserIds(ctx context.Context) ([]string, error)
}

type AccountStore interface {
	FetchAccounts(ctx context.Context, userId string) ([]*models.Account, error)
	GetAccount(ctx context.Context, userId, id string) (*models.Account, error)
	InsertAccount(ctx context.Context, account *models.Account) error
	// UpdateAccount writes every column except calculated_balance.
	UpdateAccount(ctx context.Context, account *models.Account) error
	// SetAccountBalance is the only writer of calculated_balance.
	SetAccountBalance(ctx context.Context, userId, id string, balance decimal.Decimal) error
	// DeleteAccount removes the account together with its transactions.
	DeleteAccount(ctx context.Context, userId, id string) error
}

type TransactionStore interface {
	// FetchTransactions returns the user's transactions, limited to one
	// account when accountId is not empty.
	FetchTransactions(ctx context.Context, userId, accountId string) ([]*models.Transaction, error)
	GetTransaction(ctx context.Context, userId, id string) (*models.Transaction, error)
	// FindTransactionByTransactionId looks up by the human-readable correlation id.
	FindTransactionByTransactionId(ctx context.Context, userId, transactionId string) (*models.Transaction, error)
	// FetchTransactionsByGroup returns the transactions tagged [marker, groupId].
	FetchTransactionsByGroup(ctx context.Context, userId, marker, groupId string) ([]*models.Transaction, error)
	InsertTransaction(ctx context.Context, transaction *models.Transaction) error
	UpdateTransaction(ctx context.Context, transaction *models.Transaction) error
	DeleteTransaction(ctx context.Context, userId, id string) error
	// NextSequence returns a creation sequence greater than any issued before for the user.
	NextSequence(ctx context.Context, userId string) (int64, error)
}

type PurchaseStore interface {
	FetchPurchases(ctx context.Context, userId string) ([]*models.Purchase, error)
	GetPurchase(ctx context.Context, userId, id string) (*models.Purchase, error)
	InsertPurchase(ctx context.Context, purchase *models.Purchase) error
	UpdatePurchase(ctx context.Context, purchase *models.Purchase) error
	DeletePurchase(ctx context.Context, userId, id string) error
}

type DpsTransferStore interface {
	// FetchDpsTransfers lists records touching accountId, or all when it is empty.
	FetchDpsTransfers(ctx context.Context, userId, accountId string) ([]*models.DpsTransfer, error)
	InsertDpsTransfer(ctx context.Context, record *models.DpsTransfer) error
	DeleteDpsTransfer(ctx context.Context, userId, id string) error
	// SetDpsTransfersClosed sets closed_at on every record paying into
	// accountId. A nil closedAt reopens them.
	SetDpsTransfersClosed(ctx context.Context, userId, accountId string, closedAt *time.Time) error
}

type LendBorrowStore interface {
	FetchLendBorrows(ctx context.Context, userId string) ([]*models.LendBorrow, error)
	GetLendBorrow(ctx context.Context, userId, id string) (*models.LendBorrow, error)
	InsertLendBorrow(ctx context.Context, record *models.LendBorrow) error
	UpdateLendBorrow(ctx context.Context, record *models.LendBorrow) error
	// FetchOverdueCandidates returns active records of every user due before now.
	FetchOverdueCandidates(ctx context.Context, now time.Time) ([]*models.LendBorrow, error)
}

type ReportStore interface {
	InsertReconciliationReports(ctx context.Context, reports []*models.ReconciliationReport) error
	FetchReconciliationReports(ctx context.Context, userId string) ([]*models.ReconciliationReport, error)
}

// Operation names, used in PersistenceError.Op and for fault injection.
const (
	OpFetchUserIds                = "FetchUserIds"
	OpFetchAccounts               = "FetchAccounts"
	OpGetAccount                  = "GetAccount"
	OpInsertAccount               = "InsertAccount"
	OpUpdateAccount               = "UpdateAccount"
	OpSetAccountBalance           = "SetAccountBalance"
	OpDeleteAccount               = "DeleteAccount"
	OpFetchTransactions           = "FetchTransactions"
	OpGetTransaction              = "GetTransaction"
	OpFetchTransactionsByGroup    = "FetchTransactionsByGroup"
	OpFindTransactionByTxnId      = "FindTransactionByTransactionId"
	OpInsertTransaction           = "InsertTransaction"
	OpUpdateTransaction           = "UpdateTransaction"
	OpDeleteTransaction           = "DeleteTransaction"
	OpNextSequence                = "NextSequence"
	OpFetchPurchases              = "FetchPurchases"
	OpGetPurchase                 = "GetPurchase"
	OpInsertPurchase              = "InsertPurchase"
	OpUpdatePurchase              = "UpdatePurchase"
	OpDeletePurchase              = "DeletePurchase"
	OpFetchDpsTransfers           = "FetchDpsTransfers"
	OpInsertDpsTransfer           = "InsertDpsTransfer"
	OpDeleteDpsTransfer           = "DeleteDpsTransfer"
	OpSetDpsTransfersClosed       = "SetDpsTransfersClosed"
	OpFetchLendBorrows            = "FetchLendBorrows"
	OpGetLendBorrow               = "GetLendBorrow"
	OpInsertLendBorrow            = "InsertLendBorrow"
	OpUpdateLendBorrow            = "UpdateLendBorrow"
	OpFetchOverdueCandidates      = "FetchOverdueCandidates"
	OpInsertReconciliationReports = "InsertReconciliationReports"
	OpFetchReconciliationReports  = "FetchReconciliationReports"
)

// Wrap turns a driver error into a PersistenceError, passing nil and the
// not-found sentinel through untouched.
func Wrap(op string, err error) error {
	if err == nil || IsNotFound(err) {
		return err
	}
	if _, ok := err.(*models.PersistenceError); ok {
		return err
	}
	return &models.PersistenceError{Op: op, Err: err}
}
