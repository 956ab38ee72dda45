// Package sqlstore implements storage.Store on gorm (MySQL in production,
// SQLite locally and in tests).
package sqlstore

import (
	"context"
	"errors"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/storage"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db *gorm.DB
}

var _ storage.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// sqlite reports constraint failures as plain text
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// wrap maps driver errors onto the storage contract.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorRecordNotFound
	}
	if isDuplicateKeyErr(err) {
		return &models.PersistenceError{Op: op, Err: errors.Join(utils.ErrorDuplicateKey, err)}
	}
	return storage.Wrap(op, err)
}

// affected turns a zero-row write into not found.
func affected(op string, result *gorm.DB) error {
	if result.Error != nil {
		return wrap(op, result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

func (s *Store) FetchUserIds(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Raw(
		"SELECT user_id FROM accounts UNION SELECT user_id FROM purchases UNION SELECT user_id FROM lend_borrows ORDER BY user_id",
	).Scan(&ids).Error
	return ids, wrap(storage.OpFetchUserIds, err)
}

// accounts

func (s *Store) FetchAccounts(ctx context.Context, userId string) ([]*models.Account, error) {
	var accounts []*models.Account
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("created_at, id").
		Find(&accounts).Error
	return accounts, wrap(storage.OpFetchAccounts, err)
}

func (s *Store) GetAccount(ctx context.Context, userId, id string) (*models.Account, error) {
	var account models.Account
	err := s.db.WithContext(ctx).Where("user_id = ? AND id = ?", userId, id).First(&account).Error
	if err != nil {
		return nil, wrap(storage.OpGetAccount, err)
	}
	return &account, nil
}

func (s *Store) InsertAccount(ctx context.Context, account *models.Account) error {
	return wrap(storage.OpInsertAccount, s.db.WithContext(ctx).Create(account).Error)
}

func (s *Store) UpdateAccount(ctx context.Context, account *models.Account) error {
	result := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("user_id = ? AND id = ?", account.UserId, account.ID).
		Select("*").
		Omit("id", "user_id", "calculated_balance", "created_at").
		Updates(account)
	return affected(storage.OpUpdateAccount, result)
}

func (s *Store) SetAccountBalance(ctx context.Context, userId, id string, balance decimal.Decimal) error {
	result := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("user_id = ? AND id = ?", userId, id).
		Updates(map[string]interface{}{
			"calculated_balance": balance,
			"updated_at":         time.Now(),
		})
	return affected(storage.OpSetAccountBalance, result)
}

func (s *Store) DeleteAccount(ctx context.Context, userId, id string) error {
	return wrap(storage.OpDeleteAccount, s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND account_id = ?", userId, id).Delete(&models.Transaction{}).Error; err != nil {
			return err
		}
		result := tx.Where("user_id = ? AND id = ?", userId, id).Delete(&models.Account{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	}))
}

// transactions

func (s *Store) FetchTransactions(ctx context.Context, userId, accountId string) ([]*models.Transaction, error) {
	var transactions []*models.Transaction
	query := s.db.WithContext(ctx).Where("user_id = ?", userId)
	if accountId != "" {
		query = query.Where("account_id = ?", accountId)
	}
	err := query.Order("date, sequence, id").Find(&transactions).Error
	return transactions, wrap(storage.OpFetchTransactions, err)
}

func (s *Store) GetTransaction(ctx context.Context, userId, id string) (*models.Transaction, error) {
	var transaction models.Transaction
	err := s.db.WithContext(ctx).Where("user_id = ? AND id = ?", userId, id).First(&transaction).Error
	if err != nil {
		return nil, wrap(storage.OpGetTransaction, err)
	}
	return &transaction, nil
}

func (s *Store) FindTransactionByTransactionId(ctx context.Context, userId, transactionId string) (*models.Transaction, error) {
	var transaction models.Transaction
	err := s.db.WithContext(ctx).Where("user_id = ? AND transaction_id = ?", userId, transactionId).First(&transaction).Error
	if err != nil {
		return nil, wrap(storage.OpFindTransactionByTxnId, err)
	}
	return &transaction, nil
}

// FetchTransactionsByGroup narrows on the serialized tag text and confirms
// the position of the tags in Go, which keeps the query portable.
func (s *Store) FetchTransactionsByGroup(ctx context.Context, userId, marker, groupId string) ([]*models.Transaction, error) {
	var candidates []*models.Transaction
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND tags LIKE ?", userId, "%"+groupId+"%").
		Order("date, sequence, id").
		Find(&candidates).Error
	if err != nil {
		return nil, wrap(storage.OpFetchTransactionsByGroup, err)
	}
	var result []*models.Transaction
	for _, t := range candidates {
		if m, g, ok := t.GroupKey(); ok && m == marker && g == groupId {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *Store) InsertTransaction(ctx context.Context, transaction *models.Transaction) error {
	return wrap(storage.OpInsertTransaction, s.db.WithContext(ctx).Create(transaction).Error)
}

// UpdateTransaction writes the metadata columns only.
func (s *Store) UpdateTransaction(ctx context.Context, transaction *models.Transaction) error {
	result := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("user_id = ? AND id = ?", transaction.UserId, transaction.ID).
		Select("description", "category", "date", "tags", "updated_at").
		Updates(transaction)
	return affected(storage.OpUpdateTransaction, result)
}

func (s *Store) DeleteTransaction(ctx context.Context, userId, id string) error {
	result := s.db.WithContext(ctx).Where("user_id = ? AND id = ?", userId, id).Delete(&models.Transaction{})
	return affected(storage.OpDeleteTransaction, result)
}

// NextSequence increments the user's counter row inside a transaction, so
// concurrent writers never receive the same number. A missing row is seeded
// from the highest stored sequence.
func (s *Store) NextSequence(ctx context.Context, userId string) (int64, error) {
	var next int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bump := func() (int64, error) {
			result := tx.Model(&models.SequenceCounter{}).
				Where("user_id = ?", userId).
				UpdateColumn("last_sequence", gorm.Expr("last_sequence + 1"))
			return result.RowsAffected, result.Error
		}
		n, err := bump()
		if err != nil {
			return err
		}
		if n == 0 {
			var seed int64
			err := tx.Model(&models.Transaction{}).
				Where("user_id = ?", userId).
				Select("COALESCE(MAX(sequence), 0)").
				Scan(&seed).Error
			if err != nil {
				return err
			}
			counter := models.SequenceCounter{UserId: userId, LastSequence: seed}
			// another writer may have created the row first
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&counter).Error; err != nil {
				return err
			}
			if _, err := bump(); err != nil {
				return err
			}
		}
		return tx.Model(&models.SequenceCounter{}).
			Where("user_id = ?", userId).
			Select("last_sequence").
			Scan(&next).Error
	})
	if err != nil {
		return 0, wrap(storage.OpNextSequence, err)
	}
	return next, nil
}

// purchases

func (s *Store) FetchPurchases(ctx context.Context, userId string) ([]*models.Purchase, error) {
	var purchases []*models.Purchase
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("purchase_date DESC, id").
		Find(&purchases).Error
	return purchases, wrap(storage.OpFetchPurchases, err)
}

func (s *Store) GetPurchase(ctx context.Context, userId, id string) (*models.Purchase, error) {
	var purchase models.Purchase
	err := s.db.WithContext(ctx).Where("user_id = ? AND id = ?", userId, id).First(&purchase).Error
	if err != nil {
		return nil, wrap(storage.OpGetPurchase, err)
	}
	return &purchase, nil
}

func (s *Store) InsertPurchase(ctx context.Context, purchase *models.Purchase) error {
	return wrap(storage.OpInsertPurchase, s.db.WithContext(ctx).Create(purchase).Error)
}

func (s *Store) UpdatePurchase(ctx context.Context, purchase *models.Purchase) error {
	result := s.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("user_id = ? AND id = ?", purchase.UserId, purchase.ID).
		Select("*").
		Omit("id", "user_id", "created_at").
		Updates(purchase)
	return affected(storage.OpUpdatePurchase, result)
}

func (s *Store) DeletePurchase(ctx context.Context, userId, id string) error {
	result := s.db.WithContext(ctx).Where("user_id = ? AND id = ?", userId, id).Delete(&models.Purchase{})
	return affected(storage.OpDeletePurchase, result)
}

// dps transfers

func (s *Store) FetchDpsTransfers(ctx context.Context, userId, accountId string) ([]*models.DpsTransfer, error) {
	var records []*models.DpsTransfer
	query := s.db.WithContext(ctx).Where("user_id = ?", userId)
	if accountId != "" {
		query = query.Where("from_account_id = ? OR to_account_id = ?", accountId, accountId)
	}
	err := query.Order("date DESC, id").Find(&records).Error
	return records, wrap(storage.OpFetchDpsTransfers, err)
}

func (s *Store) InsertDpsTransfer(ctx context.Context, record *models.DpsTransfer) error {
	return wrap(storage.OpInsertDpsTransfer, s.db.WithContext(ctx).Create(record).Error)
}

func (s *Store) DeleteDpsTransfer(ctx context.Context, userId, id string) error {
	result := s.db.WithContext(ctx).Where("user_id = ? AND id = ?", userId, id).Delete(&models.DpsTransfer{})
	return affected(storage.OpDeleteDpsTransfer, result)
}

func (s *Store) SetDpsTransfersClosed(ctx context.Context, userId, accountId string, closedAt *time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.DpsTransfer{}).
		Where("user_id = ? AND to_account_id = ?", userId, accountId).
		Update("closed_at", closedAt).Error
	return wrap(storage.OpSetDpsTransfersClosed, err)
}

// lend borrow

func (s *Store) FetchLendBorrows(ctx context.Context, userId string) ([]*models.LendBorrow, error) {
	var records []*models.LendBorrow
	err := s.db.WithContext(ctx).Where("user_id = ?", userId).Order("id").Find(&records).Error
	return records, wrap(storage.OpFetchLendBorrows, err)
}

func (s *Store) GetLendBorrow(ctx context.Context, userId, id string) (*models.LendBorrow, error) {
	var record models.LendBorrow
	err := s.db.WithContext(ctx).Where("user_id = ? AND id = ?", userId, id).First(&record).Error
	if err != nil {
		return nil, wrap(storage.OpGetLendBorrow, err)
	}
	return &record, nil
}

func (s *Store) InsertLendBorrow(ctx context.Context, record *models.LendBorrow) error {
	return wrap(storage.OpInsertLendBorrow, s.db.WithContext(ctx).Create(record).Error)
}

func (s *Store) UpdateLendBorrow(ctx context.Context, record *models.LendBorrow) error {
	result := s.db.WithContext(ctx).Model(&models.LendBorrow{}).
		Where("user_id = ? AND id = ?", record.UserId, record.ID).
		Select("*").
		Omit("id", "user_id", "created_at").
		Updates(record)
	return affected(storage.OpUpdateLendBorrow, result)
}

// FetchOverdueCandidates spans every user; callers run it from batch jobs
// with the owner scope bypassed.
func (s *Store) FetchOverdueCandidates(ctx context.Context, now time.Time) ([]*models.LendBorrow, error) {
	var records []*models.LendBorrow
	err := s.db.WithContext(ctx).
		Where("status = ? AND due_date IS NOT NULL AND due_date < ?", models.LendBorrowStatusActive, now).
		Order("id").
		Find(&records).Error
	return records, wrap(storage.OpFetchOverdueCandidates, err)
}

// reports

func (s *Store) InsertReconciliationReports(ctx context.Context, reports []*models.ReconciliationReport) error {
	if len(reports) == 0 {
		return nil
	}
	return wrap(storage.OpInsertReconciliationReports, s.db.WithContext(ctx).CreateInBatches(reports, 100).Error)
}

func (s *Store) FetchReconciliationReports(ctx context.Context, userId string) ([]*models.ReconciliationReport, error) {
	var reports []*models.ReconciliationReport
	err := s.db.WithContext(ctx).Where("user_id = ?", userId).Order("created_at DESC, id").Find(&reports).Error
	return reports, wrap(storage.OpFetchReconciliationReports, err)
}
