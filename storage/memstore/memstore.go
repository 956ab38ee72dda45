// Package memstore is an in-process storage.Store used by tests and by
// DB_DRIVER=memory. Faults can be injected per operation to exercise
// compensation paths.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/storage"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

type fault struct {
	after  int
	once   bool
	calls  int
	failed int
	err    error
}

type Store struct {
	mu           sync.Mutex
	accounts     map[string]*models.Account
	transactions map[string]*models.Transaction
	purchases    map[string]*models.Purchase
	dpsTransfers map[string]*models.DpsTransfer
	lendBorrows  map[string]*models.LendBorrow
	reports      []*models.ReconciliationReport
	sequences    map[string]int64
	faults       map[string]*fault
	calls        map[string]int
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts:     make(map[string]*models.Account),
		transactions: make(map[string]*models.Transaction),
		purchases:    make(map[string]*models.Purchase),
		dpsTransfers: make(map[string]*models.DpsTransfer),
		lendBorrows:  make(map[string]*models.LendBorrow),
		sequences:    make(map[string]int64),
		faults:       make(map[string]*fault),
		calls:        make(map[string]int),
	}
}

// FailAfter makes op fail with err once it has succeeded n times. The fault
// stays until ClearFaults.
func (s *Store) FailAfter(op string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &fault{after: n, err: err}
}

// FailOnceAfter makes only the call after n successful ones fail.
func (s *Store) FailOnceAfter(op string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &fault{after: n, once: true, err: err}
}

func (s *Store) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[string]*fault)
}

// Calls reports how many times op was invoked, failed calls included.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// enter must be called with s.mu held.
func (s *Store) enter(op string) error {
	s.calls[op]++
	f, ok := s.faults[op]
	if !ok {
		return nil
	}
	f.calls++
	if f.calls <= f.after || (f.once && f.failed > 0) {
		return nil
	}
	f.failed++
	return &models.PersistenceError{Op: op, Err: f.err}
}

func copyAccount(a *models.Account) *models.Account {
	c := *a
	return &c
}

func copyTransaction(t *models.Transaction) *models.Transaction {
	c := *t
	c.Tags = append([]string(nil), t.Tags...)
	return &c
}

func copyPurchase(p *models.Purchase) *models.Purchase {
	c := *p
	return &c
}

func (s *Store) FetchUserIds(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpFetchUserIds); err != nil {
		return nil, err
	}
	var ids []string
	for _, a := range s.accounts {
		ids = append(ids, a.UserId)
	}
	for _, p := range s.purchases {
		ids = append(ids, p.UserId)
	}
	for _, lb := range s.lendBorrows {
		ids = append(ids, lb.UserId)
	}
	ids = utils.UniqueSlice(ids)
	sort.Strings(ids)
	return ids, nil
}

// accounts

func (s *Store) FetchAccounts(ctx context.Context, userId string) ([]*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpFetchAccounts); err != nil {
		return nil, err
	}
	var result []*models.Account
	for _, a := range s.accounts {
		if a.UserId == userId {
			result = append(result, copyAccount(a))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *Store) GetAccount(ctx context.Context, userId, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpGetAccount); err != nil {
		return nil, err
	}
	a, ok := s.accounts[id]
	if !ok || a.UserId != userId {
		return nil, utils.ErrorRecordNotFound
	}
	return copyAccount(a), nil
}

func (s *Store) InsertAccount(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpInsertAccount); err != nil {
		return err
	}
	if _, exists := s.accounts[account.ID]; exists {
		return &models.PersistenceError{Op: storage.OpInsertAccount, Err: utils.ErrorDuplicateKey}
	}
	now := time.Now()
	account.CreatedAt, account.UpdatedAt = now, now
	s.accounts[account.ID] = copyAccount(account)
	return nil
}

func (s *Store) UpdateAccount(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpUpdateAccount); err != nil {
		return err
	}
	existing, ok := s.accounts[account.ID]
	if !ok || existing.UserId != account.UserId {
		return utils.ErrorRecordNotFound
	}
	updated := copyAccount(account)
	updated.CalculatedBalance = existing.CalculatedBalance
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now()
	s.accounts[account.ID] = updated
	return nil
}

func (s *Store) SetAccountBalance(ctx context.Context, userId, id string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpSetAccountBalance); err != nil {
		return err
	}
	a, ok := s.accounts[id]
	if !ok || a.UserId != userId {
		return utils.ErrorRecordNotFound
	}
	a.CalculatedBalance = balance
	a.UpdatedAt = time.Now()
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, userId, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpDeleteAccount); err != nil {
		return err
	}
	a, ok := s.accounts[id]
	if !ok || a.UserId != userId {
		return utils.ErrorRecordNotFound
	}
	delete(s.accounts, id)
	for tid, t := range s.transactions {
		if t.AccountId == id {
			delete(s.transactions, tid)
		}
	}
	return nil
}

// transactions

func (s *Store) FetchTransactions(ctx context.Context, userId, accountId string) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpFetchTransactions); err != nil {
		return nil, err
	}
	var result []*models.Transaction
	for _, t := range s.transactions {
		if t.UserId != userId || (accountId != "" && t.AccountId != accountId) {
			continue
		}
		result = append(result, copyTransaction(t))
	}
	return models.SortTransactions(result), nil
}

func (s *Store) GetTransaction(ctx context.Context, userId, id string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpGetTransaction); err != nil {
		return nil, err
	}
	t, ok := s.transactions[id]
	if !ok || t.UserId != userId {
		return nil, utils.ErrorRecordNotFound
	}
	return copyTransaction(t), nil
}

func (s *Store) FindTransactionByTransactionId(ctx context.Context, userId, transactionId string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpFindTransactionByTxnId); err != nil {
		return nil, err
	}
	for _, t := range s.transactions {
		if t.UserId == userId && t.TransactionId == transactionId {
			return copyTransaction(t), nil
		}
	}
	return nil, utils.ErrorRecordNotFound
}

func (s *Store) FetchTransactionsByGroup(ctx context.Context, userId, marker, groupId string) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpFetchTransactionsByGroup); err != nil {
		return nil, err
	}
	var result []*models.Transaction
	for _, t := range s.transactions {
		if t.UserId != userId {
			continue
		}
		if m, g, ok := t.GroupKey(); ok && m == marker && g == groupId {
			result = append(result, copyTransaction(t))
		}
	}
	return models.SortTransactions(result), nil
}

func (s *Store) InsertTransaction(ctx context.Context, transaction *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpInsertTransaction); err != nil {
		return err
	}
	if _, exists := s.transactions[transaction.ID]; exists {
		return &models.PersistenceError{Op: storage.OpInsertTransaction, Err: utils.ErrorDuplicateKey}
	}
	for _, t := range s.transactions {
		if t.TransactionId == transaction.TransactionId {
			return &models.PersistenceError{Op: storage.OpInsertTransaction, Err: utils.ErrorDuplicateKey}
		}
	}
	now := time.Now()
	transaction.CreatedAt, transaction.UpdatedAt = now, now
	s.transactions[transaction.ID] = copyTransaction(transaction)
	return nil
}

func (s *Store) UpdateTransaction(ctx context.Context, transaction *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpUpdateTransaction); err != nil {
		return err
	}
	existing, ok := s.transactions[transaction.ID]
	if !ok || existing.UserId != transaction.UserId {
		return utils.ErrorRecordNotFound
	}
	// metadata columns only, like sqlstore
	updated := copyTransaction(existing)
	updated.Description = transaction.Description
	updated.Category = transaction.Category
	updated.Date = transaction.Date
	updated.Tags = append([]string(nil), transaction.Tags...)
	updated.UpdatedAt = time.Now()
	s.transactions[transaction.ID] = updated
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, userId, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpDeleteTransaction); err != nil {
		return err
	}
	t, ok := s.transactions[id]
	if !ok || t.UserId != userId {
		return utils.ErrorRecordNotFound
	}
	delete(s.transactions, id)
	return nil
}

func (s *Store) NextSequence(ctx context.Context, userId string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpNextSequence); err != nil {
		return 0, err
	}
	s.sequences[userId]++
	return s.sequences[userId], nil
}

// purchases

func (s *Store) FetchPurchases(ctx context.Context, userId string) ([]*models.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpFetchPurchases); err != nil {
		return nil, err
	}
	var result []*models.Purchase
	for _, p := range s.purchases {
		if p.UserId == userId {
			result = append(result, copyPurchase(p))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].PurchaseDate.Equal(result[j].PurchaseDate) {
			return result[i].PurchaseDate.After(result[j].PurchaseDate)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *Store) GetPurchase(ctx context.Context, userId, id string) (*models.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpGetPurchase); err != nil {
		return nil, err
	}
	p, ok := s.purchases[id]
	if !ok || p.UserId != userId {
		return nil, utils.ErrorRecordNotFound
	}
	return copyPurchase(p), nil
}

func (s *Store) InsertPurchase(ctx context.Context, purchase *models.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpInsertPurchase); err != nil {
		return err
	}
	if _, exists := s.purchases[purchase.ID]; exists {
		return &models.PersistenceError{Op: storage.OpInsertPurchase, Err: utils.ErrorDuplicateKey}
	}
	now := time.Now()
	purchase.CreatedAt, purchase.UpdatedAt = now, now
	s.purchases[purchase.ID] = copyPurchase(purchase)
	return nil
}

func (s *Store) UpdatePurchase(ctx context.Context, purchase *models.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpUpdatePurchase); err != nil {
		return err
	}
	existing, ok := s.purchases[purchase.ID]
	if !ok || existing.UserId != purchase.UserId {
		return utils.ErrorRecordNotFound
	}
	updated := copyPurchase(purchase)
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now()
	s.purchases[purchase.ID] = updated
	return nil
}

func (s *Store) DeletePurchase(ctx context.Context, userId, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpDeletePurchase); err != nil {
		return err
	}
	p, ok := s.purchases[id]
	if !ok || p.UserId != userId {
		return utils.ErrorRecordNotFound
	}
	delete(s.purchases, id)
	return nil
}

// dps transfers

func (s *Store) FetchDpsTransfers(ctx context.Context, userId, accountId string) ([]*models.DpsTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpFetchDpsTransfers); err != nil {
		return nil, err
	}
	var result []*models.DpsTransfer
	for _, r := range s.dpsTransfers {
		if r.UserId != userId {
			continue
		}
		if accountId != "" && r.FromAccountId != accountId && r.ToAccountId != accountId {
			continue
		}
		c := *r
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *Store) InsertDpsTransfer(ctx context.Context, record *models.DpsTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpInsertDpsTransfer); err != nil {
		return err
	}
	if _, exists := s.dpsTransfers[record.ID]; exists {
		return &models.PersistenceError{Op: storage.OpInsertDpsTransfer, Err: utils.ErrorDuplicateKey}
	}
	record.CreatedAt = time.Now()
	c := *record
	s.dpsTransfers[record.ID] = &c
	return nil
}

func (s *Store) DeleteDpsTransfer(ctx context.Context, userId, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpDeleteDpsTransfer); err != nil {
		return err
	}
	r, ok := s.dpsTransfers[id]
	if !ok || r.UserId != userId {
		return utils.ErrorRecordNotFound
	}
	delete(s.dpsTransfers, id)
	return nil
}

func (s *Store) SetDpsTransfersClosed(ctx context.Context, userId, accountId string, closedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpSetDpsTransfersClosed); err != nil {
		return err
	}
	for _, r := range s.dpsTransfers {
		if r.UserId != userId || r.ToAccountId != accountId {
			continue
		}
		if closedAt == nil {
			r.ClosedAt = nil
		} else {
			at := *closedAt
			r.ClosedAt = &at
		}
	}
	return nil
}

// lend borrow

func (s *Store) FetchLendBorrows(ctx context.Context, userId string) ([]*models.LendBorrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpFetchLendBorrows); err != nil {
		return nil, err
	}
	var result []*models.LendBorrow
	for _, lb := range s.lendBorrows {
		if lb.UserId == userId {
			c := *lb
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) GetLendBorrow(ctx context.Context, userId, id string) (*models.LendBorrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpGetLendBorrow); err != nil {
		return nil, err
	}
	lb, ok := s.lendBorrows[id]
	if !ok || lb.UserId != userId {
		return nil, utils.ErrorRecordNotFound
	}
	c := *lb
	return &c, nil
}

func (s *Store) InsertLendBorrow(ctx context.Context, record *models.LendBorrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpInsertLendBorrow); err != nil {
		return err
	}
	if _, exists := s.lendBorrows[record.ID]; exists {
		return &models.PersistenceError{Op: storage.OpInsertLendBorrow, Err: utils.ErrorDuplicateKey}
	}
	now := time.Now()
	record.CreatedAt, record.UpdatedAt = now, now
	c := *record
	s.lendBorrows[record.ID] = &c
	return nil
}

func (s *Store) UpdateLendBorrow(ctx context.Context, record *models.LendBorrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpUpdateLendBorrow); err != nil {
		return err
	}
	existing, ok := s.lendBorrows[record.ID]
	if !ok || existing.UserId != record.UserId {
		return utils.ErrorRecordNotFound
	}
	c := *record
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now()
	s.lendBorrows[record.ID] = &c
	return nil
}

func (s *Store) FetchOverdueCandidates(ctx context.Context, now time.Time) ([]*models.LendBorrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpFetchOverdueCandidates); err != nil {
		return nil, err
	}
	var result []*models.LendBorrow
	for _, lb := range s.lendBorrows {
		if lb.IsOverdue(now) {
			c := *lb
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// reports

func (s *Store) InsertReconciliationReports(ctx context.Context, reports []*models.ReconciliationReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpInsertReconciliationReports); err != nil {
		return err
	}
	now := time.Now()
	for _, r := range reports {
		r.CreatedAt = now
		c := *r
		s.reports = append(s.reports, &c)
	}
	return nil
}

func (s *Store) FetchReconciliationReports(ctx context.Context, userId string) ([]*models.ReconciliationReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(storage.OpFetchReconciliationReports); err != nil {
		return nil, err
	}
	var result []*models.ReconciliationReport
	for _, r := range s.reports {
		if r.UserId == userId {
			c := *r
			result = append(result, &c)
		}
	}
	return result, nil
}
