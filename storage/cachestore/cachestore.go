// Package cachestore caches per-user account lists in redis in front of
// another storage.Store. Every account write drops the cached list.
package cachestore

import (
	"context"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/storage"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Store struct {
	storage.Store
	rdb    *redis.Client
	logger *logrus.Logger
}

func New(inner storage.Store, rdb *redis.Client, logger *logrus.Logger) *Store {
	return &Store{Store: inner, rdb: rdb, logger: logger}
}

func (s *Store) FetchAccounts(ctx context.Context, userId string) ([]*models.Account, error) {
	cached, err := utils.RetrieveRedisList[models.Account](ctx, s.rdb, userId)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"field": "FetchAccounts", "user_id": userId}).Warn("account cache read failed: " + err.Error())
	} else if cached != nil {
		return cached, nil
	}

	accounts, err := s.Store.FetchAccounts(ctx, userId)
	if err != nil {
		return nil, err
	}
	if err := utils.StoreRedisList(ctx, s.rdb, accounts, userId); err != nil {
		s.logger.WithFields(logrus.Fields{"field": "FetchAccounts", "user_id": userId}).Warn("account cache write failed: " + err.Error())
	}
	return accounts, nil
}

func (s *Store) invalidate(ctx context.Context, userId string) {
	if err := utils.RemoveRedisList[models.Account](ctx, s.rdb, userId); err != nil {
		s.logger.WithFields(logrus.Fields{"field": "invalidate", "user_id": userId}).Warn("account cache invalidation failed: " + err.Error())
	}
}

func (s *Store) InsertAccount(ctx context.Context, account *models.Account) error {
	err := s.Store.InsertAccount(ctx, account)
	s.invalidate(ctx, account.UserId)
	return err
}

func (s *Store) UpdateAccount(ctx context.Context, account *models.Account) error {
	err := s.Store.UpdateAccount(ctx, account)
	s.invalidate(ctx, account.UserId)
	return err
}

func (s *Store) SetAccountBalance(ctx context.Context, userId, id string, balance decimal.Decimal) error {
	err := s.Store.SetAccountBalance(ctx, userId, id, balance)
	s.invalidate(ctx, userId)
	return err
}

func (s *Store) DeleteAccount(ctx context.Context, userId, id string) error {
	err := s.Store.DeleteAccount(ctx, userId, id)
	s.invalidate(ctx, userId)
	return err
}
