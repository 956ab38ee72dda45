package utils

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

func GetTypeName[T any]() string {
	var v T
	typeOfT := reflect.TypeOf(v)
	return typeOfT.Name()
}

// TypeListKey is the cache key of a per-user list, e.g. "AccountList:<user>".
func TypeListKey[T any](userId string) string {
	if userId == "" {
		return GetTypeName[T]() + "List"
	}
	return GetTypeName[T]() + "List:" + userId
}

// GetRedisObject reports false when the key is missing or rdb is nil.
func GetRedisObject(ctx context.Context, rdb *redis.Client, key string, dest interface{}) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	val, err := rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func SetRedisObject(ctx context.Context, rdb *redis.Client, key string, obj interface{}, exp time.Duration) error {
	if rdb == nil {
		return nil
	}
	objInByte, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, objInByte, exp).Err()
}

func RemoveRedisKey(ctx context.Context, rdb *redis.Client, keys ...string) error {
	if rdb == nil {
		return nil
	}
	return rdb.Del(ctx, keys...).Err()
}

// StoreRedisList caches a per-user list.
func StoreRedisList[T any](ctx context.Context, rdb *redis.Client, list []*T, userId string) error {
	return SetRedisObject(ctx, rdb, TypeListKey[T](userId), list, GetCacheLifespan())
}

// RetrieveRedisList returns nil if the list is not cached.
func RetrieveRedisList[T any](ctx context.Context, rdb *redis.Client, userId string) ([]*T, error) {
	var result []*T
	exists, err := GetRedisObject(ctx, rdb, TypeListKey[T](userId), &result)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return result, nil
}

func RemoveRedisList[T any](ctx context.Context, rdb *redis.Client, userId string) error {
	return RemoveRedisKey(ctx, rdb, TypeListKey[T](userId))
}
