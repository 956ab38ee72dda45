package config

import (
	"context"
	"log"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns a client and a lock client for s.RedisAddress, or
// nils when no address is configured. A failed ping is logged and the
// clients are still returned; callers treat redis as best effort.
func ConnectRedis(ctx context.Context, s Settings) (*redis.Client, *redislock.Client) {
	if s.RedisAddress == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     s.RedisAddress,
		Password: s.RedisPassword,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Printf("redis ping failed (address=%s): %v", s.RedisAddress, err)
	} else {
		log.Printf("connected to redis (address=%s)", s.RedisAddress)
	}
	return rdb, redislock.New(rdb)
}
