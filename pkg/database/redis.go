package database

import (
	"context"

	"github.com/go-redis/redis/v8"

	"questionnaire-agent-go/pkg/log"
)

// OpenRedis connects to Redis and verifies the connection with a ping.
func OpenRedis(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	log.Info("Redis client connected successfully")
	return rdb, nil
}
