// File: utils/cache.go
package utils

import (
	"carelink/config"
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

var (
	// CacheClient backs notification inboxes, redis session events and the control hub.
	CacheClient *redis.Client
	// PaymentClient is the dedicated client for payment attempts.
	PaymentClient *redis.Client
)

func newRedisClient(db int, name string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis (%s): %v", name, err)
	}
	return client
}

// InitCache initializes the generic Redis cache client.
func InitCache() {
	CacheClient = newRedisClient(config.AppConfig.RedisCacheDB, "Cache")
}

// GetCacheClient returns the generic cache client.
func GetCacheClient() *redis.Client {
	if CacheClient == nil {
		InitCache()
	}
	return CacheClient
}

// InitPaymentCache initializes the Redis client holding payment attempts.
func InitPaymentCache() {
	PaymentClient = newRedisClient(config.AppConfig.RedisPaymentDB, "Payments")
}

// GetPaymentClient returns the Redis client for payment attempts.
func GetPaymentClient() *redis.Client {
	if PaymentClient == nil {
		InitPaymentCache()
	}
	return PaymentClient
}
