package utils

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Pinger is anything the health monitor can probe: a mongo client, a gorm
// connection pool, an AMQP channel.
type Pinger func(ctx context.Context) error

// HealthStatus represents current status of external services.
type HealthStatus struct {
	Store     bool      `json:"store"`
	Redis     []bool    `json:"redis"`
	CheckedAt time.Time `json:"checkedAt"`
}

var (
	currentHealth HealthStatus
	mu            sync.RWMutex
)

// GetHealthStatus returns latest stored health snapshot.
func GetHealthStatus() HealthStatus {
	mu.RLock()
	defer mu.RUnlock()
	return currentHealth
}

// CheckHealth probes every dependency once and stores the snapshot.
func CheckHealth(ctx context.Context, redisClients []*redis.Client, store Pinger) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var redisHealth []bool
	for _, client := range redisClients {
		err := client.Ping(ctx).Err()
		redisHealth = append(redisHealth, err == nil)
	}

	storeHealthy := true
	if store != nil {
		storeHealthy = store(ctx) == nil
	}

	status := HealthStatus{
		Store:     storeHealthy,
		Redis:     redisHealth,
		CheckedAt: time.Now(),
	}
	mu.Lock()
	currentHealth = status
	mu.Unlock()
	return status
}

// StartHealthMonitor schedules a check every minute and returns the running
// cron so the caller can stop it on shutdown.
func StartHealthMonitor(redisClients []*redis.Client, store Pinger) *cron.Cron {
	c := cron.New()
	_, err := c.AddFunc("@every 1m", func() {
		status := CheckHealth(context.Background(), redisClients, store)
		if !status.Store {
			GetLogger().Warn("session store health check failed")
		}
	})
	if err != nil {
		GetLogger().Error("failed to schedule health monitor", zap.Error(err))
		return c
	}
	c.Start()
	return c
}
