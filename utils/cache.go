package utils

import (
	"context"
	"log"
	"time"

	"estately/config"

	"github.com/go-redis/redis/v8"
)

// CacheClient is the client for the local booking-list cache.
var CacheClient *redis.Client

// InitCache initializes the Redis cache client (using DB from AppConfig).
// The cache is an optimization for booking lists; when Redis is unreachable
// the client runs uncached rather than refusing to start.
func InitCache() {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisCacheDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Printf("Redis cache unavailable, running uncached: %v", err)
		return
	}
	CacheClient = client
}

// GetCacheClient returns the cache client, nil when Redis is unavailable.
func GetCacheClient() *redis.Client {
	return CacheClient
}
