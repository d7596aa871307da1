package binquery

import (
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisOptions returns redis.Options populated from standard
// environment variables, for wiring a RedisStore the 12-factor way.
//
// Environment variables read (with defaults):
//   - REDIS_ADDR (default: "localhost:6379")
//   - REDIS_PASSWORD (default: "")
//   - REDIS_DB (default: 0)
//
// Example:
//
//	store := binquery.NewRedisStoreWithOwnedClient(
//	    redis.NewClient(binquery.RedisOptions()))
//	defer store.Close()
//
// Advanced setups (Cluster, Sentinel, TLS, pool tuning) construct
// redis.Options directly.
func RedisOptions() *redis.Options {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	return &redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvAsInt("REDIS_DB", 0),
	}
}

// RedisOptionsWithOverrides layers explicit values over the
// environment-based defaults. Zero values fall through to RedisOptions.
func RedisOptionsWithOverrides(addr, password string, poolSize, minIdleConns int) *redis.Options {
	opts := RedisOptions()

	if addr != "" {
		opts.Addr = addr
	}
	if password != "" {
		opts.Password = password
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}
	if minIdleConns > 0 {
		opts.MinIdleConns = minIdleConns
	}
	return opts
}

// getEnvAsInt reads an integer environment variable with a default fallback.
func getEnvAsInt(key string, defaultVal int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultVal
	}
	return value
}
