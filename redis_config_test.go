package binquery

import "testing"

func TestRedisOptions_Defaults(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REDIS_PASSWORD", "")
	t.Setenv("REDIS_DB", "")

	opts := RedisOptions()
	if opts.Addr != "localhost:6379" {
		t.Errorf("addr = %q, want localhost:6379", opts.Addr)
	}
	if opts.Password != "" {
		t.Errorf("password = %q, want empty", opts.Password)
	}
	if opts.DB != 0 {
		t.Errorf("db = %d, want 0", opts.DB)
	}
}

func TestRedisOptions_FromEnvironment(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")

	opts := RedisOptions()
	if opts.Addr != "redis.internal:6380" {
		t.Errorf("addr = %q", opts.Addr)
	}
	if opts.Password != "secret" {
		t.Errorf("password = %q", opts.Password)
	}
	if opts.DB != 3 {
		t.Errorf("db = %d", opts.DB)
	}

	t.Setenv("REDIS_DB", "not-a-number")
	if got := RedisOptions().DB; got != 0 {
		t.Errorf("malformed REDIS_DB should fall back to 0, got %d", got)
	}
}

func TestRedisOptionsWithOverrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "env-addr:6379")
	t.Setenv("REDIS_PASSWORD", "env-pass")
	t.Setenv("REDIS_DB", "")

	opts := RedisOptionsWithOverrides("explicit:6390", "", 20, 5)
	if opts.Addr != "explicit:6390" {
		t.Errorf("explicit addr lost: %q", opts.Addr)
	}
	if opts.Password != "env-pass" {
		t.Errorf("empty override should keep the env password, got %q", opts.Password)
	}
	if opts.PoolSize != 20 || opts.MinIdleConns != 5 {
		t.Errorf("pool sizing = %d/%d", opts.PoolSize, opts.MinIdleConns)
	}
}
