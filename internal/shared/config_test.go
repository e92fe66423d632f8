package shared_test

import (
	"testing"
	"time"

	"aparthotel/internal/shared"
)

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("STORE", "Memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SYNC_INTERVAL", "5m")
	t.Setenv("FETCH_TIMEOUT_SECONDS", "30")
	t.Setenv("SYNC_LOCK_TTL", "10s")
	t.Setenv("REDIS_DB", "not-a-number")

	c := shared.Load()
	if c.Store != "memory" {
		t.Fatalf("store: %q", c.Store)
	}
	if len(c.KafkaBrokers) != 2 || c.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("brokers: %v", c.KafkaBrokers)
	}
	if c.SyncInterval != 5*time.Minute {
		t.Fatalf("interval: %v", c.SyncInterval)
	}
	if c.FetchTimeout != 30*time.Second {
		t.Fatalf("fetch timeout: %v", c.FetchTimeout)
	}
	if c.SyncLockTTL <= c.FetchTimeout {
		t.Fatalf("lock ttl %v must outlive fetch timeout %v", c.SyncLockTTL, c.FetchTimeout)
	}
	if c.RedisDB != 0 {
		t.Fatalf("bad int should fall back to default, got %d", c.RedisDB)
	}
}
