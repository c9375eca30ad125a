package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis and skips when none is running.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewRedisBackend_NilClient(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for nil client")
		}
	}()
	NewRedisBackend(nil)
}

func TestRedisBackend_Key(t *testing.T) {
	b := &RedisBackend{prefix: "storefront:cache:"}
	if got := b.Key(NamespaceProducts); got != "storefront:cache:products-cache" {
		t.Errorf("Key() = %q, want storefront:cache:products-cache", got)
	}
}

func TestRedisBackend_LoadSave(t *testing.T) {
	client := setupTestRedis(t)
	backend := NewRedisBackend(client)
	ctx := context.Background()

	if _, err := backend.Load(ctx, NamespaceCategories); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Load() error = %v, want ErrCacheMiss", err)
	}

	payload := []byte(`{"categories-all":{"value":[],"timestamp":1,"ttl":1}}`)
	if err := backend.Save(ctx, NamespaceCategories, payload); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := backend.Load(ctx, NamespaceCategories)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Load() = %s, want %s", got, payload)
	}
}

func TestRedisBackend_Expiration(t *testing.T) {
	client := setupTestRedis(t)
	backend := NewRedisBackend(client)
	backend.Expiration = time.Hour
	ctx := context.Background()

	if err := backend.Save(ctx, NamespaceImages, []byte(`{}`)); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	ttl, err := client.TTL(ctx, backend.Key(NamespaceImages)).Result()
	if err != nil {
		t.Fatalf("TTL() failed: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("TTL = %v, want (0, 1h]", ttl)
	}
}

func TestPersisted_RedisRoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	backend := NewRedisBackend(client)
	ctx := context.Background()

	p, err := NewPersisted[int](ctx, backend, NamespaceProducts, Options{DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewPersisted() failed: %v", err)
	}
	p.Set(KeyProductsTotalCount, 25)

	reloaded, err := NewPersisted[int](ctx, backend, NamespaceProducts, Options{DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewPersisted() reload failed: %v", err)
	}
	if got, ok := reloaded.Get(KeyProductsTotalCount); !ok || got != 25 {
		t.Errorf("Get() = %d, %v; want 25, true", got, ok)
	}
}
