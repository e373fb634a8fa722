package cache

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"
)

// Integration test for the memcached backend. Skips unless a memcached
// instance is reachable; set MEMCACHED_ADDRS to point elsewhere.
func TestMemcachedCache_Integration(t *testing.T) {
	addrs := os.Getenv("MEMCACHED_ADDRS")
	if addrs == "" {
		addrs = "localhost:11211"
	}

	c, err := NewMemcachedCache(addrs, 500*time.Millisecond, 2)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	if err := c.Ping(); err != nil {
		t.Skipf("memcached not reachable at %s: %v", addrs, err)
	}
	defer c.Close()

	ctx := context.Background()
	key := "63.4305,10.3951"
	payload := []byte(`{"properties":{"timeseries":[]}}`)

	if err := c.Set(ctx, key, payload, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() missed after Set()")
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("Get() = %s, want %s", got, payload)
	}

	// An entry whose logical deadline has passed must read as a miss even if
	// memcached still holds the item.
	if err := c.Set(ctx, key, payload, time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, key); ok {
		t.Fatal("Get() returned entry past its logical deadline")
	}
}
