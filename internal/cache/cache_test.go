package cache

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSetGet(t *testing.T) {
	c := openTestCache(t)
	if err := c.Set("k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || !bytes.Equal(got, []byte("v")) {
		t.Errorf("Get = %q, %v; want v, true", got, ok)
	}
}

func TestGetMissingKey(t *testing.T) {
	c := openTestCache(t)
	_, ok, err := c.Get("absent")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("absent key reported present")
	}
}

func TestSetReplaces(t *testing.T) {
	c := openTestCache(t)
	_ = c.Set("k", []byte("old"), time.Minute)
	if err := c.Set("k", []byte("new"), time.Minute); err != nil {
		t.Fatal(err)
	}
	got, ok, _ := c.Get("k")
	if !ok || string(got) != "new" {
		t.Errorf("Get = %q, want new", got)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := openTestCache(t)
	if err := c.Set("k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	_, ok, err := c.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expired entry still served")
	}
}

func TestDelete(t *testing.T) {
	c := openTestCache(t)
	_ = c.Set("k", []byte("v"), time.Minute)
	if err := c.Delete("k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get("k"); ok {
		t.Error("deleted key still present")
	}
	// Deleting an absent key is fine.
	if err := c.Delete("k"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	c := openTestCache(t)
	_ = c.Set("stale", []byte("v"), 10*time.Millisecond)
	_ = c.Set("fresh", []byte("v"), time.Minute)
	time.Sleep(20 * time.Millisecond)

	n, err := c.PurgeExpired()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
	if _, ok, _ := c.Get("fresh"); !ok {
		t.Error("fresh entry was purged")
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = c.Set("k", []byte("v"), time.Minute)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c2.Close() }()
	got, ok, _ := c2.Get("k")
	if !ok || string(got) != "v" {
		t.Errorf("Get after reopen = %q, %v; want v, true", got, ok)
	}
}
