package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestDisabled(t *testing.T) {
	ctx := context.Background()
	c := Disabled()
	defer c.Close()

	data, hit, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit {
		t.Error("disabled Get should always miss")
	}
	if data != nil {
		t.Error("disabled Get should return nil data")
	}

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}

	_, hit, _ = c.Get(ctx, "key")
	if hit {
		t.Error("disabled cache should not store data")
	}

	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, hit, err := c.Get(ctx, "missing"); hit || err != nil {
		t.Fatalf("Get(missing) = %v, %v", hit, err)
	}

	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	data, hit, err := c.Get(ctx, "k")
	if err != nil || !hit || string(data) != "v" {
		t.Fatalf("Get(k) = %q, %v, %v", data, hit, err)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("entry should be gone after Delete")
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Errorf("deleting a missing key should not fail: %v", err)
	}
}

func TestFileCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())

	if err := c.Set(ctx, "k", []byte("v"), time.Nanosecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("expired entry should miss")
	}
}

func TestRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	c, err := NewRedisCache(ctx, "redis://"+mr.Addr(), "test:")
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	defer c.Close()

	if _, hit, err := c.Get(ctx, "k"); hit || err != nil {
		t.Fatalf("Get before Set = %v, %v", hit, err)
	}
	if err := c.Set(ctx, "k", []byte("wheel"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("test:k") {
		t.Error("key should be stored with the prefix")
	}

	data, hit, err := c.Get(ctx, "k")
	if err != nil || !hit || string(data) != "wheel" {
		t.Fatalf("Get = %q, %v, %v", data, hit, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("entry should expire with its TTL")
	}

	c.Set(ctx, "k2", []byte("x"), 0)
	if err := c.Delete(ctx, "k2"); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("test:k2") {
		t.Error("Delete should remove the key")
	}
}

func TestNewRedisCacheUnconfigured(t *testing.T) {
	_, err := NewRedisCache(context.Background(), "", "")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestMongoEntryExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	forever := newMongoEntry("k", []byte("v"), 0, now)
	if forever.ExpiresAt != nil || forever.expired(now.Add(24*time.Hour)) {
		t.Error("zero ttl should never expire")
	}

	short := newMongoEntry("k", []byte("v"), time.Minute, now)
	if short.expired(now.Add(30 * time.Second)) {
		t.Error("entry expired too early")
	}
	if !short.expired(now.Add(2 * time.Minute)) {
		t.Error("entry should have expired")
	}
}

func TestNewMongoCacheUnconfigured(t *testing.T) {
	_, err := NewMongoCache(context.Background(), "", "", "")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	c, err := Open(ctx, Options{Backend: BackendFile, Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*FileCache); !ok {
		t.Errorf("file backend returned %T", c)
	}

	c, err = Open(ctx, Options{Backend: BackendNone})
	if err != nil {
		t.Fatal(err)
	}
	if c != Disabled() {
		t.Errorf("none backend returned %T", c)
	}

	if _, err := Open(ctx, Options{Backend: "memcached"}); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	h2 := Hash([]byte("hello"))
	if h1 != h2 {
		t.Error("Hash should be deterministic")
	}

	if Hash([]byte("world")) == h1 {
		t.Error("Different inputs should produce different hashes")
	}

	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}
}

func TestDefaultKeyer(t *testing.T) {
	k := NewDefaultKeyer()

	b1 := k.BuildKey(BuildKeyOpts{Path: "/src/app", Fingerprint: "a", Editable: true})
	b2 := k.BuildKey(BuildKeyOpts{Path: "/src/app", Fingerprint: "a", Editable: false})
	b3 := k.BuildKey(BuildKeyOpts{Path: "/src/app", Fingerprint: "b", Editable: true})
	if b1 == b2 || b1 == b3 {
		t.Error("different BuildKeyOpts should produce different keys")
	}
	if b1 != k.BuildKey(BuildKeyOpts{Path: "/src/app", Fingerprint: "a", Editable: true}) {
		t.Error("BuildKey should be deterministic")
	}

	if k.MetadataKey("/src/app", "a") == k.MetadataKey("/src/app", "b") {
		t.Error("fingerprint should be part of MetadataKey")
	}

	if k.BuildKey(BuildKeyOpts{Path: "/src/app/", Fingerprint: "a", Editable: true}) != b1 {
		t.Error("BuildKey should clean the project path")
	}
	if k.MetadataKey("/src/./app", "a") != k.MetadataKey("/src/app", "a") {
		t.Error("MetadataKey should clean the project path")
	}
}

func TestScopedKeyer(t *testing.T) {
	scoped := NewScopedKeyer(NewDefaultKeyer(), "py312:")

	key := scoped.MetadataKey("/src/app", "a")
	if len(key) < 15 || key[:6] != "py312:" {
		t.Errorf("ScopedKeyer MetadataKey should be prefixed: %s", key)
	}
}

func TestScopedKeyerNilInner(t *testing.T) {
	scoped := NewScopedKeyer(nil, "prefix:")
	want := "prefix:" + NewDefaultKeyer().BuildKey(BuildKeyOpts{Path: "/p"})
	if got := scoped.BuildKey(BuildKeyOpts{Path: "/p"}); got != want {
		t.Errorf("Unexpected key with nil inner: %s", got)
	}
}
