package cache

import (
	"path/filepath"
	"testing"

	"github.com/dogtracker/dogtracker/internal/store"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st.DB(), nil)
}

func TestPutGet(t *testing.T) {
	c := testCache(t)

	if _, ok := c.Get("/api", "/dogs"); ok {
		t.Fatal("expected absent entry")
	}

	payload := []byte(`[{"id":1,"name":"Rex"}]`)
	if err := c.Put("/api", "/dogs", payload); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, ok := c.Get("/api", "/dogs")
	if !ok {
		t.Fatal("expected cached entry")
	}
	if string(got) != string(payload) {
		t.Errorf("Get() = %s, want %s", got, payload)
	}
}

func TestLastWriteWins(t *testing.T) {
	c := testCache(t)

	if err := c.Put("/api", "/dogs", []byte(`[]`)); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if err := c.Put("/api", "/dogs", []byte(`[{"id":2}]`)); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, ok := c.Get("/api", "/dogs")
	if !ok || string(got) != `[{"id":2}]` {
		t.Errorf("Get() = %s, %v; want overwritten payload", got, ok)
	}
}

func TestKeyIncludesBase(t *testing.T) {
	c := testCache(t)

	if err := c.Put("/api", "/dogs", []byte(`a`)); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if _, ok := c.Get("/other", "/dogs"); ok {
		t.Error("entry leaked across api bases")
	}
}

func TestClear(t *testing.T) {
	c := testCache(t)

	if err := c.Put("/api", "/dogs", []byte(`a`)); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if _, ok := c.Get("/api", "/dogs"); ok {
		t.Error("expected empty cache after Clear")
	}
}
