package outbox

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dogtracker/dogtracker/internal/store"
)

type recordSink struct {
	mu      sync.Mutex
	syncing []bool
	queued  []int
}

func (r *recordSink) SetSyncing(b bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncing = append(r.syncing, b)
}

func (r *recordSink) SetQueued(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued = append(r.queued, n)
}

func (r *recordSink) lastQueued() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queued) == 0 {
		return -1
	}
	return r.queued[len(r.queued)-1]
}

func openStore(t *testing.T, path string) *store.Store {
	t.Helper()
	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	return st
}

func TestEnqueueDurableAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	st := openStore(t, path)
	o := New(st.DB(), nil, nil)

	paths := []string{"/dogs", "/sessions", "/sessions/1/rounds"}
	for _, p := range paths {
		if err := o.Enqueue(Entry{Path: p, Method: "POST", Body: []byte(`{}`)}); err != nil {
			t.Fatalf("Enqueue(%s) error: %v", p, err)
		}
	}
	st.Close()

	// Simulate a process restart
	st2 := openStore(t, path)
	defer st2.Close()
	o2 := New(st2.DB(), nil, nil)

	if o2.Size() != len(paths) {
		t.Fatalf("Size() after reopen = %d, want %d", o2.Size(), len(paths))
	}
	entries, err := o2.Entries()
	if err != nil {
		t.Fatalf("Entries() error: %v", err)
	}
	seen := map[string]bool{}
	for i, e := range entries {
		if e.Path != paths[i] {
			t.Errorf("entry %d path = %s, want %s", i, e.Path, paths[i])
		}
		if e.ID == "" || seen[e.ID] {
			t.Errorf("entry %d id %q not globally unique", i, e.ID)
		}
		seen[e.ID] = true
	}
}

func TestFlushFIFOPerPass(t *testing.T) {
	var mu sync.Mutex
	bFailed := false
	var served []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		served = append(served, r.URL.Path)
		if r.URL.Path == "/b" && !bFailed {
			bFailed = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := openStore(t, filepath.Join(t.TempDir(), "test.db"))
	defer st.Close()
	o := New(st.DB(), srv.Client(), nil)

	for _, p := range []string{"/a", "/b", "/c"} {
		if err := o.Enqueue(Entry{Path: p, Method: "POST"}); err != nil {
			t.Fatalf("Enqueue(%s) error: %v", p, err)
		}
	}

	// First pass: A and C replay, B fails once and moves to the tail.
	if err := o.Flush(context.Background(), srv.URL); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	entries, err := o.Entries()
	if err != nil {
		t.Fatalf("Entries() error: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "/b" {
		t.Fatalf("after first pass queue = %v, want just /b", entries)
	}

	// Second pass drains B.
	if err := o.Flush(context.Background(), srv.URL); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if o.Size() != 0 {
		t.Errorf("Size() after second pass = %d, want 0", o.Size())
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"/a", "/b", "/c", "/b"}
	if len(served) != len(want) {
		t.Fatalf("served %v, want %v", served, want)
	}
	for i := range want {
		if served[i] != want[i] {
			t.Errorf("request %d = %s, want %s", i, served[i], want[i])
		}
	}
}

func TestFlushStopsWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // connection refused from here on

	st := openStore(t, filepath.Join(t.TempDir(), "test.db"))
	defer st.Close()
	o := New(st.DB(), http.DefaultClient, nil)

	for _, p := range []string{"/a", "/b", "/c"} {
		if err := o.Enqueue(Entry{Path: p, Method: "POST"}); err != nil {
			t.Fatalf("Enqueue(%s) error: %v", p, err)
		}
	}
	if err := o.Flush(context.Background(), url); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	// Nothing dropped; the pass ended on the first transport failure.
	if o.Size() != 3 {
		t.Errorf("Size() = %d, want 3", o.Size())
	}
}

func TestSinkSeesSyncingAndQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := openStore(t, filepath.Join(t.TempDir(), "test.db"))
	defer st.Close()
	o := New(st.DB(), srv.Client(), nil)
	sink := &recordSink{}
	o.SetSink(sink)

	if err := o.Enqueue(Entry{Path: "/a", Method: "POST"}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if sink.lastQueued() != 1 {
		t.Errorf("queued after enqueue = %d, want 1", sink.lastQueued())
	}

	if err := o.Flush(context.Background(), srv.URL); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if sink.lastQueued() != 0 {
		t.Errorf("queued after flush = %d, want 0", sink.lastQueued())
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.syncing) != 2 || !sink.syncing[0] || sink.syncing[1] {
		t.Errorf("syncing transitions = %v, want [true false]", sink.syncing)
	}
}

func TestFlushEmptyIsQuiet(t *testing.T) {
	st := openStore(t, filepath.Join(t.TempDir(), "test.db"))
	defer st.Close()
	o := New(st.DB(), nil, nil)
	sink := &recordSink{}
	o.SetSink(sink)

	if err := o.Flush(context.Background(), "http://unused"); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.syncing) != 0 {
		t.Errorf("empty flush toggled syncing: %v", sink.syncing)
	}
}

func TestClear(t *testing.T) {
	st := openStore(t, filepath.Join(t.TempDir(), "test.db"))
	defer st.Close()
	o := New(st.DB(), nil, nil)

	if err := o.Enqueue(Entry{Path: "/a", Method: "DELETE"}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if err := o.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if o.Size() != 0 {
		t.Errorf("Size() = %d, want 0", o.Size())
	}
}
