// Package netmon tracks connectivity and sync activity for the data
// layer. It is the single source of truth for the online/offline flag:
// a recurring probe against the API health endpoint flips the state,
// and observers get the full snapshot on every change so they never
// re-derive it from partial signals.
package netmon

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dogtracker/dogtracker/internal/store"
)

const stateKey = "net_state"

// State is the connectivity snapshot broadcast to observers. Queued
// always mirrors the live outbox length.
type State struct {
	Online  bool `json:"online"`
	Syncing bool `json:"syncing"`
	Queued  int  `json:"queued"`
}

// Flusher replays the outbox. The monitor triggers it when a probe
// succeeds while entries are queued.
type Flusher interface {
	Flush(ctx context.Context, apiBase string) error
	Size() int
}

// Monitor polls the health endpoint and maintains the NetworkState.
type Monitor struct {
	st           *store.Store
	client       *http.Client
	flusher      Flusher
	logger       *slog.Logger
	interval     time.Duration
	probeTimeout time.Duration

	mu        sync.Mutex
	state     State
	observers []func(State)

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a Monitor, re-hydrating the last persisted state. The
// queued count is always taken from the live outbox, not the snapshot.
func New(st *store.Store, client *http.Client, flusher Flusher, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	m := &Monitor{
		st:           st,
		client:       client,
		flusher:      flusher,
		logger:       logger,
		interval:     10 * time.Second,
		probeTimeout: 5 * time.Second,
		state:        State{Online: true},
	}
	if st != nil {
		if raw, ok, err := st.GetSetting(stateKey); err == nil && ok {
			var s State
			if json.Unmarshal([]byte(raw), &s) == nil {
				m.state = s
			}
		}
	}
	m.state.Syncing = false
	if flusher != nil {
		m.state.Queued = flusher.Size()
	}
	return m
}

// SetInterval overrides the probe cadence.
func (m *Monitor) SetInterval(d time.Duration) {
	if d > 0 {
		m.interval = d
	}
}

// SetProbeTimeout overrides the per-probe timeout. It stays well under
// the interval so probes never pile up.
func (m *Monitor) SetProbeTimeout(d time.Duration) {
	if d > 0 {
		m.probeTimeout = d
	}
}

// Subscribe registers an observer called with the full state snapshot
// after every change.
func (m *Monitor) Subscribe(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// State returns the current snapshot without touching the network.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start begins the recurring health probe against apiBase. Calling it
// while already running restarts the loop; there is never more than
// one timer.
func (m *Monitor) Start(ctx context.Context, apiBase string) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		close(m.stopCh)
		m.wg.Wait()
	}
	m.running = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh

	m.wg.Add(1)
	go m.probeLoop(ctx, apiBase, stopCh)

	m.logger.Info("network watcher started", "api_base", apiBase, "interval", m.interval)
}

// Stop halts the probe loop.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return
	}
	close(m.stopCh)
	m.wg.Wait()
	m.running = false
}

func (m *Monitor) probeLoop(ctx context.Context, apiBase string, stopCh chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.tick(ctx, apiBase)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx, apiBase)
		}
	}
}

// tick issues exactly one probe. Probe failures are steady state, not
// errors: they only flip the flag.
func (m *Monitor) tick(ctx context.Context, apiBase string) {
	if m.probe(ctx, apiBase) {
		if !m.State().Online {
			m.logger.Info("back online")
		}
		m.SetOnline(true)
		if m.flusher != nil && m.flusher.Size() > 0 {
			if err := m.flusher.Flush(ctx, apiBase); err != nil {
				m.logger.Warn("outbox flush failed", "error", err)
			}
		}
	} else {
		if m.State().Online {
			m.logger.Info("gone offline")
		}
		m.SetOnline(false)
	}
}

func (m *Monitor) probe(ctx context.Context, apiBase string) bool {
	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/health", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close() //nolint:errcheck
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// SetOnline records a connectivity change. Platform-level hints may
// call this directly; the next scheduled probe still runs.
func (m *Monitor) SetOnline(online bool) {
	m.update(func(s *State) bool {
		if s.Online == online {
			return false
		}
		s.Online = online
		return true
	})
}

// SetSyncing marks a flush pass in progress. Implements outbox.Sink.
func (m *Monitor) SetSyncing(syncing bool) {
	m.update(func(s *State) bool {
		if s.Syncing == syncing {
			return false
		}
		s.Syncing = syncing
		return true
	})
}

// SetQueued records the outbox length. Implements outbox.Sink.
func (m *Monitor) SetQueued(n int) {
	m.update(func(s *State) bool {
		if s.Queued == n {
			return false
		}
		s.Queued = n
		return true
	})
}

// update applies a mutation, persists the snapshot and broadcasts it.
// Observers run outside the lock.
func (m *Monitor) update(mutate func(*State) bool) {
	m.mu.Lock()
	if !mutate(&m.state) {
		m.mu.Unlock()
		return
	}
	snapshot := m.state
	observers := make([]func(State), len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	if m.st != nil {
		if raw, err := json.Marshal(snapshot); err == nil {
			if err := m.st.PutSetting(stateKey, string(raw)); err != nil {
				m.logger.Warn("persist network state failed", "error", err)
			}
		}
	}
	for _, fn := range observers {
		fn(snapshot)
	}
}
