// Package outbox is the durable queue of pending mutating requests.
//
// Mutations issued while offline (or that fail in flight) are appended
// here and replayed in order once connectivity returns. Replay is FIFO
// per flush pass: an entry that fails replay is moved to the tail so it
// cannot block the rest of the queue, which means repeated edits to the
// same resource get last-write-wins semantics across failures rather
// than strict global ordering.
package outbox

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Entry is a single queued mutating request.
type Entry struct {
	ID         string            `json:"id"`
	Path       string            `json:"path"`
	Method     string            `json:"method"`
	Body       []byte            `json:"body,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

// Sink receives queue-state changes so observers can show progress.
// The network monitor implements it.
type Sink interface {
	SetSyncing(bool)
	SetQueued(int)
}

// Outbox persists pending mutations in the local database and replays
// them against the live API.
type Outbox struct {
	db            *sql.DB
	client        *http.Client
	logger        *slog.Logger
	sink          Sink
	replayTimeout time.Duration

	flushCh chan struct{} // capacity 1, held for the duration of a flush
}

// New creates an Outbox over the shared local database. client carries
// the session cookies; replays go out with the same credentials as
// live requests.
func New(db *sql.DB, client *http.Client, logger *slog.Logger) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	o := &Outbox{
		db:            db,
		client:        client,
		logger:        logger,
		replayTimeout: 10 * time.Second,
		flushCh:       make(chan struct{}, 1),
	}
	return o
}

// SetSink registers the queue-state observer. Must be called before
// concurrent use.
func (o *Outbox) SetSink(s Sink) {
	o.sink = s
	o.notifySize()
}

// SetReplayTimeout overrides the per-replay timeout. The replay timeout
// is independent of the probe cadence so a hung replay cannot block
// future poll ticks.
func (o *Outbox) SetReplayTimeout(d time.Duration) {
	if d > 0 {
		o.replayTimeout = d
	}
}

// Enqueue appends an entry to the tail of the queue. The write is
// durable before Enqueue returns. A zero ID or timestamp is filled in.
func (o *Outbox) Enqueue(e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now()
	}
	headers, err := json.Marshal(e.Headers)
	if err != nil {
		return fmt.Errorf("outbox: marshal headers: %w", err)
	}
	_, err = o.db.Exec(
		`INSERT INTO outbox(id, path, method, body, headers, enqueued_at) VALUES(?, ?, ?, ?, ?, ?)`,
		e.ID, e.Path, e.Method, e.Body, string(headers), e.EnqueuedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("outbox: enqueue: %w", err)
	}
	o.logger.Debug("mutation queued", "method", e.Method, "path", e.Path, "id", e.ID)
	o.notifySize()
	return nil
}

// Size returns the current queue length.
func (o *Outbox) Size() int {
	var n int
	if err := o.db.QueryRow(`SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		o.logger.Warn("outbox count failed", "error", err)
		return 0
	}
	return n
}

// Entries returns a snapshot of the queue in replay order.
func (o *Outbox) Entries() ([]Entry, error) {
	rows, err := o.db.Query(
		`SELECT id, path, method, body, headers, enqueued_at FROM outbox ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("outbox: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear drops every queued entry.
func (o *Outbox) Clear() error {
	if _, err := o.db.Exec(`DELETE FROM outbox`); err != nil {
		return fmt.Errorf("outbox: clear: %w", err)
	}
	o.notifySize()
	return nil
}

// Flush replays queued entries against apiBase in submission order.
// Each entry is attempted at most once per pass: on failure it is
// reinserted at the tail and the pass moves on, so a single bad entry
// cannot block the rest of the queue. When the server is unreachable
// the pass stops immediately; everything left will fail the same way
// until the next probe. Only one flush runs at a time; a flush
// requested while one is in progress is a no-op.
func (o *Outbox) Flush(ctx context.Context, apiBase string) error {
	select {
	case o.flushCh <- struct{}{}:
	default:
		return nil // flush already in progress
	}
	defer func() { <-o.flushCh }()

	n := o.Size()
	if n == 0 {
		return nil
	}

	if o.sink != nil {
		o.sink.SetSyncing(true)
		defer o.sink.SetSyncing(false)
	}

	for i := 0; i < n; i++ {
		seq, entry, ok, err := o.head()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		stop, err := o.replay(ctx, apiBase, entry)
		if err != nil {
			o.logger.Warn("replay failed, requeued at tail",
				"method", entry.Method,
				"path", entry.Path,
				"error", err)
			if err := o.requeueAtTail(seq, entry); err != nil {
				return err
			}
			if stop {
				return nil
			}
			continue
		}

		if _, err := o.db.Exec(`DELETE FROM outbox WHERE seq = ?`, seq); err != nil {
			return fmt.Errorf("outbox: drop replayed entry: %w", err)
		}
		o.logger.Info("queued mutation replayed", "method", entry.Method, "path", entry.Path)
		o.notifySize()
	}
	return nil
}

// replay performs one attempt with its own timeout. A response from the
// server counts as delivered unless it is a server error; client-side
// rejections would fail identically on every pass. stop reports that
// the server was unreachable and the pass should end.
func (o *Outbox) replay(ctx context.Context, apiBase string, e Entry) (stop bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, o.replayTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, e.Method, apiBase+e.Path, bytes.NewReader(e.Body))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range e.Headers {
		req.Header.Set(k, v)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 500 {
		return false, fmt.Errorf("http %d", resp.StatusCode)
	}
	return false, nil
}

func (o *Outbox) head() (int64, Entry, bool, error) {
	row := o.db.QueryRow(
		`SELECT seq, id, path, method, body, headers, enqueued_at FROM outbox ORDER BY seq LIMIT 1`,
	)
	var seq int64
	var e Entry
	var headers string
	var enqueued int64
	err := row.Scan(&seq, &e.ID, &e.Path, &e.Method, &e.Body, &headers, &enqueued)
	if err == sql.ErrNoRows {
		return 0, Entry{}, false, nil
	}
	if err != nil {
		return 0, Entry{}, false, fmt.Errorf("outbox: head: %w", err)
	}
	if err := json.Unmarshal([]byte(headers), &e.Headers); err != nil {
		e.Headers = nil
	}
	e.EnqueuedAt = time.Unix(enqueued, 0)
	return seq, e, true, nil
}

// requeueAtTail moves the head entry behind everything currently queued.
// Deleting and reinserting assigns a fresh tail sequence number.
func (o *Outbox) requeueAtTail(seq int64, e Entry) error {
	tx, err := o.db.Begin()
	if err != nil {
		return fmt.Errorf("outbox: requeue: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM outbox WHERE seq = ?`, seq); err != nil {
		return fmt.Errorf("outbox: requeue delete: %w", err)
	}
	headers, err := json.Marshal(e.Headers)
	if err != nil {
		return fmt.Errorf("outbox: requeue headers: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO outbox(id, path, method, body, headers, enqueued_at) VALUES(?, ?, ?, ?, ?, ?)`,
		e.ID, e.Path, e.Method, e.Body, string(headers), e.EnqueuedAt.Unix(),
	); err != nil {
		return fmt.Errorf("outbox: requeue insert: %w", err)
	}
	return tx.Commit()
}

func (o *Outbox) notifySize() {
	if o.sink != nil {
		o.sink.SetQueued(o.Size())
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (Entry, error) {
	var e Entry
	var headers string
	var enqueued int64
	if err := r.Scan(&e.ID, &e.Path, &e.Method, &e.Body, &headers, &enqueued); err != nil {
		return Entry{}, fmt.Errorf("outbox: scan entry: %w", err)
	}
	if err := json.Unmarshal([]byte(headers), &e.Headers); err != nil {
		e.Headers = nil
	}
	e.EnqueuedAt = time.Unix(enqueued, 0)
	return e, nil
}
