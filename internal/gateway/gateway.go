// Package gateway is the single entry point for every API read and
// write. It composes the network monitor, the response cache and the
// write outbox into one contract: live GETs populate the cache and
// failed ones fall back to it, while mutations that cannot complete
// live are queued for replay and answered optimistically.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/dogtracker/dogtracker/internal/cache"
	"github.com/dogtracker/dogtracker/internal/netmon"
	"github.com/dogtracker/dogtracker/internal/outbox"
)

// ErrUnauthorized is returned when the API signals authentication
// failure. It is never masked by the cache fallback.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError is a non-2xx response from a reachable server, carrying
// the machine-readable message when the body provides one.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed (%d)", e.Status)
}

// Kind tags a request as read-shaped or mutating, so the fallback
// branch (cache vs outbox) is exhaustive.
type Kind int

const (
	KindGet Kind = iota
	KindMutate
)

// Request describes one API call relative to the configured base URL.
type Request struct {
	Kind    Kind
	Path    string
	Method  string // mutations only
	Body    []byte // mutations only
	Headers map[string]string
}

// Get describes a read of path.
func Get(path string) Request {
	return Request{Kind: KindGet, Path: path}
}

// Mutate describes a POST/PUT/PATCH/DELETE of path.
func Mutate(method, path string, body []byte) Request {
	return Request{Kind: KindMutate, Path: path, Method: method, Body: body}
}

// Gateway performs reads and writes against the API.
type Gateway struct {
	apiBase        string
	client         *http.Client
	cache          *cache.Cache
	outbox         *outbox.Outbox
	monitor        *netmon.Monitor
	logger         *slog.Logger
	onUnauthorized func()
}

// New creates a Gateway. client must be shared with the outbox so
// replays carry the same session cookies.
func New(apiBase string, client *http.Client, c *cache.Cache, o *outbox.Outbox, m *netmon.Monitor, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = NewHTTPClient()
	}
	return &Gateway{
		apiBase: apiBase,
		client:  client,
		cache:   c,
		outbox:  o,
		monitor: m,
		logger:  logger,
	}
}

// NewHTTPClient builds the shared HTTP client with a cookie jar, so
// cookie-based credentials ride along on every request.
func NewHTTPClient() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Jar:     jar,
		Timeout: 30 * time.Second,
	}
}

// Base returns the configured API base URL.
func (g *Gateway) Base() string {
	return g.apiBase
}

// SetUnauthorizedHandler registers the callback invoked, exactly once
// per failing call, when the API reports authentication failure.
func (g *Gateway) SetUnauthorizedHandler(fn func()) {
	g.onUnauthorized = fn
}

// Do performs the request and returns the raw response payload.
// Payloads are opaque bytes: JSON bodies pass through unparsed and
// empty or non-JSON bodies are tolerated.
//
// GETs that fail for any reason other than authentication fall back to
// the cached payload for the same (base, path). Mutations that cannot
// reach the server are queued in the outbox and answered with the
// request's own body, so offline callers get back exactly what they
// sent rather than a server-assigned identity.
func (g *Gateway) Do(ctx context.Context, r Request) ([]byte, error) {
	if r.Kind == KindGet {
		return g.doGet(ctx, r)
	}
	return g.doMutate(ctx, r)
}

// DoJSON performs the request and decodes the payload into v. A nil
// or empty payload leaves v untouched.
func (g *Gateway) DoJSON(ctx context.Context, r Request, v any) error {
	payload, err := g.Do(ctx, r)
	if err != nil {
		return err
	}
	if len(payload) == 0 || v == nil {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode %s: %w", r.Path, err)
	}
	return nil
}

func (g *Gateway) doGet(ctx context.Context, r Request) ([]byte, error) {
	payload, err := g.live(ctx, r)
	if err != nil {
		// A 401 payload is not valid cached data: surface it before
		// any fallback.
		if errors.Is(err, ErrUnauthorized) {
			return nil, err
		}
		if g.cache != nil {
			if cached, ok := g.cache.Get(g.apiBase, r.Path); ok {
				g.logger.Debug("serving cached response", "path", r.Path)
				return cached, nil
			}
		}
		return nil, err
	}

	if g.cache != nil {
		if err := g.cache.Put(g.apiBase, r.Path, payload); err != nil {
			g.logger.Warn("cache write failed", "path", r.Path, "error", err)
		}
	}
	return payload, nil
}

func (g *Gateway) doMutate(ctx context.Context, r Request) ([]byte, error) {
	if !g.online() {
		return g.deferMutation(r)
	}

	payload, err := g.live(ctx, r)
	if err == nil {
		return payload, nil
	}
	if errors.Is(err, ErrUnauthorized) {
		return nil, err
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		// The server was reached and rejected the request; replaying
		// it later would fail the same way.
		return nil, err
	}

	// Transient transport failure while nominally online: same path as
	// offline, so no mutation is ever silently dropped.
	return g.deferMutation(r)
}

// deferMutation queues the request and echoes its body as the
// optimistic result.
func (g *Gateway) deferMutation(r Request) ([]byte, error) {
	if g.outbox == nil {
		return nil, fmt.Errorf("offline and no outbox configured")
	}
	if err := g.outbox.Enqueue(outbox.Entry{
		Path:    r.Path,
		Method:  r.Method,
		Body:    r.Body,
		Headers: r.Headers,
	}); err != nil {
		return nil, err
	}
	if len(r.Body) == 0 || !json.Valid(r.Body) {
		return nil, nil
	}
	return r.Body, nil
}

// live issues one HTTP request and leniently reads the body.
func (g *Gateway) live(ctx context.Context, r Request) ([]byte, error) {
	method := http.MethodGet
	var body io.Reader
	if r.Kind == KindMutate {
		method = r.Method
		if len(r.Body) > 0 {
			body = bytes.NewReader(r.Body)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, g.apiBase+r.Path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusUnauthorized {
		if g.onUnauthorized != nil {
			g.onUnauthorized()
		}
		return nil, ErrUnauthorized
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, Message: serverMessage(data)}
	}
	return data, nil
}

// serverMessage pulls the machine-readable error field out of an error
// body, when there is one.
func serverMessage(data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return body.Error
}

func (g *Gateway) online() bool {
	if g.monitor == nil {
		return true
	}
	return g.monitor.State().Online
}
