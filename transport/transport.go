// Package transport provides the shared request pipeline for the Chalk
// backend: it attaches the current bearer token to outgoing requests,
// detects authentication failures, and coordinates a single in-flight token
// refresh across concurrent requests before retrying each of them once.
package transport

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// BootstrapPathPrefixes are the unauthenticated endpoints. Requests to them
// never carry a bearer token and are never subject to refresh-and-retry.
var BootstrapPathPrefixes = []string{
	"/api/v1/auth/login",
	"/api/v1/auth/register",
	"/api/v1/auth/refresh",
}

const (
	authorizationHeader = "Authorization"
	requestIDHeader     = "X-Request-ID"
	refreshKey          = "token-refresh"
)

// IsBootstrapPath reports whether path targets an unauthenticated bootstrap
// endpoint. Matching is by prefix.
func IsBootstrapPath(path string) bool {
	for _, prefix := range BootstrapPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Handlers wires the transport to the session manager. OnRefreshToken must
// return the new access token, or an empty token when the refresh failed
// terminally. OnAuthFailure drops the session.
type Handlers struct {
	OnRefreshToken func(ctx context.Context) (string, error)
	OnAuthFailure  func(ctx context.Context)
}

// Transport is an http.RoundTripper holding a derived, always-overwritable
// copy of the current access token plus the two auth callbacks. It never
// mutates the session itself.
//
// On a 401 to a non-bootstrap request, all concurrent failures await the
// same in-flight refresh; each request is then retried at most once with the
// new token. The retry is structural - RoundTrip never loops - so a
// persistently failing backend cannot cause a retry storm.
type Transport struct {
	base http.RoundTripper

	mu       sync.RWMutex
	token    string
	handlers *Handlers

	refreshGroup singleflight.Group
}

// TransportOption defines a function type to modify the Transport instance.
type TransportOption func(*Transport)

// WithBase sets the underlying round tripper (primarily for testing).
func WithBase(base http.RoundTripper) TransportOption {
	return func(t *Transport) {
		t.base = base
	}
}

// New creates a Transport over http.DefaultTransport unless overridden.
func New(options ...TransportOption) *Transport {
	transport := &Transport{base: http.DefaultTransport}
	for _, opt := range options {
		opt(transport)
	}
	return transport
}

var _ http.RoundTripper = (*Transport)(nil)

// SetAccessToken updates the token attached to future requests. It takes
// effect immediately, including for requests queued but not yet sent. An
// empty token clears it.
func (t *Transport) SetAccessToken(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = token
}

// SetAuthHandlers registers the refresh and auth-failure callbacks,
// replacing any previous registration.
func (t *Transport) SetAuthHandlers(handlers Handlers) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = &handlers
}

// ClearAuthHandlers returns the transport to its unset state: 401 responses
// propagate directly and no stale callbacks are retained.
func (t *Transport) ClearAuthHandlers() {
	t.mu.Lock()
	t.handlers = nil
	t.mu.Unlock()
	t.refreshGroup.Forget(refreshKey)
}

// RoundTrip sends the request with the current bearer token attached, and on
// an eligible 401 refreshes the token once and retries.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	attempt := req.Clone(req.Context())
	if attempt.Header.Get(requestIDHeader) == "" {
		attempt.Header.Set(requestIDHeader, uuid.New().String())
	}

	bootstrap := IsBootstrapPath(req.URL.Path)
	if token := t.currentToken(); token != "" && !bootstrap {
		attempt.Header.Set(authorizationHeader, "Bearer "+token)
	}

	resp, err := t.base.RoundTrip(attempt)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || bootstrap {
		return resp, nil
	}

	handlers := t.currentHandlers()
	if handlers == nil || handlers.OnRefreshToken == nil {
		return resp, nil
	}

	// A consumed body with no way to replay it cannot be retried safely.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	token := t.sharedRefresh(req.Context(), handlers)
	if token == "" {
		if handlers.OnAuthFailure != nil {
			handlers.OnAuthFailure(req.Context())
		}
		return resp, nil
	}

	drain(resp)
	return t.retry(req, attempt, token)
}

// sharedRefresh collapses concurrent refresh triggers into one call to the
// session manager. Losers of the race receive the winner's result.
func (t *Transport) sharedRefresh(ctx context.Context, handlers *Handlers) string {
	result, err, _ := t.refreshGroup.Do(refreshKey, func() (interface{}, error) {
		return handlers.OnRefreshToken(ctx)
	})
	if err != nil {
		return ""
	}
	token, _ := result.(string)
	return token
}

// retry re-sends the request exactly once with the fresh token.
func (t *Transport) retry(req, attempt *http.Request, token string) (*http.Response, error) {
	next := req.Clone(req.Context())
	next.Header.Set(requestIDHeader, attempt.Header.Get(requestIDHeader))
	next.Header.Set(authorizationHeader, "Bearer "+token)

	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		next.Body = body
	}

	return t.base.RoundTrip(next)
}

func (t *Transport) currentToken() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}

func (t *Transport) currentHandlers() *Handlers {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.handlers
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
