package transport_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chalkfit/chalk-client-go/transport"
	"github.com/stretchr/testify/require"
)

func newClient(tr *transport.Transport) *http.Client {
	return &http.Client{Transport: tr}
}

func get(t *testing.T, client *http.Client, url string) *http.Response {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestIsBootstrapPath(t *testing.T) {
	require.True(t, transport.IsBootstrapPath("/api/v1/auth/login"))
	require.True(t, transport.IsBootstrapPath("/api/v1/auth/refresh"))
	require.True(t, transport.IsBootstrapPath("/api/v1/auth/register"))
	require.False(t, transport.IsBootstrapPath("/api/v1/auth/logout"))
	require.False(t, transport.IsBootstrapPath("/api/v1/users/me"))
}

func TestAttachesBearerToken(t *testing.T) {
	var authHeader, requestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		requestID = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tr := transport.New()
	tr.SetAccessToken("token-1")

	resp := get(t, newClient(tr), server.URL+"/api/v1/users/me")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Bearer token-1", authHeader)
	require.NotEmpty(t, requestID)
}

func TestSkipsBearerOnBootstrapPaths(t *testing.T) {
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tr := transport.New()
	tr.SetAccessToken("token-1")

	get(t, newClient(tr), server.URL+"/api/v1/auth/login")
	require.Empty(t, authHeader)
}

func TestSetAccessTokenTakesEffectImmediately(t *testing.T) {
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tr := transport.New()
	client := newClient(tr)

	get(t, client, server.URL+"/api/v1/users/me")
	require.Empty(t, authHeader)

	tr.SetAccessToken("token-1")
	get(t, client, server.URL+"/api/v1/users/me")
	require.Equal(t, "Bearer token-1", authHeader)

	tr.SetAccessToken("")
	get(t, client, server.URL+"/api/v1/users/me")
	require.Empty(t, authHeader)
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	const concurrency = 3

	var unauthorized atomic.Int32
	allRejected := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			if unauthorized.Add(1) == concurrency {
				close(allRejected)
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tr := transport.New()
	tr.SetAccessToken("stale")

	var refreshCalls atomic.Int32
	tr.SetAuthHandlers(transport.Handlers{
		OnRefreshToken: func(ctx context.Context) (string, error) {
			// Hold the refresh open until every request has been rejected,
			// plus a grace period for the last rejection to propagate back
			// through its response, so all three join this one call.
			<-allRejected
			time.Sleep(100 * time.Millisecond)
			refreshCalls.Add(1)
			tr.SetAccessToken("fresh")
			return "fresh", nil
		},
	})

	client := newClient(tr)
	var wg sync.WaitGroup
	statuses := make([]int, concurrency)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.Get(server.URL + "/api/v1/sessions")
			if err != nil {
				return
			}
			defer resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), refreshCalls.Load())
	for _, status := range statuses {
		require.Equal(t, http.StatusOK, status)
	}
}

func TestRefreshFailureInvokesAuthFailureAndPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tr := transport.New()
	tr.SetAccessToken("stale")

	var failures atomic.Int32
	tr.SetAuthHandlers(transport.Handlers{
		OnRefreshToken: func(ctx context.Context) (string, error) { return "", nil },
		OnAuthFailure:  func(ctx context.Context) { failures.Add(1) },
	})

	resp := get(t, newClient(tr), server.URL+"/api/v1/users/me")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, int32(1), failures.Load())
}

func TestRetriesAtMostOnce(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tr := transport.New()
	tr.SetAccessToken("stale")

	var refreshCalls atomic.Int32
	tr.SetAuthHandlers(transport.Handlers{
		OnRefreshToken: func(ctx context.Context) (string, error) {
			refreshCalls.Add(1)
			return "fresh", nil
		},
	})

	resp := get(t, newClient(tr), server.URL+"/api/v1/users/me")

	// The retried request 401s again and propagates without another cycle.
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, int32(2), hits.Load())
	require.Equal(t, int32(1), refreshCalls.Load())
}

func TestBootstrap401IsNotIntercepted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tr := transport.New()
	var refreshCalls atomic.Int32
	tr.SetAuthHandlers(transport.Handlers{
		OnRefreshToken: func(ctx context.Context) (string, error) {
			refreshCalls.Add(1)
			return "fresh", nil
		},
	})

	resp := get(t, newClient(tr), server.URL+"/api/v1/auth/login")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, int32(0), refreshCalls.Load())
}

func TestWithoutHandlers401Propagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tr := transport.New()
	tr.SetAccessToken("stale")

	resp := get(t, newClient(tr), server.URL+"/api/v1/users/me")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestClearAuthHandlersRestoresUnsetState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tr := transport.New()
	var refreshCalls atomic.Int32
	tr.SetAuthHandlers(transport.Handlers{
		OnRefreshToken: func(ctx context.Context) (string, error) {
			refreshCalls.Add(1)
			return "fresh", nil
		},
	})
	tr.ClearAuthHandlers()

	resp := get(t, newClient(tr), server.URL+"/api/v1/users/me")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, int32(0), refreshCalls.Load())
}

func TestRetryReplaysRequestBody(t *testing.T) {
	var bodies []string
	var lock sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		lock.Lock()
		bodies = append(bodies, string(body))
		lock.Unlock()
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tr := transport.New()
	tr.SetAccessToken("stale")
	tr.SetAuthHandlers(transport.Handlers{
		OnRefreshToken: func(ctx context.Context) (string, error) { return "fresh", nil },
	})

	client := newClient(tr)
	resp, err := client.Post(server.URL+"/api/v1/auth/logout", "application/json", strings.NewReader(`{"refresh_token":"r"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{`{"refresh_token":"r"}`, `{"refresh_token":"r"}`}, bodies)
}
