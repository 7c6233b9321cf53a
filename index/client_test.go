package index

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetJSONSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua == "" {
			t.Error("expected User-Agent header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name": "aiohttp"}`))
	}))
	defer server.Close()

	c := NewClient()
	var out struct {
		Name string `json:"name"`
	}
	if err := c.GetJSON(context.Background(), server.URL, &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out.Name != "aiohttp" {
		t.Errorf("Name = %q, want aiohttp", out.Name)
	}
}

func TestGetJSONNotFoundNoRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(WithBaseDelay(time.Millisecond))
	err := c.GetJSON(context.Background(), server.URL, &struct{}{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetJSON = %v, want ErrNotFound", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 request, got %d", n)
	}
}

func TestGetJSONRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(WithBaseDelay(time.Millisecond), WithMaxRetries(3))
	if err := c.GetJSON(context.Background(), server.URL, &struct{}{}); err != nil {
		t.Fatalf("GetJSON failed after retries: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("expected 3 requests, got %d", n)
	}
}

func TestGetJSONRetriesExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClient(WithBaseDelay(time.Millisecond), WithMaxRetries(2))
	err := c.GetJSON(context.Background(), server.URL, &struct{}{})
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("GetJSON = %v, want ErrRateLimited", err)
	}
}

func TestGetJSONHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := NewClient()
	err := c.GetJSON(context.Background(), server.URL, &struct{}{})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("GetJSON = %v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", httpErr.StatusCode)
	}
}

func TestGetJSONRateLimitPacesRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	// 20 rps with burst 1: the second and third request each wait ~50ms.
	c := NewClient(WithRateLimit(20, 1))
	defer c.Close()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := c.GetJSON(context.Background(), server.URL, &struct{}{}); err != nil {
			t.Fatalf("GetJSON failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("3 requests completed in %v, want at least ~100ms of pacing", elapsed)
	}
}

func TestClientClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient()
	c.Close()
	c.Close() // idempotent

	// The client stays usable after Close; only DNS refresh stops.
	if err := c.GetJSON(context.Background(), server.URL, &struct{}{}); err != nil {
		t.Fatalf("GetJSON after Close failed: %v", err)
	}
}

func TestGetJSONContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(WithBaseDelay(time.Second))
	err := c.GetJSON(ctx, server.URL, &struct{}{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("GetJSON = %v, want context.Canceled", err)
	}
}
