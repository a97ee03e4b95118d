package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient() *Client {
	c := New(2*time.Second, WithRetry(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Retry5xx: true}))
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestGetJSONRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"value":"ok"}`))
	}))
	defer srv.Close()

	var out struct {
		Value string `json:"value"`
	}
	if err := newTestClient().GetJSON(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Value != "ok" {
		t.Fatalf("value = %q, want %q", out.Value, "ok")
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestGetJSONStopsOnNonRetryableStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"message":"bad"}`))
	}))
	defer srv.Close()

	err := newTestClient().GetJSON(context.Background(), srv.URL, nil)
	var herr *HTTPError
	if !errors.As(err, &herr) {
		t.Fatalf("err = %v, want *HTTPError", err)
	}
	if herr.StatusCode != http.StatusBadRequest || string(herr.Body) != `{"success":false,"message":"bad"}` {
		t.Fatalf("http error = %+v", herr)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestPostJSONDoesNotRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if err := newTestClient().PostJSON(context.Background(), srv.URL, map[string]string{"userId": "u1"}, nil); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	resp := &http.Response{Header: http.Header{}}
	if got := ParseRetryAfter(resp); got != 0 {
		t.Fatalf("missing header = %v, want 0", got)
	}
	resp.Header.Set("Retry-After", "2")
	if got := ParseRetryAfter(resp); got != 2*time.Second {
		t.Fatalf("seconds header = %v, want 2s", got)
	}
	resp.Header.Set("Retry-After", "soon")
	if got := ParseRetryAfter(resp); got != 0 {
		t.Fatalf("invalid header = %v, want 0", got)
	}
}

func TestBackoffCapsAtMaxDelay(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 2 * time.Second}
	if got := backoff(5, cfg, 0); got < 2*time.Second || got >= 2*time.Second+100*time.Millisecond {
		t.Fatalf("backoff = %v, want within jitter of 2s", got)
	}
	if got := backoff(1, cfg, 10*time.Second); got != 2*time.Second {
		t.Fatalf("retry-after backoff = %v, want 2s", got)
	}
}
