package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func TestNewClient(t *testing.T) {
	client := New(DefaultConfig())
	if client == nil {
		t.Fatal("expected client to be created")
	}
	client.Close()
}

func TestNewClientNilConfig(t *testing.T) {
	client := New(nil)
	if client == nil {
		t.Fatal("expected client to be created with default config")
	}
	if client.StdClient() == nil {
		t.Fatal("expected underlying http.Client")
	}
	client.Close()
}

func TestClientGetSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if ua := r.Header.Get("User-Agent"); ua != "biomedtube/1.0" {
			t.Errorf("User-Agent = %q, want biomedtube/1.0", ua)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("test response"))
	}))
	defer server.Close()

	client := New(DefaultConfig())
	defer client.Close()

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if string(resp.Body) != "test response" {
		t.Errorf("expected 'test response', got %q", string(resp.Body))
	}
}

func TestClientDoWithHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Client-ID abc" {
			t.Errorf("expected Authorization header, got %q", got)
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := New(DefaultConfig())
	defer client.Close()

	_, err := client.Do(context.Background(), http.MethodGet, server.URL, nil, map[string]string{
		"Authorization": "Client-ID abc",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClientGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"CRISPR","count":3}`))
	}))
	defer server.Close()

	client := New(DefaultConfig())
	defer client.Close()

	var got struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	if err := client.GetJSON(context.Background(), server.URL, nil, &got); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if got.Name != "CRISPR" || got.Count != 3 {
		t.Errorf("GetJSON() = %+v", got)
	}
}

func TestClientGetJSONMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	client := New(DefaultConfig())
	defer client.Close()

	var v map[string]any
	if err := client.GetJSON(context.Background(), server.URL, nil, &v); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestClientHTTPErrorNoRetryByDefault(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	client := New(DefaultConfig())
	defer client.Close()

	_, err := client.Get(context.Background(), server.URL+"?api_key=secret")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %T: %v", err, err)
	}
	if httpErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", httpErr.StatusCode)
	}
	if strings.Contains(httpErr.Error(), "secret") {
		t.Errorf("error leaks api key: %v", httpErr)
	}
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestClientRetriesServerErrorsWhenConfigured(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("success"))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Retry.MaxRetries = 2
	cfg.Retry.InitialBackoff = 5 * time.Millisecond
	cfg.Retry.MaxBackoff = 20 * time.Millisecond

	client := New(cfg)
	defer client.Close()

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != "success" {
		t.Errorf("body = %q, want success", resp.Body)
	}
	if n := atomic.LoadInt32(&attempts); n != 2 {
		t.Errorf("attempts = %d, want 2", n)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Retry.MaxRetries = 3
	cfg.Retry.InitialBackoff = time.Millisecond

	client := New(cfg)
	defer client.Close()

	if _, err := client.Get(context.Background(), server.URL); err == nil {
		t.Fatal("expected error")
	}
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestClientRateLimitResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := New(DefaultConfig())
	defer client.Close()

	_, err := client.Get(context.Background(), server.URL)
	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected *RateLimitError, got %T: %v", err, err)
	}
	if !client.rateLimiter.IsBackedOff(server.URL) {
		t.Error("expected domain to be backed off after 429")
	}
}

func TestClientContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := New(DefaultConfig())
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := client.Get(ctx, server.URL); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "5", 5 * time.Second},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Retry-After", tt.header)
			}
			if got := parseRetryAfter(h); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.header, got, tt.want)
			}
		})
	}
}

func TestRedact(t *testing.T) {
	got := redact("https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi?db=pubmed&api_key=s3cr3t")
	if strings.Contains(got, "s3cr3t") {
		t.Errorf("redact() = %q, still contains key", got)
	}
	if !strings.Contains(got, "db=pubmed") {
		t.Errorf("redact() = %q, dropped other params", got)
	}
}

func TestStdClientIsInstrumented(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 5 * time.Second
	c := New(cfg)
	defer c.Close()

	std := c.StdClient()
	if std.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", std.Timeout)
	}
	if _, ok := std.Transport.(*otelhttp.Transport); !ok {
		t.Errorf("Transport = %T, want *otelhttp.Transport", std.Transport)
	}
}
