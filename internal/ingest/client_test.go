package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pmwatch/internal/config"
)

func testClient(dataBase, gammaBase string) *Client {
	return NewClient(zerolog.Nop(), config.IngestConfig{
		DataBase:    dataBase,
		GammaBase:   gammaBase,
		Limit:       500,
		Timeout:     2 * time.Second,
		MinInterval: time.Millisecond,
		MaxRetries:  2,
		UserAgent:   "pmwatch-test",
	})
}

func TestRecentTrades_ParsesBatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trades" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "100" {
			t.Errorf("limit = %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"proxyWallet":"0xa","side":"BUY","size":100,"price":0.5,"timestamp":1000,"conditionId":"m1"},
			{"proxyWallet":"0xb","side":"SELL","size":"200","price":"0.25","timestamp":1001,"conditionId":"m2"}
		]`))
	}))
	defer srv.Close()

	trades, err := testClient(srv.URL, srv.URL).RecentTrades(context.Background(), 100, 0)
	if err != nil {
		t.Fatalf("recent trades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("got %d trades", len(trades))
	}
	if trades[1].Size != 200 || trades[1].Price != 0.25 {
		t.Fatalf("string numbers not coerced: %+v", trades[1])
	}
}

// Server errors are retried with backoff until the budget runs out.
func TestGetJSON_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, srv.URL).RecentTrades(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

// 4xx responses other than 429 fail immediately.
func TestGetJSON_NoRetryOnClientError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, srv.URL).RecentTrades(context.Background(), 10, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want no retry", calls.Load())
	}
}

// A Retry-After wait must not outlive the caller's context.
func TestGetJSON_RetryAfterHonorsContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := testClient(srv.URL, srv.URL).RecentTrades(ctx, 10, 0)
	if err == nil {
		t.Fatal("expected context error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("rate-limit wait ignored cancellation, took %v", elapsed)
	}
}

func TestMarketByConditionID_UnknownIsNil(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("condition_ids"); got != "0xcond" {
			t.Errorf("condition_ids = %s", got)
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	m, err := testClient(srv.URL, srv.URL).MarketByConditionID(context.Background(), "0xcond")
	if err != nil {
		t.Fatalf("market lookup: %v", err)
	}
	if m != nil {
		t.Fatalf("unknown market should be nil, got %+v", m)
	}
}

func TestMarketByConditionID_ParsesMarket(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"conditionId":"0xcond","question":"?","slug":"q","liquidityNum":12345.0}]`))
	}))
	defer srv.Close()

	m, err := testClient(srv.URL, srv.URL).MarketByConditionID(context.Background(), "0xcond")
	if err != nil {
		t.Fatalf("market lookup: %v", err)
	}
	if m == nil || m.LiquidityNum == nil || *m.LiquidityNum != 12345 {
		t.Fatalf("market = %+v", m)
	}
}

func TestRecentTrades_ContextCancel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := testClient(srv.URL, srv.URL).RecentTrades(ctx, 10, 0); err == nil {
		t.Fatal("expected context error")
	}
}
