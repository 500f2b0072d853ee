package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	coreerrors "github.com/faultmatch/core/internal/errors"
)

func adapterTestBreaker() *coreerrors.CircuitBreaker {
	return coreerrors.NewCircuitBreaker("remote-search-test",
		coreerrors.WithMaxFailures(3),
		coreerrors.WithResetTimeout(time.Minute))
}

func fakeSearchServer(t *testing.T, total int, hits []rawHit) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var resp rawSearchResponse
		resp.Hits.Total.Value = total
		resp.Hits.Hits = hits
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestAdapter_Search_ReturnsHits(t *testing.T) {
	srv := fakeSearchServer(t, 2, []rawHit{
		{ID: "case-1", Score: 9.1, Source: json.RawMessage(`{"text":"刹车异响"}`)},
		{ID: "case-2", Score: 4.3, Source: json.RawMessage(`{"text":"空调不制冷"}`)},
	})
	defer srv.Close()

	adapter := NewAdapter(Config{Endpoint: srv.URL, Index: "fault_cases"})
	defer func() { _ = adapter.Close() }()

	resp, err := adapter.Search(context.Background(), Query{Text: "刹车异响", K: 5})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}
	if len(resp.Hits) != 2 || resp.Hits[0].ID != "case-1" {
		t.Fatalf("unexpected hits: %+v", resp.Hits)
	}
}

func TestAdapter_Search_ServerErrorReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	adapter := NewAdapter(Config{Endpoint: srv.URL})
	defer func() { _ = adapter.Close() }()

	_, err := adapter.Search(context.Background(), Query{Text: "x"})
	if err == nil {
		t.Fatal("expected error from 500 response")
	}
}

func TestAdapter_Search_UnreachableHostReturnsError(t *testing.T) {
	adapter := NewAdapter(Config{Endpoint: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	defer func() { _ = adapter.Close() }()

	_, err := adapter.Search(context.Background(), Query{Text: "x"})
	if err == nil {
		t.Fatal("expected error from unreachable host")
	}
}

func TestAdapter_Search_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	adapter := NewAdapter(Config{Endpoint: srv.URL})
	defer func() { _ = adapter.Close() }()
	adapter.breaker = adapterTestBreaker()

	for i := 0; i < 3; i++ {
		_, _ = adapter.Search(context.Background(), Query{Text: "x"})
	}

	_, err := adapter.Search(context.Background(), Query{Text: "x"})
	if err == nil {
		t.Fatal("expected circuit-open error after repeated failures")
	}
}

func TestAdapter_Search_RespectsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	adapter := NewAdapter(Config{Endpoint: srv.URL, Timeout: 5 * time.Second})
	defer func() { _ = adapter.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := adapter.Search(ctx, Query{Text: "x"})
	if err == nil {
		t.Fatal("expected error from context deadline")
	}
}
