package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	coreerrors "github.com/faultmatch/core/internal/errors"
)

// PoolSize bounds the adapter's connection pool. Search traffic is one
// request per incoming query, not a bulk job, so a small pool suffices.
const PoolSize = 8

// Config configures an Adapter.
type Config struct {
	Endpoint       string
	Index          string
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

// Adapter issues hybrid lexical+vector search requests against an external
// OpenSearch/Elasticsearch-shaped backend, wrapped in a circuit breaker so
// a persistently failing backend fails fast rather than queueing requests.
type Adapter struct {
	client    *http.Client
	transport *http.Transport
	config    Config
	breaker   *coreerrors.CircuitBreaker
}

// NewAdapter builds an Adapter. cfg.Endpoint must be a reachable base URL;
// callers should treat a disabled remote source (empty endpoint) as a
// configuration decision made before constructing an Adapter, not an error
// this constructor detects.
func NewAdapter(cfg Config) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout * time.Millisecond
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout * time.Millisecond
	}
	if cfg.Index == "" {
		cfg.Index = "fault_cases"
	}

	// No client-level Timeout: every call scopes its own
	// context.WithTimeout so a caller's deadline composes correctly
	// instead of being silently overridden.
	transport := &http.Transport{
		MaxIdleConns:        PoolSize,
		MaxIdleConnsPerHost: PoolSize,
		MaxConnsPerHost:     PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}
	client := &http.Client{Transport: transport}

	return &Adapter{
		client:    client,
		transport: transport,
		config:    cfg,
		breaker: coreerrors.NewCircuitBreaker("remote-search",
			coreerrors.WithMaxFailures(5),
			coreerrors.WithResetTimeout(30*time.Second)),
	}
}

// Search issues a hybrid multi_match + optional knn query against the
// configured backend, bounded by cfg.Timeout, and fails fast if the
// circuit breaker is open.
func (a *Adapter) Search(ctx context.Context, q Query) (Response, error) {
	var resp Response

	err := a.breaker.Execute(func() error {
		r, err := a.doSearch(ctx, q)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		if err == coreerrors.ErrCircuitOpen {
			return Response{}, coreerrors.New(coreerrors.ErrCodeCircuitOpen,
				"remote search circuit is open", err)
		}
		return Response{}, coreerrors.New(coreerrors.ErrCodeRemoteTimeout,
			"remote search failed", err)
	}
	return resp, nil
}

func (a *Adapter) doSearch(ctx context.Context, q Query) (Response, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	body, err := json.Marshal(buildRequest(q))
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal query: %w", err)
	}

	url := fmt.Sprintf("%s/%s/_search", a.config.Endpoint, a.config.Index)
	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	type result struct {
		resp Response
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		resp, err := a.client.Do(req)
		if err != nil {
			resultCh <- result{err: fmt.Errorf("failed to connect to remote search backend: %w", err)}
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			resultCh <- result{err: fmt.Errorf("remote search failed with status %d: %s", resp.StatusCode, string(respBody))}
			return
		}

		var raw rawSearchResponse
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			resultCh <- result{err: fmt.Errorf("failed to decode remote search response: %w", err)}
			return
		}

		hits := make([]Hit, len(raw.Hits.Hits))
		for i, h := range raw.Hits.Hits {
			hits[i] = Hit{
				ID:        h.ID,
				Source:    h.Source,
				Score:     h.Score,
				Highlight: h.Highlight,
			}
		}

		resultCh <- result{resp: Response{Total: raw.Hits.Total.Value, Hits: hits}}
	}()

	select {
	case <-timeoutCtx.Done():
		a.forceCloseConnections()
		select {
		case <-resultCh:
		case <-time.After(100 * time.Millisecond):
		}
		return Response{}, timeoutCtx.Err()
	case r := <-resultCh:
		return r.resp, r.err
	}
}

// Close releases pooled HTTP connections.
func (a *Adapter) Close() error {
	if a.transport != nil {
		a.transport.CloseIdleConnections()
	}
	return nil
}

func (a *Adapter) forceCloseConnections() {
	a.transport.CloseIdleConnections()
	a.transport = &http.Transport{
		MaxIdleConns:        PoolSize,
		MaxIdleConnsPerHost: PoolSize,
		MaxConnsPerHost:     PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
		DisableKeepAlives:   true,
	}
	a.client.Transport = a.transport
}
