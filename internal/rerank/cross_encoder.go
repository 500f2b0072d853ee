package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"
)

// DefaultConcurrency bounds the number of in-flight scoring requests per
// Rerank call, mirroring the example reranking pipeline's defaultConcurrency.
const DefaultConcurrency = 3

// DefaultTimeout bounds a whole Rerank call.
const DefaultTimeout = 3 * time.Second

// Config configures a CrossEncoderReranker.
type Config struct {
	Endpoint        string
	Concurrency     int
	Timeout         time.Duration
	SkipHealthCheck bool
}

// CrossEncoderReranker scores (query, candidate_text) pairs by POSTing each
// pair to a configurable cross-encoder endpoint and applying sigmoid to the
// raw logit it returns. Scoring runs concurrently, bounded to
// cfg.Concurrency in-flight requests.
type CrossEncoderReranker struct {
	client *http.Client
	config Config

	mu     sync.RWMutex
	closed bool
}

var _ Reranker = (*CrossEncoderReranker)(nil)

type scoreRequest struct {
	Query     string `json:"query"`
	Candidate string `json:"candidate"`
}

type scoreResponse struct {
	Logit float64 `json:"logit"`
}

// NewCrossEncoderReranker builds a CrossEncoderReranker. Unless
// cfg.SkipHealthCheck is set, it probes the endpoint's /health route.
func NewCrossEncoderReranker(ctx context.Context, cfg Config) (*CrossEncoderReranker, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     30 * time.Second,
		},
	}

	r := &CrossEncoderReranker{client: client, config: cfg}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := r.healthCheck(checkCtx); err != nil {
			return nil, fmt.Errorf("cross-encoder reranker health check failed: %w", err)
		}
	}

	return r, nil
}

func (r *CrossEncoderReranker) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.config.Endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to reranker endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("reranker endpoint unhealthy (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// Rerank scores each document against query concurrently (bounded to
// config.Concurrency in-flight requests), sorts by score descending, and
// truncates to topK. A document whose scoring request fails, or that is
// still waiting for a slot when the timeout expires, keeps the zero score
// rather than aborting the whole call.
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("reranker is closed")
	}

	if len(documents) == 0 {
		return []RerankResult{}, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	results := make([]RerankResult, len(documents))
	sem := make(chan struct{}, r.config.Concurrency)

	var wg sync.WaitGroup
	for i, doc := range documents {
		wg.Add(1)
		go func(idx int, document string) {
			defer wg.Done()
			results[idx] = RerankResult{Index: idx, Document: document}

			select {
			case sem <- struct{}{}:
			case <-timeoutCtx.Done():
				return
			}
			defer func() { <-sem }()

			logit, err := r.scorePair(timeoutCtx, query, document)
			score := 0.0
			if err == nil {
				score = sigmoid(logit)
			}
			results[idx] = RerankResult{Index: idx, Score: score, Document: document}
		}(i, doc)
	}
	wg.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

func (r *CrossEncoderReranker) scorePair(ctx context.Context, query, candidate string) (float64, error) {
	body, err := json.Marshal(scoreRequest{Query: query, Candidate: candidate})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.Endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rerank request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("rerank failed (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode rerank response: %w", err)
	}
	return result.Logit, nil
}

// Available checks if the reranker endpoint is reachable.
func (r *CrossEncoderReranker) Available(ctx context.Context) bool {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return false
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.healthCheck(checkCtx) == nil
}

// Close releases pooled HTTP connections.
func (r *CrossEncoderReranker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	if transport, ok := r.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}
