package rerank

import (
	"context"
	"time"
)

// New returns a CrossEncoderReranker when endpoint is non-empty, or a
// NoOpReranker when reranking is not configured.
func New(ctx context.Context, endpoint string, concurrency int, timeoutMS int) (Reranker, error) {
	if endpoint == "" {
		return &NoOpReranker{}, nil
	}

	cfg := Config{
		Endpoint:    endpoint,
		Concurrency: concurrency,
	}
	if timeoutMS > 0 {
		cfg.Timeout = time.Duration(timeoutMS) * time.Millisecond
	}
	return NewCrossEncoderReranker(ctx, cfg)
}
