package terrain

import (
	"context"
	"log/slog"
	"time"
)

// BatchResult holds the outcome of one submission in a batch: either the
// created analysis or that element's error, never both.
type BatchResult struct {
	Analysis *Analysis
	Err      error
}

// SubmitBatch applies Submit once per value, strictly in order and one at a
// time. Each submission must complete before the next begins. A failure on
// one value is captured as that element's result without aborting the rest;
// already-sent requests are never rolled back or retried. The result slice
// has exactly one entry per value, in input order. A pause greater than zero
// spaces consecutive submissions apart.
func SubmitBatch[V any](ctx context.Context, c *Client, build func(V) (*SubmissionRequest, error), values []V, pause time.Duration) []BatchResult {
	results := make([]BatchResult, len(values))
	for i, value := range values {
		if i > 0 && pause > 0 {
			select {
			case <-ctx.Done():
				results[i] = BatchResult{Err: &APIError{Kind: KindTransport, Endpoint: "/analyses", Err: ctx.Err()}}
				continue
			case <-time.After(pause):
			}
		}

		req, err := build(value)
		if err != nil {
			results[i] = BatchResult{Err: err}
			continue
		}

		analysis, err := c.Submit(ctx, req)
		if err != nil {
			slog.Warn("batch submission failed", "index", i, "name", req.Name, "error", err)
			results[i] = BatchResult{Err: err}
			continue
		}
		results[i] = BatchResult{Analysis: analysis}
	}
	return results
}
