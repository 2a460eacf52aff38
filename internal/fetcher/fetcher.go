// Package fetcher retrieves and parses health documents from remote endpoints.
package fetcher

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hazz-dev/statusrelay/internal/registry"
)

// Fetcher performs a single health document fetch. Failures are reported in
// the Outcome, never as a panic or separate error.
type Fetcher interface {
	Fetch(ctx context.Context, ep registry.Endpoint) Outcome
}

// FetchAll fetches every endpoint concurrently and returns once all fetches
// have finished. Outcomes are in the same order as endpoints.
func FetchAll(ctx context.Context, f Fetcher, endpoints []registry.Endpoint) []Outcome {
	outcomes := make([]Outcome, len(endpoints))
	var g errgroup.Group
	for i, ep := range endpoints {
		g.Go(func() error {
			outcomes[i] = f.Fetch(ctx, ep)
			return nil
		})
	}
	g.Wait()
	return outcomes
}
