package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchItem is the per-application outcome of a batch run. Exactly one
// of Result and Err is set.
type BatchItem struct {
	ApplicationID string            `json:"applicationId"`
	Result        *EvaluationResult `json:"result,omitempty"`
	Err           string            `json:"error,omitempty"`
}

// BatchResult summarizes a batch evaluation.
type BatchResult struct {
	Items     []BatchItem   `json:"items"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"-"`
}

// EvaluateBatch evaluates many applications concurrently, bounded by
// concurrency. Scheme configuration is resolved up front so a
// misconfigured scheme aborts the batch before any work starts.
// Individual application failures are recorded in the result rather
// than aborting the batch; only context cancellation stops the run
// early.
func (p *Pipeline) EvaluateBatch(ctx context.Context, applicationIDs []string, concurrency int) (*BatchResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	start := time.Now()
	items := make([]BatchItem, len(applicationIDs))

	// Pre-flight: every scheme in the batch must have a config.
	// Unknown application IDs are left for the workers so they show
	// up as per-item failures, not a batch abort.
	schemes := make(map[string]struct{})
	for _, id := range applicationIDs {
		app, err := p.store.GetApplication(ctx, id)
		if err != nil {
			continue
		}
		schemes[app.SchemeCode] = struct{}{}
	}
	for scheme := range schemes {
		if _, err := p.rules.SchemeConfig(ctx, scheme); err != nil {
			return nil, fmt.Errorf("batch pre-flight: load scheme config %s: %w", scheme, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, id := range applicationIDs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := p.EvaluateApplication(ctx, id)
			if err != nil {
				items[i] = BatchItem{ApplicationID: id, Err: err.Error()}
				slog.Warn("batch evaluation failed",
					"application_id", id,
					"error", err,
				)
				return nil
			}
			items[i] = BatchItem{ApplicationID: id, Result: res}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &BatchResult{Items: items, Duration: time.Since(start)}
	for _, it := range items {
		if it.Err == "" {
			out.Succeeded++
		} else {
			out.Failed++
		}
	}
	return out, nil
}
