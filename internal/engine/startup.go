package engine

import (
	"context"
	"fmt"
	"io"
)

// EnsureReady checks that a local model server is reachable and model is
// available. A missing model is pulled with progress output written to w.
func EnsureReady(ctx context.Context, p Puller, model string, w io.Writer) error {
	if !p.IsRunning(ctx) {
		return fmt.Errorf("local inference engine is not running; please ensure the backend is started")
	}
	if model == "" {
		return nil
	}

	if p.HasModel(ctx, model) {
		fmt.Fprintf(w, "model %s: ready\n", model)
		return nil
	}

	fmt.Fprintf(w, "model %s: pulling...\n", model)
	err := p.PullModel(ctx, model, func(pr PullProgress) {
		if pr.Total > 0 {
			pct := float64(pr.Completed) / float64(pr.Total) * 100
			fmt.Fprintf(w, "  %s %.0f%%\n", pr.Status, pct)
		} else {
			fmt.Fprintf(w, "  %s\n", pr.Status)
		}
	})
	if err != nil {
		return fmt.Errorf("pulling model %s: %w", model, err)
	}
	fmt.Fprintf(w, "model %s: ready\n", model)
	return nil
}
