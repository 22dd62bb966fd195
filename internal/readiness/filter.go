package readiness

import (
	"context"
	"fmt"
	"log/slog"
)

// Filter narrows a candidate list. Implementations keep the input order.
type Filter interface {
	Filter(ctx context.Context, users []string) ([]string, error)
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(ctx context.Context, users []string) ([]string, error)

func (f FilterFunc) Filter(ctx context.Context, users []string) ([]string, error) {
	return f(ctx, users)
}

// ProfileReader returns the stored summary for a user, or "".
type ProfileReader interface {
	Read(name string) string
}

// ReadinessFilter drops users whose profile is not ready.
type ReadinessFilter struct {
	evaluator  *Evaluator
	profiles   ProfileReader
	objectives []string
	logger     *slog.Logger
}

// NewReadinessFilter creates a filter judging each user's profile against objectives.
func NewReadinessFilter(eval *Evaluator, profiles ProfileReader, objectives []string) *ReadinessFilter {
	return &ReadinessFilter{
		evaluator:  eval,
		profiles:   profiles,
		objectives: objectives,
		logger:     slog.Default(),
	}
}

func (f *ReadinessFilter) Filter(ctx context.Context, users []string) ([]string, error) {
	kept := make([]string, 0, len(users))
	for _, name := range users {
		ready, err := f.evaluator.IsReady(ctx, name, f.objectives, f.profiles.Read(name))
		if err != nil {
			return nil, fmt.Errorf("checking readiness of %s: %w", name, err)
		}
		if !ready {
			f.logger.Info(fmt.Sprintf("%s has too little profile info", name))
			continue
		}
		kept = append(kept, name)
	}
	return kept, nil
}

// Pipeline applies filters in order, stopping early once no candidates remain.
// The result is never nil.
type Pipeline []Filter

func (p Pipeline) Filter(ctx context.Context, users []string) ([]string, error) {
	out := make([]string, len(users))
	copy(out, users)
	for _, f := range p {
		if len(out) == 0 {
			break
		}
		var err error
		out, err = f.Filter(ctx, out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
