// Package readiness judges whether a profile covers enough of the objective
// checklist to take part in matching, and narrows candidate lists through a
// pipeline of eligibility filters.
package readiness

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kalambet/talkmatch/internal/composer"
	"github.com/kalambet/talkmatch/internal/engine"
)

// DefaultThreshold is the minimum score, inclusive, for a profile to be ready.
const DefaultThreshold = 80.0

// Evaluator scores profile coverage with an AI judge.
type Evaluator struct {
	ai        engine.Engine
	composer  *composer.Composer
	threshold float64
	logger    *slog.Logger
}

// NewEvaluator creates an Evaluator. A threshold <= 0 selects DefaultThreshold.
func NewEvaluator(ai engine.Engine, comp *composer.Composer, threshold float64) *Evaluator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Evaluator{
		ai:        ai,
		composer:  comp,
		threshold: threshold,
		logger:    slog.Default(),
	}
}

// Threshold returns the inclusive score a profile must reach.
func (e *Evaluator) Threshold() float64 { return e.threshold }

// Score asks the judge how well profile covers objectives on a 0-100 scale.
// A reply that is not a plain number scores 0.
func (e *Evaluator) Score(ctx context.Context, objectives []string, profile string) (float64, error) {
	reply, err := e.ai.Complete(ctx, e.composer.Readiness(profile, objectives))
	if err != nil {
		return 0, fmt.Errorf("scoring readiness: %w", err)
	}
	return ParseScore(reply), nil
}

// IsReady reports whether the judged score reaches the threshold.
func (e *Evaluator) IsReady(ctx context.Context, name string, objectives []string, profile string) (bool, error) {
	score, err := e.Score(ctx, objectives, profile)
	if err != nil {
		return false, err
	}
	e.logger.Info("Readiness result", "name", name, "score", score)
	return score >= e.threshold, nil
}

// ParseScore converts a judge reply to a number, returning 0 for anything
// that does not parse.
func ParseScore(reply string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		return 0
	}
	return v
}

// Missing returns the objectives not mentioned anywhere in profile, in
// checklist order. Matching is a case-insensitive substring test.
func Missing(objectives []string, profile string) []string {
	lower := strings.ToLower(profile)
	var missing []string
	for _, o := range objectives {
		if !strings.Contains(lower, strings.ToLower(o)) {
			missing = append(missing, o)
		}
	}
	return missing
}
