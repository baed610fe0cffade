// Package journal fans decision records out to diagnostic sinks.
package journal

import (
	"context"
	"errors"

	"planes_maxsum/internal/domain"
)

type Sink interface {
	LogDecision(ctx context.Context, entry domain.DecisionLog) error
}

// Multi writes every entry to all sinks, in order. A failing sink does not
// stop the others; their errors are joined.
type Multi []Sink

func (m Multi) LogDecision(ctx context.Context, entry domain.DecisionLog) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.LogDecision(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) LogDecision(context.Context, domain.DecisionLog) error { return nil }
