// Package lifecycle bridges churn notifications into github.com/aretw0/lifecycle
// event sources.
package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/churn/pkg/adapters/rangefile"
)

type rangeSource struct {
	changes <-chan rangefile.Change
	out     chan lifecycle.Event
}

// NewRangeSource creates a lifecycle.Source that emits visible-range reloads.
// rangefile.Change implements lifecycle.Event through its String method.
func NewRangeSource(changes <-chan rangefile.Change) lifecycle.Source {
	return &rangeSource{
		changes: changes,
		out:     make(chan lifecycle.Event),
	}
}

func (s *rangeSource) Events() <-chan lifecycle.Event {
	return s.out
}

// Start forwards changes until ctx is cancelled or the input is closed,
// then closes the output.
func (s *rangeSource) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case c, ok := <-s.changes:
				if !ok {
					return nil
				}
				select {
				case s.out <- c:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
