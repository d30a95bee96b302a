package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/voxdesk/internal/observe"
)

// ErrAllFailed is returned when no entry of a [FallbackGroup] produced a
// result.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the template for each entry's breaker. Its Name is
	// replaced by the entry name.
	CircuitBreaker CircuitBreakerConfig

	// Kind labels provider error metrics, e.g. "llm".
	Kind string

	// Metrics, if set, counts failed calls per provider.
	Metrics *observe.Metrics
}

type entry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary value and ordered fallbacks of the same type.
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	entries []entry[T]
}

// NewFallbackGroup returns a group whose first entry is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends v. Entries are tried in the order they were added.
// AddFallback must not be called concurrently with [Do].
func (fg *FallbackGroup[T]) AddFallback(name string, v T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.entries = append(fg.entries, entry[T]{name: name, value: v, breaker: NewCircuitBreaker(bc)})
}

// Names returns the entry names in try order.
func (fg *FallbackGroup[T]) Names() []string {
	out := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		out[i] = e.name
	}
	return out
}

// Len returns the number of entries.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// Do calls fn on each entry in order until one succeeds. Entries with an open
// breaker are skipped. Once ctx is done no further entry is tried and the
// context error is returned. If every entry fails the result wraps
// [ErrAllFailed] and the last error.
func Do[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	log := observe.Logger(ctx)
	for i := range fg.entries {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		e := &fg.entries[i]
		var out R
		err := e.breaker.Execute(func() error {
			var callErr error
			out, callErr = fn(ctx, e.value)
			return callErr
		})
		if err == nil {
			if i > 0 {
				log.Info("served by fallback provider", "kind", fg.cfg.Kind, "provider", e.name)
			}
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			log.Debug("provider skipped, circuit open", "kind", fg.cfg.Kind, "provider", e.name)
			continue
		}
		if fg.cfg.Metrics != nil {
			fg.cfg.Metrics.RecordProviderError(ctx, fg.cfg.Kind+":"+e.name, "failover")
		}
		if i < len(fg.entries)-1 {
			log.Warn("provider failed, trying next", "kind", fg.cfg.Kind, "provider", e.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
