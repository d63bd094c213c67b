package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/moyeo-ai/moyeo/internal/observe"
)

// ErrAllFailed means every backend in a group failed or sat behind an open
// breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures the per-backend breakers of a [FallbackGroup].
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type backend[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup routes calls across interchangeable backends of one concern
// ("llm", "stt", "tts"): the primary first, then each fallback in
// registration order, skipping backends whose breaker is open. Assemble the
// group before use; AddFallback must not race with Execute.
type FallbackGroup[T any] struct {
	concern  string
	backends []backend[T]
	cfg      FallbackConfig
	metrics  *observe.Metrics
}

// NewFallbackGroup creates a group for one concern with primary as the
// preferred backend.
func NewFallbackGroup[T any](concern string, primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{
		concern: concern,
		cfg:     cfg,
		metrics: observe.DefaultMetrics(),
	}
	fg.add(primaryName, primary)
	return fg
}

// AddFallback appends a backend tried after all earlier ones.
func (fg *FallbackGroup[T]) AddFallback(name string, value T) {
	fg.add(name, value)
}

func (fg *FallbackGroup[T]) add(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = fg.concern + "/" + name
	fg.backends = append(fg.backends, backend[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Execute tries fn on each backend until one succeeds. Backend failures are
// counted against the concern's provider-error metric; returns
// [ErrAllFailed] wrapping the last error when none succeeds.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	var lastErr error
	for i := range fg.backends {
		b := &fg.backends[i]
		err := b.breaker.Execute(func() error { return fn(b.value) })
		if err == nil {
			return nil
		}
		lastErr = err
		fg.noteFailure(ctx, b.name, err)
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// ExecuteWithResult is [FallbackGroup.Execute] for calls that return a
// value. Package-level because methods cannot add type parameters.
func ExecuteWithResult[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range fg.backends {
		b := &fg.backends[i]
		var out R
		err := b.breaker.Execute(func() error {
			var callErr error
			out, callErr = fn(b.value)
			return callErr
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		fg.noteFailure(ctx, b.name, err)
	}
	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

func (fg *FallbackGroup[T]) noteFailure(ctx context.Context, name string, err error) {
	if errors.Is(err, ErrCircuitOpen) {
		slog.Debug("backend skipped, circuit open",
			"concern", fg.concern, "backend", name)
		return
	}
	fg.metrics.RecordProviderError(ctx, name, fg.concern)
	slog.Warn("backend failed, trying next",
		"concern", fg.concern, "backend", name, "error", err)
}
