package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/jarvis/internal/observe"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] failed or
// had an open circuit breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the template for each entry's breaker. Its Name is
	// replaced by the entry name.
	CircuitBreaker CircuitBreakerConfig

	// Kind labels metrics and log lines ("stt", "tts", "llm").
	Kind string

	// Metrics receives one provider request per attempt. Nil disables
	// recording.
	Metrics *observe.Metrics
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup tries a primary and then each fallback in registration order,
// skipping entries whose breaker is open. Entries must be added before the
// group is shared between goroutines.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry that is tried after all earlier ones.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Len returns the number of entries including the primary.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// Primary returns the first entry's value.
func (fg *FallbackGroup[T]) Primary() T { return fg.entries[0].value }

// Healthy returns an error when every entry's breaker is open.
func (fg *FallbackGroup[T]) Healthy(context.Context) error {
	var open []string
	for i := range fg.entries {
		e := &fg.entries[i]
		if e.breaker.State() != StateOpen {
			return nil
		}
		open = append(open, e.name)
	}
	return fmt.Errorf("resilience: %s: circuit open for %s", fg.kind(), strings.Join(open, ", "))
}

// Execute tries fn against each entry until one succeeds.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult tries fn against each entry until one succeeds and
// returns its result. It wraps [ErrAllFailed] with the last error when no
// entry succeeded.
func ExecuteWithResult[T any, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	r, _, err := executeIndexed(ctx, fg, fn)
	return r, err
}

// executeIndexed is [ExecuteWithResult] that also reports which entry
// answered.
func executeIndexed[T any, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, int, error) {
	var (
		lastErr error
		zero    R
	)
	log := observe.Logger(ctx)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			fg.record(ctx, entry.name, "ok")
			if i > 0 {
				log.Info("fallback provider answered", "kind", fg.kind(), "provider", entry.name)
			}
			return result, i, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			fg.record(ctx, entry.name, "circuit_open")
			log.Debug("skipping provider, circuit open", "kind", fg.kind(), "provider", entry.name)
			continue
		}
		fg.record(ctx, entry.name, "error")
		if fg.cfg.Metrics != nil {
			fg.cfg.Metrics.RecordProviderError(ctx, entry.name, fg.kind())
		}
		log.Warn("provider failed, trying next", "kind", fg.kind(), "provider", entry.name, "err", err)
	}
	return zero, -1, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

func (fg *FallbackGroup[T]) record(ctx context.Context, provider, status string) {
	if fg.cfg.Metrics != nil {
		fg.cfg.Metrics.RecordProviderRequest(ctx, provider, fg.kind(), status)
	}
}

func (fg *FallbackGroup[T]) kind() string {
	if fg.cfg.Kind == "" {
		return "provider"
	}
	return fg.cfg.Kind
}
