package resilience

import (
	"context"

	"github.com/MrWong99/jarvis/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with failover across recognizers.
// Only stream setup fails over; a session that dies mid-utterance surfaces
// its error to the recognition session.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	if cfg.Kind == "" {
		cfg.Kind = "stt"
	}
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional STT provider.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Healthy reports an error once every backend's breaker is open.
func (f *STTFallback) Healthy(ctx context.Context) error { return f.group.Healthy(ctx) }

// StartStream opens a session on the first healthy provider.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}
