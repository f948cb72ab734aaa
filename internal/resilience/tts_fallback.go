package resilience

import (
	"context"
	"sync/atomic"

	"github.com/MrWong99/jarvis/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with failover across synthesizers.
// Backends may produce different sample rates, so [TTSFallback.SampleRate]
// reports the rate of the backend that served the last Synthesize call.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
	last  atomic.Int32
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	if cfg.Kind == "" {
		cfg.Kind = "tts"
	}
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional TTS provider.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Healthy reports an error once every backend's breaker is open.
func (f *TTSFallback) Healthy(ctx context.Context) error { return f.group.Healthy(ctx) }

// Synthesize starts synthesis on the first healthy provider. Mid-stream
// errors are not retried.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.Voice) (<-chan []byte, error) {
	ch, idx, err := executeIndexed(ctx, f.group, func(p tts.Provider) (<-chan []byte, error) {
		return p.Synthesize(ctx, text, voice)
	})
	if err != nil {
		return nil, err
	}
	f.last.Store(int32(idx))
	return ch, nil
}

// SampleRate returns the output rate of the backend that answered last, or
// of the primary before the first call.
func (f *TTSFallback) SampleRate() int {
	return f.group.entries[f.last.Load()].value.SampleRate()
}
