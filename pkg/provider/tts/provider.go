// Package tts defines the Provider interface for text-to-speech backends.
//
// Synthesize takes a complete utterance and returns raw 16-bit little-endian
// mono PCM as it becomes available, so playback can start before synthesis
// finishes. Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when there is nothing to synthesize.
var ErrEmptyText = errors.New("tts: empty text")

// Voice selects and tunes a provider voice.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Speed adjusts the speaking rate; 1.0 or zero is the provider default.
	Speed float64

	// Stability and SimilarityBoost are passed to providers that support
	// them. Zero selects provider defaults.
	Stability       float64
	SimilarityBoost float64
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize streams PCM for text. The returned channel is closed when the
	// utterance is complete or ctx is cancelled. A non-nil error means the
	// stream never started.
	Synthesize(ctx context.Context, text string, voice Voice) (<-chan []byte, error)

	// SampleRate is the rate of the PCM emitted by Synthesize.
	SampleRate() int
}
