// Package stt defines the streaming speech-to-text abstraction.
//
// A [Provider] opens a [SessionHandle] per recognition window. The session
// accepts PCM frames through SendAudio and reports hypotheses on two
// channels: Partials for interim guesses and Finals for committed results.
// Both channels are closed when the session ends.
package stt

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by optional operations a provider cannot
// perform, such as mid-session keyword updates.
var ErrNotSupported = errors.New("stt: operation not supported")

// ErrSessionClosed is returned by SendAudio after Close.
var ErrSessionClosed = errors.New("stt: session closed")

// StreamConfig describes the audio and hints for a new session.
type StreamConfig struct {
	// SampleRate of the mono 16-bit PCM sent to the session, in Hz.
	SampleRate int

	// Language is a BCP-47 tag such as "ru" or "en-US". Empty lets the
	// provider detect the language where supported.
	Language string

	// Keywords are vocabulary hints, typically the registered command
	// triggers.
	Keywords []KeywordBoost
}

// SessionHandle is an open recognition stream. All methods are safe for
// concurrent use.
type SessionHandle interface {
	// SendAudio delivers little-endian 16-bit PCM.
	SendAudio(chunk []byte) error

	// Partials emits interim hypotheses. Consumers must drain or ignore it;
	// providers never block on a full partials channel.
	Partials() <-chan Transcript

	// Finals emits committed results.
	Finals() <-chan Transcript

	// SetKeywords replaces the hints mid-session or returns ErrNotSupported.
	SetKeywords(keywords []KeywordBoost) error

	// Close flushes buffered audio, may emit a last final, then closes both
	// channels. Idempotent.
	Close() error
}

// Provider opens recognition sessions. Implementations must be safe for
// concurrent use.
type Provider interface {
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
