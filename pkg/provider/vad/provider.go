// Package vad defines the voice activity detection interfaces used to tell
// whether a recognition window heard any speech.
//
// An [Engine] creates one [SessionHandle] per audio stream. Sessions keep
// their own hysteresis state, so independent streams never influence each
// other. ProcessFrame is synchronous and must not block; it is called from
// the frame loop that pumps audio into STT.
//
// A SessionHandle is not safe for concurrent use. Engines are.
package vad

import "errors"

// ErrSessionClosed is returned by ProcessFrame after Close.
var ErrSessionClosed = errors.New("vad: session closed")

// Config holds the parameters for a session. Thresholds use the engine's
// native scale; zero values select the engine defaults.
type Config struct {
	// SampleRate is the rate of the frames passed to ProcessFrame, in Hz.
	SampleRate int

	// SpeechThreshold is the level at or above which a frame counts as
	// speech.
	SpeechThreshold float64

	// SilenceThreshold is the level below which a frame counts as silence
	// once speech has started. Must not exceed SpeechThreshold.
	SilenceThreshold float64

	// SpeechFrames is the number of consecutive speech frames required
	// before [SpeechStart] is reported.
	SpeechFrames int

	// SilenceFrames is the number of consecutive silent frames required
	// before [SpeechEnd] is reported.
	SilenceFrames int
}

// Validate reports threshold combinations no engine can honour.
func (c Config) Validate() error {
	var errs []error
	if c.SpeechThreshold < 0 || c.SilenceThreshold < 0 {
		errs = append(errs, errors.New("vad: thresholds must not be negative"))
	}
	if c.SpeechThreshold > 0 && c.SilenceThreshold > c.SpeechThreshold {
		errs = append(errs, errors.New("vad: silence threshold exceeds speech threshold"))
	}
	if c.SpeechFrames < 0 || c.SilenceFrames < 0 {
		errs = append(errs, errors.New("vad: frame counts must not be negative"))
	}
	return errors.Join(errs...)
}

// SessionHandle classifies the frames of one audio stream.
type SessionHandle interface {
	// ProcessFrame classifies one frame of mono 16-bit samples.
	ProcessFrame(samples []int16) (Event, error)

	// Reset clears the detection state without closing the session.
	Reset()

	// Close releases the session. Calling Close more than once is safe.
	Close() error
}

// Engine creates sessions. Safe for concurrent use.
type Engine interface {
	NewSession(cfg Config) (SessionHandle, error)
}
