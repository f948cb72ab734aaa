// Package wake defines the wake phrase classifier interface.
//
// A Detector consumes fixed-size frames of 16-bit mono PCM and reports the
// index of the keyword heard in that frame, or -1. Detectors are stateful and
// not safe for concurrent use; the listener owns one for its whole life.
package wake

import "errors"

// NoMatch is the index Process returns when no keyword was heard.
const NoMatch = -1

// ErrFrameLength is returned when a frame does not have FrameLength samples.
var ErrFrameLength = errors.New("wake: wrong frame length")

// Detector classifies audio frames.
type Detector interface {
	// Process classifies one frame and returns a keyword index or NoMatch.
	Process(pcm []int16) (int, error)

	// FrameLength is the number of samples Process expects.
	FrameLength() int

	// SampleRate is the rate Process expects, in Hz.
	SampleRate() int

	// Reset discards buffered audio so a phrase still being spoken is not
	// reported twice.
	Reset() error

	// Close frees the detector. Calling Close more than once is safe.
	Close() error
}
