// Package rms implements a pure-Go [vad.Engine] on frame energy with
// hysteresis: speech starts after several loud frames and ends after a longer
// run of quiet ones.
package rms

import (
	"fmt"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/vad"
)

// Defaults tuned for 16 kHz, 20 ms frames. Thresholds are normalised RMS.
const (
	DefaultSpeechThreshold  = 0.015
	DefaultSilenceThreshold = 0.008
	DefaultSpeechFrames     = 3
	DefaultSilenceFrames    = 30
)

// Engine creates energy based sessions.
type Engine struct{}

var _ vad.Engine = Engine{}

// New returns an Engine.
func New() Engine { return Engine{} }

// NewSession implements [vad.Engine].
func (Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rms: %w", err)
	}
	if cfg.SpeechThreshold == 0 {
		cfg.SpeechThreshold = DefaultSpeechThreshold
	}
	if cfg.SilenceThreshold == 0 {
		cfg.SilenceThreshold = min(DefaultSilenceThreshold, cfg.SpeechThreshold)
	}
	if cfg.SpeechFrames == 0 {
		cfg.SpeechFrames = DefaultSpeechFrames
	}
	if cfg.SilenceFrames == 0 {
		cfg.SilenceFrames = DefaultSilenceFrames
	}
	return &Session{cfg: cfg}, nil
}

// Session is a single-stream detector.
type Session struct {
	cfg vad.Config

	inSpeech     bool
	speechCount  int
	silenceCount int
	closed       bool
}

var _ vad.SessionHandle = (*Session)(nil)

// ProcessFrame implements [vad.SessionHandle].
func (s *Session) ProcessFrame(samples []int16) (vad.Event, error) {
	if s.closed {
		return vad.Event{}, vad.ErrSessionClosed
	}
	level := audio.NormalizedRMS(samples)
	ev := vad.Event{Probability: min(level/s.cfg.SpeechThreshold, 1)}

	if s.inSpeech {
		if level < s.cfg.SilenceThreshold {
			s.silenceCount++
			if s.silenceCount >= s.cfg.SilenceFrames {
				s.inSpeech = false
				s.silenceCount = 0
				ev.Type = vad.SpeechEnd
				return ev, nil
			}
		} else {
			s.silenceCount = 0
		}
		ev.Type = vad.SpeechContinue
		return ev, nil
	}

	if level >= s.cfg.SpeechThreshold {
		s.speechCount++
		if s.speechCount >= s.cfg.SpeechFrames {
			s.inSpeech = true
			s.speechCount = 0
			ev.Type = vad.SpeechStart
			return ev, nil
		}
	} else {
		s.speechCount = 0
	}
	ev.Type = vad.Silence
	return ev, nil
}

// Reset implements [vad.SessionHandle].
func (s *Session) Reset() {
	s.inSpeech = false
	s.speechCount = 0
	s.silenceCount = 0
}

// Close implements [vad.SessionHandle].
func (s *Session) Close() error {
	s.closed = true
	return nil
}
