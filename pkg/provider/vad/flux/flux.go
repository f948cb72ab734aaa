// Package flux implements a [vad.Engine] that compares the spectral
// magnitude of consecutive frames. Speech starts when a frame's magnitude
// jumps by Ratio over the previous one and ends once frames stay Ratio below
// the last speech level for SilenceFrames frames.
//
// Unlike an energy gate it adapts to a steady noise floor, which makes it a
// better fit for open microphones in noisy rooms.
package flux

import (
	"fmt"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/MrWong99/jarvis/pkg/provider/vad"
)

const (
	// DefaultRatio is the jump between consecutive frames treated as onset.
	DefaultRatio = 1.75

	// DefaultFloor keeps digital silence from pinning the reference level at
	// zero.
	DefaultFloor = 1e-3

	DefaultSilenceFrames = 25
)

// Engine creates spectral sessions.
type Engine struct {
	Ratio float64
	Floor float64
}

var _ vad.Engine = Engine{}

// New returns an Engine with default ratio and floor.
func New() Engine { return Engine{Ratio: DefaultRatio, Floor: DefaultFloor} }

// NewSession implements [vad.Engine]. SpeechThreshold, when set, overrides
// the ratio.
func (e Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("flux: %w", err)
	}
	s := &Session{ratio: e.Ratio, floor: e.Floor, silenceFrames: cfg.SilenceFrames}
	if cfg.SpeechThreshold > 1 {
		s.ratio = cfg.SpeechThreshold
	}
	if s.ratio <= 1 {
		s.ratio = DefaultRatio
	}
	if s.floor <= 0 {
		s.floor = DefaultFloor
	}
	if s.silenceFrames == 0 {
		s.silenceFrames = DefaultSilenceFrames
	}
	return s, nil
}

// Session is a single-stream detector.
type Session struct {
	ratio         float64
	floor         float64
	silenceFrames int

	last     float64
	inSpeech bool
	quiet    int
	closed   bool
}

var _ vad.SessionHandle = (*Session)(nil)

// Magnitude returns the mean spectral magnitude of samples scaled to
// [-1, 1].
func Magnitude(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	in := make([]float64, len(samples))
	for i, s := range samples {
		in[i] = float64(s) / 32768
	}
	var sum float64
	for _, c := range fft.FFTReal(in) {
		sum += cmplx.Abs(c)
	}
	return sum / float64(len(samples))
}

// ProcessFrame implements [vad.SessionHandle].
func (s *Session) ProcessFrame(samples []int16) (vad.Event, error) {
	if s.closed {
		return vad.Event{}, vad.ErrSessionClosed
	}
	m := max(Magnitude(samples), s.floor)
	ev := vad.Event{Probability: probability(m, s.last, s.ratio)}

	if s.last == 0 {
		s.last = m
		ev.Type = vad.Silence
		return ev, nil
	}

	if s.inSpeech {
		if m*s.ratio <= s.last {
			s.quiet++
			if s.quiet >= s.silenceFrames {
				s.inSpeech = false
				s.quiet = 0
				s.last = m
				ev.Type = vad.SpeechEnd
				return ev, nil
			}
		} else {
			s.quiet = 0
			s.last = m
		}
		ev.Type = vad.SpeechContinue
		return ev, nil
	}

	onset := m >= s.last*s.ratio
	s.last = m
	if onset {
		s.inSpeech = true
		ev.Type = vad.SpeechStart
		return ev, nil
	}
	ev.Type = vad.Silence
	return ev, nil
}

func probability(m, last, ratio float64) float64 {
	if last == 0 {
		return 0
	}
	return min(m/(last*ratio), 1)
}

// Reset implements [vad.SessionHandle].
func (s *Session) Reset() {
	s.last = 0
	s.inSpeech = false
	s.quiet = 0
}

// Close implements [vad.SessionHandle].
func (s *Session) Close() error {
	s.closed = true
	return nil
}
