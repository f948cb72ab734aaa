// Package mock provides in-memory implementations of [audio.Device],
// [audio.Stream] and [audio.Player] for unit tests.
//
// The mocks are safe for concurrent use. Exported fields control behaviour
// and must be set before the mock is shared; counters are read through
// accessor methods.
//
// Typical usage:
//
//	dev := &mock.Device{
//	    FrameFunc:  mock.ToneAfter(10, 4000),
//	    FrameDelay: time.Millisecond,
//	}
//	s, _ := dev.Open(audio.StreamConfig{FrameSize: 512})
//	frame, _ := s.Read()
package mock

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("mock: injected device fault")

// FrameFunc produces the samples for frame n (zero-based) of the open-th
// stream (one-based). Returning nil yields silence of the requested size.
type FrameFunc func(open, n, size int) []int16

// Silence always yields silent frames.
func Silence(_, _, size int) []int16 { return make([]int16, size) }

// Tone yields a sine wave at the given peak amplitude on every frame.
func Tone(amplitude int16) FrameFunc {
	return func(_, n, size int) []int16 {
		return sine(n, size, amplitude)
	}
}

// ToneAfter yields silence for the first silent frames of each stream and a
// sine wave afterwards.
func ToneAfter(silent int, amplitude int16) FrameFunc {
	return func(_, n, size int) []int16 {
		if n < silent {
			return make([]int16, size)
		}
		return sine(n, size, amplitude)
	}
}

func sine(n, size int, amplitude int16) []int16 {
	out := make([]int16, size)
	for i := range out {
		pos := float64(n*size + i)
		out[i] = int16(float64(amplitude) * math.Sin(2*math.Pi*440*pos/audio.DefaultSampleRate))
	}
	return out
}

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock [audio.Device].
type Device struct {
	// FrameFunc generates frame content. Nil means [Silence].
	FrameFunc FrameFunc

	// FrameDelay is slept before each Read returns, emulating real-time capture.
	FrameDelay time.Duration

	// OpenErr, when set, is returned by every Open call.
	OpenErr error

	// OpenErrFunc, when set, is consulted on every Open with the one-based
	// call number; a non-nil result fails that call.
	OpenErrFunc func(call int) error

	// FailAfter makes Read fail with ReadErr (or [ErrInjected]) once that many
	// frames were read from a stream. Zero disables the fault.
	FailAfter int

	// FailStreams limits FailAfter to the first FailStreams opened streams.
	// Zero applies it to every stream.
	FailStreams int

	// ReadErr is the error returned by injected read faults.
	ReadErr error

	mu         sync.Mutex
	openCalls  int
	opened     int
	closed     int
	live       int
	maxLive    int
	frameSizes []int
}

var _ audio.Device = (*Device)(nil)

// Name implements [audio.Device].
func (d *Device) Name() string { return "mock" }

// Open implements [audio.Device].
func (d *Device) Open(cfg audio.StreamConfig) (audio.Stream, error) {
	cfg = cfg.WithDefaults()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openCalls++
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	if d.OpenErrFunc != nil {
		if err := d.OpenErrFunc(d.openCalls); err != nil {
			return nil, err
		}
	}
	d.opened++
	d.live++
	if d.live > d.maxLive {
		d.maxLive = d.live
	}
	d.frameSizes = append(d.frameSizes, cfg.FrameSize)

	failAfter := d.FailAfter
	if d.FailStreams > 0 && d.opened > d.FailStreams {
		failAfter = 0
	}
	return &Stream{
		dev:       d,
		cfg:       cfg,
		index:     d.opened,
		failAfter: failAfter,
		done:      make(chan struct{}),
	}, nil
}

// OpenCalls returns how many times Open was called, including failures.
func (d *Device) OpenCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openCalls
}

// Opened returns how many streams were successfully opened.
func (d *Device) Opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// Closed returns how many streams were closed.
func (d *Device) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Live returns the number of currently open streams.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

// MaxLive returns the highest number of simultaneously open streams seen.
func (d *Device) MaxLive() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxLive
}

// FrameSizes returns the frame size requested by every successful Open.
func (d *Device) FrameSizes() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int, len(d.frameSizes))
	copy(out, d.frameSizes)
	return out
}

func (d *Device) streamClosed() {
	d.mu.Lock()
	d.closed++
	d.live--
	d.mu.Unlock()
}

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is the [audio.Stream] returned by [Device.Open].
type Stream struct {
	dev       *Device
	cfg       audio.StreamConfig
	index     int
	failAfter int

	mu   sync.Mutex
	n    int
	done chan struct{}
	once sync.Once
}

var _ audio.Stream = (*Stream)(nil)

// Read implements [audio.Stream].
func (s *Stream) Read() (audio.Frame, error) {
	if s.dev.FrameDelay > 0 {
		t := time.NewTimer(s.dev.FrameDelay)
		select {
		case <-t.C:
		case <-s.done:
			t.Stop()
			return audio.Frame{}, audio.ErrStreamClosed
		}
	}
	select {
	case <-s.done:
		return audio.Frame{}, audio.ErrStreamClosed
	default:
	}

	s.mu.Lock()
	n := s.n
	s.n++
	s.mu.Unlock()

	if s.failAfter > 0 && n >= s.failAfter {
		if s.dev.ReadErr != nil {
			return audio.Frame{}, s.dev.ReadErr
		}
		return audio.Frame{}, ErrInjected
	}

	fn := s.dev.FrameFunc
	if fn == nil {
		fn = Silence
	}
	samples := fn(s.index, n, s.cfg.FrameSize)
	if samples == nil {
		samples = make([]int16, s.cfg.FrameSize)
	}
	return audio.Frame{
		Samples:    samples,
		SampleRate: s.cfg.SampleRate,
		Timestamp:  time.Duration(n) * s.cfg.FrameDuration(),
	}, nil
}

// Close implements [audio.Stream].
func (s *Stream) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.dev.streamClosed()
	})
	return nil
}

// ─── Player ───────────────────────────────────────────────────────────────────

// PlayCall records one [Player.Play] invocation.
type PlayCall struct {
	Samples    int
	SampleRate int
}

// Player is a mock [audio.Player].
type Player struct {
	// PlayErr is returned by every Play call.
	PlayErr error

	mu     sync.Mutex
	calls  []PlayCall
	closed bool
}

var _ audio.Player = (*Player)(nil)

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, pcm []int16, sampleRate int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, PlayCall{Samples: len(pcm), SampleRate: sampleRate})
	return p.PlayErr
}

// Close implements [audio.Player].
func (p *Player) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Calls returns a copy of the recorded Play calls.
func (p *Player) Calls() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlayCall, len(p.calls))
	copy(out, p.calls)
	return out
}
