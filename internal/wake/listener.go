// Package wake runs the always-on wake phrase loop.
//
// A [Listener] holds the capture lease while it runs, feeds every frame to a
// [wakeprovider.Detector] and reports detections on a channel. It never
// decides what happens after a wake: the orchestrator stops the listener,
// which releases the device, and starts a recognition session.
package wake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/jarvis/internal/lease"
	"github.com/MrWong99/jarvis/internal/observe"
	wakeprovider "github.com/MrWong99/jarvis/pkg/provider/wake"
)

// Defaults.
const (
	DefaultCooldown       = 750 * time.Millisecond
	DefaultMaxFrameErrors = 5
	DefaultOwner          = "wake"
)

// ErrRunning is returned by Start while the loop is already running.
var ErrRunning = errors.New("wake: listener already running")

// ErrSampleRate is returned by Start when the capture rate differs from the
// rate the detector classifies. Retrying cannot fix it.
var ErrSampleRate = errors.New("wake: sample rate mismatch")

// EventKind distinguishes listener events.
type EventKind int

const (
	// Detected reports a wake phrase.
	Detected EventKind = iota

	// Fault reports that the loop stopped on an error. It is always the
	// last event before the channel closes, and the lease is already
	// released when it is delivered.
	Fault
)

// String returns the lowercase kind name.
func (k EventKind) String() string {
	switch k {
	case Detected:
		return "detected"
	case Fault:
		return "fault"
	default:
		return "unknown"
	}
}

// Event is emitted on the channel returned by Start.
type Event struct {
	Kind EventKind

	// Keyword is the detector's keyword index for Detected events.
	Keyword int

	// At is the stream position of the frame that matched.
	At time.Duration

	// Err is set for Fault events.
	Err error
}

// Option configures a [Listener].
type Option func(*Listener)

// WithCooldown sets how much audio is skipped after a detection so a phrase
// that is still being spoken fires once. Default: 750ms.
func WithCooldown(d time.Duration) Option {
	return func(l *Listener) { l.cooldown = d }
}

// WithMaxFrameErrors sets how many consecutive classify errors end the loop
// with a Fault. Default: 5.
func WithMaxFrameErrors(n int) Option {
	return func(l *Listener) {
		if n > 0 {
			l.maxFrameErrors = n
		}
	}
}

// WithOwner sets the lease owner name. Default: "wake".
func WithOwner(name string) Option {
	return func(l *Listener) { l.owner = name }
}

// WithMetrics records detections on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Listener) { l.metrics = m }
}

// Listener is safe for concurrent use; Start and Stop may be called from
// different goroutines. At most one loop runs at a time.
type Listener struct {
	arb            lease.Acquirer
	det            wakeprovider.Detector
	cooldown       time.Duration
	maxFrameErrors int
	owner          string
	metrics        *observe.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a stopped Listener.
func New(arb lease.Acquirer, det wakeprovider.Detector, opts ...Option) *Listener {
	l := &Listener{
		arb:            arb,
		det:            det,
		cooldown:       DefaultCooldown,
		maxFrameErrors: DefaultMaxFrameErrors,
		owner:          DefaultOwner,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Running reports whether a loop is active.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// Start acquires the capture lease and starts the loop. Errors from Acquire,
// including [lease.ErrDeviceBusy], are returned unchanged. The returned
// channel has a single consumer and is closed when the loop exits.
func (l *Listener) Start(ctx context.Context) (<-chan Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		select {
		case <-l.done:
		default:
			return nil, ErrRunning
		}
	}

	ls, err := l.arb.Acquire(l.owner, l.det.FrameLength())
	if err != nil {
		return nil, err
	}
	if got, want := ls.SampleRate(), l.det.SampleRate(); got != want {
		if relErr := ls.Release(); relErr != nil {
			slog.Warn("wake: release lease", "err", relErr)
		}
		return nil, fmt.Errorf("%w: capture %d Hz, detector wants %d Hz", ErrSampleRate, got, want)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	events := make(chan Event, 4)
	done := make(chan struct{})
	l.cancel, l.done = cancel, done

	go l.run(loopCtx, ls, events, done)
	slog.Info("wake: listening", "lease_id", ls.ID(), "frame_length", ls.FrameSize())
	return events, nil
}

// Stop ends the loop and returns once the lease is released. It is safe to
// call when the listener was never started and to call repeatedly.
func (l *Listener) Stop() error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Close stops the loop and frees the detector.
func (l *Listener) Close() error {
	_ = l.Stop()
	return l.det.Close()
}

func (l *Listener) run(ctx context.Context, ls *lease.Lease, events chan<- Event, done chan struct{}) {
	defer close(done)
	defer close(events)

	err := l.loop(ctx, ls, events)
	if relErr := ls.Release(); relErr != nil {
		slog.Warn("wake: release lease", "err", relErr)
	}
	if err == nil || ctx.Err() != nil {
		slog.Debug("wake: stopped")
		return
	}

	slog.Error("wake: listener fault", "err", err)
	select {
	case events <- Event{Kind: Fault, Err: err}:
	case <-ctx.Done():
	}
}

func (l *Listener) loop(ctx context.Context, ls *lease.Lease, events chan<- Event) error {
	cooldownFrames := framesFor(l.cooldown, ls.SampleRate(), ls.FrameSize())
	var skip, frameErrs int

	for {
		frame, err := ls.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wake: read: %w", err)
		}
		if skip > 0 {
			skip--
			continue
		}

		idx, err := l.det.Process(frame.Samples)
		if err != nil {
			frameErrs++
			if frameErrs >= l.maxFrameErrors {
				return fmt.Errorf("wake: %d consecutive classify errors: %w", frameErrs, err)
			}
			slog.Debug("wake: classify error, skipping frame", "err", err, "consecutive", frameErrs)
			continue
		}
		frameErrs = 0
		if idx < 0 {
			continue
		}

		slog.Info("wake: phrase detected", "keyword", idx, "at", frame.Timestamp)
		if l.metrics != nil {
			l.metrics.RecordWake(ctx, "voice")
		}
		select {
		case events <- Event{Kind: Detected, Keyword: idx, At: frame.Timestamp}:
		case <-ctx.Done():
			return nil
		}
		if err := l.det.Reset(); err != nil {
			slog.Warn("wake: detector reset", "err", err)
		}
		skip = cooldownFrames
	}
}

// framesFor returns how many frames of frameSize samples cover d, rounding
// up.
func framesFor(d time.Duration, sampleRate, frameSize int) int {
	if d <= 0 || sampleRate <= 0 || frameSize <= 0 {
		return 0
	}
	samples := int64(d) * int64(sampleRate) / int64(time.Second)
	return int((samples + int64(frameSize) - 1) / int64(frameSize))
}
