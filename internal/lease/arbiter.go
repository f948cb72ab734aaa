// Package lease arbitrates exclusive access to the single capture device.
//
// An [Arbiter] hands out at most one [Lease] at a time. Acquire never waits
// for a busy device: it fails immediately with [ErrDeviceBusy] and leaves the
// decision to retry to the caller. The device stream is opened inside
// Acquire and closed inside Release, so no stream exists while no lease is
// held.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/pkg/audio"
)

var (
	// ErrDeviceBusy is returned by Acquire while another lease is live.
	ErrDeviceBusy = errors.New("lease: device busy")

	// ErrDeviceFault wraps stream open and read failures.
	ErrDeviceFault = errors.New("lease: device fault")

	// ErrLeaseReleased is returned by Read after the lease was released.
	ErrLeaseReleased = errors.New("lease: released")

	// ErrLeaseRevoked is returned by Read after the arbiter revoked the lease.
	ErrLeaseRevoked = errors.New("lease: revoked")

	// ErrArbiterClosed is returned by Acquire after Close.
	ErrArbiterClosed = errors.New("lease: arbiter closed")
)

// Acquirer is the part of [Arbiter] consumers depend on.
type Acquirer interface {
	Acquire(owner string, frameSize int) (*Lease, error)
}

// Stats is a point-in-time view of the arbiter.
type Stats struct {
	// Live is 1 while a lease is held or being opened, 0 otherwise.
	Live int
	// Owner of the live lease, empty when none.
	Owner string
	// Acquisitions counts successful Acquire calls.
	Acquisitions uint64
	// Rejected counts Acquire calls that failed with ErrDeviceBusy.
	Rejected uint64
	// Closed reports whether Close was called.
	Closed bool
}

// Option configures an [Arbiter].
type Option func(*Arbiter)

// WithMetrics records acquisitions on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Arbiter) { a.metrics = m }
}

// Arbiter owns the capture device. All methods are safe for concurrent use.
type Arbiter struct {
	dev     audio.Device
	cfg     audio.StreamConfig
	metrics *observe.Metrics

	mu           sync.Mutex
	held         bool
	owner        string
	current      *Lease
	acquisitions uint64
	rejected     uint64
	seq          uint64
	closed       bool
}

var _ Acquirer = (*Arbiter)(nil)

// NewArbiter returns an arbiter for dev. cfg supplies the sample rate and
// device name; the frame size is chosen per Acquire.
func NewArbiter(dev audio.Device, cfg audio.StreamConfig, opts ...Option) *Arbiter {
	a := &Arbiter{dev: dev, cfg: cfg.WithDefaults()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// SampleRate returns the rate every stream is opened with.
func (a *Arbiter) SampleRate() int { return a.cfg.SampleRate }

// Acquire grants owner exclusive use of the device with the given frame
// size. It returns [ErrDeviceBusy] without blocking if a lease is live, and
// an error wrapping [ErrDeviceFault] if the stream cannot be opened.
func (a *Arbiter) Acquire(owner string, frameSize int) (*Lease, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("lease: frame size must be positive, got %d", frameSize)
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, ErrArbiterClosed
	}
	if a.held {
		a.rejected++
		holder := a.owner
		a.mu.Unlock()
		a.record(owner, "busy")
		slog.Debug("lease: acquire rejected", "owner", owner, "holder", holder)
		return nil, fmt.Errorf("%w: held by %s", ErrDeviceBusy, holder)
	}
	// Reserved before opening: concurrent callers get ErrDeviceBusy while
	// the stream opens.
	a.held = true
	a.owner = owner
	a.seq++
	id := a.seq
	a.mu.Unlock()

	cfg := a.cfg
	cfg.FrameSize = frameSize
	stream, err := a.dev.Open(cfg)
	if err != nil {
		a.mu.Lock()
		a.held = false
		a.owner = ""
		a.mu.Unlock()
		a.record(owner, "fault")
		return nil, fmt.Errorf("%w: open %s: %w", ErrDeviceFault, a.dev.Name(), err)
	}

	l := &Lease{
		arbiter:   a,
		id:        id,
		owner:     owner,
		frameSize: frameSize,
		stream:    stream,
	}

	a.mu.Lock()
	a.current = l
	a.acquisitions++
	closed := a.closed
	a.mu.Unlock()
	if closed {
		// Close raced with the open; do not hand out a lease on a closed arbiter.
		_ = l.Release()
		return nil, ErrArbiterClosed
	}

	a.record(owner, "ok")
	slog.Debug("lease: acquired", "owner", owner, "lease_id", id, "frame_size", frameSize)
	return l, nil
}

// Revoke closes the stream of the live lease, if any. The holder's next Read
// fails with [ErrLeaseRevoked]; the holder must still call Release.
func (a *Arbiter) Revoke() {
	a.mu.Lock()
	l := a.current
	a.mu.Unlock()
	if l != nil {
		l.revoke()
	}
}

// Close revokes the live lease and rejects all future acquisitions.
func (a *Arbiter) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.Revoke()
	return nil
}

// Stats returns a snapshot of the arbiter state.
func (a *Arbiter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	live := 0
	if a.held {
		live = 1
	}
	return Stats{
		Live:         live,
		Owner:        a.owner,
		Acquisitions: a.acquisitions,
		Rejected:     a.rejected,
		Closed:       a.closed,
	}
}

// Healthy reports an error once the arbiter is closed. It matches the
// signature of health checkers.
func (a *Arbiter) Healthy(context.Context) error {
	if a.Stats().Closed {
		return ErrArbiterClosed
	}
	return nil
}

func (a *Arbiter) release(l *Lease) {
	a.mu.Lock()
	if a.current == l {
		a.current = nil
		a.held = false
		a.owner = ""
	}
	a.mu.Unlock()
	slog.Debug("lease: released", "owner", l.owner, "lease_id", l.id)
}

func (a *Arbiter) record(owner, status string) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordLease(context.Background(), owner, status)
}
