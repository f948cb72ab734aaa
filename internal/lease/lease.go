package lease

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/jarvis/pkg/audio"
)

// Lease is the exclusive right to read frames from the capture device.
//
// Read must be called from a single goroutine. Release may be called from
// any goroutine and is idempotent.
type Lease struct {
	arbiter   *Arbiter
	id        uint64
	owner     string
	frameSize int
	stream    audio.Stream

	mu       sync.Mutex
	released bool
	revoked  bool

	releaseOnce sync.Once
	releaseErr  error
}

// ID returns the arbiter-unique lease number.
func (l *Lease) ID() uint64 { return l.id }

// Owner returns the name passed to Acquire.
func (l *Lease) Owner() string { return l.owner }

// FrameSize returns the number of samples per frame.
func (l *Lease) FrameSize() int { return l.frameSize }

// SampleRate returns the stream sample rate.
func (l *Lease) SampleRate() int { return l.arbiter.cfg.SampleRate }

// Read returns the next frame. Stream errors are wrapped in
// [ErrDeviceFault]; a released or revoked lease returns [ErrLeaseReleased]
// or [ErrLeaseRevoked].
func (l *Lease) Read(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}
	if err := l.state(); err != nil {
		return audio.Frame{}, err
	}
	frame, err := l.stream.Read()
	if err != nil {
		if st := l.state(); st != nil {
			return audio.Frame{}, st
		}
		if errors.Is(err, audio.ErrStreamClosed) {
			return audio.Frame{}, ErrLeaseRevoked
		}
		return audio.Frame{}, fmt.Errorf("%w: read: %w", ErrDeviceFault, err)
	}
	return frame, nil
}

// Release closes the stream and frees the device. The arbiter accepts a new
// Acquire only after the stream is closed.
func (l *Lease) Release() error {
	l.releaseOnce.Do(func() {
		l.mu.Lock()
		l.released = true
		l.mu.Unlock()
		if err := l.stream.Close(); err != nil {
			l.releaseErr = fmt.Errorf("lease: close stream: %w", err)
		}
		l.arbiter.release(l)
	})
	return l.releaseErr
}

func (l *Lease) revoke() {
	l.mu.Lock()
	if l.released || l.revoked {
		l.mu.Unlock()
		return
	}
	l.revoked = true
	l.mu.Unlock()
	_ = l.stream.Close()
}

func (l *Lease) state() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.released:
		return ErrLeaseReleased
	case l.revoked:
		return ErrLeaseRevoked
	}
	return nil
}
