package audio

import (
	"context"
	"errors"
)

// ErrStreamClosed is returned by [Stream.Read] after the stream was closed.
var ErrStreamClosed = errors.New("audio: stream closed")

// Device is a physical capture device. Only one stream may be open on a
// device at a time; callers coordinate through internal/lease rather than
// opening streams directly.
type Device interface {
	// Open starts a capture stream delivering cfg.FrameSize samples per Read.
	Open(cfg StreamConfig) (Stream, error)

	// Name identifies the device in logs.
	Name() string
}

// Stream is an open capture stream.
//
// Read blocks until one full frame is available. Close unblocks a pending
// Read, which then returns [ErrStreamClosed]. Close is idempotent.
type Stream interface {
	Read() (Frame, error)
	Close() error
}

// Player plays mono 16-bit PCM through an output device. Playback does not
// compete with capture for the input device.
type Player interface {
	// Play blocks until pcm has been written to the device or ctx is done.
	Play(ctx context.Context, pcm []int16, sampleRate int) error
	Close() error
}
