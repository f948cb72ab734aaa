// Package audio defines the capture and playback abstractions shared by the
// wake listener, the recognition session and the speech sinks.
//
// Audio flows as mono 16-bit PCM. A [Device] opens a [Stream] for a fixed
// frame length; each Read returns exactly one frame of that length. Frame
// length is chosen by the consumer, so the wake classifier and the
// recognizer can read the same microphone with different block sizes.
package audio

import "time"

// DefaultSampleRate is the capture rate used when none is configured.
// 16 kHz is what both the wake classifier and the recognizers expect.
const DefaultSampleRate = 16000

// Frame is a block of mono 16-bit PCM samples read from a capture stream.
type Frame struct {
	// Samples holds one frame of signed 16-bit PCM. The slice is owned by the
	// receiver; streams never reuse it after returning it.
	Samples []int16

	// SampleRate in Hz.
	SampleRate int

	// Timestamp is the position of the first sample relative to stream open.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Bytes returns the frame as little-endian PCM bytes.
func (f Frame) Bytes() []byte {
	return Int16ToBytes(f.Samples)
}

// StreamConfig describes a capture or playback stream.
type StreamConfig struct {
	// SampleRate in Hz. Zero means [DefaultSampleRate].
	SampleRate int

	// FrameSize is the number of samples returned per Read.
	FrameSize int

	// Device selects a named device. Empty selects the system default.
	Device string
}

// WithDefaults returns a copy of c with zero fields filled in.
func (c StreamConfig) WithDefaults() StreamConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	return c
}

// FrameDuration returns the duration of one frame under this config.
func (c StreamConfig) FrameDuration() time.Duration {
	c = c.WithDefaults()
	if c.FrameSize <= 0 {
		return 0
	}
	return time.Duration(c.FrameSize) * time.Second / time.Duration(c.SampleRate)
}

// FramesFor returns how many frames of this config cover d, rounding up.
func (c StreamConfig) FramesFor(d time.Duration) int {
	fd := c.FrameDuration()
	if fd <= 0 || d <= 0 {
		return 0
	}
	return int((d + fd - 1) / fd)
}
