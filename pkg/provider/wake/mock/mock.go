// Package mock provides a scripted [wake.Detector].
//
// Hits lists the zero-based frame numbers on which Process reports keyword
// 0; Errs lists frame numbers that fail with ErrInjected.
//
//	det := &mock.Detector{Hits: map[int]bool{10: true}}
package mock

import (
	"errors"
	"sync"

	"github.com/MrWong99/jarvis/pkg/provider/wake"
)

// ErrInjected is returned on frames listed in Errs.
var ErrInjected = errors.New("mock: injected classify error")

// Detector is a mock implementation of [wake.Detector].
type Detector struct {
	mu sync.Mutex

	// Length is returned by FrameLength. Zero means 512.
	Length int

	// Rate is returned by SampleRate. Zero means 16000.
	Rate int

	// Hits are frame numbers that detect keyword 0.
	Hits map[int]bool

	// HitFunc, when set, is consulted instead of Hits. It receives the frame
	// number and the samples.
	HitFunc func(n int, pcm []int16) bool

	// Errs are frame numbers on which Process fails.
	Errs map[int]bool

	// AlwaysErr makes every Process call fail.
	AlwaysErr bool

	frames int
	resets int
	closes int
}

var _ wake.Detector = (*Detector)(nil)

// Process implements [wake.Detector].
func (d *Detector) Process(pcm []int16) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.frames
	d.frames++
	if d.AlwaysErr || d.Errs[n] {
		return wake.NoMatch, ErrInjected
	}
	hit := d.Hits[n]
	if d.HitFunc != nil {
		hit = d.HitFunc(n, pcm)
	}
	if hit {
		return 0, nil
	}
	return wake.NoMatch, nil
}

// FrameLength implements [wake.Detector].
func (d *Detector) FrameLength() int {
	if d.Length == 0 {
		return 512
	}
	return d.Length
}

// SampleRate implements [wake.Detector].
func (d *Detector) SampleRate() int {
	if d.Rate == 0 {
		return 16000
	}
	return d.Rate
}

// Reset implements [wake.Detector].
func (d *Detector) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resets++
	return nil
}

// Close implements [wake.Detector].
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

// Frames returns the number of Process calls.
func (d *Detector) Frames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// Resets returns the number of Reset calls.
func (d *Detector) Resets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets
}

// Closes returns the number of Close calls.
func (d *Detector) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}
