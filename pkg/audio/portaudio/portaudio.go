// Package portaudio implements [audio.Device] and [audio.Player] on top of
// the PortAudio C library.
//
// [Init] must be called once before any stream is opened and the returned
// function must be called on shutdown to terminate the library.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/jarvis/pkg/audio"
)

// playbackChunk is the number of samples written per output buffer.
const playbackChunk = 1024

// Init initialises PortAudio. The returned function terminates it.
func Init() (func() error, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return pa.Terminate, nil
}

// Device captures from a PortAudio input device.
type Device struct {
	name string
}

var _ audio.Device = (*Device)(nil)

// NewDevice returns a capture device. An empty name selects the default
// input device.
func NewDevice(name string) *Device {
	return &Device{name: name}
}

// Name implements [audio.Device].
func (d *Device) Name() string {
	if d.name == "" {
		return "default"
	}
	return d.name
}

// Open implements [audio.Device]. The stream is started before Open returns.
func (d *Device) Open(cfg audio.StreamConfig) (audio.Stream, error) {
	cfg = cfg.WithDefaults()
	if cfg.FrameSize <= 0 {
		return nil, errors.New("portaudio: frame size must be positive")
	}
	if cfg.Device == "" {
		cfg.Device = d.name
	}

	buf := make([]int16, cfg.FrameSize)
	var (
		stream *pa.Stream
		err    error
	)
	if cfg.Device == "" {
		stream, err = pa.OpenDefaultStream(1, 0, float64(cfg.SampleRate), cfg.FrameSize, buf)
	} else {
		var info *pa.DeviceInfo
		info, err = findInput(cfg.Device)
		if err != nil {
			return nil, err
		}
		params := pa.LowLatencyParameters(info, nil)
		params.Input.Channels = 1
		params.SampleRate = float64(cfg.SampleRate)
		params.FramesPerBuffer = cfg.FrameSize
		stream, err = pa.OpenStream(params, buf)
	}
	if err != nil {
		return nil, fmt.Errorf("portaudio: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("portaudio: start stream: %w", err)
	}
	slog.Debug("portaudio: capture stream opened",
		"device", d.Name(), "sample_rate", cfg.SampleRate, "frame_size", cfg.FrameSize)
	return &captureStream{stream: stream, buf: buf, cfg: cfg}, nil
}

func findInput(name string) (*pa.DeviceInfo, error) {
	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	for _, dev := range devices {
		if dev.Name == name && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("portaudio: input device %q not found", name)
}

// captureStream serialises Read and Close: PortAudio streams must not be closed
// while a blocking read is in flight.
type captureStream struct {
	mu     sync.Mutex
	stream *pa.Stream
	buf    []int16
	cfg    audio.StreamConfig
	n      int
	closed bool
}

func (s *captureStream) Read() (audio.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.Frame{}, audio.ErrStreamClosed
	}
	if err := s.stream.Read(); err != nil && !errors.Is(err, pa.InputOverflowed) {
		return audio.Frame{}, fmt.Errorf("portaudio: read: %w", err)
	}
	samples := make([]int16, len(s.buf))
	copy(samples, s.buf)
	ts := time.Duration(s.n) * s.cfg.FrameDuration()
	s.n++
	return audio.Frame{Samples: samples, SampleRate: s.cfg.SampleRate, Timestamp: ts}, nil
}

func (s *captureStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	return errors.Join(stopErr, closeErr)
}

// Player writes PCM to the default output device. Each Play opens a
// short-lived output stream.
type Player struct {
	mu sync.Mutex
}

var _ audio.Player = (*Player)(nil)

// NewPlayer returns a Player for the default output device.
func NewPlayer() *Player { return &Player{} }

// Play implements [audio.Player]. Concurrent calls are serialised.
func (p *Player) Play(ctx context.Context, pcm []int16, sampleRate int) error {
	if len(pcm) == 0 {
		return nil
	}
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	buf := make([]int16, playbackChunk)
	stream, err := pa.OpenDefaultStream(0, 1, float64(sampleRate), len(buf), buf)
	if err != nil {
		return fmt.Errorf("portaudio: open output: %w", err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start output: %w", err)
	}
	defer stream.Stop()

	for off := 0; off < len(pcm); off += len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buf, pcm[off:])
		clear(buf[n:])
		if err := stream.Write(); err != nil && !errors.Is(err, pa.OutputUnderflowed) {
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	return nil
}

// Close implements [audio.Player].
func (p *Player) Close() error { return nil }
