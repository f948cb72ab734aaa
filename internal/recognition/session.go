// Package recognition captures a single spoken command after a wake.
//
// A [Session] holds the capture lease for one bounded window, streams the
// audio to an STT provider and a VAD engine, and returns the first final
// transcript. The lease is released on every exit path before Run returns.
package recognition

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/jarvis/internal/lease"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	"github.com/MrWong99/jarvis/pkg/provider/vad"
	"github.com/MrWong99/jarvis/pkg/textnorm"
)

// Defaults.
const (
	DefaultMaxWindow       = 8 * time.Second
	DefaultFinalizeTimeout = 2 * time.Second
	DefaultFrameSize       = 320
	DefaultLanguage        = "ru"
	DefaultOwner           = "recognition"
)

// Transcript is the outcome of one session. An empty Text with IsFinal set
// means the window closed without a command.
type Transcript struct {
	Text       string
	IsFinal    bool
	Confidence float64
}

// Empty reports whether nothing was recognised.
func (t Transcript) Empty() bool { return t.Text == "" }

// Config bounds a session.
type Config struct {
	// MaxWindow is how long the session listens. Default: 8s.
	MaxWindow time.Duration

	// FinalizeTimeout is how long to wait for a final after the window
	// closed with speech in progress. Default: 2s.
	FinalizeTimeout time.Duration

	// FrameSize is the number of samples per captured frame. Default: 320.
	FrameSize int

	// Language is passed to the STT provider. Default: "ru".
	Language string

	// Keywords bias the STT provider towards the command triggers.
	Keywords []stt.KeywordBoost

	// VAD tunes the speech detector.
	VAD vad.Config
}

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	if c.MaxWindow <= 0 {
		c.MaxWindow = DefaultMaxWindow
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = DefaultFinalizeTimeout
	}
	if c.FrameSize <= 0 {
		c.FrameSize = DefaultFrameSize
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	return c
}

// Option configures a [Session].
type Option func(*Session)

// WithRecorder saves the audio of every run.
func WithRecorder(r *Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithPreprocess toggles transcript normalisation with [textnorm.Normalize].
// Enabled by default.
func WithPreprocess(on bool) Option {
	return func(s *Session) { s.preprocess = on }
}

// WithMetrics records outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithOwner sets the lease owner name. Default: "recognition".
func WithOwner(name string) Option {
	return func(s *Session) { s.owner = name }
}

// Session runs recognition windows. Run may be called repeatedly, but not
// concurrently: the arbiter rejects the second caller with
// [lease.ErrDeviceBusy].
type Session struct {
	arb        lease.Acquirer
	stt        stt.Provider
	vad        vad.Engine
	cfg        Config
	recorder   *Recorder
	preprocess bool
	metrics    *observe.Metrics
	owner      string
}

// New returns a Session.
func New(arb lease.Acquirer, p stt.Provider, v vad.Engine, cfg Config, opts ...Option) *Session {
	s := &Session{
		arb:        arb,
		stt:        p,
		vad:        v,
		cfg:        cfg.WithDefaults(),
		preprocess: true,
		owner:      DefaultOwner,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Session) Config() Config { return s.cfg }

type frameResult struct {
	frame audio.Frame
	err   error
}

// Run listens for one command. It returns an empty final transcript when no
// speech was heard within MaxWindow or no final arrived in time, and an empty
// transcript with ctx.Err() when ctx is cancelled. Acquire errors, including
// [lease.ErrDeviceBusy], are returned wrapped.
func (s *Session) Run(ctx context.Context) (tr Transcript, err error) {
	id := uuid.NewString()
	log := observe.Logger(ctx).With("session_id", id)
	start := time.Now()
	outcome := "error"
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordRecognition(ctx, outcome, time.Since(start))
		}
	}()

	ls, err := s.arb.Acquire(s.owner, s.cfg.FrameSize)
	if err != nil {
		outcome = "busy"
		return Transcript{}, fmt.Errorf("recognition: acquire: %w", err)
	}
	defer func() {
		if relErr := ls.Release(); relErr != nil {
			log.Warn("recognition: release lease", "err", relErr)
		}
	}()

	vcfg := s.cfg.VAD
	vcfg.SampleRate = ls.SampleRate()
	detector, err := s.vad.NewSession(vcfg)
	if err != nil {
		return Transcript{}, fmt.Errorf("recognition: vad session: %w", err)
	}
	defer detector.Close()

	sttCtx, cancelSTT := context.WithCancel(ctx)
	defer cancelSTT()
	stream, err := s.stt.StartStream(sttCtx, stt.StreamConfig{
		SampleRate: ls.SampleRate(),
		Language:   s.cfg.Language,
		Keywords:   s.cfg.Keywords,
	})
	if err != nil {
		return Transcript{}, fmt.Errorf("recognition: start stt: %w", err)
	}
	defer stream.Close()

	var rec *recording
	if s.recorder != nil {
		if rec, err = s.recorder.start(id, ls.SampleRate()); err != nil {
			log.Warn("recognition: recording disabled", "err", err)
		} else {
			defer func() {
				if err := rec.close(); err != nil {
					log.Warn("recognition: close recording", "err", err)
				}
				log.Debug("recognition: recording saved", "file", rec.name)
			}()
		}
	}

	// Reads run on their own goroutine so finals are seen while a read
	// blocks. The goroutine is joined before the lease is released.
	readCtx, stopReading := context.WithCancel(ctx)
	frames := make(chan frameResult, 1)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			f, err := ls.Read(readCtx)
			select {
			case frames <- frameResult{frame: f, err: err}:
			case <-readCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	defer func() {
		stopReading()
		<-readerDone
	}()

	log.Debug("recognition: listening", "max_window", s.cfg.MaxWindow, "lease_id", ls.ID())

	window := time.NewTimer(s.cfg.MaxWindow)
	defer window.Stop()
	var (
		speech     bool
		finalizing bool
		finalize   <-chan time.Time
		partials   = stream.Partials()
		finals     = stream.Finals()
	)

	for {
		select {
		case <-ctx.Done():
			outcome = "cancelled"
			return Transcript{}, ctx.Err()

		case r := <-frames:
			if finalizing {
				continue
			}
			if r.err != nil {
				if ctx.Err() != nil {
					outcome = "cancelled"
					return Transcript{}, ctx.Err()
				}
				return Transcript{}, fmt.Errorf("recognition: read: %w", r.err)
			}
			samples := r.frame.Samples
			if rec != nil {
				if err := rec.write(samples); err != nil {
					log.Warn("recognition: write recording", "err", err)
					rec = nil
				}
			}
			ev, err := detector.ProcessFrame(samples)
			if err != nil {
				log.Debug("recognition: vad error", "err", err)
			} else if ev.Type == vad.SpeechStart && !speech {
				speech = true
				log.Debug("recognition: speech started", "at", r.frame.Timestamp)
			}
			if err := stream.SendAudio(audio.Int16ToBytes(samples)); err != nil {
				return Transcript{}, fmt.Errorf("recognition: send audio: %w", err)
			}

		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			log.Debug("recognition: partial", "text", t.Text)

		case t, ok := <-finals:
			if !ok {
				if !finalizing {
					log.Warn("recognition: stt stream ended early")
				}
				outcome = "timeout"
				return Transcript{IsFinal: true}, nil
			}
			text := s.assemble(t)
			if text == "" {
				continue
			}
			outcome = "final"
			log.Info("recognition: final", "text", text, "confidence", t.Confidence)
			return Transcript{Text: text, IsFinal: true, Confidence: t.Confidence}, nil

		case <-window.C:
			if !speech {
				outcome = "timeout"
				log.Info("recognition: no speech in window")
				return Transcript{IsFinal: true}, nil
			}
			// Audio is not needed once finalizing; read errors caused by
			// stopReading must not end the session.
			finalizing = true
			frames = nil
			stopReading()
			finalize = time.After(s.cfg.FinalizeTimeout)
			// Closing the stream is what makes providers flush; it may block
			// on inference, so it runs aside and the timeout bounds the wait.
			go func() { _ = stream.Close() }()
			log.Debug("recognition: window closed, finalizing")

		case <-finalize:
			outcome = "timeout"
			log.Info("recognition: finalize timed out")
			return Transcript{IsFinal: true}, nil
		}
	}
}

// assemble builds the transcript text from word detail when the provider
// reports it and from the plain text otherwise.
func (s *Session) assemble(t stt.Transcript) string {
	text := t.Text
	if len(t.Words) > 0 {
		words := make([]string, 0, len(t.Words))
		for _, w := range t.Words {
			if w.Word != "" {
				words = append(words, w.Word)
			}
		}
		text = strings.Join(words, " ")
	}
	text = strings.TrimSpace(text)
	if s.preprocess {
		text = textnorm.Normalize(text)
	}
	return text
}
