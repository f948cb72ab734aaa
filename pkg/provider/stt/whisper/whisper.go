// Package whisper implements [stt.Provider] on the whisper.cpp CGO bindings.
//
// whisper.cpp transcribes whole utterances, so each session segments the
// incoming PCM itself: audio is buffered while its energy stays above a
// threshold and flushed to inference after a run of silence, when the buffer
// reaches its maximum length, or when the session closes. Every flush that
// yields text is emitted once as a final.
//
// The whisper.cpp static library and headers must be available at link time
// (LIBRARY_PATH and C_INCLUDE_PATH).
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
)

const (
	defaultLanguage   = "ru"
	defaultSampleRate = audio.DefaultSampleRate

	// defaultRMSThreshold separates speech from background noise on the
	// int16 scale.
	defaultRMSThreshold = 300.0
	defaultSilence      = 500 * time.Millisecond
	defaultMaxBuffer    = 10 * time.Second
)

var _ stt.Provider = (*Provider)(nil)

// Option configures a [Provider].
type Option func(*Provider)

// WithLanguage sets the default recognition language. Default: "ru".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSilence sets how long the signal must stay quiet before the buffered
// utterance is transcribed. Default: 500ms.
func WithSilence(d time.Duration) Option {
	return func(p *Provider) { p.silence = d }
}

// WithMaxBuffer caps the buffered utterance length. Default: 10s.
func WithMaxBuffer(d time.Duration) Option {
	return func(p *Provider) { p.maxBuffer = d }
}

// WithRMSThreshold sets the speech energy threshold. Default: 300.
func WithRMSThreshold(rms float64) Option {
	return func(p *Provider) { p.rmsThreshold = rms }
}

// WithThreads sets the number of inference threads. Zero keeps the
// whisper.cpp default.
func WithThreads(n int) Option {
	return func(p *Provider) { p.threads = n }
}

// Provider transcribes with a whisper.cpp model loaded once and shared by
// every session.
type Provider struct {
	model        whisperlib.Model
	language     string
	silence      time.Duration
	maxBuffer    time.Duration
	rmsThreshold float64
	threads      int
}

// New loads the ggml model at modelPath. Call Close to free it.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &Provider{
		model:        model,
		language:     defaultLanguage,
		silence:      defaultSilence,
		maxBuffer:    defaultMaxBuffer,
		rmsThreshold: defaultRMSThreshold,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close frees the model.
func (p *Provider) Close() error {
	if p.model == nil {
		return nil
	}
	return p.model.Close()
}

// StartStream implements [stt.Provider]. Each session creates its own
// whisper context on every flush; the shared model is safe for that.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	prompt := keywordPrompt(cfg.Keywords)
	infer := func(samples []float32) (string, error) {
		return p.infer(samples, lang, prompt)
	}
	seg := segmenter{
		sampleRate:   cfg.SampleRate,
		silence:      p.silence,
		maxBuffer:    p.maxBuffer,
		rmsThreshold: p.rmsThreshold,
	}
	return newSession(ctx, seg, infer), nil
}

func (p *Provider) infer(samples []float32, lang, prompt string) (string, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: unsupported language, using model default", "language", lang, "err", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(uint(p.threads))
	}
	if prompt != "" {
		wctx.SetInitialPrompt(prompt)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// keywordPrompt turns hints into an initial prompt, which biases whisper
// towards the listed phrases.
func keywordPrompt(keywords []stt.KeywordBoost) string {
	if len(keywords) == 0 {
		return ""
	}
	words := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k.Keyword != "" {
			words = append(words, k.Keyword)
		}
	}
	return strings.Join(words, ", ")
}

// segmenter decides when buffered audio is an utterance. It is owned by a
// single session goroutine.
type segmenter struct {
	sampleRate   int
	silence      time.Duration
	maxBuffer    time.Duration
	rmsThreshold float64

	buf       []int16
	hadSpeech bool
	quiet     time.Duration
}

// push adds one chunk and reports whether the buffer should be flushed.
func (g *segmenter) push(samples []int16) bool {
	rate := g.sampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}
	d := time.Duration(len(samples)) * time.Second / time.Duration(rate)

	if audio.RMS(samples) < g.rmsThreshold {
		if !g.hadSpeech {
			return false
		}
		g.buf = append(g.buf, samples...)
		g.quiet += d
		return g.quiet >= g.silence
	}
	g.hadSpeech = true
	g.quiet = 0
	g.buf = append(g.buf, samples...)
	maxSamples := int(g.maxBuffer.Seconds() * float64(rate))
	return maxSamples > 0 && len(g.buf) >= maxSamples
}

// take returns the buffered utterance and resets. Buffers without speech
// return nil.
func (g *segmenter) take() []int16 {
	buf, speech := g.buf, g.hadSpeech
	g.buf, g.hadSpeech, g.quiet = nil, false, 0
	if !speech {
		return nil
	}
	return buf
}

type session struct {
	seg   segmenter
	infer func([]float32) (string, error)

	audioCh  chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

var _ stt.SessionHandle = (*session)(nil)

func newSession(ctx context.Context, seg segmenter, infer func([]float32) (string, error)) *session {
	s := &session{
		seg:      seg,
		infer:    infer,
		audioCh:  make(chan []byte, 256),
		partials: make(chan stt.Transcript, 16),
		finals:   make(chan stt.Transcript, 16),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop(ctx)
	return s
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return fmt.Errorf("whisper: %w", stt.ErrSessionClosed)
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return fmt.Errorf("whisper: %w", stt.ErrSessionClosed)
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }

func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// SetKeywords is not supported; hints are fixed when the stream starts.
func (s *session) SetKeywords([]stt.KeywordBoost) error {
	return fmt.Errorf("whisper: %w", stt.ErrNotSupported)
}

// Close flushes the pending utterance and closes the channels.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *session) loop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			s.drainQueued()
			s.flush()
			return
		case chunk := <-s.audioCh:
			if s.seg.push(audio.BytesToInt16(chunk)) {
				s.flush()
			}
		}
	}
}

// drainQueued feeds chunks accepted before Close into the segmenter so the
// final flush sees all of them.
func (s *session) drainQueued() {
	for {
		select {
		case chunk := <-s.audioCh:
			if s.seg.push(audio.BytesToInt16(chunk)) {
				s.flush()
			}
		default:
			return
		}
	}
}

func (s *session) flush() {
	samples := s.seg.take()
	if len(samples) == 0 {
		return
	}
	// whisper.cpp only accepts 16 kHz input.
	samples = audio.Resample(samples, s.seg.sampleRate, defaultSampleRate)
	start := time.Now()
	text, err := s.infer(audio.Int16ToFloat32(samples))
	if err != nil {
		slog.Error("whisper: inference failed", "err", err)
		return
	}
	slog.Debug("whisper: utterance transcribed", "samples", len(samples), "took", time.Since(start), "text", text)
	if text == "" {
		return
	}
	select {
	case s.finals <- stt.Transcript{Text: text, IsFinal: true}:
	default:
		slog.Warn("whisper: finals channel full, dropping transcript")
	}
}
