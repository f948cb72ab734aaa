// Package spotter implements [wake.Detector] by transcribing the microphone
// continuously and looking for the wake phrase in the text. It needs no
// keyword model, only a streaming [stt.Provider], at the price of higher
// latency and CPU use than a dedicated keyword engine.
package spotter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	"github.com/MrWong99/jarvis/pkg/provider/wake"
	"github.com/MrWong99/jarvis/pkg/textnorm"
)

const (
	// DefaultFrameLength is 32 ms at 16 kHz.
	DefaultFrameLength = 512

	// DefaultSimilarity is the Jaro-Winkler score at which a word window
	// counts as the phrase, to absorb recognition spelling drift.
	DefaultSimilarity = 0.88
)

// Config configures a Detector.
type Config struct {
	// Phrases are the wake phrases; the index of the matched phrase is
	// returned by Process.
	Phrases []string

	// Language is passed to the STT stream.
	Language string

	SampleRate  int
	FrameLength int

	// Similarity overrides DefaultSimilarity. Set it to 1 to require an
	// exact contained phrase.
	Similarity float64
}

// Detector spots phrases in a running transcription.
type Detector struct {
	provider stt.Provider
	cfg      Config
	phrases  [][]string

	ctx    context.Context
	cancel context.CancelFunc
	sess   stt.SessionHandle
}

var _ wake.Detector = (*Detector)(nil)

// New returns a Detector. The STT stream is opened on the first frame.
func New(p stt.Provider, cfg Config) (*Detector, error) {
	if p == nil {
		return nil, errors.New("spotter: stt provider must not be nil")
	}
	if len(cfg.Phrases) == 0 {
		return nil, errors.New("spotter: at least one phrase is required")
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	if cfg.FrameLength == 0 {
		cfg.FrameLength = DefaultFrameLength
	}
	if cfg.Similarity == 0 {
		cfg.Similarity = DefaultSimilarity
	}
	d := &Detector{provider: p, cfg: cfg}
	for _, ph := range cfg.Phrases {
		words := strings.Fields(textnorm.Normalize(ph))
		if len(words) == 0 {
			return nil, fmt.Errorf("spotter: phrase %q has no words", ph)
		}
		d.phrases = append(d.phrases, words)
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// FrameLength implements [wake.Detector].
func (d *Detector) FrameLength() int { return d.cfg.FrameLength }

// SampleRate implements [wake.Detector].
func (d *Detector) SampleRate() int { return d.cfg.SampleRate }

// Process implements [wake.Detector]. It forwards the frame and checks
// whatever transcripts arrived since the previous call without waiting.
func (d *Detector) Process(pcm []int16) (int, error) {
	if d.ctx.Err() != nil {
		return wake.NoMatch, errors.New("spotter: detector closed")
	}
	if d.sess == nil {
		sess, err := d.provider.StartStream(d.ctx, stt.StreamConfig{
			SampleRate: d.cfg.SampleRate,
			Language:   d.cfg.Language,
			Keywords:   d.keywords(),
		})
		if err != nil {
			return wake.NoMatch, fmt.Errorf("spotter: start stream: %w", err)
		}
		d.sess = sess
	}
	if err := d.sess.SendAudio(audio.Int16ToBytes(pcm)); err != nil {
		d.dropSession()
		return wake.NoMatch, fmt.Errorf("spotter: send audio: %w", err)
	}

	for {
		var (
			t  stt.Transcript
			ok bool
		)
		select {
		case t, ok = <-d.sess.Finals():
		case t, ok = <-d.sess.Partials():
		default:
			return wake.NoMatch, nil
		}
		if !ok {
			d.dropSession()
			return wake.NoMatch, nil
		}
		if idx := d.match(t.Text); idx != wake.NoMatch {
			slog.Debug("spotter: phrase heard", "text", t.Text, "phrase", d.cfg.Phrases[idx])
			return idx, nil
		}
	}
}

// Reset implements [wake.Detector]. The STT stream is dropped so text
// already heard cannot match again.
func (d *Detector) Reset() error {
	d.dropSession()
	return nil
}

// Close implements [wake.Detector].
func (d *Detector) Close() error {
	d.dropSession()
	d.cancel()
	return nil
}

func (d *Detector) dropSession() {
	if d.sess == nil {
		return
	}
	_ = d.sess.Close()
	d.sess = nil
}

func (d *Detector) keywords() []stt.KeywordBoost {
	kws := make([]stt.KeywordBoost, 0, len(d.cfg.Phrases))
	for _, ph := range d.cfg.Phrases {
		kws = append(kws, stt.KeywordBoost{Keyword: ph, Boost: 2})
	}
	return kws
}

// match returns the index of the first phrase found in text.
func (d *Detector) match(text string) int {
	words := strings.Fields(textnorm.Normalize(text))
	if len(words) == 0 {
		return wake.NoMatch
	}
	joined := strings.Join(words, " ")
	for i, ph := range d.phrases {
		want := strings.Join(ph, " ")
		if strings.Contains(" "+joined+" ", " "+want+" ") {
			return i
		}
		if d.cfg.Similarity >= 1 || len(ph) > len(words) {
			continue
		}
		for start := 0; start+len(ph) <= len(words); start++ {
			window := strings.Join(words[start:start+len(ph)], " ")
			if matchr.JaroWinkler(window, want, false) >= d.cfg.Similarity {
				return i
			}
		}
	}
	return wake.NoMatch
}
