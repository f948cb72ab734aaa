// Package porcupine implements [wake.Detector] on Picovoice Porcupine.
//
// Built-in keywords are used by name ("jarvis", "computer", ...); custom
// keywords are loaded from .ppn files. The engine needs an AccessKey from the
// Picovoice console.
package porcupine

import (
	"errors"
	"fmt"
	"strings"

	pv "github.com/Picovoice/porcupine/binding/go/v3"

	"github.com/MrWong99/jarvis/pkg/provider/wake"
)

// DefaultKeyword is the built-in keyword used when none is configured.
const DefaultKeyword = "jarvis"

// Config selects keywords and sensitivities.
type Config struct {
	AccessKey string

	// Keywords are built-in keyword names. Ignored when KeywordPaths is set.
	Keywords []string

	// KeywordPaths are custom .ppn files.
	KeywordPaths []string

	// ModelPath overrides the bundled acoustic model, e.g. for non-English
	// keywords.
	ModelPath string

	// Sensitivity in [0, 1] applied to every keyword. Zero means 0.5.
	Sensitivity float32
}

// Detector wraps an initialised Porcupine handle.
type Detector struct {
	handle   pv.Porcupine
	keywords []string
	closed   bool
}

var _ wake.Detector = (*Detector)(nil)

// New initialises Porcupine. Close must be called to free the native handle.
func New(cfg Config) (*Detector, error) {
	if cfg.AccessKey == "" {
		return nil, errors.New("porcupine: access key must not be empty")
	}
	names, err := keywordNames(cfg)
	if err != nil {
		return nil, err
	}
	sens := cfg.Sensitivity
	if sens == 0 {
		sens = 0.5
	}
	if sens < 0 || sens > 1 {
		return nil, fmt.Errorf("porcupine: sensitivity %v out of range [0, 1]", sens)
	}

	h := pv.Porcupine{AccessKey: cfg.AccessKey, ModelPath: cfg.ModelPath}
	if len(cfg.KeywordPaths) > 0 {
		h.KeywordPaths = cfg.KeywordPaths
	} else {
		for _, n := range names {
			h.BuiltInKeywords = append(h.BuiltInKeywords, pv.BuiltInKeyword(n))
		}
	}
	h.Sensitivities = make([]float32, len(names))
	for i := range h.Sensitivities {
		h.Sensitivities[i] = sens
	}

	if err := h.Init(); err != nil {
		return nil, fmt.Errorf("porcupine: init: %w", err)
	}
	return &Detector{handle: h, keywords: names}, nil
}

// keywordNames returns one display name per keyword, in index order.
func keywordNames(cfg Config) ([]string, error) {
	if len(cfg.KeywordPaths) > 0 {
		return append([]string(nil), cfg.KeywordPaths...), nil
	}
	if len(cfg.Keywords) == 0 {
		return []string{DefaultKeyword}, nil
	}
	names := make([]string, 0, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			return nil, errors.New("porcupine: empty keyword")
		}
		names = append(names, k)
	}
	return names, nil
}

// Keywords returns the keyword names in index order.
func (d *Detector) Keywords() []string { return d.keywords }

// Process implements [wake.Detector].
func (d *Detector) Process(pcm []int16) (int, error) {
	if len(pcm) != pv.FrameLength {
		return wake.NoMatch, fmt.Errorf("porcupine: %w: got %d, want %d", wake.ErrFrameLength, len(pcm), pv.FrameLength)
	}
	idx, err := d.handle.Process(pcm)
	if err != nil {
		return wake.NoMatch, fmt.Errorf("porcupine: process: %w", err)
	}
	return idx, nil
}

// FrameLength implements [wake.Detector].
func (d *Detector) FrameLength() int { return pv.FrameLength }

// SampleRate implements [wake.Detector].
func (d *Detector) SampleRate() int { return pv.SampleRate }

// Reset implements [wake.Detector]. Porcupine keeps no phrase buffer across
// frames that needs clearing.
func (d *Detector) Reset() error { return nil }

// Close implements [wake.Detector].
func (d *Detector) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.handle.Delete(); err != nil {
		return fmt.Errorf("porcupine: delete: %w", err)
	}
	return nil
}
