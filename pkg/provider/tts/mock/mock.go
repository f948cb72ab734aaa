// Package mock provides a test double for [tts.Provider].
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/jarvis/pkg/provider/tts"
)

// SynthesizeCall records one Synthesize invocation.
type SynthesizeCall struct {
	Text  string
	Voice tts.Voice
}

// Provider is a mock implementation of [tts.Provider].
type Provider struct {
	mu sync.Mutex

	// Chunks are emitted in order on every Synthesize call.
	Chunks [][]byte

	// SynthesizeErr, if non-nil, is returned by Synthesize.
	SynthesizeErr error

	// Rate is returned by SampleRate. Zero means 16000.
	Rate int

	calls []SynthesizeCall
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize records the call and streams Chunks.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (<-chan []byte, error) {
	p.mu.Lock()
	p.calls = append(p.calls, SynthesizeCall{Text: text, Voice: voice})
	chunks, err := p.Chunks, p.SynthesizeErr
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ch := make(chan []byte, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

// SampleRate implements [tts.Provider].
func (p *Provider) SampleRate() int {
	if p.Rate == 0 {
		return 16000
	}
	return p.Rate
}

// Calls returns the recorded Synthesize calls.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SynthesizeCall(nil), p.calls...)
}
