package speech

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/tts"
)

// Synth is a [Sink] that synthesizes utterances with a TTS provider and
// plays them on an output device.
type Synth struct {
	tts     tts.Provider
	player  audio.Player
	voice   tts.Voice
	timeout time.Duration
}

var _ Sink = (*Synth)(nil)

// NewSynth returns a Synth. A zero timeout means [DefaultTimeout].
func NewSynth(p tts.Provider, player audio.Player, voice tts.Voice, timeout time.Duration) *Synth {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Synth{tts: p, player: player, voice: voice, timeout: timeout}
}

// Speak implements [Sink]. The whole utterance is collected before playback
// starts so the output stream is written in one piece.
func (s *Synth) Speak(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	ch, err := s.tts.Synthesize(ctx, text, s.voice)
	if err != nil {
		slog.Warn("speech: synthesize failed", "err", err)
		return
	}
	var pcm []byte
collect:
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				break collect
			}
			pcm = append(pcm, chunk...)
		case <-ctx.Done():
			go audio.Drain(ch)
			slog.Warn("speech: synthesis timed out", "err", ctx.Err())
			return
		}
	}
	if len(pcm) == 0 {
		slog.Warn("speech: synthesizer returned no audio", "text", text)
		return
	}
	if err := s.player.Play(ctx, audio.BytesToInt16(pcm), s.tts.SampleRate()); err != nil {
		slog.Warn("speech: playback failed", "err", err)
	}
}
