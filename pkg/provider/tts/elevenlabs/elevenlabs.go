// Package elevenlabs implements [tts.Provider] on the ElevenLabs streaming
// input WebSocket API.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/jarvis/pkg/provider/tts"
)

const (
	defaultBaseURL    = "wss://api.elevenlabs.io"
	defaultModel      = "eleven_multilingual_v2"
	defaultSampleRate = 16000

	defaultStability       = 0.5
	defaultSimilarityBoost = 0.75
)

var _ tts.Provider = (*Provider)(nil)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel sets the model ID. Default: "eleven_multilingual_v2".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithSampleRate selects the pcm_<rate> output format. Default: 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithBaseURL overrides the WebSocket base URL. Used by tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// Provider streams synthesized PCM from ElevenLabs.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	sampleRate int
}

// New returns a Provider. apiKey must not be empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: api key must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// SampleRate implements [tts.Provider].
func (p *Provider) SampleRate() int { return p.sampleRate }

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// initMessage opens the stream; ElevenLabs requires a single space as its
// text.
type initMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

type textMessage struct {
	Text  string `json:"text"`
	Flush bool   `json:"flush,omitempty"`
}

type audioMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

func (p *Provider) streamURL(voiceID string) string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", fmt.Sprintf("pcm_%d", p.sampleRate))
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?%s", p.baseURL, url.PathEscape(voiceID), q.Encode())
}

func settingsFor(v tts.Voice) *voiceSettings {
	s := &voiceSettings{
		Stability:       v.Stability,
		SimilarityBoost: v.SimilarityBoost,
		Speed:           v.Speed,
	}
	if s.Stability == 0 {
		s.Stability = defaultStability
	}
	if s.SimilarityBoost == 0 {
		s.SimilarityBoost = defaultSimilarityBoost
	}
	return s
}

// Synthesize implements [tts.Provider]. The whole text is sent in one
// message followed by the end-of-input marker.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (<-chan []byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, tts.ErrEmptyText
	}
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice id must not be empty")
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(voice.ID), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	msgs := []any{
		initMessage{Text: " ", VoiceSettings: settingsFor(voice), XiAPIKey: p.apiKey},
		textMessage{Text: text + " ", Flush: true},
		textMessage{Text: ""},
	}
	for _, m := range msgs {
		b, _ := json.Marshal(m)
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			conn.Close(websocket.StatusInternalError, "write failed")
			return nil, fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer conn.Close(websocket.StatusNormalClosure, "done")
		for {
			_, raw, err := conn.Read(ctx)
			if err != nil {
				if websocket.CloseStatus(err) != websocket.StatusNormalClosure && ctx.Err() == nil {
					slog.Debug("elevenlabs: read ended", "err", err)
				}
				return
			}
			pcm, final, err := decodeAudio(raw)
			if err != nil {
				slog.Warn("elevenlabs: bad message", "err", err)
				continue
			}
			if len(pcm) > 0 {
				select {
				case out <- pcm:
				case <-ctx.Done():
					return
				}
			}
			if final {
				return
			}
		}
	}()
	return out, nil
}

// decodeAudio extracts PCM from one server message.
func decodeAudio(raw []byte) (pcm []byte, final bool, err error) {
	var m audioMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false, fmt.Errorf("decode: %w", err)
	}
	if m.Message != "" && m.Audio == "" && !m.IsFinal {
		return nil, false, fmt.Errorf("server: %s", m.Message)
	}
	if m.Audio == "" {
		return nil, m.IsFinal, nil
	}
	pcm, err = base64.StdEncoding.DecodeString(m.Audio)
	if err != nil {
		return nil, m.IsFinal, fmt.Errorf("decode audio: %w", err)
	}
	return pcm, m.IsFinal, nil
}
