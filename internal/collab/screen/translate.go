package screen

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/jarvis/pkg/provider/llm"
)

// Translator converts text between languages identified by ISO 639-1 codes.
type Translator interface {
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// NopTranslator returns text unchanged.
type NopTranslator struct{}

var _ Translator = NopTranslator{}

// Translate implements [Translator].
func (NopTranslator) Translate(_ context.Context, text, _, _ string) (string, error) {
	return text, nil
}

const translatePrompt = `You are a translation engine. Translate the user's text from %s to %s.
The text was recognized from a screenshot and may contain OCR noise; keep line breaks.
Reply with the translation only, without quotes or commentary.`

// LLMTranslator translates with a completion model.
type LLMTranslator struct {
	llm llm.Provider
}

var _ Translator = (*LLMTranslator)(nil)

// NewLLMTranslator returns a translator backed by p.
func NewLLMTranslator(p llm.Provider) *LLMTranslator {
	return &LLMTranslator{llm: p}
}

// Translate implements [Translator].
func (t *LLMTranslator) Translate(ctx context.Context, text, from, to string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if from == to {
		return text, nil
	}
	resp, err := t.llm.Complete(ctx, llm.Request{
		System:      fmt.Sprintf(translatePrompt, languageName(from), languageName(to)),
		Prompt:      text,
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("screen: translate: %w", err)
	}
	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", fmt.Errorf("screen: translate: empty response")
	}
	return out, nil
}

func languageName(code string) string {
	switch strings.ToLower(code) {
	case "ru":
		return "Russian"
	case "en":
		return "English"
	case "de":
		return "German"
	case "fr":
		return "French"
	case "es":
		return "Spanish"
	case "uk":
		return "Ukrainian"
	default:
		return code
	}
}
