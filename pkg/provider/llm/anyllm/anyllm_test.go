package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/jarvis/pkg/provider/llm"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, provider, model string
	}{
		{"empty provider", "", "m"},
		{"empty model", "openai", ""},
		{"unknown provider", "skynet", "t-800"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.provider, tt.model); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNew_Ollama(t *testing.T) {
	p, err := New("Ollama", "qwen2.5")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "qwen2.5" {
		t.Errorf("model = %q", p.model)
	}
}

func TestBuildParams(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params := p.buildParams(llm.Request{System: "translate", Prompt: "привет", Temperature: 0.2, MaxTokens: 100})

	if params.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem || params.Messages[0].ContentString() != "translate" {
		t.Errorf("system message = %+v", params.Messages[0])
	}
	if params.Messages[1].Role != "user" || params.Messages[1].ContentString() != "привет" {
		t.Errorf("user message = %+v", params.Messages[1])
	}
	if params.Temperature == nil || *params.Temperature != 0.2 {
		t.Error("temperature not set")
	}
	if params.MaxTokens == nil || *params.MaxTokens != 100 {
		t.Error("max tokens not set")
	}
}

func TestBuildParams_NoSystem(t *testing.T) {
	p := &Provider{model: "m"}
	params := p.buildParams(llm.Request{Prompt: "x"})
	if len(params.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(params.Messages))
	}
	if params.Temperature != nil || params.MaxTokens != nil {
		t.Error("zero temperature and max tokens must stay unset")
	}
}
