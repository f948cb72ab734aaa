package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/pkg/provider/llm"
	llmmock "github.com/MrWong99/jarvis/pkg/provider/llm/mock"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	sttmock "github.com/MrWong99/jarvis/pkg/provider/stt/mock"
	"github.com/MrWong99/jarvis/pkg/provider/tts"
	ttsmock "github.com/MrWong99/jarvis/pkg/provider/tts/mock"
	"github.com/MrWong99/jarvis/pkg/provider/vad"
	vadmock "github.com/MrWong99/jarvis/pkg/provider/vad/mock"
	"github.com/MrWong99/jarvis/pkg/provider/wake"
	wakemock "github.com/MrWong99/jarvis/pkg/provider/wake/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug

audio:
  device: "USB Microphone"

wake:
  provider:
    name: porcupine
    api_key: pv-test
  keywords: [jarvis]
  sensitivity: 0.6
  cooldown: 1500ms

recognition:
  stt:
    name: deepgram
    api_key: dg-test
  fallback_stt:
    name: whisper
    model: /models/ggml-base.bin
  vad:
    name: flux
  max_window: 6s
  preprocess: false

matcher:
  threshold: 0.6

orchestrator:
  max_retries: 3
  backoff: 500ms
  max_backoff: 10s

commands:
  - name: open_editor
    trigger: открой редактор
    description: Открыть редактор
    exec: [code]
  - name: lock_screen
    trigger: заблокируй экран
    exec: [loginctl, lock-session]
    wait: true

speech:
  mode: tts
  tts:
    name: elevenlabs
    api_key: el-test
  voice: rachel
  volume: 0.8

screen:
  translator:
    name: openai
    model: gpt-4o-mini

telemetry:
  interval: 10s
  gpu: true

display:
  discord:
    token: bot-token
    channel_id: "123"
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Wake.Cooldown != 1500*time.Millisecond {
		t.Errorf("wake.cooldown: got %v, want 1.5s", cfg.Wake.Cooldown)
	}
	if cfg.Recognition.STT.Name != "deepgram" || cfg.Recognition.FallbackSTT.Model != "/models/ggml-base.bin" {
		t.Errorf("recognition providers: got %+v / %+v", cfg.Recognition.STT, cfg.Recognition.FallbackSTT)
	}
	if config.BoolOr(cfg.Recognition.Preprocess, true) {
		t.Error("recognition.preprocess: got true, want false")
	}
	if cfg.Recognition.MaxWindow != 6*time.Second {
		t.Errorf("recognition.max_window: got %v", cfg.Recognition.MaxWindow)
	}
	if len(cfg.Commands) != 2 {
		t.Fatalf("commands: got %d, want 2", len(cfg.Commands))
	}
	if got := cfg.Commands[1].Exec; len(got) != 2 || got[0] != "loginctl" || !cfg.Commands[1].Wait {
		t.Errorf("commands[1]: got %+v", cfg.Commands[1])
	}
	if cfg.Speech.Mode != config.SpeechTTS || cfg.Speech.Volume != 0.8 {
		t.Errorf("speech: got mode=%q volume=%.2f", cfg.Speech.Mode, cfg.Speech.Volume)
	}
	if cfg.Display.Discord == nil || cfg.Display.Discord.ChannelID != "123" {
		t.Errorf("display.discord: got %+v", cfg.Display.Discord)
	}
	if !cfg.Telemetry.GPU || cfg.Telemetry.Interval != 10*time.Second {
		t.Errorf("telemetry: got %+v", cfg.Telemetry)
	}
}

func TestLoadFromReader_EmptyAppliesDefaults(t *testing.T) {
	for _, doc := range []string{"", "{}"} {
		cfg, err := config.LoadFromReader(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("LoadFromReader(%q): unexpected error: %v", doc, err)
		}
		if cfg.Server.ListenAddr != config.DefaultListenAddr {
			t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
		}
		if cfg.Server.LogLevel != config.LogInfo {
			t.Errorf("log_level: got %q", cfg.Server.LogLevel)
		}
		if cfg.Audio.SampleRate != config.DefaultSampleRate {
			t.Errorf("sample_rate: got %d", cfg.Audio.SampleRate)
		}
		if cfg.Wake.Provider.Name != "porcupine" || len(cfg.Wake.Keywords) != 1 || cfg.Wake.Keywords[0] != "jarvis" {
			t.Errorf("wake: got %+v", cfg.Wake)
		}
		if cfg.Recognition.STT.Name != "whisper" || cfg.Recognition.VAD.Name != "rms" || cfg.Recognition.Language != "ru" {
			t.Errorf("recognition: got %+v", cfg.Recognition)
		}
		if cfg.Matcher.Threshold != 0.5 || cfg.Matcher.SuggestThreshold != 0.75 {
			t.Errorf("matcher: got %+v", cfg.Matcher)
		}
		if cfg.Speech.Mode != config.SpeechExec {
			t.Errorf("speech.mode: got %q", cfg.Speech.Mode)
		}
		if cfg.Telemetry.Interval != 5*time.Second || cfg.Telemetry.MaxTempWarning != 85 {
			t.Errorf("telemetry: got %+v", cfg.Telemetry)
		}
	}
}

func TestLoadFromReader_ZeroThresholdSelectsDefault(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("matcher:\n  threshold: 0\n  suggest_threshold: 0\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Matcher.Threshold != config.DefaultMatchThreshold {
		t.Errorf("matcher.threshold = %v, want %v", cfg.Matcher.Threshold, config.DefaultMatchThreshold)
	}
	if cfg.Matcher.SuggestThreshold != config.DefaultSuggestThreshold {
		t.Errorf("matcher.suggest_threshold = %v, want %v", cfg.Matcher.SuggestThreshold, config.DefaultSuggestThreshold)
	}
}

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("JARVIS_TEST_DG_KEY", "dg-secret")
	cfg, err := config.LoadFromReader(strings.NewReader(`
recognition:
  stt:
    name: deepgram
    api_key: ${JARVIS_TEST_DG_KEY}
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Recognition.STT.APIKey != "dg-secret" {
		t.Errorf("api_key: got %q, want %q", cfg.Recognition.STT.APIKey, "dg-secret")
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen: \":80\"\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadFromReader_BadDuration(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("wake:\n  cooldown: soon\n"))
	if err == nil {
		t.Fatal("expected error for bad duration, got nil")
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name:    "invalid log level",
			yaml:    "server:\n  log_level: verbose\n",
			wantErr: []string{"log_level"},
		},
		{
			name:    "tls without key",
			yaml:    "server:\n  tls:\n    cert_file: cert.pem\n",
			wantErr: []string{"server.tls"},
		},
		{
			name:    "unsupported audio backend",
			yaml:    "audio:\n  backend: alsa\n",
			wantErr: []string{"audio.backend"},
		},
		{
			name:    "threshold out of range",
			yaml:    "matcher:\n  threshold: 1.5\n",
			wantErr: []string{"matcher.threshold"},
		},
		{
			name:    "porcupine at 48 kHz",
			yaml:    "audio:\n  sample_rate: 48000\nwake:\n  provider:\n    name: porcupine\n",
			wantErr: []string{"audio.sample_rate"},
		},
		{
			name:    "sensitivity out of range",
			yaml:    "wake:\n  sensitivity: -0.2\n",
			wantErr: []string{"wake.sensitivity"},
		},
		{
			name:    "invalid speech mode",
			yaml:    "speech:\n  mode: shout\n",
			wantErr: []string{"speech.mode"},
		},
		{
			name:    "tts mode without provider",
			yaml:    "speech:\n  mode: tts\n",
			wantErr: []string{"speech.tts.name"},
		},
		{
			name:    "negative retries",
			yaml:    "orchestrator:\n  max_retries: -1\n",
			wantErr: []string{"max_retries"},
		},
		{
			name:    "max backoff below backoff",
			yaml:    "orchestrator:\n  backoff: 5s\n  max_backoff: 1s\n",
			wantErr: []string{"max_backoff"},
		},
		{
			name: "command missing fields",
			yaml: `
commands:
  - description: nothing
`,
			wantErr: []string{"commands[0].name", "commands[0].trigger", "commands[0].exec"},
		},
		{
			name: "duplicate command names",
			yaml: `
commands:
  - {name: a, trigger: один, exec: ["true"]}
  - {name: a, trigger: два, exec: ["true"]}
`,
			wantErr: []string{"duplicate"},
		},
		{
			name:    "discord without token",
			yaml:    "display:\n  discord:\n    channel_id: \"1\"\n",
			wantErr: []string{"display.discord.token"},
		},
		{
			name:    "multiple errors joined",
			yaml:    "server:\n  log_level: loud\nmatcher:\n  threshold: 2\n",
			wantErr: []string{"log_level", "matcher.threshold"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error should mention %q, got: %v", want, err)
				}
			}
		})
	}
}

func TestValidate_UnknownProviderOnlyWarns(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("recognition:\n  stt:\n    name: vosk\n"))
	if err != nil {
		t.Fatalf("unknown provider name should only warn, got: %v", err)
	}
}

func TestBoolOr(t *testing.T) {
	yes, no := true, false
	if !config.BoolOr(nil, true) || config.BoolOr(nil, false) {
		t.Error("nil should return the default")
	}
	if !config.BoolOr(&yes, false) || config.BoolOr(&no, true) {
		t.Error("non-nil should return the value")
	}
}

func TestEnumValidity(t *testing.T) {
	if !config.LogWarn.IsValid() || config.LogLevel("trace").IsValid() {
		t.Error("LogLevel.IsValid mismatch")
	}
	if !config.SpeechLog.IsValid() || config.SpeechMode("beep").IsValid() {
		t.Error("SpeechMode.IsValid mismatch")
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_Unknown(t *testing.T) {
	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nonexistent"}

	_, errLLM := reg.CreateLLM(entry)
	_, errSTT := reg.CreateSTT(entry)
	_, errTTS := reg.CreateTTS(entry)
	_, errVAD := reg.CreateVAD(entry)
	_, errWake := reg.CreateWake(config.WakeConfig{Provider: entry})

	for kind, err := range map[string]error{"llm": errLLM, "stt": errSTT, "tts": errTTS, "vad": errVAD, "wake": errWake} {
		if !errors.Is(err, config.ErrProviderNotRegistered) {
			t.Errorf("%s: expected ErrProviderNotRegistered, got: %v", kind, err)
		}
		if err != nil && !strings.Contains(err.Error(), kind+"/") {
			t.Errorf("%s: error should name the kind, got: %v", kind, err)
		}
	}
}

func TestRegistry_Registered(t *testing.T) {
	reg := config.NewRegistry()

	wantLLM := &llmmock.Provider{}
	wantSTT := &sttmock.Provider{}
	wantTTS := &ttsmock.Provider{}
	wantVAD := &vadmock.Engine{}
	wantWake := &wakemock.Detector{}
	var gotEntry config.ProviderEntry
	var gotWake config.WakeConfig

	reg.RegisterLLM("stub", func(e config.ProviderEntry) (llm.Provider, error) { return wantLLM, nil })
	reg.RegisterSTT("stub", func(e config.ProviderEntry) (stt.Provider, error) {
		gotEntry = e
		return wantSTT, nil
	})
	reg.RegisterTTS("stub", func(e config.ProviderEntry) (tts.Provider, error) { return wantTTS, nil })
	reg.RegisterVAD("stub", func(e config.ProviderEntry) (vad.Engine, error) { return wantVAD, nil })
	reg.RegisterWake("stub", func(c config.WakeConfig) (wake.Detector, error) {
		gotWake = c
		return wantWake, nil
	})

	entry := config.ProviderEntry{Name: "stub", APIKey: "k"}
	if got, err := reg.CreateLLM(entry); err != nil || got != wantLLM {
		t.Errorf("CreateLLM: got %v, %v", got, err)
	}
	if got, err := reg.CreateSTT(entry); err != nil || got != wantSTT {
		t.Errorf("CreateSTT: got %v, %v", got, err)
	}
	if gotEntry.APIKey != "k" {
		t.Errorf("factory received entry %+v", gotEntry)
	}
	if got, err := reg.CreateTTS(entry); err != nil || got != wantTTS {
		t.Errorf("CreateTTS: got %v, %v", got, err)
	}
	if got, err := reg.CreateVAD(entry); err != nil || got != wantVAD {
		t.Errorf("CreateVAD: got %v, %v", got, err)
	}
	wc := config.WakeConfig{Provider: entry, Keywords: []string{"jarvis"}}
	if got, err := reg.CreateWake(wc); err != nil || got != wantWake {
		t.Errorf("CreateWake: got %v, %v", got, err)
	}
	if len(gotWake.Keywords) != 1 {
		t.Errorf("wake factory received %+v", gotWake)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	boom := errors.New("boom")
	reg.RegisterSTT("broken", func(config.ProviderEntry) (stt.Provider, error) { return nil, boom })
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "broken"}); !errors.Is(err, boom) {
		t.Errorf("expected factory error, got: %v", err)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := config.Load("../../configs/example.yaml")
	if err != nil {
		t.Fatalf("example config: %v", err)
	}
	if cfg.Wake.Provider.Name != "porcupine" {
		t.Errorf("wake provider: got %q, want porcupine", cfg.Wake.Provider.Name)
	}
	if len(cfg.Commands) == 0 {
		t.Error("example config declares no commands")
	}
}
