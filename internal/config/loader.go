package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":  {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":  {"deepgram", "whisper"},
	"tts":  {"elevenlabs"},
	"vad":  {"rms", "flux"},
	"wake": {"porcupine", "spotter"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr       = ":8080"
	DefaultAudioBackend     = "portaudio"
	DefaultSampleRate       = 16000
	DefaultWakeProvider     = "porcupine"
	DefaultWakeKeyword      = "jarvis"
	DefaultWakeSensitivity  = 0.5
	DefaultSTTProvider      = "whisper"
	DefaultVADProvider      = "rms"
	DefaultLanguage         = "ru"
	DefaultMatchThreshold   = 0.5
	DefaultSuggestThreshold = 0.75
	DefaultTelemetryPeriod  = 5 * time.Second
	DefaultMaxTempWarning   = 85.0
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. Environment references such as ${DEEPGRAM_API_KEY} are expanded
// before parsing.
func Load(path string) (*Config, error) {
	return LoadFS(afero.NewOsFs(), path)
}

// LoadFS is [Load] on an arbitrary filesystem.
func LoadFS(fsys afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment
// references, applies defaults and validates the result. An empty document
// yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(raw)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero values with their defaults. Component-level
// defaults (recognition window, retry backoff, ...) are left to the
// components themselves.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = DefaultAudioBackend
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Wake.Provider.Name == "" {
		cfg.Wake.Provider.Name = DefaultWakeProvider
	}
	if len(cfg.Wake.Keywords) == 0 {
		cfg.Wake.Keywords = []string{DefaultWakeKeyword}
	}
	if cfg.Wake.Sensitivity == 0 {
		cfg.Wake.Sensitivity = DefaultWakeSensitivity
	}
	if cfg.Recognition.STT.Name == "" {
		cfg.Recognition.STT.Name = DefaultSTTProvider
	}
	if cfg.Recognition.VAD.Name == "" {
		cfg.Recognition.VAD.Name = DefaultVADProvider
	}
	if cfg.Recognition.Language == "" {
		cfg.Recognition.Language = DefaultLanguage
	}
	if cfg.Matcher.Threshold == 0 {
		cfg.Matcher.Threshold = DefaultMatchThreshold
	}
	if cfg.Matcher.SuggestThreshold == 0 {
		cfg.Matcher.SuggestThreshold = DefaultSuggestThreshold
	}
	if cfg.Speech.Mode == "" {
		cfg.Speech.Mode = SpeechExec
	}
	if cfg.Telemetry.Interval == 0 {
		cfg.Telemetry.Interval = DefaultTelemetryPeriod
	}
	if cfg.Telemetry.MaxTempWarning == 0 {
		cfg.Telemetry.MaxTempWarning = DefaultMaxTempWarning
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Audio
	if cfg.Audio.Backend != "" && cfg.Audio.Backend != DefaultAudioBackend {
		errs = append(errs, fmt.Errorf("audio.backend %q is invalid; valid values: portaudio", cfg.Audio.Backend))
	}
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}

	// Provider name validation: unknown names only warn.
	validateProviderName("wake", cfg.Wake.Provider.Name)
	validateProviderName("stt", cfg.Recognition.STT.Name)
	validateProviderName("stt", cfg.Recognition.FallbackSTT.Name)
	validateProviderName("vad", cfg.Recognition.VAD.Name)
	validateProviderName("tts", cfg.Speech.TTS.Name)
	validateProviderName("tts", cfg.Speech.FallbackTTS.Name)
	validateProviderName("llm", cfg.Screen.Translator.Name)
	validateProviderName("llm", cfg.Screen.FallbackTranslator.Name)

	// Wake
	if cfg.Wake.Sensitivity < 0 || cfg.Wake.Sensitivity > 1 {
		errs = append(errs, fmt.Errorf("wake.sensitivity %.2f is out of range [0, 1]", cfg.Wake.Sensitivity))
	}
	if cfg.Wake.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("wake.cooldown %v must not be negative", cfg.Wake.Cooldown))
	}
	if cfg.Wake.Provider.Name == "porcupine" && cfg.Audio.SampleRate > 0 && cfg.Audio.SampleRate != DefaultSampleRate {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is unsupported by porcupine; it classifies %d Hz audio", cfg.Audio.SampleRate, DefaultSampleRate))
	}
	if cfg.Wake.Provider.Name == "porcupine" && cfg.Wake.Provider.APIKey == "" {
		slog.Warn("wake.provider.api_key is empty; porcupine needs a Picovoice access key (PORCUPINE_ACCESS_KEY)")
	}

	// Recognition
	rec := cfg.Recognition
	if rec.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("recognition.frame_size %d must be positive", rec.FrameSize))
	}
	if rec.MaxWindow < 0 || rec.FinalizeTimeout < 0 {
		errs = append(errs, errors.New("recognition durations must not be negative"))
	}
	if rec.FallbackSTT.Name != "" && rec.FallbackSTT.Name == rec.STT.Name && rec.FallbackSTT.Model == rec.STT.Model {
		slog.Warn("recognition.fallback_stt is identical to recognition.stt", "name", rec.STT.Name)
	}

	// Matcher
	errs = appendRange(errs, "matcher.threshold", cfg.Matcher.Threshold)
	errs = appendRange(errs, "matcher.suggest_threshold", cfg.Matcher.SuggestThreshold)

	// Orchestrator
	orch := cfg.Orchestrator
	if orch.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.max_retries %d must not be negative", orch.MaxRetries))
	}
	if orch.Backoff < 0 || orch.MaxBackoff < 0 {
		errs = append(errs, errors.New("orchestrator backoff durations must not be negative"))
	}
	if orch.Backoff > 0 && orch.MaxBackoff > 0 && orch.MaxBackoff < orch.Backoff {
		errs = append(errs, fmt.Errorf("orchestrator.max_backoff %v is below orchestrator.backoff %v", orch.MaxBackoff, orch.Backoff))
	}

	// Commands
	namesSeen := make(map[string]int, len(cfg.Commands))
	for i, c := range cfg.Commands {
		prefix := fmt.Sprintf("commands[%d]", i)
		if c.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := namesSeen[c.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of commands[%d]", prefix, c.Name, prev))
			}
			namesSeen[c.Name] = i
		}
		if c.Trigger == "" {
			errs = append(errs, fmt.Errorf("%s.trigger is required", prefix))
		}
		if len(c.Exec) == 0 {
			errs = append(errs, fmt.Errorf("%s.exec is required", prefix))
		}
		errs = appendRange(errs, prefix+".threshold", c.Threshold)
	}

	// Speech
	sp := cfg.Speech
	if sp.Mode != "" && !sp.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("speech.mode %q is invalid; valid values: log, exec, tts", sp.Mode))
	}
	if sp.Mode == SpeechTTS && sp.TTS.Name == "" {
		errs = append(errs, errors.New("speech.tts.name is required when speech.mode is tts"))
	}
	if sp.Volume < 0 || sp.Volume > 1 {
		errs = append(errs, fmt.Errorf("speech.volume %.2f is out of range [0, 1]", sp.Volume))
	}
	if sp.Rate < 0 {
		errs = append(errs, fmt.Errorf("speech.rate %d must not be negative", sp.Rate))
	}

	// Screen
	if BoolOr(cfg.Screen.Enabled, true) && cfg.Screen.Translator.Name == "" {
		slog.Debug("screen.translator is not configured; screen text is shown untranslated")
	}

	// Telemetry
	if cfg.Telemetry.MaxTempWarning < 0 {
		errs = append(errs, fmt.Errorf("telemetry.max_temp_warning %.1f must not be negative", cfg.Telemetry.MaxTempWarning))
	}

	// Display
	if d := cfg.Display.Discord; d != nil {
		if d.Token == "" {
			errs = append(errs, errors.New("display.discord.token is required"))
		}
		if d.ChannelID == "" {
			errs = append(errs, errors.New("display.discord.channel_id is required"))
		}
	}

	return errors.Join(errs...)
}

func appendRange(errs []error, field string, v float64) []error {
	if v < 0 || v > 1 {
		return append(errs, fmt.Errorf("%s %.2f is out of range [0, 1]", field, v))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
