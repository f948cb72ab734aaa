// Package config provides the configuration schema, loader, and provider
// registry for the Jarvis voice command orchestrator.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SpeechMode selects how spoken feedback is produced.
type SpeechMode string

const (
	// SpeechLog only logs utterances.
	SpeechLog SpeechMode = "log"

	// SpeechExec runs a local engine such as espeak-ng.
	SpeechExec SpeechMode = "exec"

	// SpeechTTS synthesizes with a TTS provider and plays the result.
	SpeechTTS SpeechMode = "tts"
)

// IsValid reports whether m is a recognised speech mode.
func (m SpeechMode) IsValid() bool {
	switch m {
	case SpeechLog, SpeechExec, SpeechTTS:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Audio        AudioConfig        `yaml:"audio"`
	Wake         WakeConfig         `yaml:"wake"`
	Recognition  RecognitionConfig  `yaml:"recognition"`
	Matcher      MatcherConfig      `yaml:"matcher"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Commands     []CommandConfig    `yaml:"commands"`
	Speech       SpeechConfig       `yaml:"speech"`
	Screen       ScreenConfig       `yaml:"screen"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Display      DisplayConfig      `yaml:"display"`
}

// ServerConfig holds the control surface and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the health and control endpoints
	// (e.g., ":8080"). [ListenOff] disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// ListenOff as listen_addr disables the HTTP server.
const ListenOff = "off"

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "deepgram", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider, or a model file path for
	// local engines.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the standard
	// fields above.
	Options map[string]any `yaml:"options"`
}

// AudioConfig selects the capture device.
type AudioConfig struct {
	// Backend is the capture implementation. Only "portaudio" is built in.
	Backend string `yaml:"backend"`

	// Device is the input device name. Empty selects the system default.
	Device string `yaml:"device"`

	// SampleRate of the capture stream in Hz.
	SampleRate int `yaml:"sample_rate"`
}

// WakeConfig configures the wake word detector and listener.
type WakeConfig struct {
	// Provider selects the detector ("porcupine" or "spotter").
	Provider ProviderEntry `yaml:"provider"`

	// Keywords are the wake phrases. Porcupine accepts built-in keyword
	// names or .ppn paths; the spotter matches them in transcripts.
	Keywords []string `yaml:"keywords"`

	// Sensitivity in [0,1] trades misses for false alarms.
	Sensitivity float64 `yaml:"sensitivity"`

	// Cooldown suppresses repeated detections of one utterance.
	Cooldown time.Duration `yaml:"cooldown"`

	// MaxFrameErrors consecutive classifier errors end the listener loop.
	MaxFrameErrors int `yaml:"max_frame_errors"`
}

// RecognitionConfig configures the command recognition session.
type RecognitionConfig struct {
	STT         ProviderEntry `yaml:"stt"`
	FallbackSTT ProviderEntry `yaml:"fallback_stt"`
	VAD         ProviderEntry `yaml:"vad"`

	// FrameSize is the number of samples per capture frame.
	FrameSize int `yaml:"frame_size"`

	// MaxWindow bounds how long the session listens for a command.
	MaxWindow time.Duration `yaml:"max_window"`

	// FinalizeTimeout bounds the wait for a final after the window closed.
	FinalizeTimeout time.Duration `yaml:"finalize_timeout"`

	// Language is the BCP-47 code passed to the STT provider.
	Language string `yaml:"language"`

	// Preprocess normalizes transcripts before matching. Defaults to true.
	Preprocess *bool `yaml:"preprocess"`

	// RecordDir, when set, receives a WAV file per session.
	RecordDir string `yaml:"record_dir"`

	// BoostTriggers sends command triggers to the STT provider as keyword
	// hints.
	BoostTriggers bool `yaml:"boost_triggers"`
}

// MatcherConfig tunes command matching.
type MatcherConfig struct {
	// Threshold is the minimum match score in (0,1]. Zero, whether omitted
	// or written explicitly, selects [DefaultMatchThreshold].
	Threshold float64 `yaml:"threshold"`

	// SuggestThreshold is the minimum similarity for "did you mean" hints.
	// Zero selects [DefaultSuggestThreshold].
	SuggestThreshold float64 `yaml:"suggest_threshold"`
}

// OrchestratorConfig tunes the state machine.
type OrchestratorConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	Backoff        time.Duration `yaml:"backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	StatsKeyword   string        `yaml:"stats_keyword"`
	ScreenKeywords []string      `yaml:"screen_keywords"`
}

// CommandConfig declares a command that runs an external program. A
// command with the name of a built-in replaces it.
type CommandConfig struct {
	Name        string   `yaml:"name"`
	Trigger     string   `yaml:"trigger"`
	Description string   `yaml:"description"`
	Exec        []string `yaml:"exec"`

	// Wait blocks dispatch until the program exits.
	Wait bool `yaml:"wait"`

	Threshold float64 `yaml:"threshold"`
}

// SpeechConfig configures spoken feedback.
type SpeechConfig struct {
	Mode SpeechMode `yaml:"mode"`

	// TTS and FallbackTTS are used in tts mode.
	TTS         ProviderEntry `yaml:"tts"`
	FallbackTTS ProviderEntry `yaml:"fallback_tts"`

	// Voice is the TTS voice ID or the local engine voice.
	Voice string `yaml:"voice"`

	// Exec is the local engine command line template for exec mode.
	Exec []string `yaml:"exec"`

	// Rate in words per minute and Volume in [0,1] for exec mode.
	Rate   int     `yaml:"rate"`
	Volume float64 `yaml:"volume"`

	// QueueSize is the number of utterances buffered for playback.
	QueueSize int `yaml:"queue_size"`
}

// ScreenConfig configures the OCR and translation fallback.
type ScreenConfig struct {
	Enabled    *bool         `yaml:"enabled"`
	Capture    []string      `yaml:"capture"`
	Tesseract  string        `yaml:"tesseract"`
	OCRLang    string        `yaml:"ocr_lang"`
	Translator ProviderEntry `yaml:"translator"`

	// FallbackTranslator is tried when Translator fails.
	FallbackTranslator ProviderEntry `yaml:"fallback_translator"`

	SourceLang string        `yaml:"source_lang"`
	TargetLang string        `yaml:"target_lang"`
	Timeout    time.Duration `yaml:"timeout"`
}

// TelemetryConfig configures host statistics.
type TelemetryConfig struct {
	// Interval between periodic stats log lines. Negative disables them.
	Interval time.Duration `yaml:"interval"`

	// MaxTempWarning is the CPU temperature in °C that logs a warning.
	MaxTempWarning float64 `yaml:"max_temp_warning"`

	// GPU enables nvidia-smi sampling.
	GPU bool `yaml:"gpu"`
}

// DisplayConfig selects where text is shown besides the log.
type DisplayConfig struct {
	Discord *DiscordConfig `yaml:"discord"`
}

// DiscordConfig posts shown text to a Discord channel.
type DiscordConfig struct {
	Token       string `yaml:"token"`
	ChannelID   string `yaml:"channel_id"`
	WakeCommand string `yaml:"wake_command"`
}

// BoolOr returns *b, or def when b is nil.
func BoolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
