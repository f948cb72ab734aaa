// Command jarvis is the voice-triggered desktop assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/jarvis/internal/app"
	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/resilience"
	"github.com/MrWong99/jarvis/pkg/audio/portaudio"
	"github.com/MrWong99/jarvis/pkg/provider/llm"
	"github.com/MrWong99/jarvis/pkg/provider/llm/anyllm"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	"github.com/MrWong99/jarvis/pkg/provider/stt/deepgram"
	"github.com/MrWong99/jarvis/pkg/provider/stt/whisper"
	"github.com/MrWong99/jarvis/pkg/provider/tts"
	"github.com/MrWong99/jarvis/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/jarvis/pkg/provider/vad"
	"github.com/MrWong99/jarvis/pkg/provider/vad/flux"
	"github.com/MrWong99/jarvis/pkg/provider/vad/rms"
	"github.com/MrWong99/jarvis/pkg/provider/wake"
	"github.com/MrWong99/jarvis/pkg/provider/wake/porcupine"
	"github.com/MrWong99/jarvis/pkg/provider/wake/spotter"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// API keys may live in a .env next to the binary.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "jarvis: load .env: %v\n", err)
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "jarvis: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "jarvis: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("jarvis starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	// ── Audio backend ─────────────────────────────────────────────────────────
	terminate, err := portaudio.Init()
	if err != nil {
		slog.Error("failed to initialise audio", "err", err)
		return 1
	}
	defer func() {
		if err := terminate(); err != nil {
			slog.Warn("audio terminate", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg, observe.DefaultMetrics())
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLevelVar(&level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("assistant ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the implementations that
// ship with Jarvis. Used for startup logging.
var builtinProviders = map[string][]string{
	"llm":  {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":  {"deepgram", "whisper"},
	"tts":  {"elevenlabs"},
	"vad":  {"rms", "flux"},
	"wake": {"porcupine", "spotter"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// Every hosted backend takes an optional APIKey and BaseURL; ollama and
	// the llama servers are local and usually only need BaseURL.
	for _, providerName := range builtinProviders["llm"] {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "endpointing"); d > 0 {
			opts = append(opts, deepgram.WithEndpointing(d))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if n, ok := entry.Options["threads"].(int); ok && n > 0 {
			opts = append(opts, whisper.WithThreads(n))
		}
		if d := optDuration(entry.Options, "silence"); d > 0 {
			opts = append(opts, whisper.WithSilence(d))
		}
		if d := optDuration(entry.Options, "max_buffer"); d > 0 {
			opts = append(opts, whisper.WithMaxBuffer(d))
		}
		if v, ok := entry.Options["rms_threshold"].(float64); ok && v > 0 {
			opts = append(opts, whisper.WithRMSThreshold(v))
		}
		return whisper.New(modelPath, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("rms", func(config.ProviderEntry) (vad.Engine, error) {
		return rms.New(), nil
	})
	reg.RegisterVAD("flux", func(config.ProviderEntry) (vad.Engine, error) {
		return flux.New(), nil
	})

	// ── Wake ──────────────────────────────────────────────────────────────────

	reg.RegisterWake("porcupine", func(wc config.WakeConfig) (wake.Detector, error) {
		return porcupine.New(porcupine.Config{
			AccessKey:    wc.Provider.APIKey,
			Keywords:     wc.Keywords,
			KeywordPaths: optStrings(wc.Provider.Options, "keyword_paths"),
			ModelPath:    wc.Provider.Model,
			Sensitivity:  float32(wc.Sensitivity),
		})
	})

	// The spotter transcribes continuously with its own STT stream. The
	// stt option names the backend, the remaining entry fields configure it.
	reg.RegisterWake("spotter", func(wc config.WakeConfig) (wake.Detector, error) {
		entry := wc.Provider
		entry.Name = optString(wc.Provider.Options, "stt")
		if entry.Name == "" {
			entry.Name = config.DefaultSTTProvider
		}
		p, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, fmt.Errorf("spotter stt: %w", err)
		}
		return spotter.New(p, spotter.Config{
			Phrases:  wc.Keywords,
			Language: optString(wc.Provider.Options, "language"),
		})
	})

	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the audio backend and every provider named in
// cfg. Configured fallbacks are wrapped in circuit-breaking fallback groups.
func buildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, error) {
	ps := &app.Providers{
		Device: portaudio.NewDevice(cfg.Audio.Device),
	}

	var err error
	if ps.Wake, err = reg.CreateWake(cfg.Wake); err != nil {
		return nil, fmt.Errorf("create wake detector %q: %w", cfg.Wake.Provider.Name, err)
	}
	slog.Info("provider created", "kind", "wake", "name", cfg.Wake.Provider.Name)

	rc := cfg.Recognition
	primarySTT, err := reg.CreateSTT(rc.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", rc.STT.Name, err)
	}
	ps.STT = primarySTT
	if name := rc.FallbackSTT.Name; name != "" {
		fb, err := reg.CreateSTT(rc.FallbackSTT)
		if err != nil {
			return nil, fmt.Errorf("create fallback stt provider %q: %w", name, err)
		}
		group := resilience.NewSTTFallback(primarySTT, rc.STT.Name, resilience.FallbackConfig{Metrics: metrics})
		group.AddFallback(name, fb)
		ps.STT = group
	}
	slog.Info("provider created", "kind", "stt", "name", rc.STT.Name, "fallback", rc.FallbackSTT.Name)

	if ps.VAD, err = reg.CreateVAD(rc.VAD); err != nil {
		return nil, fmt.Errorf("create vad engine %q: %w", rc.VAD.Name, err)
	}

	if sp := cfg.Speech; sp.Mode == config.SpeechTTS {
		primaryTTS, err := reg.CreateTTS(sp.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", sp.TTS.Name, err)
		}
		ps.TTS = primaryTTS
		if name := sp.FallbackTTS.Name; name != "" {
			fb, err := reg.CreateTTS(sp.FallbackTTS)
			if err != nil {
				return nil, fmt.Errorf("create fallback tts provider %q: %w", name, err)
			}
			group := resilience.NewTTSFallback(primaryTTS, sp.TTS.Name, resilience.FallbackConfig{Metrics: metrics})
			group.AddFallback(name, fb)
			ps.TTS = group
		}
		ps.Player = portaudio.NewPlayer()
		slog.Info("provider created", "kind", "tts", "name", sp.TTS.Name, "fallback", sp.FallbackTTS.Name)
	}

	sc := cfg.Screen
	if name := sc.Translator.Name; name != "" && config.BoolOr(sc.Enabled, true) {
		primary, err := reg.CreateLLM(sc.Translator)
		if err != nil {
			return nil, fmt.Errorf("create translator %q: %w", name, err)
		}
		ps.Translator = primary
		if fbName := sc.FallbackTranslator.Name; fbName != "" {
			fb, err := reg.CreateLLM(sc.FallbackTranslator)
			if err != nil {
				return nil, fmt.Errorf("create fallback translator %q: %w", fbName, err)
			}
			group := resilience.NewLLMFallback(primary, name, resilience.FallbackConfig{Metrics: metrics})
			group.AddFallback(fbName, fb)
			ps.Translator = group
		}
		slog.Info("provider created", "kind", "llm", "name", name, "fallback", sc.FallbackTranslator.Name)
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Jarvis, startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Wake", cfg.Wake.Provider.Name, "")
	printProvider("STT", cfg.Recognition.STT.Name, cfg.Recognition.STT.Model)
	printProvider("VAD", cfg.Recognition.VAD.Name, "")
	printProvider("Speech", string(cfg.Speech.Mode), cfg.Speech.TTS.Name)
	printProvider("Translator", cfg.Screen.Translator.Name, cfg.Screen.Translator.Model)
	if cfg.Display.Discord != nil {
		fmt.Printf("║  Discord         : %-19s ║\n", "enabled")
	} else {
		fmt.Printf("║  Discord         : %-19s ║\n", "(disabled)")
	}
	fmt.Printf("║  Commands        : %-19d ║\n", len(cfg.Commands))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optStrings extracts a string list from a provider Options map. YAML
// sequences decode as []any.
func optStrings(opts map[string]any, key string) []string {
	raw, _ := opts[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// optDuration parses a duration string such as "300ms" from a provider
// Options map. Missing or malformed values return zero.
func optDuration(opts map[string]any, key string) time.Duration {
	raw := optString(opts, key)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("ignoring provider option", "key", key, "err", err)
		return 0
	}
	return d
}
