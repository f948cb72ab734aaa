// Package app wires the Jarvis subsystems into a running assistant.
//
// New builds the capture arbiter, wake listener, recognition session,
// command registry, collaborators and the orchestrator from the config and
// the provider instances created by main. Run drives the orchestrator, the
// control server and the telemetry log until the context ends, and
// Shutdown releases everything in reverse order.
//
// Tests inject doubles for the speech, display and telemetry collaborators
// via functional options; everything else comes from [Providers].
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/MrWong99/jarvis/internal/collab/display"
	"github.com/MrWong99/jarvis/internal/collab/screen"
	"github.com/MrWong99/jarvis/internal/collab/speech"
	"github.com/MrWong99/jarvis/internal/collab/telemetry"
	"github.com/MrWong99/jarvis/internal/command"
	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/lease"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/orchestrator"
	"github.com/MrWong99/jarvis/internal/recognition"
	"github.com/MrWong99/jarvis/internal/wake"
	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/llm"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	"github.com/MrWong99/jarvis/pkg/provider/tts"
	"github.com/MrWong99/jarvis/pkg/provider/vad"
	wakeprovider "github.com/MrWong99/jarvis/pkg/provider/wake"
)

// Providers holds the device and provider instances built by main. Device,
// Wake, STT and VAD are required.
type Providers struct {
	Device audio.Device
	Wake   wakeprovider.Detector
	STT    stt.Provider
	VAD    vad.Engine

	// Player and TTS are used in tts speech mode.
	Player audio.Player
	TTS    tts.Provider

	// Translator backs the screen reader. Nil shows screen text untranslated.
	Translator llm.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	levelVar  *slog.LevelVar
	fs        afero.Fs

	arbiter  *lease.Arbiter
	listener *wake.Listener
	session  *recognition.Session
	registry *command.Registry
	matcher  *command.Matcher
	speech   *speech.Queue
	display  display.Sink
	discord  *display.Discord
	screen   screen.Reader
	sampler  orchestrator.Sampler
	orch     *orchestrator.Orchestrator

	// injected collaborators, nil means build from config
	speechSink  speech.Sink
	displaySink display.Sink
	screenRdr   screen.Reader

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets config reloads change the log level.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// WithFS sets the filesystem for session recordings. Default: the OS
// filesystem.
func WithFS(fs afero.Fs) Option {
	return func(a *App) { a.fs = fs }
}

// WithSpeech replaces the configured speech engine. The sink is still
// wrapped in a [speech.Queue].
func WithSpeech(s speech.Sink) Option {
	return func(a *App) { a.speechSink = s }
}

// WithDisplay replaces the configured display sinks.
func WithDisplay(d display.Sink) Option {
	return func(a *App) { a.displaySink = d }
}

// WithScreen replaces the OCR screen reader.
func WithScreen(r screen.Reader) Option {
	return func(a *App) { a.screenRdr = r }
}

// WithTelemetry replaces the host telemetry sampler.
func WithTelemetry(s orchestrator.Sampler) Option {
	return func(a *App) { a.sampler = s }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Nothing runs until
// [App.Run]; the Discord session, when configured, is opened here so a bad
// token fails startup.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Device == nil || providers.Wake == nil || providers.STT == nil || providers.VAD == nil {
		return nil, errors.New("app: device, wake, stt and vad providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		fs:        afero.NewOsFs(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Capture device and lease arbiter ─────────────────────────────
	a.arbiter = lease.NewArbiter(providers.Device, audio.StreamConfig{
		SampleRate: cfg.Audio.SampleRate,
		Device:     cfg.Audio.Device,
	}, lease.WithMetrics(a.metrics))

	// ── 2. Commands ─────────────────────────────────────────────────────
	if err := a.initCommands(); err != nil {
		return nil, fmt.Errorf("app: init commands: %w", err)
	}

	// ── 3. Wake listener and recognition session ────────────────────────
	a.initListener()
	a.initRecognition()

	// ── 4. Collaborators ────────────────────────────────────────────────
	if err := a.initSpeech(); err != nil {
		return nil, fmt.Errorf("app: init speech: %w", err)
	}
	if err := a.initDisplay(); err != nil {
		return nil, fmt.Errorf("app: init display: %w", err)
	}
	a.initScreen()
	a.initTelemetry()

	// ── 5. Orchestrator ─────────────────────────────────────────────────
	a.initOrchestrator()
	a.closers = append(a.closers, a.arbiter.Close)

	observe.Logger(ctx).Info("app initialised",
		"commands", a.registry.Len(),
		"wake", cfg.Wake.Provider.Name,
		"stt", cfg.Recognition.STT.Name,
		"speech", cfg.Speech.Mode,
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initCommands registers the built-ins followed by the configured commands.
// A configured command with a built-in's name replaces it in place.
func (a *App) initCommands() error {
	a.registry = command.NewRegistry()
	for _, c := range command.Builtins() {
		if err := a.registry.Register(c); err != nil {
			return err
		}
	}
	for _, cc := range a.cfg.Commands {
		c := command.Command{
			Name:        cc.Name,
			Trigger:     cc.Trigger,
			Description: cc.Description,
			Handler:     command.Exec{Argv: cc.Exec, Wait: cc.Wait},
			Threshold:   cc.Threshold,
		}
		if _, exists := a.registry.Get(c.Name); exists {
			slog.Info("configured command replaces built-in", "command", c.Name)
		}
		if err := a.registry.Register(c); err != nil {
			return fmt.Errorf("command %q: %w", cc.Name, err)
		}
	}

	var mopts []command.MatcherOption
	if a.cfg.Matcher.Threshold > 0 {
		mopts = append(mopts, command.WithThreshold(a.cfg.Matcher.Threshold))
	}
	a.matcher = command.NewMatcher(a.registry, mopts...)
	return nil
}

func (a *App) initListener() {
	opts := []wake.Option{wake.WithMetrics(a.metrics)}
	if a.cfg.Wake.Cooldown > 0 {
		opts = append(opts, wake.WithCooldown(a.cfg.Wake.Cooldown))
	}
	if a.cfg.Wake.MaxFrameErrors > 0 {
		opts = append(opts, wake.WithMaxFrameErrors(a.cfg.Wake.MaxFrameErrors))
	}
	a.listener = wake.New(a.arbiter, a.providers.Wake, opts...)
	a.closers = append(a.closers, a.listener.Close)
}

func (a *App) initRecognition() {
	rc := a.cfg.Recognition
	cfg := recognition.Config{
		MaxWindow:       rc.MaxWindow,
		FinalizeTimeout: rc.FinalizeTimeout,
		FrameSize:       rc.FrameSize,
		Language:        rc.Language,
	}
	if rc.BoostTriggers {
		for _, c := range a.registry.List() {
			cfg.Keywords = append(cfg.Keywords, stt.KeywordBoost{Keyword: c.Trigger, Boost: 1})
		}
	}
	opts := []recognition.Option{
		recognition.WithPreprocess(config.BoolOr(rc.Preprocess, true)),
		recognition.WithMetrics(a.metrics),
	}
	if rc.RecordDir != "" {
		opts = append(opts, recognition.WithRecorder(recognition.NewRecorder(a.fs, rc.RecordDir)))
	}
	a.session = recognition.New(a.arbiter, a.providers.STT, a.providers.VAD, cfg, opts...)
}

func (a *App) initSpeech() error {
	sink := a.speechSink
	if sink == nil {
		sp := a.cfg.Speech
		switch sp.Mode {
		case config.SpeechLog:
			sink = speech.Log{}
		case config.SpeechTTS:
			if a.providers.TTS == nil || a.providers.Player == nil {
				return errors.New("tts speech mode needs a tts provider and an audio player")
			}
			sink = speech.NewSynth(a.providers.TTS, a.providers.Player, tts.Voice{ID: sp.Voice}, 0)
			a.closers = append(a.closers, a.providers.Player.Close)
		default:
			sink = &speech.Exec{Argv: sp.Exec, Voice: sp.Voice, Rate: sp.Rate, Volume: sp.Volume}
		}
	}
	size := a.cfg.Speech.QueueSize
	if size <= 0 {
		size = speech.DefaultQueueSize
	}
	a.speech = speech.NewQueue(sink, size)
	a.closers = append(a.closers, a.speech.Close)
	return nil
}

func (a *App) initDisplay() error {
	if a.displaySink != nil {
		a.display = a.displaySink
		return nil
	}
	sinks := display.Multi{display.Log{}}
	if dc := a.cfg.Display.Discord; dc != nil {
		d, err := display.NewDiscord(display.DiscordConfig{
			Token:       dc.Token,
			ChannelID:   dc.ChannelID,
			WakeCommand: dc.WakeCommand,
		})
		if err != nil {
			return err
		}
		a.discord = d
		a.closers = append(a.closers, d.Close)
		sinks = append(sinks, d)
	}
	a.display = sinks
	return nil
}

func (a *App) initScreen() {
	if a.screenRdr != nil {
		a.screen = a.screenRdr
		return
	}
	sc := a.cfg.Screen
	if !config.BoolOr(sc.Enabled, true) {
		return
	}
	var tr screen.Translator
	if a.providers.Translator != nil {
		tr = screen.NewLLMTranslator(a.providers.Translator)
	}
	a.screen = screen.NewOCR(screen.Config{
		Capture:    sc.Capture,
		Tesseract:  sc.Tesseract,
		Language:   sc.OCRLang,
		SourceLang: sc.SourceLang,
		TargetLang: sc.TargetLang,
		Timeout:    sc.Timeout,
	}, tr)
}

func (a *App) initTelemetry() {
	if a.sampler != nil {
		return
	}
	opts := []telemetry.Option{}
	if a.cfg.Telemetry.MaxTempWarning > 0 {
		opts = append(opts, telemetry.WithMaxTempWarning(a.cfg.Telemetry.MaxTempWarning))
	}
	if a.cfg.Telemetry.GPU {
		opts = append(opts, telemetry.WithGPU(&telemetry.NvidiaSMI{}))
	}
	a.sampler = telemetry.NewSampler(opts...)
}

func (a *App) initOrchestrator() {
	oc := a.cfg.Orchestrator
	a.orch = orchestrator.New(orchestrator.Config{
		Retry: orchestrator.RetryPolicy{
			MaxRetries: oc.MaxRetries,
			Backoff:    oc.Backoff,
			MaxBackoff: oc.MaxBackoff,
		},
		Dispatch: orchestrator.DispatcherConfig{
			StatsKeyword:     oc.StatsKeyword,
			ScreenKeywords:   oc.ScreenKeywords,
			SuggestThreshold: a.cfg.Matcher.SuggestThreshold,
		},
	}, orchestrator.Deps{
		Listener:   a.listener,
		Recognizer: a.session,
		Registry:   a.registry,
		Matcher:    a.matcher,
		Speech:     a.speech,
		Display:    a.display,
		Screen:     a.screen,
		Telemetry:  a.sampler,
		Metrics:    a.metrics,
	})
	if a.discord != nil {
		a.discord.OnTrigger(a.orch.Trigger)
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Orchestrator returns the state machine.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

// Arbiter returns the capture device arbiter.
func (a *App) Arbiter() *lease.Arbiter { return a.arbiter }

// CommandListing renders the registered commands one per line as
// "- {trigger}: {description}".
func (a *App) CommandListing() string {
	var b strings.Builder
	for _, c := range a.registry.List() {
		desc := c.Description
		if desc == "" {
			desc = c.Name
		}
		fmt.Fprintf(&b, "- %s: %s\n", c.Trigger, desc)
	}
	return b.String()
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig hot-applies the reloadable parts of a changed config: the log
// level and the match threshold. Other changes are logged and wait for a
// restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.MatcherThresholdChanged {
		a.matcher.SetThreshold(d.NewThreshold)
		slog.Info("match threshold changed", "threshold", d.NewThreshold)
	}
	if d.RequiresRestart() {
		names := make([]string, 0, len(d.CommandChanges))
		for _, c := range d.CommandChanges {
			names = append(names, c.Name)
		}
		slog.Warn("command changes take effect after restart", "commands", names)
	}
}

// SlogLevel maps a config level to its slog equivalent.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the orchestrator and runs the closers in order. It returns
// ctx.Err() when the deadline expires before all closers finished.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.orch.Stop(); err != nil {
			slog.Warn("orchestrator stop error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
