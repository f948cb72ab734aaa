package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/jarvis/internal/collab/display"
	"github.com/MrWong99/jarvis/internal/collab/screen"
	"github.com/MrWong99/jarvis/internal/collab/speech"
	"github.com/MrWong99/jarvis/internal/collab/telemetry"
	"github.com/MrWong99/jarvis/internal/command"
	"github.com/MrWong99/jarvis/internal/observe"
)

// Spoken and displayed feedback.
const (
	msgCommand       = "Команда: %s"
	msgCommandFailed = "Не удалось выполнить команду: %s"
	msgNoMatch       = "Не найдена похожая команда."
	msgSuggestion    = "Возможно: %s"
	msgNoScreenText  = "Текст на экране не найден."
	msgStartup       = "Помощник активирован. Готов выполнять команды."
	msgShutdown      = "Помощник деактивирован. Досвидания."
)

// Default fallback keywords.
const DefaultStatsKeyword = "статистика"

// DefaultScreenKeywords route unmatched text to the screen reader.
var DefaultScreenKeywords = []string{"экран", "прочитай", "переведи"}

// Outcome classifies how a transcript was handled.
type Outcome int

const (
	// OutcomeEmpty: the recognition session produced no text.
	OutcomeEmpty Outcome = iota

	// OutcomeExecuted: a command matched and its handler succeeded.
	OutcomeExecuted

	// OutcomeFailed: a command matched and its handler returned an error.
	OutcomeFailed

	// OutcomeStats: the statistics fallback ran.
	OutcomeStats

	// OutcomeScreen: the screen translation fallback ran.
	OutcomeScreen

	// OutcomeNoMatch: nothing handled the text.
	OutcomeNoMatch
)

// String returns the outcome name used as the dispatch metric status.
func (o Outcome) String() string {
	switch o {
	case OutcomeEmpty:
		return "empty"
	case OutcomeExecuted:
		return "ok"
	case OutcomeFailed:
		return "error"
	case OutcomeStats:
		return "stats"
	case OutcomeScreen:
		return "screen"
	case OutcomeNoMatch:
		return "no_match"
	default:
		return "unknown"
	}
}

// Sampler takes host statistics snapshots.
type Sampler interface {
	Sample(ctx context.Context) telemetry.Snapshot
}

// DispatcherConfig holds the fallback routing rules.
type DispatcherConfig struct {
	// StatsKeyword routes unmatched text containing it to the statistics
	// report. Empty means [DefaultStatsKeyword].
	StatsKeyword string

	// ScreenKeywords route unmatched text to the screen reader. Nil means
	// [DefaultScreenKeywords].
	ScreenKeywords []string

	// SuggestThreshold is the minimum similarity for a "did you mean"
	// hint. Zero means [command.DefaultSuggestThreshold].
	SuggestThreshold float64
}

// Dispatcher resolves a transcript to a command or a fallback and delivers
// the feedback. Collaborators left nil in [Deps] fall back to logging or
// are skipped.
type Dispatcher struct {
	registry  *command.Registry
	matcher   *command.Matcher
	speech    speech.Sink
	display   display.Sink
	screen    screen.Reader
	telemetry Sampler
	metrics   *observe.Metrics
	cfg       DispatcherConfig
}

// NewDispatcher returns a Dispatcher over reg.
func NewDispatcher(reg *command.Registry, m *command.Matcher, deps Deps, cfg DispatcherConfig) *Dispatcher {
	if cfg.StatsKeyword == "" {
		cfg.StatsKeyword = DefaultStatsKeyword
	}
	if cfg.ScreenKeywords == nil {
		cfg.ScreenKeywords = DefaultScreenKeywords
	}
	if cfg.SuggestThreshold <= 0 {
		cfg.SuggestThreshold = command.DefaultSuggestThreshold
	}
	d := &Dispatcher{
		registry:  reg,
		matcher:   m,
		speech:    deps.Speech,
		display:   deps.Display,
		screen:    deps.Screen,
		telemetry: deps.Telemetry,
		metrics:   deps.Metrics,
		cfg:       cfg,
	}
	if d.speech == nil {
		d.speech = speech.Log{}
	}
	if d.display == nil {
		d.display = display.Log{}
	}
	return d
}

// Dispatch handles one transcript. Handler errors are reported to the user
// and never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) Outcome {
	log := observe.Logger(ctx)
	start := time.Now()
	text = strings.TrimSpace(text)
	if text == "" {
		log.Info("dispatch: recognition timeout, no command heard")
		d.record(ctx, "", OutcomeEmpty, start)
		return OutcomeEmpty
	}
	log.Info("dispatch: processing", "text", text)
	d.display.Show(text)

	if m, ok := d.matcher.Match(text); ok {
		return d.execute(ctx, log, m, start)
	}

	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, d.cfg.StatsKeyword) && d.telemetry != nil:
		snap := d.telemetry.Sample(ctx)
		msg := telemetry.Format(snap)
		d.speech.Speak(msg)
		d.display.Show(msg)
		log.Info("dispatch: statistics", "stats", snap)
		d.record(ctx, "", OutcomeStats, start)
		return OutcomeStats

	case d.screen != nil && containsAny(lower, d.cfg.ScreenKeywords):
		res := d.screen.ExtractAndTranslate(ctx)
		if res.Empty() {
			d.speech.Speak(msgNoScreenText)
		} else {
			d.display.Show(res.Original)
			d.display.Show(res.Translated)
			d.speech.Speak(res.Translated)
		}
		log.Info("dispatch: screen read", "chars", len([]rune(res.Original)))
		d.record(ctx, "", OutcomeScreen, start)
		return OutcomeScreen
	}

	d.speech.Speak(msgNoMatch)
	if s, ok := command.Suggest(d.registry, text, d.cfg.SuggestThreshold); ok {
		d.display.Show(fmt.Sprintf(msgSuggestion, s.Command.Trigger))
		log.Warn("dispatch: command not recognized", "text", text, "suggestion", s.Command.Trigger, "similarity", s.Similarity)
	} else {
		log.Warn("dispatch: command not recognized", "text", text)
	}
	d.record(ctx, "", OutcomeNoMatch, start)
	return OutcomeNoMatch
}

func (d *Dispatcher) execute(ctx context.Context, log *slog.Logger, m command.Match, start time.Time) Outcome {
	c := m.Command
	desc := c.Description
	if desc == "" {
		desc = c.Name
	}
	log.Info("dispatch: command matched", "command", c.Name, "score", m.Score)
	d.speech.Speak(fmt.Sprintf(msgCommand, desc))

	if err := c.Invoke(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("dispatch: command cancelled", "command", c.Name)
		} else {
			log.Error("dispatch: command failed", "command", c.Name, "err", err)
		}
		d.speech.Speak(fmt.Sprintf(msgCommandFailed, desc))
		d.record(ctx, c.Name, OutcomeFailed, start)
		return OutcomeFailed
	}
	d.record(ctx, c.Name, OutcomeExecuted, start)
	return OutcomeExecuted
}

func (d *Dispatcher) record(ctx context.Context, name string, o Outcome, start time.Time) {
	if d.metrics == nil {
		return
	}
	if name == "" {
		name = o.String()
	}
	d.metrics.RecordDispatch(ctx, name, o.String(), time.Since(start))
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(s, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
