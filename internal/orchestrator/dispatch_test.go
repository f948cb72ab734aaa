package orchestrator

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/jarvis/internal/collab/screen"
	"github.com/MrWong99/jarvis/internal/collab/telemetry"
	"github.com/MrWong99/jarvis/internal/command"
)

type fakeScreen struct {
	result screen.Result
	calls  int
}

func (f *fakeScreen) ExtractAndTranslate(context.Context) screen.Result {
	f.calls++
	return f.result
}

type fakeSampler struct {
	snap telemetry.Snapshot
}

func (f fakeSampler) Sample(context.Context) telemetry.Snapshot { return f.snap }

type dispatchFixture struct {
	d       *Dispatcher
	speech  *recordSpeech
	display *recordDisplay
	screen  *fakeScreen
	invoked int
}

func newDispatchFixture(t *testing.T, handlerErr error, res screen.Result) *dispatchFixture {
	t.Helper()
	f := &dispatchFixture{
		speech:  &recordSpeech{},
		display: &recordDisplay{},
		screen:  &fakeScreen{result: res},
	}
	reg := command.NewRegistry()
	err := reg.Register(command.Command{
		Name:        "open_browser",
		Trigger:     "открой браузер",
		Description: "Открыть браузер",
		Handler: command.HandlerFunc(func(context.Context) error {
			f.invoked++
			return handlerErr
		}),
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	f.d = NewDispatcher(reg, command.NewMatcher(reg), Deps{
		Speech:    f.speech,
		Display:   f.display,
		Screen:    f.screen,
		Telemetry: fakeSampler{snap: telemetry.Snapshot{CPUPercent: 12.3, CPUFreqMHz: 2400, RAMPercent: 45.6, CPUTemp: 55}},
	}, DispatcherConfig{})
	return f
}

func TestDispatcher_Dispatch(t *testing.T) {
	t.Parallel()

	const stats = "ПП: 12.3% (2400 МГц) | ОЗУ: 45.6% | Темп. ПП: 55.0°C"
	translated := screen.Result{Original: "Привет", Translated: "Hello"}

	tests := []struct {
		name        string
		text        string
		handlerErr  error
		screen      screen.Result
		want        Outcome
		wantSpeech  []string
		wantShown   []string
		wantInvoked int
		wantScreen  int
	}{
		{
			name:       "empty transcript",
			text:       "  ",
			want:       OutcomeEmpty,
			wantSpeech: nil,
			wantShown:  nil,
		},
		{
			name:        "exact match",
			text:        "открой браузер",
			want:        OutcomeExecuted,
			wantSpeech:  []string{"Команда: Открыть браузер"},
			wantShown:   []string{"открой браузер"},
			wantInvoked: 1,
		},
		{
			name:        "partial match at threshold",
			text:        "браузер",
			want:        OutcomeExecuted,
			wantSpeech:  []string{"Команда: Открыть браузер"},
			wantShown:   []string{"браузер"},
			wantInvoked: 1,
		},
		{
			name:        "handler error",
			text:        "открой браузер",
			handlerErr:  errors.New("not installed"),
			want:        OutcomeFailed,
			wantSpeech:  []string{"Команда: Открыть браузер", "Не удалось выполнить команду: Открыть браузер"},
			wantShown:   []string{"открой браузер"},
			wantInvoked: 1,
		},
		{
			name:       "statistics",
			text:       "покажи статистика",
			want:       OutcomeStats,
			wantSpeech: []string{stats},
			wantShown:  []string{"покажи статистика", stats},
		},
		{
			name:       "screen translation",
			text:       "переведи экран",
			screen:     translated,
			want:       OutcomeScreen,
			wantSpeech: []string{"Hello"},
			wantShown:  []string{"переведи экран", "Привет", "Hello"},
			wantScreen: 1,
		},
		{
			name:       "screen empty",
			text:       "прочитай",
			want:       OutcomeScreen,
			wantSpeech: []string{"Текст на экране не найден."},
			wantShown:  []string{"прочитай"},
			wantScreen: 1,
		},
		{
			name:       "partial below threshold suggests",
			text:       "открой",
			want:       OutcomeNoMatch,
			wantSpeech: []string{"Не найдена похожая команда."},
			wantShown:  []string{"открой", "Возможно: открой браузер"},
		},
		{
			name:       "no match with suggestion",
			text:       "открой браузеры",
			want:       OutcomeNoMatch,
			wantSpeech: []string{"Не найдена похожая команда."},
			wantShown:  []string{"открой браузеры", "Возможно: открой браузер"},
		},
		{
			name:       "no match",
			text:       "какая погода",
			want:       OutcomeNoMatch,
			wantSpeech: []string{"Не найдена похожая команда."},
			wantShown:  []string{"какая погода"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newDispatchFixture(t, tt.handlerErr, tt.screen)

			if got := f.d.Dispatch(t.Context(), tt.text); got != tt.want {
				t.Errorf("outcome = %v, want %v", got, tt.want)
			}
			if got := f.speech.got(); !slices.Equal(got, tt.wantSpeech) {
				t.Errorf("speech = %q, want %q", got, tt.wantSpeech)
			}
			if got := f.display.got(); !slices.Equal(got, tt.wantShown) {
				t.Errorf("shown = %q, want %q", got, tt.wantShown)
			}
			if f.invoked != tt.wantInvoked {
				t.Errorf("invoked = %d, want %d", f.invoked, tt.wantInvoked)
			}
			if f.screen.calls != tt.wantScreen {
				t.Errorf("screen reads = %d, want %d", f.screen.calls, tt.wantScreen)
			}
		})
	}
}

func TestDispatcher_MissingCollaborators(t *testing.T) {
	t.Parallel()

	reg := command.NewRegistry()
	speech := &recordSpeech{}
	d := NewDispatcher(reg, command.NewMatcher(reg), Deps{Speech: speech}, DispatcherConfig{})

	// Without a sampler or screen reader the fallbacks fall through to the
	// no-match reply.
	for _, text := range []string{"статистика", "прочитай экран"} {
		if got := d.Dispatch(t.Context(), text); got != OutcomeNoMatch {
			t.Errorf("Dispatch(%q) = %v, want no_match", text, got)
		}
	}
	if got := speech.got(); len(got) != 2 || got[0] != msgNoMatch {
		t.Errorf("speech = %v", got)
	}
}

func TestDispatcher_CustomKeywords(t *testing.T) {
	t.Parallel()

	reg := command.NewRegistry()
	scr := &fakeScreen{result: screen.Result{Original: "a", Translated: "b"}}
	d := NewDispatcher(reg, command.NewMatcher(reg), Deps{Screen: scr, Speech: &recordSpeech{}, Display: &recordDisplay{}},
		DispatcherConfig{ScreenKeywords: []string{"Скриншот"}})

	if got := d.Dispatch(t.Context(), "переведи экран"); got != OutcomeNoMatch {
		t.Errorf("default keyword outcome = %v, want no_match", got)
	}
	if got := d.Dispatch(t.Context(), "сделай скриншот"); got != OutcomeScreen {
		t.Errorf("custom keyword outcome = %v, want screen", got)
	}
}

func TestOutcome_String(t *testing.T) {
	t.Parallel()

	want := map[Outcome]string{
		OutcomeEmpty:    "empty",
		OutcomeExecuted: "ok",
		OutcomeFailed:   "error",
		OutcomeStats:    "stats",
		OutcomeScreen:   "screen",
		OutcomeNoMatch:  "no_match",
		Outcome(99):     "unknown",
	}
	for o, s := range want {
		if got := o.String(); got != s {
			t.Errorf("Outcome(%d) = %q, want %q", int(o), got, s)
		}
	}
}
