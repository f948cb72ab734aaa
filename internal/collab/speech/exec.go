package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Defaults for [Exec].
const (
	DefaultRate    = 150
	DefaultVolume  = 0.9
	DefaultVoice   = "ru"
	DefaultTimeout = 30 * time.Second
)

// DefaultArgv drives espeak-ng. Placeholders are substituted per utterance:
// {voice}, {rate} (words per minute), {amplitude} (0-200) and {text}.
var DefaultArgv = []string{"espeak-ng", "-v", "{voice}", "-s", "{rate}", "-a", "{amplitude}", "{text}"}

// Exec is a [Sink] that runs a local speech engine for every utterance and
// waits for it to finish.
type Exec struct {
	// Argv is the command line template. Empty means [DefaultArgv].
	Argv []string

	// Voice is substituted for {voice}. Empty means [DefaultVoice].
	Voice string

	// Rate is the speaking rate in words per minute. Zero means [DefaultRate].
	Rate int

	// Volume is in [0,1] and mapped to the engine amplitude. Zero means
	// [DefaultVolume].
	Volume float64

	// Timeout bounds one utterance. Zero means [DefaultTimeout].
	Timeout time.Duration

	run func(ctx context.Context, name string, args ...string) error
}

var _ Sink = (*Exec)(nil)

// Speak implements [Sink]. Engine failures are logged.
func (e *Exec) Speak(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	argv := e.command(text)
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	run := e.run
	if run == nil {
		run = runCommand
	}
	if err := run(ctx, argv[0], argv[1:]...); err != nil {
		slog.Warn("speech: engine failed", "engine", argv[0], "err", err)
	}
}

// command expands the argv template for text.
func (e *Exec) command(text string) []string {
	tmpl := e.Argv
	if len(tmpl) == 0 {
		tmpl = DefaultArgv
	}
	voice := e.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	rate := e.Rate
	if rate <= 0 {
		rate = DefaultRate
	}
	vol := e.Volume
	if vol <= 0 {
		vol = DefaultVolume
	}
	vol = min(vol, 1)

	r := strings.NewReplacer(
		"{voice}", voice,
		"{rate}", strconv.Itoa(rate),
		"{amplitude}", strconv.Itoa(int(vol*200+0.5)),
		"{volume}", strconv.FormatFloat(vol, 'f', 2, 64),
		"{text}", text,
	)
	out := make([]string, len(tmpl))
	for i, arg := range tmpl {
		out[i] = r.Replace(arg)
	}
	return out
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w (output: %q)", err, strings.TrimSpace(string(out)))
	}
	return nil
}
