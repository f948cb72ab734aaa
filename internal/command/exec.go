package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"unicode/utf8"
)

// Exec is a [Handler] that runs an external program.
//
// By default the process is started and left running, so launching a
// browser does not hold up the orchestrator. With Wait set the handler
// blocks until the process exits and reports a non-zero exit as an error.
type Exec struct {
	Argv []string
	Wait bool
}

var _ Handler = Exec{}

// Invoke implements [Handler].
func (e Exec) Invoke(ctx context.Context) error {
	if len(e.Argv) == 0 {
		return errors.New("exec: empty command line")
	}
	if e.Wait {
		out, err := exec.CommandContext(ctx, e.Argv[0], e.Argv[1:]...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("exec %s: %w (output: %q)", e.Argv[0], err, truncate(string(out), 200))
		}
		return nil
	}

	// Detached from ctx: the launched program outlives the dispatch.
	cmd := exec.Command(e.Argv[0], e.Argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("exec %s: %w", e.Argv[0], err)
	}
	slog.Debug("command process started", "argv", e.Argv, "pid", cmd.Process.Pid)
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("command process exited", "argv", e.Argv, "err", err)
		}
	}()
	return nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}

// Builtins returns the commands available without configuration, with
// command lines for the current operating system.
func Builtins() []Command {
	return builtinsFor(runtime.GOOS)
}

func builtinsFor(goos string) []Command {
	var browser, notepad, lock []string
	switch goos {
	case "windows":
		browser = []string{"cmd", "/c", "start", "chrome"}
		notepad = []string{"notepad.exe"}
		lock = []string{"rundll32.exe", "user32.dll,LockWorkStation"}
	case "darwin":
		browser = []string{"open", "-a", "Safari"}
		notepad = []string{"open", "-a", "TextEdit"}
		lock = []string{"pmset", "displaysleepnow"}
	default:
		browser = []string{"xdg-open", "https://"}
		notepad = []string{"gedit"}
		lock = []string{"loginctl", "lock-session"}
	}
	return []Command{
		{Name: "open_browser", Trigger: "открой браузер", Description: "Открыть браузер", Handler: Exec{Argv: browser}},
		{Name: "open_notepad", Trigger: "открой блокнот", Description: "Открыть блокнот", Handler: Exec{Argv: notepad}},
		{Name: "lock_screen", Trigger: "заблокируй экран", Description: "Заблокировать экран", Handler: Exec{Argv: lock}},
	}
}
