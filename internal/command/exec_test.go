package command

import (
	"runtime"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestExec(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX sh")
	}
	tests := []struct {
		name    string
		exec    Exec
		wantErr bool
	}{
		{"empty argv", Exec{}, true},
		{"detached start", Exec{Argv: []string{"sh", "-c", "exit 0"}}, false},
		{"missing binary", Exec{Argv: []string{"/nonexistent/jarvis-test-binary"}}, true},
		{"wait success", Exec{Argv: []string{"sh", "-c", "exit 0"}, Wait: true}, false},
		{"wait failure", Exec{Argv: []string{"sh", "-c", "echo nope; exit 3"}, Wait: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.exec.Invoke(t.Context())
			if (err != nil) != tt.wantErr {
				t.Errorf("Invoke error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"ok", 10, "ok"},
		{"abcdef", 3, "abc…"},
		// "ошибка" is two bytes per rune; byte 3 is mid-rune.
		{"ошибка", 3, "о…"},
		{"ошибка", 4, "ош…"},
		{"ошибка", 1, "…"},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) = %q is not valid UTF-8", tt.in, tt.n, got)
		}
	}
}

func TestExec_FailureOutputStaysValidUTF8(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX sh")
	}
	// A one-byte prefix before two-byte runes puts the 200 byte cut mid-rune.
	script := "printf 'x" + strings.Repeat("ы", 150) + "'; exit 1"
	err := Exec{Argv: []string{"sh", "-c", script}, Wait: true}.Invoke(t.Context())
	if err == nil {
		t.Fatal("expected error")
	}
	// %q escapes a split rune as \x bytes.
	if msg := err.Error(); strings.Contains(msg, `\x`) {
		t.Errorf("output cut mid-rune: %s", msg)
	}
}

func TestBuiltins(t *testing.T) {
	for _, goos := range []string{"windows", "darwin", "linux"} {
		t.Run(goos, func(t *testing.T) {
			cmds := builtinsFor(goos)
			if len(cmds) != 3 {
				t.Fatalf("got %d builtins, want 3", len(cmds))
			}
			for _, c := range cmds {
				if err := c.Validate(); err != nil {
					t.Errorf("builtin %q invalid: %v", c.Name, err)
				}
				if len(c.Handler.(Exec).Argv) == 0 {
					t.Errorf("builtin %q has empty argv", c.Name)
				}
			}
		})
	}
}
