// Package screen reads text from the display with OCR and translates it.
//
// [OCR] captures the screen with an external tool, recognizes the image with
// tesseract and passes the text to a [Translator]. Every step is a separate
// process so no image library has to be linked into the binary.
package screen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Defaults for [OCR].
const (
	DefaultLanguage   = "rus"
	DefaultTesseract  = "tesseract"
	DefaultSourceLang = "ru"
	DefaultTargetLang = "en"
	DefaultTimeout    = 20 * time.Second
)

// Result is the outcome of one screen read. Empty fields mean nothing was
// recognized.
type Result struct {
	Original   string
	Translated string
}

// Empty reports whether no text was found.
func (r Result) Empty() bool { return r.Original == "" }

// Reader extracts and translates on-screen text.
type Reader interface {
	ExtractAndTranslate(ctx context.Context) Result
}

// Config configures [OCR].
type Config struct {
	// Capture writes a PNG screenshot to the path substituted for {file}.
	// Empty selects a platform default.
	Capture []string

	// Tesseract is the tesseract binary. Empty means [DefaultTesseract].
	Tesseract string

	// Language is the tesseract language. Empty means [DefaultLanguage].
	Language string

	// SourceLang and TargetLang are passed to the translator.
	SourceLang string
	TargetLang string

	// Timeout bounds the whole read. Zero means [DefaultTimeout].
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.Capture) == 0 {
		c.Capture = DefaultCapture(runtime.GOOS)
	}
	if c.Tesseract == "" {
		c.Tesseract = DefaultTesseract
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.SourceLang == "" {
		c.SourceLang = DefaultSourceLang
	}
	if c.TargetLang == "" {
		c.TargetLang = DefaultTargetLang
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// DefaultCapture returns a screenshot command line for goos, or nil when no
// default is known.
func DefaultCapture(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"screencapture", "-x", "{file}"}
	case "windows":
		return []string{"powershell", "-NoProfile", "-Command",
			"Add-Type -AssemblyName System.Windows.Forms,System.Drawing;" +
				"$b=[System.Windows.Forms.Screen]::PrimaryScreen.Bounds;" +
				"$i=New-Object System.Drawing.Bitmap $b.Width,$b.Height;" +
				"[System.Drawing.Graphics]::FromImage($i).CopyFromScreen($b.Location,[System.Drawing.Point]::Empty,$b.Size);" +
				"$i.Save('{file}')"}
	default:
		return []string{"import", "-window", "root", "{file}"}
	}
}

type runFunc func(ctx context.Context, argv []string) ([]byte, error)

// OCR is the default [Reader].
type OCR struct {
	cfg        Config
	translator Translator
	run        runFunc
}

var _ Reader = (*OCR)(nil)

// NewOCR returns an OCR reader. A nil translator returns the recognized text
// untranslated.
func NewOCR(cfg Config, t Translator) *OCR {
	if t == nil {
		t = NopTranslator{}
	}
	return &OCR{cfg: cfg.withDefaults(), translator: t, run: runCommand}
}

// ExtractAndTranslate implements [Reader]. Capture or OCR failures yield an
// empty result. A failed translation falls back to the original text.
func (o *OCR) ExtractAndTranslate(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	text, err := o.Extract(ctx)
	if err != nil {
		slog.Error("screen: extract failed", "err", err)
		return Result{}
	}
	if text == "" {
		return Result{}
	}

	translated, err := o.translator.Translate(ctx, text, o.cfg.SourceLang, o.cfg.TargetLang)
	if err != nil || strings.TrimSpace(translated) == "" {
		slog.Warn("screen: translate failed, using original", "err", err)
		translated = text
	}
	return Result{Original: text, Translated: strings.TrimSpace(translated)}
}

// Extract captures the screen and returns the recognized text.
func (o *OCR) Extract(ctx context.Context) (string, error) {
	dir, err := os.MkdirTemp("", "jarvis-screen-")
	if err != nil {
		return "", fmt.Errorf("screen: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	file := filepath.Join(dir, "screen.png")

	capture := make([]string, len(o.cfg.Capture))
	for i, arg := range o.cfg.Capture {
		capture[i] = strings.ReplaceAll(arg, "{file}", file)
	}
	if _, err := o.run(ctx, capture); err != nil {
		return "", fmt.Errorf("screen: capture: %w", err)
	}

	out, err := o.run(ctx, []string{o.cfg.Tesseract, file, "stdout", "-l", o.cfg.Language})
	if err != nil {
		return "", fmt.Errorf("screen: ocr: %w", err)
	}
	text := strings.TrimSpace(string(out))
	slog.Debug("screen: recognized", "chars", len([]rune(text)))
	return text, nil
}

func runCommand(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command line")
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w (stderr: %q)", argv[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
