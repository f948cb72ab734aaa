// Package display presents transcripts, statistics and screen translations
// to the user.
package display

import (
	"log/slog"
)

// Sink shows text. Implementations must not block the caller for long and
// must be safe for concurrent use.
type Sink interface {
	Show(text string)
}

// Log is a [Sink] that writes to the default logger.
type Log struct{}

var _ Sink = Log{}

// Show implements [Sink].
func (Log) Show(text string) {
	slog.Info("display", "text", text)
}

// Multi fans every Show out to all sinks in order.
type Multi []Sink

var _ Sink = Multi(nil)

// Show implements [Sink].
func (m Multi) Show(text string) {
	for _, s := range m {
		s.Show(text)
	}
}
