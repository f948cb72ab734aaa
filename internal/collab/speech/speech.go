// Package speech delivers spoken feedback to the user.
//
// A [Sink] accepts complete utterances. Implementations may block for the
// duration of playback; wrap them in a [Queue] when the caller must not wait.
package speech

import (
	"log/slog"
	"sync"
)

// DefaultQueueSize is the number of utterances a [Queue] buffers.
const DefaultQueueSize = 8

// Sink speaks text.
type Sink interface {
	Speak(text string)
}

// Func adapts a function to [Sink].
type Func func(text string)

// Speak implements [Sink].
func (f Func) Speak(text string) { f(text) }

// Log is a [Sink] that only logs the utterance. It is the fallback when no
// speech engine is configured.
type Log struct{}

var _ Sink = Log{}

// Speak implements [Sink].
func (Log) Speak(text string) {
	slog.Info("speech: say", "text", text)
}

// Queue hands utterances to a single worker goroutine that feeds the wrapped
// sink in order. Speak never blocks: when the buffer is full the new
// utterance is dropped and logged.
type Queue struct {
	sink Sink
	ch   chan string
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

var _ Sink = (*Queue)(nil)

// NewQueue starts a worker for sink with a buffer of size utterances.
func NewQueue(sink Sink, size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &Queue{
		sink: sink,
		ch:   make(chan string, size),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for text := range q.ch {
		q.sink.Speak(text)
	}
}

// Speak implements [Sink]. Calls after Close are ignored.
func (q *Queue) Speak(text string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		slog.Debug("speech: queue closed, utterance dropped", "text", text)
		return
	}
	select {
	case q.ch <- text:
	default:
		slog.Warn("speech: queue full, utterance dropped", "text", text)
	}
}

// Close stops accepting utterances and waits until the buffered ones have
// been spoken.
func (q *Queue) Close() error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	<-q.done
	return nil
}
