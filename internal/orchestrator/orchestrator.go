// Package orchestrator ties the wake listener, the recognition session and
// the command dispatcher into one state machine.
//
// The orchestrator owns a single goroutine that holds the state and selects
// over every input: listener events, manual triggers, session and dispatch
// results, the listener retry timer, Stop and context cancellation. The
// capture device changes hands synchronously: the listener is stopped, and
// its lease released, before the recognition session acquires its own, and
// the listener is restarted only after dispatch finished.
//
//	Idle --wake--> AwaitingCommand --transcript--> Dispatching --done--> Idle
//	  any --Stop/ctx--> Stopped
//
// A wake while not Idle is dropped. A listener fault leaves the orchestrator
// Idle without a listener and schedules a restart with exponential backoff;
// after [RetryPolicy.MaxRetries] failed attempts [Orchestrator.Run] returns
// [ErrListenerExhausted].
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/jarvis/internal/collab/display"
	"github.com/MrWong99/jarvis/internal/collab/screen"
	"github.com/MrWong99/jarvis/internal/collab/speech"
	"github.com/MrWong99/jarvis/internal/command"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/recognition"
	"github.com/MrWong99/jarvis/internal/wake"
)

var (
	// ErrListenerExhausted is returned by Run when the wake listener could
	// not be restarted within the retry budget.
	ErrListenerExhausted = errors.New("orchestrator: wake listener retries exhausted")

	// ErrStopped is returned by Run after Stop.
	ErrStopped = errors.New("orchestrator: stopped")

	// ErrRunning is returned by a second concurrent Run.
	ErrRunning = errors.New("orchestrator: already running")
)

// Listener produces wake events while it holds the capture lease.
// *wake.Listener implements it.
type Listener interface {
	Start(ctx context.Context) (<-chan wake.Event, error)
	Stop() error
}

// Recognizer captures one command utterance. *recognition.Session
// implements it.
type Recognizer interface {
	Run(ctx context.Context) (recognition.Transcript, error)
}

var (
	_ Listener   = (*wake.Listener)(nil)
	_ Recognizer = (*recognition.Session)(nil)
)

// Deps are the orchestrator collaborators. Listener and Recognizer are
// required; the rest are optional.
type Deps struct {
	Listener   Listener
	Recognizer Recognizer

	// Registry holds the commands. Nil means an empty registry.
	Registry *command.Registry

	// Matcher resolves transcripts. Nil means a matcher over Registry with
	// the default threshold.
	Matcher *command.Matcher

	Speech    speech.Sink
	Display   display.Sink
	Screen    screen.Reader
	Telemetry Sampler
	Metrics   *observe.Metrics
}

// Config tunes the orchestrator.
type Config struct {
	Retry    RetryPolicy
	Dispatch DispatcherConfig
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithOnTransition registers fn to be called after every state change. fn
// runs on the orchestrator goroutine and must not call Stop.
func WithOnTransition(fn func(from, to State)) Option {
	return func(o *Orchestrator) { o.onTransition = fn }
}

// Orchestrator is the voice command state machine. All exported methods are
// safe for concurrent use.
type Orchestrator struct {
	listener   Listener
	recognizer Recognizer
	dispatcher *Dispatcher
	registry   *command.Registry
	speech     speech.Sink
	metrics    *observe.Metrics
	retry      RetryPolicy

	onTransition func(from, to State)

	triggers chan string
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu      sync.Mutex
	state   State
	started bool
	runErr  error
}

// New returns an Idle orchestrator. Call Run to start it.
func New(cfg Config, deps Deps, opts ...Option) *Orchestrator {
	if deps.Registry == nil {
		deps.Registry = command.NewRegistry()
	}
	if deps.Matcher == nil {
		deps.Matcher = command.NewMatcher(deps.Registry)
	}
	if deps.Speech == nil {
		deps.Speech = speech.Log{}
	}
	o := &Orchestrator{
		listener:   deps.Listener,
		recognizer: deps.Recognizer,
		dispatcher: NewDispatcher(deps.Registry, deps.Matcher, deps, cfg.Dispatch),
		registry:   deps.Registry,
		speech:     deps.Speech,
		metrics:    deps.Metrics,
		retry:      cfg.Retry.withDefaults(),
		triggers:   make(chan string, 1),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Registry returns the command registry.
func (o *Orchestrator) Registry() *command.Registry { return o.registry }

// Healthy reports an error once the orchestrator has stopped. It satisfies
// the readiness checker contract.
func (o *Orchestrator) Healthy(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateStopped {
		return nil
	}
	if o.runErr != nil {
		return o.runErr
	}
	return ErrStopped
}

// Trigger requests a recognition session as if the wake phrase had been
// heard. It never blocks; the request is dropped unless the orchestrator is
// Idle with a running listener when it is processed.
func (o *Orchestrator) Trigger(source string) {
	if source == "" {
		source = "manual"
	}
	select {
	case o.triggers <- source:
	default:
		slog.Debug("orchestrator: trigger dropped, one already pending", "source", source)
		if o.metrics != nil {
			o.metrics.RecordWakeDropped(context.Background(), "pending")
		}
	}
}

// Stop tears everything down and returns once the orchestrator is Stopped
// and every lease is released. It is safe to call from any goroutine other
// than an OnTransition hook, before Run, and repeatedly.
func (o *Orchestrator) Stop() error {
	o.stopOnce.Do(func() { close(o.stopCh) })

	o.mu.Lock()
	if !o.started {
		o.state = StateStopped
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()
	<-o.done
	return nil
}

// Run starts the listener and processes events until Stop is called, ctx is
// cancelled or the listener cannot be restarted. It returns nil on Stop and
// on cancellation, [ErrListenerExhausted] when the retry budget is spent and
// [ErrStopped] when Stop was called before Run. A [wake.ErrSampleRate] from
// the listener is returned at once without retries.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	select {
	case <-o.stopCh:
		o.state = StateStopped
		o.mu.Unlock()
		return ErrStopped
	default:
	}
	if o.started {
		o.mu.Unlock()
		return ErrRunning
	}
	o.started = true
	o.mu.Unlock()
	defer close(o.done)

	slog.Info("orchestrator: started", "commands", o.registry.Len())
	o.speech.Speak(msgStartup)

	l := &loop{o: o, ctx: ctx}
	err := l.run()
	o.mu.Lock()
	o.runErr = err
	o.mu.Unlock()
	l.teardown()

	o.speech.Speak(msgShutdown)
	if err != nil {
		slog.Error("orchestrator: stopped", "err", err)
		return err
	}
	slog.Info("orchestrator: stopped")
	return nil
}

func (o *Orchestrator) setState(ctx context.Context, to State) {
	o.mu.Lock()
	from := o.state
	o.state = to
	o.mu.Unlock()
	if from == to {
		return
	}
	slog.Debug("orchestrator: transition", "from", from, "to", to)
	if o.metrics != nil {
		o.metrics.RecordTransition(ctx, from.String(), to.String())
	}
	if o.onTransition != nil {
		o.onTransition(from, to)
	}
}

type sessionResult struct {
	transcript recognition.Transcript
	err        error
}

// loop holds the state owned by the Run goroutine.
type loop struct {
	o   *Orchestrator
	ctx context.Context

	events <-chan wake.Event

	retryTimer *time.Timer
	retryC     <-chan time.Time
	attempts   int

	// interaction carries the span and id of the current wake.
	interaction context.Context
	span        trace.Span

	sessionDone   chan sessionResult
	sessionCancel context.CancelFunc

	dispatchDone   chan Outcome
	dispatchCancel context.CancelFunc
}

func (l *loop) run() error {
	if err := l.startListener(); err != nil {
		return err
	}
	for {
		select {
		case <-l.o.stopCh:
			return nil

		case <-l.ctx.Done():
			return nil

		case ev, ok := <-l.events:
			if !ok {
				l.events = nil
				if l.ctx.Err() != nil {
					return nil
				}
				if err := l.listenerFault(errors.New("event stream closed")); err != nil {
					return err
				}
				continue
			}
			switch ev.Kind {
			case wake.Detected:
				l.wake("wake")
			case wake.Fault:
				l.events = nil
				if err := l.listenerFault(ev.Err); err != nil {
					return err
				}
			}

		case source := <-l.o.triggers:
			l.wake(source)

		case res := <-l.sessionDone:
			if err := l.sessionFinished(res); err != nil {
				return err
			}

		case out := <-l.dispatchDone:
			if err := l.dispatchFinished(out); err != nil {
				return err
			}

		case <-l.retryC:
			l.retryC, l.retryTimer = nil, nil
			l.attempts++
			slog.Info("orchestrator: restarting wake listener", "attempt", l.attempts, "max_retries", l.o.retry.MaxRetries)
			if err := l.startListener(); err != nil {
				return err
			}
		}
	}
}

// startListener starts the listener, falling back to a scheduled retry.
func (l *loop) startListener() error {
	events, err := l.o.listener.Start(l.ctx)
	if l.attempts > 0 && l.o.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		l.o.metrics.RecordListenerRetry(l.ctx, status)
	}
	if errors.Is(err, wake.ErrSampleRate) {
		return fmt.Errorf("orchestrator: start listener: %w", err)
	}
	if err != nil {
		slog.Warn("orchestrator: wake listener failed to start", "err", err, "attempt", l.attempts)
		return l.scheduleRetry()
	}
	l.events = events
	l.attempts = 0
	return nil
}

func (l *loop) listenerFault(err error) error {
	slog.Warn("orchestrator: wake listener fault", "err", err)
	l.o.setState(l.ctx, StateIdle)
	return l.scheduleRetry()
}

func (l *loop) scheduleRetry() error {
	if l.attempts >= l.o.retry.MaxRetries {
		return ErrListenerExhausted
	}
	delay := l.o.retry.Delay(l.attempts)
	slog.Info("orchestrator: wake listener restart scheduled", "in", delay, "attempt", l.attempts+1)
	l.retryTimer = time.NewTimer(delay)
	l.retryC = l.retryTimer.C
	return nil
}

// wake starts a recognition session if the orchestrator is Idle with a
// running listener.
func (l *loop) wake(source string) {
	state := l.o.State()
	if state != StateIdle || l.events == nil {
		reason := state.String()
		if state == StateIdle {
			reason = "listener_down"
		}
		slog.Debug("orchestrator: wake dropped", "source", source, "state", reason)
		if l.o.metrics != nil {
			l.o.metrics.RecordWakeDropped(l.ctx, reason)
		}
		return
	}
	if l.o.metrics != nil {
		l.o.metrics.RecordWake(l.ctx, source)
	}

	if err := l.o.listener.Stop(); err != nil {
		slog.Warn("orchestrator: stop wake listener", "err", err)
	}
	l.events = nil

	ctx, span := observe.StartInteraction(l.ctx, uuid.NewString(), source)
	l.interaction, l.span = ctx, span
	observe.Logger(ctx).Info("orchestrator: wake", "source", source)
	l.o.setState(ctx, StateAwaitingCommand)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan sessionResult, 1)
	l.sessionDone, l.sessionCancel = done, cancel
	go func() {
		tr, err := l.o.recognizer.Run(ctx)
		done <- sessionResult{transcript: tr, err: err}
	}()
}

func (l *loop) sessionFinished(res sessionResult) error {
	l.sessionCancel()
	l.sessionDone, l.sessionCancel = nil, nil
	if l.ctx.Err() != nil {
		return nil
	}

	if res.err != nil {
		slog.Warn("orchestrator: recognition failed", "err", res.err)
		l.endSpan()
		l.o.setState(l.ctx, StateIdle)
		return l.startListener()
	}

	ctx := l.interaction
	l.o.setState(ctx, StateDispatching)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan Outcome, 1)
	l.dispatchDone, l.dispatchCancel = done, cancel
	text := res.transcript.Text
	go func() {
		done <- l.o.dispatcher.Dispatch(ctx, text)
	}()
	return nil
}

func (l *loop) dispatchFinished(out Outcome) error {
	l.dispatchCancel()
	l.dispatchDone, l.dispatchCancel = nil, nil
	slog.Debug("orchestrator: dispatch finished", "outcome", out)
	l.endSpan()
	l.o.setState(l.ctx, StateIdle)
	return l.startListener()
}

func (l *loop) endSpan() {
	if l.span != nil {
		l.span.End()
		l.interaction, l.span = nil, nil
	}
}

// teardown releases everything the loop owns, in hand-off order.
func (l *loop) teardown() {
	if l.retryTimer != nil {
		l.retryTimer.Stop()
		l.retryTimer, l.retryC = nil, nil
	}
	if l.sessionDone != nil {
		l.sessionCancel()
		<-l.sessionDone
		l.sessionDone = nil
	}
	if err := l.o.listener.Stop(); err != nil {
		slog.Warn("orchestrator: stop wake listener", "err", err)
	}
	l.events = nil
	if l.dispatchDone != nil {
		l.dispatchCancel()
		<-l.dispatchDone
		l.dispatchDone = nil
	}
	l.endSpan()
	l.o.setState(context.WithoutCancel(l.ctx), StateStopped)
}
