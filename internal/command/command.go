// Package command holds the executable voice commands and resolves
// recognized text to one of them.
//
// A [Registry] stores commands by unique name in registration order. A
// [Matcher] scores free text against every registered trigger phrase using a
// directional substring rule: only inputs contained in a trigger can match,
// and the score is the share of the trigger the input covers. See [Score]
// for the exact rule.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultThreshold is the minimum score a match must reach.
const DefaultThreshold = 0.5

// ErrDispatch wraps every error returned by a command handler.
var ErrDispatch = errors.New("command: dispatch failed")

// Handler runs a command. Implementations may block; ctx is cancelled when
// the orchestrator stops.
type Handler interface {
	Invoke(ctx context.Context) error
}

// HandlerFunc adapts a function to [Handler].
type HandlerFunc func(ctx context.Context) error

// Invoke implements [Handler].
func (f HandlerFunc) Invoke(ctx context.Context) error { return f(ctx) }

// Command is an immutable registry entry.
type Command struct {
	// Name uniquely identifies the command.
	Name string

	// Trigger is the canonical phrase matched against recognized text.
	Trigger string

	// Description is announced before the command runs.
	Description string

	// Handler runs the command.
	Handler Handler

	// Threshold is the acceptance level the command was declared with. It is
	// reported by [Registry.List]; matching always uses the [Matcher]
	// threshold.
	Threshold float64
}

// Validate reports missing required fields.
func (c Command) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if c.Trigger == "" {
		errs = append(errs, errors.New("trigger is required"))
	}
	if c.Handler == nil {
		errs = append(errs, errors.New("handler is required"))
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold %v outside [0,1]", c.Threshold))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("command %q: %w", c.Name, err)
	}
	return nil
}

// Invoke runs the handler and wraps its error in [ErrDispatch]. A panicking
// handler is recovered and reported as an error.
func (c Command) Invoke(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrDispatch, c.Name, r)
		}
	}()
	if err := c.Handler.Invoke(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDispatch, c.Name, err)
	}
	return nil
}

// Registry maps names to commands. Iteration follows registration order;
// re-registering a name replaces the command in place. Safe for concurrent
// use.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byKey map[string]Command
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Command)}
}

// Register validates and stores c.
func (r *Registry) Register(c Command) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	r.mu.Lock()
	_, exists := r.byKey[c.Name]
	if !exists {
		r.order = append(r.order, c.Name)
	}
	r.byKey[c.Name] = c
	r.mu.Unlock()

	if exists {
		slog.Info("command replaced", "name", c.Name, "trigger", c.Trigger)
	} else {
		slog.Debug("command registered", "name", c.Name, "trigger", c.Trigger)
	}
	return nil
}

// Get returns the command called name.
func (r *Registry) Get(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byKey[name]
	return c, ok
}

// List returns all commands in registration order.
func (r *Registry) List() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byKey[name])
	}
	return out
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
