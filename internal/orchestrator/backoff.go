package orchestrator

import "time"

// Default listener restart parameters.
const (
	DefaultMaxRetries = 5
	DefaultBackoff    = 1 * time.Second
	DefaultMaxBackoff = 30 * time.Second
)

// RetryPolicy controls how the wake listener is restarted after a fault.
// Zero fields take the defaults above.
type RetryPolicy struct {
	// MaxRetries is the number of consecutive restart attempts before Run
	// gives up with [ErrListenerExhausted].
	MaxRetries int

	// Backoff is the delay before the first attempt. It doubles on every
	// further attempt up to MaxBackoff.
	Backoff time.Duration

	// MaxBackoff caps the delay.
	MaxBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.Backoff <= 0 {
		p.Backoff = DefaultBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	if p.MaxBackoff < p.Backoff {
		p.MaxBackoff = p.Backoff
	}
	return p
}

// Delay returns the wait before attempt (zero-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.Backoff
	for range attempt {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return d
}
