package command

import (
	"math"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

// Match is a successful resolution.
type Match struct {
	Command Command
	Score   float64
}

// Score rates input against trigger. Both are lowercased; the trigger must
// contain the input as a contiguous substring, otherwise ok is false. The
// score is the input length divided by the trigger length, counted in
// characters. An empty input never matches.
func Score(input, trigger string) (score float64, ok bool) {
	in := strings.ToLower(input)
	tr := strings.ToLower(trigger)
	if in == "" || tr == "" || !strings.Contains(tr, in) {
		return 0, false
	}
	return float64(utf8.RuneCountInString(in)) / float64(utf8.RuneCountInString(tr)), true
}

// MatcherOption configures a [Matcher].
type MatcherOption func(*Matcher)

// WithThreshold sets the acceptance threshold. Default: [DefaultThreshold].
func WithThreshold(t float64) MatcherOption {
	return func(m *Matcher) { m.SetThreshold(t) }
}

// Matcher resolves text against a [Registry]. It holds no per-call state and
// is safe for concurrent use.
type Matcher struct {
	reg       *Registry
	threshold atomic.Uint64
}

// NewMatcher returns a matcher over reg.
func NewMatcher(reg *Registry, opts ...MatcherOption) *Matcher {
	m := &Matcher{reg: reg}
	m.SetThreshold(DefaultThreshold)
	for _, o := range opts {
		o(m)
	}
	return m
}

// Threshold returns the current acceptance threshold.
func (m *Matcher) Threshold() float64 {
	return math.Float64frombits(m.threshold.Load())
}

// SetThreshold replaces the acceptance threshold. Safe to call while
// matching, e.g. from a config reload.
func (m *Matcher) SetThreshold(t float64) {
	m.threshold.Store(math.Float64bits(t))
}

// Match returns the highest scoring command. Commands are visited in
// registration order and a later command must score strictly higher to
// replace the current best, so ties go to the earliest registration. The
// best score must reach the threshold.
func (m *Matcher) Match(input string) (Match, bool) {
	var (
		best  Match
		found bool
	)
	for _, c := range m.reg.List() {
		score, ok := Score(input, c.Trigger)
		if !ok {
			continue
		}
		if score > best.Score {
			best = Match{Command: c, Score: score}
			found = true
		}
	}
	if !found || best.Score < m.Threshold() {
		return Match{}, false
	}
	return best, true
}
