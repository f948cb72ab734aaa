package stt

import "time"

// Transcript is a recognition result. Partial and final results share the
// type and are told apart by IsFinal.
type Transcript struct {
	// Text is the recognized utterance as reported by the provider.
	Text string

	// IsFinal reports whether the provider has committed to this result.
	IsFinal bool

	// Confidence is the overall score in [0, 1]; zero when not reported.
	Confidence float64

	// Words carries per-word detail when the provider reports it.
	Words []WordDetail

	// Duration is the length of the utterance.
	Duration time.Duration
}

// WordDetail is one recognized word.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost raises the recognition probability of a phrase, e.g. the
// trigger of a registered command.
type KeywordBoost struct {
	Keyword string
	Boost   float64
}
