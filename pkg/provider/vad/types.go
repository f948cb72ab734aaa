package vad

// Event is the classification of a single frame.
type Event struct {
	Type EventType

	// Probability is the engine's speech score normalised to [0, 1].
	Probability float64
}

// EventType enumerates frame classifications.
type EventType int

const (
	// Silence means no speech is in progress.
	Silence EventType = iota

	// SpeechStart marks the frame on which speech was first confirmed.
	SpeechStart

	// SpeechContinue means speech is ongoing.
	SpeechContinue

	// SpeechEnd marks the frame on which trailing silence ended speech.
	SpeechEnd
)

// String returns the lowercase name of the event type.
func (t EventType) String() string {
	switch t {
	case Silence:
		return "silence"
	case SpeechStart:
		return "speech_start"
	case SpeechContinue:
		return "speech_continue"
	case SpeechEnd:
		return "speech_end"
	default:
		return "unknown"
	}
}

// IsSpeech reports whether the event belongs to a speech segment.
func (t EventType) IsSpeech() bool {
	return t == SpeechStart || t == SpeechContinue
}
