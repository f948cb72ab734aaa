package audio

// Drain reads from ch until it is closed, discarding every value. Use it when
// a producer must be allowed to finish but its output is no longer wanted,
// e.g. synthesized audio after playback was cancelled.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
