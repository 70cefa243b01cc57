package playback

// Output abstracts host audio playback so reconstruction logic stays
// testable without a real audio device. Decode handles the compressed
// full-file form; Play blocks until playback finishes or is stopped.
type Output interface {
	Decode(data []byte) ([]int16, error)
	Play(samples []int16) error
}

// Capture abstracts the exclusive input device. Acquire fails when the
// microphone is unavailable; Frames yields raw PCM16 frames until
// Release closes it.
type Capture interface {
	Acquire() error
	Frames() <-chan []byte
	Release() error
}
