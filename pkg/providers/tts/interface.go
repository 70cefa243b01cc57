package tts

import "context"

// Result holds what one synthesis call produced: either an ordered
// stream of raw PCM16 frames or a single compressed full file, never
// both. Both empty means the provider yielded nothing.
type Result struct {
	Frames   <-chan []byte
	FullFile []byte
}

// Synthesizer turns text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*Result, error)
}
