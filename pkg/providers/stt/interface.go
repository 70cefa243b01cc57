package stt

import "context"

// Transcriber converts captured audio into text. Implementations own
// any container normalization the backing service needs.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}
