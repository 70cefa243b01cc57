package pushchannel

// EnvelopeType discriminates the units sent over a push channel.
type EnvelopeType string

const (
	EnvelopeText       EnvelopeType = "text"
	EnvelopeTranscript EnvelopeType = "transcript"
	EnvelopeAIText     EnvelopeType = "ai_text"
	EnvelopeAudio      EnvelopeType = "audio"
	EnvelopeAudioFull  EnvelopeType = "audio_full"
	EnvelopeDone       EnvelopeType = "done"
	EnvelopeError      EnvelopeType = "error"
)

// Envelope is one framed unit on a push channel. Content is interpreted
// per Type: token fragment for text, base64 PCM16 for audio, the full
// accumulated reply for done.
type Envelope struct {
	Type    EnvelopeType `json:"type"`
	Content string       `json:"content"`
}

// IsTerminal reports whether this envelope ends its channel.
func (e Envelope) IsTerminal() bool {
	return e.Type == EnvelopeDone || e.Type == EnvelopeError
}

// Sink receives ordered envelopes for one turn. Implementations must
// preserve push order. Push returns an error once a terminal envelope
// has been accepted.
type Sink interface {
	Push(env Envelope) error
}
