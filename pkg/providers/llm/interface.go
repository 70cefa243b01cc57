package llm

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Provider abstracts the completion backend. Complete returns one full
// reply; Stream invokes onDelta for every token fragment in order and
// returns once the upstream stream is drained.
type Provider interface {
	Complete(ctx context.Context, msgs []Message) (string, error)
	Stream(ctx context.Context, msgs []Message, onDelta func(delta string) error) error
}
