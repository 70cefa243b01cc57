package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nestdesk/nestdesk/internal/constants/prompts"
	"github.com/nestdesk/nestdesk/internal/pushchannel"
	"github.com/nestdesk/nestdesk/pkg/Logger"
	"github.com/nestdesk/nestdesk/pkg/providers/llm"
)

// FallbackReply is what the assistant says when the completion backend
// fails. It travels the normal text path so the channel contract holds
// even on failure.
const FallbackReply = "I'm having trouble processing that right now. Please try again in a moment."

// Turn is one chat request: the submitted message plus prior history.
// Its lifecycle is bounded to one HTTP request.
type Turn struct {
	Message string        `json:"message"`
	History []llm.Message `json:"history"`
}

// Driver turns one chat turn into an ordered push-channel response of
// token fragments followed by a single done envelope carrying the full
// accumulated text.
type Driver struct {
	provider llm.Provider
	logger   *Logger.Logger
	timeout  time.Duration
}

func NewDriver(provider llm.Provider, timeout time.Duration, logger *Logger.Logger) *Driver {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Driver{
		provider: provider,
		logger:   logger,
		timeout:  timeout,
	}
}

// Stream runs the turn against the completion backend. Caller abort
// (ctx cancellation) stops consumption and leaves the channel without
// a terminal envelope; the ctx error is returned so callers can tell
// the cases apart. Any other failure degrades to the fallback reply
// through the normal text/done path and returns nil.
func (d *Driver) Stream(ctx context.Context, turn Turn, sink pushchannel.Sink) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	msgs := d.buildMessages(turn)

	var full strings.Builder
	err := d.provider.Stream(ctx, msgs, func(delta string) error {
		full.WriteString(delta)
		return sink.Push(pushchannel.Envelope{
			Type:    pushchannel.EnvelopeText,
			Content: delta,
		})
	})

	if err != nil {
		if errors.Is(err, context.Canceled) {
			d.logger.Debugf("chat turn aborted by caller")
			return err
		}
		d.logger.Errorf("chat stream failed, sending fallback: %v", err)
		full.WriteString(FallbackReply)
		if pushErr := sink.Push(pushchannel.Envelope{
			Type:    pushchannel.EnvelopeText,
			Content: FallbackReply,
		}); pushErr != nil {
			return pushErr
		}
	}

	return sink.Push(pushchannel.Envelope{
		Type:    pushchannel.EnvelopeDone,
		Content: full.String(),
	})
}

func (d *Driver) buildMessages(turn Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(turn.History)+2)
	msgs = append(msgs, llm.Message{
		Role:    llm.RoleSystem,
		Content: prompts.DEFAULT_PROMPT.GetCurrentPrompt().Content,
	})
	msgs = append(msgs, turn.History...)
	msgs = append(msgs, llm.Message{
		Role:    llm.RoleUser,
		Content: turn.Message,
	})
	return msgs
}
