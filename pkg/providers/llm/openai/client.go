package openaillm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/nestdesk/nestdesk/pkg/providers/llm"
)

type client struct {
	api   openai.Client
	model openai.ChatModel
}

// New creates an OpenAI-backed completion provider.
func New(apiKey string) llm.Provider {
	return &client{
		api:   openai.NewClient(option.WithAPIKey(apiKey)),
		model: openai.ChatModelGPT4oMini,
	}
}

// Complete implements llm.Provider.
func (c *client) Complete(ctx context.Context, msgs []llm.Message) (string, error) {
	completion, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: convertMessages(msgs),
		Model:    c.model,
	})
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

// Stream implements llm.Provider.
func (c *client) Stream(ctx context.Context, msgs []llm.Message, onDelta func(string) error) error {
	stream := c.api.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Messages: convertMessages(msgs),
		Model:    c.model,
	})
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if err := onDelta(delta); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("completion stream failed: %w", err)
	}
	return nil
}

func convertMessages(msgs []llm.Message) []openai.ChatCompletionMessageParamUnion {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case llm.RoleAssistant:
			converted = append(converted, openai.AssistantMessage(msg.Content))
		case llm.RoleSystem:
			converted = append(converted, openai.SystemMessage(msg.Content))
		default:
			converted = append(converted, openai.UserMessage(msg.Content))
		}
	}
	return converted
}
