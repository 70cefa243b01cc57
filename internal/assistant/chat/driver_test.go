package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nestdesk/nestdesk/internal/pushchannel"
	"github.com/nestdesk/nestdesk/pkg/Logger"
	"github.com/nestdesk/nestdesk/pkg/providers/llm"
)

// scriptedLLM streams a fixed sequence of deltas, optionally failing
// partway through.
type scriptedLLM struct {
	deltas    []string
	failAfter int // fail after this many deltas; -1 never
	gotMsgs   []llm.Message
}

func (s *scriptedLLM) Complete(ctx context.Context, msgs []llm.Message) (string, error) {
	return "", fmt.Errorf("not used")
}

func (s *scriptedLLM) Stream(ctx context.Context, msgs []llm.Message, onDelta func(string) error) error {
	s.gotMsgs = msgs
	for i, delta := range s.deltas {
		if s.failAfter >= 0 && i == s.failAfter {
			return fmt.Errorf("provider exploded")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := onDelta(delta); err != nil {
			return err
		}
	}
	return nil
}

func collect(sink *pushchannel.ChanSink) []pushchannel.Envelope {
	var envs []pushchannel.Envelope
	for env := range sink.Envelopes() {
		envs = append(envs, env)
	}
	return envs
}

func TestStreamEmitsTextThenDone(t *testing.T) {
	provider := &scriptedLLM{deltas: []string{"I ", "am ", "Nessa."}, failAfter: -1}
	driver := NewDriver(provider, 0, Logger.New(true))
	sink := pushchannel.NewChanSink(16)

	turn := Turn{
		Message: "who are you?",
		History: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	}
	if err := driver.Stream(context.Background(), turn, sink); err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	envs := collect(sink)
	if len(envs) < 2 {
		t.Fatalf("expected at least one text envelope plus done, got %d", len(envs))
	}

	var concat string
	for _, env := range envs[:len(envs)-1] {
		if env.Type != pushchannel.EnvelopeText {
			t.Errorf("expected text envelope, got %s", env.Type)
		}
		concat += env.Content
	}

	last := envs[len(envs)-1]
	if last.Type != pushchannel.EnvelopeDone {
		t.Fatalf("expected done terminal, got %s", last.Type)
	}
	if last.Content == "" {
		t.Error("done content should be non-empty")
	}
	if concat != last.Content {
		t.Errorf("text concat %q != done content %q", concat, last.Content)
	}
}

func TestStreamBuildsProviderMessages(t *testing.T) {
	provider := &scriptedLLM{deltas: []string{"ok"}, failAfter: -1}
	driver := NewDriver(provider, 0, Logger.New(true))
	sink := pushchannel.NewChanSink(8)

	turn := Turn{
		Message: "schedule a showing",
		History: []llm.Message{
			{Role: llm.RoleUser, Content: "hi"},
			{Role: llm.RoleAssistant, Content: "hello"},
		},
	}
	if err := driver.Stream(context.Background(), turn, sink); err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	if len(provider.gotMsgs) != 4 {
		t.Fatalf("expected system + 2 history + user, got %d messages", len(provider.gotMsgs))
	}
	if provider.gotMsgs[0].Role != llm.RoleSystem {
		t.Errorf("first message should be the system instruction, got %s", provider.gotMsgs[0].Role)
	}
	if provider.gotMsgs[3].Role != llm.RoleUser || provider.gotMsgs[3].Content != "schedule a showing" {
		t.Errorf("last message should be the new user message, got %+v", provider.gotMsgs[3])
	}
}

func TestStreamFailureDegradesToFallback(t *testing.T) {
	provider := &scriptedLLM{deltas: []string{"par", "tial"}, failAfter: 1}
	driver := NewDriver(provider, 0, Logger.New(true))
	sink := pushchannel.NewChanSink(16)

	if err := driver.Stream(context.Background(), Turn{Message: "hi"}, sink); err != nil {
		t.Fatalf("failure should degrade, not error: %v", err)
	}

	envs := collect(sink)
	last := envs[len(envs)-1]
	if last.Type != pushchannel.EnvelopeDone {
		t.Fatalf("channel must still terminate with done, got %s", last.Type)
	}

	var concat string
	var sawFallback bool
	for _, env := range envs[:len(envs)-1] {
		concat += env.Content
		if env.Content == FallbackReply {
			sawFallback = true
		}
	}
	if !sawFallback {
		t.Error("expected the fallback reply on the text path")
	}
	if concat != last.Content {
		t.Errorf("text concat %q != done content %q", concat, last.Content)
	}
}

func TestStreamCallerAbortEmitsNoTerminal(t *testing.T) {
	provider := &scriptedLLM{deltas: []string{"a", "b", "c"}, failAfter: -1}
	driver := NewDriver(provider, 0, Logger.New(true))
	sink := pushchannel.NewChanSink(16)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := driver.Stream(ctx, Turn{Message: "hi"}, sink)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	sink.Abort()
	for env := range sink.Envelopes() {
		if env.IsTerminal() {
			t.Errorf("aborted turn must not emit a terminal envelope, got %s", env.Type)
		}
	}
}
