package voice

import (
	"context"
	"strings"
	"time"

	"github.com/nestdesk/nestdesk/internal/constants/prompts"
	"github.com/nestdesk/nestdesk/internal/pushchannel"
	"github.com/nestdesk/nestdesk/pkg/Logger"
	"github.com/nestdesk/nestdesk/pkg/audio"
	"github.com/nestdesk/nestdesk/pkg/providers/llm"
	"github.com/nestdesk/nestdesk/pkg/providers/stt"
	"github.com/nestdesk/nestdesk/pkg/providers/tts"
)

// FallbackReply is spoken back when a pipeline stage fails. It rides
// the normal text path, never a protocol error.
const FallbackReply = "I had trouble processing that. Could you try again?"

// Timeouts bounds each provider call so a hung provider cannot strand
// a turn.
type Timeouts struct {
	Transcribe time.Duration
	Complete   time.Duration
	Synthesize time.Duration
}

func (t *Timeouts) applyDefaults() {
	if t.Transcribe <= 0 {
		t.Transcribe = 30 * time.Second
	}
	if t.Complete <= 0 {
		t.Complete = 60 * time.Second
	}
	if t.Synthesize <= 0 {
		t.Synthesize = 60 * time.Second
	}
}

// Orchestrator sequences the three-provider voice pipeline and pushes
// each artifact over one ordered channel: transcript, assistant text,
// then audio frames (or one full file), then exactly one done. Stages
// are strictly sequential; a stage failure short-circuits the rest of
// the pipeline but still terminates the channel normally.
type Orchestrator struct {
	transcriber stt.Transcriber
	completer   llm.Provider
	synthesizer tts.Synthesizer
	timeouts    Timeouts
	logger      *Logger.Logger
}

func NewOrchestrator(
	transcriber stt.Transcriber,
	completer llm.Provider,
	synthesizer tts.Synthesizer,
	timeouts Timeouts,
	logger *Logger.Logger,
) *Orchestrator {
	timeouts.applyDefaults()
	return &Orchestrator{
		transcriber: transcriber,
		completer:   completer,
		synthesizer: synthesizer,
		timeouts:    timeouts,
		logger:      logger,
	}
}

// Run drives one voice turn from uploaded audio to synthesized reply.
func (o *Orchestrator) Run(ctx context.Context, audioData []byte, mimeType string, sink pushchannel.Sink) error {
	turn := newTurnMachine()

	// Stage 1: transcription. Failure here is terminal for the turn.
	turn.advance(ctx, stageEventTranscribe)
	sttCtx, cancel := context.WithTimeout(ctx, o.timeouts.Transcribe)
	transcript, err := o.transcriber.Transcribe(sttCtx, audioData, mimeType)
	cancel()
	if err != nil || strings.TrimSpace(transcript) == "" {
		o.logger.Errorf("transcription failed: %v", err)
		return o.fail(ctx, turn, sink)
	}
	if err := sink.Push(pushchannel.Envelope{
		Type:    pushchannel.EnvelopeTranscript,
		Content: transcript,
	}); err != nil {
		return err
	}

	// Stage 2: completion. The reply is spoken back rather than
	// displayed incrementally, so a non-streaming call suffices.
	turn.advance(ctx, stageEventComplete)
	llmCtx, cancel := context.WithTimeout(ctx, o.timeouts.Complete)
	reply, err := o.completer.Complete(llmCtx, []llm.Message{
		{Role: llm.RoleSystem, Content: prompts.DEFAULT_PROMPT.GetCurrentPrompt().Content},
		{Role: llm.RoleUser, Content: transcript},
	})
	cancel()
	if err != nil || strings.TrimSpace(reply) == "" {
		o.logger.Errorf("completion failed: %v", err)
		return o.fail(ctx, turn, sink)
	}
	if err := sink.Push(pushchannel.Envelope{
		Type:    pushchannel.EnvelopeAIText,
		Content: reply,
	}); err != nil {
		return err
	}

	// Stage 3: synthesis. Producing nothing is a silent success, not
	// an error.
	turn.advance(ctx, stageEventSynthesize)
	if err := o.synthesize(ctx, reply, sink); err != nil {
		return err
	}

	turn.advance(ctx, stageEventFinish)
	return sink.Push(pushchannel.Envelope{
		Type:    pushchannel.EnvelopeDone,
		Content: reply,
	})
}

// SpeakOnly runs the synthesis stage alone over the given text, for
// the synthesis-only endpoint.
func (o *Orchestrator) SpeakOnly(ctx context.Context, text string, sink pushchannel.Sink) error {
	turn := newTurnMachine()
	turn.advance(ctx, stageEventTranscribe)
	turn.advance(ctx, stageEventComplete)
	turn.advance(ctx, stageEventSynthesize)

	if err := o.synthesize(ctx, text, sink); err != nil {
		return err
	}

	turn.advance(ctx, stageEventFinish)
	return sink.Push(pushchannel.Envelope{
		Type:    pushchannel.EnvelopeDone,
		Content: text,
	})
}

// synthesize pushes either a sequence of chunked PCM16 frames or one
// full-file blob, never both.
func (o *Orchestrator) synthesize(ctx context.Context, text string, sink pushchannel.Sink) error {
	ttsCtx, cancel := context.WithTimeout(ctx, o.timeouts.Synthesize)
	defer cancel()

	result, err := o.synthesizer.Synthesize(ttsCtx, text)
	if err != nil {
		o.logger.Errorf("synthesis failed, completing turn silently: %v", err)
		return nil
	}

	if len(result.FullFile) > 0 {
		return sink.Push(pushchannel.Envelope{
			Type:    pushchannel.EnvelopeAudioFull,
			Content: audio.EncodeFrame(result.FullFile),
		})
	}

	if result.Frames == nil {
		return nil
	}
	for {
		select {
		case frame, ok := <-result.Frames:
			if !ok {
				return nil
			}
			if err := sink.Push(pushchannel.Envelope{
				Type:    pushchannel.EnvelopeAudio,
				Content: audio.EncodeFrame(frame),
			}); err != nil {
				return err
			}
		case <-ttsCtx.Done():
			o.logger.Warnf("synthesis timed out mid-stream, completing turn")
			return nil
		}
	}
}

// fail degrades the turn: fallback text plus the single terminal done.
func (o *Orchestrator) fail(ctx context.Context, turn *turnMachine, sink pushchannel.Sink) error {
	turn.advance(ctx, stageEventFail)
	if err := sink.Push(pushchannel.Envelope{
		Type:    pushchannel.EnvelopeText,
		Content: FallbackReply,
	}); err != nil {
		return err
	}
	return sink.Push(pushchannel.Envelope{
		Type:    pushchannel.EnvelopeDone,
		Content: FallbackReply,
	})
}
