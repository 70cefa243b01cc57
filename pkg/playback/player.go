package playback

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/looplab/fsm"

	"github.com/nestdesk/nestdesk/internal/pushchannel"
	"github.com/nestdesk/nestdesk/pkg/Logger"
	"github.com/nestdesk/nestdesk/pkg/audio"
)

// Player states.
const (
	StateIdle       = "idle"
	StateRecording  = "recording"
	StateProcessing = "processing"
	StateSpeaking   = "speaking"
)

const (
	eventRecord      = "record"
	eventCaptureDone = "capture_done"
	eventSpeak       = "speak"
	eventFinish      = "finish"
	eventSkip        = "skip"
)

const defaultMicBufferSize = 1 << 20 // ~32s of PCM16 @ 16kHz

// Player is the client-side consumer of a voice push channel. It owns
// the idle/recording/processing/speaking state machine, captures
// microphone audio for a turn, and reconstructs playable audio from
// the envelopes the pipeline pushes back.
//
// Chunked frames are decoded as they arrive but played only after the
// terminal envelope, as one continuous buffer, so network jitter never
// causes audible seams. A full-file payload is already atomic and
// plays immediately.
type Player struct {
	capture Capture
	out     Output
	logger  *Logger.Logger

	mu      sync.Mutex
	machine *fsm.FSM
	mic     *micBuffer
	chunks  [][]int16
	pumpWG  sync.WaitGroup
}

func NewPlayer(capture Capture, out Output, logger *Logger.Logger) *Player {
	return &Player{
		capture: capture,
		out:     out,
		logger:  logger,
		mic:     newMicBuffer(defaultMicBufferSize),
		machine: fsm.NewFSM(
			StateIdle,
			fsm.Events{
				{Name: eventRecord, Src: []string{StateIdle}, Dst: StateRecording},
				{Name: eventCaptureDone, Src: []string{StateRecording}, Dst: StateProcessing},
				{Name: eventSpeak, Src: []string{StateProcessing}, Dst: StateSpeaking},
				{Name: eventFinish, Src: []string{StateSpeaking}, Dst: StateIdle},
				{Name: eventSkip, Src: []string{StateProcessing}, Dst: StateIdle},
			},
			fsm.Callbacks{},
		),
	}
}

// State reports the current playback state.
func (p *Player) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.machine.Current()
}

// StartRecording acquires the input device and begins capturing. A
// second request while already recording is a no-op. A microphone
// failure is surfaced once; there is no retry.
func (p *Player) StartRecording(ctx context.Context) error {
	p.mu.Lock()
	if p.machine.Current() == StateRecording {
		p.mu.Unlock()
		return nil
	}
	if p.machine.Current() != StateIdle {
		p.mu.Unlock()
		return fmt.Errorf("cannot record while %s", p.machine.Current())
	}
	p.mu.Unlock()

	if err := p.capture.Acquire(); err != nil {
		return fmt.Errorf("microphone unavailable: %w", err)
	}

	p.mu.Lock()
	p.machine.Event(ctx, eventRecord)
	p.mu.Unlock()

	p.pumpWG.Add(1)
	go func() {
		defer p.pumpWG.Done()
		for frame := range p.capture.Frames() {
			p.mu.Lock()
			p.mic.Write(frame)
			p.mu.Unlock()
		}
	}()
	return nil
}

// StopRecording releases the device and returns the captured PCM16
// bytes; the caller issues the pipeline request with them. The player
// moves to processing.
func (p *Player) StopRecording(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	if p.machine.Current() != StateRecording {
		p.mu.Unlock()
		return nil, fmt.Errorf("not recording")
	}
	p.mu.Unlock()

	if err := p.capture.Release(); err != nil {
		p.logger.Warnf("failed to release input device: %v", err)
	}
	p.pumpWG.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.machine.Event(ctx, eventCaptureDone)
	p.chunks = nil
	return p.mic.Drain(), nil
}

// Consume processes the ordered envelope stream of one turn and drives
// playback. It returns once a terminal envelope arrives or the channel
// closes (a cancelled turn leaves the player back at idle).
func (p *Player) Consume(ctx context.Context, envelopes <-chan pushchannel.Envelope) error {
	for env := range envelopes {
		switch env.Type {
		case pushchannel.EnvelopeAudio:
			samples, err := audio.DecodeBase64Frame(env.Content)
			if err != nil {
				p.logger.Warnf("dropping undecodable audio frame: %v", err)
				continue
			}
			p.mu.Lock()
			p.chunks = append(p.chunks, samples)
			p.mu.Unlock()

		case pushchannel.EnvelopeAudioFull:
			// Atomic payload: decode and play without waiting for done.
			if err := p.playFullFile(ctx, env.Content); err != nil {
				p.logger.Errorf("full-file playback failed: %v", err)
			}

		case pushchannel.EnvelopeDone, pushchannel.EnvelopeError:
			return p.finishTurn(ctx)

		case pushchannel.EnvelopeTranscript, pushchannel.EnvelopeAIText, pushchannel.EnvelopeText:
			// Display-only envelopes; nothing to play.

		default:
			p.logger.Warnf("ignoring unknown envelope type %q", env.Type)
		}
	}

	// Channel closed without a terminal envelope: cancelled turn.
	p.reset(ctx)
	return nil
}

func (p *Player) playFullFile(ctx context.Context, content string) error {
	blob, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return fmt.Errorf("invalid audio file payload: %w", err)
	}
	samples, err := p.out.Decode(blob)
	if err != nil {
		return fmt.Errorf("failed to decode audio file: %w", err)
	}

	p.mu.Lock()
	if p.machine.Current() == StateProcessing {
		p.machine.Event(ctx, eventSpeak)
	}
	p.mu.Unlock()

	playErr := p.out.Play(samples)

	p.mu.Lock()
	if p.machine.Current() == StateSpeaking {
		p.machine.Event(ctx, eventFinish)
	}
	p.mu.Unlock()
	return playErr
}

// finishTurn plays the accumulated chunk buffer, if any, as one
// continuous signal.
func (p *Player) finishTurn(ctx context.Context) error {
	p.mu.Lock()
	chunks := p.chunks
	p.chunks = nil
	state := p.machine.Current()
	p.mu.Unlock()

	if len(chunks) == 0 || state != StateProcessing {
		p.reset(ctx)
		return nil
	}

	joined := audio.Concat(chunks)

	p.mu.Lock()
	p.machine.Event(ctx, eventSpeak)
	p.mu.Unlock()

	err := p.out.Play(joined)

	p.mu.Lock()
	if p.machine.Current() == StateSpeaking {
		p.machine.Event(ctx, eventFinish)
	}
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("playback failed: %w", err)
	}
	return nil
}

// Stop ends playback early on user request.
func (p *Player) Stop(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.machine.Current() == StateSpeaking {
		p.machine.Event(ctx, eventFinish)
	}
}

// reset returns the player to idle from processing (nothing to play)
// or leaves terminal states untouched.
func (p *Player) reset(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.machine.Current() == StateProcessing {
		p.machine.Event(ctx, eventSkip)
	}
}
