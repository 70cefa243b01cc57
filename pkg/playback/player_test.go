package playback

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/nestdesk/nestdesk/internal/pushchannel"
	"github.com/nestdesk/nestdesk/pkg/Logger"
	"github.com/nestdesk/nestdesk/pkg/audio"
)

type fakeCapture struct {
	frames     chan []byte
	acquireErr error
	acquired   int
	released   int
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{frames: make(chan []byte, 16)}
}

func (c *fakeCapture) Acquire() error {
	if c.acquireErr != nil {
		return c.acquireErr
	}
	c.acquired++
	return nil
}

func (c *fakeCapture) Frames() <-chan []byte { return c.frames }

func (c *fakeCapture) Release() error {
	c.released++
	close(c.frames)
	return nil
}

type fakeOutput struct {
	played  [][]int16
	decoded [][]byte
	playErr error
}

func (o *fakeOutput) Decode(data []byte) ([]int16, error) {
	o.decoded = append(o.decoded, data)
	return audio.BytesToSamples(data)
}

func (o *fakeOutput) Play(samples []int16) error {
	o.played = append(o.played, samples)
	return o.playErr
}

func newTestPlayer(capture Capture, out *fakeOutput) *Player {
	return NewPlayer(capture, out, Logger.New(true))
}

func frameOf(n int) pushchannel.Envelope {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(i + 1)
	}
	return pushchannel.Envelope{
		Type:    pushchannel.EnvelopeAudio,
		Content: audio.EncodeFrame(audio.SamplesToBytes(samples)),
	}
}

func consumeTurn(t *testing.T, p *Player, envs []pushchannel.Envelope) {
	t.Helper()
	ch := make(chan pushchannel.Envelope, len(envs))
	for _, e := range envs {
		ch <- e
	}
	close(ch)
	if err := p.Consume(context.Background(), ch); err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
}

// enterProcessing walks the player to the processing state the way a
// real turn would, without touching a device.
func enterProcessing(t *testing.T, p *Player, capture *fakeCapture) {
	t.Helper()
	ctx := context.Background()
	if err := p.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if _, err := p.StopRecording(ctx); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if got := p.State(); got != StateProcessing {
		t.Fatalf("expected processing after capture, got %s", got)
	}
}

func TestChunksPlayOnlyAfterDone(t *testing.T) {
	capture := newFakeCapture()
	out := &fakeOutput{}
	p := newTestPlayer(capture, out)
	enterProcessing(t, p, capture)

	consumeTurn(t, p, []pushchannel.Envelope{
		frameOf(100),
		frameOf(50),
		{Type: pushchannel.EnvelopeDone, Content: "hello"},
	})

	if len(out.played) != 1 {
		t.Fatalf("expected exactly one playback, got %d", len(out.played))
	}
	if got := len(out.played[0]); got != 150 {
		t.Errorf("expected 150 samples in joined buffer, got %d", got)
	}
	if got := p.State(); got != StateIdle {
		t.Errorf("expected idle after playback, got %s", got)
	}
}

func TestFullFilePlaysImmediately(t *testing.T) {
	capture := newFakeCapture()
	out := &fakeOutput{}
	p := newTestPlayer(capture, out)
	enterProcessing(t, p, capture)

	pcm := audio.SamplesToBytes(make([]int16, 40))
	consumeTurn(t, p, []pushchannel.Envelope{
		{Type: pushchannel.EnvelopeAudioFull, Content: base64.StdEncoding.EncodeToString(pcm)},
		{Type: pushchannel.EnvelopeDone, Content: "hello"},
	})

	if len(out.decoded) != 1 {
		t.Fatalf("expected full file to be decoded once, got %d", len(out.decoded))
	}
	if len(out.played) != 1 {
		t.Fatalf("expected one playback, got %d", len(out.played))
	}
	if got := p.State(); got != StateIdle {
		t.Errorf("expected idle after full-file turn, got %s", got)
	}
}

func TestDoneWithoutAudioReturnsToIdle(t *testing.T) {
	capture := newFakeCapture()
	out := &fakeOutput{}
	p := newTestPlayer(capture, out)
	enterProcessing(t, p, capture)

	consumeTurn(t, p, []pushchannel.Envelope{
		{Type: pushchannel.EnvelopeTranscript, Content: "hi"},
		{Type: pushchannel.EnvelopeAIText, Content: "hello"},
		{Type: pushchannel.EnvelopeDone, Content: "hello"},
	})

	if len(out.played) != 0 {
		t.Errorf("expected no playback, got %d", len(out.played))
	}
	if got := p.State(); got != StateIdle {
		t.Errorf("expected idle, got %s", got)
	}
}

func TestStartRecordingTwiceIsNoop(t *testing.T) {
	capture := newFakeCapture()
	p := newTestPlayer(capture, &fakeOutput{})
	ctx := context.Background()

	if err := p.StartRecording(ctx); err != nil {
		t.Fatalf("first StartRecording: %v", err)
	}
	if err := p.StartRecording(ctx); err != nil {
		t.Fatalf("second StartRecording should be a no-op, got %v", err)
	}
	if capture.acquired != 1 {
		t.Errorf("expected one device acquisition, got %d", capture.acquired)
	}
}

func TestMicFailureSurfacedOnce(t *testing.T) {
	capture := newFakeCapture()
	capture.acquireErr = errors.New("device busy")
	p := newTestPlayer(capture, &fakeOutput{})

	err := p.StartRecording(context.Background())
	if err == nil {
		t.Fatal("expected microphone error")
	}
	if got := p.State(); got != StateIdle {
		t.Errorf("expected player to stay idle after mic failure, got %s", got)
	}
}

func TestStopRecordingReturnsCapturedPCM(t *testing.T) {
	capture := newFakeCapture()
	p := newTestPlayer(capture, &fakeOutput{})
	ctx := context.Background()

	if err := p.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	capture.frames <- audio.SamplesToBytes([]int16{1, 2, 3})
	capture.frames <- audio.SamplesToBytes([]int16{4, 5})

	pcm, err := p.StopRecording(ctx)
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	got, err := audio.BytesToSamples(pcm)
	if err != nil {
		t.Fatalf("captured bytes not sample aligned: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 captured samples, got %d", len(got))
	}
	for i, want := range []int16{1, 2, 3, 4, 5} {
		if got[i] != want {
			t.Errorf("sample %d: got %d want %d", i, got[i], want)
		}
	}
}

func TestErrorEnvelopePlaysPartialAudio(t *testing.T) {
	capture := newFakeCapture()
	out := &fakeOutput{}
	p := newTestPlayer(capture, out)
	enterProcessing(t, p, capture)

	// The error terminal still plays what arrived: partial audio is
	// better than silence after the user already heard nothing.
	consumeTurn(t, p, []pushchannel.Envelope{
		frameOf(30),
		{Type: pushchannel.EnvelopeError, Content: "upstream failed"},
	})

	if len(out.played) != 1 {
		t.Fatalf("expected partial audio to play, got %d playbacks", len(out.played))
	}
	if got := len(out.played[0]); got != 30 {
		t.Errorf("expected 30 samples, got %d", got)
	}
	if got := p.State(); got != StateIdle {
		t.Errorf("expected idle, got %s", got)
	}
}

func TestCancelledTurnReturnsToIdle(t *testing.T) {
	capture := newFakeCapture()
	out := &fakeOutput{}
	p := newTestPlayer(capture, out)
	enterProcessing(t, p, capture)

	ch := make(chan pushchannel.Envelope, 1)
	ch <- frameOf(10)
	close(ch) // stream ends with no terminal envelope

	if err := p.Consume(context.Background(), ch); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if len(out.played) != 0 {
		t.Errorf("expected no playback on cancelled turn, got %d", len(out.played))
	}
	if got := p.State(); got != StateIdle {
		t.Errorf("expected idle after cancelled turn, got %s", got)
	}
}
