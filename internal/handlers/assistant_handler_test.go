package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nestdesk/nestdesk/internal/assistant/chat"
	"github.com/nestdesk/nestdesk/internal/assistant/voice"
	"github.com/nestdesk/nestdesk/internal/pushchannel"
	"github.com/nestdesk/nestdesk/pkg/Logger"
	"github.com/nestdesk/nestdesk/pkg/audio"
	"github.com/nestdesk/nestdesk/pkg/providers/llm"
	"github.com/nestdesk/nestdesk/pkg/providers/tts"
)

type stubLLM struct {
	reply string
}

func (s *stubLLM) Complete(ctx context.Context, msgs []llm.Message) (string, error) {
	return s.reply, nil
}

func (s *stubLLM) Stream(ctx context.Context, msgs []llm.Message, onDelta func(string) error) error {
	for _, word := range strings.SplitAfter(s.reply, " ") {
		if err := onDelta(word); err != nil {
			return err
		}
	}
	return nil
}

type stubTranscriber struct {
	text string
}

func (s *stubTranscriber) Transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	return s.text, nil
}

type stubSynthesizer struct {
	frames [][]byte
}

func (s *stubSynthesizer) Synthesize(ctx context.Context, text string) (*tts.Result, error) {
	ch := make(chan []byte, len(s.frames))
	for _, f := range s.frames {
		ch <- f
	}
	close(ch)
	return &tts.Result{Frames: ch}, nil
}

func newTestRouter(h *AssistantHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/assistant/chat", h.Chat)
	r.POST("/api/assistant/voice", h.Voice)
	r.POST("/api/assistant/speak", h.Speak)
	return r
}

func newTestHandler(reply string) *AssistantHandler {
	logger := Logger.New(true)
	driver := chat.NewDriver(&stubLLM{reply: reply}, time.Second, logger)
	orch := voice.NewOrchestrator(
		&stubTranscriber{text: "what listings are new"},
		&stubLLM{reply: reply},
		&stubSynthesizer{frames: [][]byte{audio.SamplesToBytes(make([]int16, 80))}},
		voice.Timeouts{},
		logger,
	)
	return NewAssistantHandler(driver, orch, logger)
}

func postJSON(t *testing.T, r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelopes(t *testing.T, body *bytes.Buffer) []pushchannel.Envelope {
	t.Helper()
	var envs []pushchannel.Envelope
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var env pushchannel.Envelope
		if err := json.Unmarshal(sc.Bytes(), &env); err != nil {
			t.Fatalf("line is not a valid envelope: %v (%q)", err, sc.Text())
		}
		envs = append(envs, env)
	}
	return envs
}

func TestChatStreamsNDJSON(t *testing.T) {
	r := newTestRouter(newTestHandler("Two new listings this week."))

	w := postJSON(t, r, "/api/assistant/chat", map[string]interface{}{
		"message": "any new listings?",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("expected NDJSON content type, got %q", ct)
	}

	envs := decodeEnvelopes(t, w.Body)
	if len(envs) < 2 {
		t.Fatalf("expected text envelopes plus done, got %d envelopes", len(envs))
	}
	last := envs[len(envs)-1]
	if last.Type != pushchannel.EnvelopeDone {
		t.Errorf("expected final envelope to be done, got %s", last.Type)
	}
	if last.Content != "Two new listings this week." {
		t.Errorf("done should carry the full reply, got %q", last.Content)
	}

	var joined strings.Builder
	for _, env := range envs[:len(envs)-1] {
		if env.Type != pushchannel.EnvelopeText {
			t.Errorf("unexpected envelope type %s before done", env.Type)
		}
		joined.WriteString(env.Content)
	}
	if joined.String() != last.Content {
		t.Errorf("text fragments %q do not concatenate to done content %q", joined.String(), last.Content)
	}
}

func TestChatRejectsMissingMessage(t *testing.T) {
	r := newTestRouter(newTestHandler("unused"))

	w := postJSON(t, r, "/api/assistant/chat", map[string]interface{}{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestVoicePipelineEnvelopeOrder(t *testing.T) {
	r := newTestRouter(newTestHandler("Two came on the market today."))

	pcm := audio.SamplesToBytes(make([]int16, 160))
	w := postJSON(t, r, "/api/assistant/voice", map[string]interface{}{
		"audio": base64.StdEncoding.EncodeToString(pcm),
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	envs := decodeEnvelopes(t, w.Body)
	if len(envs) < 4 {
		t.Fatalf("expected transcript, ai_text, audio, done; got %d envelopes", len(envs))
	}
	if envs[0].Type != pushchannel.EnvelopeTranscript {
		t.Errorf("first envelope should be transcript, got %s", envs[0].Type)
	}
	if envs[1].Type != pushchannel.EnvelopeAIText {
		t.Errorf("second envelope should be ai_text, got %s", envs[1].Type)
	}
	if envs[len(envs)-1].Type != pushchannel.EnvelopeDone {
		t.Errorf("final envelope should be done, got %s", envs[len(envs)-1].Type)
	}
}

func TestVoiceRejectsBadBase64(t *testing.T) {
	r := newTestRouter(newTestHandler("unused"))

	w := postJSON(t, r, "/api/assistant/voice", map[string]interface{}{
		"audio": "not!!base64",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSpeakSkipsTranscriptionAndCompletion(t *testing.T) {
	r := newTestRouter(newTestHandler("unused"))

	w := postJSON(t, r, "/api/assistant/speak", map[string]interface{}{
		"text": "Your 2pm viewing is confirmed.",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	envs := decodeEnvelopes(t, w.Body)
	for _, env := range envs {
		if env.Type == pushchannel.EnvelopeTranscript || env.Type == pushchannel.EnvelopeAIText {
			t.Errorf("speak should not emit %s envelopes", env.Type)
		}
	}
	if len(envs) == 0 || envs[len(envs)-1].Type != pushchannel.EnvelopeDone {
		t.Fatal("speak stream must end with done")
	}
}
