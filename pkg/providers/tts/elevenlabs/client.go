package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nestdesk/nestdesk/pkg/Logger"
	"github.com/nestdesk/nestdesk/pkg/providers/tts"
)

const (
	defaultBaseURL    = "https://api.elevenlabs.io/v1"
	defaultVoiceID    = "21m00Tcm4TlvDq8ikWAM"
	defaultModelID    = "eleven_multilingual_v2"
	streamFormat      = "pcm_16000"
	fallbackFormat    = "mp3_44100_128"
	streamChunkSize   = 4096
	defaultStability  = 0.5
	defaultSimilarity = 0.75
)

// Config holds the knobs for the ElevenLabs synthesizer. APIKey is
// required; everything else has a default.
type Config struct {
	APIKey  string
	BaseURL string
	VoiceID string
	ModelID string
	Timeout time.Duration
}

// Client implements tts.Synthesizer against the ElevenLabs API. The
// primary path streams raw PCM16 frames; when the streaming leg fails
// it falls back to a single compressed mp3 file.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *Logger.Logger
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// New creates an ElevenLabs-backed synthesizer.
func New(cfg Config, logger *Logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("elevenlabs api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = defaultVoiceID
	}
	if cfg.ModelID == "" {
		cfg.ModelID = defaultModelID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

// Synthesize implements tts.Synthesizer.
func (c *Client) Synthesize(ctx context.Context, text string) (*tts.Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	resp, err := c.request(ctx, text, streamFormat, "audio/pcm", true)
	if err == nil {
		return &tts.Result{Frames: c.streamBody(ctx, resp)}, nil
	}
	c.logger.Warnf("pcm stream synthesis failed, falling back to full file: %v", err)

	resp, err = c.request(ctx, text, fallbackFormat, "audio/mpeg", false)
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}
	defer resp.Body.Close()

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesis response: %w", err)
	}
	return &tts.Result{FullFile: blob}, nil
}

func (c *Client) request(ctx context.Context, text, format, accept string, streaming bool) (*http.Response, error) {
	payload := synthesisRequest{
		Text:    text,
		ModelID: c.cfg.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       defaultStability,
			SimilarityBoost: defaultSimilarity,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s", c.cfg.BaseURL, c.cfg.VoiceID)
	if streaming {
		endpoint += "/stream"
	}
	endpoint += "?output_format=" + format

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("elevenlabs returned status %d: %s", resp.StatusCode, string(errorBody))
	}
	return resp, nil
}

// streamBody copies the response body onto a frame channel in fixed
// chunks, preserving order. The channel closes when the body is
// drained or the context ends.
func (c *Client) streamBody(ctx context.Context, resp *http.Response) <-chan []byte {
	frames := make(chan []byte, 10)

	go func() {
		defer close(frames)
		defer resp.Body.Close()

		buf := make([]byte, streamChunkSize)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				frame := make([]byte, n)
				copy(frame, buf[:n])
				select {
				case frames <- frame:
				case <-ctx.Done():
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				c.logger.Errorf("error reading synthesis stream: %v", err)
				return
			}
		}
	}()

	return frames
}
