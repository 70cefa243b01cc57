package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/nestdesk/nestdesk/pkg/Logger"
	"github.com/nestdesk/nestdesk/pkg/audio"
)

// TranscriptionResponse represents the response from the Whisper STT service.
type TranscriptionResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Client handles communication with a Whisper-compatible STT service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *Logger.Logger
}

// New creates a Whisper client with the given request timeout.
func New(baseURL string, timeout time.Duration, logger *Logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Transcribe uploads audio and returns the transcript text. Raw PCM16
// input is wrapped in a WAV container first; anything already carrying
// a recognizable container is submitted as-is with encode=true so the
// service converts it itself.
func (c *Client) Transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no audio data provided")
	}

	upload, filename := c.normalize(data, mimeType)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("audio_file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(upload); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	requestURL := fmt.Sprintf("%s/asr?encode=true&task=transcribe&output=json", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Errorf("Whisper service error (status %d): %s", resp.StatusCode, string(responseBody))
		return "", fmt.Errorf("whisper service returned status %d", resp.StatusCode)
	}
	if len(responseBody) == 0 {
		return "", fmt.Errorf("whisper service returned empty response")
	}

	// The service answers JSON normally but plain text under some
	// output configurations; accept both.
	var transcription TranscriptionResponse
	if err := json.Unmarshal(responseBody, &transcription); err != nil {
		text := strings.TrimSpace(string(responseBody))
		if text == "" {
			return "", fmt.Errorf("failed to decode response: %w", err)
		}
		c.logger.Debugf("treating whisper response as plain text transcription")
		return text, nil
	}

	c.logger.Debugf("whisper transcription: %q (language: %s)", transcription.Text, transcription.Language)
	return strings.TrimSpace(transcription.Text), nil
}

// normalize decides how the uploaded bytes reach the service.
func (c *Client) normalize(data []byte, mimeType string) ([]byte, string) {
	if audio.IsWAV(data) {
		return data, "audio.wav"
	}
	switch mimeType {
	case "", "audio/pcm", "audio/l16":
		return audio.WAVFromPCM(data, audio.SampleRate), "audio.wav"
	case "audio/webm":
		return data, "audio.webm"
	case "audio/ogg":
		return data, "audio.ogg"
	case "audio/mpeg", "audio/mp3":
		return data, "audio.mp3"
	default:
		return data, "audio.bin"
	}
}
