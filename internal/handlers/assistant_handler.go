package handlers

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nestdesk/nestdesk/internal/assistant/chat"
	"github.com/nestdesk/nestdesk/internal/assistant/voice"
	"github.com/nestdesk/nestdesk/internal/pushchannel"
	"github.com/nestdesk/nestdesk/pkg/Logger"
	"github.com/nestdesk/nestdesk/pkg/providers/llm"
)

// AssistantHandler exposes the assistant pipeline over HTTP. Every
// endpoint answers with an NDJSON push channel rather than a single
// JSON body, so clients render tokens and audio as they are produced.
type AssistantHandler struct {
	driver       *chat.Driver
	orchestrator *voice.Orchestrator
	logger       *Logger.Logger
}

func NewAssistantHandler(driver *chat.Driver, orchestrator *voice.Orchestrator, logger *Logger.Logger) *AssistantHandler {
	return &AssistantHandler{
		driver:       driver,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

type historyEntry struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

type chatRequest struct {
	Message string         `json:"message" binding:"required"`
	History []historyEntry `json:"history"`
}

type voiceRequest struct {
	Audio    string `json:"audio" binding:"required"`
	MimeType string `json:"mimeType"`
}

type speakRequest struct {
	Text string `json:"text" binding:"required"`
}

// Chat streams a text turn: token fragments as text envelopes, then a
// done envelope carrying the full reply.
func (h *AssistantHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "message is required"})
		return
	}

	sink, err := pushchannel.NewWriter(c.Writer)
	if err != nil {
		h.logger.Errorf("chat stream unsupported: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "streaming not supported"})
		return
	}

	turn := chat.Turn{
		Message: req.Message,
		History: h.history(req.History),
	}
	if err := h.driver.Stream(c.Request.Context(), turn, sink); err != nil {
		h.logger.Warnf("chat turn ended early: %v", err)
	}
}

// Voice runs the full transcribe, complete, synthesize pipeline on a
// base64 PCM16 recording.
func (h *AssistantHandler) Voice(c *gin.Context) {
	var req voiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "audio is required"})
		return
	}

	pcm, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "audio must be base64 encoded"})
		return
	}

	sink, err := pushchannel.NewWriter(c.Writer)
	if err != nil {
		h.logger.Errorf("voice stream unsupported: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "streaming not supported"})
		return
	}

	if err := h.orchestrator.Run(c.Request.Context(), pcm, req.MimeType, sink); err != nil {
		h.logger.Warnf("voice turn ended early: %v", err)
	}
}

// Speak synthesizes provided text without transcription or completion.
func (h *AssistantHandler) Speak(c *gin.Context) {
	var req speakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "text is required"})
		return
	}

	sink, err := pushchannel.NewWriter(c.Writer)
	if err != nil {
		h.logger.Errorf("speak stream unsupported: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "streaming not supported"})
		return
	}

	if err := h.orchestrator.SpeakOnly(c.Request.Context(), req.Text, sink); err != nil {
		h.logger.Warnf("speak turn ended early: %v", err)
	}
}

func (h *AssistantHandler) history(entries []historyEntry) []llm.Message {
	if len(entries) == 0 {
		return nil
	}
	msgs := make([]llm.Message, 0, len(entries))
	for _, e := range entries {
		role := llm.Role(e.Role)
		switch role {
		case llm.RoleUser, llm.RoleAssistant, llm.RoleSystem:
		default:
			role = llm.RoleUser
		}
		msgs = append(msgs, llm.Message{Role: role, Content: e.Content})
	}
	return msgs
}
