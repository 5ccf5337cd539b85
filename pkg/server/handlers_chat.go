package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ivanvihe/jarvis-core/pkg/apperrors"
	"github.com/ivanvihe/jarvis-core/pkg/generation"
)

type chatCompletionRequest struct {
	Prompt       string                   `json:"prompt" binding:"required"`
	SystemPrompt string                   `json:"system_prompt"`
	History      []generation.ChatMessage `json:"history"`
	Stream       bool                     `json:"stream"`
	Temperature  float64                  `json:"temperature"`
	TopP         float64                  `json:"top_p"`
	MaxTokens    int                      `json:"max_tokens"`
}

// chatCompletions handles POST /chat/completions, dispatching to a
// blocking or SSE streaming response depending on the request's stream
// flag.
func (s *Server) chatCompletions(c *gin.Context) {
	var req chatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Abort(c, apperrors.Wrap(apperrors.Validation, "invalid chat request body", err))
		return
	}

	opts := generation.GenerateOptions{
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Stream:      req.Stream,
	}

	if !req.Stream {
		result, err := s.generation.Generate(c.Request.Context(), req.Prompt, req.SystemPrompt, req.History, opts)
		if err != nil {
			apperrors.Abort(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	s.streamChatCompletion(c, req.Prompt, req.SystemPrompt, req.History, opts)
}

func (s *Server) streamChatCompletion(c *gin.Context, prompt, systemPrompt string, history []generation.ChatMessage, opts generation.GenerateOptions) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}

	actions, err := s.generation.GenerateStream(c.Request.Context(), prompt, systemPrompt, history, opts, func(delta string) {
		writeSSEEvent(c.Writer, streamChatDelta{Delta: delta})
		flusher.Flush()
	})
	if err != nil {
		appErr := apperrors.As(err)
		writeSSEEvent(c.Writer, gin.H{"error": appErr.Message})
		flusher.Flush()
		return
	}

	writeSSEEvent(c.Writer, gin.H{"done": true, "actions": actions})
	flusher.Flush()
}

// runtimeStatus handles GET /status.
func (s *Server) runtimeStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.generation.Status())
}

// unloadModel handles POST /runtime/unload.
func (s *Server) unloadModel(c *gin.Context) {
	if err := s.generation.Unload(); err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
