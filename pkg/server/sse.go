package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ivanvihe/jarvis-core/pkg/registry"
)

// keepAliveInterval is the SSE keep-alive comment cadence, so proxies
// between the client and this service don't time the connection out
// during a quiet period.
const keepAliveInterval = 15 * time.Second

// snapshotEvent is the first payload written to a /models/stream
// connection: the full catalogue plus every known progress record, so
// a client that only just connected doesn't need a separate initial
// GET /models round trip.
type snapshotEvent struct {
	Type     string                             `json:"type"`
	Models   []registry.ModelMetadata           `json:"models"`
	Progress map[string]registry.ProgressRecord `json:"progress"`
}

// streamProgress serves GET /models/stream: an SSE connection that
// replays the current catalogue snapshot, then forwards every bus event
// until the client disconnects.
func (s *Server) streamProgress(c *gin.Context) {
	sub := s.registry.Subscribe()
	defer s.registry.Unsubscribe(sub)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}

	writeSSEEvent(c.Writer, snapshotEvent{
		Type:     "snapshot",
		Models:   s.registry.ListModels(),
		Progress: s.registry.ProgressSnapshot(),
	})
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case evt, open := <-sub.Events():
			if !open {
				return
			}
			writeSSEEvent(c.Writer, evt)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt any) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// streamChatDelta is one chunk of a streaming /chat/completions
// response, framed the same way as progress events.
type streamChatDelta struct {
	Delta   string            `json:"delta,omitempty"`
	Done    bool              `json:"done,omitempty"`
	Actions []json.RawMessage `json:"actions,omitempty"`
}
