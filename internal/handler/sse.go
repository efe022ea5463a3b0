package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

// sseStream writes server-sent events. Headers go out with the first event,
// so a handler can still answer with a plain JSON error until then.
type sseStream struct {
	c       *gin.Context
	started bool
}

func newSSEStream(c *gin.Context) *sseStream {
	return &sseStream{c: c}
}

func (s *sseStream) start() {
	if s.started {
		return
	}
	h := s.c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.c.Status(http.StatusOK)
	s.started = true
}

// Event writes one frame and flushes it. A write error means the client is gone.
func (s *sseStream) Event(event string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.start()

	w := s.c.Writer
	if _, err := w.Write([]byte("event: " + event + "\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	w.Flush()
	return s.c.Request.Context().Err()
}

// Chunk is the emit callback handed to the pipelines.
func (s *sseStream) Chunk(content string) error {
	return s.Event("chunk", gin.H{"content": content})
}
