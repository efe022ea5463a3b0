// Package llm talks to OpenAI-compatible chat and embedding endpoints.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stemsi/exstem-examgen/internal/model"
)

// Model is the generative model contract used by the pipeline.
type Model interface {
	// Complete runs one non-streaming chat call and returns the reply text.
	Complete(ctx context.Context, prompt string) (string, error)
	// Stream runs one streaming chat call. onDelta receives every non-empty
	// text delta in arrival order; a non-nil return aborts the call.
	Stream(ctx context.Context, prompt string, onDelta func(string) error) (*model.Usage, error)
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chatter streams replies to multi-turn conversations.
type Chatter interface {
	StreamChat(ctx context.Context, messages []Message, onDelta func(string) error) (*model.Usage, error)
}

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ErrEmptyResponse is returned when the provider answers without choices.
var ErrEmptyResponse = errors.New("empty response from model")

// FormatError reports a structured-output call whose reply could not be read.
type FormatError struct {
	Op  string
	Raw string
	Err error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: unreadable model output: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: unreadable model output", e.Op)
}

func (e *FormatError) Unwrap() error { return e.Err }

// UpstreamError wraps network, timeout and provider failures.
type UpstreamError struct {
	Op         string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: upstream status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: upstream: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Retryable reports whether repeating the call may succeed.
func (e *UpstreamError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return !errors.Is(e.Err, context.Canceled) && !errors.Is(e.Err, context.DeadlineExceeded)
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return e.StatusCode >= 500
	}
}

// IsRetryable is a retry-go predicate for model and retrieval calls.
func IsRetryable(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Retryable()
	}
	return false
}
