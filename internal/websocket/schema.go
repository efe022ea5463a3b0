package websocket

import "github.com/stemsi/exstem-examgen/internal/model"

// ─── Requests (Client → Server) ─────────────────────────────────────

// The first client message is a model.GenerateExerciseRequest. Later
// messages are read only to notice a closed connection.

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError  Event = "error"
	EventChunk  Event = "chunk"
	EventResult Event = "result"
)

// ChunkResponse carries one raw slice of generated text.
type ChunkResponse struct {
	Event   Event  `json:"event"`
	Content string `json:"content"`
}

// ResultResponse is the last message of every started run.
type ResultResponse struct {
	Event  Event                 `json:"event"`
	Result *model.TerminalRecord `json:"result"`
}

// ErrorResponse rejects a run before it starts.
type ErrorResponse struct {
	Event  Event             `json:"event"`
	Code   string            `json:"code,omitempty"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
