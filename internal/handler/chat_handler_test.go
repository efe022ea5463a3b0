package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/llm"
	"github.com/stemsi/exstem-examgen/internal/model"
	"github.com/stemsi/exstem-examgen/internal/response"
	"github.com/stemsi/exstem-examgen/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedChatter streams reply and then fails with err, if set.
type scriptedChatter struct {
	reply []string
	err   error
}

func (c *scriptedChatter) StreamChat(_ context.Context, _ []llm.Message, onDelta func(string) error) (*model.Usage, error) {
	for _, r := range c.reply {
		if err := onDelta(r); err != nil {
			return nil, err
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return &model.Usage{InputTokens: 3, OutputTokens: 4, TotalTokens: 7}, nil
}

const chatBody = `{"messages":[{"role":"user","content":"What do chloroplasts do?"}]}`

func serveChat(t *testing.T, chatter llm.Chatter, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewChatHandler(service.NewChatService(chatter, nil, zerolog.Nop()), zerolog.Nop())

	r := gin.New()
	r.POST("/chat/stream", h.Stream)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestChatStream_ChunksThenMetaThenDone(t *testing.T) {
	w := serveChat(t, &scriptedChatter{reply: []string{"They run ", "photosynthesis."}}, chatBody)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	frames := parseSSE(w.Body.String())
	require.Len(t, frames, 4)
	assert.Equal(t, "chunk", frames[0].event)
	assert.JSONEq(t, `{"content":"They run "}`, frames[0].data)
	assert.Equal(t, "chunk", frames[1].event)

	require.Equal(t, "meta", frames[2].event)
	var meta model.ChatMeta
	require.NoError(t, json.Unmarshal([]byte(frames[2].data), &meta))
	assert.NotEmpty(t, meta.ConversationID)
	require.NotNil(t, meta.Usage)
	assert.EqualValues(t, 7, meta.Usage.TotalTokens)

	assert.Equal(t, "done", frames[3].event)
	assert.JSONEq(t, `{}`, frames[3].data)
}

func TestChatStream_FailureBeforeFirstChunkIsJSON(t *testing.T) {
	w := serveChat(t, &scriptedChatter{err: &llm.UpstreamError{Op: "stream", StatusCode: 503, Err: errors.New("busy")}}, chatBody)

	require.Equal(t, http.StatusBadGateway, w.Code)
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, response.ErrUpstream, resp.Error.Code)
}

func TestChatStream_FailureMidStreamIsErrorEvent(t *testing.T) {
	w := serveChat(t, &scriptedChatter{
		reply: []string{"They run "},
		err:   &llm.UpstreamError{Op: "stream", Err: errors.New("connection reset")},
	}, chatBody)

	require.Equal(t, http.StatusOK, w.Code)
	frames := parseSSE(w.Body.String())
	require.Len(t, frames, 3)
	assert.Equal(t, "chunk", frames[0].event)
	require.Equal(t, "error", frames[1].event)

	var ev struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal([]byte(frames[1].data), &ev))
	assert.Equal(t, string(response.ErrUpstream), ev.Code)
	assert.NotEmpty(t, ev.Message)
	assert.Equal(t, "done", frames[2].event)
}

func TestChatStream_ValidationError(t *testing.T) {
	w := serveChat(t, &scriptedChatter{}, `{"messages":[]}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, response.ErrValidation, resp.Error.Code)
}
