package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/model"
	"github.com/stemsi/exstem-examgen/internal/response"
	"github.com/stemsi/exstem-examgen/internal/service"
	"github.com/stemsi/exstem-examgen/internal/validator"
)

// ChatHandler handles knowledge-base chat.
type ChatHandler struct {
	chatService *service.ChatService
	log         zerolog.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(chatService *service.ChatService, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		log:         log.With().Str("component", "chat_handler").Logger(),
	}
}

// Stream godoc
// POST /api/v1/chat/stream
// Streams the reply as SSE chunk events, then one meta event and one done event.
// A failure after the first chunk is reported as an error event.
func (h *ChatHandler) Stream(c *gin.Context) {
	var req model.ChatRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	stream := newSSEStream(c)
	meta, err := h.chatService.Stream(c.Request.Context(), &req, stream.Chunk)
	if err != nil {
		if c.Request.Context().Err() != nil {
			return
		}
		h.log.Warn().Err(err).Msg("Chat stream failed")
		if !stream.started {
			failWithError(c, err)
			return
		}
		_, code := errorStatus(err)
		_ = stream.Event("error", gin.H{"code": code, "message": response.GetMessage(code)})
		_ = stream.Event("done", gin.H{})
		return
	}

	if err := stream.Event("meta", meta); err != nil {
		h.log.Debug().Err(err).Msg("Client gone before meta event")
		return
	}
	_ = stream.Event("done", gin.H{})
}
