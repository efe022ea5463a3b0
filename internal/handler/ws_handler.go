package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/model"
	"github.com/stemsi/exstem-examgen/internal/response"
	"github.com/stemsi/exstem-examgen/internal/service"
	"github.com/stemsi/exstem-examgen/internal/validator"
	ws "github.com/stemsi/exstem-examgen/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams exercise generation over WebSocket.
type WSHandler struct {
	generationService *service.GenerationService
	ownerID           uuid.UUID
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(generationService *service.GenerationService, ownerID uuid.UUID, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		generationService: generationService,
		ownerID:           ownerID,
		log:               log.With().Str("component", "ws_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// GenerateStream godoc
// WS /ws/v1/exercises/generate
// The first client message is the generation request. The server answers
// with chunk events and one result event, then closes.
func (h *WSHandler) GenerateStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	var req model.GenerateExerciseRequest
	if err := ws.ReadJSON(conn, &req); err != nil {
		ws.WriteError(conn, string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload), nil)
		return
	}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		ws.WriteError(conn, string(response.ErrValidation), response.GetMessage(response.ErrValidation), validator.TranslateErrors(err))
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go ws.WatchClose(conn, cancel)

	emit := func(chunk string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ws.WriteTyped(conn, ws.ChunkResponse{Event: ws.EventChunk, Content: chunk})
	}

	in := h.generationService.InputFromRequest(h.ownerID, &req)
	rec, err := h.generationService.Generate(ctx, in, emit)
	if err != nil {
		_, code := errorStatus(err)
		ws.WriteError(conn, string(code), response.GetMessage(code), nil)
		return
	}

	if err := ws.WriteTyped(conn, ws.ResultResponse{Event: ws.EventResult, Result: rec}); err != nil {
		h.log.Debug().Err(err).Str("exercise_id", rec.ResourceID.String()).Msg("Client gone before result event")
		return
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
}
