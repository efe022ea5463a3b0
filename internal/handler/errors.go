package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-examgen/internal/generation"
	"github.com/stemsi/exstem-examgen/internal/lease"
	"github.com/stemsi/exstem-examgen/internal/llm"
	"github.com/stemsi/exstem-examgen/internal/model"
	"github.com/stemsi/exstem-examgen/internal/response"
	"github.com/stemsi/exstem-examgen/internal/service"
)

// errorStatus maps a service error to its HTTP status and error code.
func errorStatus(err error) (int, response.ErrCode) {
	var (
		fe *llm.FormatError
		ue *llm.UpstreamError
	)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, lease.ErrConflict):
		return http.StatusConflict, response.ErrConflict
	case errors.Is(err, service.ErrExerciseNotReady):
		return http.StatusConflict, response.ErrExerciseNotReady
	case errors.Is(err, service.ErrExerciseBusy):
		return http.StatusConflict, response.ErrExerciseBusy
	case errors.Is(err, service.ErrDocBusy):
		return http.StatusConflict, response.ErrDocBusy
	case errors.Is(err, service.ErrUnsupportedFileType), errors.Is(err, generation.ErrUnsupportedDocType):
		return http.StatusBadRequest, response.ErrUnsupportedFile
	case errors.Is(err, service.ErrFileTooLarge):
		return http.StatusBadRequest, response.ErrFileTooLarge
	case errors.As(err, &fe):
		return http.StatusUnprocessableEntity, response.ErrGenerationFormat
	case errors.As(err, &ue):
		return http.StatusBadGateway, response.ErrUpstream
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

func failWithError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	response.Fail(c, status, code)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
