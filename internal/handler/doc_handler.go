package handler

import (
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/response"
	"github.com/stemsi/exstem-examgen/internal/service"
)

// DocHandler handles study document endpoints.
type DocHandler struct {
	docService *service.DocService
	ownerID    uuid.UUID
	log        zerolog.Logger
}

// NewDocHandler creates a new DocHandler.
func NewDocHandler(docService *service.DocService, ownerID uuid.UUID, log zerolog.Logger) *DocHandler {
	return &DocHandler{
		docService: docService,
		ownerID:    ownerID,
		log:        log.With().Str("component", "doc_handler").Logger(),
	}
}

// UploadDoc godoc
// POST /api/v1/docs
// Uploads a document. It is parsed separately via /docs/:id/parse.
func (h *DocHandler) UploadDoc(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	doc, err := h.docService.Upload(c.Request.Context(), h.ownerID, file, header)
	if err != nil {
		status, _ := errorStatus(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Str("file_name", header.Filename).Msg("Doc upload failed")
		}
		failWithError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"doc": doc.View()})
}

// ListDocs godoc
// GET /api/v1/docs
func (h *DocHandler) ListDocs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	keyword := c.Query("keyword")

	docs, pagination, err := h.docService.List(c.Request.Context(), h.ownerID, keyword, page, perPage)
	if err != nil {
		h.log.Error().Err(err).Msg("List docs failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"docs": docs}, pagination)
}

// GetDoc godoc
// GET /api/v1/docs/:id
func (h *DocHandler) GetDoc(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	doc, err := h.docService.Get(c.Request.Context(), id)
	if err != nil {
		failWithError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"doc": doc.View()})
}

// DownloadDoc godoc
// GET /api/v1/docs/:id/file
// Serves the stored file inline for preview, or as an attachment with ?download=1.
func (h *DocHandler) DownloadDoc(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	doc, err := h.docService.OpenFile(c.Request.Context(), id)
	if err != nil {
		failWithError(c, err)
		return
	}

	if c.Query("download") == "1" {
		c.FileAttachment(doc.FilePath, doc.FileName)
		return
	}
	c.Header("Content-Disposition", "inline; filename*=UTF-8''"+url.PathEscape(doc.FileName))
	if ct := mime.TypeByExtension(doc.FileType); ct != "" {
		c.Header("Content-Type", ct)
	}
	c.File(doc.FilePath)
}

// DeleteDoc godoc
// DELETE /api/v1/docs/:id
func (h *DocHandler) DeleteDoc(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.docService.Delete(c.Request.Context(), id); err != nil {
		failWithError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "doc deleted successfully"})
}

// ParseDoc godoc
// POST /api/v1/docs/:id/parse
// Streams the summary as SSE chunk events, then one result event.
func (h *DocHandler) ParseDoc(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	stream := newSSEStream(c)
	rec, err := h.docService.Parse(c.Request.Context(), id, stream.Chunk)
	if err != nil {
		failWithError(c, err)
		return
	}

	if err := stream.Event("result", rec); err != nil {
		h.log.Debug().Err(err).Str("doc_id", id.String()).Msg("Client gone before result event")
	}
}
