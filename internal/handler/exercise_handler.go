package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/model"
	"github.com/stemsi/exstem-examgen/internal/response"
	"github.com/stemsi/exstem-examgen/internal/service"
	"github.com/stemsi/exstem-examgen/internal/validator"
)

// ExerciseHandler handles exercise generation and practice endpoints.
type ExerciseHandler struct {
	generationService *service.GenerationService
	exerciseService   *service.ExerciseService
	docService        *service.DocService
	ownerID           uuid.UUID
	log               zerolog.Logger
}

// NewExerciseHandler creates a new ExerciseHandler.
func NewExerciseHandler(
	generationService *service.GenerationService,
	exerciseService *service.ExerciseService,
	docService *service.DocService,
	ownerID uuid.UUID,
	log zerolog.Logger,
) *ExerciseHandler {
	return &ExerciseHandler{
		generationService: generationService,
		exerciseService:   exerciseService,
		docService:        docService,
		ownerID:           ownerID,
		log:               log.With().Str("component", "exercise_handler").Logger(),
	}
}

// Analyze godoc
// POST /api/v1/exercises/analyze
// Extracts key points and a suggested title from the material.
func (h *ExerciseHandler) Analyze(c *gin.Context) {
	var req model.AnalyzeMaterialRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	analysis, err := h.generationService.Analyze(c.Request.Context(), &req)
	if err != nil {
		h.log.Warn().Err(err).Msg("Material analysis failed")
		failWithError(c, err)
		return
	}

	response.Success(c, http.StatusOK, analysis)
}

// AnalyzeFile godoc
// POST /api/v1/exercises/analyze-file
// Reads an uploaded file, or an already uploaded doc given by doc_id, and
// returns its text with key points and a suggested title.
func (h *ExerciseHandler) AnalyzeFile(c *gin.Context) {
	var req model.AnalyzeFileRequest
	if fields := validator.BindForm(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctx := c.Request.Context()
	var (
		text string
		err  error
	)
	if req.DocID != "" {
		text, err = h.docService.StoredText(ctx, uuid.MustParse(req.DocID))
	} else {
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
			return
		}
		defer file.Close()
		text, err = h.docService.ExtractText(ctx, file, header)
	}
	if err != nil {
		failWithError(c, err)
		return
	}

	analysis, err := h.generationService.AnalyzeText(ctx, text, &req)
	if err != nil {
		h.log.Warn().Err(err).Msg("File analysis failed")
		failWithError(c, err)
		return
	}

	response.Success(c, http.StatusOK, analysis)
}

// Generate godoc
// POST /api/v1/exercises/generate
// Streams generated text as SSE chunk events, then one result event.
func (h *ExerciseHandler) Generate(c *gin.Context) {
	var req model.GenerateExerciseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	stream := newSSEStream(c)
	in := h.generationService.InputFromRequest(h.ownerID, &req)

	rec, err := h.generationService.Generate(c.Request.Context(), in, stream.Chunk)
	if err != nil {
		failWithError(c, err)
		return
	}

	if err := stream.Event("result", rec); err != nil {
		h.log.Debug().Err(err).Str("exercise_id", rec.ResourceID.String()).Msg("Client gone before result event")
	}
}

// ListExercises godoc
// GET /api/v1/exercises
// Lists exercises with pagination and optional keyword, difficulty and type filters.
func (h *ExerciseHandler) ListExercises(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	qt := c.Query("questionType")
	if qt == "" {
		qt = c.Query("question_type")
	}
	filter := model.ExerciseFilter{
		OwnerID:    h.ownerID,
		Keyword:    c.Query("keyword"),
		Difficulty: model.Difficulty(c.Query("difficulty")),
	}
	if qt != "" {
		filter.QuestionType = model.ParseQuestionType(qt)
	}

	exercises, pagination, err := h.exerciseService.List(c.Request.Context(), filter, page, perPage)
	if err != nil {
		h.log.Error().Err(err).Msg("List exercises failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exercises": exercises}, pagination)
}

// GetExercise godoc
// GET /api/v1/exercises/:id
func (h *ExerciseHandler) GetExercise(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	detail, err := h.exerciseService.GetDetail(c.Request.Context(), id)
	if err != nil {
		failWithError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exercise": detail})
}

// DeleteExercise godoc
// DELETE /api/v1/exercises/:id
// Deletes an exercise with its questions, answers and results.
func (h *ExerciseHandler) DeleteExercise(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.exerciseService.Delete(c.Request.Context(), id); err != nil {
		failWithError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "exercise deleted successfully"})
}

// SubmitAnswers godoc
// POST /api/v1/exercises/:id/submit
// Grades the submitted answers and queues the result for persistence.
func (h *ExerciseHandler) SubmitAnswers(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req model.SubmitAnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.exerciseService.Submit(c.Request.Context(), id, h.ownerID, req.Answers)
	if err != nil {
		failWithError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// ListResults godoc
// GET /api/v1/exercises/:id/results
func (h *ExerciseHandler) ListResults(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	results, err := h.exerciseService.ListResults(c.Request.Context(), id)
	if err != nil {
		failWithError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"results": results})
}
