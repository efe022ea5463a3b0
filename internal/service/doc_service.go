package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/config"
	"github.com/stemsi/exstem-examgen/internal/generation"
	"github.com/stemsi/exstem-examgen/internal/llm"
	"github.com/stemsi/exstem-examgen/internal/model"
	"github.com/stemsi/exstem-examgen/internal/response"
)

// Sentinel errors for doc uploads.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
	ErrDocBusy             = errors.New("doc is being parsed")
)

const (
	summaryInputRunes    = 8000
	summaryFallbackRunes = 500
	maxDocKnowledgePts   = 30
)

// DocStore is the doc data access DocService needs.
type DocStore interface {
	Create(ctx context.Context, d *model.Doc) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Doc, error)
	ListPaginated(ctx context.Context, ownerID uuid.UUID, keyword string, limit, offset int) ([]model.Doc, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// DocIndexer stores doc chunks in the knowledge base.
type DocIndexer interface {
	Index(ctx context.Context, docID, ownerID uuid.UUID, text string) (int, error)
	Remove(ctx context.Context, docID uuid.UUID) error
}

// DocService handles doc uploads and the parse pipeline.
type DocService struct {
	cfg         *config.Config
	docRepo     DocStore
	coordinator *generation.Coordinator
	streamer    *generation.Streamer
	indexer     DocIndexer
	loader      DocumentLoader
	log         zerolog.Logger
}

// NewDocService creates a new DocService. indexer may be nil when retrieval is disabled.
func NewDocService(
	cfg *config.Config,
	docRepo DocStore,
	coordinator *generation.Coordinator,
	streamer *generation.Streamer,
	indexer DocIndexer,
	log zerolog.Logger,
) *DocService {
	return &DocService{
		cfg:         cfg,
		docRepo:     docRepo,
		coordinator: coordinator,
		streamer:    streamer,
		indexer:     indexer,
		loader:      TextLoader{},
		log:         log.With().Str("component", "doc_service").Logger(),
	}
}

// Upload saves an uploaded file to local storage with a UUID filename and records it.
func (s *DocService) Upload(ctx context.Context, ownerID uuid.UUID, file multipart.File, header *multipart.FileHeader) (*model.Doc, error) {
	ext, err := s.checkUpload(header)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	doc := &model.Doc{
		ID:       uuid.New(),
		OwnerID:  ownerID,
		FileName: filepath.Base(header.Filename),
		FileType: ext,
	}
	doc.FilePath = filepath.Join(s.cfg.UploadDir, doc.ID.String()+ext)

	hash, size, err := writeHashed(doc.FilePath, file)
	if err != nil {
		return nil, err
	}
	doc.FileHash, doc.FileSize = hash, size

	if err := s.docRepo.Create(ctx, doc); err != nil {
		_ = os.Remove(doc.FilePath)
		return nil, fmt.Errorf("save doc: %w", err)
	}

	s.log.Info().Str("doc_id", doc.ID.String()).Str("file_type", ext).Int64("size", size).Msg("Doc uploaded")
	return doc, nil
}

func (s *DocService) checkUpload(header *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := allowedDocTypes[ext]; !ok {
		return "", fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedFileType, ext, strings.Join(allowedExtensions(), ", "))
	}
	if header.Size > s.cfg.MaxUploadBytes {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, header.Size, s.cfg.MaxUploadBytes)
	}
	return ext, nil
}

// ExtractText reads the text of an uploaded file without storing it.
func (s *DocService) ExtractText(ctx context.Context, file multipart.File, header *multipart.FileHeader) (string, error) {
	ext, err := s.checkUpload(header)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp("", "examgen-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(path)

	if _, _, err := writeHashed(path, file); err != nil {
		return "", err
	}
	raw, err := s.loader.Load(ctx, path)
	if err != nil {
		return "", err
	}
	return CleanText(raw), nil
}

// StoredText reads the cleaned text of an uploaded doc.
func (s *DocService) StoredText(ctx context.Context, id uuid.UUID) (string, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	raw, err := s.loader.Load(ctx, doc.FilePath)
	if err != nil {
		return "", err
	}
	return CleanText(raw), nil
}

// OpenFile returns a doc and checks that its stored file is still on disk.
func (s *DocService) OpenFile(ctx context.Context, id uuid.UUID) (*model.Doc, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(doc.FilePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Str("doc_id", id.String()).Msg("Doc file missing on disk")
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("stat doc file: %w", err)
	}
	return doc, nil
}

func writeHashed(path string, src io.Reader) (string, int64, error) {
	dst, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(dst, h), src)
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func allowedExtensions() []string {
	exts := make([]string, 0, len(allowedDocTypes))
	for e := range allowedDocTypes {
		exts = append(exts, e)
	}
	slices.Sort(exts)
	return exts
}

// Get retrieves one doc.
func (s *DocService) Get(ctx context.Context, id uuid.UUID) (*model.Doc, error) {
	return s.docRepo.GetByID(ctx, id)
}

// List retrieves an owner's docs with pagination. A non-empty keyword matches
// file names case-insensitively.
func (s *DocService) List(ctx context.Context, ownerID uuid.UUID, keyword string, page, perPage int) ([]model.DocView, *response.Pagination, error) {
	page, perPage = response.NormalizePage(page, perPage)

	docs, total, err := s.docRepo.ListPaginated(ctx, ownerID, strings.TrimSpace(keyword), perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	views := make([]model.DocView, len(docs))
	for i, d := range docs {
		views[i] = d.View()
	}
	return views, response.NewPagination(page, perPage, total), nil
}

// Delete removes a doc, its file and its indexed chunks.
func (s *DocService) Delete(ctx context.Context, id uuid.UUID) error {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	err = s.docRepo.Delete(ctx, id)
	if errors.Is(err, model.ErrStatusMismatch) {
		return ErrDocBusy
	}
	if err != nil {
		return err
	}

	if err := os.Remove(doc.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn().Err(err).Str("doc_id", id.String()).Msg("Doc file removal failed")
	}
	if s.indexer != nil {
		if err := s.indexer.Remove(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("doc_id", id.String()).Msg("Doc chunk removal failed")
		}
	}
	return nil
}

// Parse runs the doc parse pipeline. Summary chunks go to emit as they
// arrive. An error is returned only when the run could not start.
func (s *DocService) Parse(ctx context.Context, docID uuid.UUID, emit func(string) error) (*model.TerminalRecord, error) {
	doc, err := s.docRepo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}

	run, err := s.coordinator.BeginDoc(ctx, docID)
	if err != nil {
		return nil, err
	}
	defer run.Close(ctx)

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.PipelineTimeout)
	defer cancel()

	raw, err := s.loader.Load(runCtx, doc.FilePath)
	if err != nil {
		run.Fail(ctx, err)
		return generation.FailureRecord(run.Ref, err), nil
	}
	text := CleanText(raw)

	res, err := s.streamer.Run(runCtx, SummaryPrompt(text), run.Ref, emit)
	if err != nil {
		run.Fail(ctx, err)
		return generation.FailureRecord(run.Ref, err), nil
	}

	deadline, _ := runCtx.Deadline()
	postCtx, postCancel := context.WithDeadline(context.WithoutCancel(ctx), deadline)
	defer postCancel()

	summary := ParseDocSummary(res.Text, text)
	if s.indexer != nil {
		n, err := s.indexer.Index(postCtx, doc.ID, doc.OwnerID, text)
		if err != nil {
			run.Fail(ctx, err)
			return generation.FailureRecord(run.Ref, err), nil
		}
		summary.ChunkCount = n
	}

	if err := run.CommitDoc(ctx, summary); err != nil {
		return generation.FailureRecord(run.Ref, err), nil
	}

	return &model.TerminalRecord{
		ResourceID: doc.ID,
		Kind:       model.ResourceKindDoc,
		Status:     model.StatusDone,
		Usage:      res.Usage,
	}, nil
}

// SummaryPrompt asks for the structured doc summary.
func SummaryPrompt(text string) string {
	return `Read the document below and return its structured description as JSON. Return only the JSON object.

Fields:
- school: school or institution name, or an empty string
- major: major or field of study, or an empty string
- course: course name, or an empty string
- knowledgePoints: array of the core knowledge points in the document, or []
- summary: a summary of the main content in at most 200 words

Document:
` + generation.TruncateRunes(text, summaryInputRunes)
}

// ParseDocSummary reads the model reply. An unreadable reply falls back to a
// prefix of the document as the summary.
func ParseDocSummary(reply, text string) *model.DocSummary {
	var sum model.DocSummary
	if err := llm.DecodeJSON("summarize doc", reply, '{', '}', &sum); err != nil {
		return &model.DocSummary{
			KnowledgePoints: []string{},
			Summary:         generation.TruncateRunes(text, summaryFallbackRunes),
		}
	}

	sum.School = strings.TrimSpace(sum.School)
	sum.Major = strings.TrimSpace(sum.Major)
	sum.Course = strings.TrimSpace(sum.Course)
	sum.Summary = strings.TrimSpace(sum.Summary)
	points := make([]string, 0, len(sum.KnowledgePoints))
	for _, p := range sum.KnowledgePoints {
		if p = strings.TrimSpace(p); p != "" && len(points) < maxDocKnowledgePts {
			points = append(points, p)
		}
	}
	sum.KnowledgePoints = points
	return &sum
}
