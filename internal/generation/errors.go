package generation

import (
	"errors"
	"fmt"

	"github.com/stemsi/exstem-examgen/internal/examparser"
	"github.com/stemsi/exstem-examgen/internal/lease"
	"github.com/stemsi/exstem-examgen/internal/llm"
	"github.com/stemsi/exstem-examgen/internal/model"
)

// ErrStreamCancelled means the streaming consumer went away mid-run.
var ErrStreamCancelled = errors.New("generation stream cancelled")

// PersistenceError wraps a failed status write or entity batch.
type PersistenceError struct {
	Op       string
	Resource model.ResourceRef
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s (%s): %v", e.Resource, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Terminal record error codes.
const (
	CodeConflict           = "CONFLICT"
	CodeCancelled          = "CANCELLED"
	CodeUpstream           = "UPSTREAM_GENERATION_ERROR"
	CodeFormat             = "GENERATION_FORMAT_ERROR"
	CodeNoQuestions        = "NO_QUESTIONS_FOUND"
	CodePersistence        = "PERSISTENCE_ERROR"
	CodeUnsupportedDocType = "UNSUPPORTED_DOC_TYPE"
	CodeInternal           = "INTERNAL_ERROR"
)

// ErrUnsupportedDocType is returned by document loaders for formats they cannot read.
var ErrUnsupportedDocType = errors.New("unsupported document type")

// ErrorCode classifies err for terminal records.
func ErrorCode(err error) string {
	var (
		ue *llm.UpstreamError
		fe *llm.FormatError
		pe *PersistenceError
	)
	switch {
	case errors.Is(err, lease.ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrStreamCancelled):
		return CodeCancelled
	case errors.Is(err, examparser.ErrNoQuestionsFound):
		return CodeNoQuestions
	case errors.Is(err, ErrUnsupportedDocType):
		return CodeUnsupportedDocType
	case errors.As(err, &pe):
		return CodePersistence
	case errors.As(err, &fe):
		return CodeFormat
	case errors.As(err, &ue):
		return CodeUpstream
	default:
		return CodeInternal
	}
}

func errorMessage(code string) string {
	switch code {
	case CodeConflict:
		return "This resource is already being processed."
	case CodeCancelled:
		return "Generation was cancelled."
	case CodeUpstream:
		return "The generation service failed. Please try again later."
	case CodeFormat:
		return "The generated output could not be read."
	case CodeNoQuestions:
		return "No questions were found in the generated text."
	case CodePersistence:
		return "Saving the result failed."
	case CodeUnsupportedDocType:
		return "This document type cannot be parsed."
	default:
		return "An unexpected error occurred."
	}
}

// FailureRecord builds the terminal record for a failed run.
func FailureRecord(ref model.ResourceRef, err error) *model.TerminalRecord {
	code := ErrorCode(err)
	return &model.TerminalRecord{
		ResourceID: ref.ID,
		Kind:       ref.Kind,
		Status:     model.StatusFailed,
		Error:      &model.TerminalError{Code: code, Message: errorMessage(code)},
	}
}
