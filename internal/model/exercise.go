package model

import (
	"time"

	"github.com/google/uuid"
)

// Exercise is a generated set of questions.
type Exercise struct {
	ID            uuid.UUID      `json:"id"`
	OwnerID       uuid.UUID      `json:"owner_id"`
	Title         string         `json:"title"`
	QuestionType  QuestionType   `json:"question_type"`
	Difficulty    Difficulty     `json:"difficulty"`
	QuestionCount int            `json:"question_count"`
	Status        ResourceStatus `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// ExerciseFilter narrows exercise listings.
type ExerciseFilter struct {
	OwnerID      uuid.UUID
	Keyword      string
	Difficulty   Difficulty
	QuestionType QuestionType
}

// GenerateExerciseRequest is the payload for the streaming generation endpoints.
type GenerateExerciseRequest struct {
	Material     string   `json:"material" binding:"required,min=1,max=200000"`
	QuestionType string   `json:"question_type" binding:"required,question_type"`
	Difficulty   string   `json:"difficulty" binding:"required,oneof=easy medium hard"`
	Count        int      `json:"count" binding:"required,min=1,max=50"`
	Title        string   `json:"title" binding:"omitempty,max=255"`
	KeyPoints    []string `json:"key_points" binding:"omitempty,max=50,dive,max=500"`
	Analyze      bool     `json:"analyze"`
	UseRAG       *bool    `json:"use_rag"`
}

// AnalyzeMaterialRequest is the payload for key point extraction.
type AnalyzeMaterialRequest struct {
	Material     string `json:"material" binding:"required,min=1,max=200000"`
	QuestionType string `json:"question_type" binding:"omitempty,question_type"`
	Difficulty   string `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
	Count        int    `json:"count" binding:"omitempty,min=1,max=50"`
}

// ExerciseDetail is the read model returned after a run has finished.
type ExerciseDetail struct {
	Exercise
	Questions []QuestionDetail `json:"questions"`
}

// QuestionDetail flattens a question and its answer for clients.
type QuestionDetail struct {
	ID            uuid.UUID         `json:"id"`
	QuestionType  string            `json:"question_type"`
	Stem          string            `json:"stem"`
	Options       map[string]string `json:"options"`
	OptionList    []Option          `json:"option_list"`
	OrderNum      int               `json:"order_num"`
	CorrectAnswer string            `json:"correct_answer"`
	Analysis      string            `json:"analysis"`
	NeedsReview   bool              `json:"needs_review"`
}

// Usage reports token consumption of one run.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// TerminalError is the error half of a terminal record.
type TerminalError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TerminalRecord ends every streamed pipeline run.
type TerminalRecord struct {
	ResourceID    uuid.UUID      `json:"resource_id"`
	Kind          ResourceKind   `json:"kind"`
	Status        ResourceStatus `json:"status"`
	QuestionCount int            `json:"question_count,omitempty"`
	FlaggedCount  int            `json:"flagged_count,omitempty"`
	Usage         *Usage         `json:"usage,omitempty"`
	Error         *TerminalError `json:"error,omitempty"`
}

// MaxMaterialRunes bounds the material of generate and analyze requests.
const MaxMaterialRunes = 200000

// AnalyzeFileRequest is the multipart form for analyzing a file. Either a
// "file" part or doc_id of an uploaded doc is required.
type AnalyzeFileRequest struct {
	DocID        string `form:"doc_id" json:"doc_id" binding:"omitempty,uuid"`
	QuestionType string `form:"question_type" json:"question_type" binding:"omitempty,question_type"`
	Difficulty   string `form:"difficulty" json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
	Count        int    `form:"count" json:"count" binding:"omitempty,min=1,max=50"`
}

// FileAnalysis is material read from a file plus its analysis. Content can
// be sent back as the material of a generate request.
type FileAnalysis struct {
	Content        string   `json:"content"`
	Truncated      bool     `json:"truncated"`
	KeyPoints      []string `json:"key_points"`
	SuggestedTitle string   `json:"suggested_title"`
}
