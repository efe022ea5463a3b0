package model

import (
	"time"

	"github.com/google/uuid"
)

// Doc is an uploaded study document.
type Doc struct {
	ID              uuid.UUID      `json:"id"`
	OwnerID         uuid.UUID      `json:"owner_id"`
	FileName        string         `json:"file_name"`
	FilePath        string         `json:"-"`
	FileType        string         `json:"file_type"`
	FileSize        int64          `json:"file_size"`
	FileHash        string         `json:"file_hash"`
	Status          ResourceStatus `json:"-"`
	School          string         `json:"school"`
	Major           string         `json:"major"`
	Course          string         `json:"course"`
	KnowledgePoints []string       `json:"knowledge_points"`
	Summary         string         `json:"summary"`
	ChunkCount      int            `json:"chunk_count"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// DocView adds the client-facing status to a Doc.
type DocView struct {
	Doc
	Status string `json:"status"`
}

// View returns the client representation of d.
func (d Doc) View() DocView {
	return DocView{Doc: d, Status: PublicStatus(d.Status)}
}

// DocSummary is the structured output of a doc parse run.
type DocSummary struct {
	School          string   `json:"school"`
	Major           string   `json:"major"`
	Course          string   `json:"course"`
	KnowledgePoints []string `json:"knowledgePoints"`
	Summary         string   `json:"summary"`
	ChunkCount      int      `json:"-"`
}
