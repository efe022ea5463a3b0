package model

import (
	"github.com/google/uuid"
)

// ResourceKind names the two entities whose pipeline runs are guarded.
type ResourceKind string

const (
	ResourceKindDoc      ResourceKind = "doc"
	ResourceKindExercise ResourceKind = "exercise"
)

// ResourceStatus enumerates the lifecycle states shared by docs and exercises.
type ResourceStatus string

const (
	StatusUploaded   ResourceStatus = "uploaded"
	StatusParsing    ResourceStatus = "parsing"
	StatusGenerating ResourceStatus = "generating"
	StatusDone       ResourceStatus = "done"
	StatusFailed     ResourceStatus = "failed"
)

// ResourceRef identifies one guarded resource.
type ResourceRef struct {
	Kind ResourceKind
	ID   uuid.UUID
}

func (r ResourceRef) String() string {
	return string(r.Kind) + ":" + r.ID.String()
}

// InProgressStatus returns the status a running pipeline holds for kind.
func InProgressStatus(kind ResourceKind) ResourceStatus {
	if kind == ResourceKindDoc {
		return StatusParsing
	}
	return StatusGenerating
}

// IsInProgress reports whether s marks a pipeline run that has not finished.
func (s ResourceStatus) IsInProgress() bool {
	return s == StatusParsing || s == StatusGenerating
}

// IsTerminal reports whether s is done or failed.
func (s ResourceStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// StartableStatuses lists the statuses a new pipeline run may start from.
// Exercises are inserted directly as generating, so none apply.
func StartableStatuses(kind ResourceKind) []ResourceStatus {
	if kind == ResourceKindDoc {
		return []ResourceStatus{StatusUploaded, StatusDone, StatusFailed}
	}
	return nil
}

// PublicStatus maps the stored doc status to the value clients see.
func PublicStatus(s ResourceStatus) string {
	if s == StatusDone {
		return "ready"
	}
	return string(s)
}
