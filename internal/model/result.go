package model

import (
	"time"

	"github.com/google/uuid"
)

// Owner is the placeholder single-tenant user every record belongs to.
type Owner struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// SubmitAnswersRequest carries a learner's answers keyed by question ID.
type SubmitAnswersRequest struct {
	Answers map[string]string `json:"answers" binding:"required"`
}

// GradedAnswer is the per-question outcome of a submission.
type GradedAnswer struct {
	QuestionID    uuid.UUID `json:"question_id"`
	Submitted     string    `json:"submitted"`
	CorrectAnswer string    `json:"correct_answer"`
	Correct       bool      `json:"correct"`
	Analysis      string    `json:"analysis,omitempty"`
}

// ExerciseResult is one persisted submission.
type ExerciseResult struct {
	ID           uuid.UUID      `json:"id"`
	ExerciseID   uuid.UUID      `json:"exercise_id"`
	OwnerID      uuid.UUID      `json:"owner_id"`
	Score        int            `json:"score"`
	CorrectCount int            `json:"correct_count"`
	TotalCount   int            `json:"total_count"`
	Details      []GradedAnswer `json:"details"`
	CreatedAt    time.Time      `json:"created_at"`
}
