package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrConflict        ErrCode = "CONFLICT"
	ErrActionForbidden ErrCode = "ACTION_FORBIDDEN"

	// ─── Exercise-specific ─────────────────────────────────────────────
	ErrExerciseNotReady ErrCode = "EXERCISE_NOT_READY"
	ErrExerciseBusy     ErrCode = "EXERCISE_BUSY"
	ErrDocBusy          ErrCode = "DOC_BUSY"

	// ─── Generation ────────────────────────────────────────────────────
	ErrGenerationFormat ErrCode = "GENERATION_FORMAT_ERROR"
	ErrUpstream         ErrCode = "UPSTREAM_GENERATION_ERROR"

	// ─── Media ─────────────────────────────────────────────────────────
	ErrFileRequired    ErrCode = "FILE_REQUIRED"
	ErrUnsupportedFile ErrCode = "UNSUPPORTED_FILE_TYPE"
	ErrFileTooLarge    ErrCode = "FILE_TOO_LARGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "This resource is already being processed."
	case ErrActionForbidden:
		return "This action is not allowed."

	// ─── Exercise-specific ─────────────────────────────────────────────
	case ErrExerciseNotReady:
		return "This exercise has not finished generating."
	case ErrExerciseBusy:
		return "This exercise is still generating and cannot be deleted."
	case ErrDocBusy:
		return "This document is being parsed and cannot be deleted."

	// ─── Generation ────────────────────────────────────────────────────
	case ErrGenerationFormat:
		return "The generated output could not be read."
	case ErrUpstream:
		return "The generation service failed. Please try again later."

	// ─── Media ─────────────────────────────────────────────────────────
	case ErrFileRequired:
		return "A file upload is required."
	case ErrUnsupportedFile:
		return "Unsupported file type."
	case ErrFileTooLarge:
		return "File size exceeds the limit."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
