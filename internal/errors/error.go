package errors

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
)

// ErrorCode enum for machine-readable errors
type ErrorCode string

const (
	ErrUnauthenticated ErrorCode = "UNAUTHENTICATED" // Missing bearer token
	ErrInvalidToken    ErrorCode = "INVALID_TOKEN"   // Bad signature or expired
	ErrForbidden       ErrorCode = "FORBIDDEN"       // Authenticated but not admin
	ErrValidation      ErrorCode = "VALIDATION"      // Schema violations, surfaced per field
	ErrNotFound        ErrorCode = "NOT_FOUND"
	ErrFileNotFound    ErrorCode = "FILE_NOT_FOUND" // Disk-mode upload path missing
	ErrUploadFailed    ErrorCode = "UPLOAD_FAILED"  // Remote media store rejected us
	ErrConflict        ErrorCode = "CONFLICT"
	ErrInternal        ErrorCode = "INTERNAL" // DB died, NATS down
)

// AppError carries the "User View" and the "System View"
type AppError struct {
	Code     ErrorCode // Machine code (for client logic)
	Message  string    // Safe user-facing message
	Fields   []string  // Per-field messages, set only for ErrValidation
	Internal error     // Original error (DB error, etc) - NEVER show to user
	Stack    string    // Stack trace for audit
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New factory to capture stack trace automatically
func New(code ErrorCode, msg string, internal error) *AppError {
	return &AppError{
		Code:     code,
		Message:  msg,
		Internal: internal,
		Stack:    string(debug.Stack()),
	}
}

// Validation wraps a list of per-field messages. The HTTP body for these is
// {"errors": [...]} rather than a single message.
func Validation(fields []string) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: "Validation failed",
		Fields:  fields,
		Stack:   string(debug.Stack()),
	}
}

// StatusFor maps our error codes onto HTTP statuses.
func StatusFor(code ErrorCode) int {
	switch code {
	case ErrValidation, ErrFileNotFound:
		return http.StatusBadRequest
	case ErrUnauthenticated, ErrInvalidToken:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetReqID(r.Context())

	// 1. Unwrap the AppError
	var appErr *AppError
	if customErr, ok := err.(*AppError); ok {
		appErr = customErr
	} else {
		// A generic Go error (e.g. from a library) is always an internal failure.
		// The raw message goes out as-is: this is an internal admin-style API.
		appErr = New(ErrInternal, err.Error(), err)
	}

	status := StatusFor(appErr.Code)

	// 2. LOGGING (Audit Strategy)
	logFields := []any{
		"req_id", reqID,
		"method", r.Method,
		"path", r.URL.Path,
		"code", appErr.Code,
		"user_msg", appErr.Message,
	}

	if status == http.StatusInternalServerError {
		// For 500s: Log EVERYTHING (Internal error + Stack trace)
		logFields = append(logFields, "internal_err", appErr.Internal, "stack", appErr.Stack)
		slog.Error("Internal Server Error", logFields...)
	} else {
		if appErr.Internal != nil {
			logFields = append(logFields, "internal_details", appErr.Internal)
		}
		slog.Warn("Request Failed", logFields...)
	}

	// 3. JSON Response. Validation failures carry the full field-message list;
	// everything else is a single error string.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if appErr.Code == ErrValidation {
		json.NewEncoder(w).Encode(map[string]any{
			"errors":     appErr.Fields,
			"request_id": reqID,
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{
		"error":      appErr.Message,
		"request_id": reqID,
	})
}
