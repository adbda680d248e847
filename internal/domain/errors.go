package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorKind classifies pipeline failures so callers can react distinctly.
type ErrorKind int

const (
	KindEmptyInput ErrorKind = iota + 1
	KindSchemaMismatch
	KindModelInvocation
	KindReportGeneration
)

// String returns the kind as used in API responses.
func (k ErrorKind) String() string {
	switch k {
	case KindEmptyInput:
		return "EmptyInput"
	case KindSchemaMismatch:
		return "SchemaMismatch"
	case KindModelInvocation:
		return "ModelInvocationFailure"
	case KindReportGeneration:
		return "ReportGenerationFailure"
	default:
		return "Unknown"
	}
}

// Sentinels for errors.Is matching on the kind of a PipelineError.
var (
	ErrEmptyInput       = &PipelineError{Kind: KindEmptyInput}
	ErrSchemaMismatch   = &PipelineError{Kind: KindSchemaMismatch}
	ErrModelInvocation  = &PipelineError{Kind: KindModelInvocation}
	ErrReportGeneration = &PipelineError{Kind: KindReportGeneration}
)

// EmptyUploadMessage is shown when an uploaded table has no data rows.
const EmptyUploadMessage = "Uploaded CSV file is empty! Please upload a valid CSV."

// PipelineError is a failure of one prediction or report step.
type PipelineError struct {
	Kind   ErrorKind
	Op     string
	Row    int // 1-based data row, 0 when not row specific
	Column string
	Err    error
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op
	}
	if e.Row > 0 {
		msg += fmt.Sprintf(": row %d", e.Row)
	}
	if e.Column != "" {
		msg += fmt.Sprintf(": column %q", e.Column)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a PipelineError sentinel of the same kind.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// UserMessage is the text surfaced to the person who triggered the step.
func (e *PipelineError) UserMessage() string {
	if e.Kind == KindEmptyInput {
		return EmptyUploadMessage
	}
	return "Error processing the file: " + e.Error()
}

// HTTPStatus maps the kind onto a response status.
func (e *PipelineError) HTTPStatus() int {
	switch e.Kind {
	case KindEmptyInput:
		return http.StatusBadRequest
	case KindSchemaMismatch:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// NewPipelineError wraps err with a kind and the failing operation.
func NewPipelineError(kind ErrorKind, op string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

// NewSchemaError reports a cell that does not fit the expected schema.
func NewSchemaError(row int, column string, err error) *PipelineError {
	return &PipelineError{Kind: KindSchemaMismatch, Op: "schema mismatch", Row: row, Column: column, Err: err}
}

// KindOf returns the kind of the first PipelineError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Kind      string    `json:"kind,omitempty"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeEmptyInput      = "EMPTY_INPUT"
	ErrCodeSchemaMismatch  = "SCHEMA_MISMATCH"
	ErrCodeModel           = "MODEL_INVOCATION_ERROR"
	ErrCodeReport          = "REPORT_GENERATION_ERROR"
	ErrCodeDatabase        = "DATABASE_ERROR"
	ErrCodeRateLimit       = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalServer  = "INTERNAL_SERVER_ERROR"
	ErrCodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
)

// CodeForKind returns the API error code of a pipeline error kind.
func CodeForKind(k ErrorKind) string {
	switch k {
	case KindEmptyInput:
		return ErrCodeEmptyInput
	case KindSchemaMismatch:
		return ErrCodeSchemaMismatch
	case KindModelInvocation:
		return ErrCodeModel
	case KindReportGeneration:
		return ErrCodeReport
	default:
		return ErrCodeInternalServer
	}
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
