package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stroke-risk-server/internal/domain"
	"github.com/stroke-risk-server/internal/middleware"
)

// toAPIError maps an error onto its response status and wire form.
func toAPIError(err error, requestID string) (int, *domain.APIError) {
	var (
		pe  *domain.PipelineError
		ve  *domain.ValidationError
		mbe *http.MaxBytesError
	)

	switch {
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge, domain.NewAPIError(
			domain.ErrCodePayloadTooLarge, "Upload is too large", err.Error(), requestID)
	case errors.As(err, &pe):
		apiErr := domain.NewAPIError(domain.CodeForKind(pe.Kind), pe.UserMessage(), pe.Error(), requestID)
		apiErr.Kind = pe.Kind.String()
		return pe.HTTPStatus(), apiErr
	case errors.As(err, &ve):
		return http.StatusBadRequest, domain.NewAPIError(
			domain.ErrCodeValidation, ve.Error(), ve.Field, requestID)
	default:
		return http.StatusInternalServerError, domain.NewAPIError(
			domain.ErrCodeInternalServer, "Internal server error", err.Error(), requestID)
	}
}

// respondError writes err as a JSON error body.
func (s *Server) respondError(c *gin.Context, err error) {
	status, apiErr := toAPIError(err, middleware.GetCorrelationID(c))
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("correlation_id", apiErr.RequestID).Error("Request failed")
	}
	c.AbortWithStatusJSON(status, apiErr)
}

// badRequest writes a 400 for malformed input such as unbindable bodies.
func (s *Server) badRequest(c *gin.Context, message string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, domain.NewAPIError(
		domain.ErrCodeInvalidInput, message, details, middleware.GetCorrelationID(c)))
}

// userMessage is the text shown on the page for a failed step.
func userMessage(err error) string {
	var pe *domain.PipelineError
	if errors.As(err, &pe) {
		return pe.UserMessage()
	}
	return "Error processing the file: " + err.Error()
}
