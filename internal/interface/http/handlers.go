package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alem-hub/alem-academy/internal/application/command"
	"github.com/alem-hub/alem-academy/internal/application/query"
	"github.com/alem-hub/alem-academy/internal/domain/progress"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
	"github.com/alem-hub/alem-academy/internal/interface/http/handlers"
	"github.com/alem-hub/alem-academy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"name":    "Alem Academy API",
		"version": s.config.Version,
		"endpoints": gin.H{
			"health":   "/health",
			"progress": "/api/v1/courses/{courseId}/progress",
			"toggle":   "/api/v1/items/{itemId}/completion",
			"verify":   "/api/v1/certificates/verify/{code}",
		},
	})
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	status := s.deps.HealthChecker.Check(c.Request.Context())
	if status.Version == "" {
		status.Version = s.config.Version
	}
	if !status.Healthy {
		writeJSON(c, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(c, http.StatusOK, status)
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(c *gin.Context) {
	status := s.deps.HealthChecker.Check(c.Request.Context())
	if !status.Ready {
		writeJSON(c, http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"reason": status.Message,
		})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT & PROGRESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// enrollmentDTO is the wire form of an enrollment.
type enrollmentDTO struct {
	ID              string    `json:"id"`
	CourseID        string    `json:"course_id"`
	ProgressPercent int       `json:"progress_percent"`
	Status          string    `json:"status"`
	EnrolledAt      time.Time `json:"enrolled_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func newEnrollmentDTO(e *progress.Enrollment) enrollmentDTO {
	return enrollmentDTO{
		ID:              e.ID,
		CourseID:        e.CourseID,
		ProgressPercent: e.ProgressPercent.Int(),
		Status:          string(e.Status),
		EnrolledAt:      e.EnrolledAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

// handleEnroll handles POST /api/v1/courses/:courseId/enrollment
func (s *Server) handleEnroll(c *gin.Context) {
	if s.deps.EnrollHandler == nil {
		writeJSONError(c, http.StatusNotImplemented, "not_implemented", "Enrollment handler not configured")
		return
	}
	learnerID, _ := handlers.LearnerFrom(c)

	result, err := s.deps.EnrollHandler.Handle(c.Request.Context(), command.EnrollCommand{
		LearnerID:     learnerID.String(),
		CourseID:      c.Param("courseId"),
		CorrelationID: handlers.RequestIDFrom(c),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(c, status, gin.H{
		"enrollment": newEnrollmentDTO(result.Enrollment),
		"created":    result.Created,
	})
}

// handleGetProgress handles GET /api/v1/courses/:courseId/progress
func (s *Server) handleGetProgress(c *gin.Context) {
	if s.deps.GetProgressHandler == nil {
		writeJSONError(c, http.StatusNotImplemented, "not_implemented", "Progress handler not configured")
		return
	}
	learnerID, _ := handlers.LearnerFrom(c)

	result, err := s.deps.GetProgressHandler.Handle(c.Request.Context(), query.GetProgressQuery{
		LearnerID: learnerID.String(),
		CourseID:  c.Param("courseId"),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, result)
}

// handleGetCourseOutline handles GET /api/v1/courses/:courseId/outline
func (s *Server) handleGetCourseOutline(c *gin.Context) {
	if s.deps.GetCourseOutlineHandler == nil {
		writeJSONError(c, http.StatusNotImplemented, "not_implemented", "Outline handler not configured")
		return
	}
	learnerID, _ := handlers.LearnerFrom(c)

	result, err := s.deps.GetCourseOutlineHandler.Handle(c.Request.Context(), query.GetCourseOutlineQuery{
		LearnerID: learnerID.String(),
		CourseID:  c.Param("courseId"),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ITEM HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetItemNavigation handles GET /api/v1/items/:itemId
func (s *Server) handleGetItemNavigation(c *gin.Context) {
	if s.deps.GetItemNavigationHandler == nil {
		writeJSONError(c, http.StatusNotImplemented, "not_implemented", "Item handler not configured")
		return
	}
	learnerID, _ := handlers.LearnerFrom(c)

	result, err := s.deps.GetItemNavigationHandler.Handle(c.Request.Context(), query.GetItemNavigationQuery{
		LearnerID: learnerID.String(),
		ItemID:    c.Param("itemId"),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, result)
}

// toggleRequest is the body of PUT /items/:itemId/completion. Completed is a
// pointer so a missing field is rejected instead of read as false.
type toggleRequest struct {
	Completed *bool `json:"completed" binding:"required"`
}

// completionDTO is the wire form of a completion record.
type completionDTO struct {
	ItemID    string     `json:"item_id"`
	Completed bool       `json:"completed"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// handleToggleCompletion handles PUT /api/v1/items/:itemId/completion
func (s *Server) handleToggleCompletion(c *gin.Context) {
	if s.deps.ToggleCompletionHandler == nil {
		writeJSONError(c, http.StatusNotImplemented, "not_implemented", "Toggle handler not configured")
		return
	}
	learnerID, _ := handlers.LearnerFrom(c)

	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSONError(c, http.StatusBadRequest, "invalid_request", `Body must be {"completed": true|false}`)
		return
	}

	result, err := s.deps.ToggleCompletionHandler.Handle(c.Request.Context(), command.ToggleCompletionCommand{
		LearnerID:     learnerID.String(),
		ItemID:        c.Param("itemId"),
		Completed:     *req.Completed,
		CorrelationID: handlers.RequestIDFrom(c),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}

	record := completionDTO{ItemID: result.Record.ItemID, Completed: result.Record.Completed}
	if !result.Record.UpdatedAt.IsZero() {
		t := result.Record.UpdatedAt
		record.UpdatedAt = &t
	}

	body := gin.H{
		"enrollment":         newEnrollmentDTO(result.Enrollment),
		"record":             record,
		"changed":            result.Changed,
		"certificate_issued": result.CertificateIssued,
	}
	if result.Certificate != nil {
		body["certificate_code"] = result.Certificate.Code
	}
	writeJSON(c, http.StatusOK, body)
}

// ══════════════════════════════════════════════════════════════════════════════
// CERTIFICATE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetCertificate handles GET /api/v1/courses/:courseId/certificate.
// A learner who has not completed the course gets 200 with null data.
func (s *Server) handleGetCertificate(c *gin.Context) {
	if s.deps.GetCertificateHandler == nil {
		writeJSONError(c, http.StatusNotImplemented, "not_implemented", "Certificate handler not configured")
		return
	}
	learnerID, _ := handlers.LearnerFrom(c)

	result, err := s.deps.GetCertificateHandler.Handle(c.Request.Context(), query.GetCertificateQuery{
		LearnerID:     learnerID.String(),
		CourseID:      c.Param("courseId"),
		CorrelationID: handlers.RequestIDFrom(c),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	if result == nil {
		writeJSON(c, http.StatusOK, nil)
		return
	}
	writeJSON(c, http.StatusOK, result)
}

// handleVerifyCertificate handles GET /api/v1/certificates/verify/:code
func (s *Server) handleVerifyCertificate(c *gin.Context) {
	if s.deps.VerifyCertificateHandler == nil {
		writeJSONError(c, http.StatusNotImplemented, "not_implemented", "Verification handler not configured")
		return
	}

	result, err := s.deps.VerifyCertificateHandler.Handle(c.Request.Context(), query.VerifyCertificateQuery{
		Code: c.Param("code"),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps domain error kinds to HTTP statuses. NotEnrolled is
// checked before NotFound because a missing enrollment wraps both.
func (s *Server) writeDomainError(c *gin.Context, err error) {
	log := logger.FromContext(c.Request.Context())

	switch {
	case errors.Is(err, shared.ErrMalformedCode):
		writeJSONError(c, http.StatusBadRequest, "malformed_code", "Certificate code is malformed")
	case shared.IsValidation(err):
		writeJSONError(c, http.StatusBadRequest, "invalid_request", err.Error())
	case shared.IsNotEnrolled(err):
		writeJSONError(c, http.StatusForbidden, "not_enrolled", "Learner is not enrolled in the course")
	case shared.IsNotFound(err):
		writeJSONError(c, http.StatusNotFound, "not_found", notFoundMessage(err))
	case shared.IsConflict(err):
		writeJSONError(c, http.StatusConflict, "conflict", "Concurrent update, please retry")
	case shared.IsInvalidState(err):
		log.Error("invariant breach", logger.Err(err), logger.String("path", c.FullPath()))
		writeJSONError(c, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
	case errors.Is(err, shared.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		writeJSONError(c, http.StatusServiceUnavailable, "timeout", "Request timed out")
	default:
		log.Error("request failed", logger.Err(err), logger.String("path", c.FullPath()))
		writeJSONError(c, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, shared.ErrItemNotFound):
		return "Content item not found"
	case errors.Is(err, shared.ErrCourseNotFound):
		return "Course not found"
	case errors.Is(err, shared.ErrCertificateNotFound):
		return "Certificate not found"
	default:
		return "Resource not found"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// writeJSON writes a success or failure envelope around data.
func writeJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, JSONResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta: &ResponseMeta{
			Timestamp: time.Now().UTC(),
			Version:   "v1",
		},
		RequestID: handlers.RequestIDFrom(c),
	})
}

// writeJSONError writes an error envelope.
func writeJSONError(c *gin.Context, status int, code, message string) {
	c.JSON(status, JSONResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Meta: &ResponseMeta{
			Timestamp: time.Now().UTC(),
		},
		RequestID: handlers.RequestIDFrom(c),
	})
}

// abortJSON writes an error envelope and stops the middleware chain.
func abortJSON(c *gin.Context, status int, code, message string) {
	writeJSONError(c, status, code, message)
	c.Abort()
}
