package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gilkh/livret/internal/auth"
	"github.com/gilkh/livret/internal/database"
	"github.com/gilkh/livret/internal/export"
	"github.com/gilkh/livret/internal/logging"
	"github.com/gilkh/livret/internal/middleware"
	"github.com/gilkh/livret/internal/pollers"
	"github.com/gilkh/livret/internal/rendering"
	"github.com/gilkh/livret/internal/validation"
	"github.com/gilkh/livret/internal/version"
)

// Handlers holds the services the HTTP routes call into. The write-side
// services are nil when the data source is read-only (mongodb), in which
// case the matching routes are not registered.
type Handlers struct {
	Export     *export.Service
	Batch      *export.BatchWriter
	HTML       *rendering.HTMLRenderer
	Monitor    *rendering.MonitoringService
	Tokens     *auth.Tokens
	Gate       *auth.PasswordGate
	Validator  *validation.TemplateValidator
	Templates  *database.TemplateService
	Assign     *database.AssignmentService
	Signatures *database.SignatureService
	Promotions *database.PromotionService

	// ExportLimiter throttles single-PDF exports per client IP when set.
	ExportLimiter *middleware.KeyedLimiter
	// Jobs are the background jobs reported by the health route.
	Jobs *pollers.Manager
}

// ReadOnly reports whether only export routes can be served.
func (h *Handlers) ReadOnly() bool {
	return h.Templates == nil || h.Assign == nil
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{export.ErrMissingTemplateID, http.StatusBadRequest, "missing_template_id"},
	{export.ErrTemplateNotFound, http.StatusNotFound, "template_not_found"},
	{export.ErrStudentNotFound, http.StatusNotFound, "student_not_found"},
	{export.ErrAssignmentNotFound, http.StatusNotFound, "assignment_not_found"},
	{auth.ErrInvalidPassword, http.StatusUnauthorized, "invalid_password"},
	{auth.ErrTooManyAttempts, http.StatusTooManyRequests, "too_many_attempts"},
	{database.ErrAlreadySigned, http.StatusConflict, "already_signed"},
	{database.ErrNotSigned, http.StatusNotFound, "not_signed"},
	{database.ErrInvalidPayload, http.StatusBadRequest, "invalid_payload"},
	{database.ErrNotFound, http.StatusNotFound, "not_found"},
	{export.ErrBackendUnavailable, http.StatusInternalServerError, "backend_unavailable"},
	{export.ErrEmptyDocument, http.StatusInternalServerError, "empty_document"},
}

// errorStatus maps err to an HTTP status and a machine-readable code.
func errorStatus(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func respondError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithComponent(logging.ComponentAPI, "Request failed", "path", c.FullPath(), "error", err)
	} else {
		logging.DebugWithComponent(logging.ComponentAPI, "Request rejected", "path", c.FullPath(), "code", code, "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
}

// VersionHandler returns build information
func VersionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}

type healthResponse struct {
	*rendering.HealthStatus
	Jobs []pollers.Status `json:"jobs,omitempty"`
}

// HealthHandler reports back end, browser and background job health. A
// failing job degrades an otherwise healthy status.
func (h *Handlers) HealthHandler(c *gin.Context) {
	resp := healthResponse{HealthStatus: h.Monitor.GetHealthStatus(c.Request.Context())}
	if h.Jobs != nil {
		resp.Jobs = h.Jobs.Statuses()
	}
	for _, job := range resp.Jobs {
		if !job.Failing() {
			continue
		}
		if resp.Status == "healthy" {
			resp.Status = "degraded"
		}
		resp.Recommendations = append(resp.Recommendations, "Job "+job.Name+" is failing: "+job.LastError)
	}

	code := http.StatusOK
	if resp.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}
