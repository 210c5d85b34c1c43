package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gilkh/livret/internal/auth"
	"github.com/gilkh/livret/internal/database"
	"github.com/gilkh/livret/internal/export"
	"github.com/gilkh/livret/internal/logging"
)

// maxBatchSize bounds one ZIP request.
const maxBatchSize = 500

func exportPassword(c *gin.Context) string {
	if p := c.Query("password"); p != "" {
		return p
	}
	return c.GetHeader("X-Export-Password")
}

// authorizeExport lets through callers with an API token, or callers that
// know the template's export password.
func (h *Handlers) authorizeExport(c *gin.Context, load func() (*database.Template, error)) bool {
	if _, ok := auth.CurrentClaims(c); ok {
		return true
	}
	password := exportPassword(c)
	if password == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Authentication or export password required"})
		return false
	}

	tpl, err := load()
	if err != nil {
		respondError(c, err)
		return false
	}

	gate := h.Gate
	if gate == nil {
		gate = auth.NewPasswordGate(nil)
	}
	if err := gate.Check(c.ClientIP(), tpl.ExportPasswordHash, password); err != nil {
		logging.WarnWithComponent(logging.ComponentAuth, "Export password rejected", "template_id", tpl.ID, "ip", c.ClientIP(), "error", err)
		respondError(c, err)
		return false
	}
	return true
}

func sendPDF(c *gin.Context, doc *export.Document) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, doc.FileName))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/pdf", doc.Data)
}

// ExportStudentPDF renders a student's assignment of ?templateId=
func (h *Handlers) ExportStudentPDF(c *gin.Context) {
	studentID := c.Param("studentId")
	templateID := strings.TrimSpace(c.Query("templateId"))
	if templateID == "" {
		respondError(c, export.ErrMissingTemplateID)
		return
	}

	ctx := c.Request.Context()
	if !h.authorizeExport(c, func() (*database.Template, error) { return h.Export.Template(ctx, templateID) }) {
		return
	}

	doc, err := h.Export.RenderForStudent(ctx, studentID, templateID, c.Query("backend"))
	if err != nil {
		respondError(c, err)
		return
	}
	sendPDF(c, doc)
}

// ExportAssignmentPDF renders one assignment by id
func (h *Handlers) ExportAssignmentPDF(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()
	if !h.authorizeExport(c, func() (*database.Template, error) { return h.Export.TemplateForAssignment(ctx, id) }) {
		return
	}

	doc, err := h.Export.RenderAssignment(ctx, id, c.Query("backend"))
	if err != nil {
		respondError(c, err)
		return
	}
	sendPDF(c, doc)
}

type batchRequest struct {
	AssignmentIDs []string `json:"assignmentIds" binding:"required,min=1,dive,required"`
	Backend       string   `json:"backend" binding:"omitempty,oneof=vector raster"`
}

// ExportBatch streams a ZIP of PDFs. The back end is checked before the
// first byte so launch failures still produce a JSON error.
func (h *Handlers) ExportBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if len(req.AssignmentIDs) > maxBatchSize {
		badRequest(c, fmt.Errorf("at most %d assignments per batch", maxBatchSize))
		return
	}

	ctx := c.Request.Context()
	backend, err := h.Batch.Prepare(ctx, req.Backend)
	if err != nil {
		respondError(c, err)
		return
	}

	name := fmt.Sprintf("carnets-%s.zip", time.Now().Format("20060102-150405"))
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)

	result, err := h.Batch.Write(ctx, c.Writer, req.AssignmentIDs, backend)
	if err != nil {
		logging.WarnWithComponent(logging.ComponentBatch, "Batch stream aborted", "error", err)
		c.Abort()
		return
	}
	logging.InfoWithComponent(logging.ComponentBatch, "Batch streamed",
		"batch_id", result.ID, "total", result.Total, "failed", result.Failed)
}

// RenderPageHandler serves the HTML page the raster back end screenshots.
// Access needs a short-lived render token for this assignment.
func (h *Handlers) RenderPageHandler(c *gin.Context) {
	id := c.Param("id")
	if err := h.Tokens.VerifyRender(c.Query("token"), id); err != nil {
		logging.WarnWithComponent(logging.ComponentAuth, "Render page token rejected", "assignment_id", id, "ip", c.ClientIP(), "error", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Invalid render token"})
		return
	}

	ctx := c.Request.Context()
	job, err := h.Export.LoadJob(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := h.HTML.Render(ctx, job.Render, &buf); err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
