package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gilkh/livret/internal/auth"
	"github.com/gilkh/livret/internal/database"
)

// CreateAssignmentHandler assigns a template to a student, pinning the
// template's current version
func (h *Handlers) CreateAssignmentHandler(c *gin.Context) {
	var req struct {
		StudentID  string `json:"studentId" binding:"required"`
		TemplateID string `json:"templateId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a, err := h.Assign.Create(req.StudentID, req.TemplateID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// ListStudentAssignmentsHandler returns a student's assignments
func (h *Handlers) ListStudentAssignmentsHandler(c *gin.Context) {
	list, err := h.Assign.ListForStudent(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": list})
}

// PatchAssignmentDataHandler merges dropdown, toggle and value keys into
// the assignment data
func (h *Handlers) PatchAssignmentDataHandler(c *gin.Context) {
	var patch map[string]json.RawMessage
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	if len(patch) == 0 {
		badRequest(c, errors.New("empty patch"))
		return
	}
	a, err := h.Assign.PatchData(c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// SetCompletionHandler updates the completion flags
func (h *Handlers) SetCompletionHandler(c *gin.Context) {
	var req struct {
		IsCompleted     bool `json:"isCompleted"`
		IsCompletedSem1 bool `json:"isCompletedSem1"`
		IsCompletedSem2 bool `json:"isCompletedSem2"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.Assign.SetCompletion(c.Param("id"), req.IsCompleted, req.IsCompletedSem1, req.IsCompletedSem2); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type signRequest struct {
	SignerID          string `json:"signerId"`
	Type              string `json:"type" binding:"omitempty,oneof=standard end_of_year"`
	Level             string `json:"level"`
	SchoolYearName    string `json:"schoolYearName"`
	SignaturePeriodID string `json:"signaturePeriodId"`
}

// SignHandler signs an assignment. The signer defaults to the caller.
func (h *Handlers) SignHandler(c *gin.Context) {
	var req signRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.SignerID == "" {
		if claims, ok := auth.CurrentClaims(c); ok {
			req.SignerID = claims.Subject
		}
	}
	if req.SignerID == "" {
		badRequest(c, errors.New("signerId is required"))
		return
	}

	sig, err := h.Signatures.Sign(c.Request.Context(), database.SignRequest{
		AssignmentID:      c.Param("id"),
		SignerID:          req.SignerID,
		Type:              req.Type,
		Level:             req.Level,
		SchoolYearName:    req.SchoolYearName,
		SignaturePeriodID: req.SignaturePeriodID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sig)
}

// UnsignHandler removes the signature of the given type
func (h *Handlers) UnsignHandler(c *gin.Context) {
	if err := h.Signatures.Unsign(c.Request.Context(), c.Param("id"), c.Param("type")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListSignaturesHandler returns an assignment's signatures, oldest first
func (h *Handlers) ListSignaturesHandler(c *gin.Context) {
	list, err := h.Signatures.ListForAssignment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signatures": list})
}

// PromoteHandler moves a student to a new level and records the promotion
// on every assignment
func (h *Handlers) PromoteHandler(c *gin.Context) {
	var req database.PromoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.StudentID = c.Param("id")

	record, err := h.Promotions.Promote(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}
