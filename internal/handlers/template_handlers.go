package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gilkh/livret/internal/database"
	"github.com/gilkh/livret/internal/logging"
)

// ListTemplatesHandler returns every template without its pages
func (h *Handlers) ListTemplatesHandler(c *gin.Context) {
	list, err := h.Templates.List()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": list})
}

// GetTemplateHandler returns a template with its version history
func (h *Handlers) GetTemplateHandler(c *gin.Context) {
	tpl, err := h.Templates.GetWithHistory(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

// bindTemplate decodes and validates a template body. It writes the
// response itself when the input is rejected.
func (h *Handlers) bindTemplate(c *gin.Context) (database.TemplateInput, bool) {
	var in database.TemplateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return in, false
	}
	if h.Validator != nil {
		_, result := h.Validator.ValidateJSON(in.Pages)
		if !result.Valid {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":      "invalid_template",
				"message":    result.Message,
				"validation": result,
			})
			return in, false
		}
	}
	return in, true
}

// CreateTemplateHandler stores a new template at version 1
func (h *Handlers) CreateTemplateHandler(c *gin.Context) {
	in, ok := h.bindTemplate(c)
	if !ok {
		return
	}
	tpl, err := h.Templates.Create(in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

// UpdateTemplateHandler replaces the layout and bumps the version
func (h *Handlers) UpdateTemplateHandler(c *gin.Context) {
	in, ok := h.bindTemplate(c)
	if !ok {
		return
	}
	tpl, err := h.Templates.Update(c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

// SetExportPasswordHandler sets or clears the template's export password
func (h *Handlers) SetExportPasswordHandler(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.Templates.SetExportPassword(c.Param("id"), req.Password); err != nil {
		respondError(c, err)
		return
	}
	logging.InfoWithComponent(logging.ComponentTemplates, "Export password updated", "template_id", c.Param("id"), "enabled", req.Password != "")
	c.Status(http.StatusNoContent)
}

// ValidateTemplateHandler checks a pages array or template document
// without storing it.
func (h *Handlers) ValidateTemplateHandler(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, err)
		return
	}
	_, result := h.Validator.ValidateJSON(body)
	c.JSON(http.StatusOK, result)
}
