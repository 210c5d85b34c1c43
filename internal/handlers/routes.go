package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/gilkh/livret/internal/middleware"
)

// maxTemplateBody caps template uploads; layouts with inline images can be large.
const maxTemplateBody = 8 << 20

// Register mounts every route on router.
func (h *Handlers) Register(router *gin.Engine) {
	router.GET("/render/assignments/:id", h.RenderPageHandler)

	api := router.Group("/api")
	api.GET("/version", VersionHandler)
	if h.Monitor != nil {
		api.GET("/health", h.HealthHandler)
	}

	exports := api.Group("/export", h.Tokens.OptionalBearer())
	if h.ExportLimiter != nil {
		exports.Use(h.ExportLimiter.RateLimit())
	}
	{
		exports.GET("/students/:studentId/pdf", h.ExportStudentPDF)
		exports.GET("/assignments/:id/pdf", h.ExportAssignmentPDF)
	}

	protected := api.Group("", h.Tokens.RequireBearer())
	protected.POST("/export/batch", h.ExportBatch)
	if h.Validator != nil {
		protected.POST("/templates/validate", middleware.RequestSizeLimit(maxTemplateBody), h.ValidateTemplateHandler)
	}

	if h.ReadOnly() {
		return
	}

	templates := protected.Group("/templates")
	{
		templates.GET("", h.ListTemplatesHandler)
		templates.POST("", middleware.RequestSizeLimit(maxTemplateBody), h.CreateTemplateHandler)
		templates.GET("/:id", h.GetTemplateHandler)
		templates.PUT("/:id", middleware.RequestSizeLimit(maxTemplateBody), h.UpdateTemplateHandler)
		templates.PUT("/:id/export-password", h.SetExportPasswordHandler)
	}

	assignments := protected.Group("/assignments")
	{
		assignments.POST("", h.CreateAssignmentHandler)
		assignments.PATCH("/:id/data", h.PatchAssignmentDataHandler)
		assignments.PATCH("/:id/completion", h.SetCompletionHandler)
		if h.Signatures != nil {
			assignments.GET("/:id/signatures", h.ListSignaturesHandler)
			assignments.POST("/:id/signatures", h.SignHandler)
			assignments.DELETE("/:id/signatures/:type", h.UnsignHandler)
		}
	}

	students := protected.Group("/students")
	{
		students.GET("/:id/assignments", h.ListStudentAssignmentsHandler)
		if h.Promotions != nil {
			students.POST("/:id/promotions", h.PromoteHandler)
		}
	}
}
