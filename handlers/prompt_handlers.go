package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meepleai/meepleai-api/models"
	"github.com/meepleai/meepleai-api/services"
)

// PromptHandlers exposes the versioned prompt template endpoints.
type PromptHandlers struct {
	promptService services.PromptService
}

func NewPromptHandlers(promptService services.PromptService) *PromptHandlers {
	return &PromptHandlers{promptService: promptService}
}

// CreateTemplate handles POST /admin/prompts.
func (h *PromptHandlers) CreateTemplate(c *gin.Context) {
	var req models.CreatePromptTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.Name == "" || req.InitialContent == "" {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "name and initialContent are required")
		return
	}

	uid, ok := userID(c)
	if !ok {
		return
	}

	detail, err := h.promptService.CreateTemplate(c.Request.Context(), req, uid)
	if err != nil {
		h.writePromptError(c, err)
		return
	}
	c.JSON(http.StatusCreated, detail)
}

// ListTemplates handles GET /admin/prompts.
func (h *PromptHandlers) ListTemplates(c *gin.Context) {
	templates, err := h.promptService.ListTemplates(c.Request.Context(), c.Query("category"))
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "INTERNAL", "failed to list templates")
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

// GetTemplate handles GET /admin/prompts/:templateId.
func (h *PromptHandlers) GetTemplate(c *gin.Context) {
	detail, err := h.promptService.GetTemplate(c.Request.Context(), c.Param("templateId"))
	if err != nil {
		h.writePromptError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// CreateVersion handles POST /admin/prompts/:templateId/versions.
func (h *PromptHandlers) CreateVersion(c *gin.Context) {
	var req models.CreatePromptVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.Content == "" {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "content is required")
		return
	}

	uid, ok := userID(c)
	if !ok {
		return
	}

	version, err := h.promptService.CreateVersion(c.Request.Context(), c.Param("templateId"), req, uid)
	if err != nil {
		h.writePromptError(c, err)
		return
	}
	c.JSON(http.StatusCreated, version)
}

// ListVersions handles GET /admin/prompts/:templateId/versions.
func (h *PromptHandlers) ListVersions(c *gin.Context) {
	versions, err := h.promptService.ListVersions(c.Request.Context(), c.Param("templateId"))
	if err != nil {
		h.writePromptError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

// ActivateVersion handles POST /admin/prompts/:templateId/versions/:versionId/activate.
func (h *PromptHandlers) ActivateVersion(c *gin.Context) {
	var req models.ActivatePromptVersionRequest
	// Body is optional; an empty body activates without a reason.
	_ = c.ShouldBindJSON(&req)

	uid, ok := userID(c)
	if !ok {
		return
	}

	err := h.promptService.ActivateVersion(c.Request.Context(), c.Param("templateId"), c.Param("versionId"), uid, req.Reason)
	if err != nil {
		h.writePromptError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListAudit handles GET /admin/prompts/:templateId/audit.
func (h *PromptHandlers) ListAudit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	audits, err := h.promptService.ListAudit(c.Request.Context(), c.Param("templateId"), limit)
	if err != nil {
		h.writePromptError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit": audits})
}

func (h *PromptHandlers) writePromptError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrTemplateNotFound):
		errorJSON(c, http.StatusNotFound, "NOT_FOUND", "prompt template not found")
	case errors.Is(err, services.ErrVersionNotFound):
		errorJSON(c, http.StatusNotFound, "NOT_FOUND", "prompt version not found")
	case errors.Is(err, services.ErrDuplicateTemplateName):
		errorJSON(c, http.StatusConflict, "DUPLICATE_NAME", "a template with this name already exists")
	case errors.Is(err, services.ErrPromptTooLarge):
		errorJSON(c, http.StatusRequestEntityTooLarge, "CONTENT_TOO_LARGE", "prompt content exceeds the size limit")
	default:
		errorJSON(c, http.StatusInternalServerError, "INTERNAL", "prompt operation failed")
	}
}
