package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meepleai/meepleai-api/services"
	"github.com/meepleai/meepleai-api/services/impl"
)

// AdminHandlers exposes cache administration endpoints.
type AdminHandlers struct {
	cacheService services.CacheService
	cacheStats   services.CacheStatsService
}

func NewAdminHandlers(cacheService services.CacheService, cacheStats services.CacheStatsService) *AdminHandlers {
	return &AdminHandlers{
		cacheService: cacheService,
		cacheStats:   cacheStats,
	}
}

// CacheStats handles GET /admin/cache/stats.
func (h *AdminHandlers) CacheStats(c *gin.Context) {
	topN, _ := strconv.Atoi(c.DefaultQuery("top", "10"))
	stats, err := h.cacheStats.Stats(c.Request.Context(), c.Query("gameId"), topN)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "INTERNAL", "failed to compute cache stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// InvalidateGameCache handles DELETE /admin/cache/games/:gameId. An optional
// endpoint query parameter narrows the invalidation to one endpoint's keys.
func (h *AdminHandlers) InvalidateGameCache(c *gin.Context) {
	gameID := c.Param("gameId")
	var deleted int64
	var err error
	if endpoint := c.Query("endpoint"); endpoint != "" {
		deleted, err = h.cacheService.DeletePattern(c.Request.Context(), impl.EndpointCachePattern(endpoint, gameID))
	} else {
		deleted, err = h.cacheService.InvalidateGame(c.Request.Context(), gameID)
	}
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "INTERNAL", "failed to invalidate cache")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deletedKeys": deleted})
}

// InvalidateTagCache handles DELETE /admin/cache/tags/:tag.
func (h *AdminHandlers) InvalidateTagCache(c *gin.Context) {
	deleted, err := h.cacheService.InvalidateTag(c.Request.Context(), c.Param("tag"))
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "INTERNAL", "failed to invalidate cache")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deletedKeys": deleted})
}

// InvalidateAllCache handles DELETE /admin/cache.
func (h *AdminHandlers) InvalidateAllCache(c *gin.Context) {
	deleted, err := h.cacheService.DeletePattern(c.Request.Context(), "ai:*")
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "INTERNAL", "failed to invalidate cache")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deletedKeys": deleted})
}
