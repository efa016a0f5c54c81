package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/animastudio/aihub/internal/services"
	"github.com/animastudio/aihub/pkg/response"
)

// CacheHandler exposes response cache administration.
type CacheHandler struct {
	cache *services.ResponseCacheService
}

func NewCacheHandler(cache *services.ResponseCacheService) *CacheHandler {
	return &CacheHandler{cache: cache}
}

// Stats handles GET /api/cache/stats.
func (h *CacheHandler) Stats(c *gin.Context) {
	stats, err := h.cache.Stats()
	if err != nil {
		response.ServerError(c, "failed to load cache stats")
		return
	}
	response.Success(c, stats)
}

// Clear handles DELETE /api/cache.
func (h *CacheHandler) Clear(c *gin.Context) {
	if err := h.cache.Clear(); err != nil {
		response.ServerError(c, "failed to clear cache")
		return
	}
	response.Success(c, gin.H{"cleared": true})
}
