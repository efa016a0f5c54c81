package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/animastudio/aihub/internal/services"
	"github.com/animastudio/aihub/pkg/response"
)

// UsageHandler exposes the usage meter and dispatch audit aggregates.
type UsageHandler struct {
	usage *services.UsageMeterService
}

func NewUsageHandler(usage *services.UsageMeterService) *UsageHandler {
	return &UsageHandler{usage: usage}
}

// Summary handles GET /api/usage/summary.
func (h *UsageHandler) Summary(c *gin.Context) {
	summary, err := h.usage.Summary()
	if err != nil {
		response.ServerError(c, "failed to load usage summary")
		return
	}
	response.Success(c, summary)
}

// Trend handles GET /api/usage/trend?days=30.
func (h *UsageHandler) Trend(c *gin.Context) {
	days := 30
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 365 {
			response.BadRequest(c, "days must be between 1 and 365")
			return
		}
		days = n
	}

	trend, err := h.usage.Trend(days)
	if err != nil {
		response.ServerError(c, "failed to load usage trend")
		return
	}
	response.Success(c, gin.H{"days": days, "trend": trend})
}

// ExportRequest is the request body for POST /api/usage/export.
type ExportRequest struct {
	Path string `json:"path" binding:"required"`
}

// Export handles POST /api/usage/export.
func (h *UsageHandler) Export(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "path is required")
		return
	}

	if err := h.usage.ExportReport(req.Path); err != nil {
		response.ServerError(c, "failed to export usage report")
		return
	}
	response.Success(c, gin.H{"path": req.Path})
}

// Reset handles DELETE /api/usage.
func (h *UsageHandler) Reset(c *gin.Context) {
	if err := h.usage.Reset(); err != nil {
		response.ServerError(c, "failed to reset usage counters")
		return
	}
	response.Success(c, gin.H{"reset": true})
}
