package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/animastudio/aihub/internal/config"
	"github.com/animastudio/aihub/internal/services"
	"github.com/animastudio/aihub/pkg/logger"
	"github.com/animastudio/aihub/pkg/response"
)

// ConfigHandler applies runtime configuration updates to the dispatch
// services and persists them.
type ConfigHandler struct {
	cfg        *config.Config
	configPath string
	registry   *services.BackendRegistryService
	cache      *services.ResponseCacheService
	usage      *services.UsageMeterService
	dispatcher *services.DispatcherService
}

func NewConfigHandler(cfg *config.Config, configPath string, registry *services.BackendRegistryService, cache *services.ResponseCacheService, usage *services.UsageMeterService, dispatcher *services.DispatcherService) *ConfigHandler {
	return &ConfigHandler{
		cfg:        cfg,
		configPath: configPath,
		registry:   registry,
		cache:      cache,
		usage:      usage,
		dispatcher: dispatcher,
	}
}

// ConfigUpdateRequest carries the updatable dispatch options. Pointer
// fields distinguish "not provided" from zero values.
type ConfigUpdateRequest struct {
	PreferredService *string  `json:"preferred_service"`
	AutoFallback     *bool    `json:"auto_fallback"`
	FallbackOrder    []string `json:"fallback_order"`
	Temperature      *float64 `json:"temperature"`
	MaxTokens        *int     `json:"max_tokens"`
	Timeout          *int     `json:"timeout"`
	EnableCache      *bool    `json:"enable_cache"`
	CacheExpireHours *int     `json:"cache_expire_hours"`
	CacheSizeMB      *int     `json:"cache_size_mb"`
	DailyLimit       *int64   `json:"daily_limit"`
	MonthlyLimit     *int64   `json:"monthly_limit"`
	CostLimit        *float64 `json:"cost_limit"`
}

// Get handles GET /api/config. Credentials are redacted.
func (h *ConfigHandler) Get(c *gin.Context) {
	ai := h.cfg.AI

	backends := make(map[string]gin.H, len(ai.Backends))
	for name, b := range ai.Backends {
		backends[name] = gin.H{
			"model":      b.Model,
			"configured": b.APIKey != "" || b.BaseURL != "",
			"disabled":   b.Disabled,
		}
	}

	response.Success(c, gin.H{
		"preferred_service":  ai.PreferredService,
		"auto_fallback":      ai.AutoFallback,
		"fallback_order":     ai.FallbackOrder,
		"temperature":        ai.Temperature,
		"max_tokens":         ai.MaxTokens,
		"timeout":            ai.Timeout,
		"enable_cache":       ai.EnableCache,
		"cache_expire_hours": ai.CacheExpireHours,
		"cache_size_mb":      ai.CacheSizeMB,
		"daily_limit":        ai.DailyLimit,
		"monthly_limit":      ai.MonthlyLimit,
		"cost_limit":         ai.CostLimit,
		"backends":           backends,
	})
}

// Update handles PUT /api/config. The update is validated, applied to the
// running services and persisted, so new dispatches see it immediately.
func (h *ConfigHandler) Update(c *gin.Context) {
	var req ConfigUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid config update")
		return
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		response.BadRequest(c, "temperature must be between 0 and 2")
		return
	}
	if req.MaxTokens != nil && *req.MaxTokens <= 0 {
		response.BadRequest(c, "max_tokens must be positive")
		return
	}
	if req.Timeout != nil && *req.Timeout <= 0 {
		response.BadRequest(c, "timeout must be positive")
		return
	}
	if req.CacheExpireHours != nil && *req.CacheExpireHours <= 0 {
		response.BadRequest(c, "cache_expire_hours must be positive")
		return
	}
	if req.CacheSizeMB != nil && *req.CacheSizeMB <= 0 {
		response.BadRequest(c, "cache_size_mb must be positive")
		return
	}

	ai := &h.cfg.AI
	if req.PreferredService != nil {
		ai.PreferredService = *req.PreferredService
	}
	if req.AutoFallback != nil {
		ai.AutoFallback = *req.AutoFallback
	}
	if req.FallbackOrder != nil {
		ai.FallbackOrder = req.FallbackOrder
	}
	if req.Temperature != nil {
		ai.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		ai.MaxTokens = *req.MaxTokens
	}
	if req.Timeout != nil {
		ai.Timeout = *req.Timeout
	}
	if req.EnableCache != nil {
		ai.EnableCache = *req.EnableCache
	}
	if req.CacheExpireHours != nil {
		ai.CacheExpireHours = *req.CacheExpireHours
	}
	if req.CacheSizeMB != nil {
		ai.CacheSizeMB = *req.CacheSizeMB
	}
	if req.DailyLimit != nil {
		ai.DailyLimit = *req.DailyLimit
	}
	if req.MonthlyLimit != nil {
		ai.MonthlyLimit = *req.MonthlyLimit
	}
	if req.CostLimit != nil {
		ai.CostLimit = *req.CostLimit
	}

	h.registry.ApplyConfig(ai)
	h.cache.SetLimits(ai.CacheExpireHours, ai.CacheSizeMB)
	h.usage.SetLimits(ai.DailyLimit, ai.MonthlyLimit, ai.CostLimit)
	h.dispatcher.ApplyConfig(ai)

	if err := h.cfg.Save(h.configPath); err != nil {
		logger.Warnf("[Config] Failed to persist config update: %v", err)
	}

	logger.Infof("[Config] Configuration updated")
	response.Success(c, gin.H{"updated": true})
}
