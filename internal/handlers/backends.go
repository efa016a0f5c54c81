package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/animastudio/aihub/internal/services"
	"github.com/animastudio/aihub/pkg/response"
)

// BackendHandler exposes the backend registry.
type BackendHandler struct {
	registry *services.BackendRegistryService
}

func NewBackendHandler(registry *services.BackendRegistryService) *BackendHandler {
	return &BackendHandler{registry: registry}
}

// BackendInfo describes one usable backend.
type BackendInfo struct {
	Name      string `json:"name"`
	Model     string `json:"model"`
	Preferred bool   `json:"preferred"`
}

// List handles GET /api/backends.
func (h *BackendHandler) List(c *gin.Context) {
	preferred := h.registry.PreferredBackend()

	available := h.registry.AvailableBackends()
	backends := make([]BackendInfo, 0, len(available))
	for _, b := range available {
		backends = append(backends, BackendInfo{
			Name:      string(b),
			Model:     h.registry.ModelFor(b),
			Preferred: b == preferred,
		})
	}

	response.Success(c, gin.H{
		"backends":  backends,
		"preferred": string(preferred),
	})
}
