package services

import (
	"sync"

	"github.com/animastudio/aihub/internal/config"
)

// BackendRegistryService tracks which generation backends are usable and in
// what order fallback candidates are tried. State is rebuilt from
// configuration updates; reads take a shared lock.
type BackendRegistryService struct {
	mu            sync.RWMutex
	backends      map[Backend]config.BackendConfig
	preferred     Backend
	fallbackOrder []Backend
}

func NewBackendRegistryService(cfg *config.AIConfig) *BackendRegistryService {
	s := &BackendRegistryService{}
	s.ApplyConfig(cfg)
	return s
}

// ApplyConfig replaces the registry state from a configuration snapshot.
func (s *BackendRegistryService) ApplyConfig(cfg *config.AIConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.backends = make(map[Backend]config.BackendConfig, len(cfg.Backends))
	for name, backend := range cfg.Backends {
		s.backends[Backend(name)] = backend
	}
	s.preferred = Backend(cfg.PreferredService)
	s.fallbackOrder = make([]Backend, 0, len(cfg.FallbackOrder))
	for _, name := range cfg.FallbackOrder {
		s.fallbackOrder = append(s.fallbackOrder, Backend(name))
	}
}

// usable reports whether a backend can take traffic: it must be configured,
// not disabled, and hold a credential. Ollama authenticates by reachability
// of its base URL and the fake backend needs nothing.
func (s *BackendRegistryService) usable(b Backend) bool {
	cfg, ok := s.backends[b]
	if !ok || cfg.Disabled {
		return false
	}
	switch b {
	case BackendOllama:
		return cfg.BaseURL != ""
	case BackendFake:
		return true
	default:
		return cfg.APIKey != ""
	}
}

// Usable reports whether the backend is configured and credentialed.
func (s *BackendRegistryService) Usable(b Backend) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usable(b)
}

// Config returns the configuration snapshot for a backend.
func (s *BackendRegistryService) Config(b Backend) (config.BackendConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.backends[b]
	return cfg, ok
}

// AvailableBackends returns the usable backends in stable registry order.
func (s *BackendRegistryService) AvailableBackends() []Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()

	available := make([]Backend, 0, len(registryOrder))
	for _, b := range registryOrder {
		if s.usable(b) {
			available = append(available, b)
		}
	}
	return available
}

// PreferredBackend returns the configured preferred backend if it is
// usable, else the first usable backend in registry order, else "".
func (s *BackendRegistryService) PreferredBackend() Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.usable(s.preferred) {
		return s.preferred
	}
	for _, b := range registryOrder {
		if s.usable(b) {
			return b
		}
	}
	return ""
}

// FallbackOrder returns the candidates to try after failed has failed: the
// configured fallback order filtered to usable backends with failed
// removed, followed by any remaining usable backend not already listed.
func (s *BackendRegistryService) FallbackOrder(failed Backend) []Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[Backend]bool{failed: true}
	ordered := make([]Backend, 0, len(s.fallbackOrder))
	for _, b := range s.fallbackOrder {
		if seen[b] || !s.usable(b) {
			continue
		}
		seen[b] = true
		ordered = append(ordered, b)
	}
	for _, b := range registryOrder {
		if seen[b] || !s.usable(b) {
			continue
		}
		seen[b] = true
		ordered = append(ordered, b)
	}
	return ordered
}

// ModelFor returns the configured model for a backend.
func (s *BackendRegistryService) ModelFor(b Backend) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backends[b].Model
}
