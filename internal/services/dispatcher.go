package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/animastudio/aihub/internal/config"
	"github.com/animastudio/aihub/internal/models"
	"github.com/animastudio/aihub/pkg/logger"
)

// DispatchEvent describes one completed dispatch. Events are delivered on a
// bounded channel and dropped when no consumer keeps up, so emitting never
// blocks the dispatch path.
type DispatchEvent struct {
	RequestID string        `json:"request_id"`
	Backend   Backend       `json:"backend"`
	Model     string        `json:"model"`
	Cached    bool          `json:"cached"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

const eventBufferSize = 64

// GenerateParams carries one generation request from a caller. Backend,
// Temperature and MaxTokens are optional; configured defaults apply.
type GenerateParams struct {
	Prompt      string
	Backend     Backend
	Temperature *float64
	MaxTokens   *int
}

// DispatcherService orchestrates a generation request: quota check, cache
// lookup, backend call with a bounded timeout, and ordered fallback across
// the remaining usable backends.
type DispatcherService struct {
	registry *BackendRegistryService
	cache    *ResponseCacheService
	usage    *UsageMeterService

	mu           sync.RWMutex
	enableCache  bool
	autoFallback bool
	timeout      time.Duration
	temperature  float64
	maxTokens    int

	// newClient is swapped for test doubles.
	newClient func(Backend, config.BackendConfig) ProviderClient

	events chan DispatchEvent
}

func NewDispatcherService(cfg *config.AIConfig, registry *BackendRegistryService, cache *ResponseCacheService, usage *UsageMeterService) *DispatcherService {
	s := &DispatcherService{
		registry:  registry,
		cache:     cache,
		usage:     usage,
		newClient: newProviderClient,
		events:    make(chan DispatchEvent, eventBufferSize),
	}
	s.ApplyConfig(cfg)
	return s
}

// ApplyConfig applies a configuration update to the dispatch options.
func (s *DispatcherService) ApplyConfig(cfg *config.AIConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enableCache = cfg.EnableCache
	s.autoFallback = cfg.AutoFallback
	s.timeout = time.Duration(cfg.Timeout) * time.Second
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}
	s.temperature = cfg.Temperature
	s.maxTokens = cfg.MaxTokens
}

// Events exposes the dispatch completion stream.
func (s *DispatcherService) Events() <-chan DispatchEvent {
	return s.events
}

func (s *DispatcherService) emit(event DispatchEvent) {
	select {
	case s.events <- event:
	default:
		// Slow or absent consumer; drop rather than stall a dispatch.
	}
}

// Generate runs the full dispatch state machine and returns either a usable
// response or a typed error: ErrNoBackendAvailable when nothing can be
// resolved, *QuotaExceededError when a limit blocks dispatch, or
// *AllBackendsFailedError once every fallback candidate has failed.
func (s *DispatcherService) Generate(ctx context.Context, params GenerateParams) (*GenerationResponse, error) {
	requestID := uuid.NewString()

	target := params.Backend
	if target == "" {
		target = s.registry.PreferredBackend()
		if target == "" {
			return nil, ErrNoBackendAvailable
		}
	}

	s.mu.RLock()
	autoFallback := s.autoFallback
	s.mu.RUnlock()

	tried := map[Backend]bool{}
	var failures []BackendFailure

	attemptOnce := func(backend Backend) (*GenerationResponse, error) {
		tried[backend] = true
		resp, err := s.attempt(ctx, requestID, backend, &params)
		if err == nil {
			return resp, nil
		}

		// Caller gone or quota hit: surface immediately, no fallback.
		var quotaErr *QuotaExceededError
		if errors.As(err, &quotaErr) || ctx.Err() != nil {
			return nil, err
		}

		failures = append(failures, BackendFailure{Backend: backend, Reason: err.Error()})
		logger.Warnf("[Dispatch] Backend %s failed: %v", backend, err)
		return nil, err
	}

	// An explicitly requested backend that is not usable counts as a
	// failed call and falls through to fallback, same as a live failure.
	if s.registry.Usable(target) {
		if resp, err := attemptOnce(target); err == nil {
			return resp, nil
		} else if isTerminal(err, ctx) {
			return nil, err
		}
	} else {
		tried[target] = true
		failures = append(failures, BackendFailure{Backend: target, Reason: "backend not available"})
	}

	if autoFallback {
		for _, candidate := range s.registry.FallbackOrder(target) {
			if tried[candidate] {
				continue
			}
			logger.Infof("[Dispatch] Falling back to %s", candidate)
			if resp, err := attemptOnce(candidate); err == nil {
				return resp, nil
			} else if isTerminal(err, ctx) {
				return nil, err
			}
		}
	}

	if len(failures) == 0 {
		return nil, ErrNoBackendAvailable
	}
	return nil, &AllBackendsFailedError{Failures: failures}
}

// ProcessGenerationTask executes one queued generation job. The outcome is
// recorded in the audit log by the dispatch itself.
func (s *DispatcherService) ProcessGenerationTask(ctx context.Context, task *GenerationTask) error {
	_, err := s.Generate(ctx, GenerateParams{
		Prompt:      task.Prompt,
		Backend:     task.Backend,
		Temperature: task.Temperature,
		MaxTokens:   task.MaxTokens,
	})
	if err != nil {
		logger.Warnf("[Dispatch] Async job %s failed: %v", task.JobID, err)
		return err
	}
	logger.Infof("[Dispatch] Async job %s completed", task.JobID)
	return nil
}

// isTerminal reports whether an attempt error must abort the whole
// dispatch instead of moving on to the next fallback candidate.
func isTerminal(err error, ctx context.Context) bool {
	var quotaErr *QuotaExceededError
	return errors.As(err, &quotaErr) || ctx.Err() != nil
}

// attempt runs quota check, cache lookup and the timed backend call for a
// single candidate.
func (s *DispatcherService) attempt(ctx context.Context, requestID string, backend Backend, params *GenerateParams) (*GenerationResponse, error) {
	s.mu.RLock()
	enableCache := s.enableCache
	timeout := s.timeout
	temperature := s.temperature
	maxTokens := s.maxTokens
	s.mu.RUnlock()

	if params.Temperature != nil {
		temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		maxTokens = *params.MaxTokens
	}

	// QuotaCheck: a violated limit blocks dispatch before any backend
	// contact. A meter read failure is logged and does not block.
	if err := s.usage.CheckLimits(backend); err != nil {
		var quotaErr *QuotaExceededError
		if errors.As(err, &quotaErr) {
			return nil, err
		}
		logger.Warnf("[Dispatch] Quota check failed for %s, allowing: %v", backend, err)
	}

	req := &GenerationRequest{
		Prompt:      params.Prompt,
		Backend:     backend,
		Model:       s.registry.ModelFor(backend),
		Temperature: temperature,
		MaxTokens:   maxTokens,
		CreatedAt:   time.Now(),
	}

	// CacheLookup: a hit bypasses metering entirely, no backend was
	// consulted.
	if enableCache {
		if resp, ok := s.cache.Get(req); ok {
			s.usage.Log(&models.GenerationLog{
				RequestID: requestID,
				Backend:   string(backend),
				Model:     req.Model,
				Tokens:    resp.TokensUsed,
				Cached:    true,
				Success:   true,
			})
			s.emit(DispatchEvent{RequestID: requestID, Backend: backend, Model: req.Model, Cached: true, Success: true})
			return resp, nil
		}
	}

	// BackendCall with a bounded per-call timeout.
	cfg, _ := s.registry.Config(backend)
	client := s.newClient(backend, cfg)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := client.Generate(callCtx, req)
	elapsed := time.Since(start)

	// The caller went away: no side effects for an abandoned call.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if err != nil {
		backendErr := &BackendError{
			Backend: backend,
			Timeout: errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded),
			Err:     err,
		}
		s.usage.Log(&models.GenerationLog{
			RequestID:    requestID,
			Backend:      string(backend),
			Model:        req.Model,
			LatencyMs:    elapsed.Milliseconds(),
			Success:      false,
			ErrorMessage: backendErr.Error(),
		})
		s.emit(DispatchEvent{RequestID: requestID, Backend: backend, Model: req.Model, Error: backendErr.Error(), Duration: elapsed})
		return nil, backendErr
	}

	cost := Cost(backend, result.TokensUsed)
	resp := &GenerationResponse{
		Content:        result.Content,
		Backend:        backend,
		Model:          req.Model,
		TokensUsed:     result.TokensUsed,
		Cost:           cost,
		ResponseTimeMs: elapsed.Milliseconds(),
		CreatedAt:      time.Now(),
		Cached:         false,
	}

	if enableCache {
		if err := s.cache.Put(req, resp); err != nil {
			logger.Warnf("[Dispatch] Failed to cache response: %v", err)
		}
	}
	if err := s.usage.Record(backend, result.TokensUsed, cost); err != nil {
		logger.Warnf("[Dispatch] Failed to record usage: %v", err)
	}
	s.usage.Log(&models.GenerationLog{
		RequestID: requestID,
		Backend:   string(backend),
		Model:     req.Model,
		Tokens:    result.TokensUsed,
		Cost:      cost,
		LatencyMs: elapsed.Milliseconds(),
		Success:   true,
	})
	s.emit(DispatchEvent{RequestID: requestID, Backend: backend, Model: req.Model, Success: true, Duration: elapsed})

	logger.Infof("[Dispatch] Success with %s (%d tokens, $%.4f, %dms)", backend, result.TokensUsed, cost, elapsed.Milliseconds())
	return resp, nil
}
