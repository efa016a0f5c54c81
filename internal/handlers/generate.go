package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/animastudio/aihub/internal/services"
	"github.com/animastudio/aihub/pkg/response"
)

// GenerateHandler serves generation requests, both blocking and queued.
type GenerateHandler struct {
	dispatcher *services.DispatcherService
	queue      services.TaskQueue
}

func NewGenerateHandler(dispatcher *services.DispatcherService, queue services.TaskQueue) *GenerateHandler {
	return &GenerateHandler{dispatcher: dispatcher, queue: queue}
}

// GenerateRequest is the request body for POST /api/generate.
type GenerateRequest struct {
	Prompt      string   `json:"prompt" binding:"required"`
	Backend     string   `json:"backend"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
}

// Generate handles POST /api/generate.
func (h *GenerateHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "prompt is required")
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

	resp, err := h.dispatcher.Generate(c.Request.Context(), services.GenerateParams{
		Prompt:      req.Prompt,
		Backend:     services.Backend(req.Backend),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		response.Error(c, mapDispatchError(err))
		return
	}

	response.Success(c, resp)
}

// GenerateAsync handles POST /api/generate/async. The job outcome lands in
// the generation audit log; the caller receives the job id immediately.
func (h *GenerateHandler) GenerateAsync(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "prompt is required")
		return
	}

	task := &services.GenerationTask{
		JobID:       uuid.NewString(),
		Prompt:      req.Prompt,
		Backend:     services.Backend(req.Backend),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if err := h.queue.Enqueue(task); err != nil {
		response.Error(c, response.NewServerError("failed to enqueue generation job"))
		return
	}

	mode := "sync"
	if h.queue.IsAsync() {
		mode = "async"
	}
	response.Accepted(c, gin.H{
		"job_id": task.JobID,
		"mode":   mode,
	})
}

// mapDispatchError translates dispatcher errors into HTTP responses.
func mapDispatchError(err error) error {
	var quotaErr *services.QuotaExceededError
	if errors.As(err, &quotaErr) {
		return response.NewTooManyRequests(quotaErr.Error())
	}
	var failedErr *services.AllBackendsFailedError
	if errors.As(err, &failedErr) {
		return response.NewBadGateway(failedErr.Error())
	}
	if errors.Is(err, services.ErrNoBackendAvailable) {
		return response.NewServiceUnavailable(err.Error())
	}
	return response.NewServerError(err.Error())
}
