package services

import "time"

// Backend identifies a generation backend.
type Backend string

const (
	BackendOpenAI Backend = "openai"
	BackendClaude Backend = "claude"
	BackendGemini Backend = "gemini"
	BackendOllama Backend = "ollama"
	BackendFake   Backend = "fake"
)

// registryOrder is the stable order in which backends are considered when
// no explicit preference applies.
var registryOrder = []Backend{BackendOpenAI, BackendClaude, BackendGemini, BackendOllama, BackendFake}

// GenerationRequest describes one content-generation request. It is
// immutable once constructed; only Prompt, Backend, Model, Temperature and
// MaxTokens participate in the cache fingerprint.
type GenerationRequest struct {
	Prompt      string    `json:"prompt"`
	Backend     Backend   `json:"backend"`
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	CreatedAt   time.Time `json:"created_at"`
}

// GenerationResponse is the result of one successful dispatch. Cached is
// true only when the response was served from the cache rather than a live
// backend call.
type GenerationResponse struct {
	Content        string    `json:"content"`
	Backend        Backend   `json:"backend"`
	Model          string    `json:"model"`
	TokensUsed     int       `json:"tokens_used"`
	Cost           float64   `json:"cost"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	CreatedAt      time.Time `json:"created_at"`
	Cached         bool      `json:"cached"`
}
