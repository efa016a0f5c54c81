package services

import (
	"testing"
	"time"
)

func baseRequest() *GenerationRequest {
	return &GenerationRequest{
		Prompt:      "bouncing ball animation",
		Backend:     BackendOpenAI,
		Model:       "gpt-4",
		Temperature: 0.7,
		MaxTokens:   2000,
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint(baseRequest())
	b := Fingerprint(baseRequest())

	if a != b {
		t.Errorf("same request produced different fingerprints: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, expected 64 hex chars", len(a))
	}
}

func TestFingerprint_FieldSensitivity(t *testing.T) {
	base := Fingerprint(baseRequest())

	mutations := map[string]func(*GenerationRequest){
		"prompt":      func(r *GenerationRequest) { r.Prompt = "spinning cube animation" },
		"backend":     func(r *GenerationRequest) { r.Backend = BackendClaude },
		"model":       func(r *GenerationRequest) { r.Model = "gpt-4o" },
		"temperature": func(r *GenerationRequest) { r.Temperature = 0.8 },
		"max_tokens":  func(r *GenerationRequest) { r.MaxTokens = 1000 },
	}

	for name, mutate := range mutations {
		req := baseRequest()
		mutate(req)
		if got := Fingerprint(req); got == base {
			t.Errorf("changing %s did not change the fingerprint", name)
		}
	}
}

func TestFingerprint_IgnoresNonIdentityFields(t *testing.T) {
	req := baseRequest()
	base := Fingerprint(req)

	req.CreatedAt = time.Now().Add(time.Hour)
	if got := Fingerprint(req); got != base {
		t.Error("CreatedAt should not participate in the fingerprint")
	}
}

func TestFingerprint_NoConcatenationCollision(t *testing.T) {
	a := baseRequest()
	a.Prompt = "ab"
	a.Backend = "c"

	b := baseRequest()
	b.Prompt = "a"
	b.Backend = "bc"

	if Fingerprint(a) == Fingerprint(b) {
		t.Error("adjacent fields concatenated into a collision")
	}
}
