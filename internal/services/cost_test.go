package services

import (
	"math"
	"testing"
)

func TestCost_KnownBackends(t *testing.T) {
	tests := []struct {
		backend Backend
		tokens  int
		want    float64
	}{
		{BackendOpenAI, 1000, 0.03},
		{BackendClaude, 1000, 0.015},
		{BackendGemini, 1000, 0.001},
		{BackendOllama, 1000, 0},
		{BackendFake, 1000, 0},
		{BackendOpenAI, 500, 0.015},
		{BackendGemini, 123456, 0.123456},
	}

	for _, tt := range tests {
		got := Cost(tt.backend, tt.tokens)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Cost(%s, %d) = %f, expected %f", tt.backend, tt.tokens, got, tt.want)
		}
	}
}

func TestCost_UnknownBackendUsesDefaultRate(t *testing.T) {
	got := Cost(Backend("mistral"), 1000)
	if math.Abs(got-0.01) > 1e-9 {
		t.Errorf("unknown backend cost = %f, expected default rate 0.01", got)
	}
}

func TestCost_ZeroTokens(t *testing.T) {
	if got := Cost(BackendOpenAI, 0); got != 0 {
		t.Errorf("Cost with zero tokens = %f, expected 0", got)
	}
}
