package services

// USD per 1000 tokens. Ollama runs locally and the fake backend is a test
// double, so both are free.
var costPer1KTokens = map[Backend]float64{
	BackendOpenAI: 0.03,
	BackendClaude: 0.015,
	BackendGemini: 0.001,
	BackendOllama: 0,
	BackendFake:   0,
}

const defaultCostPer1KTokens = 0.01

// Cost returns the monetary cost of a backend call. Pure and total: unknown
// backends are billed at the default rate.
func Cost(backend Backend, tokens int) float64 {
	rate, ok := costPer1KTokens[backend]
	if !ok {
		rate = defaultCostPer1KTokens
	}
	return float64(tokens) / 1000 * rate
}
