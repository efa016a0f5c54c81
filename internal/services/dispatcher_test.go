package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/animastudio/aihub/internal/config"
	"github.com/animastudio/aihub/internal/models"
)

// stubClient scripts one backend's behavior and records invocations.
type stubClient struct {
	name   Backend
	result *ProviderResult
	err    error
	calls  *[]Backend
}

func (c *stubClient) Backend() Backend { return c.name }

func (c *stubClient) Generate(ctx context.Context, req *GenerationRequest) (*ProviderResult, error) {
	*c.calls = append(*c.calls, c.name)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

type dispatchFixture struct {
	cfg        *config.AIConfig
	registry   *BackendRegistryService
	cache      *ResponseCacheService
	usage      *UsageMeterService
	dispatcher *DispatcherService
	calls      []Backend
	scripts    map[Backend]*stubClient
}

// newDispatchFixture wires a dispatcher over an in-memory database with
// every provider replaced by a scriptable stub. By default every backend
// succeeds.
func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	db := newTestDB(t)

	cfg := &config.AIConfig{
		PreferredService: "openai",
		AutoFallback:     true,
		FallbackOrder:    []string{"claude", "gemini"},
		Temperature:      0.7,
		MaxTokens:        2000,
		Timeout:          5,
		EnableCache:      true,
		CacheExpireHours: 24,
		CacheSizeMB:      100,
		Backends: map[string]config.BackendConfig{
			"openai": {APIKey: "sk-test", Model: "gpt-4"},
			"claude": {APIKey: "sk-ant-test", Model: "claude-3-5-sonnet-20241022"},
			"gemini": {APIKey: "g-test", Model: "gemini-2.0-flash-exp"},
		},
	}

	f := &dispatchFixture{
		cfg:      cfg,
		registry: NewBackendRegistryService(cfg),
		cache:    NewResponseCacheService(db, cfg.CacheExpireHours, cfg.CacheSizeMB),
		usage:    NewUsageMeterService(db, 0, 0, 0),
		scripts:  map[Backend]*stubClient{},
	}
	for _, b := range []Backend{BackendOpenAI, BackendClaude, BackendGemini} {
		f.scripts[b] = &stubClient{
			name:   b,
			result: &ProviderResult{Content: fmt.Sprintf("from %s", b), TokensUsed: 1000},
			calls:  &f.calls,
		}
	}

	f.dispatcher = NewDispatcherService(cfg, f.registry, f.cache, f.usage)
	f.dispatcher.newClient = func(b Backend, _ config.BackendConfig) ProviderClient {
		return f.scripts[b]
	}
	return f
}

func (f *dispatchFixture) fail(b Backend, err error) {
	f.scripts[b].err = err
}

func TestDispatch_PreferredBackendSuccess(t *testing.T) {
	f := newDispatchFixture(t)

	resp, err := f.dispatcher.Generate(context.Background(), GenerateParams{Prompt: "spin a cube"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if resp.Backend != BackendOpenAI {
		t.Errorf("Backend = %s, expected preferred openai", resp.Backend)
	}
	if resp.Content != "from openai" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Cached {
		t.Error("live response should not be marked cached")
	}
	if resp.Cost != 0.03 {
		t.Errorf("Cost = %f, expected 0.03 for 1000 openai tokens", resp.Cost)
	}
	if len(f.calls) != 1 {
		t.Errorf("calls = %v, expected exactly one backend call", f.calls)
	}
}

func TestDispatch_ExplicitBackendOverridesPreferred(t *testing.T) {
	f := newDispatchFixture(t)

	resp, err := f.dispatcher.Generate(context.Background(), GenerateParams{Prompt: "spin", Backend: BackendGemini})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Backend != BackendGemini {
		t.Errorf("Backend = %s, expected gemini", resp.Backend)
	}
}

func TestDispatch_FallbackOrderOnFailure(t *testing.T) {
	f := newDispatchFixture(t)
	f.fail(BackendOpenAI, errors.New("rate limited"))
	f.fail(BackendClaude, errors.New("overloaded"))

	resp, err := f.dispatcher.Generate(context.Background(), GenerateParams{Prompt: "spin"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Backend != BackendGemini {
		t.Errorf("Backend = %s, expected gemini after fallback", resp.Backend)
	}

	want := []Backend{BackendOpenAI, BackendClaude, BackendGemini}
	if len(f.calls) != len(want) {
		t.Fatalf("calls = %v, expected %v", f.calls, want)
	}
	for i := range want {
		if f.calls[i] != want[i] {
			t.Errorf("calls[%d] = %s, expected %s", i, f.calls[i], want[i])
		}
	}
}

func TestDispatch_FailedBackendNeverRetried(t *testing.T) {
	f := newDispatchFixture(t)
	f.fail(BackendOpenAI, errors.New("down"))
	f.fail(BackendClaude, errors.New("down"))
	f.fail(BackendGemini, errors.New("down"))

	_, err := f.dispatcher.Generate(context.Background(), GenerateParams{Prompt: "spin"})

	var failedErr *AllBackendsFailedError
	if !errors.As(err, &failedErr) {
		t.Fatalf("expected AllBackendsFailedError, got %v", err)
	}
	if len(failedErr.Failures) != 3 {
		t.Errorf("Failures = %d, expected 3 with per-backend reasons", len(failedErr.Failures))
	}

	seen := map[Backend]int{}
	for _, b := range f.calls {
		seen[b]++
	}
	for b, n := range seen {
		if n != 1 {
			t.Errorf("backend %s called %d times, expected exactly once", b, n)
		}
	}
}

func TestDispatch_AutoFallbackDisabled(t *testing.T) {
	f := newDispatchFixture(t)
	f.cfg.AutoFallback = false
	f.dispatcher.ApplyConfig(f.cfg)
	f.fail(BackendOpenAI, errors.New("down"))

	_, err := f.dispatcher.Generate(context.Background(), GenerateParams{Prompt: "spin"})

	var failedErr *AllBackendsFailedError
	if !errors.As(err, &failedErr) {
		t.Fatalf("expected AllBackendsFailedError, got %v", err)
	}
	if len(failedErr.Failures) != 1 {
		t.Errorf("Failures = %d, expected 1 without fallback", len(failedErr.Failures))
	}
	if len(f.calls) != 1 {
		t.Errorf("calls = %v, expected single attempt", f.calls)
	}
}

func TestDispatch_UnusableExplicitBackendFallsBack(t *testing.T) {
	f := newDispatchFixture(t)
	f.cfg.Backends["gemini"] = config.BackendConfig{Model: "gemini-2.0-flash-exp"} // credential revoked
	f.registry.ApplyConfig(f.cfg)

	resp, err := f.dispatcher.Generate(context.Background(), GenerateParams{Prompt: "spin", Backend: BackendGemini})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	// Fallback order is claude then openai; gemini itself was never called.
	if resp.Backend != BackendClaude {
		t.Errorf("Backend = %s, expected claude", resp.Backend)
	}
	for _, b := range f.calls {
		if b == BackendGemini {
			t.Error("unusable backend must not be invoked")
		}
	}
}

func TestDispatch_NoBackendAvailable(t *testing.T) {
	f := newDispatchFixture(t)
	f.registry.ApplyConfig(&config.AIConfig{Backends: map[string]config.BackendConfig{}})

	_, err := f.dispatcher.Generate(context.Background(), GenerateParams{Prompt: "spin"})
	if !errors.Is(err, ErrNoBackendAvailable) {
		t.Fatalf("expected ErrNoBackendAvailable, got %v", err)
	}
	if len(f.calls) != 0 {
		t.Errorf("calls = %v, expected none", f.calls)
	}
}

func TestDispatch_QuotaBlocksBeforeBackendCall(t *testing.T) {
	f := newDispatchFixture(t)
	f.usage.SetLimits(1, 0, 0)
	if err := f.usage.Record(BackendOpenAI, 100, 0.003); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	_, err := f.dispatcher.Generate(context.Background(), GenerateParams{Prompt: "spin", Backend: BackendOpenAI})

	var quotaErr *QuotaExceededError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("expected QuotaExceededError, got %v", err)
	}
	if quotaErr.Limit != LimitDailyRequests {
		t.Errorf("Limit = %s, expected %s", quotaErr.Limit, LimitDailyRequests)
	}
	// Quota violations abort the dispatch outright: no backend call, no
	// fallback to the remaining candidates.
	if len(f.calls) != 0 {
		t.Errorf("calls = %v, expected none when quota blocks", f.calls)
	}
}

func TestDispatch_SuccessRecordsUsageAndCaches(t *testing.T) {
	f := newDispatchFixture(t)

	if _, err := f.dispatcher.Generate(context.Background(), GenerateParams{Prompt: "spin"}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	summary, err := f.usage.Summary()
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.TotalRequests != 1 || summary.TotalTokens != 1000 {
		t.Errorf("usage = %d requests / %d tokens, expected 1 / 1000", summary.TotalRequests, summary.TotalTokens)
	}

	stats, err := f.cache.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Entries != 1 {
		t.Errorf("cache entries = %d, expected 1", stats.Entries)
	}
}

func TestDispatch_CacheHitSkipsBackendAndMetering(t *testing.T) {
	f := newDispatchFixture(t)

	// First dispatch populates the cache.
	if _, err := f.dispatcher.Generate(context.Background(), GenerateParams{Prompt: "spin"}); err != nil {
		t.Fatalf("first Generate failed: %v", err)
	}
	callsAfterFirst := len(f.calls)

	resp, err := f.dispatcher.Generate(context.Background(), GenerateParams{Prompt: "spin"})
	if err != nil {
		t.Fatalf("second Generate failed: %v", err)
	}
	if !resp.Cached {
		t.Error("second response should come from the cache")
	}
	if len(f.calls) != callsAfterFirst {
		t.Errorf("cache hit must not call a backend, calls = %v", f.calls)
	}

	summary, err := f.usage.Summary()
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.TotalRequests != 1 {
		t.Errorf("TotalRequests = %d, cache hits must not be metered", summary.TotalRequests)
	}
}

func TestDispatch_CacheDisabledAlwaysCallsBackend(t *testing.T) {
	f := newDispatchFixture(t)
	f.cfg.EnableCache = false
	f.dispatcher.ApplyConfig(f.cfg)

	for i := 0; i < 2; i++ {
		if _, err := f.dispatcher.Generate(context.Background(), GenerateParams{Prompt: "spin"}); err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
	}
	if len(f.calls) != 2 {
		t.Errorf("calls = %v, expected 2 live calls with cache disabled", f.calls)
	}

	stats, err := f.cache.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Entries != 0 {
		t.Errorf("cache entries = %d, expected 0 with cache disabled", stats.Entries)
	}
}

func TestDispatch_TimeoutClassifiedAsTimeout(t *testing.T) {
	f := newDispatchFixture(t)
	f.cfg.AutoFallback = false
	f.dispatcher.ApplyConfig(f.cfg)
	f.fail(BackendOpenAI, context.DeadlineExceeded)

	_, err := f.dispatcher.Generate(context.Background(), GenerateParams{Prompt: "spin"})

	var failedErr *AllBackendsFailedError
	if !errors.As(err, &failedErr) {
		t.Fatalf("expected AllBackendsFailedError, got %v", err)
	}
	if failedErr.Failures[0].Reason != "backend openai timed out" {
		t.Errorf("Reason = %q, expected timeout classification", failedErr.Failures[0].Reason)
	}
}

func TestDispatch_CancelledCallerLeavesNoSideEffects(t *testing.T) {
	f := newDispatchFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.dispatcher.Generate(ctx, GenerateParams{Prompt: "spin"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	summary, sErr := f.usage.Summary()
	if sErr != nil {
		t.Fatalf("Summary failed: %v", sErr)
	}
	if summary.TotalRequests != 0 {
		t.Errorf("TotalRequests = %d, abandoned dispatch must not meter", summary.TotalRequests)
	}

	stats, cErr := f.cache.Stats()
	if cErr != nil {
		t.Fatalf("Stats failed: %v", cErr)
	}
	if stats.Entries != 0 {
		t.Errorf("cache entries = %d, abandoned dispatch must not cache", stats.Entries)
	}
}

func TestDispatch_ParamOverridesChangeFingerprint(t *testing.T) {
	f := newDispatchFixture(t)

	if _, err := f.dispatcher.Generate(context.Background(), GenerateParams{Prompt: "spin"}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	temp := 0.2
	resp, err := f.dispatcher.Generate(context.Background(), GenerateParams{Prompt: "spin", Temperature: &temp})
	if err != nil {
		t.Fatalf("Generate with override failed: %v", err)
	}
	if resp.Cached {
		t.Error("different temperature must miss the cache")
	}
	if len(f.calls) != 2 {
		t.Errorf("calls = %v, expected 2", f.calls)
	}
}

func TestDispatch_AuditLogWritten(t *testing.T) {
	f := newDispatchFixture(t)

	if _, err := f.dispatcher.Generate(context.Background(), GenerateParams{Prompt: "spin"}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	var logs []models.GenerationLog
	if err := f.usage.db.Find(&logs).Error; err != nil {
		t.Fatalf("failed to read logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("logs = %d, expected 1", len(logs))
	}
	if logs[0].Backend != "openai" || !logs[0].Success || logs[0].Cached {
		t.Errorf("unexpected audit row: %+v", logs[0])
	}
	if logs[0].RequestID == "" {
		t.Error("audit row missing request id")
	}
}

func TestDispatch_EventEmittedOnSuccess(t *testing.T) {
	f := newDispatchFixture(t)

	if _, err := f.dispatcher.Generate(context.Background(), GenerateParams{Prompt: "spin"}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	select {
	case event := <-f.dispatcher.Events():
		if event.Backend != BackendOpenAI || !event.Success {
			t.Errorf("unexpected event: %+v", event)
		}
	default:
		t.Fatal("expected a dispatch event")
	}
}

func TestDispatch_ProcessGenerationTask(t *testing.T) {
	f := newDispatchFixture(t)

	task := &GenerationTask{JobID: "job-1", Prompt: "spin"}
	if err := f.dispatcher.ProcessGenerationTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessGenerationTask failed: %v", err)
	}

	var logs []models.GenerationLog
	if err := f.usage.db.Find(&logs).Error; err != nil {
		t.Fatalf("failed to read logs: %v", err)
	}
	if len(logs) != 1 {
		t.Errorf("logs = %d, expected the job outcome in the audit log", len(logs))
	}
}
