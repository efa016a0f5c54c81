package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/animastudio/aihub/internal/models"
	"github.com/animastudio/aihub/pkg/logger"
	"gorm.io/gorm"
)

const (
	dayKeyLayout   = "2006-01-02"
	monthKeyLayout = "2006-01"
)

// UsageMeterService tracks per-backend request, token and cost totals per
// calendar day and month, and enforces the configured limits. Recording is
// an atomic read-modify-write per (backend, period) so concurrent dispatch
// completions never lose updates.
type UsageMeterService struct {
	db *gorm.DB
	mu sync.Mutex

	dailyRequestLimit   int64
	monthlyRequestLimit int64
	monthlyCostLimit    float64
}

func NewUsageMeterService(db *gorm.DB, dailyLimit, monthlyLimit int64, costLimit float64) *UsageMeterService {
	return &UsageMeterService{
		db:                  db,
		dailyRequestLimit:   dailyLimit,
		monthlyRequestLimit: monthlyLimit,
		monthlyCostLimit:    costLimit,
	}
}

// SetLimits applies a configuration update to the quota ceilings.
func (s *UsageMeterService) SetLimits(dailyLimit, monthlyLimit int64, costLimit float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dailyRequestLimit = dailyLimit
	s.monthlyRequestLimit = monthlyLimit
	s.monthlyCostLimit = costLimit
}

// Record adds one request with its token count and cost to the backend's
// current-day and current-month counters. A counter for a new period starts
// at zero and is created lazily.
func (s *UsageMeterService) Record(backend Backend, tokens int, cost float64) error {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, periodKey := range []string{now.Format(dayKeyLayout), now.Format(monthKeyLayout)} {
			if err := incrementCounter(tx, backend, periodKey, tokens, cost); err != nil {
				return err
			}
		}
		return nil
	})
}

func incrementCounter(tx *gorm.DB, backend Backend, periodKey string, tokens int, cost float64) error {
	var counter models.UsageCounter
	err := tx.Where("backend = ? AND period_key = ?", backend, periodKey).First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		counter = models.UsageCounter{Backend: string(backend), PeriodKey: periodKey}
		if err := tx.Create(&counter).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return tx.Model(&counter).Updates(map[string]interface{}{
		"requests": gorm.Expr("requests + 1"),
		"tokens":   gorm.Expr("tokens + ?", tokens),
		"cost":     gorm.Expr("cost + ?", cost),
	}).Error
}

// CheckLimits returns a QuotaExceededError naming the first violated limit
// for the backend, checking daily requests, then monthly requests, then
// monthly cost. A nil return means dispatch may proceed.
func (s *UsageMeterService) CheckLimits(backend Backend) error {
	now := time.Now()

	s.mu.Lock()
	daily := s.dailyRequestLimit
	monthly := s.monthlyRequestLimit
	costLimit := s.monthlyCostLimit
	s.mu.Unlock()

	day, err := s.counterFor(backend, now.Format(dayKeyLayout))
	if err != nil {
		return err
	}
	if daily > 0 && day.Requests >= daily {
		return &QuotaExceededError{Backend: backend, Limit: LimitDailyRequests, Current: float64(day.Requests), Max: float64(daily)}
	}

	month, err := s.counterFor(backend, now.Format(monthKeyLayout))
	if err != nil {
		return err
	}
	if monthly > 0 && month.Requests >= monthly {
		return &QuotaExceededError{Backend: backend, Limit: LimitMonthlyRequests, Current: float64(month.Requests), Max: float64(monthly)}
	}
	if costLimit > 0 && month.Cost >= costLimit {
		return &QuotaExceededError{Backend: backend, Limit: LimitMonthlyCost, Current: month.Cost, Max: costLimit}
	}
	return nil
}

func (s *UsageMeterService) counterFor(backend Backend, periodKey string) (*models.UsageCounter, error) {
	var counter models.UsageCounter
	err := s.db.Where("backend = ? AND period_key = ?", backend, periodKey).First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.UsageCounter{Backend: string(backend), PeriodKey: periodKey}, nil
	}
	if err != nil {
		return nil, err
	}
	return &counter, nil
}

// PeriodUsage is one backend's totals within a single period.
type PeriodUsage struct {
	Requests int64   `json:"requests"`
	Tokens   int64   `json:"tokens"`
	Cost     float64 `json:"cost"`
}

// UsageSummary is the full usage report exposed to callers.
type UsageSummary struct {
	DailyUsage    map[string]map[string]PeriodUsage `json:"daily_usage"`
	MonthlyUsage  map[string]map[string]PeriodUsage `json:"monthly_usage"`
	TotalRequests int64                             `json:"total_requests"`
	TotalTokens   int64                             `json:"total_tokens"`
	TotalCost     float64                           `json:"total_cost"`
}

// Summary aggregates all persisted counters. Totals are derived from the
// monthly counters, which cover every recorded request exactly once.
func (s *UsageMeterService) Summary() (*UsageSummary, error) {
	var counters []models.UsageCounter
	if err := s.db.Order("period_key ASC, backend ASC").Find(&counters).Error; err != nil {
		return nil, err
	}

	summary := &UsageSummary{
		DailyUsage:   make(map[string]map[string]PeriodUsage),
		MonthlyUsage: make(map[string]map[string]PeriodUsage),
	}
	for _, c := range counters {
		usage := PeriodUsage{Requests: c.Requests, Tokens: c.Tokens, Cost: c.Cost}
		if len(c.PeriodKey) == len(dayKeyLayout) {
			if summary.DailyUsage[c.PeriodKey] == nil {
				summary.DailyUsage[c.PeriodKey] = make(map[string]PeriodUsage)
			}
			summary.DailyUsage[c.PeriodKey][c.Backend] = usage
		} else {
			if summary.MonthlyUsage[c.PeriodKey] == nil {
				summary.MonthlyUsage[c.PeriodKey] = make(map[string]PeriodUsage)
			}
			summary.MonthlyUsage[c.PeriodKey][c.Backend] = usage
			summary.TotalRequests += c.Requests
			summary.TotalTokens += c.Tokens
			summary.TotalCost += c.Cost
		}
	}
	return summary, nil
}

// ExportReport writes the usage summary as JSON to path. The file is
// written to a temporary sibling and renamed into place so a crash can
// never leave a truncated report.
func (s *UsageMeterService) ExportReport(path string) error {
	summary, err := s.Summary()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename usage report: %w", err)
	}

	logger.Infof("[Usage] Report exported to %s", path)
	return nil
}

// Reset deletes all usage counters. Counters are otherwise never deleted.
func (s *UsageMeterService) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Where("1 = 1").Delete(&models.UsageCounter{}).Error
}

// Log persists one dispatch audit row.
func (s *UsageMeterService) Log(entry *models.GenerationLog) {
	if err := s.db.Create(entry).Error; err != nil {
		logger.Warnf("[Usage] Failed to record generation log: %v", err)
	}
}

// DailyTrend holds audit-log aggregates for a single day.
type DailyTrend struct {
	Date         string  `json:"date"`
	Calls        int64   `json:"calls"`
	TotalTokens  int64   `json:"total_tokens"`
	TotalCost    float64 `json:"total_cost"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	CacheHits    int64   `json:"cache_hits"`
}

// Trend returns daily dispatch aggregates for the last days days.
func (s *UsageMeterService) Trend(days int) ([]DailyTrend, error) {
	since := time.Now().AddDate(0, 0, -days)

	var results []DailyTrend
	err := s.db.Model(&models.GenerationLog{}).
		Select(
			"DATE(created_at) as date, "+
				"COUNT(*) as calls, "+
				"COALESCE(SUM(tokens), 0) as total_tokens, "+
				"COALESCE(SUM(cost), 0) as total_cost, "+
				"COALESCE(AVG(latency_ms), 0) as avg_latency_ms, "+
				"COALESCE(SUM(CASE WHEN cached THEN 1 ELSE 0 END), 0) as cache_hits").
		Where("created_at >= ?", since).
		Group("DATE(created_at)").
		Order("date ASC").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []DailyTrend{}
	}
	return results, nil
}

// PruneLogs deletes audit rows older than the given time.
func (s *UsageMeterService) PruneLogs(before time.Time) (int64, error) {
	result := s.db.Where("created_at < ?", before).Delete(&models.GenerationLog{})
	return result.RowsAffected, result.Error
}
