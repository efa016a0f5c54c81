package models

import "time"

// UsageCounter accumulates per-backend request, token and cost totals for
// one accounting period. PeriodKey is "YYYY-MM-DD" for daily counters and
// "YYYY-MM" for monthly counters; a new period gets a fresh zeroed row.
// Counters are monotonically non-decreasing within a period.
type UsageCounter struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Backend   string    `gorm:"size:50;uniqueIndex:idx_usage_backend_period" json:"backend"`
	PeriodKey string    `gorm:"size:10;uniqueIndex:idx_usage_backend_period" json:"period_key"`
	Requests  int64     `json:"requests"`
	Tokens    int64     `json:"tokens"`
	Cost      float64   `json:"cost"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UsageCounter) TableName() string { return "usage_counters" }
