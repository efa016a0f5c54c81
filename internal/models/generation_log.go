package models

import "time"

// GenerationLog records each dispatch outcome for auditing and trend
// analytics. Cached hits are logged with Cached=true and zero cost.
type GenerationLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RequestID    string    `gorm:"size:36;index" json:"request_id"`
	Backend      string    `gorm:"size:50;index" json:"backend"`
	Model        string    `gorm:"size:100" json:"model"`
	Tokens       int       `json:"tokens"`
	Cost         float64   `json:"cost"`
	LatencyMs    int64     `json:"latency_ms"`
	Cached       bool      `json:"cached"`
	Success      bool      `json:"success"`
	ErrorMessage string    `gorm:"size:500" json:"error_message,omitempty"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (GenerationLog) TableName() string { return "generation_logs" }
