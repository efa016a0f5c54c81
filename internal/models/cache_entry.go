package models

import "time"

// CacheEntry is the persisted cache index: one row per request fingerprint.
// The serialized response body lives in a separate CacheBody row so that
// index scans (expiry, size accounting) never load response payloads.
type CacheEntry struct {
	Fingerprint string    `gorm:"primaryKey;size:64" json:"fingerprint"`
	Backend     string    `gorm:"size:50" json:"backend"`
	Model       string    `gorm:"size:100" json:"model"`
	SizeBytes   int64     `json:"size_bytes"`
	StoredAt    time.Time `gorm:"index" json:"stored_at"`
}

func (CacheEntry) TableName() string { return "cache_entries" }

// CacheBody holds the JSON-serialized response addressed by fingerprint.
type CacheBody struct {
	Fingerprint string `gorm:"primaryKey;size:64" json:"fingerprint"`
	Payload     []byte `json:"payload"`
}

func (CacheBody) TableName() string { return "cache_bodies" }
