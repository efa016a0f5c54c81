package services

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/animastudio/aihub/internal/models"
	"github.com/animastudio/aihub/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResponseCacheService is the persistent fingerprint-keyed response cache.
// Entries expire after the configured TTL and the total stored size is kept
// under the configured byte budget by evicting oldest entries first.
//
// Get, Put and Cleanup are serialized by a single mutex so a read can never
// observe a partially deleted entry.
type ResponseCacheService struct {
	db      *gorm.DB
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int64
	hits    atomic.Int64
	misses  atomic.Int64
}

func NewResponseCacheService(db *gorm.DB, expireHours, sizeMB int) *ResponseCacheService {
	return &ResponseCacheService{
		db:      db,
		ttl:     time.Duration(expireHours) * time.Hour,
		maxSize: int64(sizeMB) * 1024 * 1024,
	}
}

// SetLimits applies a configuration update to the TTL and byte budget.
// The new budget takes effect on the next cleanup.
func (s *ResponseCacheService) SetLimits(expireHours, sizeMB int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttl = time.Duration(expireHours) * time.Hour
	s.maxSize = int64(sizeMB) * 1024 * 1024
}

// Get returns the cached response for the request, if a live entry exists.
// An expired entry is treated as absent and removed as a side effect. A
// corrupt or unreadable body is treated as a miss and removed, never
// surfaced to the caller.
func (s *ResponseCacheService) Get(req *GenerationRequest) (*GenerationResponse, bool) {
	fingerprint := Fingerprint(req)

	s.mu.Lock()
	defer s.mu.Unlock()

	var entry models.CacheEntry
	if err := s.db.First(&entry, "fingerprint = ?", fingerprint).Error; err != nil {
		s.misses.Add(1)
		return nil, false
	}

	if time.Since(entry.StoredAt) > s.ttl {
		s.removeLocked(fingerprint)
		s.misses.Add(1)
		return nil, false
	}

	var body models.CacheBody
	if err := s.db.First(&body, "fingerprint = ?", fingerprint).Error; err != nil {
		// Index row without a body: self-heal and report a miss.
		logger.Warnf("[Cache] Missing body for entry %s..., removing", fingerprint[:8])
		s.removeLocked(fingerprint)
		s.misses.Add(1)
		return nil, false
	}

	var resp GenerationResponse
	if err := json.Unmarshal(body.Payload, &resp); err != nil {
		logger.Warnf("[Cache] Corrupt body for entry %s..., removing: %v", fingerprint[:8], err)
		s.removeLocked(fingerprint)
		s.misses.Add(1)
		return nil, false
	}

	resp.Cached = true
	s.hits.Add(1)
	logger.Debugf("[Cache] Hit: %s...", fingerprint[:8])
	return &resp, true
}

// Put stores the response under the request's fingerprint, overwriting any
// previous entry, then runs cleanup so the size budget holds before Put
// returns.
func (s *ResponseCacheService) Put(req *GenerationRequest, resp *GenerationResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	fingerprint := Fingerprint(req)

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		entry := models.CacheEntry{
			Fingerprint: fingerprint,
			Backend:     string(resp.Backend),
			Model:       resp.Model,
			SizeBytes:   int64(len(payload)),
			StoredAt:    resp.CreatedAt,
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&entry).Error; err != nil {
			return err
		}
		body := models.CacheBody{Fingerprint: fingerprint, Payload: payload}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&body).Error
	})
	if err != nil {
		return err
	}

	logger.Debugf("[Cache] Stored: %s... (%d bytes)", fingerprint[:8], len(payload))
	return s.cleanupLocked()
}

// Remove deletes the entry and its body.
func (s *ResponseCacheService) Remove(fingerprint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(fingerprint)
}

func (s *ResponseCacheService) removeLocked(fingerprint string) {
	s.db.Delete(&models.CacheEntry{}, "fingerprint = ?", fingerprint)
	s.db.Delete(&models.CacheBody{}, "fingerprint = ?", fingerprint)
}

// Cleanup removes expired entries, then evicts oldest entries until the
// total stored size is within the byte budget.
func (s *ResponseCacheService) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupLocked()
}

func (s *ResponseCacheService) cleanupLocked() error {
	cutoff := time.Now().Add(-s.ttl)

	var expired []string
	if err := s.db.Model(&models.CacheEntry{}).
		Where("stored_at < ?", cutoff).
		Pluck("fingerprint", &expired).Error; err != nil {
		return err
	}
	for _, fingerprint := range expired {
		s.removeLocked(fingerprint)
	}
	if len(expired) > 0 {
		logger.Infof("[Cache] Expired %d entries", len(expired))
	}

	total, err := s.totalSize()
	if err != nil {
		return err
	}
	if total <= s.maxSize {
		return nil
	}

	var oldest []models.CacheEntry
	if err := s.db.Order("stored_at ASC").Find(&oldest).Error; err != nil {
		return err
	}
	evicted := 0
	for _, entry := range oldest {
		if total <= s.maxSize {
			break
		}
		s.removeLocked(entry.Fingerprint)
		total -= entry.SizeBytes
		evicted++
	}
	if evicted > 0 {
		logger.Infof("[Cache] Evicted %d entries to fit %d byte budget", evicted, s.maxSize)
	}
	return nil
}

func (s *ResponseCacheService) totalSize() (int64, error) {
	var total int64
	err := s.db.Model(&models.CacheEntry{}).
		Select("COALESCE(SUM(size_bytes), 0)").
		Scan(&total).Error
	return total, err
}

// Clear removes every cache entry.
func (s *ResponseCacheService) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.CacheEntry{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&models.CacheBody{}).Error
	})
}

// CacheStats reports cache occupancy and hit counters.
type CacheStats struct {
	Entries    int64 `json:"entries"`
	TotalBytes int64 `json:"total_bytes"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
}

func (s *ResponseCacheService) Stats() (*CacheStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries int64
	if err := s.db.Model(&models.CacheEntry{}).Count(&entries).Error; err != nil {
		return nil, err
	}
	total, err := s.totalSize()
	if err != nil {
		return nil, err
	}
	return &CacheStats{
		Entries:    entries,
		TotalBytes: total,
		Hits:       s.hits.Load(),
		Misses:     s.misses.Load(),
	}, nil
}
