package services

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/animastudio/aihub/pkg/logger"
)

// MaintenanceService runs the periodic background sweeps: hourly cache
// cleanup (expiry plus size eviction) and daily pruning of old audit rows.
type MaintenanceService struct {
	cache         *ResponseCacheService
	usage         *UsageMeterService
	retentionDays int
	scheduler     *cron.Cron
}

func NewMaintenanceService(cache *ResponseCacheService, usage *UsageMeterService, retentionDays int) *MaintenanceService {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &MaintenanceService{
		cache:         cache,
		usage:         usage,
		retentionDays: retentionDays,
	}
}

func (s *MaintenanceService) Start() {
	s.scheduler = cron.New()

	s.scheduler.AddFunc("@hourly", func() {
		if err := s.cache.Cleanup(); err != nil {
			logger.Warnf("[Maintenance] Cache cleanup failed: %v", err)
		}
	})

	s.scheduler.AddFunc("30 3 * * *", func() {
		before := time.Now().AddDate(0, 0, -s.retentionDays)
		pruned, err := s.usage.PruneLogs(before)
		if err != nil {
			logger.Warnf("[Maintenance] Log pruning failed: %v", err)
			return
		}
		if pruned > 0 {
			logger.Infof("[Maintenance] Pruned %d generation logs older than %d days", pruned, s.retentionDays)
		}
	})

	s.scheduler.Start()
	logger.Infof("[Maintenance] Scheduler started (retention: %d days)", s.retentionDays)
}

func (s *MaintenanceService) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
