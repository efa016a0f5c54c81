package main

import (
	"os"

	"github.com/animastudio/aihub/internal/config"
	"github.com/animastudio/aihub/internal/handlers"
	"github.com/animastudio/aihub/internal/models"
	"github.com/animastudio/aihub/internal/services"
	"github.com/animastudio/aihub/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg         *config.Config
	registry    *services.BackendRegistryService
	cache       *services.ResponseCacheService
	usage       *services.UsageMeterService
	dispatcher  *services.DispatcherService
	maintenance *services.MaintenanceService
	taskQueue   services.TaskQueue
	worker      *services.Worker

	generateHandler *handlers.GenerateHandler
	backendHandler  *handlers.BackendHandler
	usageHandler    *handlers.UsageHandler
	cacheHandler    *handlers.CacheHandler
	configHandler   *handlers.ConfigHandler
	healthHandler   *handlers.HealthHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto migrate database
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	db := models.GetDB()

	// Core dispatch services
	registry := services.NewBackendRegistryService(&cfg.AI)
	cache := services.NewResponseCacheService(db, cfg.AI.CacheExpireHours, cfg.AI.CacheSizeMB)
	usage := services.NewUsageMeterService(db, cfg.AI.DailyLimit, cfg.AI.MonthlyLimit, cfg.AI.CostLimit)
	dispatcher := services.NewDispatcherService(&cfg.AI, registry, cache, usage)

	// Background maintenance: cache sweeps and audit-log retention
	maintenance := services.NewMaintenanceService(cache, usage, cfg.AI.LogRetentionDays)
	maintenance.Start()

	// Initialize task queue (uses Redis if enabled, otherwise sync mode)
	taskQueue := services.InitTaskQueue(cfg)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(dispatcher.ProcessGenerationTask)
	}

	// Start async worker if Redis is enabled
	var worker *services.Worker
	if cfg.Redis.Enabled {
		worker = services.InitWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(dispatcher.ProcessGenerationTask)
			worker.Start()
		}
	}

	configPath := os.Getenv("CONFIG_PATH")

	return &appServices{
		cfg:         cfg,
		registry:    registry,
		cache:       cache,
		usage:       usage,
		dispatcher:  dispatcher,
		maintenance: maintenance,
		taskQueue:   taskQueue,
		worker:      worker,

		generateHandler: handlers.NewGenerateHandler(dispatcher, taskQueue),
		backendHandler:  handlers.NewBackendHandler(registry),
		usageHandler:    handlers.NewUsageHandler(usage),
		cacheHandler:    handlers.NewCacheHandler(cache),
		configHandler:   handlers.NewConfigHandler(cfg, configPath, registry, cache, usage, dispatcher),
		healthHandler:   handlers.NewHealthHandler(db, taskQueue),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.maintenance.Stop()
	logger.Info().Msg("Maintenance scheduler stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
}
