package main

import (
	"fmt"

	"github.com/maxMuster194/testchart-sub002/internal/config"
	"github.com/maxMuster194/testchart-sub002/internal/logger"
	"github.com/maxMuster194/testchart-sub002/internal/metrics"
	"github.com/maxMuster194/testchart-sub002/internal/repo"
	"github.com/maxMuster194/testchart-sub002/internal/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// app holds everything both commands need: config, logger, database and the
// wired services.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	db       *gorm.DB
	registry *prometheus.Registry

	logService    *services.LogService
	marketService *services.MarketService
	priceService  *services.PriceService
	pipeline      *services.PipelineService
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	db, err := repo.Connect(cfg.Database.DSN, logger.NewGormLogger(log, gormlogger.Warn))
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	a := &app{cfg: cfg, log: log, db: db}
	if err := a.wire(); err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

func (a *app) wire() error {
	if err := repo.Migrate(a.db, a.cfg.Markets); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	logService, err := services.NewLogService(a.db)
	if err != nil {
		return fmt.Errorf("create log service: %w", err)
	}
	a.logService = logService

	marketService, err := services.NewMarketService(a.db)
	if err != nil {
		return fmt.Errorf("create market service: %w", err)
	}
	a.marketService = marketService

	priceService, err := services.NewPriceService(a.db, marketService, logService)
	if err != nil {
		return fmt.Errorf("create price service: %w", err)
	}
	a.priceService = priceService

	sftpService, err := services.NewSftpService(a.cfg.SFTP, a.log)
	if err != nil {
		return fmt.Errorf("create sftp service: %w", err)
	}

	csvService, err := services.NewCsvService(a.cfg.CSV)
	if err != nil {
		return fmt.Errorf("create csv service: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	ingestMetrics, err := metrics.New(a.registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	opts := []services.PipelineOption{
		services.WithLogger(a.log),
		services.WithCycleObserver(ingestMetrics),
	}
	if a.cfg.Snapshot.Enabled {
		snapshotService, err := services.NewSnapshotService(a.cfg.Snapshot.Dir, a.log)
		if err != nil {
			return fmt.Errorf("create snapshot service: %w", err)
		}
		opts = append(opts, services.WithSnapshotWriter(snapshotService))
	}

	pipeline, err := services.NewPipelineService(marketService, sftpService, csvService, priceService, logService, opts...)
	if err != nil {
		return fmt.Errorf("create pipeline service: %w", err)
	}
	a.pipeline = pipeline

	return nil
}

func (a *app) close() {
	if err := repo.Close(a.db); err != nil {
		a.log.Warn("close database", zap.Error(err))
	}
	_ = a.log.Sync()
}
