package server

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"worker-hls/config"
	"worker-hls/constant"
	"worker-hls/repository"
	"worker-hls/service"
)

// App holds the components shared by the long-running server and the one-shot scan.
type App struct {
	Config       *config.Config
	DB           *gorm.DB
	Repo         repository.VideoRepository
	Store        repository.ProcessedStore
	Orchestrator *service.Orchestrator
	Scanner      *service.Scanner
	Locator      *service.Locator
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := config.NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return newApp(ctx, cfg, db)
}

func newApp(ctx context.Context, cfg *config.Config, db *gorm.DB) (*App, error) {
	store, err := repository.OpenProcessedStore(cfg.Paths.StateFile)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("path", cfg.Paths.StateFile).Msg("processed state unreadable, starting empty")
	}

	repo := repository.NewRepo(db, repository.MatchMode(cfg.Owner.Match))

	var publisher service.Publisher = service.NoopPublisher{}
	if cfg.Storage.Enabled {
		client, err := config.NewStorage(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("object storage: %w", err)
		}
		publisher = service.NewObjectPublisher(client, cfg.Storage.Bucket, cfg.Storage.Prefix)
	}

	locator := &service.Locator{
		UploadDir:    cfg.Paths.UploadDir,
		Targets:      cfg.Targets,
		Owners:       repo,
		Retries:      cfg.Owner.Retries,
		InitialDelay: cfg.Owner.InitialDelay,
	}
	layout := service.Layout{
		HLSDir:        cfg.Paths.HLSDir,
		PointerPrefix: cfg.Paths.PointerPrefix,
	}

	orchestrator := service.NewOrchestrator(service.Options{
		Locator:      locator,
		Monitor:      service.NewStabilityMonitor(cfg.Stability),
		Prober:       service.NewFFprobe(service.NewExecProcess(cfg.Encoder.FFprobe)),
		Encoder:      service.NewEncoder(service.NewExecProcess(cfg.Encoder.FFmpeg), cfg.Encoder.Timeout),
		Pointers:     repo,
		Store:        store,
		Publisher:    publisher,
		Layout:       layout,
		RequeueDelay: cfg.Stability.RequeueDelay,
		MaxRequeues:  cfg.Stability.MaxRequeues,
	})

	scanner := &service.Scanner{
		Targets: cfg.Targets,
		Rows:    repo,
		Locator: locator,
		Store:   store,
		Layout:  layout,
		Queue:   orchestrator,
		Source:  constant.TriggerScanner,
	}

	return &App{
		Config:       cfg,
		DB:           db,
		Repo:         repo,
		Store:        store,
		Orchestrator: orchestrator,
		Scanner:      scanner,
		Locator:      locator,
	}, nil
}
