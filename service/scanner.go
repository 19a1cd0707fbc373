package service

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"worker-hls/constant"
	"worker-hls/entities"
	"worker-hls/pkg/metrics"
	"worker-hls/repository"
)

type CandidateLister interface {
	ListCandidates(ctx context.Context, target entities.Target) ([]entities.OwningRecord, error)
}

type JobQueue interface {
	Enqueue(job *entities.Job) bool
	Has(fileName string) bool
}

// Scanner finds rows whose pointer is missing, foreign or stale and queues a job for them.
type Scanner struct {
	Targets []entities.Target
	Rows    CandidateLister
	Locator *Locator
	Store   repository.ProcessedStore
	Layout  Layout
	Queue   JobQueue
	Source  constant.TriggerSource
}

// Scan makes one pass over every target and returns the number of jobs enqueued. A failing
// target is logged and the pass moves on; the joined target errors are returned.
func (s *Scanner) Scan(ctx context.Context) (int, error) {
	source := s.Source
	if source == "" {
		source = constant.TriggerScanner
	}

	var (
		enqueued int
		errs     []error
	)
	for _, target := range s.Targets {
		rows, err := s.Rows.ListCandidates(ctx, target)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("table", target.Table).Msg("scan target failed")
			errs = append(errs, err)
			continue
		}
		for _, row := range rows {
			if ctx.Err() != nil {
				return enqueued, ctx.Err()
			}
			job, ok := s.classify(ctx, row, source)
			if !ok {
				continue
			}
			if s.Queue.Enqueue(job) {
				enqueued++
			}
		}
	}

	status := "ok"
	if len(errs) > 0 {
		status = "error"
	}
	metrics.ScansTotal.WithLabelValues(status).Inc()
	metrics.ScanEnqueuedTotal.Add(float64(enqueued))
	return enqueued, errors.Join(errs...)
}

// classify decides whether row needs work, returning the job to enqueue.
func (s *Scanner) classify(ctx context.Context, row entities.OwningRecord, source constant.TriggerSource) (*entities.Job, bool) {
	fileName := filepath.Base(filepath.FromSlash(row.SourceValue))
	if fileName == "" || !constant.IsVideoFile(fileName) {
		return nil, false
	}
	if s.Queue.Has(fileName) {
		return nil, false
	}

	logger := zerolog.Ctx(ctx).With().Str("table", row.Table).Str("row_id", row.RowID).Str("file", fileName).Logger()

	path, found := s.Locator.Locate(fileName)
	if !found {
		logger.Debug().Msg("referenced file not found, skipping")
		return nil, false
	}

	var force bool
	current := row.CurrentPointer()
	expected := s.Layout.Pointer(constant.BaseName(path))
	switch {
	case current == "":
		force = false
	case current != expected:
		force = true
	default:
		asset, err := entities.StatAsset(path)
		if err != nil {
			logger.Warn().Err(err).Msg("stat failed, skipping")
			return nil, false
		}
		if s.Store.IsCurrent(asset) {
			return nil, false
		}
		force = true
	}

	owner := row
	job := entities.NewJob(path, force, source)
	job.Owner = &owner
	logger.Info().Bool("force", force).Str("pointer", current).Msg("scanner queued row")
	return job, true
}

// ScanUploads walks the upload root and queues a fresh job for every video without a
// current processed entry. Dot-directories are skipped.
func (s *Scanner) ScanUploads(ctx context.Context) (int, error) {
	root := s.Locator.UploadDir
	enqueued := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !constant.IsVideoFile(path) || s.Queue.Has(path) {
			return nil
		}

		asset, err := entities.StatAsset(path)
		if err != nil || s.Store.IsCurrent(asset) {
			return nil
		}
		if s.Queue.Enqueue(entities.NewJob(path, false, constant.TriggerCLI)) {
			enqueued++
		}
		return nil
	})
	return enqueued, err
}

// Run scans every interval until ctx is done.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.Scan(ctx); err != nil && ctx.Err() == nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("scan pass finished with errors")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
