package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"worker-hls/constant"
	"worker-hls/dto"
	"worker-hls/entities"
	"worker-hls/pkg/metrics"
	"worker-hls/repository"
)

type PointerWriter interface {
	UpdatePointer(ctx context.Context, owner entities.OwningRecord, pointer string) error
}

// errRequeued marks a job that was handed back to the queue rather than finished.
var errRequeued = errors.New("job requeued")

type Options struct {
	Locator      *Locator
	Monitor      StabilityChecker
	Prober       Prober
	Encoder      *Encoder
	Pointers     PointerWriter
	Store        repository.ProcessedStore
	Publisher    Publisher
	Layout       Layout
	RequeueDelay time.Duration
	MaxRequeues  int
}

// Orchestrator owns the job queue. Exactly one goroutine (Run) executes jobs, so at most
// one encode is in progress at any time. queue, pending, active and the counters are
// guarded by mu.
type Orchestrator struct {
	locator      *Locator
	monitor      StabilityChecker
	prober       Prober
	encoder      *Encoder
	validator    *Validator
	pointers     PointerWriter
	store        repository.ProcessedStore
	publisher    Publisher
	layout       Layout
	requeueDelay time.Duration
	maxRequeues  int

	mu        sync.Mutex
	queue     []*entities.Job
	pending   map[string]*entities.Job
	active    *entities.Job
	delayed   int
	completed int64
	failed    int64
	changed   chan struct{}
	wake      chan struct{}
}

func NewOrchestrator(opts Options) *Orchestrator {
	publisher := opts.Publisher
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &Orchestrator{
		locator:      opts.Locator,
		monitor:      opts.Monitor,
		prober:       opts.Prober,
		encoder:      opts.Encoder,
		validator:    opts.Encoder.Validator,
		pointers:     opts.Pointers,
		store:        opts.Store,
		publisher:    publisher,
		layout:       opts.Layout,
		requeueDelay: opts.RequeueDelay,
		maxRequeues:  opts.MaxRequeues,
		pending:      make(map[string]*entities.Job),
		changed:      make(chan struct{}),
		wake:         make(chan struct{}, 1),
	}
}

// Enqueue adds job unless a job for the same file is already known. A duplicate of the
// active job is dropped; a duplicate of a queued job is merged into it. It reports
// whether job was added as a new queue entry.
func (o *Orchestrator) Enqueue(job *entities.Job) bool {
	key := job.Key()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active != nil && o.active.Key() == key {
		metrics.JobsDedupedTotal.WithLabelValues(string(job.Source)).Inc()
		return false
	}
	if queued, ok := o.pending[key]; ok {
		queued.Force = queued.Force || job.Force
		if queued.Owner == nil && job.Owner != nil {
			queued.Owner = job.Owner
		}
		metrics.JobsDedupedTotal.WithLabelValues(string(job.Source)).Inc()
		return false
	}

	job.State = constant.JobStateQueued
	o.queue = append(o.queue, job)
	o.pending[key] = job
	metrics.JobsEnqueuedTotal.WithLabelValues(string(job.Source)).Inc()
	metrics.QueueDepth.Set(float64(len(o.queue)))
	o.broadcast()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return true
}

// Has reports whether fileName is queued or being processed.
func (o *Orchestrator) Has(fileName string) bool {
	key := constant.NormalizeName(fileName)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil && o.active.Key() == key {
		return true
	}
	_, ok := o.pending[key]
	return ok
}

// Run executes queued jobs in FIFO order until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	zerolog.Ctx(ctx).Info().Msg("worker started")
	for {
		job := o.next()
		if job == nil {
			select {
			case <-ctx.Done():
				zerolog.Ctx(ctx).Info().Msg("worker stopped")
				return nil
			case <-o.wake:
			}
			continue
		}

		err := o.process(ctx, job)
		o.finish(ctx, job, err)
	}
}

func (o *Orchestrator) next() *entities.Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return nil
	}
	job := o.queue[0]
	o.queue[0] = nil
	o.queue = o.queue[1:]
	delete(o.pending, job.Key())
	o.active = job
	metrics.QueueDepth.Set(float64(len(o.queue)))
	metrics.JobActive.Set(1)
	o.broadcast()
	return job
}

func (o *Orchestrator) finish(ctx context.Context, job *entities.Job, err error) {
	logger := zerolog.Ctx(ctx).With().Str("job_id", job.ID.String()).Str("file", job.FileName).Logger()

	o.mu.Lock()
	switch {
	case errors.Is(err, errRequeued):
		job.State = constant.JobStateQueued
	case err != nil:
		job.State = constant.JobStateFailed
		o.failed++
	default:
		job.State = constant.JobStateCompleted
		o.completed++
	}
	o.active = nil
	metrics.JobActive.Set(0)
	o.broadcast()
	o.mu.Unlock()

	switch {
	case errors.Is(err, errRequeued):
		logger.Info().Int("requeues", job.Requeues).Dur("delay", o.requeueDelay).Msg("job requeued")
	case err != nil:
		metrics.JobsFinishedTotal.WithLabelValues("failed").Inc()
		logger.Error().Err(err).Str("state", string(constant.JobStateFailed)).Msg("job failed")
	default:
		metrics.JobsFinishedTotal.WithLabelValues("completed").Inc()
		logger.Info().Str("state", string(constant.JobStateCompleted)).Msg("job completed")
	}
}

func (o *Orchestrator) setState(ctx context.Context, job *entities.Job, state constant.JobState) {
	o.mu.Lock()
	job.State = state
	o.mu.Unlock()
	zerolog.Ctx(ctx).Debug().Str("state", string(state)).Msg("job state")
}

// requeueLater puts job back on the queue after requeueDelay. WaitIdle keeps waiting
// while a requeue is pending.
func (o *Orchestrator) requeueLater(job *entities.Job) {
	o.mu.Lock()
	o.delayed++
	job.Requeues++
	o.mu.Unlock()
	metrics.JobsRequeuedTotal.Inc()

	time.AfterFunc(o.requeueDelay, func() {
		o.Enqueue(job)
		o.mu.Lock()
		o.delayed--
		o.broadcast()
		o.mu.Unlock()
	})
}

// broadcast wakes WaitIdle callers. Callers hold mu.
func (o *Orchestrator) broadcast() {
	close(o.changed)
	o.changed = make(chan struct{})
}

// WaitIdle blocks until nothing is queued, active or waiting to be requeued.
func (o *Orchestrator) WaitIdle(ctx context.Context) error {
	for {
		o.mu.Lock()
		idle := o.active == nil && len(o.queue) == 0 && o.delayed == 0
		changed := o.changed
		o.mu.Unlock()
		if idle {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

func (o *Orchestrator) Status() dto.StatusResponse {
	o.mu.Lock()
	defer o.mu.Unlock()

	status := dto.StatusResponse{
		Queued:    make([]dto.JobView, 0, len(o.queue)),
		Completed: o.completed,
		Failed:    o.failed,
	}
	if o.active != nil {
		view := jobView(o.active)
		status.Active = &view
	}
	for _, job := range o.queue {
		status.Queued = append(status.Queued, jobView(job))
	}
	return status
}

func jobView(job *entities.Job) dto.JobView {
	return dto.JobView{
		Id:         job.ID.String(),
		FileName:   job.FileName,
		Force:      job.Force,
		Source:     string(job.Source),
		State:      string(job.State),
		EnqueuedAt: job.EnqueuedAt,
	}
}

// OnCreate handles a new upload: a fresh job.
func (o *Orchestrator) OnCreate(ctx context.Context, path string) {
	if o.Enqueue(entities.NewJob(path, false, constant.TriggerWatcher)) {
		zerolog.Ctx(ctx).Info().Str("file", path).Msg("new upload queued")
	}
}

// OnModify handles an overwritten upload: a forced job.
func (o *Orchestrator) OnModify(ctx context.Context, path string) {
	if o.Enqueue(entities.NewJob(path, true, constant.TriggerWatcher)) {
		zerolog.Ctx(ctx).Info().Str("file", path).Msg("modified upload queued")
	}
}

// OnDelete removes the rendition of a deleted upload along with its processed entry and
// mirrored objects. It never touches the database pointer. An encode already running
// for the same file is not interrupted.
func (o *Orchestrator) OnDelete(ctx context.Context, path string) {
	baseName := constant.BaseName(path)
	logger := zerolog.Ctx(ctx).With().Str("file", path).Logger()

	o.mu.Lock()
	key := constant.NormalizeName(path)
	if queued, ok := o.pending[key]; ok {
		delete(o.pending, key)
		for i, job := range o.queue {
			if job == queued {
				o.queue = append(o.queue[:i], o.queue[i+1:]...)
				break
			}
		}
		metrics.QueueDepth.Set(float64(len(o.queue)))
		o.broadcast()
	}
	o.mu.Unlock()

	if err := os.RemoveAll(o.layout.RenditionDir(baseName)); err != nil {
		logger.Error().Err(err).Msg("failed to remove rendition")
	}
	if err := o.store.Delete(path); err != nil {
		logger.Error().Err(err).Msg("failed to drop processed entry")
	}
	if err := o.publisher.Remove(ctx, baseName); err != nil {
		logger.Error().Err(err).Msg("failed to remove mirrored rendition")
	}
	logger.Info().Str("base_name", baseName).Msg("rendition removed")
}

// sourcePath resolves the file a job refers to. Jobs carrying a full path use it when it
// still exists; anything else is looked up under the upload root by name.
func (o *Orchestrator) sourcePath(job *entities.Job) (string, error) {
	if filepath.IsAbs(job.Path) {
		if info, err := os.Stat(job.Path); err == nil && info.Mode().IsRegular() {
			return job.Path, nil
		}
	}
	if path, ok := o.locator.Locate(job.FileName); ok {
		return path, nil
	}
	return "", fmt.Errorf("%w: %s", ErrSourceNotFound, job.FileName)
}

func (o *Orchestrator) process(ctx context.Context, job *entities.Job) error {
	logger := zerolog.Ctx(ctx).With().
		Str("job_id", job.ID.String()).
		Str("file", job.FileName).
		Bool("force", job.Force).
		Str("source", string(job.Source)).
		Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Msg("processing job")

	o.setState(ctx, job, constant.JobStateStabilityCheck)
	path, err := o.sourcePath(job)
	if err != nil {
		return err
	}

	started := time.Now()
	result, asset := o.monitor.Wait(ctx, path)
	metrics.StabilityWait.WithLabelValues(result.String()).Observe(time.Since(started).Seconds())
	switch result {
	case Unstable:
		if ctx.Err() == nil && job.Requeues < o.maxRequeues {
			o.requeueLater(job)
			return errRequeued
		}
		return errors.Join(ErrUnstableSource, fmt.Errorf("%s vanished while being written", path))
	case TimedOut:
		if ctx.Err() != nil {
			return errors.Join(ErrUnstableSource, ctx.Err())
		}
		return errors.Join(ErrUnstableSource, fmt.Errorf("size of %s did not settle", path))
	}

	o.setState(ctx, job, constant.JobStateValidatingSource)
	duration, err := o.prober.Probe(ctx, path)
	if err != nil {
		return err
	}
	logger.Debug().Float64("duration", duration).Msg("source probed")

	owner := job.Owner
	if owner == nil {
		// The lookup uses the name on disk since owner tables may match case-sensitively.
		owner, err = o.locator.ResolveOwner(ctx, asset.FileName)
		if err != nil {
			return err
		}
	}
	logger = logger.With().Str("table", owner.Table).Str("row_id", owner.RowID).Logger()
	ctx = logger.WithContext(ctx)

	outputDir := o.layout.RenditionDir(asset.BaseName)
	pointer := o.layout.Pointer(asset.BaseName)

	reuse := !job.Force && o.store.IsCurrent(asset) && o.validator.ValidateAll(outputDir, asset.BaseName) == nil
	if reuse {
		metrics.EncodeSkippedTotal.Inc()
		logger.Info().Str("dir", outputDir).Msg("valid rendition found, skipping encode")
	} else {
		o.setState(ctx, job, constant.JobStateEncoding)
		if err := o.store.Delete(asset.FileName); err != nil {
			logger.Warn().Err(err).Msg("failed to invalidate processed entry")
		}
		if err := os.RemoveAll(outputDir); err != nil {
			return errors.Join(ErrEncodeFailure, fmt.Errorf("remove previous rendition: %w", err))
		}

		encodeStarted := time.Now()
		if _, err := o.encoder.Transcode(ctx, path, outputDir, asset.BaseName); err != nil {
			return err
		}
		metrics.EncodeDuration.Observe(time.Since(encodeStarted).Seconds())
	}

	o.setState(ctx, job, constant.JobStateValidatingOutput)
	if err := o.validator.ValidateAll(outputDir, asset.BaseName); err != nil {
		return err
	}
	if !reuse {
		if err := o.publisher.Publish(ctx, outputDir, asset.BaseName); err != nil {
			logger.Error().Err(err).Msg("failed to mirror rendition")
		}
	}

	o.setState(ctx, job, constant.JobStatePersisting)
	if _, statErr := os.Stat(path); statErr != nil {
		if err := os.RemoveAll(outputDir); err != nil {
			logger.Warn().Err(err).Msg("failed to remove orphaned rendition")
		}
		if err := o.store.Delete(asset.FileName); err != nil {
			logger.Warn().Err(err).Msg("failed to drop processed entry")
		}
		return errors.Join(ErrSourceNotFound, fmt.Errorf("%s removed before pointer was persisted: %w", path, statErr))
	}
	if err := o.pointers.UpdatePointer(ctx, *owner, pointer); err != nil {
		return errors.Join(ErrPersistenceFailure, err)
	}
	if err := o.store.Put(asset.FileName, entities.NewProcessedEntry(asset, pointer)); err != nil {
		logger.Warn().Err(err).Msg("failed to record processed entry")
	}

	logger.Info().Str("pointer", pointer).Msg("rendition pointer persisted")
	return nil
}
