package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/exportd/internal/assets"
	"github.com/clipforge/exportd/internal/filtergraph"
	"github.com/clipforge/exportd/internal/logging"
	"github.com/clipforge/exportd/internal/timeline"
)

var (
	ErrInvalidTimeline = errors.New("export: timeline failed validation")
	ErrQueueFull       = errors.New("export: queue is full")
	ErrJobNotFound     = errors.New("export: job not found")
	ErrJobFinished     = errors.New("export: job already finished")
)

// Progress milestones for each job phase. Within the download and render
// phases progress moves proportionally between the surrounding milestones.
const (
	progressValidated  = 10
	progressDownloaded = 40
	progressConfigured = 45
	progressRendered   = 90
	progressDone       = 100
)

// AssetResolver materializes one element's media into the job directory.
type AssetResolver interface {
	Resolve(ctx context.Context, jobDir string, el *timeline.Element) (string, error)
}

// Renderer executes a built plan into an output file.
type Renderer interface {
	Render(ctx context.Context, plan *filtergraph.Plan, settings timeline.ExportSettings, outPath string, onProgress func(float64)) error
}

// ArtifactPublisher uploads a finished render and returns its download URL.
type ArtifactPublisher interface {
	Publish(ctx context.Context, jobID, localPath string) (string, error)
}

// Config holds the orchestrator's tuning knobs.
type Config struct {
	Workers       int
	QueueSize     int
	TempDir       string
	Limits        timeline.Limits
	JobRetention  time.Duration
	SweepInterval time.Duration
	Logger        *slog.Logger
}

type task struct {
	jobID string
	req   Request
}

// Orchestrator accepts export requests, validates them synchronously, and
// drives queued jobs through download, rendering and publication on a
// bounded worker pool.
type Orchestrator struct {
	store     Store
	assets    AssetResolver
	builder   *filtergraph.Builder
	renderer  Renderer
	publisher ArtifactPublisher
	cfg       Config

	queue   chan task
	cancels sync.Map // job ID -> context.CancelFunc
}

func NewOrchestrator(store Store, resolver AssetResolver, builder *filtergraph.Builder, renderer Renderer, publisher ArtifactPublisher, cfg Config) *Orchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	return &Orchestrator{
		store:     store,
		assets:    resolver,
		builder:   builder,
		renderer:  renderer,
		publisher: publisher,
		cfg:       cfg,
		queue:     make(chan task, cfg.QueueSize),
	}
}

// Run starts the worker pool and the retention sweeper, blocking until ctx
// is canceled and all in-flight jobs have returned.
func (o *Orchestrator) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			o.work(ctx, worker)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.sweepLoop(ctx)
	}()

	o.cfg.Logger.Info("orchestrator started",
		"workers", o.cfg.Workers,
		"queue_size", o.cfg.QueueSize,
		"retention", o.cfg.JobRetention,
	)
	wg.Wait()
}

// Start validates the request, persists a queued job, and enqueues it.
// Validation errors are returned together with the report so the API can
// surface them; the corrected timeline is what gets rendered.
func (o *Orchestrator) Start(ctx context.Context, req Request) (*Job, *timeline.ValidationReport, error) {
	report := timeline.Validate(req.Elements, req.Tracks, req.Settings, o.cfg.Limits)
	if !report.Valid {
		return nil, &report, ErrInvalidTimeline
	}
	req.Elements = report.Corrected

	now := time.Now().UTC()
	job := &Job{
		ID:         uuid.NewString(),
		Status:     StatusQueued,
		Progress:   progressValidated,
		Resolution: req.Settings.Resolution,
		FPS:        req.Settings.FPS,
		Quality:    req.Settings.Quality,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.store.Create(ctx, job); err != nil {
		return nil, nil, fmt.Errorf("cannot persist job: %w", err)
	}

	select {
	case o.queue <- task{jobID: job.ID, req: req}:
	default:
		if err := o.store.UpdateStatus(ctx, job.ID, StatusFailed, "export queue is full"); err != nil {
			o.cfg.Logger.Error("cannot fail over-capacity job", "job_id", job.ID, "error", err)
		}
		return nil, &report, ErrQueueFull
	}

	o.cfg.Logger.Info("job queued",
		"job_id", job.ID,
		"elements", len(req.Elements),
		"resolution", req.Settings.Resolution,
		"warnings", len(report.Warnings),
	)
	return job, &report, nil
}

// Get returns the job record, or ErrJobNotFound.
func (o *Orchestrator) Get(ctx context.Context, id string) (*Job, error) {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// Cancel fails a queued or processing job and interrupts its render. A
// terminal job cannot be canceled.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrJobNotFound
	}
	if job.Status.Terminal() {
		return ErrJobFinished
	}

	if err := o.store.UpdateStatus(ctx, id, StatusFailed, "canceled by user"); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return ErrJobFinished
		}
		return err
	}
	if cancel, ok := o.cancels.Load(id); ok {
		cancel.(context.CancelFunc)()
	}
	o.cfg.Logger.Info("job canceled", "job_id", id)
	return nil
}

func (o *Orchestrator) work(ctx context.Context, worker int) {
	logger := o.cfg.Logger.With("worker", worker)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-o.queue:
			o.process(ctx, t, logger)
		}
	}
}

func (o *Orchestrator) process(ctx context.Context, t task, logger *slog.Logger) {
	jobCtx, cancel := context.WithCancel(ctx)
	o.cancels.Store(t.jobID, cancel)
	defer func() {
		o.cancels.Delete(t.jobID)
		cancel()
	}()

	// claiming doubles as the cancellation check: a job canceled while
	// queued is already failed and the transition is rejected
	if err := o.store.UpdateStatus(ctx, t.jobID, StatusProcessing, ""); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			logger.Info("skipping canceled job", "job_id", t.jobID)
			return
		}
		logger.Error("cannot claim job", "job_id", t.jobID, "error", err)
		return
	}

	jobDir := filepath.Join(o.cfg.TempDir, t.jobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		o.fail(ctx, t.jobID, fmt.Sprintf("cannot create work dir: %v", err), logger)
		return
	}
	defer o.cleanup(t.jobID, jobDir, logger)

	logger = logging.WithJobID(logger, t.jobID)
	start := time.Now()

	assetPaths, ok := o.download(jobCtx, t, jobDir, logging.WithPhase(logger, "download"))
	if !ok {
		return
	}
	o.progress(ctx, t.jobID, progressDownloaded)

	plan, err := o.builder.Build(t.req.Elements, t.req.Tracks, t.req.Settings, assetPaths)
	if err != nil {
		o.fail(ctx, t.jobID, fmt.Sprintf("cannot build filter graph: %v", err), logger)
		return
	}
	o.progress(ctx, t.jobID, progressConfigured)

	outPath := filepath.Join(jobDir, "output.mp4")
	renderSpan := progressRendered - progressConfigured
	err = o.renderer.Render(jobCtx, plan, t.req.Settings, outPath, func(fraction float64) {
		o.progress(ctx, t.jobID, progressConfigured+int(fraction*float64(renderSpan)))
	})
	if err != nil {
		if jobCtx.Err() != nil && ctx.Err() == nil {
			// interrupted by Cancel; the status is already failed
			logger.Info("render interrupted by cancellation")
			return
		}
		o.fail(ctx, t.jobID, err.Error(), logger)
		return
	}
	o.progress(ctx, t.jobID, progressRendered)

	url, err := o.publisher.Publish(jobCtx, t.jobID, outPath)
	if err != nil {
		o.fail(ctx, t.jobID, fmt.Sprintf("publish failed: %v", err), logger)
		return
	}

	if err := o.store.SetDownloadURL(ctx, t.jobID, url); err != nil {
		logger.Error("cannot record download url", "error", err)
	}
	o.progress(ctx, t.jobID, progressDone)
	if err := o.store.UpdateStatus(ctx, t.jobID, StatusCompleted, ""); err != nil {
		logger.Error("cannot complete job", "error", err)
		return
	}

	logger.Info("job completed", "duration_ms", time.Since(start).Milliseconds())
}

// download materializes every asset-backed element, reporting proportional
// progress. Placeholder assets are skipped; any other failure fails the job.
func (o *Orchestrator) download(ctx context.Context, t task, jobDir string, logger *slog.Logger) (map[string]string, bool) {
	var needed []timeline.Element
	for _, el := range t.req.Elements {
		if el.RequiresAsset() {
			needed = append(needed, el)
		}
	}

	assetPaths := make(map[string]string, len(needed))
	span := progressDownloaded - progressValidated
	for i, el := range needed {
		path, err := o.assets.Resolve(ctx, jobDir, &el)
		if err != nil {
			if errors.Is(err, assets.ErrPlaceholderAsset) {
				logger.Warn("skipping placeholder asset", "element_id", el.ID)
				continue
			}
			o.fail(ctx, t.jobID, fmt.Sprintf("asset download failed for element %s: %v", el.ID, err), logger)
			return nil, false
		}
		assetPaths[el.ID] = path
		o.progress(ctx, t.jobID, progressValidated+span*(i+1)/len(needed))
	}
	return assetPaths, true
}

func (o *Orchestrator) progress(ctx context.Context, jobID string, value int) {
	if err := o.store.UpdateProgress(ctx, jobID, value); err != nil {
		o.cfg.Logger.Error("cannot update progress", "job_id", jobID, "error", err)
	}
}

func (o *Orchestrator) fail(ctx context.Context, jobID, msg string, logger *slog.Logger) {
	err := o.store.UpdateStatus(ctx, jobID, StatusFailed, msg)
	if err != nil && !errors.Is(err, ErrInvalidTransition) {
		logger.Error("cannot fail job", "job_id", jobID, "error", err)
		return
	}
	logger.Warn("job failed", "job_id", jobID, "reason", msg)
}

// cleanup removes the job's work directory. Failures are logged, never
// propagated; a stale temp dir must not fail a finished job.
func (o *Orchestrator) cleanup(jobID, jobDir string, logger *slog.Logger) {
	if err := os.RemoveAll(jobDir); err != nil {
		logger.Warn("cannot remove work dir", "job_id", jobID, "error", err)
	}
}

func (o *Orchestrator) sweepLoop(ctx context.Context) {
	if o.cfg.SweepInterval <= 0 || o.cfg.JobRetention <= 0 {
		return
	}
	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Sweep(ctx)
		}
	}
}

// Sweep deletes terminal jobs older than the retention window, together with
// any work files left on disk.
func (o *Orchestrator) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-o.cfg.JobRetention)
	expired, err := o.store.ListExpired(ctx, cutoff)
	if err != nil {
		o.cfg.Logger.Error("retention sweep failed", "error", err)
		return
	}

	for _, job := range expired {
		if err := os.RemoveAll(filepath.Join(o.cfg.TempDir, job.ID)); err != nil {
			o.cfg.Logger.Warn("cannot remove expired work dir", "job_id", job.ID, "error", err)
		}
		if err := o.store.Delete(ctx, job.ID); err != nil {
			o.cfg.Logger.Error("cannot delete expired job", "job_id", job.ID, "error", err)
			continue
		}
		o.cfg.Logger.Info("expired job removed", "job_id", job.ID, "completed_at", job.CompletedAt)
	}
}
