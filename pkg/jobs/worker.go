package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/casewatch/casewatch-engine/pkg/retry"
)

// Handler processes one claimed auto-close job.
type Handler interface {
	HandleAutoClose(ctx context.Context, username string) error
}

// WorkerConfig configures the local wiki's job worker.
type WorkerConfig struct {
	WikiID       string
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// Worker polls the queue for jobs addressed to the local wiki and hands
// them to the handler. Jobs run one at a time; a failed job goes back to
// pending until its attempt budget is spent.
type Worker struct {
	store   Store
	handler Handler
	cfg     WorkerConfig
	logger  *zap.Logger
}

// NewWorker creates a Worker.
func NewWorker(store Store, handler Handler, cfg WorkerConfig, logger *zap.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Worker{
		store:   store,
		handler: handler,
		cfg:     cfg,
		logger:  logger.Named("autoclose-worker"),
	}
}

// Run polls until ctx is cancelled. It returns ctx.Err() on shutdown.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		zap.String("wiki_id", w.cfg.WikiID),
		zap.Duration("poll_interval", w.cfg.PollInterval))

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := w.runOnce(ctx); err != nil {
				w.logger.Error("poll cycle failed", zap.Error(err))
			}
		}
	}
}

// runOnce claims one batch and processes it. The claim is retried only on
// transient store errors; a permanent error (bad SQL, missing table) surfaces
// immediately instead of burning the backoff budget every poll tick.
func (w *Worker) runOnce(ctx context.Context) error {
	var jobs []AutoCloseJob
	err := retry.DoIfRetryable(ctx, nil, func() error {
		var claimErr error
		jobs, claimErr = w.store.ClaimPending(ctx, w.cfg.WikiID, w.cfg.BatchSize)
		return claimErr
	})
	if err != nil {
		return err
	}

	for _, job := range jobs {
		w.process(ctx, job)
	}
	return nil
}

func (w *Worker) process(ctx context.Context, job AutoCloseJob) {
	logger := w.logger.With(
		zap.Int64("job_id", job.ID),
		zap.String("username", job.Username),
		zap.Int("attempt", job.Attempts))

	if err := w.handler.HandleAutoClose(ctx, job.Username); err != nil {
		logger.Warn("auto-close job failed", zap.Error(err))
		if markErr := w.store.MarkFailed(ctx, job.ID, err, w.cfg.MaxAttempts); markErr != nil {
			logger.Error("failed to record job failure", zap.Error(markErr))
		}
		return
	}

	if err := w.store.MarkDone(ctx, job.ID); err != nil {
		// The job ran; worst case it is claimed again, and handling is
		// idempotent.
		logger.Error("failed to mark job done", zap.Error(err))
		return
	}
	logger.Info("auto-close job completed")
}
