package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-notes/backend/internal/models"
	"github.com/aura-notes/backend/pkg/queue"
)

// Runner advances one meeting through the pipeline.
type Runner interface {
	Run(ctx context.Context, meetingID uuid.UUID) error
}

// Locker grants the per-meeting run lease.
type Locker interface {
	Acquire(ctx context.Context, meetingID uuid.UUID) (release func(context.Context) error, ok bool, err error)
}

// JobQueue is the job source the processor drains.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// PipelineProcessor processes meeting pipeline jobs: take the lease, run the orchestrator, release.
type PipelineProcessor struct {
	runner     Runner
	locker     Locker
	queue      JobQueue
	runTimeout time.Duration
	backoff    time.Duration
	logger     *zap.Logger
}

// NewPipelineProcessor creates a pipeline job processor. runTimeout bounds a single run; zero means none.
func NewPipelineProcessor(runner Runner, locker Locker, q JobQueue, runTimeout time.Duration, logger *zap.Logger) *PipelineProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PipelineProcessor{
		runner:     runner,
		locker:     locker,
		queue:      q,
		runTimeout: runTimeout,
		backoff:    queue.RetryBackoff,
		logger:     logger,
	}
}

// Process executes one pipeline job. A job whose meeting is already leased is dropped.
func (p *PipelineProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeMeetingPipeline {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.MeetingPipelinePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return p.RunMeeting(ctx, payload.MeetingID)
}

// RunMeeting runs the pipeline for one meeting under its lease.
func (p *PipelineProcessor) RunMeeting(ctx context.Context, meetingID uuid.UUID) error {
	log := p.logger.With(zap.String("meeting_id", meetingID.String()))

	release, ok, err := p.locker.Acquire(ctx, meetingID)
	if err != nil {
		return err
	}
	if !ok {
		log.Info("meeting already running elsewhere, skipping")
		return nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("lease release failed", zap.Error(err))
		}
	}()

	runCtx := ctx
	if p.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.runTimeout)
		defer cancel()
	}
	start := time.Now()
	if err := p.runner.Run(runCtx, meetingID); err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}
	log.Info("pipeline run finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *PipelineProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

// Start runs n worker loops and blocks until ctx is done and all loops have returned.
func (p *PipelineProcessor) Start(ctx context.Context, n int) {
	if n < 1 {
		n = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(ctx)
		}()
	}
	p.logger.Info("pipeline workers started", zap.Int("concurrency", n))
	wg.Wait()
}

func (p *PipelineProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// PendingSource lists meetings the pipeline has not finished.
type PendingSource interface {
	ListByStatus(ctx context.Context, statuses []models.MeetingStatus, limit int) ([]models.Meeting, error)
}

// Enqueuer hands a meeting to the queue.
type Enqueuer interface {
	EnqueueMeetingPipeline(ctx context.Context, meetingID uuid.UUID) error
}

// ResumePending enqueues every non-terminal meeting (oldest first, up to limit) and returns how many
// were enqueued. Duplicate jobs are harmless: the lease and the status guard make reruns no-ops.
func ResumePending(ctx context.Context, src PendingSource, enq Enqueuer, limit int, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pending, err := src.ListByStatus(ctx, models.PendingStatuses, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending meetings: %w", err)
	}
	var errs []error
	n := 0
	for _, m := range pending {
		if err := enq.EnqueueMeetingPipeline(ctx, m.ID); err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s: %w", m.ID, err))
			continue
		}
		n++
	}
	logger.Info("resumed pending meetings", zap.Int("enqueued", n), zap.Int("pending", len(pending)))
	return n, errors.Join(errs...)
}
