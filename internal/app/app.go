// Package app wires the shared infrastructure and the pipeline for the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/aura-notes/backend/config"
	"github.com/aura-notes/backend/internal/llm"
	"github.com/aura-notes/backend/internal/meetings"
	"github.com/aura-notes/backend/internal/pipeline"
	"github.com/aura-notes/backend/internal/realtime"
	"github.com/aura-notes/backend/internal/transcribe"
	"github.com/aura-notes/backend/internal/worker"
	"github.com/aura-notes/backend/pkg/database"
	"github.com/aura-notes/backend/pkg/queue"
	"github.com/aura-notes/backend/pkg/redis"
	"github.com/aura-notes/backend/pkg/storage"
)

// App holds the long-lived clients shared by the server, the worker and meetingctl.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Meetings *meetings.Repository
	Audio    storage.AudioStore
	Queue    *queue.Queue
	Events   *realtime.RedisPubSub
}

// New connects to PostgreSQL and Redis, applies migrations and opens the audio store.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	audio, err := newAudioStore(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("audio storage: %w", err)
	}
	return &App{
		Config:   cfg,
		Logger:   logger,
		Pool:     pool,
		Redis:    rdb,
		Meetings: meetings.NewRepository(pool),
		Audio:    audio,
		Queue:    queue.NewQueue(rdb.Client, logger),
		Events:   realtime.NewRedisPubSub(rdb.Client, logger),
	}, nil
}

func newAudioStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.AudioStore, error) {
	switch cfg.Storage.Driver {
	case config.StorageS3:
		return storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			AudioBucket:     cfg.AWS.AudioBucket,
		}, logger)
	default:
		return storage.NewLocal(cfg.Storage.UploadDir, logger)
	}
}

// Orchestrator builds the pipeline over the remote capabilities named in the config.
func (a *App) Orchestrator() (*pipeline.Orchestrator, error) {
	tc := a.Config.Transcription
	whisper, err := transcribe.NewWhisper(transcribe.Config{
		Provider:   tc.Provider,
		APIKey:     tc.APIKey,
		Endpoint:   tc.Endpoint,
		APIVersion: tc.APIVersion,
		Model:      tc.Model,
		Timeout:    tc.Timeout,
	}, a.Audio, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("transcriber: %w", err)
	}
	lc := a.Config.LLM
	model, err := llm.NewModel(llm.Config{
		Provider:   lc.Provider,
		APIKey:     lc.APIKey,
		Endpoint:   lc.Endpoint,
		APIVersion: lc.APIVersion,
		Model:      lc.Model,
		MaxTokens:  lc.MaxTokens,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	orch := pipeline.NewOrchestrator(a.Meetings, whisper, model, pipeline.Config{
		SummaryAttempts: a.Config.Pipeline.SummaryAttempts,
		ExtractAttempts: a.Config.Pipeline.ExtractAttempts,
	}, a.Logger)
	orch.SetPublisher(a.Events)
	return orch, nil
}

// Processor builds the queue-driven pipeline worker.
func (a *App) Processor() (*worker.PipelineProcessor, error) {
	orch, err := a.Orchestrator()
	if err != nil {
		return nil, err
	}
	return worker.NewPipelineProcessor(orch, a.Redis.Locker(a.Config.Worker.LeaseTTL), a.Queue, a.Config.Pipeline.RunTimeout, a.Logger), nil
}

// Resume re-enqueues unfinished meetings when configured to.
func (a *App) Resume(ctx context.Context) {
	if !a.Config.Worker.ResumeOnStart {
		return
	}
	if _, err := worker.ResumePending(ctx, a.Meetings, a.Queue, meetings.MaxListLimit, a.Logger); err != nil {
		a.Logger.Warn("resume pending meetings", zap.Error(err))
	}
}

// Close releases the database pool and the Redis connection.
func (a *App) Close() {
	_ = a.Redis.Close()
	a.Pool.Close()
}
