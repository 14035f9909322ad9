// Package main runs the meeting API server with the status stream, an optional embedded worker and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-notes/backend/config"
	"github.com/aura-notes/backend/internal/app"
	"github.com/aura-notes/backend/internal/meetings"
	"github.com/aura-notes/backend/internal/middleware"
	"github.com/aura-notes/backend/internal/realtime"
	"github.com/aura-notes/backend/pkg/logging"
	"github.com/aura-notes/backend/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Must("info").Fatal("load config", zap.Error(err))
	}
	logger := logging.Must(cfg.Log.Level)
	defer logger.Sync()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}
	defer a.Close()

	meetingHandler := meetings.NewHandler(a.Meetings, a.Audio, a.Queue, cfg.Server.UploadMaxMB, logger)

	router := gin.New()
	router.MaxMultipartMemory = 32 << 20
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		if err := a.Pool.Ping(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if err := a.Redis.Ping(c.Request.Context()).Err(); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	meetingHandler.Register(router)
	router.GET("/meetings/:id/events", realtime.ServeStatus(a.Meetings, a.Events, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (pipeline runs)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	var workers sync.WaitGroup
	if cfg.Server.EmbeddedWorker {
		processor, err := a.Processor()
		if err != nil {
			logger.Fatal("pipeline", zap.Error(err))
		}
		a.Resume(workerCtx)
		workers.Add(1)
		go func() {
			defer workers.Done()
			processor.Start(workerCtx, cfg.Worker.Concurrency)
		}()
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	workers.Wait()
	logger.Info("server stopped")
}
