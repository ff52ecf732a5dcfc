package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/app"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/config"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/logger"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/telemetry"
)

const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 30 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 20 * time.Second
)

// @title Enrollment Sync API
// @version 1.0.0
// @description Keeps enrollments, progress shadows and access requests consistent.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init telemetry", "error", err)
	}

	application, err := app.New(ctx, cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to wire application", "error", err)
	}
	defer application.Close() //nolint:errcheck

	workers, cancelWorkers := context.WithCancel(context.Background())
	application.Start(workers)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      application.Router(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env, "lock_backend", cfg.Lock.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server forced to shutdown", "error", err)
	}
	application.Stop()
	cancelWorkers()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logr.Sugar().Warnw("telemetry shutdown failed", "error", err)
	}
	logr.Info("server shutdown complete")
}
