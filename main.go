// codecell: interactive sandboxed code execution for classrooms.
// Authenticated users submit a program over a websocket and talk to it live
// while it runs inside an isolated, resource-capped Docker container.

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"codecell/internal/admission"
	"codecell/internal/config"
	"codecell/internal/guard"
	"codecell/internal/handlers"
	"codecell/internal/logging"
	"codecell/internal/metrics"
	"codecell/internal/middleware"
	"codecell/internal/sandbox"
	"codecell/internal/session"
	"codecell/internal/store"
)

func main() {
	// A missing .env is fine in production where the environment is set
	// directly.
	_ = godotenv.Load()

	logging.Init()
	defer logging.Sync()
	log := logging.L()

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	provisioner, err := sandbox.NewProvisioner(ctx, sandbox.Config{
		DockerHost:  cfg.DockerHost,
		Image:       cfg.Image,
		WorkDir:     cfg.WorkDir,
		ProgramName: cfg.ProgramName,
		Limits: sandbox.Limits{
			MemoryBytes: cfg.MemoryLimitBytes,
			CPUCores:    cfg.CPULimitCores,
			PidsLimit:   cfg.PidsLimit,
			ScratchSize: cfg.ScratchSize,
		},
	})
	cancel()
	if err != nil {
		log.Fatal("sandbox provisioner init failed", zap.Error(err))
	}
	defer provisioner.Close()

	creds := store.New(cfg.StudentsFile)
	abuseGuard := guard.New(cfg.MaxFailedAttempts, cfg.BruteForceCooldown, cfg.AuthFailureDelay)
	admitter := admission.New(cfg.MaxConcurrentSessions)
	runtime := sandbox.NewRuntime(provisioner, cfg.WorkspaceRoot)

	orch := session.New(session.Config{
		ExecutionTimeout: cfg.ExecutionTimeout,
		PollInterval:     cfg.PollInterval,
		DrainGrace:       cfg.DrainGrace,
		MemoryLimit:      cfg.MemoryLimitBytes,
	}, creds, abuseGuard, admitter, dockerRuntime{runtime}, log)

	h := handlers.New(creds, abuseGuard, cfg.AdminFile, log)

	router := setupRouter(h, orch)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: sessions hold the connection for the full
		// execution window.
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info("server listening",
			zap.String("port", cfg.Port),
			zap.String("image", cfg.Image),
			zap.Int("max_sessions", cfg.MaxConcurrentSessions),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}

func setupRouter(h *handlers.Handler, orch *session.Orchestrator) *gin.Engine {
	if os.Getenv("ENVIRONMENT") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(middleware.RateLimit())

	h.Register(r)
	r.GET("/ws", orch.Handler())
	r.GET("/metrics", metrics.Handler())
	return r
}

// dockerRuntime adapts the concrete sandbox runtime to the session package's
// launch interface.
type dockerRuntime struct {
	rt *sandbox.Runtime
}

func (d dockerRuntime) Launch(ctx context.Context, program string) (session.Instance, error) {
	inst, err := d.rt.Launch(ctx, program)
	if err != nil {
		return nil, err
	}
	return inst, nil
}
