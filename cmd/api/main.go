package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reelnotes/reelnotes-backend/config"
	"github.com/reelnotes/reelnotes-backend/internal/annotations"
	authservice "github.com/reelnotes/reelnotes-backend/internal/auth/service"
	"github.com/reelnotes/reelnotes-backend/internal/bootstrap"
	"github.com/reelnotes/reelnotes-backend/internal/jobs"
	"github.com/reelnotes/reelnotes-backend/internal/logger"
	projhttp "github.com/reelnotes/reelnotes-backend/internal/projects/http"
	"github.com/reelnotes/reelnotes-backend/internal/projects/service"
	"github.com/reelnotes/reelnotes-backend/internal/transcription"
)

const serviceName = "reelnotes-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	bootstrap.SetGinMode(cfg.App.Environment)
	logger.SetLevel(logger.ParseLevel(cfg.App.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := wire(ctx, cfg)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer func() {
		if err := deps.close(); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	runner := transcription.NewRunner(deps.gateway, deps.bus)
	projects := service.NewProjectService(deps.store, annotations.NewModel(deps.store), runner, deps.bus)
	if err := projects.Start(ctx); err != nil {
		log.Fatalf("project service: %v", err)
	}
	authSvc := authservice.NewAuthService(deps.store, cfg.Storage.SessionTTL)

	sched := jobs.NewScheduler(projects, cfg.Jobs.ReconcileSchedule, cfg.Jobs.StaleAfter)
	if err := sched.Start(); err != nil {
		log.Fatalf("scheduler: %v", err)
	}

	r := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName:    serviceName,
		Version:        cfg.App.Version,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Store:          deps.store,
		Cache:          deps.cachePinger(),
		AuthService:    authSvc,
		Projects: projhttp.New(projects, deps.bus,
			projhttp.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
			projhttp.WithKeepAlive(cfg.Server.SSEKeepAlive),
		),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("%s %s listening on :%s (store=%s bus=%s)",
			serviceName, cfg.App.Version, cfg.Server.Port, cfg.Storage.Backend, cfg.Storage.EventBus)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	<-sched.Stop().Done()
	runner.CancelAll()
	runner.Wait()
	projects.Wait()
}
