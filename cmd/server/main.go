package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ONDC-Official/automation-form-service/internal/catalog"
	formshandler "github.com/ONDC-Official/automation-form-service/internal/forms/handler"
	"github.com/ONDC-Official/automation-form-service/internal/notifier"
	"github.com/ONDC-Official/automation-form-service/internal/platform/config"
	"github.com/ONDC-Official/automation-form-service/internal/platform/httpserver"
	"github.com/ONDC-Official/automation-form-service/internal/platform/logger"
	"github.com/ONDC-Official/automation-form-service/internal/platform/metrics"
	"github.com/ONDC-Official/automation-form-service/internal/platform/middleware"
	platformredis "github.com/ONDC-Official/automation-form-service/internal/platform/redis"
	"github.com/ONDC-Official/automation-form-service/internal/render"
	"github.com/ONDC-Official/automation-form-service/internal/session"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	cat, err := catalog.Load(cfg.FormConfigPath, log)
	if err != nil {
		log.Error("failed to load form catalog", "path", cfg.FormConfigPath, "error", err.Error())
		os.Exit(1)
	}
	log.Info("form catalog loaded", "path", cfg.FormConfigPath, "forms", cat.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	redisClient, err := platformredis.New(ctx, cfg.Redis)
	cancel()
	if err != nil {
		log.Error("failed to connect to redis", "error", err.Error())
		os.Exit(1)
	}
	defer redisClient.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	sessions := session.NewService(session.NewRedisStore(redisClient.Client), log)
	notify := notifier.New(cfg.MockServiceURL, sessions, log)

	handler := formshandler.New(cat, render.NewTemplateRenderer(), sessions, notify, redisClient, log, m, formshandler.Config{
		BaseURL:                 cfg.BaseURL,
		AutoInjectSubmissionURL: true,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	handler.Register(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))

	srv := httpserver.New(cfg.Addr, r)

	log.Info("starting form service", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err.Error())
		os.Exit(1)
	}
}
