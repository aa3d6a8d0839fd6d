// Command server runs the quizdeck API: daily-quiz scheduling, guarded
// mutations, keyset pagination and the midnight lifecycle job.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quizdeck/internal/jwttoken"
	"quizdeck/internal/lifecycle"
	"quizdeck/internal/platform/clock"
	"quizdeck/internal/platform/config"
	"quizdeck/internal/platform/httpserver"
	"quizdeck/internal/platform/logger"
	"quizdeck/internal/platform/metrics"
	"quizdeck/internal/platform/middleware"
	"quizdeck/internal/platform/postgres"
	"quizdeck/internal/platform/redis"
	"quizdeck/internal/profile"
	quizhandler "quizdeck/internal/quiz/handler"
	"quizdeck/internal/quiz/service"
	"quizdeck/internal/quiz/store"
	"quizdeck/pkg/platform/httputil"
)

const (
	requestTimeout  = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.FromEnv()
	ctx := context.Background()

	calendar, err := clock.NewBusinessCalendar(cfg.BusinessTZ)
	if err != nil {
		return err
	}

	m := metrics.New()

	var quizStore store.Store
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		quizStore = store.NewPostgres(db, calendar.Location())
	} else {
		log.Warn("no database configured, using in-memory store")
		quizStore = store.NewInMemory()
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var profiles profile.Directory = profile.NoopDirectory{}
	if cfg.Profile.BaseURL != "" {
		profiles = profile.NewHTTPDirectory(cfg.Profile.BaseURL, cfg.Profile.Timeout)
		if redisClient != nil {
			profiles = profile.NewCachedDirectory(profiles, redisClient, cfg.Profile.CacheTTL, m)
		}
	}

	quizService := service.New(quizStore, profiles, calendar, log, m)
	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)

	job := lifecycle.NewJob(quizService, log)
	scheduler, err := lifecycle.NewScheduler(job, cfg.TransitionCron, calendar.Location(), log)
	if err != nil {
		return err
	}
	scheduler.Start()

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Latency(m))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(jwtService, log))
		r.Mount("/quizzes", quizhandler.New(quizService, log).Routes())
		r.Post("/internal/lifecycle/run", lifecycle.TriggerHandler(job))
	})

	server := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
