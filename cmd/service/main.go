package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/danielrs/building-forecast-service/internal/cache"
	"github.com/danielrs/building-forecast-service/internal/client"
	"github.com/danielrs/building-forecast-service/internal/config"
	httphandler "github.com/danielrs/building-forecast-service/internal/http"
	"github.com/danielrs/building-forecast-service/internal/lifecycle"
	"github.com/danielrs/building-forecast-service/internal/observability"
	"github.com/danielrs/building-forecast-service/internal/scheduler"
	"github.com/danielrs/building-forecast-service/internal/service"
	"github.com/danielrs/building-forecast-service/internal/store"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	forecastClient, err := client.NewMetNoClient(
		cfg.UpstreamURL,
		cfg.UpstreamContact,
		cfg.UpstreamTimeout,
		cfg.UpstreamDefaultTTL,
	)
	if err != nil {
		logger.Fatal("forecast client", zap.Error(err))
	}

	if cfg.BreakerEnabled {
		cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "locationforecast",
			Timeout: cfg.BreakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				observability.BreakerTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
				logger.Info("circuit breaker transition",
					zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		forecastClient.SetCircuitBreaker(cb)
		logger.Info("circuit breaker enabled",
			zap.Uint32("failure_threshold", cfg.BreakerFailureThreshold),
			zap.Duration("open_timeout", cfg.BreakerOpenTimeout))
	}

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewLRUCache(cfg.CacheMaxEntries)
		logger.Info("cache backend: in_memory", zap.Int("max_entries", cfg.CacheMaxEntries))
	}

	var archiver service.Archiver
	var history httphandler.HistoryReader
	var archiveCloser *store.SQLiteStore
	if cfg.ArchivePath != "" {
		st, err := store.Open(cfg.ArchivePath)
		if err != nil {
			logger.Fatal("forecast archive", zap.Error(err))
		}
		archiveCloser = st
		archiver = st
		history = st
		logger.Info("forecast archive enabled", zap.String("path", cfg.ArchivePath))
	}

	forecasts := service.NewForecastService(forecastClient, cacheSvc, archiver, logger)

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:       cfg.DegradedWindow,
		DegradedFallbackPct:  cfg.DegradedFallbackPct,
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	handler := httphandler.NewHandler(forecasts, history, healthConfig, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	refresher := scheduler.New(forecasts, cfg.TrackedLocations, cfg.RefreshInterval, logger)
	if err := refresher.Start(); err != nil {
		logger.Fatal("refresh scheduler", zap.Error(err))
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.Use(httphandler.InFlightMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	forecastRouter := router.PathPrefix("/forecast").Subrouter()
	forecastRouter.Use(httphandler.RateLimitMiddleware(limiter))
	forecastRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	forecastRouter.HandleFunc("", handler.GetForecast).Methods("GET")
	forecastRouter.HandleFunc("/history", handler.GetHistory).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	refresher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err),
			zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if archiveCloser != nil {
		if err := archiveCloser.Close(); err != nil {
			logger.Error("archive close", zap.Error(err))
		}
	}
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
