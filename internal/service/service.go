package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/danielrs/building-forecast-service/internal/cache"
	"github.com/danielrs/building-forecast-service/internal/client"
	"github.com/danielrs/building-forecast-service/internal/degraded"
	"github.com/danielrs/building-forecast-service/internal/models"
	"github.com/danielrs/building-forecast-service/internal/observability"
)

// Archiver persists live forecasts for later replay. Implemented by the store
// package; declared here to avoid a dependency on the storage backend.
type Archiver interface {
	SaveForecast(ctx context.Context, f models.HourlyForecast) error
}

// ForecastService produces next-day hourly forecasts. It rounds the location,
// serves unexpired cached payloads, fetches from the upstream otherwise, and
// degrades to an all-unknown synthetic forecast when the fetch fails.
// GetForecast never returns an error; the result's Source field tells callers
// whether they got real data.
type ForecastService struct {
	client   client.ForecastClient
	cache    cache.Cache
	archiver Archiver
	logger   *zap.Logger
	now      func() time.Time
}

// NewForecastService creates a ForecastService. archiver may be nil to disable
// the history archive.
func NewForecastService(cl client.ForecastClient, c cache.Cache, archiver Archiver, logger *zap.Logger) *ForecastService {
	return &ForecastService{
		client:   cl,
		cache:    c,
		archiver: archiver,
		logger:   logger,
		now:      time.Now,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present,
// falling back to the service logger.
func (s *ForecastService) loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return s.logger
}

// GetForecast returns the 24-hour forecast for tomorrow at the given location.
// The location is rounded to 4 decimals before use as cache key and API
// parameter. Conversion always runs against the current wall clock, so a
// cached payload fetched yesterday still yields tomorrow-relative slots.
func (s *ForecastService) GetForecast(ctx context.Context, loc models.Location) models.HourlyForecast {
	rounded := loc.Rounded()
	key := rounded.Key()
	now := s.now()
	logger := s.loggerFromContext(ctx)

	payload, ok, err := s.cache.Get(ctx, key)
	if err != nil && logger != nil {
		logger.Warn("cache get failed", zap.String("location", key), zap.Error(err))
	}
	if ok {
		doc, parseErr := client.ParseDocument(payload)
		if parseErr == nil {
			observability.CacheHitsTotal.Inc()
			observability.ForecastRequestsTotal.WithLabelValues(string(models.SourceCache)).Inc()
			degraded.RecordLive()
			if logger != nil {
				logger.Debug("cache hit", zap.String("location", key))
			}
			f := Convert(doc, rounded, now)
			f.Source = models.SourceCache
			return f
		}
		// A payload that no longer parses is useless; treat as a miss.
		if logger != nil {
			logger.Warn("cached payload unreadable", zap.String("location", key), zap.Error(parseErr))
		}
	}

	res, err := s.client.GetForecast(ctx, rounded)
	if err != nil {
		observability.SyntheticFallbacksTotal.Inc()
		observability.ForecastRequestsTotal.WithLabelValues(string(models.SourceSynthetic)).Inc()
		degraded.RecordFallback()
		if logger != nil {
			logger.Warn("upstream fetch failed, serving synthetic forecast",
				zap.String("location", key), zap.Error(err))
		}
		return Synthetic(rounded, now)
	}

	if setErr := s.cache.Set(ctx, key, res.Raw, res.ExpiresAt); setErr != nil && logger != nil {
		logger.Warn("cache set failed", zap.String("location", key), zap.Error(setErr))
	}

	observability.ForecastRequestsTotal.WithLabelValues(string(models.SourceLive)).Inc()
	degraded.RecordLive()

	f := Convert(res.Document, rounded, now)
	f.Source = models.SourceLive

	if s.archiver != nil {
		if archErr := s.archiver.SaveForecast(ctx, f); archErr != nil {
			observability.ArchiveErrorsTotal.Inc()
			if logger != nil {
				logger.Warn("forecast archive failed", zap.String("location", key), zap.Error(archErr))
			}
		}
	}

	if logger != nil {
		logger.Debug("forecast served", zap.String("location", key),
			zap.String("source", string(f.Source)), zap.Time("expires", res.ExpiresAt))
	}
	return f
}

// Synthetic returns the fallback forecast: correct tomorrow timestamps, every
// reading unknown. It keeps downstream consumers running on missing data, it
// is not an estimate.
func Synthetic(loc models.Location, now time.Time) models.HourlyForecast {
	f := models.SkeletonForecast(loc, now)
	f.Source = models.SourceSynthetic
	return f
}
