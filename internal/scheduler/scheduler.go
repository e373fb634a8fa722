package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/danielrs/building-forecast-service/internal/models"
)

// ForecastGetter is implemented by the service layer. Declared here to avoid
// a circular dependency on the service package.
type ForecastGetter interface {
	GetForecast(ctx context.Context, loc models.Location) models.HourlyForecast
}

// Scheduler periodically refreshes the forecast cache for a fixed set of
// tracked locations, so simulator calls almost always hit warm data.
type Scheduler struct {
	scheduler *gocron.Scheduler
	getter    ForecastGetter
	locations []models.Location
	interval  time.Duration
	logger    *zap.Logger
}

// New creates a Scheduler refreshing the given locations at interval.
func New(getter ForecastGetter, locations []models.Location, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		getter:    getter,
		locations: locations,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the refresh job and starts the scheduler asynchronously.
// The first refresh runs immediately.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		if s.logger != nil {
			s.logger.Info("scheduler: no tracked locations, nothing to refresh")
		}
		return nil
	}

	interval := s.interval
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	if _, err := s.scheduler.Every(interval).StartImmediately().Do(s.refresh); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	if s.logger != nil {
		s.logger.Info("scheduler started",
			zap.Int("locations", len(s.locations)), zap.Duration("interval", interval))
	}
	return nil
}

// Stop stops the scheduler and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// refresh fetches every tracked location concurrently. Failures degrade to
// synthetic results inside the service and only need logging here.
func (s *Scheduler) refresh() {
	start := time.Now()
	var wg sync.WaitGroup
	for _, loc := range s.locations {
		loc := loc
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			f := s.getter.GetForecast(ctx, loc)
			if f.Synthetic() && s.logger != nil {
				s.logger.Warn("scheduled refresh got synthetic forecast",
					zap.Float64("lat", loc.Lat), zap.Float64("lon", loc.Lon))
			}
		}()
	}
	wg.Wait()
	if s.logger != nil {
		s.logger.Debug("scheduled refresh complete",
			zap.Int("locations", len(s.locations)), zap.Duration("duration", time.Since(start)))
	}
}
