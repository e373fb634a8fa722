package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danielrs/building-forecast-service/internal/degraded"
	"github.com/danielrs/building-forecast-service/internal/lifecycle"
	"github.com/danielrs/building-forecast-service/internal/models"
	"github.com/danielrs/building-forecast-service/internal/service"
	"github.com/danielrs/building-forecast-service/internal/store"
	"github.com/danielrs/building-forecast-service/internal/validation"
)

// HistoryReader serves archived forecasts. Implemented by store.SQLiteStore.
type HistoryReader interface {
	ForecastForDay(ctx context.Context, loc models.Location, day string) (models.HourlyForecast, error)
}

// HealthConfig holds the thresholds the health handler evaluates.
type HealthConfig struct {
	DegradedWindow       time.Duration
	DegradedFallbackPct  int
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	forecasts        *service.ForecastService
	history          HistoryReader
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. history may be nil when the archive is disabled.
func NewHandler(forecasts *service.ForecastService, history HistoryReader, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	return &Handler{
		forecasts:    forecasts,
		history:      history,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetForecast handles GET /forecast?lat=&lon=. Always 200 once coordinates
// validate: upstream failure degrades to a synthetic body, never an error
// status. Provenance is in the body and the X-Forecast-Source header.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc, err := validation.ParseLocation(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}

	result := h.forecasts.GetForecast(r.Context(), loc)
	w.Header().Set("X-Forecast-Source", string(result.Source))
	writeJSON(w, http.StatusOK, result)
}

// GetHistory handles GET /forecast/history?lat=&lon=&day=. Serves the archived
// forecast for the rounded location and YYYY-MM-DD day.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, r, http.StatusNotFound, "ARCHIVE_DISABLED", "forecast archive is not configured")
		return
	}
	q := r.URL.Query()
	loc, err := validation.ParseLocation(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}
	day := q.Get("day")
	if _, err := time.Parse("2006-01-02", day); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_DAY", "day must be YYYY-MM-DD")
		return
	}

	result, err := h.history.ForecastForDay(r.Context(), loc.Rounded(), day)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "NOT_ARCHIVED", "no archived forecast for that location and day")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "ARCHIVE_ERROR", "failed to read forecast archive")
		if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
			logger.Error("archive read failed", zap.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.status == "degraded" {
		checks["upstream"] = "unhealthy"
	} else {
		checks["upstream"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "building-forecast-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > overloaded > degraded > healthy. A degraded status means the
// upstream has been failing and a significant share of recent forecasts were
// synthetic; the forecast endpoint itself keeps answering 200 throughout.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if h.healthConfig.OverloadWindow > 0 && h.healthConfig.RateLimitRPS > 0 {
		threshold := float64(h.healthConfig.RateLimitRPS) * h.healthConfig.OverloadWindow.Seconds() *
			float64(h.healthConfig.OverloadThresholdPct) / 100
		if float64(degraded.DenialCount(h.healthConfig.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedFallbackPct > 0 {
		fallbacks, total := degraded.FallbackRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(fallbacks) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedFallbackPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "fallback_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}
