package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/danielrs/building-forecast-service/internal/degraded"
)

func TestCorrelationIDMiddleware_Generates(t *testing.T) {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))

	var seen string
	router.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		if v := r.Context().Value("correlation_id"); v != nil {
			seen = v.(string)
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/forecast", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if seen == "" {
		t.Fatal("correlation_id missing from request context")
	}
	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("correlation_id %q is not a UUID: %v", seen, err)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != seen {
		t.Fatalf("X-Correlation-ID header = %q, want %q", got, seen)
	}
}

func TestCorrelationIDMiddleware_PropagatesExisting(t *testing.T) {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/forecast", nil)
	req.Header.Set("X-Correlation-ID", "caller-supplied-id")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Correlation-ID"); got != "caller-supplied-id" {
		t.Fatalf("X-Correlation-ID header = %q, want caller-supplied-id", got)
	}
}

func TestRateLimitMiddleware_Denies(t *testing.T) {
	degraded.Reset()
	t.Cleanup(degraded.Reset)

	router := mux.NewRouter()
	router.Use(RateLimitMiddleware(rate.NewLimiter(0, 0)))
	router.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/forecast", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if got := degraded.DenialCount(time.Minute); got != 1 {
		t.Fatalf("DenialCount() = %d, want 1", got)
	}
}

func TestRateLimitMiddleware_NilLimiterPassthrough(t *testing.T) {
	router := mux.NewRouter()
	router.Use(RateLimitMiddleware(nil))
	router.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/forecast", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	router := mux.NewRouter()
	router.Use(TimeoutMiddleware(5 * time.Second))

	var hadDeadline bool
	router.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		_, hadDeadline = r.Context().Deadline()
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/forecast", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if !hadDeadline {
		t.Fatal("request context has no deadline")
	}
}

func TestGetRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "/health", want: "/health"},
		{path: "/metrics", want: "/metrics"},
		{path: "/forecast", want: "/forecast"},
		{path: "/forecast/history", want: "/forecast/history"},
		{path: "/unknown", want: "/unknown"},
	}

	for _, tc := range tests {
		req := httptest.NewRequest("GET", tc.path, nil)
		if got := getRoute(req); got != tc.want {
			t.Fatalf("getRoute(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
