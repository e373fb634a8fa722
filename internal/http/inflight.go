package http

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

// inFlight is the process-wide count of requests currently being served.
// Used during graceful shutdown to drain before closing the archive and cache.
var inFlight atomic.Int64

// InFlightMiddleware counts requests for shutdown draining.
func InFlightMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inFlight.Add(1)
		defer inFlight.Add(-1)
		next.ServeHTTP(w, r)
	})
}

// InFlightCount returns the current number of in-flight requests.
func InFlightCount() int64 {
	return inFlight.Load()
}

// WaitForInFlight blocks until in-flight requests reach zero or ctx is done.
// checkInterval is the interval between count checks.
func WaitForInFlight(ctx context.Context, checkInterval time.Duration) error {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		if InFlightCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
