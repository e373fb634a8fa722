package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/danielrs/building-forecast-service/internal/cache"
	"github.com/danielrs/building-forecast-service/internal/client"
	"github.com/danielrs/building-forecast-service/internal/models"
)

// payloadForDay builds a minimal upstream payload with one entry at the given
// UTC hour of day (YYYY-MM-DD) carrying air_temperature temp.
func payloadForDay(day string, hour int, temp float64) []byte {
	return []byte(fmt.Sprintf(`{
		"properties": {
			"timeseries": [
				{
					"time": "%sT%02d:00:00Z",
					"data": {
						"instant": {
							"details": {"air_temperature": %g}
						}
					}
				}
			]
		}
	}`, day, hour, temp))
}

type mockClient struct {
	calls     int
	payload   []byte
	expiresAt time.Time
	err       error
}

func (m *mockClient) GetForecast(ctx context.Context, loc models.Location) (client.Result, error) {
	m.calls++
	if m.err != nil {
		return client.Result{}, m.err
	}
	doc, err := client.ParseDocument(m.payload)
	if err != nil {
		return client.Result{}, err
	}
	return client.Result{Document: doc, Raw: m.payload, ExpiresAt: m.expiresAt}, nil
}

type mockArchiver struct {
	saved []models.HourlyForecast
	err   error
}

func (m *mockArchiver) SaveForecast(ctx context.Context, f models.HourlyForecast) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, f)
	return nil
}

// fixedNow is a deterministic wall clock; tomorrow is 2025-03-11.
var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService(cl client.ForecastClient, archiver Archiver) *ForecastService {
	svc := NewForecastService(cl, cache.NewLRUCache(8), archiver, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

// assertForecastShape checks the invariant every result must satisfy:
// exactly 24 timestamps, strictly increasing, hours 0-23 of tomorrow.
func assertForecastShape(t *testing.T, f models.HourlyForecast) {
	t.Helper()
	if f.Day != "2025-03-11" {
		t.Fatalf("Day = %q, want 2025-03-11", f.Day)
	}
	for h, slot := range f.Hours {
		want := time.Date(2025, 3, 11, h, 0, 0, 0, time.UTC)
		if !slot.Timestamp.Equal(want) {
			t.Fatalf("hour %d timestamp = %v, want %v", h, slot.Timestamp, want)
		}
	}
}

// TestGetForecast_LiveFetch verifies a cache miss triggers exactly one
// upstream call and the converted result carries the live source.
func TestGetForecast_LiveFetch(t *testing.T) {
	cl := &mockClient{
		payload:   payloadForDay("2025-03-11", 14, 5.5),
		expiresAt: time.Now().Add(time.Hour),
	}
	svc := newTestService(cl, nil)

	got := svc.GetForecast(context.Background(), models.Location{Lat: 63.4305, Lon: 10.3951})

	if cl.calls != 1 {
		t.Fatalf("upstream calls = %d, want 1", cl.calls)
	}
	if got.Source != models.SourceLive {
		t.Fatalf("Source = %q, want %q", got.Source, models.SourceLive)
	}
	assertForecastShape(t, got)
	if !got.Hours[14].Temperature.Known || got.Hours[14].Temperature.Value != 5.5 {
		t.Fatalf("hour 14 temperature = %+v, want known 5.5", got.Hours[14].Temperature)
	}
	for h := range got.Hours {
		if h != 14 && got.Hours[h].Temperature.Known {
			t.Fatalf("hour %d temperature unexpectedly known", h)
		}
	}
}

// TestGetForecast_CacheHit verifies a second call before expiry issues no new
// upstream request and conversion is re-run on the cached payload.
func TestGetForecast_CacheHit(t *testing.T) {
	cl := &mockClient{
		payload:   payloadForDay("2025-03-11", 14, 5.5),
		expiresAt: time.Now().Add(time.Hour),
	}
	svc := newTestService(cl, nil)
	loc := models.Location{Lat: 63.4305, Lon: 10.3951}

	first := svc.GetForecast(context.Background(), loc)
	second := svc.GetForecast(context.Background(), loc)

	if cl.calls != 1 {
		t.Fatalf("upstream calls = %d, want 1 (second call must hit cache)", cl.calls)
	}
	if second.Source != models.SourceCache {
		t.Fatalf("second Source = %q, want %q", second.Source, models.SourceCache)
	}
	assertForecastShape(t, second)
	if second.Hours[14].Temperature != first.Hours[14].Temperature {
		t.Fatalf("cache hit conversion differs: %+v vs %+v",
			second.Hours[14].Temperature, first.Hours[14].Temperature)
	}
}

// TestGetForecast_ExpiredEntryRefetches verifies a call after expiry issues
// exactly one new upstream request.
func TestGetForecast_ExpiredEntryRefetches(t *testing.T) {
	cl := &mockClient{
		payload:   payloadForDay("2025-03-11", 14, 5.5),
		expiresAt: time.Now().Add(-time.Second),
	}
	svc := newTestService(cl, nil)
	loc := models.Location{Lat: 63.4305, Lon: 10.3951}

	svc.GetForecast(context.Background(), loc)
	svc.GetForecast(context.Background(), loc)

	if cl.calls != 2 {
		t.Fatalf("upstream calls = %d, want 2 (expired entry must refetch)", cl.calls)
	}
}

// TestGetForecast_RoundingSharesCacheEntry verifies two inputs rounding to
// the same 4-decimal pair hit the same cache entry.
func TestGetForecast_RoundingSharesCacheEntry(t *testing.T) {
	cl := &mockClient{
		payload:   payloadForDay("2025-03-11", 14, 5.5),
		expiresAt: time.Now().Add(time.Hour),
	}
	svc := newTestService(cl, nil)

	svc.GetForecast(context.Background(), models.Location{Lat: 63.43051, Lon: 10.39509})
	svc.GetForecast(context.Background(), models.Location{Lat: 63.43049, Lon: 10.39513})

	if cl.calls != 1 {
		t.Fatalf("upstream calls = %d, want 1 (same rounded pair must share cache entry)", cl.calls)
	}
}

// TestGetForecast_UpstreamFailure verifies the fail-soft contract: any fetch
// error yields the synthetic forecast with correct timestamps and all
// readings unknown, and no error reaches the caller.
func TestGetForecast_UpstreamFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "status error", err: fmt.Errorf("%w: HTTP 503", client.ErrUpstreamStatus)},
		{name: "timeout", err: fmt.Errorf("request timeout: %w", context.DeadlineExceeded)},
		{name: "circuit open", err: client.ErrCircuitOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cl := &mockClient{err: tt.err}
			svc := newTestService(cl, nil)

			got := svc.GetForecast(context.Background(), models.Location{Lat: 63.4305, Lon: 10.3951})

			if got.Source != models.SourceSynthetic {
				t.Fatalf("Source = %q, want %q", got.Source, models.SourceSynthetic)
			}
			assertForecastShape(t, got)
			for h, slot := range got.Hours {
				if slot.Temperature.Known || slot.CloudCover.Known || slot.WindSpeed.Known ||
					slot.Humidity.Known || slot.Precipitation.Known || slot.Pressure.Known {
					t.Fatalf("hour %d has known readings in synthetic forecast", h)
				}
			}
		})
	}
}

// TestGetForecast_FailureNotCached verifies a failed fetch leaves no cache
// entry, so the next call tries the upstream again.
func TestGetForecast_FailureNotCached(t *testing.T) {
	cl := &mockClient{err: errors.New("connection refused")}
	svc := newTestService(cl, nil)
	loc := models.Location{Lat: 63.4305, Lon: 10.3951}

	svc.GetForecast(context.Background(), loc)
	svc.GetForecast(context.Background(), loc)

	if cl.calls != 2 {
		t.Fatalf("upstream calls = %d, want 2 (synthetic results must not be cached)", cl.calls)
	}
}

// TestGetForecast_ArchivesLiveOnly verifies the archiver sees live fetches but
// not cache hits or synthetic fallbacks, and that archive errors never affect
// the returned forecast.
func TestGetForecast_ArchivesLiveOnly(t *testing.T) {
	cl := &mockClient{
		payload:   payloadForDay("2025-03-11", 14, 5.5),
		expiresAt: time.Now().Add(time.Hour),
	}
	arch := &mockArchiver{}
	svc := newTestService(cl, arch)
	loc := models.Location{Lat: 63.4305, Lon: 10.3951}

	svc.GetForecast(context.Background(), loc)
	svc.GetForecast(context.Background(), loc) // cache hit

	if len(arch.saved) != 1 {
		t.Fatalf("archived forecasts = %d, want 1", len(arch.saved))
	}
	if arch.saved[0].Source != models.SourceLive {
		t.Fatalf("archived Source = %q, want %q", arch.saved[0].Source, models.SourceLive)
	}

	failing := &mockArchiver{err: errors.New("disk full")}
	svc2 := newTestService(&mockClient{
		payload:   payloadForDay("2025-03-11", 14, 5.5),
		expiresAt: time.Now().Add(time.Hour),
	}, failing)

	got := svc2.GetForecast(context.Background(), loc)
	if got.Source != models.SourceLive {
		t.Fatalf("archive failure changed result source: %q", got.Source)
	}
}
