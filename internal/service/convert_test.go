package service

import (
	"testing"
	"time"

	"github.com/danielrs/building-forecast-service/internal/client"
	"github.com/danielrs/building-forecast-service/internal/models"
)

func mustParseDocument(t *testing.T, raw string) client.Document {
	t.Helper()
	doc, err := client.ParseDocument([]byte(raw))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}
	return doc
}

// TestConvert_PopulatesMatchingHour verifies the spec's conversion example:
// one entry at tomorrow 14:00 UTC with air_temperature 5.5 fills the hour-14
// slot and leaves every other hour unknown.
func TestConvert_PopulatesMatchingHour(t *testing.T) {
	doc := mustParseDocument(t, `{
		"properties": {
			"timeseries": [
				{
					"time": "2025-03-11T14:00:00Z",
					"data": {
						"instant": {
							"details": {
								"air_temperature": 5.5,
								"cloud_area_fraction": 75.2,
								"wind_speed": 3.4,
								"relative_humidity": 81.0,
								"air_pressure_at_sea_level": 1013.2
							}
						},
						"next_1_hours": {
							"details": {"precipitation_amount": 0.3}
						}
					}
				}
			]
		}
	}`)

	got := Convert(doc, models.Location{Lat: 63.4305, Lon: 10.3951}, fixedNow)

	slot := got.Hours[14]
	checks := []struct {
		name string
		r    models.Reading
		want float64
	}{
		{"temperature", slot.Temperature, 5.5},
		{"cloud cover", slot.CloudCover, 75.2},
		{"wind speed", slot.WindSpeed, 3.4},
		{"humidity", slot.Humidity, 81.0},
		{"pressure", slot.Pressure, 1013.2},
		{"precipitation", slot.Precipitation, 0.3},
	}
	for _, c := range checks {
		if !c.r.Known || c.r.Value != c.want {
			t.Errorf("hour 14 %s = %+v, want known %g", c.name, c.r, c.want)
		}
	}

	for h := range got.Hours {
		if h == 14 {
			continue
		}
		if got.Hours[h].Temperature.Known {
			t.Errorf("hour %d temperature unexpectedly known", h)
		}
	}
}

// TestConvert_IgnoresOtherDays verifies entries dated today or the day after
// tomorrow populate nothing.
func TestConvert_IgnoresOtherDays(t *testing.T) {
	doc := mustParseDocument(t, `{
		"properties": {
			"timeseries": [
				{
					"time": "2025-03-10T14:00:00Z",
					"data": {"instant": {"details": {"air_temperature": 1.0}}}
				},
				{
					"time": "2025-03-12T14:00:00Z",
					"data": {"instant": {"details": {"air_temperature": 2.0}}}
				}
			]
		}
	}`)

	got := Convert(doc, models.Location{}, fixedNow)

	for h, slot := range got.Hours {
		if slot.Temperature.Known {
			t.Errorf("hour %d populated from a non-tomorrow entry", h)
		}
	}
}

// TestConvert_SkipsMalformedTimestamps verifies a bad time field drops only
// that entry, never the whole conversion.
func TestConvert_SkipsMalformedTimestamps(t *testing.T) {
	doc := mustParseDocument(t, `{
		"properties": {
			"timeseries": [
				{
					"time": "not-a-timestamp",
					"data": {"instant": {"details": {"air_temperature": 1.0}}}
				},
				{
					"time": "2025-03-11T08:00:00Z",
					"data": {"instant": {"details": {"air_temperature": 3.5}}}
				}
			]
		}
	}`)

	got := Convert(doc, models.Location{}, fixedNow)

	if !got.Hours[8].Temperature.Known || got.Hours[8].Temperature.Value != 3.5 {
		t.Fatalf("hour 8 temperature = %+v, want known 3.5", got.Hours[8].Temperature)
	}
}

// TestConvert_AbsentFieldsStayUnknown verifies missing optional details leave
// readings unknown rather than zero.
func TestConvert_AbsentFieldsStayUnknown(t *testing.T) {
	doc := mustParseDocument(t, `{
		"properties": {
			"timeseries": [
				{
					"time": "2025-03-11T06:00:00Z",
					"data": {"instant": {"details": {"air_temperature": 0}}}
				}
			]
		}
	}`)

	got := Convert(doc, models.Location{}, fixedNow)

	slot := got.Hours[6]
	if !slot.Temperature.Known || slot.Temperature.Value != 0 {
		t.Fatalf("measured zero temperature = %+v, want known 0", slot.Temperature)
	}
	if slot.WindSpeed.Known {
		t.Fatal("absent wind_speed reported as known")
	}
	if slot.Precipitation.Known {
		t.Fatal("absent next_1_hours reported as known precipitation")
	}
}

// TestConvert_OffsetTimestamps verifies entries with explicit UTC offsets
// land in the hour slot of their own zone, matching the entry's calendar date.
func TestConvert_OffsetTimestamps(t *testing.T) {
	doc := mustParseDocument(t, `{
		"properties": {
			"timeseries": [
				{
					"time": "2025-03-11T23:00:00+01:00",
					"data": {"instant": {"details": {"air_temperature": 2.5}}}
				}
			]
		}
	}`)

	got := Convert(doc, models.Location{}, fixedNow)

	if !got.Hours[23].Temperature.Known || got.Hours[23].Temperature.Value != 2.5 {
		t.Fatalf("hour 23 temperature = %+v, want known 2.5", got.Hours[23].Temperature)
	}
}

// TestSynthetic verifies the fallback is structurally valid for any clock.
func TestSynthetic(t *testing.T) {
	now := time.Date(2025, 12, 31, 22, 15, 0, 0, time.UTC)
	got := Synthetic(models.Location{Lat: 59.9139, Lon: 10.7522}, now)

	if got.Source != models.SourceSynthetic {
		t.Fatalf("Source = %q, want %q", got.Source, models.SourceSynthetic)
	}
	if got.Day != "2026-01-01" {
		t.Fatalf("Day = %q, want 2026-01-01 (year boundary)", got.Day)
	}
	for h, slot := range got.Hours {
		want := time.Date(2026, 1, 1, h, 0, 0, 0, time.UTC)
		if !slot.Timestamp.Equal(want) {
			t.Fatalf("hour %d timestamp = %v, want %v", h, slot.Timestamp, want)
		}
	}
}
