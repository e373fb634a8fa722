package models

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// HoursPerDay is the number of slots in an HourlyForecast.
const HoursPerDay = 24

// Source identifies where forecast data came from.
type Source string

const (
	// SourceLive means the forecast was converted from a fresh upstream response.
	SourceLive Source = "live"
	// SourceCache means the forecast was converted from an unexpired cached payload.
	SourceCache Source = "cache"
	// SourceSynthetic means the upstream was unavailable and all readings are unknown.
	SourceSynthetic Source = "synthetic"
)

// Location is a latitude/longitude pair in degrees.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Rounded returns the location rounded to 4 decimal places on each axis,
// as required by the upstream API terms of service. Rounding is idempotent.
func (l Location) Rounded() Location {
	return Location{
		Lat: roundCoordinate(l.Lat),
		Lon: roundCoordinate(l.Lon),
	}
}

// Key returns the "{lat},{lon}" string used as cache key and query parameter.
// Call on a Rounded() location so equal coordinates share a cache entry.
func (l Location) Key() string {
	return FormatCoordinate(l.Lat) + "," + FormatCoordinate(l.Lon)
}

// FormatCoordinate renders a coordinate with the shortest exact representation,
// e.g. 63.4305 -> "63.4305", 10 -> "10".
func FormatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func roundCoordinate(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// Reading is an optional weather measurement. Known is false when the upstream
// entry did not carry the field, so "no data" is distinguishable from a
// measured zero. Marshals as the bare value, or null when unknown.
type Reading struct {
	Value float64
	Known bool
}

// Known returns a Reading holding a measured value.
func Known(v float64) Reading {
	return Reading{Value: v, Known: true}
}

// MarshalJSON renders the value, or null when the reading is unknown.
func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.Known {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// UnmarshalJSON accepts a number or null.
func (r *Reading) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Reading{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Reading{Value: v, Known: true}
	return nil
}

// HourSlot holds the forecast for a single hour of the target day.
// Timestamp is always populated; readings are unknown for hours the upstream
// response did not cover.
type HourSlot struct {
	Timestamp     time.Time `json:"timestamp"`
	Temperature   Reading   `json:"temperature"`   // °C
	CloudCover    Reading   `json:"cloudCover"`    // %
	WindSpeed     Reading   `json:"windSpeed"`     // m/s
	Humidity      Reading   `json:"humidity"`      // %
	Precipitation Reading   `json:"precipitation"` // mm, next 1 hour
	Pressure      Reading   `json:"pressure"`      // hPa at sea level
}

// HourlyForecast is a fixed 24-slot forecast for hours 00:00-23:00 of the day
// after the request, in the caller's local time. Timestamps are strictly
// ascending regardless of how much data the upstream returned.
type HourlyForecast struct {
	Location Location              `json:"location"`
	Source   Source                `json:"source"`
	Day      string                `json:"day"` // YYYY-MM-DD of the target day
	Hours    [HoursPerDay]HourSlot `json:"hours"`
}

// Synthetic reports whether the forecast is the all-unknown fallback.
func (f HourlyForecast) Synthetic() bool {
	return f.Source == SourceSynthetic
}

// TargetDay returns midnight of the day after now, in now's location.
// Forecasts always describe tomorrow relative to the wall clock of the call.
func TargetDay(now time.Time) time.Time {
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, now.Location())
}

// SkeletonForecast returns a forecast for the given location with all 24
// timestamps populated for the day after now and every reading unknown.
func SkeletonForecast(loc Location, now time.Time) HourlyForecast {
	day := TargetDay(now)
	f := HourlyForecast{
		Location: loc,
		Day:      day.Format("2006-01-02"),
	}
	for h := 0; h < HoursPerDay; h++ {
		f.Hours[h].Timestamp = day.Add(time.Duration(h) * time.Hour)
	}
	return f
}
