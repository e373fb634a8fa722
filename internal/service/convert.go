package service

import (
	"time"

	"github.com/danielrs/building-forecast-service/internal/client"
	"github.com/danielrs/building-forecast-service/internal/models"
	"github.com/danielrs/building-forecast-service/internal/observability"
)

// Convert maps a locationforecast document onto the fixed 24-hour grid for
// the day after now. Entries whose calendar date (in their own zone) is not
// tomorrow are ignored; hours without a matching entry keep unknown readings.
// Entries with unparsable timestamps are skipped and counted, never fatal.
func Convert(doc client.Document, loc models.Location, now time.Time) models.HourlyForecast {
	f := models.SkeletonForecast(loc, now)
	day := models.TargetDay(now)
	ty, tm, td := day.Date()

	for _, entry := range doc.Properties.Timeseries {
		ts, err := time.Parse(time.RFC3339, entry.Time)
		if err != nil {
			observability.MalformedEntriesTotal.Inc()
			continue
		}

		ey, em, ed := ts.Date()
		if ey != ty || em != tm || ed != td {
			continue
		}

		slot := &f.Hours[ts.Hour()]
		details := entry.Data.Instant.Details
		slot.Temperature = readingFrom(details.AirTemperature)
		slot.CloudCover = readingFrom(details.CloudAreaFraction)
		slot.WindSpeed = readingFrom(details.WindSpeed)
		slot.Humidity = readingFrom(details.RelativeHumidity)
		slot.Pressure = readingFrom(details.AirPressureAtSeaLevel)
		if next := entry.Data.Next1Hours; next != nil {
			slot.Precipitation = readingFrom(next.Details.PrecipitationAmount)
		}
	}
	return f
}

func readingFrom(v *float64) models.Reading {
	if v == nil {
		return models.Reading{}
	}
	return models.Known(*v)
}
