package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/danielrs/building-forecast-service/internal/models"
)

// ErrNotFound is returned when no archived forecast exists for a location/day.
var ErrNotFound = errors.New("no archived forecast")

// SQLiteStore archives live forecasts, one row per hour, so simulation runs
// can be replayed against the weather they actually used. Synthetic forecasts
// are never archived.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS forecast_hours (
	lat           REAL    NOT NULL,
	lon           REAL    NOT NULL,
	day           TEXT    NOT NULL,
	hour          INTEGER NOT NULL,
	fetched_at    TEXT    NOT NULL,
	temperature   REAL,
	cloud_cover   REAL,
	wind_speed    REAL,
	humidity      REAL,
	precipitation REAL,
	pressure      REAL,
	PRIMARY KEY (lat, lon, day, hour)
);
`

// Open opens (creating if needed) the archive database at path.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// SaveForecast upserts all 24 hourly rows of the forecast in one transaction.
// Unknown readings are stored as NULL, never as zero.
func (s *SQLiteStore) SaveForecast(ctx context.Context, f models.HourlyForecast) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forecast_hours
			(lat, lon, day, hour, fetched_at, temperature, cloud_cover, wind_speed, humidity, precipitation, pressure)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (lat, lon, day, hour) DO UPDATE SET
			fetched_at = excluded.fetched_at,
			temperature = excluded.temperature,
			cloud_cover = excluded.cloud_cover,
			wind_speed = excluded.wind_speed,
			humidity = excluded.humidity,
			precipitation = excluded.precipitation,
			pressure = excluded.pressure`)
	if err != nil {
		return fmt.Errorf("prepare archive insert: %w", err)
	}
	defer stmt.Close()

	fetchedAt := time.Now().UTC().Format(time.RFC3339)
	for hour, slot := range f.Hours {
		_, err := stmt.ExecContext(ctx,
			f.Location.Lat, f.Location.Lon, f.Day, hour, fetchedAt,
			nullable(slot.Temperature),
			nullable(slot.CloudCover),
			nullable(slot.WindSpeed),
			nullable(slot.Humidity),
			nullable(slot.Precipitation),
			nullable(slot.Pressure),
		)
		if err != nil {
			return fmt.Errorf("archive hour %d: %w", hour, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}
	return nil
}

// ForecastForDay loads the archived forecast for a rounded location and a
// YYYY-MM-DD day. Returns ErrNotFound if nothing was archived.
func (s *SQLiteStore) ForecastForDay(ctx context.Context, loc models.Location, day string) (models.HourlyForecast, error) {
	dayStart, err := time.ParseInLocation("2006-01-02", day, time.Local)
	if err != nil {
		return models.HourlyForecast{}, fmt.Errorf("parse day: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT hour, temperature, cloud_cover, wind_speed, humidity, precipitation, pressure
		FROM forecast_hours
		WHERE lat = ? AND lon = ? AND day = ?
		ORDER BY hour`,
		loc.Lat, loc.Lon, day)
	if err != nil {
		return models.HourlyForecast{}, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	f := models.HourlyForecast{
		Location: loc,
		Source:   models.SourceLive,
		Day:      day,
	}
	for h := 0; h < models.HoursPerDay; h++ {
		f.Hours[h].Timestamp = dayStart.Add(time.Duration(h) * time.Hour)
	}

	found := false
	for rows.Next() {
		var hour int
		var temp, cloud, wind, humidity, precip, pressure sql.NullFloat64
		if err := rows.Scan(&hour, &temp, &cloud, &wind, &humidity, &precip, &pressure); err != nil {
			return models.HourlyForecast{}, fmt.Errorf("scan archive row: %w", err)
		}
		if hour < 0 || hour >= models.HoursPerDay {
			continue
		}
		found = true
		slot := &f.Hours[hour]
		slot.Temperature = readingFromNull(temp)
		slot.CloudCover = readingFromNull(cloud)
		slot.WindSpeed = readingFromNull(wind)
		slot.Humidity = readingFromNull(humidity)
		slot.Precipitation = readingFromNull(precip)
		slot.Pressure = readingFromNull(pressure)
	}
	if err := rows.Err(); err != nil {
		return models.HourlyForecast{}, fmt.Errorf("iterate archive rows: %w", err)
	}
	if !found {
		return models.HourlyForecast{}, ErrNotFound
	}
	return f, nil
}

// Close closes the underlying database. Call during shutdown.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullable(r models.Reading) interface{} {
	if !r.Known {
		return nil
	}
	return r.Value
}

func readingFromNull(v sql.NullFloat64) models.Reading {
	if !v.Valid {
		return models.Reading{}
	}
	return models.Known(v.Float64)
}
