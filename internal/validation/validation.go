package validation

import (
	"errors"
	"math"
	"strconv"

	"github.com/danielrs/building-forecast-service/internal/models"
)

// ErrCoordinateMissing is returned when lat or lon is absent.
var ErrCoordinateMissing = errors.New("lat and lon are required")

// ErrCoordinateNotANumber is returned when lat or lon does not parse as a float.
var ErrCoordinateNotANumber = errors.New("coordinate is not a number")

// ErrLatitudeOutOfRange is returned when latitude is outside [-90, 90].
var ErrLatitudeOutOfRange = errors.New("latitude out of range")

// ErrLongitudeOutOfRange is returned when longitude is outside [-180, 180].
var ErrLongitudeOutOfRange = errors.New("longitude out of range")

// ParseLocation parses lat/lon query strings into a Location and validates
// ranges. Returns an error suitable for 400 INVALID_COORDINATES responses.
// Rounding to API precision is left to the service layer.
func ParseLocation(latStr, lonStr string) (models.Location, error) {
	if latStr == "" || lonStr == "" {
		return models.Location{}, ErrCoordinateMissing
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return models.Location{}, ErrCoordinateNotANumber
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return models.Location{}, ErrCoordinateNotANumber
	}
	return ValidateLocation(models.Location{Lat: lat, Lon: lon})
}

// ValidateLocation checks that both axes are finite and within range.
func ValidateLocation(loc models.Location) (models.Location, error) {
	if math.IsNaN(loc.Lat) || math.IsInf(loc.Lat, 0) || loc.Lat < -90 || loc.Lat > 90 {
		return models.Location{}, ErrLatitudeOutOfRange
	}
	if math.IsNaN(loc.Lon) || math.IsInf(loc.Lon, 0) || loc.Lon < -180 || loc.Lon > 180 {
		return models.Location{}, ErrLongitudeOutOfRange
	}
	return loc, nil
}
