package client

// Wire types for the met.no locationforecast payload. Only the fields the
// conversion step reads are declared; optional details use pointers so an
// absent field is distinguishable from a measured zero.

// Document is the top-level locationforecast response.
type Document struct {
	Properties struct {
		Timeseries []TimeseriesEntry `json:"timeseries"`
	} `json:"properties"`
}

// TimeseriesEntry is one forecast point: an ISO-8601 timestamp plus
// instantaneous details and an optional next-1-hour precipitation block.
type TimeseriesEntry struct {
	Time string `json:"time"`
	Data struct {
		Instant struct {
			Details InstantDetails `json:"details"`
		} `json:"instant"`
		Next1Hours *struct {
			Details struct {
				PrecipitationAmount *float64 `json:"precipitation_amount"`
			} `json:"details"`
		} `json:"next_1_hours"`
	} `json:"data"`
}

// InstantDetails carries the instantaneous measurements per entry.
type InstantDetails struct {
	AirTemperature        *float64 `json:"air_temperature"`
	CloudAreaFraction     *float64 `json:"cloud_area_fraction"`
	WindSpeed             *float64 `json:"wind_speed"`
	RelativeHumidity      *float64 `json:"relative_humidity"`
	AirPressureAtSeaLevel *float64 `json:"air_pressure_at_sea_level"`
}
