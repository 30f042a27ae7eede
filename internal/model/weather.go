package model

import (
	"strconv"
	"time"
)

// WeatherSnapshot is one stored reading of current conditions.
//
// Snapshots are immutable: a refresh inserts a new row and the newest row for
// a Query wins. CapturedAt is our clock, not the provider's; LastUpdated is
// the provider's own timestamp string, kept verbatim for display.
type WeatherSnapshot struct {
	ID            int64     `json:"id"`
	Query         string    `json:"query"`
	LocationName  string    `json:"locationName"`
	Region        string    `json:"region"`
	Country       string    `json:"country"`
	TempC         float64   `json:"tempC"`
	TempF         float64   `json:"tempF"`
	ConditionText string    `json:"conditionText"`
	ConditionCode int       `json:"conditionCode"`
	Humidity      int       `json:"humidity"`
	IsDay         bool      `json:"isDay"`
	WindKph       float64   `json:"windKph"`
	WindDir       string    `json:"windDir"`
	PrecipMM      float64   `json:"precipMm"`
	LastUpdated   string    `json:"lastUpdated"`
	CapturedAt    time.Time `json:"capturedAt"`
}

// Coordinates is a best-effort device location.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Query renders the coordinates the way the weather provider expects them
// ("<lat>,<lon>"), rounded to two decimals so that requests a few hundred
// metres apart share one cached snapshot.
func (c Coordinates) Query() string {
	return strconv.FormatFloat(c.Lat, 'f', 2, 64) + "," + strconv.FormatFloat(c.Lon, 'f', 2, 64)
}
