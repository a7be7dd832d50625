package model

import (
	"strings"
	"time"
)

// WeatherCondition is the bucketed race-day condition shown on the print.
type WeatherCondition string

const (
	WeatherSunny  WeatherCondition = "sunny"
	WeatherCloudy WeatherCondition = "cloudy"
	WeatherRainy  WeatherCondition = "rainy"
)

// ResultsSiteType tags which provider family a race's results come from.
type ResultsSiteType string

const (
	SiteTypeAPI     ResultsSiteType = "api"
	SiteTypeHTML    ResultsSiteType = "html"
	SiteTypeBrowser ResultsSiteType = "browser"
)

// Race is the race-tier cache: facts shared by every order referencing the
// same (name, year). Fields are populated lazily on first research touch and
// only re-fetched after an explicit cache clear.
type Race struct {
	ID               string            `json:"id"`
	RaceName         string            `json:"race_name"`
	Year             int               `json:"year"`
	RaceDate         *time.Time        `json:"race_date,omitempty"`
	Location         string            `json:"location,omitempty"`
	EventTypes       []string          `json:"event_types,omitempty"`
	WeatherTemp      *float64          `json:"weather_temp,omitempty"`
	WeatherCondition *WeatherCondition `json:"weather_condition,omitempty"`
	ResultsURL       string            `json:"results_url,omitempty"`
	ResultsSiteType  ResultsSiteType   `json:"results_site_type,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Resolved reports whether the race-tier fetch has already run for this race.
// A cleared cache entry has its resolution fields reset and reports false.
func (r *Race) Resolved() bool {
	return r.ResultsURL != "" || r.RaceDate != nil
}

// HasEventType reports whether the race offers the given event, matched
// case-insensitively.
func (r *Race) HasEventType(event string) bool {
	for _, et := range r.EventTypes {
		if strings.EqualFold(et, event) {
			return true
		}
	}
	return false
}
