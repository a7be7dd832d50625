// Package weather resolves historical race-day conditions via Open-Meteo's
// geocoding and archive APIs. Weather is an enrichment: every failure
// degrades to an empty result instead of blocking research.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/milestone-prints/raceday/internal/model"
	"github.com/milestone-prints/raceday/internal/resilience"
)

// Result is the enrichment outcome. Both fields nil means weather could not
// be resolved; Note carries the diagnostic.
type Result struct {
	Temp      *float64
	Condition *model.WeatherCondition
	Note      string
}

// raceStartHour indexes the hourly archive series at 07:00 local: start-line
// conditions, not the daily max that marathons are long over before.
const raceStartHour = 7

// precipThresholdMM above which the day counts as rainy regardless of the
// reported weather code.
const precipThresholdMM = 0.1

// Client calls the Open-Meteo geocoding and archive endpoints.
type Client struct {
	http       *http.Client
	geocodeURL string
	archiveURL string
}

// New creates a weather client with default endpoints.
func New() *Client {
	return &Client{
		http:       &http.Client{Timeout: 20 * time.Second},
		geocodeURL: "https://geocoding-api.open-meteo.com/v1/search",
		archiveURL: "https://archive-api.open-meteo.com/v1/archive",
	}
}

// FetchHistoricalWeather geocodes the location, pulls the hourly archive for
// the date and buckets the race-start conditions.
func (c *Client) FetchHistoricalWeather(ctx context.Context, date time.Time, location string) Result {
	log := zap.L().With(zap.String("location", location), zap.Time("date", date))

	lat, lon, err := c.geocode(ctx, CleanLocation(location))
	if err != nil {
		log.Warn("weather: geocoding failed", zap.Error(err))
		return Result{Note: "geocoding failed: " + err.Error()}
	}

	temp, precip, code, err := c.archiveHour(ctx, lat, lon, date)
	if err != nil {
		log.Warn("weather: archive lookup failed", zap.Error(err))
		return Result{Note: "archive lookup failed: " + err.Error()}
	}

	condition, note := BucketCondition(code, precip)
	return Result{Temp: &temp, Condition: &condition, Note: note}
}

// locationSuffixes are generic trailing words geocoders choke on
// ("Central Park" should geocode as "Central", or better, its city).
var locationSuffixes = []string{"Park", "Beach", "Downtown", "Waterfront"}

var trailingCodeRe = regexp.MustCompile(`,?\s+(?:[A-Z]{2}|USA|US)$`)

// CleanLocation strips trailing state/country codes and generic venue
// suffixes so the geocoder sees a plain place name.
func CleanLocation(location string) string {
	loc := strings.TrimSpace(location)
	for {
		next := trailingCodeRe.ReplaceAllString(loc, "")
		if next == loc {
			break
		}
		loc = strings.TrimSpace(next)
	}
	for _, suffix := range locationSuffixes {
		if strings.HasSuffix(loc, " "+suffix) {
			loc = strings.TrimSpace(strings.TrimSuffix(loc, suffix))
		}
	}
	return loc
}

// BucketCondition maps an archive weather code and precipitation amount to
// the print's three-condition palette. Unmapped codes default to cloudy
// with a diagnostic note so new codes get noticed.
func BucketCondition(code int, precipMM float64) (model.WeatherCondition, string) {
	if precipMM > precipThresholdMM {
		return model.WeatherRainy, ""
	}
	switch code {
	case 0, 1, 2: // clear, mainly clear, partly cloudy
		return model.WeatherSunny, ""
	case 3, 45, 48: // overcast, fog, rime fog
		return model.WeatherCloudy, ""
	case 51, 53, 55, 56, 57, // drizzle
		61, 63, 65, 66, 67, // rain
		71, 73, 75, 77, // snow
		80, 81, 82, 85, 86, // showers
		95, 96, 99: // thunderstorms
		return model.WeatherRainy, ""
	}
	return model.WeatherCloudy, fmt.Sprintf("unmapped weather code %d, defaulted to cloudy", code)
}

type geocodeResponse struct {
	Results []struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

func (c *Client) geocode(ctx context.Context, location string) (lat, lon float64, err error) {
	params := url.Values{
		"name":  {location},
		"count": {"1"},
	}
	var resp geocodeResponse
	if err := c.getJSON(ctx, c.geocodeURL+"?"+params.Encode(), &resp); err != nil {
		return 0, 0, err
	}
	if len(resp.Results) == 0 {
		return 0, 0, eris.Errorf("weather: no geocoding match for %q", location)
	}
	return resp.Results[0].Latitude, resp.Results[0].Longitude, nil
}

type archiveResponse struct {
	Hourly struct {
		Temperature   []float64 `json:"temperature_2m"`
		Precipitation []float64 `json:"precipitation"`
		WeatherCode   []int     `json:"weather_code"`
	} `json:"hourly"`
}

func (c *Client) archiveHour(ctx context.Context, lat, lon float64, date time.Time) (temp, precip float64, code int, err error) {
	day := date.Format("2006-01-02")
	params := url.Values{
		"latitude":         {fmt.Sprintf("%.4f", lat)},
		"longitude":        {fmt.Sprintf("%.4f", lon)},
		"start_date":       {day},
		"end_date":         {day},
		"hourly":           {"temperature_2m,precipitation,weather_code"},
		"temperature_unit": {"fahrenheit"},
		"timezone":         {"auto"},
	}
	var resp archiveResponse
	if err := c.getJSON(ctx, c.archiveURL+"?"+params.Encode(), &resp); err != nil {
		return 0, 0, 0, err
	}

	h := resp.Hourly
	if len(h.Temperature) <= raceStartHour || len(h.WeatherCode) <= raceStartHour {
		return 0, 0, 0, eris.Errorf("weather: archive returned %d hourly samples", len(h.Temperature))
	}

	precip = 0
	if len(h.Precipitation) > raceStartHour {
		precip = h.Precipitation[raceStartHour]
	}
	return h.Temperature[raceStartHour], precip, h.WeatherCode[raceStartHour], nil
}

func (c *Client) getJSON(ctx context.Context, reqURL string, out any) error {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = 2

	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return eris.Wrap(err, "weather: build request")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return resilience.NewTransientError(eris.Wrap(err, "weather: request"), 0)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			statusErr := eris.Errorf("weather: status %d from %s", resp.StatusCode, reqURL)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(statusErr, resp.StatusCode)
			}
			return statusErr
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return resilience.NewTransientError(eris.Wrap(err, "weather: read body"), resp.StatusCode)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return eris.Wrap(err, "weather: decode response")
		}
		return nil
	})
}
