package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milestone-prints/raceday/internal/model"
)

func TestCleanLocation(t *testing.T) {
	assert.Equal(t, "New York", CleanLocation("New York, NY"))
	assert.Equal(t, "Chicago", CleanLocation("Chicago, IL, USA"))
	assert.Equal(t, "Arlington", CleanLocation("Arlington, VA US"))
	assert.Equal(t, "Central", CleanLocation("Central Park"))
	assert.Equal(t, "Boston", CleanLocation("  Boston  "))
}

func TestBucketCondition(t *testing.T) {
	cond, note := BucketCondition(0, 0)
	assert.Equal(t, model.WeatherSunny, cond)
	assert.Empty(t, note)

	cond, _ = BucketCondition(2, 0)
	assert.Equal(t, model.WeatherSunny, cond)

	cond, _ = BucketCondition(3, 0)
	assert.Equal(t, model.WeatherCloudy, cond)

	cond, _ = BucketCondition(45, 0)
	assert.Equal(t, model.WeatherCloudy, cond)

	cond, _ = BucketCondition(63, 0)
	assert.Equal(t, model.WeatherRainy, cond)

	cond, _ = BucketCondition(95, 0)
	assert.Equal(t, model.WeatherRainy, cond)
}

func TestBucketCondition_PrecipOverridesCode(t *testing.T) {
	cond, _ := BucketCondition(0, 0.5)
	assert.Equal(t, model.WeatherRainy, cond)
}

func TestBucketCondition_UnmappedDefaultsCloudy(t *testing.T) {
	cond, note := BucketCondition(42, 0)
	assert.Equal(t, model.WeatherCloudy, cond)
	assert.Contains(t, note, "unmapped weather code 42")
}

func hourly(startTemp float64, code int) ([]float64, []float64, []int) {
	temps := make([]float64, 24)
	precip := make([]float64, 24)
	codes := make([]int, 24)
	for i := range temps {
		temps[i] = startTemp + float64(i)
		codes[i] = code
	}
	return temps, precip, codes
}

func TestFetchHistoricalWeather_UsesRaceStartHour(t *testing.T) {
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "New York", r.URL.Query().Get("name"))
		w.Write([]byte(`{"results":[{"latitude":40.71,"longitude":-74.0}]}`))
	}))
	defer geo.Close()

	archive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-11-03", r.URL.Query().Get("start_date"))
		// Hour 7 temperature is 47.0.
		w.Write([]byte(`{"hourly":{
			"temperature_2m":[40,41,42,43,44,45,46,47,48,49,50,51,52,53,54,55,56,57,58,59,60,61,62,63],
			"precipitation":[0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0],
			"weather_code":[1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1]}}`))
	}))
	defer archive.Close()

	c := New()
	c.geocodeURL = geo.URL
	c.archiveURL = archive.URL

	res := c.FetchHistoricalWeather(context.Background(),
		time.Date(2024, 11, 3, 0, 0, 0, 0, time.UTC), "New York, NY")

	require.NotNil(t, res.Temp)
	assert.Equal(t, 47.0, *res.Temp)
	require.NotNil(t, res.Condition)
	assert.Equal(t, model.WeatherSunny, *res.Condition)
}

func TestFetchHistoricalWeather_GeocodeFailureDegrades(t *testing.T) {
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer geo.Close()

	c := New()
	c.geocodeURL = geo.URL

	res := c.FetchHistoricalWeather(context.Background(), time.Now(), "Atlantis")
	assert.Nil(t, res.Temp)
	assert.Nil(t, res.Condition)
	assert.Contains(t, res.Note, "geocoding failed")
}

func TestFetchHistoricalWeather_ArchiveFailureDegrades(t *testing.T) {
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"latitude":40.71,"longitude":-74.0}]}`))
	}))
	defer geo.Close()

	archive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer archive.Close()

	c := New()
	c.geocodeURL = geo.URL
	c.archiveURL = archive.URL

	res := c.FetchHistoricalWeather(context.Background(), time.Now(), "New York, NY")
	assert.Nil(t, res.Temp)
	assert.Nil(t, res.Condition)
	assert.Contains(t, res.Note, "archive lookup failed")
}

func TestFetchHistoricalWeather_ShortSeriesDegrades(t *testing.T) {
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"latitude":40.71,"longitude":-74.0}]}`))
	}))
	defer geo.Close()

	archive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hourly":{"temperature_2m":[40,41],"precipitation":[0,0],"weather_code":[1,1]}}`))
	}))
	defer archive.Close()

	c := New()
	c.geocodeURL = geo.URL
	c.archiveURL = archive.URL

	res := c.FetchHistoricalWeather(context.Background(), time.Now(), "New York")
	assert.Nil(t, res.Temp)
	assert.Nil(t, res.Condition)
}
