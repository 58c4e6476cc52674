package openmeteo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

var (
	london  = domain.City{Name: "London", Slug: "london", Lat: 51.5053, Lon: 0.0553, Unit: domain.Celsius, Timezone: "Europe/London"}
	chicago = domain.City{Name: "Chicago", Slug: "chicago", Lat: 41.9742, Lon: -87.9073, Unit: domain.Fahrenheit, Timezone: "America/Chicago"}
	day     = time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
)

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(Options{
		ForecastHost:      srv.URL,
		ArchiveHost:       srv.URL,
		PreviousRunsHost:  srv.URL,
		RequestsPerSecond: 100,
		Burst:             10,
		Timeout:           time.Second,
		MaxElapsed:        5 * time.Second,
	})
}

func TestForecasts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/v1/forecast", r.URL.Path)
		assert.Equal(t, "2026-10-14", q.Get("start_date"))
		assert.Equal(t, "ecmwf_ifs025,gfs_seamless,icon_seamless", q.Get("models"))
		assert.Equal(t, "Europe/London", q.Get("timezone"))
		assert.Empty(t, q.Get("temperature_unit"))
		_, _ = w.Write([]byte(`{"daily": {
			"time": ["2026-10-14"],
			"temperature_2m_max": [15.9],
			"temperature_2m_max_ecmwf_ifs025": [15.4],
			"temperature_2m_max_gfs_seamless": [15.6],
			"temperature_2m_max_icon_seamless": [null]
		}}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv).Forecasts(context.Background(), london, day)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"ecmwf": 15.4, "gfs": 15.6}, got)
}

func TestForecastsFahrenheit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fahrenheit", r.URL.Query().Get("temperature_unit"))
		_, _ = w.Write([]byte(`{"daily": {"time": ["2026-10-14"], "temperature_2m_max_gfs_seamless": [72.1]}}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv).Forecasts(context.Background(), chicago, day)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"gfs": 72.1}, got)
}

func TestForecastsBadRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": true, "reason": "Cannot initialize WeatherVariable"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Forecasts(context.Background(), london, day)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "Cannot initialize WeatherVariable")
	assert.Equal(t, int32(1), calls.Load())
}

func TestForecastsRetryRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"daily": {"time": ["2026-10-14"], "temperature_2m_max_ecmwf_ifs025": [15.4]}}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv).Forecasts(context.Background(), london, day)
	require.NoError(t, err)
	assert.Equal(t, 15.4, got["ecmwf"])
	assert.Equal(t, int32(2), calls.Load())
}

func TestActual(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/archive", r.URL.Path)
		switch r.URL.Query().Get("start_date") {
		case "2026-10-14":
			_, _ = w.Write([]byte(`{"daily": {"time": ["2026-10-14"], "temperature_2m_max": [15.9]}}`))
		default:
			_, _ = w.Write([]byte(`{"daily": {"time": ["2026-10-15"], "temperature_2m_max": [null]}}`))
		}
	}))
	defer srv.Close()
	c := newTestClient(srv)

	v, err := c.Actual(context.Background(), london, day)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 15.9, *v)

	v, err = c.Actual(context.Background(), london, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Nil(t, v, "unpublished observation")
}

func TestActualsRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2026-10-12", r.URL.Query().Get("start_date"))
		assert.Equal(t, "2026-10-14", r.URL.Query().Get("end_date"))
		_, _ = w.Write([]byte(`{"daily": {"time": ["2026-10-12", "2026-10-13", "2026-10-14"], "temperature_2m_max": [14.1, null, 15.9]}}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv).Actuals(context.Background(), london, day.AddDate(0, 0, -2), day)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"2026-10-12": 14.1, "2026-10-14": 15.9}, got)
}

func TestPreviousRuns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "temperature_2m,temperature_2m_previous_day1,temperature_2m_previous_day2", q.Get("hourly"))
		assert.Equal(t, "ecmwf_ifs025", q.Get("models"))
		assert.Equal(t, "30", q.Get("past_days"))
		assert.Equal(t, "0", q.Get("forecast_days"))
		_, _ = w.Write([]byte(`{"hourly": {
			"time": ["2026-10-13T12:00", "2026-10-13T15:00", "2026-10-14T12:00", "2026-10-14T15:00"],
			"temperature_2m": [14.0, 15.2, 16.1, 15.8],
			"temperature_2m_previous_day1": [13.5, null, 15.0, 15.5],
			"temperature_2m_previous_day2": [null, null, 17.0, 16.0],
			"temperature_2m_previous_day3": [1, 2, 3, 4]
		}}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv).PreviousRuns(context.Background(), london, "ecmwf", 30, 2)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, map[string]float64{"2026-10-13": 15.2, "2026-10-14": 16.1}, got[0])
	assert.Equal(t, map[string]float64{"2026-10-13": 13.5, "2026-10-14": 15.5}, got[1])
	assert.Equal(t, map[string]float64{"2026-10-14": 17.0}, got[2])
}

func TestModelFromKey(t *testing.T) {
	assert.Equal(t, "ecmwf", modelFromKey("temperature_2m_max_ecmwf_ifs025"))
	assert.Equal(t, "gfs", modelFromKey("temperature_2m_max_gfs_seamless"))
	assert.Equal(t, "ukmo", modelFromKey("temperature_2m_max_ukmo"))
	assert.Equal(t, "", modelFromKey("temperature_2m_max"))
	assert.Equal(t, "", modelFromKey("time"))
}
