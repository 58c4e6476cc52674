package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

const dailyMaxKey = "temperature_2m_max"

// dailyResponse is the subset of the forecast/archive response we read.
// Series are keyed by variable, e.g. "temperature_2m_max_gfs_seamless".
type dailyResponse struct {
	Daily map[string]json.RawMessage `json:"daily"`
}

func (r dailyResponse) times() ([]string, error) {
	raw, ok := r.Daily["time"]
	if !ok {
		return nil, nil
	}
	var times []string
	if err := json.Unmarshal(raw, &times); err != nil {
		return nil, fmt.Errorf("decode time axis: %w", err)
	}
	return times, nil
}

func (r dailyResponse) series(key string) ([]*float64, error) {
	raw, ok := r.Daily[key]
	if !ok {
		return nil, nil
	}
	var vals []*float64
	if err := json.Unmarshal(raw, &vals); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return vals, nil
}

// modelFromKey turns "temperature_2m_max_ecmwf_ifs025" into "ecmwf". The bare
// key is the provider's blend and yields "".
func modelFromKey(key string) string {
	if !strings.HasPrefix(key, dailyMaxKey+"_") {
		return ""
	}
	m := strings.TrimPrefix(key, dailyMaxKey+"_")
	m = strings.ReplaceAll(m, "_seamless", "")
	m = strings.ReplaceAll(m, "_ifs025", "")
	return m
}

// Forecasts returns each model's forecast daily maximum for city on date.
// Models with no value are omitted, so the map may be empty.
func (c *Client) Forecasts(ctx context.Context, city domain.City, date time.Time) (map[string]float64, error) {
	day := domain.DateKey(date)
	params := baseParams(city)
	params.Set("daily", dailyMaxKey)
	params.Set("start_date", day)
	params.Set("end_date", day)

	models := make([]string, 0, len(c.models))
	for _, m := range c.models {
		models = append(models, APIModel(m))
	}
	params.Set("models", strings.Join(models, ","))

	body, err := c.doGet(ctx, c.forecastHost, "/v1/forecast", params)
	if err != nil {
		return nil, fmt.Errorf("openmeteo: forecast %s %s: %w", city.Slug, day, err)
	}

	var resp dailyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("openmeteo: decode forecast: %w", err)
	}

	out := make(map[string]float64, len(c.models))
	for key := range resp.Daily {
		model := modelFromKey(key)
		if model == "" {
			continue
		}
		vals, err := resp.series(key)
		if err != nil {
			return nil, fmt.Errorf("openmeteo: %w", err)
		}
		if len(vals) > 0 && vals[0] != nil {
			out[model] = *vals[0]
		}
	}
	return out, nil
}

// Actual returns the observed daily maximum for city on date, or nil when the
// archive has not published it yet.
func (c *Client) Actual(ctx context.Context, city domain.City, date time.Time) (*float64, error) {
	vals, err := c.Actuals(ctx, city, date, date)
	if err != nil {
		return nil, err
	}
	v, ok := vals[domain.DateKey(date)]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// Actuals returns observed daily maxima keyed by YYYY-MM-DD for the inclusive
// range. Days without data are absent.
func (c *Client) Actuals(ctx context.Context, city domain.City, from, to time.Time) (map[string]float64, error) {
	params := baseParams(city)
	params.Set("daily", dailyMaxKey)
	params.Set("start_date", domain.DateKey(from))
	params.Set("end_date", domain.DateKey(to))

	body, err := c.doGet(ctx, c.archiveHost, "/v1/archive", params)
	if err != nil {
		return nil, fmt.Errorf("openmeteo: archive %s %s..%s: %w", city.Slug, domain.DateKey(from), domain.DateKey(to), err)
	}

	var resp dailyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("openmeteo: decode archive: %w", err)
	}
	times, err := resp.times()
	if err != nil {
		return nil, fmt.Errorf("openmeteo: %w", err)
	}
	vals, err := resp.series(dailyMaxKey)
	if err != nil {
		return nil, fmt.Errorf("openmeteo: %w", err)
	}

	out := make(map[string]float64, len(times))
	for i, day := range times {
		if i < len(vals) && vals[i] != nil {
			out[day] = *vals[i]
		}
	}
	return out, nil
}
