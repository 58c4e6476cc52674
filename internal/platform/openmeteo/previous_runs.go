package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

const hourlyKey = "temperature_2m"

// hourlyResponse holds the hourly series of the previous-runs API.
type hourlyResponse struct {
	Hourly map[string]json.RawMessage `json:"hourly"`
}

// leadForKey maps "temperature_2m" to 0 and "temperature_2m_previous_dayN" to N.
func leadForKey(key string) (int, bool) {
	if key == hourlyKey {
		return 0, true
	}
	suffix, ok := strings.CutPrefix(key, hourlyKey+"_previous_day")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// PreviousRuns fetches what model predicted for each of the last pastDays
// days at leads 0..maxLead. The result is lead -> date -> daily maximum, the
// daily maximum being the largest hourly value on that local date.
func (c *Client) PreviousRuns(ctx context.Context, city domain.City, model string, pastDays, maxLead int) (map[int]map[string]float64, error) {
	vars := []string{hourlyKey}
	for i := 1; i <= maxLead; i++ {
		vars = append(vars, fmt.Sprintf("%s_previous_day%d", hourlyKey, i))
	}

	params := baseParams(city)
	params.Set("hourly", strings.Join(vars, ","))
	params.Set("models", APIModel(model))
	params.Set("past_days", strconv.Itoa(pastDays))
	params.Set("forecast_days", "0")

	body, err := c.doGet(ctx, c.previousRunsHost, "/v1/forecast", params)
	if err != nil {
		return nil, fmt.Errorf("openmeteo: previous runs %s %s: %w", city.Slug, model, err)
	}

	var resp hourlyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("openmeteo: decode previous runs: %w", err)
	}

	var times []string
	if raw, ok := resp.Hourly["time"]; ok {
		if err := json.Unmarshal(raw, &times); err != nil {
			return nil, fmt.Errorf("openmeteo: decode hourly time axis: %w", err)
		}
	}

	out := make(map[int]map[string]float64, maxLead+1)
	for key, raw := range resp.Hourly {
		lead, ok := leadForKey(key)
		if !ok || lead > maxLead {
			continue
		}
		var vals []*float64
		if err := json.Unmarshal(raw, &vals); err != nil {
			return nil, fmt.Errorf("openmeteo: decode %s: %w", key, err)
		}
		out[lead] = dailyMax(times, vals)
	}
	return out, nil
}

// dailyMax folds hourly values ("2026-10-14T13:00") into per-date maxima.
func dailyMax(times []string, vals []*float64) map[string]float64 {
	out := make(map[string]float64)
	for i, ts := range times {
		if i >= len(vals) || vals[i] == nil || len(ts) < 10 {
			continue
		}
		day := ts[:10]
		if cur, ok := out[day]; !ok || *vals[i] > cur {
			out[day] = *vals[i]
		}
	}
	return out
}
