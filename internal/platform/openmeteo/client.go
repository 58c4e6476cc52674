// Package openmeteo is the weather provider: daily maximum forecasts per
// model, archived observations, and the previous-runs API used for replay.
package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// apiModels maps engine model names to Open-Meteo model identifiers.
var apiModels = map[string]string{
	"ecmwf": "ecmwf_ifs025",
	"gfs":   "gfs_seamless",
	"icon":  "icon_seamless",
}

// APIModel returns the Open-Meteo identifier for model.
func APIModel(model string) string {
	if m, ok := apiModels[model]; ok {
		return m
	}
	return model
}

// Options configures a Client. Zero values fall back to the public hosts.
type Options struct {
	ForecastHost      string
	ArchiveHost       string
	PreviousRunsHost  string
	Models            []string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	MaxElapsed        time.Duration
	HTTPClient        *http.Client
}

// Client talks to the Open-Meteo forecast, archive and previous-runs APIs.
// Requests share one limiter and retry transient failures.
type Client struct {
	forecastHost     string
	archiveHost      string
	previousRunsHost string
	models           []string
	httpClient       *http.Client
	limiter          *rate.Limiter
	maxElapsed       time.Duration
}

var (
	_ domain.ForecastProvider = (*Client)(nil)
	_ domain.ActualProvider   = (*Client)(nil)
)

// NewClient creates an Open-Meteo client.
func NewClient(opts Options) *Client {
	if opts.ForecastHost == "" {
		opts.ForecastHost = "https://api.open-meteo.com"
	}
	if opts.ArchiveHost == "" {
		opts.ArchiveHost = "https://archive-api.open-meteo.com"
	}
	if opts.PreviousRunsHost == "" {
		opts.PreviousRunsHost = "https://previous-runs-api.open-meteo.com"
	}
	if len(opts.Models) == 0 {
		opts.Models = []string{"ecmwf", "gfs", "icon"}
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 30 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		forecastHost:     opts.ForecastHost,
		archiveHost:      opts.ArchiveHost,
		previousRunsHost: opts.PreviousRunsHost,
		models:           opts.Models,
		httpClient:       opts.HTTPClient,
		limiter:          rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		maxElapsed:       opts.MaxElapsed,
	}
}

// Models returns the engine model names this client requests.
func (c *Client) Models() []string {
	out := make([]string, len(c.models))
	copy(out, c.models)
	return out
}

// baseParams sets location, timezone and unit for city.
func baseParams(city domain.City) url.Values {
	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%.4f", city.Lat))
	params.Set("longitude", fmt.Sprintf("%.4f", city.Lon))
	if city.Timezone != "" {
		params.Set("timezone", city.Timezone)
	}
	if city.Unit == domain.Fahrenheit {
		params.Set("temperature_unit", "fahrenheit")
	}
	return params
}

// apiError is the body Open-Meteo returns alongside 4xx statuses.
type apiError struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// statusError is a non-2xx response that is not mapped to a domain error.
type statusError struct {
	code   int
	reason string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.code, e.reason)
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	reason := string(body)
	var ae apiError
	if json.Unmarshal(body, &ae) == nil && ae.Reason != "" {
		reason = ae.Reason
	}
	switch statusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, reason)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, reason)
	default:
		return &statusError{code: statusCode, reason: reason}
	}
}

// doGet waits on the limiter and issues the request, retrying transport
// errors, 429 and 5xx with exponential backoff.
func (c *Client) doGet(ctx context.Context, host, path string, params url.Values) ([]byte, error) {
	target := host + path + "?" + params.Encode()

	var body []byte
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if err := checkHTTPStatus(resp.StatusCode, b); err != nil {
			var se *statusError
			if errors.Is(err, domain.ErrRateLimited) || (errors.As(err, &se) && se.code >= 500) {
				return err
			}
			return backoff.Permanent(err)
		}
		body = b
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = c.maxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}
