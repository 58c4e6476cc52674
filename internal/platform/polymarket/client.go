package polymarket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// Options tunes the REST clients. Zero values fall back to defaults.
type Options struct {
	Timeout    time.Duration
	MaxElapsed time.Duration
	HTTPClient *http.Client
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxElapsed <= 0 {
		o.MaxElapsed = 30 * time.Second
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	return o
}

// restClient is the unauthenticated GET transport shared by Gamma and CLOB.
type restClient struct {
	baseURL    string
	httpClient *http.Client
	maxElapsed time.Duration
}

func newRESTClient(baseURL string, opts Options) restClient {
	opts = opts.withDefaults()
	return restClient{
		baseURL:    baseURL,
		httpClient: opts.HTTPClient,
		maxElapsed: opts.MaxElapsed,
	}
}

// doGet sends a GET request, retrying transport errors, 429 and 5xx with
// exponential backoff. Other statuses fail immediately.
func (c restClient) doGet(ctx context.Context, path string) ([]byte, error) {
	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
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
			if retryable(err) {
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

func retryable(err error) bool {
	if errors.Is(err, domain.ErrRateLimited) {
		return true
	}
	var se *statusError
	return errors.As(err, &se) && se.code >= 500
}
