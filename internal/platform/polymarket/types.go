package polymarket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat accepts a JSON number or a numeric string. Gamma sends volume
// either way depending on the endpoint.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIEvent represents an event as returned by the Polymarket Gamma API.
// A temperature event groups one market per bucket.
type APIEvent struct {
	ID      string      `json:"id"`
	Title   string      `json:"title"`
	Slug    string      `json:"slug"`
	Active  flexBool    `json:"active"`
	Closed  bool        `json:"closed"`
	Markets []APIMarket `json:"markets"`
}

// APIMarket represents one bucket market inside an event.
type APIMarket struct {
	ID             string    `json:"id"`
	Question       string    `json:"question"`
	GroupItemTitle string    `json:"groupItemTitle"`
	OutcomePrices  string    `json:"outcomePrices"` // JSON-encoded: e.g. "[\"0.45\",\"0.55\"]"
	ClobTokenIDs   string    `json:"clobTokenIds"`  // JSON-encoded: e.g. "[\"123\",\"456\"]"
	Volume         flexFloat `json:"volume"`
	Closed         bool      `json:"closed"`
}

// ToDomainBucket converts the market into a bucket. The Yes price and token
// are the first entries of the encoded arrays.
func (m *APIMarket) ToDomainBucket() (domain.MarketBucket, error) {
	b := domain.MarketBucket{
		Title:  m.GroupItemTitle,
		Volume: float64(m.Volume),
	}
	if b.Title == "" {
		return b, fmt.Errorf("market %s: empty groupItemTitle", m.ID)
	}

	var prices []string
	if err := json.Unmarshal([]byte(m.OutcomePrices), &prices); err != nil || len(prices) == 0 {
		return b, fmt.Errorf("market %s: bad outcomePrices %q", m.ID, m.OutcomePrices)
	}
	p, err := strconv.ParseFloat(prices[0], 64)
	if err != nil {
		return b, fmt.Errorf("market %s: parse price %q: %w", m.ID, prices[0], err)
	}
	b.Price = p

	var tokens []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokens); err == nil && len(tokens) > 0 {
		b.TokenID = tokens[0]
	}
	return b, nil
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIBook is the /book response for a single outcome token.
type APIBook struct {
	Market    string          `json:"market"`
	AssetID   string          `json:"asset_id"`
	Bids      []APIPriceLevel `json:"bids"`
	Asks      []APIPriceLevel `json:"asks"`
	Timestamp string          `json:"timestamp"`
	Hash      string          `json:"hash"`
}

// APIPriceLevel is a single bid/ask level; the CLOB sends both fields as strings.
type APIPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// ToDomain converts the book, skipping unparseable levels.
func (b *APIBook) ToDomain() domain.OrderBook {
	book := domain.OrderBook{
		TokenID: b.AssetID,
		Bids:    convertLevels(b.Bids),
		Asks:    convertLevels(b.Asks),
	}

	// The CLOB reports unix milliseconds; older payloads used RFC3339.
	if ms, err := strconv.ParseInt(b.Timestamp, 10, 64); err == nil {
		book.Timestamp = time.UnixMilli(ms).UTC()
	} else if t, err := time.Parse(time.RFC3339, b.Timestamp); err == nil {
		book.Timestamp = t
	}
	return book
}

func convertLevels(in []APIPriceLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, lvl := range in {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			continue
		}
		s, err := strconv.ParseFloat(lvl.Size, 64)
		if err != nil {
			continue
		}
		out = append(out, domain.PriceLevel{Price: p, Size: s})
	}
	return out
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return &statusError{code: statusCode, body: bodyStr}
	}
}

// statusError is any other non-2xx response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}
