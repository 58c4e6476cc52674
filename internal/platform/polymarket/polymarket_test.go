package polymarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

var london = domain.City{Name: "London", Slug: "london", Unit: domain.Celsius}

const eventJSON = `[{
  "id": "1",
  "slug": "highest-temperature-in-london-on-october-14-2026",
  "active": "true",
  "markets": [
    {"id": "a", "groupItemTitle": "15°C", "outcomePrices": "[\"0.30\",\"0.70\"]", "clobTokenIds": "[\"tok15\",\"no15\"]", "volume": "1200.5"},
    {"id": "b", "groupItemTitle": "16°C", "outcomePrices": "[\"0.45\",\"0.55\"]", "clobTokenIds": "[\"tok16\",\"no16\"]", "volume": 800},
    {"id": "c", "groupItemTitle": "", "outcomePrices": "[\"0.1\"]", "clobTokenIds": "[]"}
  ]
}]`

func fastOpts() Options {
	return Options{Timeout: time.Second, MaxElapsed: 2 * time.Second}
}

func TestEventSlug(t *testing.T) {
	d := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "highest-temperature-in-buenos-aires-on-march-2-2026", EventSlug("buenos-aires", d))
}

func TestGammaMarket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		assert.Equal(t, "highest-temperature-in-london-on-october-14-2026", r.URL.Query().Get("slug"))
		_, _ = w.Write([]byte(eventJSON))
	}))
	defer srv.Close()

	g := NewGammaClient(srv.URL, fastOpts(), nil)
	ev, err := g.Market(context.Background(), london, time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "london", ev.City)
	require.Len(t, ev.Buckets, 2, "market without a title is skipped")

	b, ok := ev.Find("16°C")
	require.True(t, ok)
	assert.Equal(t, 0.45, b.Price)
	assert.Equal(t, "tok16", b.TokenID)
	assert.Equal(t, 800.0, b.Volume)

	b, ok = ev.Find("15°C")
	require.True(t, ok)
	assert.Equal(t, 1200.5, b.Volume)
}

func TestGammaMarketNotListed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	g := NewGammaClient(srv.URL, fastOpts(), nil)
	_, err := g.Market(context.Background(), london, time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGammaRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(eventJSON))
	}))
	defer srv.Close()

	g := NewGammaClient(srv.URL, Options{Timeout: time.Second, MaxElapsed: 10 * time.Second}, nil)
	ev, err := g.Market(context.Background(), london, time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, ev.Buckets, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGammaDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	g := NewGammaClient(srv.URL, fastOpts(), nil)
	_, err := g.Market(context.Background(), london, time.Now())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, int32(1), calls.Load())
}

type memCache struct {
	mu     sync.Mutex
	events map[string]domain.MarketEvent
}

func (c *memCache) Set(_ context.Context, ev domain.MarketEvent, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[ev.Slug] = ev
	return nil
}

func (c *memCache) Get(_ context.Context, slug string) (domain.MarketEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, ok := c.events[slug]
	if !ok {
		return domain.MarketEvent{}, domain.ErrNotFound
	}
	return ev, nil
}

func TestGammaMarketUsesCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(eventJSON))
	}))
	defer srv.Close()

	cache := &memCache{events: map[string]domain.MarketEvent{}}
	g := NewGammaClient(srv.URL, fastOpts(), nil).WithCache(cache, time.Minute)
	date := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)

	first, err := g.Market(context.Background(), london, date)
	require.NoError(t, err)
	second, err := g.Market(context.Background(), london, date)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClobBook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book", r.URL.Path)
		assert.Equal(t, "tok16", r.URL.Query().Get("token_id"))
		_, _ = w.Write([]byte(`{
		  "asset_id": "tok16",
		  "bids": [{"price": "0.40", "size": "100"}],
		  "asks": [{"price": "0.46", "size": "50"}, {"price": "bad", "size": "1"}, {"price": "0.48", "size": "25.5"}],
		  "timestamp": "1760443200000"
		}`))
	}))
	defer srv.Close()

	c := NewClobClient(srv.URL, fastOpts())
	book, err := c.Book(context.Background(), "tok16")
	require.NoError(t, err)

	assert.Equal(t, "tok16", book.TokenID)
	require.Len(t, book.Asks, 2)
	assert.Equal(t, domain.PriceLevel{Price: 0.48, Size: 25.5}, book.Asks[1])
	require.Len(t, book.Bids, 1)
	assert.Equal(t, time.UnixMilli(1760443200000).UTC(), book.Timestamp)
}

func TestClobBookRejectsEmptyToken(t *testing.T) {
	c := NewClobClient("http://unused", fastOpts())
	_, err := c.Book(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
