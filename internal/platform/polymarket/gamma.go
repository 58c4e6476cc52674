package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// GammaClient is the REST client for the Polymarket Gamma API, used to find
// the daily highest-temperature event for a city and read its bucket prices.
type GammaClient struct {
	rest     restClient
	cache    domain.MarketCache
	cacheTTL time.Duration
	logger   *slog.Logger
}

var _ domain.MarketProvider = (*GammaClient)(nil)

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, opts Options, logger *slog.Logger) *GammaClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &GammaClient{
		rest:   newRESTClient(baseURL, opts),
		logger: logger.With(slog.String("component", "gamma")),
	}
}

// WithCache makes Market consult cache before calling the API. A ttl <= 0
// disables caching.
func (g *GammaClient) WithCache(cache domain.MarketCache, ttl time.Duration) *GammaClient {
	g.cache = cache
	g.cacheTTL = ttl
	return g
}

// EventSlug builds the event slug, e.g.
// "highest-temperature-in-london-on-october-14-2026".
func EventSlug(citySlug string, date time.Time) string {
	return fmt.Sprintf("highest-temperature-in-%s-on-%s-%d-%d",
		citySlug, strings.ToLower(date.Month().String()), date.Day(), date.Year())
}

// Market returns the temperature event for city on date with one bucket per
// market. It returns domain.ErrNotFound when no event is listed.
func (g *GammaClient) Market(ctx context.Context, city domain.City, date time.Time) (domain.MarketEvent, error) {
	slug := EventSlug(city.Slug, date)

	if g.cache != nil && g.cacheTTL > 0 {
		if ev, err := g.cache.Get(ctx, slug); err == nil {
			return ev, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			g.logger.WarnContext(ctx, "market cache read failed", slog.String("slug", slug), slog.String("error", err.Error()))
		}
	}

	params := url.Values{}
	params.Set("slug", slug)

	body, err := g.rest.doGet(ctx, "/events?"+params.Encode())
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("polymarket/gamma: get event %s: %w", slug, err)
	}

	var events []APIEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return domain.MarketEvent{}, fmt.Errorf("polymarket/gamma: decode events: %w", err)
	}
	if len(events) == 0 {
		return domain.MarketEvent{}, fmt.Errorf("polymarket/gamma: %w: slug=%s", domain.ErrNotFound, slug)
	}

	ev := domain.MarketEvent{
		Slug: slug,
		City: city.Slug,
		Date: domain.Day(date),
	}
	for i := range events[0].Markets {
		b, err := events[0].Markets[i].ToDomainBucket()
		if err != nil {
			g.logger.DebugContext(ctx, "skipping market", slog.String("slug", slug), slog.String("error", err.Error()))
			continue
		}
		ev.Buckets = append(ev.Buckets, b)
	}

	if g.cache != nil && g.cacheTTL > 0 {
		if err := g.cache.Set(ctx, ev, g.cacheTTL); err != nil {
			g.logger.WarnContext(ctx, "market cache write failed", slog.String("slug", slug), slog.String("error", err.Error()))
		}
	}
	return ev, nil
}
