package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// ClobClient reads public order books from the Polymarket CLOB API. The
// engine only paper trades, so no authenticated endpoints are wrapped.
type ClobClient struct {
	rest restClient
}

var _ domain.DepthProvider = (*ClobClient)(nil)

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
func NewClobClient(baseURL string, opts Options) *ClobClient {
	return &ClobClient{rest: newRESTClient(baseURL, opts)}
}

// Book returns the current order book for an outcome token.
func (c *ClobClient) Book(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	if tokenID == "" {
		return domain.OrderBook{}, fmt.Errorf("polymarket/clob: book: %w: empty token id", domain.ErrInvalidInput)
	}
	params := url.Values{}
	params.Set("token_id", tokenID)

	body, err := c.rest.doGet(ctx, "/book?"+params.Encode())
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}

	var apiBook APIBook
	if err := json.Unmarshal(body, &apiBook); err != nil {
		return domain.OrderBook{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}

	book := apiBook.ToDomain()
	if book.TokenID == "" {
		book.TokenID = tokenID
	}
	return book, nil
}
