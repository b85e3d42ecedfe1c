package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/crossbot/internal/domain"
)

// marketsPerPage is the Gamma page size; maxMarketPages caps discovery.
const (
	marketsPerPage = 100
	maxMarketPages = 5
)

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery, metadata, and resolution state. Gamma is
// unauthenticated.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListOpenMarkets returns open markets, paginated by offset up to
// maxMarketPages pages.
func (g *GammaClient) ListOpenMarkets(ctx context.Context) ([]APIMarket, error) {
	var all []APIMarket

	for page := 0; page < maxMarketPages; page++ {
		params := url.Values{}
		params.Set("closed", "false")
		params.Set("active", "true")
		params.Set("limit", strconv.Itoa(marketsPerPage))
		params.Set("offset", strconv.Itoa(page*marketsPerPage))

		body, err := g.doGet(ctx, "/markets?"+params.Encode())
		if err != nil {
			return nil, fmt.Errorf("polymarket/gamma: list markets: %w", err)
		}

		var markets []APIMarket
		if err := json.Unmarshal(body, &markets); err != nil {
			return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
		}

		all = append(all, markets...)
		if len(markets) < marketsPerPage {
			break
		}
	}

	return all, nil
}

// GetMarket returns a single market by its ID.
func (g *GammaClient) GetMarket(ctx context.Context, id string) (APIMarket, error) {
	body, err := g.doGet(ctx, "/markets/"+url.PathEscape(id))
	if err != nil {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: get market %s: %w", id, err)
	}

	var market APIMarket
	if err := json.Unmarshal(body, &market); err != nil {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: decode market: %w", err)
	}

	return market, nil
}

// GetMarketResolution fetches a market and reports whether it has resolved
// and which side won.
func (g *GammaClient) GetMarketResolution(ctx context.Context, marketID string) (domain.Resolution, error) {
	market, err := g.GetMarket(ctx, marketID)
	if err != nil {
		return domain.Resolution{}, err
	}
	return market.Resolution(), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain sentinels.
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
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrInvalidOrder, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
