// Package kalshi implements the Kalshi exchange adapter: a signed REST
// client for market data, orders, settlement, and balance, plus a
// WebSocket ticker stream. Portfolio endpoints are authenticated with
// RSA-PSS request signatures; market data works without credentials.
package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossbot/internal/domain"
	"github.com/alanyoungcy/crossbot/internal/matcher"
)

// maxMarketPages caps event pagination; at 200 markets per page this is
// plenty for the categories the scanner keeps.
const maxMarketPages = 5

const marketsPerPage = 200

// Client is the REST client for the Kalshi exchange API. It implements
// domain.VenueClient.
type Client struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
}

var _ domain.VenueClient = (*Client)(nil)

// NewClient creates a new Kalshi REST client.
//
// baseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
// apiKeyID is the Kalshi API key identifier; it may be empty for
// market-data-only use.
func NewClient(baseURL, apiKeyID string) *Client {
	return &Client{
		baseURL:  baseURL,
		apiKeyID: apiKeyID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetRSAPrivateKey loads the RSA private key used for request signing.
// Accepts PKCS#8 or PKCS#1 PEM blocks.
func (c *Client) SetRSAPrivateKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: failed to decode PEM block")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return fmt.Errorf("kalshi: PKCS8 key is not RSA")
		}
		c.privateKey = rsaKey
		return nil
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("kalshi: failed to parse RSA private key: %w", err)
	}
	c.privateKey = key
	return nil
}

// SetHTTPClient overrides the underlying HTTP client, mainly for tests.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// Venue identifies this client.
func (c *Client) Venue() domain.Venue {
	return domain.VenueKalshi
}

// FetchEvents lists open Kalshi markets as venue-neutral events. Pagination
// follows the API cursor up to maxMarketPages pages.
func (c *Client) FetchEvents(ctx context.Context) ([]domain.Event, error) {
	var events []domain.Event
	cursor := ""

	for page := 0; page < maxMarketPages; page++ {
		resp, err := c.getMarkets(ctx, marketsPerPage, cursor)
		if err != nil {
			return nil, err
		}
		for _, m := range resp.Markets {
			events = append(events, marketToEvent(m))
		}
		if resp.Cursor == "" || len(resp.Markets) == 0 {
			break
		}
		cursor = resp.Cursor
	}
	return events, nil
}

// FetchQuote returns the current buy-side quote for a market. Prices are
// ask prices converted from cents to dollars.
func (c *Client) FetchQuote(ctx context.Context, eventID string) (domain.MarketQuote, error) {
	m, err := c.getMarket(ctx, eventID)
	if err != nil {
		return domain.MarketQuote{}, err
	}
	return marketToQuote(m), nil
}

// PlaceOrder submits a limit buy order and returns the exchange order id.
// The contract count is the notional divided by the limit price, rounded
// down; Kalshi contracts are integral.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	if c.privateKey == nil || c.apiKeyID == "" {
		return "", fmt.Errorf("kalshi: %w: trading requires an API key and RSA private key", domain.ErrUnauthorized)
	}
	if req.LimitPrice <= 0 || req.LimitPrice >= 1 {
		return "", fmt.Errorf("kalshi: %w: limit price %.4f outside (0,1)", domain.ErrInvalidOrder, req.LimitPrice)
	}
	count := int64(math.Floor(req.NotionalUSD / req.LimitPrice))
	if count <= 0 {
		return "", fmt.Errorf("kalshi: %w: notional %.2f buys no contracts at %.2f", domain.ErrInvalidOrder, req.NotionalUSD, req.LimitPrice)
	}

	cents := int64(math.Round(req.LimitPrice * 100))
	order := Order{
		Ticker:        req.EventID,
		ClientOrderID: uuid.Must(uuid.NewRandom()).String(),
		Action:        "buy",
		Type:          "limit",
		Count:         count,
	}
	switch req.Outcome {
	case domain.OutcomeYes:
		order.Side = "yes"
		order.YesPrice = &cents
	case domain.OutcomeNo:
		order.Side = "no"
		order.NoPrice = &cents
	default:
		return "", fmt.Errorf("kalshi: %w: unknown outcome %q", domain.ErrInvalidOrder, req.Outcome)
	}

	body, err := json.Marshal(order)
	if err != nil {
		return "", fmt.Errorf("kalshi: failed to marshal order: %w", err)
	}

	var placed OrderResponse
	if err := c.doSignedRequest(ctx, http.MethodPost, "/portfolio/orders", bytes.NewReader(body), &placed); err != nil {
		return "", err
	}
	if placed.Order.Status == "canceled" {
		return "", fmt.Errorf("kalshi: %w: order %s canceled on arrival", domain.ErrOrderRejected, placed.Order.OrderID)
	}
	return placed.Order.OrderID, nil
}

// CheckSettlement reports whether a market has settled and which side won.
func (c *Client) CheckSettlement(ctx context.Context, eventID string) (domain.Resolution, error) {
	m, err := c.getMarket(ctx, eventID)
	if err != nil {
		return domain.Resolution{}, err
	}
	if m.Status != "settled" && m.Status != "finalized" {
		return domain.Resolution{}, nil
	}
	switch m.Result {
	case "yes":
		return domain.Resolution{Resolved: true, YesWon: true}, nil
	case "no":
		return domain.Resolution{Resolved: true, YesWon: false}, nil
	default:
		// Settled markets occasionally lag their result field.
		return domain.Resolution{}, nil
	}
}

// Balance returns the available portfolio balance in dollars.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	if c.privateKey == nil || c.apiKeyID == "" {
		return 0, fmt.Errorf("kalshi: %w: balance requires an API key and RSA private key", domain.ErrUnauthorized)
	}
	var resp BalanceResponse
	if err := c.doSignedRequest(ctx, http.MethodGet, "/portfolio/balance", nil, &resp); err != nil {
		return 0, err
	}
	return float64(resp.Balance) / 100.0, nil
}

// --------------------------------------------------------------------------
// REST plumbing
// --------------------------------------------------------------------------

func (c *Client) getMarkets(ctx context.Context, limit int, cursor string) (*MarketsResponse, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("status", "open")
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var resp MarketsResponse
	if err := c.doSignedRequest(ctx, http.MethodGet, "/markets?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) getMarket(ctx context.Context, ticker string) (Market, error) {
	var resp MarketResponse
	if err := c.doSignedRequest(ctx, http.MethodGet, "/markets/"+url.PathEscape(ticker), nil, &resp); err != nil {
		return Market{}, err
	}
	return resp.Market, nil
}

// doSignedRequest builds a request, signs it when a key is configured, and
// decodes the JSON response into out.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("kalshi: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.privateKey != nil && c.apiKeyID != "" {
		if err := c.signRequest(req); err != nil {
			return err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kalshi: request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("kalshi: failed to decode response: %w", err)
	}
	return nil
}

// signRequest attaches the RSA-PSS signature headers Kalshi requires.
// The signed message is the millisecond timestamp, the HTTP method, and
// the full request path concatenated in that order.
func (c *Client) signRequest(req *http.Request) error {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	message := ts + req.Method + req.URL.Path

	hashed := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hashed[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return fmt.Errorf("kalshi: %w: %v", domain.ErrSigningFailed, err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(sig))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

// checkStatus maps Kalshi HTTP errors onto domain sentinels so callers can
// branch with errors.Is.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr ErrorResponse
	_ = json.Unmarshal(body, &apiErr)
	detail := apiErr.Message
	if detail == "" {
		detail = string(body)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("kalshi: %w: %s", domain.ErrNotFound, detail)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("kalshi: %w: %s", domain.ErrUnauthorized, detail)
	case http.StatusTooManyRequests:
		return fmt.Errorf("kalshi: %w: %s", domain.ErrRateLimited, detail)
	case http.StatusBadRequest:
		return fmt.Errorf("kalshi: %w: %s", domain.ErrInvalidOrder, detail)
	case http.StatusConflict:
		return fmt.Errorf("kalshi: %w: %s", domain.ErrOrderRejected, detail)
	default:
		return fmt.Errorf("kalshi: unexpected status %d: %s (%s)", resp.StatusCode, detail, apiErr.Code)
	}
}

// --------------------------------------------------------------------------
// DTO mapping
// --------------------------------------------------------------------------

func marketToEvent(m Market) domain.Event {
	ev := domain.Event{
		Venue:       domain.VenueKalshi,
		ID:          m.Ticker,
		Title:       m.Title,
		Description: m.Subtitle,
		Category:    m.Category,
	}
	if m.EventTicker != "" {
		ev.Tags = []string{m.EventTicker}
	}
	if t, ok := matcher.ParseResolutionTime(m.CloseTime); ok {
		ev.ResolutionTime = t
	}
	return ev
}

func marketToQuote(m Market) domain.MarketQuote {
	return domain.MarketQuote{
		YesPrice:  float64(m.YesAsk) / 100.0,
		NoPrice:   float64(m.NoAsk) / 100.0,
		Liquidity: float64(m.Liquidity) / 100.0,
	}
}
