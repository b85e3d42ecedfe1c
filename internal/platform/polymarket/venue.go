// Package polymarket implements the Polymarket venue adapter. Market
// discovery and resolution state come from the unauthenticated Gamma API;
// orders and balances go through the CLOB API with EIP-712 signed orders
// and HMAC-authenticated requests.
package polymarket

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/alanyoungcy/crossbot/internal/crypto"
	"github.com/alanyoungcy/crossbot/internal/domain"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// Client implements domain.VenueClient for Polymarket. The CLOB client is
// optional; without it the venue is read-only and trading methods fail
// with ErrUnauthorized.
type Client struct {
	gamma *GammaClient
	clob  *ClobClient

	// funder is the proxy wallet holding funds; empty means the signing
	// EOA trades directly.
	funder        string
	signatureType int
}

var _ domain.VenueClient = (*Client)(nil)

// NewClient creates the Polymarket venue client.
func NewClient(gamma *GammaClient, clob *ClobClient, funderAddress string, signatureType int) *Client {
	return &Client{
		gamma:         gamma,
		clob:          clob,
		funder:        funderAddress,
		signatureType: signatureType,
	}
}

// Venue identifies this client.
func (c *Client) Venue() domain.Venue {
	return domain.VenuePolymarket
}

// FetchEvents lists open Polymarket markets as venue-neutral events.
func (c *Client) FetchEvents(ctx context.Context) ([]domain.Event, error) {
	markets, err := c.gamma.ListOpenMarkets(ctx)
	if err != nil {
		return nil, err
	}

	events := make([]domain.Event, 0, len(markets))
	for i := range markets {
		events = append(events, markets[i].ToEvent())
	}
	return events, nil
}

// FetchQuote returns the current quote for a market.
func (c *Client) FetchQuote(ctx context.Context, eventID string) (domain.MarketQuote, error) {
	market, err := c.gamma.GetMarket(ctx, eventID)
	if err != nil {
		return domain.MarketQuote{}, err
	}
	return market.Quote(), nil
}

// PlaceOrder builds, signs, and posts a GTC buy order for the outcome token
// backing the requested side, and returns the exchange order id.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	if c.clob == nil {
		return "", fmt.Errorf("polymarket: %w: trading requires CLOB credentials", domain.ErrUnauthorized)
	}
	if req.LimitPrice <= 0 || req.LimitPrice >= 1 {
		return "", fmt.Errorf("polymarket: %w: limit price %.4f outside (0,1)", domain.ErrInvalidOrder, req.LimitPrice)
	}
	if req.NotionalUSD <= 0 {
		return "", fmt.Errorf("polymarket: %w: notional %.2f", domain.ErrInvalidOrder, req.NotionalUSD)
	}

	market, err := c.gamma.GetMarket(ctx, req.EventID)
	if err != nil {
		return "", err
	}
	tokenID, ok := market.TokenIDForOutcome(req.Outcome)
	if !ok {
		return "", fmt.Errorf("polymarket: %w: market %s has no token for outcome %s", domain.ErrInvalidOrder, req.EventID, req.Outcome)
	}

	payload, err := c.buildOrderPayload(tokenID, req.NotionalUSD, req.LimitPrice)
	if err != nil {
		return "", err
	}

	signature, err := c.clob.signer.SignOrder(payload)
	if err != nil {
		return "", fmt.Errorf("polymarket: %w: %v", domain.ErrSigningFailed, err)
	}

	return c.clob.PostOrder(ctx, payload, "BUY", signature)
}

// CheckSettlement queries Gamma for the market's resolution state.
func (c *Client) CheckSettlement(ctx context.Context, eventID string) (domain.Resolution, error) {
	return c.gamma.GetMarketResolution(ctx, eventID)
}

// Balance returns the available USDC collateral in dollars.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	if c.clob == nil {
		return 0, fmt.Errorf("polymarket: %w: balance requires CLOB credentials", domain.ErrUnauthorized)
	}
	return c.clob.CollateralBalance(ctx, c.signatureType)
}

// buildOrderPayload assembles the EIP-712 order struct for a buy. Amounts
// are 6-decimal USDC / share units: the maker pays the notional and takes
// notional/price shares.
func (c *Client) buildOrderPayload(tokenID string, notionalUSD, limitPrice float64) (crypto.OrderPayload, error) {
	salt, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return crypto.OrderPayload{}, fmt.Errorf("polymarket: generate salt: %w", err)
	}

	signerAddr := c.clob.signer.Address().Hex()
	maker := c.funder
	sigType := c.signatureType
	if maker == "" {
		maker = signerAddr
		sigType = 0 // plain EOA
	}

	makerAmount := int64(math.Round(notionalUSD * 1e6))
	takerAmount := int64(math.Round(notionalUSD / limitPrice * 1e6))

	return crypto.OrderPayload{
		Salt:          salt.String(),
		Maker:         maker,
		Signer:        signerAddr,
		Taker:         zeroAddress,
		TokenID:       tokenID,
		MakerAmount:   strconv.FormatInt(makerAmount, 10),
		TakerAmount:   strconv.FormatInt(takerAmount, 10),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          0, // BUY
		SignatureType: sigType,
	}, nil
}
