package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossbot/internal/domain"
)

func testRSAKeyPEM(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	return key, pemBytes
}

func newSignedClient(t *testing.T, baseURL string) (*Client, *rsa.PrivateKey) {
	t.Helper()
	key, pemBytes := testRSAKeyPEM(t)
	c := NewClient(baseURL, "key-id-1")
	require.NoError(t, c.SetRSAPrivateKey(pemBytes))
	return c, key
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestSetRSAPrivateKeyPKCS8(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	c := NewClient("http://example.invalid", "key-id-1")
	require.NoError(t, c.SetRSAPrivateKey(pemBytes))
}

func TestSetRSAPrivateKeyRejectsGarbage(t *testing.T) {
	c := NewClient("http://example.invalid", "key-id-1")
	assert.Error(t, c.SetRSAPrivateKey([]byte("not a pem block")))
}

func TestFetchEventsPaginates(t *testing.T) {
	var pages atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/markets", r.URL.Path)
		require.Equal(t, "open", r.URL.Query().Get("status"))

		pages.Add(1)
		if r.URL.Query().Get("cursor") == "" {
			writeJSON(t, w, MarketsResponse{
				Markets: []Market{
					{
						Ticker:      "BTC-50K-MAR",
						EventTicker: "BTC-50K",
						Title:       "Bitcoin above $50,000 on March 5?",
						Subtitle:    "Resolves via CF benchmark",
						Category:    "Crypto",
						CloseTime:   "2026-09-25T12:00:00Z",
					},
					{Ticker: "FED-CUT-SEP", Title: "Fed cuts rates in September?", Category: "Economics"},
				},
				Cursor: "page-2",
			})
			return
		}
		require.Equal(t, "page-2", r.URL.Query().Get("cursor"))
		writeJSON(t, w, MarketsResponse{
			Markets: []Market{{Ticker: "NFL-KC-WIN", Title: "Chiefs win Sunday?", Category: "Sports"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	events, err := c.FetchEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int32(2), pages.Load())

	first := events[0]
	assert.Equal(t, domain.VenueKalshi, first.Venue)
	assert.Equal(t, "BTC-50K-MAR", first.ID)
	assert.Equal(t, "Bitcoin above $50,000 on March 5?", first.Title)
	assert.Equal(t, "Resolves via CF benchmark", first.Description)
	assert.Equal(t, "Crypto", first.Category)
	assert.Equal(t, []string{"BTC-50K"}, first.Tags)
	assert.Equal(t, time.Date(2026, 9, 25, 12, 0, 0, 0, time.UTC), first.ResolutionTime)

	// Missing close_time leaves the resolution time unset.
	assert.False(t, events[1].HasResolutionTime())
}

func TestFetchQuoteConvertsCents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/markets/FED-CUT-SEP", r.URL.Path)
		writeJSON(t, w, MarketResponse{Market: Market{
			Ticker:    "FED-CUT-SEP",
			YesAsk:    42,
			NoAsk:     60,
			Liquidity: 125000,
		}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	q, err := c.FetchQuote(context.Background(), "FED-CUT-SEP")
	require.NoError(t, err)
	assert.InDelta(t, 0.42, q.YesPrice, 1e-9)
	assert.InDelta(t, 0.60, q.NoPrice, 1e-9)
	assert.InDelta(t, 1250.0, q.Liquidity, 1e-9)
}

func TestPlaceOrderSubmitsSignedLimitOrder(t *testing.T) {
	var pub *rsa.PublicKey

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/portfolio/orders", r.URL.Path)

		// The signature must verify against timestamp + method + path.
		ts := r.Header.Get("KALSHI-ACCESS-TIMESTAMP")
		require.NotEmpty(t, ts)
		require.Equal(t, "key-id-1", r.Header.Get("KALSHI-ACCESS-KEY"))
		sig, err := base64.StdEncoding.DecodeString(r.Header.Get("KALSHI-ACCESS-SIGNATURE"))
		require.NoError(t, err)
		hashed := sha256.Sum256([]byte(ts + r.Method + r.URL.Path))
		require.NoError(t, rsa.VerifyPSS(pub, crypto.SHA256, hashed[:], sig, &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthEqualsHash,
			Hash:       crypto.SHA256,
		}))

		var order Order
		require.NoError(t, json.NewDecoder(r.Body).Decode(&order))
		assert.Equal(t, "FED-CUT-SEP", order.Ticker)
		assert.Equal(t, "buy", order.Action)
		assert.Equal(t, "limit", order.Type)
		assert.Equal(t, "yes", order.Side)
		assert.Equal(t, int64(250), order.Count)
		require.NotNil(t, order.YesPrice)
		assert.Equal(t, int64(40), *order.YesPrice)
		assert.Nil(t, order.NoPrice)
		assert.NotEmpty(t, order.ClientOrderID)

		var resp OrderResponse
		resp.Order.OrderID = "ord-123"
		resp.Order.Status = "resting"
		writeJSON(t, w, resp)
	}))
	defer srv.Close()

	c, key := newSignedClient(t, srv.URL)
	pub = &key.PublicKey

	id, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
		EventID:     "FED-CUT-SEP",
		Outcome:     domain.OutcomeYes,
		NotionalUSD: 100,
		LimitPrice:  0.40,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-123", id)
}

func TestPlaceOrderNoSideUsesNoPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var order Order
		require.NoError(t, json.NewDecoder(r.Body).Decode(&order))
		assert.Equal(t, "no", order.Side)
		require.NotNil(t, order.NoPrice)
		assert.Equal(t, int64(39), *order.NoPrice)
		assert.Nil(t, order.YesPrice)

		var resp OrderResponse
		resp.Order.OrderID = "ord-456"
		resp.Order.Status = "executed"
		writeJSON(t, w, resp)
	}))
	defer srv.Close()

	c, _ := newSignedClient(t, srv.URL)
	id, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
		EventID:     "FED-CUT-SEP",
		Outcome:     domain.OutcomeNo,
		NotionalUSD: 100,
		LimitPrice:  0.39,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-456", id)
}

func TestPlaceOrderRequiresCredentials(t *testing.T) {
	c := NewClient("http://example.invalid", "")
	_, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
		EventID:     "FED-CUT-SEP",
		Outcome:     domain.OutcomeYes,
		NotionalUSD: 100,
		LimitPrice:  0.40,
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestPlaceOrderValidation(t *testing.T) {
	c, _ := newSignedClient(t, "http://example.invalid")

	_, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
		EventID: "T", Outcome: domain.OutcomeYes, NotionalUSD: 100, LimitPrice: 0,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	_, err = c.PlaceOrder(context.Background(), domain.OrderRequest{
		EventID: "T", Outcome: domain.OutcomeYes, NotionalUSD: 0.10, LimitPrice: 0.40,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	_, err = c.PlaceOrder(context.Background(), domain.OrderRequest{
		EventID: "T", Outcome: domain.Outcome("MAYBE"), NotionalUSD: 100, LimitPrice: 0.40,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestPlaceOrderCanceledOnArrival(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var resp OrderResponse
		resp.Order.OrderID = "ord-789"
		resp.Order.Status = "canceled"
		writeJSON(t, w, resp)
	}))
	defer srv.Close()

	c, _ := newSignedClient(t, srv.URL)
	_, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
		EventID:     "FED-CUT-SEP",
		Outcome:     domain.OutcomeYes,
		NotionalUSD: 100,
		LimitPrice:  0.40,
	})
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
}

func TestCheckSettlement(t *testing.T) {
	tests := []struct {
		name   string
		market Market
		want   domain.Resolution
	}{
		{"settled yes", Market{Status: "settled", Result: "yes"}, domain.Resolution{Resolved: true, YesWon: true}},
		{"finalized no", Market{Status: "finalized", Result: "no"}, domain.Resolution{Resolved: true, YesWon: false}},
		{"still active", Market{Status: "active"}, domain.Resolution{}},
		{"settled without result", Market{Status: "settled"}, domain.Resolution{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, MarketResponse{Market: tt.market})
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "")
			res, err := c.CheckSettlement(context.Background(), "ANY")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res)
		})
	}
}

func TestBalanceConvertsCents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/portfolio/balance", r.URL.Path)
		require.NotEmpty(t, r.Header.Get("KALSHI-ACCESS-SIGNATURE"))
		writeJSON(t, w, BalanceResponse{Balance: 250075})
	}))
	defer srv.Close()

	c, _ := newSignedClient(t, srv.URL)
	bal, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2500.75, bal, 1e-9)
}

func TestBalanceRequiresCredentials(t *testing.T) {
	c := NewClient("http://example.invalid", "")
	_, err := c.Balance(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusForbidden, domain.ErrUnauthorized},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusBadRequest, domain.ErrInvalidOrder},
		{http.StatusConflict, domain.ErrOrderRejected},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(`{"code":"err","message":"nope"}`))
		}))

		c := NewClient(srv.URL, "")
		_, err := c.FetchQuote(context.Background(), "ANY")
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
		srv.Close()
	}
}

func TestWSTickerQuote(t *testing.T) {
	tick := WSTicker{
		MarketTicker: "FED-CUT-SEP",
		YesBid:       38,
		YesAsk:       42,
		OpenInterest: 5000,
	}
	q := tick.Quote()
	assert.InDelta(t, 0.42, q.YesPrice, 1e-9)
	assert.InDelta(t, 0.62, q.NoPrice, 1e-9)
	assert.InDelta(t, 5000.0, q.Liquidity, 1e-9)
}
