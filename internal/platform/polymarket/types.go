package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/crossbot/internal/domain"
	"github.com/alanyoungcy/crossbot/internal/matcher"
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

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Polymarket Gamma API.
// Several list-valued fields arrive JSON-encoded inside strings.
type APIMarket struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Description   string   `json:"description"`
	ConditionID   string   `json:"condition_id"`
	Slug          string   `json:"slug"`
	Category      string   `json:"category"`
	Active        flexBool `json:"active"` // API may send bool or "true"/"false" string
	Closed        bool     `json:"closed"`
	Outcomes      string   `json:"outcomes"`      // e.g. "[\"Yes\",\"No\"]"
	OutcomePrices string   `json:"outcomePrices"` // e.g. "[\"0.4\",\"0.6\"]"
	ClobTokenIDs  string   `json:"clobTokenIds"`  // e.g. "[\"123\",\"456\"]"
	Liquidity     string   `json:"liquidity"`
	LiquidityNum  float64  `json:"liquidityNum"`
	Volume        string   `json:"volume"`
	EndDateISO    string   `json:"end_date_iso"`
	Tokens        []Token  `json:"tokens"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

// Token is a token entry inside a market response; Winner is set once the
// market resolves.
type Token struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
	Winner  bool   `json:"winner"`
}

// ToEvent converts a Gamma market to a venue-neutral event.
func (m *APIMarket) ToEvent() domain.Event {
	ev := domain.Event{
		Venue:       domain.VenuePolymarket,
		ID:          m.ID,
		Title:       m.Question,
		Description: m.Description,
		Category:    m.Category,
	}
	if m.Slug != "" {
		ev.Tags = []string{m.Slug}
	}
	if t, ok := matcher.ParseResolutionTime(m.EndDateISO); ok {
		ev.ResolutionTime = t
	}
	return ev
}

// Quote extracts the current YES/NO prices and dollar liquidity. Outcome
// prices are matched to outcome labels by array position.
func (m *APIMarket) Quote() domain.MarketQuote {
	outcomes := parseStringArray(m.Outcomes)
	prices := parseStringArray(m.OutcomePrices)

	var q domain.MarketQuote
	for i, outcome := range outcomes {
		if i >= len(prices) {
			break
		}
		p, err := strconv.ParseFloat(prices[i], 64)
		if err != nil {
			continue
		}
		switch {
		case strings.EqualFold(outcome, "Yes"):
			q.YesPrice = p
		case strings.EqualFold(outcome, "No"):
			q.NoPrice = p
		}
	}

	if liq, err := strconv.ParseFloat(m.Liquidity, 64); err == nil && liq > 0 {
		q.Liquidity = liq
	} else {
		q.Liquidity = m.LiquidityNum
	}
	return q
}

// TokenIDForOutcome returns the CLOB token id backing the given outcome.
// Token ids are matched to outcome labels by array position.
func (m *APIMarket) TokenIDForOutcome(outcome domain.Outcome) (string, bool) {
	outcomes := parseStringArray(m.Outcomes)
	tokenIDs := parseStringArray(m.ClobTokenIDs)

	want := "Yes"
	if outcome == domain.OutcomeNo {
		want = "No"
	}
	for i, label := range outcomes {
		if i >= len(tokenIDs) {
			break
		}
		if strings.EqualFold(label, want) {
			return tokenIDs[i], true
		}
	}
	return "", false
}

// Resolution derives settlement state from the market. Winner flags are
// authoritative when present; otherwise a terminal outcome price stands in,
// since resolved markets pin the winning outcome at $1.
func (m *APIMarket) Resolution() domain.Resolution {
	if !m.Closed {
		return domain.Resolution{}
	}

	for _, t := range m.Tokens {
		if !t.Winner {
			continue
		}
		if strings.EqualFold(t.Outcome, "Yes") {
			return domain.Resolution{Resolved: true, YesWon: true}
		}
		if strings.EqualFold(t.Outcome, "No") {
			return domain.Resolution{Resolved: true, YesWon: false}
		}
	}

	q := m.Quote()
	switch {
	case q.YesPrice >= 0.99:
		return domain.Resolution{Resolved: true, YesWon: true}
	case q.NoPrice >= 0.99:
		return domain.Resolution{Resolved: true, YesWon: false}
	default:
		// Closed but not yet finalized; retry on a later sweep.
		return domain.Resolution{}
	}
}

// parseStringArray decodes a JSON-encoded string array; malformed input
// yields nil.
func parseStringArray(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"errorMsg,omitempty"`
	OrderID     string `json:"orderID,omitempty"`
	Status      string `json:"status,omitempty"`
	TransactID  string `json:"transactID,omitempty"`
	ShouldRetry bool   `json:"shouldRetry,omitempty"`
}

// BalanceAllowanceResponse is the collateral balance payload; the balance
// is a 6-decimal USDC amount encoded as a string.
type BalanceAllowanceResponse struct {
	Balance string `json:"balance"`
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// BookMessage represents a full orderbook snapshot delivered over WebSocket.
type BookMessage struct {
	AssetID   string         `json:"asset_id"`
	Market    string         `json:"market"`
	Bids      []WSPriceLevel `json:"bids"`
	Asks      []WSPriceLevel `json:"asks"`
	Timestamp string         `json:"timestamp"`
	Hash      string         `json:"hash"`
}

// WSPriceLevel is a single bid/ask level in the WebSocket orderbook data.
type WSPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// WSCommand is the JSON payload sent to the WebSocket to subscribe or
// unsubscribe.
type WSCommand struct {
	Type    string   `json:"type"` // "subscribe" or "unsubscribe"
	Channel string   `json:"channel,omitempty"`
	Assets  []string `json:"assets_ids,omitempty"`
}

// BookQuote is the top of book for one asset, extracted from a snapshot.
type BookQuote struct {
	AssetID   string
	BestBid   float64
	BestAsk   float64
	Timestamp time.Time
}

// bookToQuote reduces a book snapshot to its best bid and ask.
func bookToQuote(b *BookMessage) BookQuote {
	q := BookQuote{AssetID: b.AssetID}

	for _, lvl := range b.Bids {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			continue
		}
		if p > q.BestBid {
			q.BestBid = p
		}
	}
	for _, lvl := range b.Asks {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			continue
		}
		if q.BestAsk == 0 || p < q.BestAsk {
			q.BestAsk = p
		}
	}

	if ts, err := strconv.ParseInt(b.Timestamp, 10, 64); err == nil {
		q.Timestamp = time.UnixMilli(ts)
	} else if t, err := time.Parse(time.RFC3339, b.Timestamp); err == nil {
		q.Timestamp = t
	} else {
		q.Timestamp = time.Now()
	}

	return q
}
