package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/gopher-lab/zeus-trader/pkg/trading"
)

// Client talks to Polymarket's Gamma API (event discovery, resolution)
// and CLOB API (prices, books, price history).
type Client struct {
	gamma *resty.Client
	clob  *resty.Client
}

// NewClient creates a venue client with retry and backoff on both APIs.
func NewClient(gammaBaseURL, clobBaseURL string) *Client {
	mk := func(base string) *resty.Client {
		return resty.New().
			SetBaseURL(base).
			SetTimeout(30 * time.Second).
			SetRetryCount(3).
			SetRetryWaitTime(2 * time.Second).
			SetRetryMaxWaitTime(10 * time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				if err != nil {
					return true
				}
				return r.StatusCode() >= 500 || r.StatusCode() == http.StatusTooManyRequests
			}).
			SetHeader("Accept", "application/json")
	}
	return &Client{gamma: mk(gammaBaseURL), clob: mk(clobBaseURL)}
}

// gammaMarket is one market (bracket) inside a Gamma event. clobTokenIds
// and outcomePrices arrive as JSON-encoded strings, a long-standing
// Gamma quirk.
type gammaMarket struct {
	ID            string `json:"id"`
	Question      string `json:"question"`
	ClobTokenIDs  string `json:"clobTokenIds"`
	OutcomePrices string `json:"outcomePrices"`
	Closed        bool   `json:"closed"`
}

type gammaEvent struct {
	Slug    string        `json:"slug"`
	Markets []gammaMarket `json:"markets"`
}

// DiscoverEvent tries the candidate slugs for (city, day) in priority
// order and returns the first event found. Returns ErrNotFound when no
// slug matches.
func (c *Client) DiscoverEvent(ctx context.Context, city string, day time.Time) (*Event, error) {
	for _, slug := range EventSlugs(city, day) {
		ev, err := c.fetchEventBySlug(ctx, slug)
		if err == nil {
			return ev, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no event for %s on %s: %w", city, day.Format("2006-01-02"), trading.ErrNotFound)
}

// Event is the normalized venue event: the bracket set plus the raw
// per-outcome price strings needed for resolution.
type Event struct {
	Slug     string
	Brackets []trading.Bracket
	// OutcomeYesPrice maps market ID to the YES outcome's current price
	// as reported by the venue, verbatim. "1" marks the resolved winner.
	OutcomeYesPrice map[string]string
}

func (c *Client) fetchEventBySlug(ctx context.Context, slug string) (*Event, error) {
	resp, err := c.gamma.R().
		SetContext(ctx).
		Get("/events/slug/" + slug)
	if err != nil {
		return nil, trading.TransientUpstream("event discovery", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("event slug %s: %w", slug, trading.ErrNotFound)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, trading.TransientUpstream("event discovery",
			fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	var ev gammaEvent
	if err := json.Unmarshal(resp.Body(), &ev); err != nil {
		return nil, trading.Malformed("event discovery", err.Error())
	}
	if len(ev.Markets) == 0 {
		return nil, fmt.Errorf("event slug %s has no markets: %w", slug, trading.ErrNotFound)
	}

	out := &Event{Slug: slug, OutcomeYesPrice: make(map[string]string)}
	for _, m := range ev.Markets {
		lower, upper, err := ParseBracketBounds(m.Question)
		if err != nil {
			// Events can carry non-bracket side markets; skip them.
			log.Debug().Str("slug", slug).Str("question", m.Question).Msg("skipping non-bracket market")
			continue
		}
		out.Brackets = append(out.Brackets, trading.Bracket{
			Name:     BracketName(lower, upper),
			LowerF:   lower,
			UpperF:   upper,
			MarketID: m.ID,
			TokenID:  firstToken(m.ClobTokenIDs),
			Closed:   m.Closed,
		})
		if yes := firstToken(m.OutcomePrices); yes != "" {
			out.OutcomeYesPrice[m.ID] = yes
		}
	}
	if len(out.Brackets) == 0 {
		return nil, fmt.Errorf("event slug %s has no parseable brackets: %w", slug, trading.ErrNotFound)
	}

	sort.Slice(out.Brackets, func(i, j int) bool {
		return out.Brackets[i].LowerF < out.Brackets[j].LowerF
	})
	return out, nil
}

// firstToken decodes a JSON-encoded string array and returns its first
// element, or "" when the field is absent or malformed.
func firstToken(encoded string) string {
	if encoded == "" {
		return ""
	}
	var arr []string
	if err := json.Unmarshal([]byte(encoded), &arr); err != nil || len(arr) == 0 {
		return ""
	}
	return arr[0]
}

// Midpoint fetches the current mid-price for a token, clamped to [0,1].
func (c *Client) Midpoint(ctx context.Context, tokenID string) (float64, error) {
	resp, err := c.clob.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		Get("/midpoint")
	if err != nil {
		return 0, trading.TransientUpstream("midpoint", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, trading.TransientUpstream("midpoint",
			fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	var body struct {
		Mid num `json:"mid"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return 0, trading.Malformed("midpoint", err.Error())
	}
	return clamp01(float64(body.Mid)), nil
}

// BookDepth summarizes one side of the order book in USD.
type BookDepth struct {
	BidDepthUSD float64
	AskDepthUSD float64
	SpreadBps   float64
}

type bookLevel struct {
	Price num `json:"price"`
	Size  num `json:"size"`
}

// Book fetches the L2 book for a token and derives USD depth per side
// plus the bid/ask spread in basis points of the mid.
func (c *Client) Book(ctx context.Context, tokenID string) (*BookDepth, error) {
	resp, err := c.clob.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		Get("/book")
	if err != nil {
		return nil, trading.TransientUpstream("book", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, trading.TransientUpstream("book",
			fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	var body struct {
		Bids []bookLevel `json:"bids"`
		Asks []bookLevel `json:"asks"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, trading.Malformed("book", err.Error())
	}

	depth := &BookDepth{}
	bestBid, bestAsk := 0.0, 0.0
	for _, lvl := range body.Bids {
		p, s := levelValues(lvl)
		depth.BidDepthUSD += p * s
		if p > bestBid {
			bestBid = p
		}
	}
	for _, lvl := range body.Asks {
		p, s := levelValues(lvl)
		depth.AskDepthUSD += p * s
		if bestAsk == 0 || p < bestAsk {
			bestAsk = p
		}
	}
	if bestBid > 0 && bestAsk > 0 {
		mid := (bestBid + bestAsk) / 2
		depth.SpreadBps = (bestAsk - bestBid) / mid * 10000
	}
	return depth, nil
}

func levelValues(lvl bookLevel) (float64, float64) {
	return float64(lvl.Price), float64(lvl.Size)
}

// OpeningPrice returns the first element of the hourly price history for
// a market, used by the backtester for closed markets.
func (c *Client) OpeningPrice(ctx context.Context, marketID string) (float64, error) {
	resp, err := c.clob.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"market":   marketID,
			"interval": "1h",
			"fidelity": "24",
		}).
		Get("/prices-history")
	if err != nil {
		return 0, trading.TransientUpstream("price history", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return 0, fmt.Errorf("price history for %s: %w", marketID, trading.ErrNotFound)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, trading.TransientUpstream("price history",
			fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	var body struct {
		History []struct {
			T int64 `json:"t"`
			P num   `json:"p"`
		} `json:"history"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return 0, trading.Malformed("price history", err.Error())
	}
	if len(body.History) == 0 {
		return 0, fmt.Errorf("price history for %s empty: %w", marketID, trading.ErrNotFound)
	}
	return clamp01(float64(body.History[0].P)), nil
}

// ResolutionOutcome is the sum type returned by FetchResolution.
type ResolutionOutcome struct {
	Resolved bool
	Winner   string // Canonical bracket name, set when Resolved
}

// FetchResolution looks up the event for (city, day) and extracts the
// winner: the single bracket whose YES outcome price reads exactly "1".
// The venue's other "resolved" flags lag; the "1" string is the contract.
func (c *Client) FetchResolution(ctx context.Context, city string, day time.Time) (*ResolutionOutcome, error) {
	ev, err := c.DiscoverEvent(ctx, city, day)
	if err != nil {
		return nil, err
	}
	for _, b := range ev.Brackets {
		if ev.OutcomeYesPrice[b.MarketID] == "1" {
			return &ResolutionOutcome{Resolved: true, Winner: b.Name}, nil
		}
	}
	return &ResolutionOutcome{Resolved: false}, nil
}

// HaveOpenMarkets is the cheap pre-check before a full cycle: true when
// the event exists and at least one bracket is not closed.
func (c *Client) HaveOpenMarkets(ctx context.Context, city string, day time.Time) (bool, error) {
	ev, err := c.DiscoverEvent(ctx, city, day)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	for _, b := range ev.Brackets {
		if !b.Closed {
			return true, nil
		}
	}
	return false, nil
}

// num decodes venue numerics, which arrive as JSON numbers or quoted
// strings depending on the endpoint.
type num float64

func (n *num) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = num(v)
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, trading.ErrNotFound)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
