package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gopher-lab/zeus-trader/pkg/trading"
)

func gammaServer(t *testing.T, slugs map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "/events/slug/"
		if len(r.URL.Path) <= len(prefix) {
			http.NotFound(w, r)
			return
		}
		body, ok := slugs[r.URL.Path[len(prefix):]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
}

// eventJSON builds a Gamma event with the venue's JSON-encoded string
// array quirk on clobTokenIds and outcomePrices.
const eventJSON = `{
	"slug": "highest-temperature-in-los-angeles-on-july-4",
	"markets": [
		{"id": "m2", "question": "Will the highest temperature be 60-61°F?",
		 "clobTokenIds": "[\"tok-yes-2\",\"tok-no-2\"]",
		 "outcomePrices": "[\"0.55\",\"0.45\"]", "closed": false},
		{"id": "m1", "question": "Will the highest temperature be 58–59°F?",
		 "clobTokenIds": "[\"tok-yes-1\",\"tok-no-1\"]",
		 "outcomePrices": "[\"1\",\"0\"]", "closed": true},
		{"id": "side", "question": "Will it rain in Los Angeles?",
		 "clobTokenIds": "[\"tok-rain\"]", "outcomePrices": "[\"0.10\"]", "closed": false}
	]
}`

func day() time.Time {
	return time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC)
}

func TestDiscoverEvent(t *testing.T) {
	gamma := gammaServer(t, map[string]string{
		"highest-temperature-in-los-angeles-on-july-4": eventJSON,
	})
	defer gamma.Close()

	c := NewClient(gamma.URL, "http://unused")
	ev, err := c.DiscoverEvent(context.Background(), "Los Angeles", day())
	if err != nil {
		t.Fatalf("DiscoverEvent: %v", err)
	}

	// The rain market is skipped; brackets come back sorted by lower bound.
	if len(ev.Brackets) != 2 {
		t.Fatalf("got %d brackets, want 2", len(ev.Brackets))
	}
	if ev.Brackets[0].Name != "58-59°F" || ev.Brackets[1].Name != "60-61°F" {
		t.Errorf("bracket order: %q, %q", ev.Brackets[0].Name, ev.Brackets[1].Name)
	}
	if ev.Brackets[0].TokenID != "tok-yes-1" {
		t.Errorf("TokenID = %q, want first element of the encoded array", ev.Brackets[0].TokenID)
	}
	if !ev.Brackets[0].Closed || ev.Brackets[1].Closed {
		t.Errorf("closed flags wrong: %v %v", ev.Brackets[0].Closed, ev.Brackets[1].Closed)
	}
	if ev.OutcomeYesPrice["m1"] != "1" {
		t.Errorf("OutcomeYesPrice[m1] = %q, want the verbatim \"1\"", ev.OutcomeYesPrice["m1"])
	}
}

func TestDiscoverEventTriesSlugFallback(t *testing.T) {
	// Only the second pattern (no "-on-") exists.
	gamma := gammaServer(t, map[string]string{
		"highest-temperature-in-los-angeles-july-4": eventJSON,
	})
	defer gamma.Close()

	c := NewClient(gamma.URL, "http://unused")
	ev, err := c.DiscoverEvent(context.Background(), "Los Angeles", day())
	if err != nil {
		t.Fatalf("DiscoverEvent: %v", err)
	}
	if len(ev.Brackets) == 0 {
		t.Error("fallback slug returned no brackets")
	}
}

func TestDiscoverEventNotFound(t *testing.T) {
	gamma := gammaServer(t, nil)
	defer gamma.Close()

	c := NewClient(gamma.URL, "http://unused")
	_, err := c.DiscoverEvent(context.Background(), "Los Angeles", day())
	if !errors.Is(err, trading.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMidpointClamped(t *testing.T) {
	clob := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/midpoint" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"mid": "1.02"}`)
	}))
	defer clob.Close()

	c := NewClient("http://unused", clob.URL)
	mid, err := c.Midpoint(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Midpoint: %v", err)
	}
	if mid != 1.0 {
		t.Errorf("mid = %v, want clamped to 1.0", mid)
	}
}

func TestBookDepthAndSpread(t *testing.T) {
	clob := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"bids": [{"price":"0.40","size":"100"},{"price":"0.38","size":"50"}],
			"asks": [{"price":"0.44","size":"80"},{"price":"0.46","size":"200"}]
		}`)
	}))
	defer clob.Close()

	c := NewClient("http://unused", clob.URL)
	book, err := c.Book(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	wantBid := 0.40*100 + 0.38*50
	wantAsk := 0.44*80 + 0.46*200
	if math.Abs(book.BidDepthUSD-wantBid) > 1e-9 {
		t.Errorf("BidDepthUSD = %v, want %v", book.BidDepthUSD, wantBid)
	}
	if math.Abs(book.AskDepthUSD-wantAsk) > 1e-9 {
		t.Errorf("AskDepthUSD = %v, want %v", book.AskDepthUSD, wantAsk)
	}

	mid := (0.40 + 0.44) / 2
	wantSpread := (0.44 - 0.40) / mid * 10000
	if math.Abs(book.SpreadBps-wantSpread) > 1e-9 {
		t.Errorf("SpreadBps = %v, want %v", book.SpreadBps, wantSpread)
	}
}

func TestOpeningPriceFirstElement(t *testing.T) {
	clob := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("market") != "m1" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"history":[{"t":1751590800,"p":"0.35"},{"t":1751594400,"p":"0.60"}]}`)
	}))
	defer clob.Close()

	c := NewClient("http://unused", clob.URL)
	p, err := c.OpeningPrice(context.Background(), "m1")
	if err != nil {
		t.Fatalf("OpeningPrice: %v", err)
	}
	if p != 0.35 {
		t.Errorf("OpeningPrice = %v, want the first element 0.35", p)
	}
}

func TestFetchResolution(t *testing.T) {
	gamma := gammaServer(t, map[string]string{
		"highest-temperature-in-los-angeles-on-july-4": eventJSON,
	})
	defer gamma.Close()

	c := NewClient(gamma.URL, "http://unused")
	outcome, err := c.FetchResolution(context.Background(), "Los Angeles", day())
	if err != nil {
		t.Fatalf("FetchResolution: %v", err)
	}
	if !outcome.Resolved {
		t.Fatal("Resolved = false, want the \"1\"-priced bracket detected")
	}
	if outcome.Winner != "58-59°F" {
		t.Errorf("Winner = %q, want 58-59°F", outcome.Winner)
	}
}

func TestHaveOpenMarkets(t *testing.T) {
	gamma := gammaServer(t, map[string]string{
		"highest-temperature-in-los-angeles-on-july-4": eventJSON,
	})
	defer gamma.Close()

	c := NewClient(gamma.URL, "http://unused")
	open, err := c.HaveOpenMarkets(context.Background(), "Los Angeles", day())
	if err != nil {
		t.Fatalf("HaveOpenMarkets: %v", err)
	}
	if !open {
		t.Error("HaveOpenMarkets = false, want true while one bracket trades")
	}

	// Unknown city: not found maps to (false, nil).
	open, err = c.HaveOpenMarkets(context.Background(), "Nowhere", day())
	if err != nil || open {
		t.Errorf("missing event: (%v, %v), want (false, nil)", open, err)
	}
}
