// Package trading defines the shared data types that flow through the
// engine: brackets, forecasts, probability assignments, sizing decisions
// and ledger rows.
package trading

import "time"

// Bracket is a half-open temperature interval [LowerF, UpperF) tradable
// as a binary market. Immutable once constructed.
type Bracket struct {
	Name     string // Venue display name (e.g., "60-61°F")
	LowerF   int    // Lower bound in °F, inclusive
	UpperF   int    // Upper bound in °F, exclusive
	MarketID string // Venue market ID, used for resolution lookup
	TokenID  string // CLOB token ID, used for price lookup
	Closed   bool   // True when the venue reports the market closed
}

// Contains reports whether a whole-degree temperature falls inside the
// bracket's half-open interval.
func (b Bracket) Contains(tempF int) bool {
	return tempF >= b.LowerF && tempF < b.UpperF
}

// ForecastPoint is a single hourly temperature prediction.
type ForecastPoint struct {
	TimeUTC time.Time
	TempK   float64
}

// Forecast is an ordered series of hourly points for one station covering
// a contiguous window, typically 24 points starting at local midnight of
// the target day. U80F/U95F, when present, are one-sided upper confidence
// bounds on the daily high in °F.
type Forecast struct {
	StationCode string
	Latitude    float64
	Longitude   float64
	EventDay    time.Time
	Points      []ForecastPoint

	U80F *float64
	U95F *float64
}

// BracketProb pairs a bracket with the model probability and, when a live
// price is available, the market-implied probability.
type BracketProb struct {
	Bracket Bracket
	PZeus   float64  // Model probability, in [0,1], sums to ~1 across the event
	PMkt    *float64 // Market mid-price as probability; nil when no price
	SigmaZ  *float64 // Sigma used for the daily-high distribution
}

// EdgeDecision is an order intent produced by the sizer. SizeUSD is
// post-cap and never exceeds any active cap.
type EdgeDecision struct {
	Bracket   Bracket
	Edge      float64
	FKelly    float64
	SizeUSD   float64
	Reason    string
	Timestamp time.Time
}

// Outcome is the resolution state of a paper trade.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeWin     Outcome = "win"
	OutcomeLoss    Outcome = "loss"
)

// TradeRecord is one row of the paper ledger: the full decision plus
// provenance and resolution fields. Resolution fields stay empty until
// the resolution engine fills them.
type TradeRecord struct {
	Timestamp   time.Time
	StationCode string
	Bracket     Bracket
	Edge        float64
	FKelly      float64
	SizeUSD     float64
	PZeus       float64
	PMkt        *float64
	SigmaZ      *float64
	Reason      string
	Venue       string

	Outcome       Outcome
	RealizedPnL   float64
	ResolvedAt    *time.Time
	WinnerBracket string

	// EventDay is carried in memory only; on disk the day is encoded in
	// the ledger directory name.
	EventDay time.Time
}

// Observation is a single METAR temperature report.
type Observation struct {
	StationCode string    `json:"station_code"`
	Time        time.Time `json:"time"`
	TempF       float64   `json:"temp_f"`
	DewpointF   *float64  `json:"dewpoint_f,omitempty"`
	WindDirDeg  *float64  `json:"wind_dir_deg,omitempty"`
	WindSpeedKt *float64  `json:"wind_speed_kt,omitempty"`
	RawOb       string    `json:"raw_ob,omitempty"`
}
