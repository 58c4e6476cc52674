package domain

import "time"

// TradeStatus is the persisted status of a paper position.
type TradeStatus string

const (
	TradeOpen TradeStatus = "open"
	TradeWon  TradeStatus = "won"
	TradeLost TradeStatus = "lost"
)

// Terminal reports whether the status can no longer change.
func (s TradeStatus) Terminal() bool {
	return s == TradeWon || s == TradeLost
}

// DriftState is the monitoring sub-state of an open trade. It is recorded in
// the alert log, never on the trade row itself.
type DriftState string

const (
	DriftHolding  DriftState = "holding"
	DriftDrifting DriftState = "drifting"
	DriftBroken   DriftState = "broken"
)

// Trade is a single position on one bucket of one city/date market. At most
// one trade exists per (City, TargetDate).
type Trade struct {
	ID            string      `json:"id"`
	City          string      `json:"city"`
	TargetDate    time.Time   `json:"target_date"`
	Bucket        string      `json:"bucket"`
	Price         float64     `json:"price"`
	Shares        int         `json:"shares"`
	Cost          float64     `json:"cost"`
	OrderID       string      `json:"order_id"`
	SignalVerdict Verdict     `json:"signal_verdict"`
	Edge          float64     `json:"edge"`
	Agreement     int         `json:"agreement"`
	Status        TradeStatus `json:"status"`
	PnL           *float64    `json:"pnl,omitempty"`
	ActualValue   *float64    `json:"actual_value,omitempty"`
	ActualBucket  string      `json:"actual_bucket,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	ResolvedAt    *time.Time  `json:"resolved_at,omitempty"`
}

// TradeAlert is one row of a trade's append-only sub-state log.
type TradeAlert struct {
	ID               string     `json:"id"`
	TradeID          string     `json:"trade_id"`
	City             string     `json:"city"`
	TargetDate       time.Time  `json:"target_date"`
	TradeBucket      string     `json:"trade_bucket"`
	CurrentConsensus string     `json:"current_consensus"`
	ModelsOnBucket   int        `json:"models_on_bucket"`
	State            DriftState `json:"state"`
	Detail           string     `json:"detail"`
	ModelDetail      string     `json:"model_detail"`
	CreatedAt        time.Time  `json:"created_at"`
}

// DriftAssessment is the pure result of comparing a trade with fresh consensus.
type DriftAssessment struct {
	State            DriftState
	ModelsOnBucket   int
	ModelsTotal      int
	CurrentConsensus string
	Agreement        int
	Detail           string
	ModelDetail      string
}

// Resolution is the pure result of settling a trade against an observation.
type Resolution struct {
	Status       TradeStatus
	PnL          float64
	ActualValue  float64
	ActualBucket string
}
