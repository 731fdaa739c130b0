// Package decision fuses rule, graph, and anomaly signals into a single
// verdict for each transaction.
//
// Signals are combined with fixed weights: hard rule violations block and
// add 50 points, fraud-network links block and add 40, statistical
// anomalies escalate to review and add 20. The final risk score is capped
// at 100. Verdicts only ever escalate; a later signal can raise
// APPROVE to REVIEW or BLOCK, never lower it.
package decision

import (
	"context"
	"time"
)

// Verdict is the pipeline's final word on a transaction.
type Verdict string

const (
	VerdictApprove Verdict = "APPROVE"
	VerdictReview  Verdict = "REVIEW"
	VerdictBlock   Verdict = "BLOCK"
)

// rank orders verdicts by severity for monotonic escalation.
func (v Verdict) rank() int {
	switch v {
	case VerdictBlock:
		return 2
	case VerdictReview:
		return 1
	default:
		return 0
	}
}

// Escalate returns the more severe of the two verdicts.
func (v Verdict) Escalate(to Verdict) Verdict {
	if to.rank() > v.rank() {
		return to
	}
	return v
}

// Signal weights and escalation thresholds.
const (
	ScoreRuleViolation = 50
	ScoreNetworkRisk   = 40
	ScoreAnomaly       = 20
	MaxRiskScore       = 100

	DefaultNetworkThreshold = 0.5
	DefaultAnomalyThreshold = 0.5
)

// ReasonSafe is reported when no signal fired.
const ReasonSafe = "Transaction looks safe."

// Transaction carries the data needed to evaluate a payment.
type Transaction struct {
	UserID    string    `json:"userId"`
	DeviceID  string    `json:"deviceId"`
	IPAddress string    `json:"ipAddress"`
	Amount    float64   `json:"amount"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Timestamp time.Time `json:"timestamp"`
}

// Decision is the result of evaluating a single transaction.
type Decision struct {
	ID          string             `json:"id"`
	UserID      string             `json:"userId"`
	Verdict     Verdict            `json:"verdict"`
	RiskScore   int                `json:"riskScore"`
	Reasons     []string           `json:"reasons"`
	Signals     map[string]float64 `json:"signals"`
	Transaction Transaction        `json:"transaction"`
	EvaluatedAt time.Time          `json:"evaluatedAt"`
}

// Store persists decisions for the audit trail.
type Store interface {
	Record(ctx context.Context, d *Decision) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Decision, error)
	ListRecent(ctx context.Context, limit int) ([]*Decision, error)
}
