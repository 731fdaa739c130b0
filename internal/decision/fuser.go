package decision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/fraudgate/internal/anomaly"
	"github.com/mbd888/fraudgate/internal/graph"
	"github.com/mbd888/fraudgate/internal/idgen"
	"github.com/mbd888/fraudgate/internal/metrics"
	"github.com/mbd888/fraudgate/internal/profile"
	"github.com/mbd888/fraudgate/internal/rules"
	"github.com/mbd888/fraudgate/internal/syncutil"
	"github.com/mbd888/fraudgate/internal/traces"
)

// Broadcaster pushes finished decisions to live subscribers.
type Broadcaster interface {
	BroadcastDecision(decision map[string]interface{})
}

// Fuser runs a transaction through every signal source and fuses the
// results into one Decision.
type Fuser struct {
	rules    *rules.Evaluator
	graph    *graph.Graph
	scorer   *anomaly.Scorer
	profiles profile.Store
	store    Store

	hub    Broadcaster
	logger *slog.Logger

	// Serializes the read-profile / decide / write-profile sequence per
	// user so concurrent transactions for one user see each other.
	userLocks syncutil.ShardedMutex

	networkThreshold float64
	anomalyThreshold float64
}

// NewFuser creates a decision fuser over the given signal sources and
// audit store.
func NewFuser(r *rules.Evaluator, g *graph.Graph, sc *anomaly.Scorer, profiles profile.Store, store Store) *Fuser {
	return &Fuser{
		rules:            r,
		graph:            g,
		scorer:           sc,
		profiles:         profiles,
		store:            store,
		logger:           slog.Default(),
		networkThreshold: DefaultNetworkThreshold,
		anomalyThreshold: DefaultAnomalyThreshold,
	}
}

// WithLogger overrides the default logger.
func (f *Fuser) WithLogger(logger *slog.Logger) *Fuser {
	f.logger = logger
	return f
}

// WithBroadcaster attaches a live-event sink for finished decisions.
func (f *Fuser) WithBroadcaster(hub Broadcaster) *Fuser {
	f.hub = hub
	return f
}

// WithNetworkThreshold overrides the fraud-network escalation threshold.
func (f *Fuser) WithNetworkThreshold(t float64) *Fuser {
	f.networkThreshold = t
	return f
}

// WithAnomalyThreshold overrides the anomaly escalation threshold.
func (f *Fuser) WithAnomalyThreshold(t float64) *Fuser {
	f.anomalyThreshold = t
	return f
}

// Evaluate scores one transaction and returns the decision.
//
// The transaction is always recorded in the entity graph, even when
// blocked; blocked attempts are exactly the links investigators need.
// The user's location profile is only updated on non-BLOCK outcomes so a
// blocked attempt cannot poison the baseline for the next rule check.
func (f *Fuser) Evaluate(ctx context.Context, tx *Transaction) (*Decision, error) {
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now()
	}

	ctx, span := traces.StartSpan(ctx, "decision.evaluate",
		traces.UserID(tx.UserID),
		traces.DeviceID(tx.DeviceID),
		traces.IPAddress(tx.IPAddress),
		traces.Amount(tx.Amount),
	)
	defer span.End()

	timer := prometheus.NewTimer(metrics.EvaluationDuration)
	defer timer.ObserveDuration()

	unlock := f.userLocks.Lock(tx.UserID)
	defer unlock()

	prior, err := f.profiles.Get(ctx, tx.UserID)
	if err != nil {
		// Degrade to new-user semantics rather than failing the decision.
		f.logger.Warn("profile lookup failed, treating user as new",
			"user_id", tx.UserID, "error", err)
		prior = nil
	}

	f.graph.RecordTransaction(tx.UserID, tx.DeviceID, tx.IPAddress)

	verdict := VerdictApprove
	score := 0
	var reasons []string

	violations := f.rules.Evaluate(rules.Context{
		IPAddress: tx.IPAddress,
		Lat:       tx.Lat,
		Lon:       tx.Lon,
		Timestamp: tx.Timestamp,
	}, prior)
	if len(violations) > 0 {
		verdict = verdict.Escalate(VerdictBlock)
		reasons = append(reasons, violations...)
		score += ScoreRuleViolation
		for _, v := range violations {
			metrics.RuleViolationsTotal.WithLabelValues(ruleLabel(v)).Inc()
		}
	}

	netRisk, err := f.graph.NetworkRisk(tx.UserID)
	if err != nil {
		f.logger.Error("graph traversal failed, assuming zero network risk",
			"user_id", tx.UserID, "error", err)
		metrics.GraphTraversalFailuresTotal.Inc()
		netRisk = 0
	}
	if netRisk > f.networkThreshold {
		verdict = verdict.Escalate(VerdictBlock)
		reasons = append(reasons, "Linked to known fraud device/ring")
		score += ScoreNetworkRisk
	}

	// Always scored so the signal lands in the audit trail, but it only
	// escalates transactions that are not already blocked.
	anomalyRisk := f.scorer.Score(tx.Amount, tx.Timestamp.Hour())
	if anomalyRisk > f.anomalyThreshold && verdict != VerdictBlock {
		verdict = verdict.Escalate(VerdictReview)
		reasons = append(reasons, fmt.Sprintf("AI Anomaly Detected (Score: %g)", anomalyRisk))
		score += ScoreAnomaly
	}

	if score > MaxRiskScore {
		score = MaxRiskScore
	}
	if len(reasons) == 0 {
		reasons = []string{ReasonSafe}
	}

	d := &Decision{
		ID:        idgen.WithPrefix("dec_"),
		UserID:    tx.UserID,
		Verdict:   verdict,
		RiskScore: score,
		Reasons:   reasons,
		Signals: map[string]float64{
			"network_risk": netRisk,
			"anomaly_risk": anomalyRisk,
		},
		Transaction: *tx,
		EvaluatedAt: time.Now(),
	}

	if verdict != VerdictBlock {
		if err := f.profiles.Put(ctx, &profile.Profile{
			UserID:    tx.UserID,
			Lat:       tx.Lat,
			Lon:       tx.Lon,
			Timestamp: tx.Timestamp,
		}); err != nil {
			f.logger.Warn("profile update failed", "user_id", tx.UserID, "error", err)
		}
	}

	// Audit trail is best-effort: a dead store must not stop decisions.
	if f.store != nil {
		if err := f.store.Record(ctx, d); err != nil {
			f.logger.Error("failed to record decision", "decision_id", d.ID, "error", err)
		}
	}

	metrics.DecisionsTotal.WithLabelValues(string(verdict)).Inc()
	stats := f.graph.Stats()
	metrics.SetGraphStats(stats.Nodes, stats.Edges, stats.FraudNodes)
	span.SetAttributes(traces.Verdict(string(verdict)), traces.RiskScore(score))

	f.logger.Info("transaction evaluated",
		"decision_id", d.ID,
		"user_id", tx.UserID,
		"verdict", verdict,
		"risk_score", score,
		"network_risk", netRisk,
		"anomaly_risk", anomalyRisk,
	)

	if f.hub != nil {
		f.hub.BroadcastDecision(map[string]interface{}{
			"id":        d.ID,
			"userId":    d.UserID,
			"verdict":   string(d.Verdict),
			"riskScore": float64(d.RiskScore),
			"reasons":   d.Reasons,
		})
	}

	return d, nil
}

// ruleLabel maps a violation message to a low-cardinality metric label.
func ruleLabel(violation string) string {
	switch {
	case strings.HasPrefix(violation, "Blacklisted IP"):
		return "blacklisted_ip"
	case strings.HasPrefix(violation, "Impossible Travel"):
		return "impossible_travel"
	default:
		return "other"
	}
}
