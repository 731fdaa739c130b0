package decision

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mbd888/fraudgate/internal/anomaly"
	"github.com/mbd888/fraudgate/internal/graph"
	"github.com/mbd888/fraudgate/internal/profile"
	"github.com/mbd888/fraudgate/internal/rules"
)

var (
	bangalore = [2]float64{12.9716, 77.5946}
	london    = [2]float64{51.5074, -0.1278}
)

func testFuser() (*Fuser, *MemoryStore, *profile.MemoryStore, *graph.Graph) {
	profiles := profile.NewMemoryStore()
	store := NewMemoryStore()
	g := graph.New()
	f := NewFuser(
		rules.NewEvaluator([]string{"192.168.1.50", "10.0.0.99"}),
		g,
		anomaly.NewScorer(),
		profiles,
		store,
	)
	return f, store, profiles, g
}

func noon() time.Time {
	return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
}

func TestEvaluate_FreshUserApproves(t *testing.T) {
	f, _, _, _ := testFuser()

	d, err := f.Evaluate(context.Background(), &Transaction{
		UserID: "bob", DeviceID: "dev_b", IPAddress: "8.8.8.8",
		Amount: 100, Lat: bangalore[0], Lon: bangalore[1], Timestamp: noon(),
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if d.Verdict != VerdictApprove {
		t.Errorf("verdict = %s, want APPROVE", d.Verdict)
	}
	if d.RiskScore != 0 {
		t.Errorf("risk score = %d, want 0", d.RiskScore)
	}
	if len(d.Reasons) != 1 || d.Reasons[0] != ReasonSafe {
		t.Errorf("reasons = %v, want [%q]", d.Reasons, ReasonSafe)
	}
}

func TestEvaluate_ImpossibleTravelBlocks(t *testing.T) {
	f, _, profiles, _ := testFuser()
	ts := noon()

	// Seen in Bangalore an hour ago, now transacting from London.
	_ = profiles.Put(context.Background(), &profile.Profile{
		UserID: "alice", Lat: bangalore[0], Lon: bangalore[1], Timestamp: ts.Add(-time.Hour),
	})

	d, err := f.Evaluate(context.Background(), &Transaction{
		UserID: "alice", DeviceID: "dev_a", IPAddress: "8.8.8.8",
		Amount: 100, Lat: london[0], Lon: london[1], Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if d.Verdict != VerdictBlock {
		t.Errorf("verdict = %s, want BLOCK", d.Verdict)
	}
	if d.RiskScore != ScoreRuleViolation {
		t.Errorf("risk score = %d, want %d", d.RiskScore, ScoreRuleViolation)
	}
	found := false
	for _, r := range d.Reasons {
		if strings.HasPrefix(r, "Impossible Travel") {
			found = true
		}
	}
	if !found {
		t.Errorf("reasons = %v, want an Impossible Travel entry", d.Reasons)
	}
}

func TestEvaluate_BlockDoesNotUpdateProfile(t *testing.T) {
	f, _, profiles, _ := testFuser()
	ts := noon()

	_ = profiles.Put(context.Background(), &profile.Profile{
		UserID: "alice", Lat: bangalore[0], Lon: bangalore[1], Timestamp: ts.Add(-time.Hour),
	})

	_, _ = f.Evaluate(context.Background(), &Transaction{
		UserID: "alice", DeviceID: "dev_a", IPAddress: "8.8.8.8",
		Amount: 100, Lat: london[0], Lon: london[1], Timestamp: ts,
	})

	p, _ := profiles.Get(context.Background(), "alice")
	if p == nil {
		t.Fatal("profile disappeared")
	}
	if p.Lat != bangalore[0] || p.Lon != bangalore[1] {
		t.Errorf("blocked transaction moved the profile to (%f, %f)", p.Lat, p.Lon)
	}
}

func TestEvaluate_ApproveUpdatesProfile(t *testing.T) {
	f, _, profiles, _ := testFuser()
	ts := noon()

	_, _ = f.Evaluate(context.Background(), &Transaction{
		UserID: "bob", DeviceID: "dev_b", IPAddress: "8.8.8.8",
		Amount: 100, Lat: bangalore[0], Lon: bangalore[1], Timestamp: ts,
	})

	p, _ := profiles.Get(context.Background(), "bob")
	if p == nil {
		t.Fatal("approved transaction should create a profile")
	}
	if p.Lat != bangalore[0] || !p.Timestamp.Equal(ts) {
		t.Errorf("profile = %+v, want Bangalore at %v", p, ts)
	}
}

func TestEvaluate_SharedFraudDeviceBlocks(t *testing.T) {
	f, _, _, g := testFuser()

	// Known fraudster seen on dev_666; the node is flagged by an investigator.
	g.RecordTransaction("bad_guy", "dev_666", "0.0.0.0")
	g.MarkFraud("bad_guy")

	d, err := f.Evaluate(context.Background(), &Transaction{
		UserID: "carol", DeviceID: "dev_666", IPAddress: "8.8.8.8",
		Amount: 100, Lat: bangalore[0], Lon: bangalore[1], Timestamp: noon(),
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if d.Verdict != VerdictBlock {
		t.Errorf("verdict = %s, want BLOCK", d.Verdict)
	}
	if d.RiskScore != ScoreNetworkRisk {
		t.Errorf("risk score = %d, want %d", d.RiskScore, ScoreNetworkRisk)
	}
	if d.Reasons[0] != "Linked to known fraud device/ring" {
		t.Errorf("reasons = %v", d.Reasons)
	}
	if d.Signals["network_risk"] != 1.0 {
		t.Errorf("network_risk signal = %f, want 1.0", d.Signals["network_risk"])
	}
}

func TestEvaluate_RuleAndGraphStack(t *testing.T) {
	f, _, profiles, g := testFuser()
	ts := noon()

	g.RecordTransaction("bad_guy", "dev_666", "0.0.0.0")
	g.MarkFraud("bad_guy")
	_ = profiles.Put(context.Background(), &profile.Profile{
		UserID: "mallory", Lat: bangalore[0], Lon: bangalore[1], Timestamp: ts.Add(-time.Hour),
	})

	d, _ := f.Evaluate(context.Background(), &Transaction{
		UserID: "mallory", DeviceID: "dev_666", IPAddress: "192.168.1.50",
		Amount: 100, Lat: london[0], Lon: london[1], Timestamp: ts,
	})

	if d.Verdict != VerdictBlock {
		t.Errorf("verdict = %s, want BLOCK", d.Verdict)
	}
	if d.RiskScore != ScoreRuleViolation+ScoreNetworkRisk {
		t.Errorf("risk score = %d, want %d", d.RiskScore, ScoreRuleViolation+ScoreNetworkRisk)
	}
	if len(d.Reasons) != 3 { // blacklist + travel + fraud link
		t.Errorf("reasons = %v, want 3 entries", d.Reasons)
	}
}

func TestEvaluate_AnomalyEscalatesToReview(t *testing.T) {
	f, _, _, _ := testFuser()

	// Baseline: modest noon transactions. Then a wildly larger amount.
	samples := make([]anomaly.Sample, 50)
	for i := range samples {
		samples[i] = anomaly.Sample{Amount: 50 + float64(i%5), Hour: 12}
	}
	if err := f.scorer.Fit(samples); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	d, err := f.Evaluate(context.Background(), &Transaction{
		UserID: "dave", DeviceID: "dev_d", IPAddress: "8.8.8.8",
		Amount: 100000, Lat: bangalore[0], Lon: bangalore[1], Timestamp: noon(),
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if d.Verdict != VerdictReview {
		t.Errorf("verdict = %s, want REVIEW", d.Verdict)
	}
	if d.RiskScore != ScoreAnomaly {
		t.Errorf("risk score = %d, want %d", d.RiskScore, ScoreAnomaly)
	}
	if !strings.HasPrefix(d.Reasons[0], "AI Anomaly Detected") {
		t.Errorf("reasons = %v", d.Reasons)
	}
}

func TestEvaluate_AnomalyDoesNotEscalateBlocked(t *testing.T) {
	f, _, _, g := testFuser()

	samples := make([]anomaly.Sample, 50)
	for i := range samples {
		samples[i] = anomaly.Sample{Amount: 50 + float64(i%5), Hour: 12}
	}
	_ = f.scorer.Fit(samples)

	g.RecordTransaction("bad_guy", "dev_666", "0.0.0.0")
	g.MarkFraud("bad_guy")

	d, _ := f.Evaluate(context.Background(), &Transaction{
		UserID: "eve", DeviceID: "dev_666", IPAddress: "8.8.8.8",
		Amount: 100000, Lat: bangalore[0], Lon: bangalore[1], Timestamp: noon(),
	})

	if d.Verdict != VerdictBlock {
		t.Errorf("verdict = %s, want BLOCK (anomaly must not soften a block)", d.Verdict)
	}
	// Anomaly risk is still reported as a signal even though it did not score.
	if d.Signals["anomaly_risk"] <= 0.5 {
		t.Errorf("anomaly_risk signal = %f, want > 0.5", d.Signals["anomaly_risk"])
	}
	if d.RiskScore != ScoreNetworkRisk {
		t.Errorf("risk score = %d, want %d", d.RiskScore, ScoreNetworkRisk)
	}
}

func TestEvaluate_UntrainedScorerStaysNeutral(t *testing.T) {
	f, _, _, _ := testFuser()

	d, _ := f.Evaluate(context.Background(), &Transaction{
		UserID: "bob", DeviceID: "dev_b", IPAddress: "8.8.8.8",
		Amount: 999999, Lat: bangalore[0], Lon: bangalore[1], Timestamp: noon(),
	})

	if d.Verdict != VerdictApprove {
		t.Errorf("verdict = %s, want APPROVE when scorer is untrained", d.Verdict)
	}
	if d.Signals["anomaly_risk"] != anomaly.NeutralRisk {
		t.Errorf("anomaly_risk = %f, want neutral %f", d.Signals["anomaly_risk"], anomaly.NeutralRisk)
	}
}

func TestEvaluate_BlockedTransactionStillEntersGraph(t *testing.T) {
	f, _, profiles, g := testFuser()
	ts := noon()

	_ = profiles.Put(context.Background(), &profile.Profile{
		UserID: "alice", Lat: bangalore[0], Lon: bangalore[1], Timestamp: ts.Add(-time.Hour),
	})

	before := g.Stats()
	_, _ = f.Evaluate(context.Background(), &Transaction{
		UserID: "alice", DeviceID: "dev_a", IPAddress: "8.8.8.8",
		Amount: 100, Lat: london[0], Lon: london[1], Timestamp: ts,
	})
	after := g.Stats()

	if after.Nodes <= before.Nodes {
		t.Error("blocked transaction should still add graph nodes")
	}
}

func TestEvaluate_RecordsDecision(t *testing.T) {
	f, store, _, _ := testFuser()

	d, _ := f.Evaluate(context.Background(), &Transaction{
		UserID: "bob", DeviceID: "dev_b", IPAddress: "8.8.8.8",
		Amount: 100, Lat: bangalore[0], Lon: bangalore[1], Timestamp: noon(),
	})

	list, err := store.ListByUser(context.Background(), "bob", 10)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != d.ID {
		t.Errorf("stored decisions = %v, want the one just evaluated", list)
	}
	if !strings.HasPrefix(d.ID, "dec_") {
		t.Errorf("decision ID = %s, want dec_ prefix", d.ID)
	}
}

type failingStore struct{}

func (failingStore) Record(context.Context, *Decision) error { return errors.New("db down") }
func (failingStore) ListByUser(context.Context, string, int) ([]*Decision, error) {
	return nil, errors.New("db down")
}
func (failingStore) ListRecent(context.Context, int) ([]*Decision, error) {
	return nil, errors.New("db down")
}

func TestEvaluate_StoreFailureDoesNotFailDecision(t *testing.T) {
	profiles := profile.NewMemoryStore()
	f := NewFuser(
		rules.NewEvaluator(nil),
		graph.New(),
		anomaly.NewScorer(),
		profiles,
		failingStore{},
	)

	d, err := f.Evaluate(context.Background(), &Transaction{
		UserID: "bob", DeviceID: "dev_b", IPAddress: "8.8.8.8",
		Amount: 100, Lat: bangalore[0], Lon: bangalore[1], Timestamp: noon(),
	})
	if err != nil {
		t.Fatalf("decision should survive a dead audit store: %v", err)
	}
	if d.Verdict != VerdictApprove {
		t.Errorf("verdict = %s, want APPROVE", d.Verdict)
	}
}

func TestVerdict_Escalate(t *testing.T) {
	if got := VerdictApprove.Escalate(VerdictReview); got != VerdictReview {
		t.Errorf("APPROVE.Escalate(REVIEW) = %s", got)
	}
	if got := VerdictBlock.Escalate(VerdictReview); got != VerdictBlock {
		t.Errorf("BLOCK.Escalate(REVIEW) = %s, verdicts must never soften", got)
	}
	if got := VerdictReview.Escalate(VerdictBlock); got != VerdictBlock {
		t.Errorf("REVIEW.Escalate(BLOCK) = %s", got)
	}
}
