package graph

import (
	"fmt"
	"testing"
)

func TestUnknownUserIsZeroRisk(t *testing.T) {
	g := New()

	risk, err := g.NetworkRisk("nobody")
	if err != nil {
		t.Fatalf("NetworkRisk: %v", err)
	}
	if risk != RiskNone {
		t.Errorf("unknown user risk = %f, want 0.0", risk)
	}
}

func TestDirectFraudLink(t *testing.T) {
	g := New()

	// fraud_A used dev_X; alice later uses the same device.
	g.RecordTransaction("fraud_A", "dev_X", "1.1.1.1")
	g.MarkFraud("fraud_A")
	g.RecordTransaction("alice", "dev_X", "2.2.2.2")

	risk, err := g.NetworkRisk("alice")
	if err != nil {
		t.Fatalf("NetworkRisk: %v", err)
	}
	if risk != RiskFraudLink {
		t.Errorf("risk = %f, want 1.0 for user sharing a device with fraud", risk)
	}
}

func TestTwoHopCutoff(t *testing.T) {
	g := New()

	// Chain: alice - dev_1 - bob - dev_2 - carol(fraud).
	// carol is 4 hops from alice, outside the 2-hop bound.
	g.RecordTransaction("alice", "dev_1", "1.1.1.1")
	g.RecordTransaction("bob", "dev_1", "2.2.2.2")
	g.RecordTransaction("bob", "dev_2", "2.2.2.3")
	g.RecordTransaction("carol", "dev_2", "3.3.3.3")
	g.MarkFraud("carol")

	risk, err := g.NetworkRisk("alice")
	if err != nil {
		t.Fatalf("NetworkRisk: %v", err)
	}
	if risk == RiskFraudLink {
		t.Errorf("fraud beyond 2 hops should not propagate, got %f", risk)
	}

	// bob is 2 hops from carol (dev_2 → carol) and must be flagged.
	risk, err = g.NetworkRisk("bob")
	if err != nil {
		t.Fatalf("NetworkRisk: %v", err)
	}
	if risk != RiskFraudLink {
		t.Errorf("bob risk = %f, want 1.0 (fraud within 2 hops)", risk)
	}
}

func TestFraudUserItself(t *testing.T) {
	g := New()
	g.RecordTransaction("mallory", "dev_M", "6.6.6.6")
	g.MarkFraud("mallory")

	risk, err := g.NetworkRisk("mallory")
	if err != nil {
		t.Fatalf("NetworkRisk: %v", err)
	}
	if risk != RiskFraudLink {
		t.Errorf("fraud user's own risk = %f, want 1.0", risk)
	}
}

func TestDeviceFanout(t *testing.T) {
	g := New()

	// 4 distinct users on one device, threshold 3: fan-out fires.
	for i := 0; i < 4; i++ {
		g.RecordTransaction(fmt.Sprintf("user_%d", i), "dev_shared", fmt.Sprintf("10.0.0.%d", i))
	}

	risk, err := g.NetworkRisk("user_0")
	if err != nil {
		t.Fatalf("NetworkRisk: %v", err)
	}
	if risk != RiskFanout {
		t.Errorf("risk = %f, want 0.8 for shared device fan-out", risk)
	}
}

func TestDeviceFanoutAtThreshold(t *testing.T) {
	g := New()

	// Exactly 3 users on one device: strictly-more-than means no signal.
	for i := 0; i < 3; i++ {
		g.RecordTransaction(fmt.Sprintf("user_%d", i), "dev_shared", fmt.Sprintf("10.0.0.%d", i))
	}

	risk, err := g.NetworkRisk("user_0")
	if err != nil {
		t.Fatalf("NetworkRisk: %v", err)
	}
	if risk != RiskNone {
		t.Errorf("risk = %f, want 0.0 at exactly threshold users", risk)
	}
}

func TestFraudLinkWinsOverFanout(t *testing.T) {
	g := New()

	for i := 0; i < 5; i++ {
		g.RecordTransaction(fmt.Sprintf("user_%d", i), "dev_shared", fmt.Sprintf("10.0.0.%d", i))
	}
	g.MarkFraud("user_4")

	risk, err := g.NetworkRisk("user_0")
	if err != nil {
		t.Fatalf("NetworkRisk: %v", err)
	}
	if risk != RiskFraudLink {
		t.Errorf("risk = %f, want 1.0 (fraud link outranks fan-out)", risk)
	}
}

func TestCustomFanoutThreshold(t *testing.T) {
	g := New().WithFanoutThreshold(1)

	g.RecordTransaction("a", "dev_1", "1.1.1.1")
	g.RecordTransaction("b", "dev_1", "1.1.1.2")

	risk, err := g.NetworkRisk("a")
	if err != nil {
		t.Fatalf("NetworkRisk: %v", err)
	}
	if risk != RiskFanout {
		t.Errorf("risk = %f, want 0.8 with fan-out threshold 1", risk)
	}
}

func TestRecordTransactionIdempotent(t *testing.T) {
	g := New()

	g.RecordTransaction("alice", "dev_A", "1.2.3.4")
	before := g.Stats()

	g.RecordTransaction("alice", "dev_A", "1.2.3.4")
	after := g.Stats()

	if before != after {
		t.Errorf("duplicate record changed graph shape: %+v vs %+v", before, after)
	}
	if after.Nodes != 3 || after.Edges != 2 {
		t.Errorf("expected 3 nodes / 2 edges, got %+v", after)
	}
}

func TestMarkFraudBeforeFirstTransaction(t *testing.T) {
	g := New()

	g.MarkFraud("future_fraudster")
	g.RecordTransaction("future_fraudster", "dev_F", "9.9.9.9")

	if !g.IsFraud("future_fraudster") {
		t.Error("fraud flag lost after transaction recorded")
	}
	risk, err := g.NetworkRisk("future_fraudster")
	if err != nil {
		t.Fatalf("NetworkRisk: %v", err)
	}
	if risk != RiskFraudLink {
		t.Errorf("risk = %f, want 1.0", risk)
	}
}

func TestMarkFraudMonotonic(t *testing.T) {
	g := New()
	g.MarkFraud("x")
	g.MarkFraud("x")

	if got := g.Stats().FraudNodes; got != 1 {
		t.Errorf("fraud count = %d, want 1", got)
	}
}

func TestStats(t *testing.T) {
	g := New()
	g.RecordTransaction("alice", "dev_A", "1.1.1.1")
	g.RecordTransaction("bob", "dev_B", "2.2.2.2")
	g.MarkFraud("bob")

	s := g.Stats()
	if s.Nodes != 6 || s.Edges != 4 || s.FraudNodes != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestConcurrentRecordAndTraverse(t *testing.T) {
	g := New()
	g.RecordTransaction("seed", "dev_0", "0.0.0.0")
	g.MarkFraud("seed")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			g.RecordTransaction(fmt.Sprintf("u%d", i), fmt.Sprintf("d%d", i%10), fmt.Sprintf("ip%d", i%7))
		}
	}()

	for i := 0; i < 500; i++ {
		if _, err := g.NetworkRisk(fmt.Sprintf("u%d", i%50)); err != nil {
			t.Errorf("NetworkRisk during concurrent writes: %v", err)
		}
	}
	<-done
}
