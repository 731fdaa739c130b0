package decision

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func sampleDecision(id, user string) *Decision {
	return &Decision{
		ID:        id,
		UserID:    user,
		Verdict:   VerdictApprove,
		RiskScore: 0,
		Reasons:   []string{ReasonSafe},
		Signals:   map[string]float64{"network_risk": 0, "anomaly_risk": 0.1},
		Transaction: Transaction{
			UserID: user, DeviceID: "dev_1", IPAddress: "8.8.8.8",
			Amount: 10, Timestamp: time.Now(),
		},
		EvaluatedAt: time.Now(),
	}
}

func TestMemoryStore_RecordAndList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.Record(ctx, sampleDecision(fmt.Sprintf("dec_%d", i), "alice")); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	_ = s.Record(ctx, sampleDecision("dec_bob", "bob"))

	list, err := s.ListByUser(ctx, "alice", 3)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d decisions, want 3", len(list))
	}
	// Most recent first
	if list[0].ID != "dec_4" || list[2].ID != "dec_2" {
		t.Errorf("order wrong: %s ... %s", list[0].ID, list[2].ID)
	}
}

func TestMemoryStore_ListRecentSpansUsers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Record(ctx, sampleDecision("dec_1", "alice"))
	_ = s.Record(ctx, sampleDecision("dec_2", "bob"))

	list, err := s.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d decisions, want 2", len(list))
	}
	if list[0].ID != "dec_2" {
		t.Errorf("most recent = %s, want dec_2", list[0].ID)
	}
}

func TestMemoryStore_UnknownUserEmpty(t *testing.T) {
	s := NewMemoryStore()

	list, err := s.ListByUser(context.Background(), "nobody", 10)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("got %d decisions for unknown user, want 0", len(list))
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Record(ctx, sampleDecision("dec_1", "alice"))

	list, _ := s.ListByUser(ctx, "alice", 1)
	list[0].Reasons[0] = "mutated"
	list[0].Signals["network_risk"] = 99

	again, _ := s.ListByUser(ctx, "alice", 1)
	if again[0].Reasons[0] != ReasonSafe {
		t.Error("caller mutation leaked into stored reasons")
	}
	if again[0].Signals["network_risk"] != 0 {
		t.Error("caller mutation leaked into stored signals")
	}
}
