package profile

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreGetUnknown(t *testing.T) {
	s := NewMemoryStore()

	p, err := s.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil profile for unknown user, got %+v", p)
	}
}

func TestMemoryStorePutGet(t *testing.T) {
	s := NewMemoryStore()
	ts := time.Now().Truncate(time.Second)

	err := s.Put(context.Background(), &Profile{
		UserID: "alice", Lat: 12.9716, Lon: 77.5946, Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	p, err := s.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p == nil {
		t.Fatal("expected profile, got nil")
	}
	if p.Lat != 12.9716 || p.Lon != 77.5946 || !p.Timestamp.Equal(ts) {
		t.Errorf("profile mismatch: %+v", p)
	}
}

func TestMemoryStorePutOverwrites(t *testing.T) {
	s := NewMemoryStore()

	_ = s.Put(context.Background(), &Profile{UserID: "alice", Lat: 1, Lon: 2, Timestamp: time.Now()})
	_ = s.Put(context.Background(), &Profile{UserID: "alice", Lat: 3, Lon: 4, Timestamp: time.Now()})

	p, _ := s.Get(context.Background(), "alice")
	if p.Lat != 3 || p.Lon != 4 {
		t.Errorf("expected overwritten profile, got %+v", p)
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Put(context.Background(), &Profile{UserID: "alice", Lat: 1, Lon: 2, Timestamp: time.Now()})

	p, _ := s.Get(context.Background(), "alice")
	p.Lat = 99

	again, _ := s.Get(context.Background(), "alice")
	if again.Lat != 1 {
		t.Errorf("store mutated through returned pointer: %+v", again)
	}
}
