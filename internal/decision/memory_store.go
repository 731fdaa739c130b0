package decision

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu     sync.RWMutex
	byUser map[string][]*Decision
	all    []*Decision
}

// NewMemoryStore creates an in-memory decision store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byUser: make(map[string][]*Decision),
	}
}

func (s *MemoryStore) Record(ctx context.Context, d *Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := copyDecision(d)
	s.byUser[d.UserID] = append(s.byUser[d.UserID], cp)
	s.all = append(s.all, cp)
	return nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return recentFirst(s.byUser[userID], limit), nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]*Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return recentFirst(s.all, limit), nil
}

// recentFirst returns up to limit entries, most recent first, as copies.
func recentFirst(all []*Decision, limit int) []*Decision {
	if len(all) == 0 {
		return nil
	}
	start := len(all) - limit
	if start < 0 {
		start = 0
	}
	result := make([]*Decision, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		result = append(result, copyDecision(all[i]))
	}
	return result
}

func copyDecision(d *Decision) *Decision {
	cp := *d
	cp.Reasons = append([]string(nil), d.Reasons...)
	cp.Signals = make(map[string]float64, len(d.Signals))
	for k, v := range d.Signals {
		cp.Signals[k] = v
	}
	return &cp
}
