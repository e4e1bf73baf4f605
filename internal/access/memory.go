package access

import (
	"context"
	"slices"
	"sync"
	"time"

	"leasecheck/pkg/models"
)

// MemoryStore is an in-process GrantStore and FreeTierStore.
type MemoryStore struct {
	mu     sync.Mutex
	grants map[string]*models.AccessGrant
	free   map[string]bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		grants: make(map[string]*models.AccessGrant),
		free:   make(map[string]bool),
	}
}

func cloneGrant(g *models.AccessGrant) *models.AccessGrant {
	c := *g
	c.AnalysisIDs = slices.Clone(g.AnalysisIDs)
	if c.AnalysisIDs == nil {
		c.AnalysisIDs = []string{}
	}
	return &c
}

// Get implements GrantStore.
func (s *MemoryStore) Get(ctx context.Context, userID string) (*models.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[userID]
	if !ok {
		return nil, nil
	}
	return cloneGrant(g), nil
}

// Upsert implements GrantStore.
func (s *MemoryStore) Upsert(ctx context.Context, grant models.AccessGrant) (models.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneGrant(&grant)
	if existing, ok := s.grants[grant.UserID]; ok {
		stored.AnalysisIDs = slices.Clone(existing.AnalysisIDs)
		if stored.CustomerEmail == "" {
			stored.CustomerEmail = existing.CustomerEmail
		}
	}
	if stored.AnalysisIDs == nil {
		stored.AnalysisIDs = []string{}
	}
	s.grants[grant.UserID] = stored
	return *cloneGrant(stored), nil
}

// AppendWithCeiling implements GrantStore.
func (s *MemoryStore) AppendWithCeiling(ctx context.Context, userID, analysisID string, ceiling int, now time.Time) (AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[userID]
	if !ok || !g.Active(now) {
		return Inactive, nil
	}
	if g.HasAnalysis(analysisID) {
		return Appended, nil
	}
	if len(g.AnalysisIDs) >= ceiling {
		return Exhausted, nil
	}
	g.AnalysisIDs = append(g.AnalysisIDs, analysisID)
	return Appended, nil
}

// Append implements GrantStore.
func (s *MemoryStore) Append(ctx context.Context, userID, analysisID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g, ok := s.grants[userID]; ok && !g.HasAnalysis(analysisID) {
		g.AnalysisIDs = append(g.AnalysisIDs, analysisID)
	}
	return nil
}

// Remove implements GrantStore.
func (s *MemoryStore) Remove(ctx context.Context, userID, analysisID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g, ok := s.grants[userID]; ok {
		g.AnalysisIDs = slices.DeleteFunc(g.AnalysisIDs, func(id string) bool { return id == analysisID })
	}
	return nil
}

// Claim implements FreeTierStore.
func (s *MemoryStore) Claim(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.free[userID] {
		return false, nil
	}
	s.free[userID] = true
	return true, nil
}

// Used implements FreeTierStore.
func (s *MemoryStore) Used(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.free[userID], nil
}

// MemoryWindowStore is an in-process WindowStore. A single lock covers every
// key so multi-key admission is atomic.
type MemoryWindowStore struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

// NewMemoryWindowStore returns an empty window store.
func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{entries: make(map[string][]time.Time)}
}

// Admit implements WindowStore.
func (s *MemoryWindowStore) Admit(ctx context.Context, now time.Time, window time.Duration, keys ...WindowKey) (WindowResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := now.Add(-window)
	result := WindowResult{Admitted: true, Counts: make([]int, len(keys))}
	for i, k := range keys {
		kept := slices.DeleteFunc(s.entries[k.Key], func(ts time.Time) bool { return !ts.After(start) })
		if len(kept) == 0 {
			delete(s.entries, k.Key)
		} else {
			s.entries[k.Key] = kept
		}
		result.Counts[i] = len(kept)
		if len(kept) >= k.Limit {
			result.Admitted = false
		}
	}

	if result.Admitted {
		for _, k := range keys {
			s.entries[k.Key] = append(s.entries[k.Key], now)
		}
	}
	return result, nil
}
