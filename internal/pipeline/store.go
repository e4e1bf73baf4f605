package pipeline

import (
	"context"
	"sync"

	"leasecheck/pkg/models"
)

// DefaultMaxRecords bounds the in-memory record store.
const DefaultMaxRecords = 1000

// RecordStore keeps completed analyses for later full-report lookups.
type RecordStore interface {
	Save(ctx context.Context, rec *models.AnalysisRecord) error

	// Get returns ErrRecordNotFound for unknown ids.
	Get(ctx context.Context, id string) (*models.AnalysisRecord, error)
}

// MemoryRecordStore holds up to max records and evicts the oldest first.
type MemoryRecordStore struct {
	mu      sync.Mutex
	max     int
	order   []string
	records map[string]*models.AnalysisRecord
}

// NewMemoryRecordStore returns an empty store. max <= 0 selects
// DefaultMaxRecords.
func NewMemoryRecordStore(max int) *MemoryRecordStore {
	if max <= 0 {
		max = DefaultMaxRecords
	}
	return &MemoryRecordStore{
		max:     max,
		records: make(map[string]*models.AnalysisRecord),
	}
}

// Save implements RecordStore.
func (s *MemoryRecordStore) Save(ctx context.Context, rec *models.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; !ok {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec

	for len(s.order) > s.max {
		delete(s.records, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

// Get implements RecordStore.
func (s *MemoryRecordStore) Get(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec, nil
}

// Len returns the number of stored records.
func (s *MemoryRecordStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
