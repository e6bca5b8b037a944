// Package memory provides in-process implementations of the candidate sink
// and evidence archive for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
)

// LeadStore keeps candidates in a map guarded by a mutex.
type LeadStore struct {
	mu    sync.RWMutex
	ids   lead.IDGenerator
	now   func() time.Time
	rows  map[string]lead.Candidate
	order []string
}

// NewLeadStore constructs an empty LeadStore.
func NewLeadStore(ids lead.IDGenerator) *LeadStore {
	return &LeadStore{
		ids:  ids,
		now:  time.Now,
		rows: make(map[string]lead.Candidate),
	}
}

// InsertCandidates assigns ids and timestamps and stores every candidate.
// Either all candidates are stored or none are.
func (s *LeadStore) InsertCandidates(_ context.Context, candidates []lead.Candidate) ([]lead.Candidate, error) {
	out := make([]lead.Candidate, 0, len(candidates))
	now := s.now().UTC()
	for _, c := range candidates {
		id, err := s.ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("assign id: %w", err)
		}
		c.ID = id
		c.CreatedAt = now
		c.RawEvidence = c.RawEvidence.Clone()
		out = append(out, c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range out {
		if _, exists := s.rows[c.ID]; exists {
			return nil, fmt.Errorf("candidate %s already exists", c.ID)
		}
	}
	for _, c := range out {
		s.rows[c.ID] = c
		s.order = append(s.order, c.ID)
	}
	return out, nil
}

// ListCandidates returns matching candidates newest first.
func (s *LeadStore) ListCandidates(_ context.Context, filter lead.ListFilter) ([]lead.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []lead.Candidate{}
	for i := len(s.order) - 1; i >= 0; i-- {
		c := s.rows[s.order[i]]
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.City != "" && c.City != filter.City {
			continue
		}
		c.RawEvidence = c.RawEvidence.Clone()
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateStatus sets the review status of one candidate.
func (s *LeadStore) UpdateStatus(_ context.Context, id string, status lead.Status) (lead.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return lead.Candidate{}, lead.ErrNotFound
	}
	c.Status = status
	s.rows[id] = c
	c.RawEvidence = c.RawEvidence.Clone()
	return c, nil
}
