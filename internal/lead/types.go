// Package lead defines the domain types shared by the lead generation pipeline.
package lead

import (
	"strings"
	"time"
)

// Status captures the review lifecycle of a stored candidate.
type Status string

// Candidate review states.
const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the known review states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// Evidence sources recorded under EvidenceSourceKey.
const (
	SourceBrowser   = "browser"
	SourceDirectory = "directory"

	EvidenceSourceKey = "source"
)

// DefaultScore is assigned to every candidate before scoring runs.
const DefaultScore = 50

// Evidence is the opaque provenance bag stored with each candidate.
type Evidence map[string]any

// Source returns the discovery source recorded in the bag.
func (e Evidence) Source() string {
	if e == nil {
		return ""
	}
	s, _ := e[EvidenceSourceKey].(string)
	return s
}

// Snippet returns the free-text excerpt captured at discovery, if any.
func (e Evidence) Snippet() string {
	if e == nil {
		return ""
	}
	s, _ := e["snippet"].(string)
	return s
}

// Clone returns a shallow copy of the bag.
func (e Evidence) Clone() Evidence {
	if e == nil {
		return nil
	}
	out := make(Evidence, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Candidate is a business surfaced by discovery and enriched by the pipeline.
type Candidate struct {
	ID           string    `json:"id,omitempty"`
	BusinessName string    `json:"business_name"`
	Address      string    `json:"address,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Website      string    `json:"website,omitempty"`
	Email        string    `json:"email,omitempty"`
	City         string    `json:"city"`
	Category     string    `json:"category"`
	TechStack    string    `json:"tech_stack,omitempty"`
	RawEvidence  Evidence  `json:"raw_evidence,omitempty"`
	AIScore      int       `json:"ai_score"`
	AIReason     string    `json:"ai_reason,omitempty"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// HasPhone reports whether the phone value is long enough to be dialable.
func (c Candidate) HasPhone() bool {
	return len([]rune(strings.TrimSpace(c.Phone))) > 5
}

// Listing is one business record read off a search results surface.
type Listing struct {
	Name    string
	Rating  string
	Phone   string
	Website string
	Address string
	Snippet string
}

// Page is the rendered content of a visited website.
type Page struct {
	URL  string
	HTML string
	Text string
}

// Request describes one invocation of the pipeline.
type Request struct {
	City         string `json:"city"`
	Category     string `json:"category"`
	Limit        *int   `json:"limit,omitempty"`
	RequirePhone *bool  `json:"requirePhone,omitempty"`
}

// Query is the normalized form of a Request.
type Query struct {
	City         string
	Category     string
	Limit        int
	RequirePhone bool
}

// SearchText composes the free-text query sent to discovery sources.
func (q Query) SearchText() string {
	return q.Category + " in " + q.City
}

// Result is returned by a successful pipeline run.
type Result struct {
	RunID string      `json:"run_id,omitempty"`
	Count int         `json:"count"`
	Data  []Candidate `json:"data"`
}

// DedupeByName keeps the first candidate seen for each exact business name.
func DedupeByName(in []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(in))
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		if _, ok := seen[c.BusinessName]; ok {
			continue
		}
		seen[c.BusinessName] = struct{}{}
		out = append(out, c)
	}
	return out
}
