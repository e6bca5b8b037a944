package lead

import (
	"context"
	"errors"
)

// Sentinel errors surfaced by the pipeline and mapped to transport status codes.
var (
	ErrInvalidRequest = errors.New("city and category are required")
	ErrNoCandidates   = errors.New("no candidates found")
	ErrPersist        = errors.New("persist candidates")
	ErrNotFound       = errors.New("candidate not found")
)

// Harvester discovers candidates from the interactive search surface.
type Harvester interface {
	Harvest(ctx context.Context, q Query) ([]Candidate, error)
}

// Directory looks up candidates in a structured geodata directory.
type Directory interface {
	Lookup(ctx context.Context, q Query) ([]Candidate, error)
}

// Scorer assigns ai_score (and optionally ai_reason) to candidates in place.
type Scorer interface {
	Score(ctx context.Context, candidates []Candidate)
}

// Sink persists candidates and reads them back.
type Sink interface {
	InsertCandidates(ctx context.Context, candidates []Candidate) ([]Candidate, error)
	ListCandidates(ctx context.Context, filter ListFilter) ([]Candidate, error)
	UpdateStatus(ctx context.Context, id string, status Status) (Candidate, error)
}

// ListFilter narrows ListCandidates results.
type ListFilter struct {
	Status Status
	City   string
	Limit  int
}

// Publisher pushes run notifications to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Archiver stores the raw evidence of a run and returns its URI.
type Archiver interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// IDGenerator produces opaque identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// PageSession is one live browser session: it searches the listings surface
// and visits candidate websites, one navigation at a time.
type PageSession interface {
	Search(ctx context.Context, query string, limit int) ([]Listing, error)
	Visit(ctx context.Context, url string) (Page, error)
	Close() error
}

// Visitor renders a single website for deep-visit enrichment.
type Visitor interface {
	Visit(ctx context.Context, url string) (Page, error)
}

// BrowserLauncher starts a fresh PageSession for a pipeline run.
type BrowserLauncher interface {
	Launch(ctx context.Context) (PageSession, error)
}
