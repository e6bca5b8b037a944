// Package harvest runs listing discovery and website enrichment over a
// browser session, independent of the automation library behind it.
package harvest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadgen-pipeline/internal/extract"
	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
	"github.com/JakeFAU/leadgen-pipeline/internal/metrics"
)

// Config controls deep-visit enrichment.
type Config struct {
	// DeepVisitMax caps how many candidates with a website are visited.
	DeepVisitMax int
	// VisitTimeout bounds each visit on its own.
	VisitTimeout time.Duration
}

// Engine implements lead.Harvester.
type Engine struct {
	launcher lead.BrowserLauncher
	visitor  lead.Visitor
	cfg      Config
	logger   *zap.Logger
}

// New constructs an Engine. When visitor is nil, deep visits reuse the
// browser session that produced the listings.
func New(launcher lead.BrowserLauncher, visitor lead.Visitor, cfg Config, logger *zap.Logger) *Engine {
	if cfg.DeepVisitMax < 0 {
		cfg.DeepVisitMax = 0
	}
	if cfg.VisitTimeout <= 0 {
		cfg.VisitTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		launcher: launcher,
		visitor:  visitor,
		cfg:      cfg,
		logger:   logger,
	}
}

// Harvest searches "<category> in <city>", keeps at most q.Limit uniquely
// named listings, and enriches the first candidates that have a website.
func (e *Engine) Harvest(ctx context.Context, q lead.Query) ([]lead.Candidate, error) {
	session, err := e.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			e.logger.Warn("browser close failed", zap.Error(err))
		}
	}()

	query := q.SearchText()
	listings, err := session.Search(ctx, query, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("search listings: %w", err)
	}

	candidates := lead.DedupeByName(toCandidates(listings, q, query))
	if len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}
	e.logger.Info("listings harvested",
		zap.String("query", query),
		zap.Int("listings", len(listings)),
		zap.Int("candidates", len(candidates)),
	)

	visitor := e.visitor
	if visitor == nil {
		visitor = session
	}
	e.enrich(ctx, visitor, candidates)
	return candidates, nil
}

func (e *Engine) enrich(ctx context.Context, visitor lead.Visitor, candidates []lead.Candidate) {
	visited := 0
	for i := range candidates {
		if visited >= e.cfg.DeepVisitMax || ctx.Err() != nil {
			return
		}
		c := &candidates[i]
		if c.Website == "" {
			continue
		}
		visited++

		visitCtx, cancel := context.WithTimeout(ctx, e.cfg.VisitTimeout)
		page, err := visitor.Visit(visitCtx, c.Website)
		cancel()
		if err != nil {
			metrics.ObserveDeepVisit("error")
			e.logger.Warn("deep visit failed",
				zap.String("business", c.BusinessName),
				zap.String("website", c.Website),
				zap.Error(err),
			)
			continue
		}
		metrics.ObserveDeepVisit("ok")
		ApplyPage(c, page)
	}
}

// ApplyPage copies contact and technology signals from a visited page into
// the candidate's empty fields. Populated fields are never overwritten.
func ApplyPage(c *lead.Candidate, page lead.Page) {
	text := page.Text
	if text == "" && page.HTML != "" {
		text, _ = extract.VisibleText(page.HTML)
	}
	links := extract.LinkContacts(page.HTML)

	if c.Phone == "" {
		c.Phone = firstNonEmpty(extract.Phone(text), links.Phone)
	}
	if c.Email == "" {
		c.Email = firstNonEmpty(extract.Email(text), links.Email)
	}
	if c.TechStack == "" {
		c.TechStack = extract.TechStack(page.HTML)
	}
	if c.RawEvidence == nil {
		c.RawEvidence = lead.Evidence{}
	}
	if page.URL != "" {
		c.RawEvidence["visited_url"] = page.URL
	}
}

func toCandidates(listings []lead.Listing, q lead.Query, query string) []lead.Candidate {
	out := make([]lead.Candidate, 0, len(listings))
	for _, l := range listings {
		evidence := lead.Evidence{
			lead.EvidenceSourceKey: lead.SourceBrowser,
			"query":                query,
		}
		if l.Rating != "" {
			evidence["rating"] = l.Rating
		}
		if l.Snippet != "" {
			evidence["snippet"] = l.Snippet
		}
		out = append(out, lead.Candidate{
			BusinessName: l.Name,
			Address:      l.Address,
			Phone:        l.Phone,
			Website:      l.Website,
			City:         q.City,
			Category:     q.Category,
			RawEvidence:  evidence,
			AIScore:      lead.DefaultScore,
			Status:       lead.StatusPending,
		})
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
