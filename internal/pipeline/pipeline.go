// Package pipeline sequences one lead generation run: harvest, directory
// fallback, phone filter, scoring, and persistence.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadgen-pipeline/internal/hash/sha256"
	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
	"github.com/JakeFAU/leadgen-pipeline/internal/metrics"
)

// Config controls request normalization and post-persist side effects.
type Config struct {
	DefaultLimit        int
	MaxLimit            int
	DefaultRequirePhone bool
	// Topic receives a Notification after each successful run. Empty disables publishing.
	Topic string
	// ArchivePrefix is prepended to evidence bundle paths.
	ArchivePrefix string
}

// Orchestrator runs the pipeline. Directory, publisher, archiver, and ids are
// optional.
type Orchestrator struct {
	harvester lead.Harvester
	directory lead.Directory
	scorer    lead.Scorer
	sink      lead.Sink
	publisher lead.Publisher
	archiver  lead.Archiver
	ids       lead.IDGenerator
	now       func() time.Time
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Orchestrator.
func New(
	harvester lead.Harvester,
	directory lead.Directory,
	scorer lead.Scorer,
	sink lead.Sink,
	publisher lead.Publisher,
	archiver lead.Archiver,
	ids lead.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 5
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 25
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		harvester: harvester,
		directory: directory,
		scorer:    scorer,
		sink:      sink,
		publisher: publisher,
		archiver:  archiver,
		ids:       ids,
		now:       time.Now,
		cfg:       cfg,
		logger:    logger,
	}
}

// Normalize validates req and applies limit and requirePhone defaults.
func (o *Orchestrator) Normalize(req lead.Request) (lead.Query, error) {
	q := lead.Query{
		City:         strings.TrimSpace(req.City),
		Category:     strings.TrimSpace(req.Category),
		Limit:        o.cfg.DefaultLimit,
		RequirePhone: o.cfg.DefaultRequirePhone,
	}
	if q.City == "" || q.Category == "" {
		return lead.Query{}, lead.ErrInvalidRequest
	}
	if req.Limit != nil && *req.Limit > 0 {
		q.Limit = min(*req.Limit, o.cfg.MaxLimit)
	}
	if req.RequirePhone != nil {
		q.RequirePhone = *req.RequirePhone
	}
	return q, nil
}

// Run executes one pipeline invocation. It returns lead.ErrInvalidRequest,
// lead.ErrNoCandidates, or an error wrapping lead.ErrPersist on failure.
func (o *Orchestrator) Run(ctx context.Context, req lead.Request) (lead.Result, error) {
	q, err := o.Normalize(req)
	if err != nil {
		metrics.ObservePipelineRun("invalid")
		return lead.Result{}, err
	}
	runID := o.newRunID()
	logger := o.logger.With(
		zap.String("run_id", runID),
		zap.String("city", q.City),
		zap.String("category", q.Category),
		zap.Int("limit", q.Limit),
	)
	logger.Info("pipeline run started", zap.Bool("require_phone", q.RequirePhone))

	candidates := o.harvest(ctx, q, logger)
	if len(candidates) == 0 {
		candidates = o.fallback(ctx, q, logger)
	}

	if q.RequirePhone {
		before := len(candidates)
		candidates = filterPhone(candidates)
		logger.Debug("phone filter applied", zap.Int("before", before), zap.Int("after", len(candidates)))
	}
	if len(candidates) == 0 {
		metrics.ObservePipelineRun("no_candidates")
		logger.Warn("pipeline run found no candidates")
		return lead.Result{}, lead.ErrNoCandidates
	}

	start := time.Now()
	o.scorer.Score(ctx, candidates)
	metrics.ObserveStage("score", time.Since(start))
	for i := range candidates {
		candidates[i].City = q.City
		candidates[i].Category = q.Category
		candidates[i].AIScore = clampScore(candidates[i].AIScore)
		candidates[i].Status = lead.StatusPending
	}

	start = time.Now()
	inserted, err := o.sink.InsertCandidates(ctx, candidates)
	metrics.ObserveStage("persist", time.Since(start))
	if err != nil {
		metrics.ObservePipelineRun("persist_error")
		logger.Error("persist candidates failed", zap.Error(err))
		return lead.Result{}, fmt.Errorf("%w: %w", lead.ErrPersist, err)
	}

	o.afterPersist(ctx, runID, q, inserted, logger)

	metrics.ObservePipelineRun("success")
	logger.Info("pipeline run finished", zap.Int("count", len(inserted)))
	return lead.Result{RunID: runID, Count: len(inserted), Data: inserted}, nil
}

func (o *Orchestrator) harvest(ctx context.Context, q lead.Query, logger *zap.Logger) (out []lead.Candidate) {
	if o.harvester == nil {
		return nil
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("harvest panicked", zap.Any("panic", r))
			out = nil
		}
		metrics.ObserveStage("harvest", time.Since(start))
	}()
	candidates, err := o.harvester.Harvest(ctx, q)
	if err != nil {
		logger.Warn("harvest failed, falling back", zap.Error(err))
		return nil
	}
	metrics.ObserveCandidates(lead.SourceBrowser, len(candidates))
	return capped(candidates, q.Limit)
}

func (o *Orchestrator) fallback(ctx context.Context, q lead.Query, logger *zap.Logger) (out []lead.Candidate) {
	if o.directory == nil {
		return nil
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("directory lookup panicked", zap.Any("panic", r))
			out = nil
		}
		metrics.ObserveStage("directory", time.Since(start))
	}()
	logger.Info("harvest empty, querying directory")
	candidates, err := o.directory.Lookup(ctx, q)
	if err != nil {
		logger.Warn("directory lookup failed", zap.Error(err))
		return nil
	}
	return capped(candidates, q.Limit)
}

func (o *Orchestrator) newRunID() string {
	if o.ids == nil {
		return ""
	}
	id, err := o.ids.NewID()
	if err != nil {
		o.logger.Warn("run id generation failed", zap.Error(err))
		return ""
	}
	return id
}

// Notification is published after every successful run. EvidenceSHA256 is the
// digest of the archived bundle bytes.
type Notification struct {
	RunID          string         `json:"run_id"`
	City           string         `json:"city"`
	Category       string         `json:"category"`
	Count          int            `json:"count"`
	CandidateIDs   []string       `json:"candidate_ids"`
	Sources        map[string]int `json:"sources"`
	EvidenceURI    string         `json:"evidence_uri,omitempty"`
	EvidenceSHA256 string         `json:"evidence_sha256,omitempty"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

type evidenceBundle struct {
	RunID       string           `json:"run_id"`
	City        string           `json:"city"`
	Category    string           `json:"category"`
	GeneratedAt time.Time        `json:"generated_at"`
	Candidates  []lead.Candidate `json:"candidates"`
}

func (o *Orchestrator) afterPersist(ctx context.Context, runID string, q lead.Query, inserted []lead.Candidate, logger *zap.Logger) {
	now := o.now().UTC()
	uri, digest, err := o.archive(ctx, runID, q, inserted, now)
	if err != nil {
		logger.Warn("evidence archive failed", zap.Error(err))
	}
	if err := o.publish(ctx, runID, q, inserted, uri, digest, now); err != nil {
		logger.Warn("run notification failed", zap.Error(err))
	}
}

func (o *Orchestrator) archive(ctx context.Context, runID string, q lead.Query, inserted []lead.Candidate, now time.Time) (string, string, error) {
	if o.archiver == nil {
		return "", "", nil
	}
	data, err := json.Marshal(evidenceBundle{
		RunID:       runID,
		City:        q.City,
		Category:    q.Category,
		GeneratedAt: now,
		Candidates:  inserted,
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal evidence bundle: %w", err)
	}
	uri, err := o.archiver.PutObject(ctx, o.archivePath(runID, now), "application/json", data)
	if err != nil {
		return "", "", fmt.Errorf("put evidence bundle: %w", err)
	}
	return uri, sha256.Sum(data), nil
}

func (o *Orchestrator) archivePath(runID string, now time.Time) string {
	name := runID
	if name == "" {
		name = now.Format("20060102T150405.000000000")
	}
	prefix := strings.Trim(o.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.json", now.Format("2006/01/02"), name)
	}
	return fmt.Sprintf("%s/%s/%s.json", prefix, now.Format("2006/01/02"), name)
}

func (o *Orchestrator) publish(ctx context.Context, runID string, q lead.Query, inserted []lead.Candidate, uri, digest string, now time.Time) error {
	if o.cfg.Topic == "" || o.publisher == nil {
		return nil
	}
	n := Notification{
		RunID:          runID,
		City:           q.City,
		Category:       q.Category,
		Count:          len(inserted),
		CandidateIDs:   make([]string, 0, len(inserted)),
		Sources:        map[string]int{},
		EvidenceURI:    uri,
		EvidenceSHA256: digest,
		GeneratedAt:    now,
	}
	for _, c := range inserted {
		n.CandidateIDs = append(n.CandidateIDs, c.ID)
		n.Sources[c.RawEvidence.Source()]++
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.Topic, n); err != nil {
		return fmt.Errorf("publish run notification: %w", err)
	}
	return nil
}

func filterPhone(in []lead.Candidate) []lead.Candidate {
	out := in[:0]
	for _, c := range in {
		if c.HasPhone() {
			out = append(out, c)
		}
	}
	return out
}

func capped(in []lead.Candidate, limit int) []lead.Candidate {
	in = lead.DedupeByName(in)
	if len(in) > limit {
		return in[:limit]
	}
	return in
}

func clampScore(s int) int {
	return max(0, min(100, s))
}
