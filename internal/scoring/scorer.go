// Package scoring ranks candidates by how likely they are to buy a new
// website, asking a language model first and falling back to a fixed
// heuristic.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadgen-pipeline/internal/ai"
	"github.com/JakeFAU/leadgen-pipeline/internal/extract"
	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
	"github.com/JakeFAU/leadgen-pipeline/internal/metrics"
	"github.com/JakeFAU/leadgen-pipeline/pkg/openrouter"
)

const (
	defaultBatchSize = 10
	snippetMax       = 100
)

const systemPrompt = "You are a lead qualification analyst for a web development agency. " +
	"Reply with JSON only."

// Config controls the scorer.
type Config struct {
	// Model is the preferred model; empty uses the chain default.
	Model string
	// BatchSize caps how many candidates are sent to the model.
	BatchSize int
}

// Scorer implements lead.Scorer.
type Scorer struct {
	completer ai.Completer
	cfg       Config
	logger    *zap.Logger
}

// New builds a Scorer. A nil completer scores everything heuristically.
func New(completer ai.Completer, cfg Config, logger *zap.Logger) *Scorer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{completer: completer, cfg: cfg, logger: logger}
}

// Score sets AIScore on every candidate. Candidates the model does not score
// keep the heuristic value.
func (s *Scorer) Score(ctx context.Context, candidates []lead.Candidate) {
	for i := range candidates {
		candidates[i].AIScore = Heuristic(candidates[i])
	}
	if len(candidates) == 0 || s.completer == nil {
		metrics.ObserveScored("heuristic", len(candidates))
		return
	}

	batch := candidates[:min(len(candidates), s.cfg.BatchSize)]
	prompt, err := BuildPrompt(batch)
	if err != nil {
		s.logger.Warn("build scoring prompt failed", zap.Error(err))
		metrics.ObserveScored("heuristic", len(candidates))
		return
	}

	completion, err := s.completer.Complete(ctx, s.cfg.Model, []openrouter.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		s.logger.Warn("scoring model chain failed, using heuristic scores", zap.Error(err))
		metrics.ObserveScored("heuristic", len(candidates))
		return
	}

	verdicts, err := ParseVerdicts(completion.Content)
	if err != nil {
		s.logger.Warn("scoring response unparseable, using heuristic scores",
			zap.String("model", completion.Model),
			zap.Error(err),
		)
		metrics.ObserveScored("heuristic", len(candidates))
		return
	}

	scored := 0
	seen := make(map[int]struct{}, len(verdicts))
	for _, v := range verdicts {
		if v.ID < 0 || v.ID >= len(batch) {
			continue
		}
		if _, dup := seen[v.ID]; dup {
			continue
		}
		seen[v.ID] = struct{}{}
		batch[v.ID].AIScore = clamp(v.Score)
		batch[v.ID].AIReason = strings.TrimSpace(v.Reason)
		scored++
	}
	metrics.ObserveScored("model", scored)
	metrics.ObserveScored("heuristic", len(candidates)-scored)
	s.logger.Info("candidates scored",
		zap.String("model", completion.Model),
		zap.Int("model_scored", scored),
		zap.Int("total", len(candidates)),
	)
}

// Heuristic is the fallback score: 50, plus 20 for a detected tech stack, plus
// 20 for an email or otherwise 10 for a phone, clamped to [0,100].
func Heuristic(c lead.Candidate) int {
	score := lead.DefaultScore
	if c.TechStack != "" {
		score += 20
	}
	switch {
	case c.Email != "":
		score += 20
	case c.Phone != "":
		score += 10
	}
	return clamp(score)
}

type projection struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	HasWebsite string `json:"has_website"`
	HasPhone   string `json:"has_phone"`
	HasEmail   string `json:"has_email"`
	TechStack  string `json:"tech_stack"`
	Snippet    string `json:"snippet"`
}

// BuildPrompt renders the scoring instructions for a batch. Each candidate is
// identified by its index in the batch.
func BuildPrompt(batch []lead.Candidate) (string, error) {
	items := make([]projection, 0, len(batch))
	for i, c := range batch {
		tech := c.TechStack
		if tech == "" {
			tech = "Unknown"
		}
		items = append(items, projection{
			ID:         i,
			Name:       c.BusinessName,
			HasWebsite: yesNo(c.Website != ""),
			HasPhone:   yesNo(c.Phone != ""),
			HasEmail:   yesNo(c.Email != ""),
			TechStack:  tech,
			Snippet:    extract.Snippet(c.RawEvidence.Snippet(), snippetMax),
		})
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshal projection: %w", err)
	}

	var b strings.Builder
	b.WriteString("Score each business from 0 to 100 on how likely it is to buy a new website or a website redesign.\n")
	b.WriteString("Businesses without a website, or on dated site builders, score higher. ")
	b.WriteString("Businesses that are easy to contact score higher.\n\n")
	b.WriteString("Businesses:\n")
	b.Write(payload)
	b.WriteString("\n\nReturn only a JSON array of objects shaped like ")
	b.WriteString(`{"id": <id>, "ai_score": <0-100>, "reason": "<one short sentence>"}`)
	b.WriteString(", one per business.")
	return b.String(), nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func clamp(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}
