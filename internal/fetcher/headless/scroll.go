package headless

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
)

// maxScrollRounds caps the loop for result feeds that keep growing without
// yielding new names.
const maxScrollRounds = 40

// pageDriver is the slice of browser behaviour the scroll loop needs.
type pageDriver interface {
	ResultsHTML(ctx context.Context) (string, error)
	ScrollToBottom(ctx context.Context) error
	Height(ctx context.Context) (int64, error)
	ClickLoadMore(ctx context.Context) (bool, error)
	Settle(ctx context.Context) error
}

type scrollConfig struct {
	Limit     int
	MaxStalls int
}

// accumulator keeps listings in discovery order, unique by exact name.
type accumulator struct {
	seen  map[string]struct{}
	items []lead.Listing
}

func newAccumulator() *accumulator {
	return &accumulator{seen: make(map[string]struct{})}
}

func (a *accumulator) add(listings []lead.Listing) int {
	added := 0
	for _, l := range listings {
		if l.Name == "" {
			continue
		}
		if _, ok := a.seen[l.Name]; ok {
			continue
		}
		a.seen[l.Name] = struct{}{}
		a.items = append(a.items, l)
		added++
	}
	return added
}

// collectListings runs the scroll-and-dedupe loop against an already loaded
// results page. Errors after the first successful read end the loop and
// return what was gathered so far.
func collectListings(ctx context.Context, d pageDriver, cfg scrollConfig, logger *zap.Logger) ([]lead.Listing, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Limit <= 0 {
		return nil, nil
	}
	if cfg.MaxStalls <= 0 {
		cfg.MaxStalls = 3
	}
	acc := newAccumulator()
	lastHeight, err := d.Height(ctx)
	if err != nil {
		return nil, fmt.Errorf("measure results height: %w", err)
	}

	stalls := 0
	triedLoadMore := false
	for round := 0; round < maxScrollRounds; round++ {
		markup, err := d.ResultsHTML(ctx)
		if err != nil {
			if len(acc.items) == 0 {
				return nil, fmt.Errorf("read results: %w", err)
			}
			logger.Warn("results read failed, keeping partial harvest", zap.Error(err))
			break
		}
		added := acc.add(parseListings(markup))
		logger.Debug("harvest round",
			zap.Int("round", round),
			zap.Int("added", added),
			zap.Int("total", len(acc.items)),
		)
		if len(acc.items) >= cfg.Limit {
			break
		}

		grew, err := scrollAndMeasure(ctx, d, &lastHeight)
		if err != nil {
			logger.Warn("scroll failed, keeping partial harvest", zap.Error(err))
			break
		}
		if grew {
			stalls = 0
			continue
		}
		stalls++
		if stalls < cfg.MaxStalls {
			continue
		}
		if triedLoadMore {
			break
		}
		triedLoadMore = true
		if !tryLoadMore(ctx, d, &lastHeight, logger) {
			break
		}
		stalls = 0
	}

	items := acc.items
	if len(items) > cfg.Limit {
		items = items[:cfg.Limit]
	}
	return items, nil
}

func scrollAndMeasure(ctx context.Context, d pageDriver, lastHeight *int64) (bool, error) {
	if err := d.ScrollToBottom(ctx); err != nil {
		return false, fmt.Errorf("scroll: %w", err)
	}
	if err := d.Settle(ctx); err != nil {
		return false, fmt.Errorf("settle: %w", err)
	}
	h, err := d.Height(ctx)
	if err != nil {
		return false, fmt.Errorf("measure height: %w", err)
	}
	if h == *lastHeight {
		return false, nil
	}
	*lastHeight = h
	return true, nil
}

// tryLoadMore clicks a visible "more results" control once and reports
// whether the feed grew afterwards.
func tryLoadMore(ctx context.Context, d pageDriver, lastHeight *int64, logger *zap.Logger) bool {
	clicked, err := d.ClickLoadMore(ctx)
	if err != nil {
		logger.Debug("load more click failed", zap.Error(err))
		return false
	}
	if !clicked {
		return false
	}
	if err := d.Settle(ctx); err != nil {
		return false
	}
	h, err := d.Height(ctx)
	if err != nil || h == *lastHeight {
		return false
	}
	*lastHeight = h
	return true
}
