// Package directory looks up businesses in a Nominatim-compatible open
// geodata search API. It is the fallback source when the browser harvest
// comes back empty.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
	"github.com/JakeFAU/leadgen-pipeline/internal/metrics"
)

// Config controls the directory client.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

type waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Client implements lead.Directory.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter waiter
	logger  *zap.Logger
}

var phoneKeys = []string{"phone", "contact:phone", "contact:mobile"}
var websiteKeys = []string{"website", "contact:website", "url"}

// New builds a Client. The API requires an identifying User-Agent, so an empty
// one is rejected.
func New(cfg Config, limiter waiter, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("directory base url is required")
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return nil, errors.New("directory user agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
	}, nil
}

type place struct {
	PlaceID     int64             `json:"place_id"`
	OSMType     string            `json:"osm_type"`
	OSMID       int64             `json:"osm_id"`
	Class       string            `json:"class"`
	Category    string            `json:"category"`
	Type        string            `json:"type"`
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Importance  float64           `json:"importance"`
	ExtraTags   map[string]string `json:"extratags"`
	NameDetails map[string]string `json:"namedetails"`
}

// Lookup searches "<category> in <city>" and maps up to q.Limit places to
// candidates.
func (c *Client) Lookup(ctx context.Context, q lead.Query) ([]lead.Candidate, error) {
	if q.Limit <= 0 {
		return nil, nil
	}
	endpoint := c.searchURL(q)
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("directory body close failed", zap.Error(cerr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("directory status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("decode directory response: %w", err)
	}

	candidates := make([]lead.Candidate, 0, len(places))
	for _, p := range places {
		cand, ok := toCandidate(p, q)
		if !ok {
			continue
		}
		candidates = append(candidates, cand)
	}
	candidates = lead.DedupeByName(candidates)
	if len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}
	metrics.ObserveCandidates(lead.SourceDirectory, len(candidates))
	c.logger.Info("directory lookup complete",
		zap.String("query", q.SearchText()),
		zap.Int("places", len(places)),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

func (c *Client) searchURL(q lead.Query) string {
	params := url.Values{}
	params.Set("q", q.SearchText())
	params.Set("format", "jsonv2")
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("extratags", "1")
	params.Set("namedetails", "1")
	params.Set("addressdetails", "1")
	return c.cfg.BaseURL + "/search?" + params.Encode()
}

func toCandidate(p place, q lead.Query) (lead.Candidate, bool) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = strings.TrimSpace(p.NameDetails["name"])
	}
	if name == "" {
		name = strings.TrimSpace(strings.SplitN(p.DisplayName, ",", 2)[0])
	}
	if name == "" {
		return lead.Candidate{}, false
	}
	class := p.Class
	if class == "" {
		class = p.Category
	}
	return lead.Candidate{
		BusinessName: name,
		Address:      p.DisplayName,
		Phone:        firstTag(p.ExtraTags, phoneKeys),
		Website:      firstTag(p.ExtraTags, websiteKeys),
		City:         q.City,
		Category:     q.Category,
		AIScore:      lead.DefaultScore,
		Status:       lead.StatusPending,
		RawEvidence: lead.Evidence{
			lead.EvidenceSourceKey: lead.SourceDirectory,
			"place_id":             p.PlaceID,
			"osm_type":             p.OSMType,
			"osm_id":               p.OSMID,
			"class":                class,
			"type":                 p.Type,
			"display_name":         p.DisplayName,
			"importance":           p.Importance,
		},
	}, true
}

func firstTag(tags map[string]string, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(tags[k]); v != "" {
			return v
		}
	}
	return ""
}
