// Package postgres provides the Postgres-backed candidate sink.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "potential_leads"

const selectColumns = `id, business_name, address, phone, website, email, city, category,
	tech_stack, raw_evidence, ai_score, ai_reason, status, created_at`

// Config controls the Postgres connection pool used for candidate rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// LeadStore implements lead.Sink on a Postgres table.
type LeadStore struct {
	pool  pool
	table string
}

// NewLeadStore connects to Postgres using the provided config.
func NewLeadStore(ctx context.Context, cfg Config) (*LeadStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &LeadStore{pool: p, table: table}, nil
}

// NewLeadStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewLeadStoreWithPool(p pool, table string) (*LeadStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &LeadStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *LeadStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the candidate table when it does not exist.
func (s *LeadStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	business_name text NOT NULL,
	address text,
	phone text,
	website text,
	email text,
	city text NOT NULL,
	category text NOT NULL,
	tech_stack text,
	raw_evidence jsonb,
	ai_score integer NOT NULL DEFAULT 50 CHECK (ai_score BETWEEN 0 AND 100),
	ai_reason text,
	status text NOT NULL DEFAULT 'pending',
	created_at timestamptz NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Ping verifies the pool can reach the database.
func (s *LeadStore) Ping(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// InsertCandidates writes all candidates in one statement and returns them
// with the ids and timestamps assigned by the database.
func (s *LeadStore) InsertCandidates(ctx context.Context, candidates []lead.Candidate) ([]lead.Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	const cols = 12
	placeholders := make([]string, 0, len(candidates))
	args := make([]any, 0, len(candidates)*cols)
	for i, c := range candidates {
		evidence, err := marshalEvidence(c.RawEvidence)
		if err != nil {
			return nil, err
		}
		base := i * cols
		ph := make([]string, cols)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
		args = append(args,
			c.BusinessName,
			nullable(c.Address),
			nullable(c.Phone),
			nullable(c.Website),
			nullable(c.Email),
			c.City,
			c.Category,
			nullable(c.TechStack),
			evidence,
			c.AIScore,
			nullable(c.AIReason),
			string(c.Status),
		)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	business_name, address, phone, website, email, city, category,
	tech_stack, raw_evidence, ai_score, ai_reason, status
) VALUES %s
RETURNING id, created_at`, s.table, strings.Join(placeholders, ","))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert candidates: %w", err)
	}
	defer rows.Close()

	out := make([]lead.Candidate, 0, len(candidates))
	for rows.Next() {
		if len(out) >= len(candidates) {
			return nil, fmt.Errorf("insert candidates: more rows returned than inserted")
		}
		c := candidates[len(out)]
		if err := rows.Scan(&c.ID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan inserted id: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("insert candidates: %w", err)
	}
	if len(out) != len(candidates) {
		return nil, fmt.Errorf("insert candidates: %d of %d rows returned", len(out), len(candidates))
	}
	return out, nil
}

// ListCandidates returns stored candidates newest first.
func (s *LeadStore) ListCandidates(ctx context.Context, filter lead.ListFilter) ([]lead.Candidate, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE ($1 = '' OR status = $1) AND ($2 = '' OR city = $2)
ORDER BY created_at DESC
LIMIT $3`, selectColumns, s.table)

	rows, err := s.pool.Query(ctx, query, string(filter.Status), filter.City, limit)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	out := []lead.Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return out, nil
}

// UpdateStatus sets the review status of one candidate.
func (s *LeadStore) UpdateStatus(ctx context.Context, id string, status lead.Status) (lead.Candidate, error) {
	query := fmt.Sprintf(`
UPDATE %s SET status = $1 WHERE id = $2
RETURNING %s`, s.table, selectColumns)

	c, err := scanCandidate(s.pool.QueryRow(ctx, query, string(status), id))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.Is(err, pgx.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == "22P02") {
			return lead.Candidate{}, lead.ErrNotFound
		}
		return lead.Candidate{}, fmt.Errorf("update status: %w", err)
	}
	return c, nil
}

func scanCandidate(row pgx.Row) (lead.Candidate, error) {
	var (
		c                                            lead.Candidate
		address, phone, website, email, tech, reason *string
		evidence                                     []byte
		status                                       string
	)
	err := row.Scan(
		&c.ID, &c.BusinessName, &address, &phone, &website, &email, &c.City, &c.Category,
		&tech, &evidence, &c.AIScore, &reason, &status, &c.CreatedAt,
	)
	if err != nil {
		return lead.Candidate{}, fmt.Errorf("scan candidate: %w", err)
	}
	c.Address = deref(address)
	c.Phone = deref(phone)
	c.Website = deref(website)
	c.Email = deref(email)
	c.TechStack = deref(tech)
	c.AIReason = deref(reason)
	c.Status = lead.Status(status)
	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &c.RawEvidence); err != nil {
			return lead.Candidate{}, fmt.Errorf("decode raw_evidence: %w", err)
		}
	}
	return c, nil
}

func marshalEvidence(e lead.Evidence) ([]byte, error) {
	if e == nil {
		return nil, nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal raw_evidence: %w", err)
	}
	return b, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
