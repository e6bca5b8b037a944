// Package sqlite provides a single-file candidate sink on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const migration = `
CREATE TABLE IF NOT EXISTS potential_leads (
	id            TEXT PRIMARY KEY,
	business_name TEXT NOT NULL,
	address       TEXT,
	phone         TEXT,
	website       TEXT,
	email         TEXT,
	city          TEXT NOT NULL,
	category      TEXT NOT NULL,
	tech_stack    TEXT,
	raw_evidence  TEXT,
	ai_score      INTEGER NOT NULL DEFAULT 50,
	ai_reason     TEXT,
	status        TEXT NOT NULL DEFAULT 'pending',
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_potential_leads_status ON potential_leads(status);
CREATE INDEX IF NOT EXISTS idx_potential_leads_created_at ON potential_leads(created_at);
`

const selectColumns = `id, business_name, address, phone, website, email, city, category,
	tech_stack, raw_evidence, ai_score, ai_reason, status, created_at`

// LeadStore implements lead.Sink on a SQLite database file.
type LeadStore struct {
	db  *sql.DB
	ids lead.IDGenerator
	now func() time.Time
}

// Open opens (or creates) the database at dsn, applies pragmas, and runs the
// migration.
func Open(ctx context.Context, dsn string, ids lead.IDGenerator) (*LeadStore, error) {
	if dsn == "" {
		return nil, errors.New("store.dsn is required")
	}
	if ids == nil {
		return nil, errors.New("id generator is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: exec %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, migration); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &LeadStore{db: db, ids: ids, now: time.Now}, nil
}

// Close closes the database.
func (s *LeadStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *LeadStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertCandidates stores the batch in one transaction.
func (s *LeadStore) InsertCandidates(ctx context.Context, candidates []lead.Candidate) (_ []lead.Candidate, err error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO potential_leads (
	id, business_name, address, phone, website, email, city, category,
	tech_stack, raw_evidence, ai_score, ai_reason, status, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	out := make([]lead.Candidate, 0, len(candidates))
	for _, c := range candidates {
		id, err := s.ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("assign id: %w", err)
		}
		evidence, err := marshalEvidence(c.RawEvidence)
		if err != nil {
			return nil, err
		}
		c.ID = id
		c.CreatedAt = now
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.BusinessName, nullable(c.Address), nullable(c.Phone), nullable(c.Website),
			nullable(c.Email), c.City, c.Category, nullable(c.TechStack), evidence,
			c.AIScore, nullable(c.AIReason), string(c.Status), now.Format(timeLayout),
		); err != nil {
			return nil, fmt.Errorf("sqlite: insert candidate %q: %w", c.BusinessName, err)
		}
		out = append(out, c)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit: %w", err)
	}
	return out, nil
}

// ListCandidates returns stored candidates newest first.
func (s *LeadStore) ListCandidates(ctx context.Context, filter lead.ListFilter) ([]lead.Candidate, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+selectColumns+`
FROM potential_leads
WHERE (? = '' OR status = ?) AND (? = '' OR city = ?)
ORDER BY created_at DESC, rowid DESC
LIMIT ?`,
		string(filter.Status), string(filter.Status), filter.City, filter.City, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list candidates: %w", err)
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
		return nil, fmt.Errorf("sqlite: list candidates: %w", err)
	}
	return out, nil
}

// UpdateStatus sets the review status of one candidate.
func (s *LeadStore) UpdateStatus(ctx context.Context, id string, status lead.Status) (lead.Candidate, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE potential_leads SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return lead.Candidate{}, fmt.Errorf("sqlite: update status %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return lead.Candidate{}, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return lead.Candidate{}, lead.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM potential_leads WHERE id = ?`, id)
	return scanCandidate(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row scanner) (lead.Candidate, error) {
	var (
		c                                                  lead.Candidate
		address, phone, website, email, tech, evid, reason sql.NullString
		status, created                                    string
	)
	if err := row.Scan(
		&c.ID, &c.BusinessName, &address, &phone, &website, &email, &c.City, &c.Category,
		&tech, &evid, &c.AIScore, &reason, &status, &created,
	); err != nil {
		return lead.Candidate{}, fmt.Errorf("sqlite: scan candidate: %w", err)
	}
	c.Address = address.String
	c.Phone = phone.String
	c.Website = website.String
	c.Email = email.String
	c.TechStack = tech.String
	c.AIReason = reason.String
	c.Status = lead.Status(status)
	if evid.Valid && evid.String != "" {
		if err := json.Unmarshal([]byte(evid.String), &c.RawEvidence); err != nil {
			return lead.Candidate{}, fmt.Errorf("sqlite: decode raw_evidence: %w", err)
		}
	}
	ts, err := time.Parse(timeLayout, created)
	if err != nil {
		return lead.Candidate{}, fmt.Errorf("sqlite: parse created_at: %w", err)
	}
	c.CreatedAt = ts
	return c, nil
}

func marshalEvidence(e lead.Evidence) (any, error) {
	if e == nil {
		return nil, nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal raw_evidence: %w", err)
	}
	return string(b), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
