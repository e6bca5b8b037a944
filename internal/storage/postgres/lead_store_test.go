package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
)

func strPtr(s string) *string { return &s }

func TestInsertCandidatesBatch(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLeadStoreWithPool(mock, "")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	in := []lead.Candidate{
		{
			BusinessName: "Smile Dental",
			Phone:        "+91 98765 43210",
			Website:      "https://smile.example",
			City:         "Pune",
			Category:     "dentists",
			TechStack:    "WordPress",
			RawEvidence:  lead.Evidence{"source": "browser", "rating": "4.5"},
			AIScore:      80,
			AIReason:     "Dated WordPress theme",
			Status:       lead.StatusPending,
		},
		{
			BusinessName: "Bright Teeth",
			City:         "Pune",
			Category:     "dentists",
			RawEvidence:  lead.Evidence{"source": "browser"},
			AIScore:      50,
			Status:       lead.StatusPending,
		},
	}

	mock.ExpectQuery("INSERT INTO potential_leads").
		WithArgs(
			"Smile Dental", nil, "+91 98765 43210", "https://smile.example", nil, "Pune", "dentists",
			"WordPress", []byte(`{"rating":"4.5","source":"browser"}`), 80, "Dated WordPress theme", "pending",
			"Bright Teeth", nil, nil, nil, nil, "Pune", "dentists",
			nil, []byte(`{"source":"browser"}`), 50, nil, "pending",
		).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).
			AddRow("id-1", now).
			AddRow("id-2", now))

	out, err := store.InsertCandidates(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "id-1", out[0].ID)
	require.Equal(t, "id-2", out[1].ID)
	require.Equal(t, now, out[1].CreatedAt)
	require.Equal(t, "Dated WordPress theme", out[0].AIReason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCandidatesError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLeadStoreWithPool(mock, "leads")
	require.NoError(t, err)

	boom := errors.New("connection reset")
	mock.ExpectQuery("INSERT INTO leads").WillReturnError(boom)

	_, err = store.InsertCandidates(context.Background(), []lead.Candidate{{BusinessName: "x", City: "c", Category: "k"}})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCandidatesEmpty(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLeadStoreWithPool(mock, "")
	require.NoError(t, err)
	out, err := store.InsertCandidates(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func candidateColumns() []string {
	return []string{
		"id", "business_name", "address", "phone", "website", "email", "city", "category",
		"tech_stack", "raw_evidence", "ai_score", "ai_reason", "status", "created_at",
	}
}

func TestListCandidates(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLeadStoreWithPool(mock, "")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery(`(?s)SELECT .+FROM potential_leads`).
		WithArgs("pending", "Pune", 50).
		WillReturnRows(pgxmock.NewRows(candidateColumns()).
			AddRow("id-2", "Bright Teeth", strPtr("Baner, Pune"), nil, nil, nil, "Pune", "dentists",
				nil, []byte(`{"source":"directory"}`), 60, nil, "pending", now).
			AddRow("id-1", "Smile Dental", nil, strPtr("9876543210"), strPtr("https://smile.example"),
				strPtr("hi@smile.example"), "Pune", "dentists", strPtr("Wix"), []byte(`{"source":"browser"}`),
				90, strPtr("Wix site"), "pending", now.Add(-time.Hour)))

	got, err := store.ListCandidates(context.Background(), lead.ListFilter{Status: lead.StatusPending, City: "Pune"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Baner, Pune", got[0].Address)
	require.Empty(t, got[0].Phone)
	require.Equal(t, lead.SourceDirectory, got[0].RawEvidence.Source())
	require.Equal(t, "hi@smile.example", got[1].Email)
	require.Equal(t, "Wix", got[1].TechStack)
	require.Equal(t, 90, got[1].AIScore)
	require.Equal(t, "Wix site", got[1].AIReason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLeadStoreWithPool(mock, "")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("UPDATE potential_leads SET status").
		WithArgs("approved", "id-1").
		WillReturnRows(pgxmock.NewRows(candidateColumns()).
			AddRow("id-1", "Smile Dental", nil, nil, nil, nil, "Pune", "dentists",
				nil, nil, 70, nil, "approved", now))

	got, err := store.UpdateStatus(context.Background(), "id-1", lead.StatusApproved)
	require.NoError(t, err)
	require.Equal(t, lead.StatusApproved, got.Status)
	require.Nil(t, got.RawEvidence)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLeadStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectQuery("UPDATE potential_leads SET status").
		WithArgs("rejected", "missing").
		WillReturnRows(pgxmock.NewRows(candidateColumns()))
	_, err = store.UpdateStatus(context.Background(), "missing", lead.StatusRejected)
	require.ErrorIs(t, err, lead.ErrNotFound)

	mock.ExpectQuery("UPDATE potential_leads SET status").
		WithArgs("rejected", "not-a-uuid").
		WillReturnError(&pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"})
	_, err = store.UpdateStatus(context.Background(), "not-a-uuid", lead.StatusRejected)
	require.ErrorIs(t, err, lead.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLeadStoreWithPool(mock, "")
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS potential_leads").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewLeadStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewLeadStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewLeadStoreWithPool(mock, "leads; DROP TABLE x")
	require.Error(t, err)
}
