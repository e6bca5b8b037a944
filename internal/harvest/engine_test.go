package harvest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
)

type fakeSession struct {
	mu        sync.Mutex
	listings  []lead.Listing
	searchErr error
	pages     map[string]lead.Page
	visitErr  map[string]error
	block     map[string]bool
	visited   []string
	queries   []string
	closed    int
}

func (s *fakeSession) Search(_ context.Context, query string, _ int) ([]lead.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	return s.listings, s.searchErr
}

func (s *fakeSession) Visit(ctx context.Context, url string) (lead.Page, error) {
	s.mu.Lock()
	s.visited = append(s.visited, url)
	blocked := s.block[url]
	err := s.visitErr[url]
	page := s.pages[url]
	s.mu.Unlock()
	if blocked {
		<-ctx.Done()
		return lead.Page{}, ctx.Err()
	}
	if err != nil {
		return lead.Page{}, err
	}
	return page, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

type fakeLauncher struct {
	session *fakeSession
	err     error
}

func (l *fakeLauncher) Launch(context.Context) (lead.PageSession, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}

func query(limit int) lead.Query {
	return lead.Query{City: "Pune", Category: "dentists", Limit: limit}
}

func TestHarvestMapsListingsToCandidates(t *testing.T) {
	t.Parallel()

	session := &fakeSession{listings: []lead.Listing{
		{Name: "Smile Dental", Rating: "4.5", Phone: "+91 98765 43210", Address: "FC Road", Snippet: "Open now"},
		{Name: "Smile Dental", Rating: "4.1"},
		{Name: "Bright Teeth"},
	}}
	e := New(&fakeLauncher{session: session}, nil, Config{DeepVisitMax: 5}, zap.NewNop())

	got, err := e.Harvest(context.Background(), query(5))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, []string{"dentists in Pune"}, session.queries)
	require.Equal(t, 1, session.closed)

	first := got[0]
	require.Equal(t, "Smile Dental", first.BusinessName)
	require.Equal(t, "Pune", first.City)
	require.Equal(t, "dentists", first.Category)
	require.Equal(t, lead.DefaultScore, first.AIScore)
	require.Equal(t, lead.StatusPending, first.Status)
	require.Equal(t, lead.SourceBrowser, first.RawEvidence.Source())
	require.Equal(t, "4.5", first.RawEvidence["rating"])
	require.Equal(t, "Open now", first.RawEvidence.Snippet())
	require.Equal(t, "dentists in Pune", first.RawEvidence["query"])
}

func TestHarvestTruncatesToLimit(t *testing.T) {
	t.Parallel()

	listings := make([]lead.Listing, 0, 8)
	for i := range 8 {
		listings = append(listings, lead.Listing{Name: fmt.Sprintf("Clinic %d", i)})
	}
	e := New(&fakeLauncher{session: &fakeSession{listings: listings}}, nil, Config{}, nil)

	got, err := e.Harvest(context.Background(), query(3))
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestHarvestLaunchError(t *testing.T) {
	t.Parallel()

	boom := errors.New("no chrome")
	e := New(&fakeLauncher{err: boom}, nil, Config{}, nil)
	_, err := e.Harvest(context.Background(), query(5))
	require.ErrorIs(t, err, boom)
}

func TestHarvestSearchErrorClosesSession(t *testing.T) {
	t.Parallel()

	session := &fakeSession{searchErr: errors.New("feed missing")}
	e := New(&fakeLauncher{session: session}, nil, Config{}, nil)
	_, err := e.Harvest(context.Background(), query(5))
	require.Error(t, err)
	require.Equal(t, 1, session.closed)
}

func TestHarvestDeepVisitFillsOnlyEmptyFields(t *testing.T) {
	t.Parallel()

	session := &fakeSession{
		listings: []lead.Listing{
			{Name: "Has Phone", Phone: "020 2553 1234", Website: "https://hasphone.example"},
			{Name: "No Phone", Website: "https://nophone.example"},
			{Name: "No Site"},
		},
		pages: map[string]lead.Page{
			"https://hasphone.example": {
				URL:  "https://hasphone.example/",
				HTML: `<html><body><script src="/_next/static/app.js"></script></body></html>`,
				Text: "Reach us at 98765 43210 or care@hasphone.example",
			},
			"https://nophone.example": {
				URL:  "https://nophone.example/",
				HTML: `<html><body><a href="tel:+919812345678">Call</a><a href="mailto:desk@nophone.example">Mail</a><link href="/wp-content/x.css"></body></html>`,
			},
		},
	}
	e := New(&fakeLauncher{session: session}, nil, Config{DeepVisitMax: 5, VisitTimeout: time.Second}, nil)

	got, err := e.Harvest(context.Background(), query(5))
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.ElementsMatch(t, []string{"https://hasphone.example", "https://nophone.example"}, session.visited)

	require.Equal(t, "020 2553 1234", got[0].Phone)
	require.Equal(t, "care@hasphone.example", got[0].Email)
	require.Equal(t, "Next.js", got[0].TechStack)
	require.Equal(t, "https://hasphone.example/", got[0].RawEvidence["visited_url"])

	require.Equal(t, "+919812345678", got[1].Phone)
	require.Equal(t, "desk@nophone.example", got[1].Email)
	require.Equal(t, "WordPress", got[1].TechStack)

	require.Empty(t, got[2].Email)
	require.Empty(t, got[2].TechStack)
}

func TestHarvestDeepVisitCapAndFailures(t *testing.T) {
	t.Parallel()

	listings := make([]lead.Listing, 0, 8)
	for i := range 8 {
		listings = append(listings, lead.Listing{
			Name:    fmt.Sprintf("Clinic %d", i),
			Website: fmt.Sprintf("https://clinic%d.example", i),
		})
	}
	session := &fakeSession{
		listings: listings,
		visitErr: map[string]error{"https://clinic0.example": errors.New("dns")},
		block:    map[string]bool{"https://clinic1.example": true},
		pages: map[string]lead.Page{
			"https://clinic2.example": {Text: "mail front@clinic2.example"},
		},
	}
	e := New(&fakeLauncher{session: session}, nil, Config{DeepVisitMax: 5, VisitTimeout: 20 * time.Millisecond}, nil)

	got, err := e.Harvest(context.Background(), query(8))
	require.NoError(t, err)
	require.Len(t, got, 8)
	require.Len(t, session.visited, 5)
	require.Empty(t, got[0].Email)
	require.Empty(t, got[1].Email)
	require.Equal(t, "front@clinic2.example", got[2].Email)
}

func TestHarvestUsesVisitorOverride(t *testing.T) {
	t.Parallel()

	session := &fakeSession{listings: []lead.Listing{{Name: "Smile", Website: "https://smile.example"}}}
	override := &fakeSession{pages: map[string]lead.Page{
		"https://smile.example": {Text: "hi@smile.example"},
	}}
	e := New(&fakeLauncher{session: session}, override, Config{DeepVisitMax: 5}, nil)

	got, err := e.Harvest(context.Background(), query(5))
	require.NoError(t, err)
	require.Empty(t, session.visited)
	require.Equal(t, []string{"https://smile.example"}, override.visited)
	require.Equal(t, "hi@smile.example", got[0].Email)
}

func TestHarvestZeroDeepVisits(t *testing.T) {
	t.Parallel()

	session := &fakeSession{listings: []lead.Listing{{Name: "Smile", Website: "https://smile.example"}}}
	e := New(&fakeLauncher{session: session}, nil, Config{DeepVisitMax: 0}, nil)

	_, err := e.Harvest(context.Background(), query(5))
	require.NoError(t, err)
	require.Empty(t, session.visited)
}
