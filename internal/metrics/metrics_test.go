package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "nominatim.openstreetmap.org:443", "nominatim.openstreetmap.org"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := pipelineRunsTotal
	Init()

	if pipelineRunsTotal == nil || pipelineRunsTotal != first {
		t.Fatal("Init() did not keep a single set of collectors")
	}
}

func TestObserveHelpers(t *testing.T) {
	ObservePipelineRun("success")
	ObserveCandidates("directory", 3)
	ObserveCandidates("directory", 0)
	ObserveModelAttempt("vendor/a", "error")
	ObserveScored("heuristic", 4)
	ObserveStage("harvest", 2*time.Second)
	ObserveDeepVisit("ok")

	if val := testutil.ToFloat64(pipelineRunsTotal.WithLabelValues("success")); val != 1 {
		t.Errorf("expected 1 successful run, got %f", val)
	}
	if val := testutil.ToFloat64(candidatesTotal.WithLabelValues("directory")); val != 3 {
		t.Errorf("expected 3 directory candidates, got %f", val)
	}
	if val := testutil.ToFloat64(modelAttemptsTotal.WithLabelValues("vendor/a", "error")); val != 1 {
		t.Errorf("expected 1 failed attempt, got %f", val)
	}
	if val := testutil.ToFloat64(scoredCandidatesTotal.WithLabelValues("heuristic")); val != 4 {
		t.Errorf("expected 4 heuristic scores, got %f", val)
	}
	if val := testutil.CollectAndCount(pipelineStageSeconds); val != 1 {
		t.Errorf("expected one stage series, got %d", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://openrouter.ai/api/v1", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
