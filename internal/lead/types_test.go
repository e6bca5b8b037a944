package lead

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDedupeByNameKeepsFirstOccurrence(t *testing.T) {
	t.Parallel()

	in := make([]Candidate, 0, 12)
	for i := 0; i < 10; i++ {
		in = append(in, Candidate{BusinessName: fmt.Sprintf("Biz %d", i), Phone: fmt.Sprintf("first-%d", i)})
	}
	in = append(in,
		Candidate{BusinessName: "Biz 3", Phone: "dup"},
		Candidate{BusinessName: "Biz 7", Phone: "dup"},
	)

	out := DedupeByName(in)

	require.Len(t, out, 10)
	seen := map[string]bool{}
	for _, c := range out {
		require.False(t, seen[c.BusinessName], "duplicate %q", c.BusinessName)
		seen[c.BusinessName] = true
		require.NotEqual(t, "dup", c.Phone)
	}
}

func TestDedupeByNameIsCaseSensitive(t *testing.T) {
	t.Parallel()

	out := DedupeByName([]Candidate{{BusinessName: "Smile Dental"}, {BusinessName: "smile dental"}})
	require.Len(t, out, 2)
}

func TestCandidateHasPhone(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"":                false,
		"12345":           false,
		" 12345 ":         false,
		"123456":          true,
		"+91 98765 43210": true,
	}
	for phone, want := range cases {
		require.Equal(t, want, Candidate{Phone: phone}.HasPhone(), phone)
	}
}

func TestEvidenceAccessors(t *testing.T) {
	t.Parallel()

	var empty Evidence
	require.Empty(t, empty.Source())
	require.Nil(t, empty.Clone())

	ev := Evidence{EvidenceSourceKey: SourceDirectory, "snippet": "open late"}
	require.Equal(t, SourceDirectory, ev.Source())
	require.Equal(t, "open late", ev.Snippet())

	cp := ev.Clone()
	cp["snippet"] = "changed"
	require.Equal(t, "open late", ev.Snippet())
}

func TestStatusValid(t *testing.T) {
	t.Parallel()

	require.True(t, StatusPending.Valid())
	require.True(t, StatusApproved.Valid())
	require.True(t, StatusRejected.Valid())
	require.False(t, Status("archived").Valid())
}

func TestQuerySearchText(t *testing.T) {
	t.Parallel()

	require.Equal(t, "dentists in Pune", Query{City: "Pune", Category: "dentists"}.SearchText())
}
