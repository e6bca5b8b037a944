package outreach

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadgen-pipeline/internal/ai"
	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
	"github.com/JakeFAU/leadgen-pipeline/pkg/openrouter"
)

type stubCompleter struct {
	content  string
	err      error
	messages []openrouter.Message
}

func (s *stubCompleter) Complete(_ context.Context, _ string, messages []openrouter.Message) (ai.Completion, error) {
	s.messages = messages
	if s.err != nil {
		return ai.Completion{}, s.err
	}
	return ai.Completion{Model: "stub", Content: s.content}, nil
}

var dentist = lead.Candidate{
	BusinessName: "Smile Dental",
	Category:     "dentists",
	Website:      "https://smile.example",
	TechStack:    "Wix",
	RawEvidence:  lead.Evidence{"rating": "4.6"},
}

func TestGenerateEmailJSON(t *testing.T) {
	t.Parallel()

	stub := &stubCompleter{content: "```json\n{\"subject\":\"faster site?\",\"content\":\"Hi Smile Dental...\"}\n```"}
	d, err := New(stub, "", nil).Generate(context.Background(), dentist, KindEmail)
	require.NoError(t, err)
	assert.Equal(t, Draft{Subject: "faster site?", Content: "Hi Smile Dental..."}, d)

	require.Len(t, stub.messages, 2)
	assert.Equal(t, emailSystem, stub.messages[0].Content)
	user := stub.messages[1].Content
	assert.Contains(t, user, "Write a cold email to Smile Dental, a dentists.")
	assert.Contains(t, user, "Has Website: Yes")
	assert.Contains(t, user, "Tech Stack: Wix")
	assert.Contains(t, user, "Rating: 4.6.")
}

func TestGenerateCallPlainTextFallback(t *testing.T) {
	t.Parallel()

	stub := &stubCompleter{content: "  Opener: Hi, is this the owner?  "}
	d, err := New(stub, "", nil).Generate(context.Background(), lead.Candidate{}, KindCall)
	require.NoError(t, err)
	assert.Equal(t, Draft{Content: "Opener: Hi, is this the owner?"}, d)

	user := stub.messages[1].Content
	assert.Contains(t, user, "cold call script for Business, a Business.")
	assert.Contains(t, user, "Website Status: Missing")
	assert.Contains(t, user, "Tech: Unknown")
}

func TestGenerateChainFailure(t *testing.T) {
	t.Parallel()

	_, err := New(&stubCompleter{err: ai.ErrNoCompletion}, "", nil).Generate(context.Background(), dentist, KindEmail)
	require.ErrorIs(t, err, ai.ErrNoCompletion)
}

func TestGenerateWithoutCompleter(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "", nil).Generate(context.Background(), dentist, KindCall)
	require.ErrorIs(t, err, ai.ErrNoCompletion)
}

func TestGenerateInvalidKind(t *testing.T) {
	t.Parallel()

	_, err := New(&stubCompleter{}, "", nil).Generate(context.Background(), dentist, Kind("sms"))
	require.ErrorIs(t, err, ErrInvalidKind)
}

func TestParseDraft(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Draft{Subject: DefaultSubject, Content: "just text"}, ParseDraft("just text", KindEmail))
	assert.Equal(t, Draft{Content: "script"}, ParseDraft(`{"subject":"x","content":"script"}`, KindCall))
	assert.Equal(t, Draft{Subject: DefaultSubject, Content: `{"subject":"only"}`}, ParseDraft(`{"subject":"only"}`, KindEmail))
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	k, err := ParseKind(" Email ")
	require.NoError(t, err)
	assert.Equal(t, KindEmail, k)
	_, err = ParseKind("fax")
	require.ErrorIs(t, err, ErrInvalidKind)
}
