// Package outreach drafts cold emails and call scripts for stored candidates.
package outreach

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadgen-pipeline/internal/ai"
	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
	"github.com/JakeFAU/leadgen-pipeline/pkg/openrouter"
)

// Kind selects the draft format.
type Kind string

// Supported draft kinds.
const (
	KindEmail Kind = "email"
	KindCall  Kind = "call"
)

// DefaultSubject is used when the model answers an email request with plain
// text instead of JSON.
const DefaultSubject = "Quick question about your website"

// ErrInvalidKind is returned for kinds other than email and call.
var ErrInvalidKind = errors.New("type must be email or call")

// Draft is a generated outreach message.
type Draft struct {
	Subject string `json:"subject,omitempty"`
	Content string `json:"content"`
}

const (
	emailSystem = "You are a world-class cold email copywriter. Write a short, punchy, " +
		"high-converting B2B cold email. Keep it under 150 words. No fluff."
	callSystem = "You are a top-tier sales development rep trainer. Write a cold calling " +
		"script that handles objections and books meetings."
)

var emailPrompt = template.Must(template.New("email").Parse(
	`Write a cold email to {{.Name}}, a {{.Category}}.

Context:
- Has Website: {{if .HasWebsite}}Yes{{else}}No{{end}} (If No, sell them a website).
- Tech Stack: {{.TechStack}} (If Wix or WordPress, sell a faster custom site. If Unknown, sell digital transformation).
- Rating: {{.Rating}}.

Structure:
- Subject Line: catchy, lower case
- Body: personalized hook, pain point based on known data, solution or offer, soft call to action.

Output Format: JSON {"subject": "...", "content": "..."}`))

var callPrompt = template.Must(template.New("call").Parse(
	`Write a cold call script for {{.Name}}, a {{.Category}}.

Context:
- Website Status: {{if .HasWebsite}}Active{{else}}Missing{{end}}
- Tech: {{.TechStack}}

Structure:
- Opener: permission based or pattern interrupt
- The Reason: why we are calling, something we noticed about their business
- Value Prop: how we help
- Common Objection Rebuttal: for example "We are happy with our current site"
- Closing: ask for a meeting

Output Format: JSON {"content": "..."} (put instructions for the salesperson in brackets [])`))

type promptData struct {
	Name       string
	Category   string
	HasWebsite bool
	TechStack  string
	Rating     string
}

// Generator implements draft generation over an ai.Completer.
type Generator struct {
	completer ai.Completer
	model     string
	logger    *zap.Logger
}

// New builds a Generator. An empty model uses the chain default. A nil
// completer fails every draft with ai.ErrNoCompletion.
func New(completer ai.Completer, model string, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{completer: completer, model: model, logger: logger}
}

// ParseKind validates a user-supplied kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindEmail, KindCall:
		return k, nil
	default:
		return "", ErrInvalidKind
	}
}

// Generate drafts a message of the given kind for c. Model chain failures are
// returned as-is (wrapping ai.ErrNoCompletion).
func (g *Generator) Generate(ctx context.Context, c lead.Candidate, kind Kind) (Draft, error) {
	system, tmpl := emailSystem, emailPrompt
	switch kind {
	case KindEmail:
	case KindCall:
		system, tmpl = callSystem, callPrompt
	default:
		return Draft{}, ErrInvalidKind
	}

	var prompt bytes.Buffer
	if err := tmpl.Execute(&prompt, dataFor(c)); err != nil {
		return Draft{}, fmt.Errorf("render %s prompt: %w", kind, err)
	}

	if g.completer == nil {
		return Draft{}, fmt.Errorf("generate %s: %w", kind, ai.ErrNoCompletion)
	}
	completion, err := g.completer.Complete(ctx, g.model, []openrouter.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt.String()},
	})
	if err != nil {
		return Draft{}, fmt.Errorf("generate %s: %w", kind, err)
	}
	g.logger.Info("outreach drafted",
		zap.String("kind", string(kind)),
		zap.String("business", c.BusinessName),
		zap.String("model", completion.Model),
	)
	return ParseDraft(completion.Content, kind), nil
}

// ParseDraft decodes the model's JSON answer. Anything that is not a JSON
// object with content becomes the draft body verbatim.
func ParseDraft(content string, kind Kind) Draft {
	var d Draft
	if err := json.Unmarshal([]byte(ai.StripFences(content)), &d); err == nil && strings.TrimSpace(d.Content) != "" {
		if kind != KindEmail {
			d.Subject = ""
		}
		return d
	}
	d = Draft{Content: strings.TrimSpace(content)}
	if kind == KindEmail {
		d.Subject = DefaultSubject
	}
	return d
}

func dataFor(c lead.Candidate) promptData {
	d := promptData{
		Name:       c.BusinessName,
		Category:   c.Category,
		HasWebsite: c.Website != "",
		TechStack:  c.TechStack,
		Rating:     "Unknown",
	}
	if d.Name == "" {
		d.Name = "Business"
	}
	if d.Category == "" {
		d.Category = "Business"
	}
	if d.TechStack == "" {
		d.TechStack = "Unknown"
	}
	if r, ok := c.RawEvidence["rating"]; ok {
		if s := strings.TrimSpace(fmt.Sprint(r)); s != "" {
			d.Rating = s
		}
	}
	return d
}
