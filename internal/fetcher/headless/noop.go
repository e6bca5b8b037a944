package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
)

// ErrBrowserDisabled is returned when no browser runtime is configured.
var ErrBrowserDisabled = errors.New("browser automation disabled")

// Noop is a launcher for deployments without a browser. Every launch fails,
// which sends the pipeline straight to its directory fallback.
type Noop struct{}

// NewNoop creates a new Noop launcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Launch always returns ErrBrowserDisabled.
func (Noop) Launch(_ context.Context) (lead.PageSession, error) {
	return nil, ErrBrowserDisabled
}
