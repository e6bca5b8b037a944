// Package ai walks an ordered list of chat-completion models until one of
// them answers.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadgen-pipeline/internal/metrics"
	"github.com/JakeFAU/leadgen-pipeline/pkg/openrouter"
)

// ErrNoCompletion is returned when every model in the chain failed.
var ErrNoCompletion = errors.New("failed to generate AI response from all available models")

// Provider describes one model in the chain.
type Provider struct {
	Model string
	Tags  []string
}

// Completion is a successful answer and the model that produced it.
type Completion struct {
	Model   string
	Content string
}

// Completer produces a completion for a conversation. An empty preferred
// model means the chain's configured default.
type Completer interface {
	Complete(ctx context.Context, preferred string, messages []openrouter.Message) (Completion, error)
}

// Chain implements Completer over an openrouter.Client.
type Chain struct {
	client    openrouter.Client
	preferred string
	providers []Provider
	timeout   time.Duration
	logger    *zap.Logger
}

// NewChain builds a Chain. timeout bounds each attempt; zero disables it.
func NewChain(client openrouter.Client, preferred string, providers []Provider, timeout time.Duration, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		client:    client,
		preferred: preferred,
		providers: providers,
		timeout:   timeout,
		logger:    logger,
	}
}

// Models returns the attempt order for preferred: the preferred model first,
// then every configured provider, without repeats.
func (c *Chain) Models(preferred string) []string {
	if preferred == "" {
		preferred = c.preferred
	}
	seen := make(map[string]struct{}, len(c.providers)+1)
	out := make([]string, 0, len(c.providers)+1)
	add := func(m string) {
		m = strings.TrimSpace(m)
		if m == "" {
			return
		}
		if _, ok := seen[m]; ok {
			return
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	add(preferred)
	for _, p := range c.providers {
		add(p.Model)
	}
	return out
}

// Complete tries each model in order and returns the first non-empty answer.
func (c *Chain) Complete(ctx context.Context, preferred string, messages []openrouter.Message) (Completion, error) {
	for _, model := range c.Models(preferred) {
		if err := ctx.Err(); err != nil {
			return Completion{}, fmt.Errorf("%w: %w", ErrNoCompletion, err)
		}
		content, err := c.attempt(ctx, model, messages)
		if err != nil {
			metrics.ObserveModelAttempt(model, "error")
			c.logger.Warn("model attempt failed", zap.String("model", model), zap.Error(err))
			continue
		}
		if strings.TrimSpace(content) == "" {
			metrics.ObserveModelAttempt(model, "empty")
			c.logger.Warn("model returned empty content", zap.String("model", model))
			continue
		}
		metrics.ObserveModelAttempt(model, "ok")
		c.logger.Debug("model attempt succeeded", zap.String("model", model))
		return Completion{Model: model, Content: content}, nil
	}
	return Completion{}, ErrNoCompletion
}

func (c *Chain) attempt(ctx context.Context, model string, messages []openrouter.Message) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.client.ChatCompletion(ctx, openrouter.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	return resp.Content(), nil
}
