package brain

import (
	"context"
	"fmt"
	"sync/atomic"
)

// NewFailoverGenerator builds a Generator that prefers primary and
// automatically switches to fallback when primary fails. Once fallback
// succeeds it stays active until fallback fails; then primary is retried.
func NewFailoverGenerator(primary, fallback Generator, onFallback func()) Generator {
	return &failoverGenerator{
		primary:    primary,
		fallback:   fallback,
		onFallback: onFallback,
	}
}

type failoverGenerator struct {
	primary        Generator
	fallback       Generator
	fallbackActive atomic.Bool
	onFallback     func()
}

func (g *failoverGenerator) Name() string {
	if g.fallbackActive.Load() {
		return g.fallback.Name()
	}
	return g.primary.Name()
}

func (g *failoverGenerator) Generate(ctx context.Context, systemPrompt string, history []Message) (string, error) {
	if g.fallbackActive.Load() {
		reply, fbErr := g.generateFallback(ctx, systemPrompt, history)
		if fbErr == nil {
			return reply, nil
		}
		// Fallback failed after being active; try primary again.
		reply, prErr := g.primary.Generate(ctx, systemPrompt, history)
		if prErr == nil {
			g.fallbackActive.Store(false)
			return reply, nil
		}
		return "", fmt.Errorf("fallback failed: %v; primary failed: %w", fbErr, prErr)
	}

	reply, prErr := g.primary.Generate(ctx, systemPrompt, history)
	if prErr == nil {
		return reply, nil
	}

	reply, fbErr := g.generateFallback(ctx, systemPrompt, history)
	if fbErr != nil {
		return "", fmt.Errorf("primary failed: %v; fallback failed: %w", prErr, fbErr)
	}
	g.fallbackActive.Store(true)
	return reply, nil
}

func (g *failoverGenerator) generateFallback(ctx context.Context, systemPrompt string, history []Message) (string, error) {
	reply, err := g.fallback.Generate(ctx, systemPrompt, history)
	if err == nil && g.onFallback != nil {
		g.onFallback()
	}
	return reply, err
}
