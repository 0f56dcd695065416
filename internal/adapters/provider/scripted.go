package provider

import (
	"context"
	"strings"
	"time"

	"github.com/taskweave/taskweave/internal/core"
)

// Scripted is a deterministic provider for dry runs and tests: it
// echoes a transformation of the prompt and charges a fixed per-token
// rate. No network, no real inference.
type Scripted struct {
	name        string
	latency     time.Duration
	costPerTok  float64
	transformer func(prompt string) string
}

// ScriptedOption configures a Scripted provider.
type ScriptedOption func(*Scripted)

// WithLatency simulates invocation latency.
func WithLatency(d time.Duration) ScriptedOption {
	return func(s *Scripted) {
		s.latency = d
	}
}

// WithCostPerToken sets the simulated spend rate.
func WithCostPerToken(rate float64) ScriptedOption {
	return func(s *Scripted) {
		s.costPerTok = rate
	}
}

// WithTransformer overrides the output function.
func WithTransformer(fn func(prompt string) string) ScriptedOption {
	return func(s *Scripted) {
		s.transformer = fn
	}
}

// NewScripted creates a scripted provider with the given name.
func NewScripted(name string, opts ...ScriptedOption) *Scripted {
	s := &Scripted{
		name:       name,
		costPerTok: 0.00001,
		transformer: func(prompt string) string {
			return "[" + name + "] " + prompt
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements core.Provider.
func (s *Scripted) Name() string { return s.name }

// Invoke implements core.Provider. Token count approximates one token
// per whitespace-separated word of prompt plus output.
func (s *Scripted) Invoke(ctx context.Context, req core.InvokeRequest) (*core.InvokeResult, error) {
	started := time.Now()
	if s.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.latency):
		}
	}

	output := s.transformer(req.Prompt)
	tokens := int64(len(strings.Fields(req.Prompt)) + len(strings.Fields(output)))
	return &core.InvokeResult{
		Output:   output,
		CostUSD:  float64(tokens) * s.costPerTok,
		Tokens:   tokens,
		Duration: time.Since(started),
	}, nil
}
