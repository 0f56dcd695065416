package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskweave/taskweave/internal/core"
)

func TestRegistry_GetAndList(t *testing.T) {
	reg := NewRegistry([]core.Provider{
		NewScripted("openai"),
		NewScripted("google"),
	})

	p, err := reg.Get("openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = reg.Get("missing")
	require.Error(t, err)
	assert.Equal(t, core.ErrCatNotFound, core.GetCategory(err))

	assert.Equal(t, []string{"google", "openai"}, reg.List())
}

func TestRegistry_Ceilings(t *testing.T) {
	reg := NewRegistry(
		[]core.Provider{NewScripted("openai")},
		WithCeilings(map[string]int{"openai": 2}),
		WithDefaultCeiling(8),
	)

	assert.Equal(t, 2, reg.Ceiling("openai"))
	assert.Equal(t, 8, reg.Ceiling("anything-else"))
}

func TestScripted_Invoke(t *testing.T) {
	p := NewScripted("echo", WithCostPerToken(0.01))

	res, err := p.Invoke(context.Background(), core.InvokeRequest{Prompt: "two words"})
	require.NoError(t, err)
	assert.Equal(t, "[echo] two words", res.Output)
	assert.Equal(t, int64(5), res.Tokens) // 2 prompt + 3 output
	assert.InDelta(t, 0.05, res.CostUSD, 1e-9)
}

func TestScripted_CancelledDuringLatency(t *testing.T) {
	p := NewScripted("slow", WithLatency(1e9))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Invoke(ctx, core.InvokeRequest{Prompt: "p"})
	require.Error(t, err)
}
