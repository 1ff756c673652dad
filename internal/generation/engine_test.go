package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tutord/internal/session"
	"github.com/fyrsmithlabs/tutord/internal/telemetry"
)

func TestEngine_Generate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	gen := &scripted{reply: func(context.Context, Prompt) (string, error) {
		return "### Answer: は marks the topic.", nil
	}}
	e := NewEngine(gen, EngineConfig{}, nil, nil)

	history := []session.Turn{{Role: session.RoleUser, Text: "hi"}}
	a := e.Generate(ctx, []string{"ctx"}, history, "What is は?")

	assert.Equal(t, "は marks the topic.", a.Text)
	assert.Equal(t, "scripted", a.Generator)
	assert.False(t, a.Failed)
	assert.False(t, a.Mock)
	assert.Contains(t, gen.last().User, "User: hi")
}

func TestEngine_GenerateFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply func(ctx context.Context, p Prompt) (string, error)
	}{
		{"error", func(context.Context, Prompt) (string, error) { return "", errors.New("503 from upstream") }},
		{"blank", func(context.Context, Prompt) (string, error) { return "  \n ", nil }},
		{"timeout", func(ctx context.Context, _ Prompt) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tel := telemetry.NewTestTelemetry()
			metrics := NewMetrics(tel.Meter("test"), nil)

			e := NewEngine(&scripted{reply: tt.reply}, EngineConfig{RequestTimeout: 20 * time.Millisecond}, nil, metrics)
			a := e.Generate(context.Background(), []string{"ctx"}, nil, "q")

			assert.True(t, a.Failed)
			assert.Equal(t, Apology, a.Text)
			assert.Equal(t, int64(1), tel.Sum(t, "tutord.generation.failures_total"))
		})
	}
}

func TestEngine_Reformulate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	gen := &scripted{reply: func(_ context.Context, p Prompt) (string, error) {
		require.Equal(t, KindReformulate, p.Kind)
		return "How do I conjugate 食べる?", nil
	}}
	e := NewEngine(gen, EngineConfig{}, nil, nil)

	out, err := e.Reformulate(ctx, []session.Turn{{Role: session.RoleUser, Text: "食べる"}}, "conjugate it")
	require.NoError(t, err)
	assert.Equal(t, "How do I conjugate 食べる?", out)

	failing := NewEngine(&scripted{reply: func(context.Context, Prompt) (string, error) {
		return "", errors.New("boom")
	}}, EngineConfig{}, nil, nil)
	_, err = failing.Reformulate(ctx, nil, "q")
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestEngine_MockFlags(t *testing.T) {
	t.Parallel()

	e := NewEngine(NewMockGenerator(0), EngineConfig{}, nil, nil)
	assert.True(t, e.IsMock())
	assert.Equal(t, "mock", e.Name())

	a := e.Generate(context.Background(), nil, nil, "q")
	assert.True(t, a.Mock)
	assert.False(t, a.Failed)
	assert.Equal(t, NoAnswerMarker, a.Text)
	require.NoError(t, e.Close())
}
