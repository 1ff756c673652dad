package generation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGenerator(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := NewMockGenerator(3)

	assert.True(t, g.IsMock())
	assert.Equal(t, 3, g.Priority())
	require.NoError(t, g.Available(ctx))

	out, err := g.Complete(ctx, BuildAnswerPrompt([]string{" ", "は marks the topic."}, nil, "What is は?"))
	require.NoError(t, err)
	assert.Contains(t, out, "は marks the topic.")

	out, err = g.Complete(ctx, BuildAnswerPrompt(nil, nil, "What is は?"))
	require.NoError(t, err)
	assert.Equal(t, NoAnswerMarker, out)

	out, err = g.Complete(ctx, BuildReformulationPrompt(nil, "conjugate it"))
	require.NoError(t, err)
	assert.Equal(t, "conjugate it", out)
}

func TestMockGenerator_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMockGenerator(0).Complete(ctx, BuildAnswerPrompt(nil, nil, "q"))
	assert.ErrorIs(t, err, context.Canceled)
}
