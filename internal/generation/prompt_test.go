package generation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/tutord/internal/session"
)

func TestBuildAnswerPrompt(t *testing.T) {
	t.Parallel()

	history := []session.Turn{
		{Role: session.RoleUser, Text: "What does は mark?"},
		{Role: session.RoleAssistant, Text: "The topic."},
	}
	p := BuildAnswerPrompt([]string{"chunk one", "chunk two"}, history, "And が?")

	assert.Equal(t, KindAnswer, p.Kind)
	assert.Equal(t, SystemInstruction, p.System)
	assert.Equal(t, []string{"chunk one", "chunk two"}, p.Context)
	assert.Equal(t, "And が?", p.Query)

	assert.Contains(t, p.User, "say '"+NoAnswerMarker+"'")
	assert.Contains(t, p.User, "chunk one"+ContextSeparator+"chunk two")
	assert.Contains(t, p.User, "User: What does は mark?\nAssistant: The topic.")

	// Sections appear in a fixed order.
	order := []string{"### Context:", "### Chat History", "### Question:", "### Answer:"}
	last := -1
	for _, heading := range order {
		idx := strings.Index(p.User, heading)
		assert.Greater(t, idx, last, heading)
		last = idx
	}
	assert.True(t, strings.HasSuffix(p.User, "### Answer:"))
}

func TestBuildAnswerPrompt_EmptyContext(t *testing.T) {
	t.Parallel()

	p := BuildAnswerPrompt(nil, nil, "What is keigo?")
	assert.Contains(t, p.User, "### Context:\n\n\n### Chat History")
	assert.Empty(t, p.Context)
}

func TestBuildReformulationPrompt(t *testing.T) {
	t.Parallel()

	history := []session.Turn{
		{Role: session.RoleUser, Text: "Tell me about 食べる"},
		{Role: session.RoleAssistant, Text: "It means to eat."},
		{Role: session.RoleUser, Text: "   "},
	}
	p := BuildReformulationPrompt(history, "How do I conjugate it?")

	assert.Equal(t, KindReformulate, p.Kind)
	assert.Contains(t, p.System, "standalone question")
	assert.Contains(t, p.System, "Do NOT answer the question")
	assert.Contains(t, p.User, "User: Tell me about 食べる\nAssistant: It means to eat.\n\n")
	assert.Contains(t, p.User, "How do I conjugate it?")
	assert.Equal(t, "How do I conjugate it?", p.Query)
}

func TestCleanCompletion(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"  answer  ":                      "answer",
		"### Answer: は marks the topic":   "は marks the topic",
		"Standalone question: conjugate?": "conjugate?",
		"":                                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanCompletion(in), in)
	}
}
