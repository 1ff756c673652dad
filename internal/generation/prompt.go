package generation

import (
	"strings"

	"github.com/fyrsmithlabs/tutord/internal/session"
)

const (
	// SystemInstruction is the tutor persona.
	SystemInstruction = "You are a japanese language teacher."

	// NoAnswerMarker is what the model must say when the context does not
	// hold the answer.
	NoAnswerMarker = "NO ANSWER IS AVAILABLE"

	// ContextSeparator joins chunk texts in the context block.
	ContextSeparator = "\n----------\n"

	// Apology is returned in place of an answer when generation fails.
	Apology = "I'm sorry, I couldn't generate an answer right now. Please try asking again in a moment."

	reformulateInstruction = `Given a chat history and the latest user question which might reference context in the chat history, formulate a standalone question which can be understood without the chat history. Do NOT answer the question, just reformulate it if needed and otherwise return it as is.`
)

// PromptKind tells answer prompts from reformulation prompts.
type PromptKind int

const (
	KindAnswer PromptKind = iota
	KindReformulate
)

// Prompt is a rendered system and user message pair. Context and Query keep
// the raw inputs for generators that do not call a model.
type Prompt struct {
	Kind    PromptKind
	System  string
	User    string
	Context []string
	Query   string
}

// BuildAnswerPrompt renders the grounded answer prompt.
func BuildAnswerPrompt(chunks []string, history []session.Turn, query string) Prompt {
	var sb strings.Builder
	sb.WriteString("Answer the next question using the provided context\n")
	sb.WriteString("If the answer is not contained in the context, say '" + NoAnswerMarker + "'\n")
	sb.WriteString("### Context:\n")
	sb.WriteString(strings.Join(chunks, ContextSeparator))
	sb.WriteString("\n\n### Chat History\n")
	sb.WriteString(renderHistory(history))
	sb.WriteString("\n\n### Question:\n")
	sb.WriteString(query)
	sb.WriteString("\n\n### Answer:")

	return Prompt{
		Kind:    KindAnswer,
		System:  SystemInstruction,
		User:    sb.String(),
		Context: append([]string(nil), chunks...),
		Query:   query,
	}
}

// BuildReformulationPrompt renders the prompt that rewrites query into a
// standalone question.
func BuildReformulationPrompt(history []session.Turn, query string) Prompt {
	var sb strings.Builder
	sb.WriteString("Chat history:\n")
	sb.WriteString(renderHistory(history))
	sb.WriteString("\n\nLatest question:\n")
	sb.WriteString(query)
	sb.WriteString("\n\nStandalone question:")

	return Prompt{
		Kind:   KindReformulate,
		System: reformulateInstruction,
		User:   sb.String(),
		Query:  query,
	}
}

func renderHistory(history []session.Turn) string {
	lines := make([]string, 0, len(history))
	for _, t := range history {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		switch t.Role {
		case session.RoleAssistant:
			lines = append(lines, "Assistant: "+text)
		default:
			lines = append(lines, "User: "+text)
		}
	}
	return strings.Join(lines, "\n")
}
