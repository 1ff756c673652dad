package postprocess

import (
	"fmt"
	"strings"
)

// Concept groups grammar points for recommendations.
type Concept string

const (
	ConceptGrammar    Concept = "grammar"
	ConceptVocabulary Concept = "vocabulary"
	ConceptKanji      Concept = "kanji"
	ConceptGeneral    Concept = "general"
)

type grammarTerm struct {
	name     string
	concept  Concept
	keywords []string // lower case
}

// grammarTerms is the fixed topic vocabulary, in output order.
var grammarTerms = []grammarTerm{
	{"particle", ConceptGrammar, []string{"particle"}},
	{"verb conjugation", ConceptGrammar, []string{"conjugat", "活用"}},
	{"te-form", ConceptGrammar, []string{"te-form", "te form", "て-form", "て形", "てform"}},
	{"keigo", ConceptGrammar, []string{"keigo", "敬語", "honorific", "humble form"}},
	{"adjective", ConceptGrammar, []string{"adjective", "形容詞"}},
	{"tense", ConceptGrammar, []string{"tense"}},
	{"counter", ConceptVocabulary, []string{"counter", "助数詞"}},
	{"conditional", ConceptGrammar, []string{"conditional"}},
	{"passive", ConceptGrammar, []string{"passive", "受身"}},
	{"causative", ConceptGrammar, []string{"causative", "使役"}},
	{"potential form", ConceptGrammar, []string{"potential form", "potential verb", "可能形"}},
	{"kanji", ConceptKanji, []string{"kanji", "漢字"}},
}

// GrammarPoints returns the grammar topics mentioned in text, matched case
// insensitively, in vocabulary order.
func GrammarPoints(text string) []string {
	lower := strings.ToLower(text)
	out := []string{}
	for _, term := range grammarTerms {
		for _, kw := range term.keywords {
			if strings.Contains(lower, kw) {
				out = append(out, term.name)
				break
			}
		}
	}
	return out
}

// Classify returns the concept of a grammar point.
func Classify(point string) Concept {
	for _, term := range grammarTerms {
		if term.name == point {
			return term.concept
		}
	}
	return ConceptGeneral
}

// Recommendations suggests next steps from the grammar points and the
// learner's level and role. The result has no duplicates.
func Recommendations(points []string, user UserContext) []string {
	var out []string
	seen := map[string]bool{}
	add := func(items ...string) {
		for _, s := range items {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}

	for _, point := range points {
		switch Classify(point) {
		case ConceptGrammar:
			add(fmt.Sprintf("Review %s grammar rules", point),
				"Practice with more example sentences",
				"Try pattern recognition exercises")
		case ConceptVocabulary:
			add(fmt.Sprintf("Create flashcards for %s", point),
				"Practice using words in context",
				"Review word associations and mnemonics")
		case ConceptKanji:
			add(fmt.Sprintf("Practice writing %s characters", point),
				"Study radical patterns",
				"Use spaced repetition for memorization")
		}
	}
	if len(points) == 0 {
		add("Ask a follow-up question about a specific grammar point or word")
	}

	switch Difficulty(user.Level) {
	case "beginner":
		add("Start with basic concepts and build gradually")
	case "advanced":
		add("Read native material that uses these patterns")
	default:
		add("Focus on consistent practice")
	}
	if strings.EqualFold(user.Role, "teacher") && len(points) > 0 {
		add("Turn this explanation into a short class exercise")
	}
	return out
}
