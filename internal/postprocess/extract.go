package postprocess

import (
	"regexp"
	"strings"
)

// vocabularyPattern matches a Japanese term, a parenthesized reading in
// ASCII or full-width brackets, and an optional meaning after "-" or ":".
var vocabularyPattern = regexp.MustCompile(
	`([\p{Han}\p{Hiragana}\p{Katakana}ー]+)\**\s*[（(]\s*([^()（）\n]+?)\s*[)）](?:\s*[-–:：]\s*([^\n,;.。]+))?`)

var jlptPattern = regexp.MustCompile(`\bN[1-5]\b`)

// ExtractVocabulary returns each distinct term with a reading in text, in
// order of first appearance.
func ExtractVocabulary(text string) []Vocabulary {
	out := []Vocabulary{}
	seen := map[string]bool{}
	for _, m := range vocabularyPattern.FindAllStringSubmatch(text, -1) {
		word := m[1]
		if seen[word] {
			continue
		}
		seen[word] = true
		out = append(out, Vocabulary{
			Word:    word,
			Reading: strings.TrimSpace(m[2]),
			Meaning: strings.TrimRight(strings.TrimSpace(m[3]), ".*"),
		})
	}
	return out
}

// JLPTLevel returns the first N1..N5 mention in text, else userLevel when it
// is a JLPT level, else "".
func JLPTLevel(text, userLevel string) string {
	if m := jlptPattern.FindString(text); m != "" {
		return m
	}
	if lvl := strings.ToUpper(strings.TrimSpace(userLevel)); jlptPattern.MatchString(lvl) && len(lvl) == 2 {
		return lvl
	}
	return ""
}

// queryTypes are tried in order; the first keyword hit wins.
var queryTypes = []struct {
	name     string
	keywords []string
}{
	{"conjugation", []string{"conjugat", "活用"}},
	{"comparison", []string{"difference", "compare", "versus", " vs ", " vs.", "違い"}},
	{"translation", []string{"translate", "translation", "what does", "mean", "意味"}},
	{"example", []string{"example", "例"}},
	{"practice", []string{"practice", "exercise", "quiz", "練習"}},
	{"explanation", []string{"explain", "why", "how does", "how do", "what is", "説明"}},
}

// QueryType classifies a query by keywords. Unmatched queries are
// "question".
func QueryType(query string) string {
	lower := " " + strings.ToLower(query) + " "
	for _, qt := range queryTypes {
		for _, kw := range qt.keywords {
			if strings.Contains(lower, kw) {
				return qt.name
			}
		}
	}
	return "question"
}

// Difficulty maps a learner level to beginner, intermediate or advanced.
func Difficulty(level string) string {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "N5", "N4", "BEGINNER":
		return "beginner"
	case "N3", "INTERMEDIATE":
		return "intermediate"
	case "N2", "N1", "ADVANCED":
		return "advanced"
	}
	return "intermediate"
}
