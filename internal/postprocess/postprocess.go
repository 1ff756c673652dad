// Package postprocess derives structured signals from a generated answer:
// sources, confidence, grammar topics, vocabulary, recommendations, JLPT
// level and query context. It never calls a model.
package postprocess

import (
	"strings"

	"github.com/fyrsmithlabs/tutord/internal/generation"
	"github.com/fyrsmithlabs/tutord/internal/ingest"
	"github.com/fyrsmithlabs/tutord/internal/vectorstore"
)

// UserContext describes the learner asking.
type UserContext struct {
	Level string `json:"level,omitempty"` // N5..N1 or beginner/intermediate/advanced
	Role  string `json:"role,omitempty"`  // student or teacher
}

// Flags record which pipeline stages ran for real.
type Flags struct {
	MockEmbeddings   bool
	MockGenerator    bool
	GenerationFailed bool
}

// Input is everything Process looks at.
type Input struct {
	Text    string
	Results []vectorstore.Result
	Flags   Flags
	Query   string
	User    UserContext
}

// Source references one retrieved chunk.
type Source struct {
	DocumentID string  `json:"document_id,omitempty"`
	ChunkID    string  `json:"chunk_id"`
	Origin     string  `json:"origin,omitempty"`
	Title      string  `json:"title,omitempty"`
	Section    string  `json:"section,omitempty"`
	Score      float32 `json:"score"`
}

// Vocabulary is one term with its reading.
type Vocabulary struct {
	Word    string `json:"word"`
	Reading string `json:"reading"`
	Meaning string `json:"meaning,omitempty"`
}

// QueryContext classifies the request.
type QueryContext struct {
	QueryType       string `json:"query_type"`
	DifficultyLevel string `json:"difficulty_level"`
}

// Output is the structured result.
type Output struct {
	Sources         []Source     `json:"sources"`
	Confidence      float64      `json:"confidence"`
	GrammarPoints   []string     `json:"grammar_points"`
	Vocabulary      []Vocabulary `json:"vocabulary"`
	Recommendations []string     `json:"recommendations"`
	JLPTLevel       string       `json:"jlpt_level,omitempty"`
	Context         QueryContext `json:"context"`
	// GrammarTopic and VocabularyTopic are the leading grammar point and
	// vocabulary word, for callers that store a single topic per message.
	GrammarTopic    string `json:"grammar_topic,omitempty"`
	VocabularyTopic string `json:"vocabulary_topic,omitempty"`
}

// ConfidencePolicy is the confidence reported for grounded answers. It is a
// fixed policy value, not a measured quality.
type ConfidencePolicy struct {
	Grounded float64
}

// DefaultConfidence grounds answers at 0.85.
var DefaultConfidence = ConfidencePolicy{Grounded: 0.85}

// Processor runs the extraction. It holds no mutable state.
type Processor struct {
	policy ConfidencePolicy
}

// New creates a Processor. A Grounded value outside (0,1] uses the default.
func New(policy ConfidencePolicy) *Processor {
	if policy.Grounded <= 0 || policy.Grounded > 1 {
		policy = DefaultConfidence
	}
	return &Processor{policy: policy}
}

// Process derives every signal from in.
func (p *Processor) Process(in Input) Output {
	out := Output{
		Sources:       sources(in.Results),
		Confidence:    p.confidence(in),
		GrammarPoints: GrammarPoints(in.Query + "\n" + in.Text),
		Vocabulary:    ExtractVocabulary(in.Text),
		JLPTLevel:     JLPTLevel(in.Text, in.User.Level),
		Context: QueryContext{
			QueryType:       QueryType(in.Query),
			DifficultyLevel: Difficulty(in.User.Level),
		},
	}
	out.Recommendations = Recommendations(out.GrammarPoints, in.User)
	if len(out.GrammarPoints) > 0 {
		out.GrammarTopic = out.GrammarPoints[0]
	}
	if len(out.Vocabulary) > 0 {
		out.VocabularyTopic = out.Vocabulary[0].Word
	}
	return out
}

// confidence is the grounded value only when real embeddings and real
// generation produced an answer over non-empty context that did not
// decline.
func (p *Processor) confidence(in Input) float64 {
	switch {
	case in.Flags.MockEmbeddings, in.Flags.MockGenerator, in.Flags.GenerationFailed:
		return 0
	case len(in.Results) == 0:
		return 0
	case strings.Contains(strings.ToUpper(in.Text), generation.NoAnswerMarker):
		return 0
	}
	return p.policy.Grounded
}

func sources(results []vectorstore.Result) []Source {
	out := make([]Source, 0, len(results))
	for _, r := range results {
		md := r.Metadata
		var section []string
		for _, key := range []string{"h3", "h4"} {
			if v := md[key]; v != "" {
				section = append(section, v)
			}
		}
		out = append(out, Source{
			DocumentID: md[ingest.MetaDocumentID],
			ChunkID:    r.ID,
			Origin:     md[ingest.MetaOrigin],
			Title:      md["lesson"],
			Section:    strings.Join(section, " > "),
			Score:      r.Score,
		})
	}
	return out
}
