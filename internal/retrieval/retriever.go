// Package retrieval implements history-aware retrieval: the query is first
// rewritten into a standalone question against the conversation history,
// then embedded and matched against the vector index.
//
// Every failure past input validation degrades to an empty result. The
// caller still generates, and the answer prompt's no-answer instruction
// keeps the reply honest.
package retrieval

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutord/internal/session"
	"github.com/fyrsmithlabs/tutord/internal/vectorstore"
)

var tracer = otel.Tracer("tutord.retrieval")

// ErrEmptyQuery is returned for a blank query.
var ErrEmptyQuery = errors.New("query cannot be empty")

// Embedder embeds search queries.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Reformulator rewrites a query against history. generation.Engine
// implements it.
type Reformulator interface {
	Reformulate(ctx context.Context, history []session.Turn, query string) (string, error)
	IsMock() bool
}

// Retrieval is the outcome of one Retrieve call.
type Retrieval struct {
	Original     string
	Query        string // the query that was embedded
	Reformulated bool
	Results      []vectorstore.Result
	// Degraded names why Results is empty when a stage failed.
	Degraded string
}

// Retriever reformulates, embeds and queries. Safe for concurrent use.
type Retriever struct {
	embedder     Embedder
	index        vectorstore.Index
	reformulator Reformulator
	topK         int
	logger       *zap.Logger
}

// New creates a Retriever. reformulator may be nil, which disables
// reformulation. topK <= 0 uses 3.
func New(embedder Embedder, index vectorstore.Index, reformulator Reformulator, topK int, logger *zap.Logger) *Retriever {
	if topK <= 0 {
		topK = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder:     embedder,
		index:        index,
		reformulator: reformulator,
		topK:         topK,
		logger:       logger,
	}
}

// TopK returns the configured result count.
func (r *Retriever) TopK() int { return r.topK }

// Reformulate returns a standalone form of query and whether a model
// rewrote it. Empty history, a mock or failing model, and blank output all
// return query unchanged.
func (r *Retriever) Reformulate(ctx context.Context, history []session.Turn, query string) (string, bool) {
	if len(history) == 0 || r.reformulator == nil || r.reformulator.IsMock() {
		return query, false
	}
	out, err := r.reformulator.Reformulate(ctx, history, query)
	if err != nil {
		r.logger.Warn("reformulation failed, using original query", zap.Error(err))
		return query, false
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return query, false
	}
	return out, out != query
}

// Retrieve reformulates query, embeds it and returns the top chunks of
// namespace. Only a blank query is an error.
func (r *Retriever) Retrieve(ctx context.Context, namespace, query string, history []session.Turn) (Retrieval, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Retrieval{}, ErrEmptyQuery
	}

	ctx, span := tracer.Start(ctx, "Retriever.Retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.Int("history_turns", len(history)),
		attribute.Int("top_k", r.topK),
	)

	res := Retrieval{Original: query}
	res.Query, res.Reformulated = r.Reformulate(ctx, history, query)
	span.SetAttributes(attribute.Bool("reformulated", res.Reformulated))

	vec, err := r.embedder.EmbedQuery(ctx, res.Query)
	if err != nil {
		r.logger.Warn("query embedding failed, retrieving nothing",
			zap.String("namespace", namespace), zap.Error(err))
		span.RecordError(err)
		res.Degraded = "embedding failed: " + err.Error()
		return res, nil
	}

	results, err := r.index.Query(ctx, namespace, vec, r.topK)
	if err != nil {
		r.logger.Warn("index query failed, retrieving nothing",
			zap.String("namespace", namespace), zap.Error(err))
		span.RecordError(err)
		res.Degraded = "index unavailable: " + err.Error()
		return res, nil
	}
	if len(results) > r.topK {
		results = results[:r.topK]
	}
	res.Results = results
	span.SetAttributes(attribute.Int("results", len(results)))
	return res, nil
}
