package tutor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutord/internal/analytics"
	"github.com/fyrsmithlabs/tutord/internal/embeddings"
	"github.com/fyrsmithlabs/tutord/internal/fallback"
	"github.com/fyrsmithlabs/tutord/internal/generation"
	"github.com/fyrsmithlabs/tutord/internal/ingest"
	"github.com/fyrsmithlabs/tutord/internal/logging"
	"github.com/fyrsmithlabs/tutord/internal/manifest"
	"github.com/fyrsmithlabs/tutord/internal/postprocess"
	"github.com/fyrsmithlabs/tutord/internal/retrieval"
	"github.com/fyrsmithlabs/tutord/internal/session"
	"github.com/fyrsmithlabs/tutord/internal/vectorstore"
)

var tracer = otel.Tracer("tutord.tutor")

// ErrInvalidRequest is returned for requests that cannot be answered.
var ErrInvalidRequest = errors.New("invalid request")

// Manifest is the ingestion bookkeeping the service reports on.
// manifest.Store implements it.
type Manifest interface {
	Summarize(ctx context.Context) (manifest.Summary, error)
	List(ctx context.Context, namespace string, limit int) ([]manifest.Record, error)
	RemoveNamespace(ctx context.Context, namespace string) (int, error)
}

// Options holds request-level policy.
type Options struct {
	DefaultNamespace string
	TopK             int
	Confidence       float64
	// AnalyticsTimeout bounds each notification.
	AnalyticsTimeout time.Duration
	SyllabusLimit    int
}

// Deps are the collaborators of a Service. The Service owns them and
// closes every one that implements io.Closer.
type Deps struct {
	Embedder        embeddings.Provider
	EmbeddingReport fallback.Report
	Engine          *generation.Engine
	GeneratorReport fallback.Report
	Index           vectorstore.Index
	Pipeline        *ingest.Pipeline
	Manifest        Manifest
	Sessions        session.Store
	Notifier        analytics.Notifier
	Logger          *zap.Logger
	Meter           metric.Meter
}

// Service answers queries and ingests documents.
type Service struct {
	opts       Options
	embedder   embeddings.Provider
	embedRep   fallback.Report
	engine     *generation.Engine
	genRep     fallback.Report
	index      vectorstore.Index
	pipeline   *ingest.Pipeline
	manifest   Manifest
	sessions   session.Store
	sequencer  *session.Sequencer
	retriever  *retrieval.Retriever
	processor  *postprocess.Processor
	dispatcher *analytics.Dispatcher
	closers    []io.Closer
	logger     *zap.Logger
	metrics    *metrics
	started    time.Time

	closeOnce sync.Once
	closeErr  error
}

// New assembles a Service from deps.
func New(opts Options, deps Deps) (*Service, error) {
	switch {
	case deps.Embedder == nil:
		return nil, errors.New("embedder required")
	case deps.Engine == nil:
		return nil, errors.New("generation engine required")
	case deps.Index == nil:
		return nil, errors.New("vector index required")
	case deps.Pipeline == nil:
		return nil, errors.New("ingestion pipeline required")
	}
	if opts.DefaultNamespace == "" {
		opts.DefaultNamespace = vectorstore.DefaultNamespace
	}
	if err := vectorstore.ValidateNamespace(opts.DefaultNamespace); err != nil {
		return nil, err
	}
	if opts.SyllabusLimit <= 0 {
		opts.SyllabusLimit = 10
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewMemoryStore(session.DefaultBounds)
	}
	if deps.Notifier == nil {
		deps.Notifier = analytics.NoopNotifier{}
	}

	s := &Service{
		opts:       opts,
		embedder:   deps.Embedder,
		embedRep:   deps.EmbeddingReport,
		engine:     deps.Engine,
		genRep:     deps.GeneratorReport,
		index:      deps.Index,
		pipeline:   deps.Pipeline,
		manifest:   deps.Manifest,
		sessions:   deps.Sessions,
		sequencer:  session.NewSequencer(deps.Sessions),
		retriever:  retrieval.New(deps.Embedder, deps.Index, deps.Engine, opts.TopK, logger.Named("retrieval")),
		processor:  postprocess.New(postprocess.ConfidencePolicy{Grounded: opts.Confidence}),
		dispatcher: analytics.NewDispatcher(deps.Notifier, opts.AnalyticsTimeout, logger.Named("analytics")),
		logger:     logger,
		metrics:    newMetrics(deps.Meter, logger),
		started:    time.Now(),
	}
	// Close order: generation first, storage last.
	for _, c := range []any{deps.Engine, deps.Embedder, deps.Sessions, deps.Index, deps.Manifest} {
		if closer, ok := c.(io.Closer); ok {
			s.closers = append(s.closers, closer)
		}
	}
	return s, nil
}

// GenerateResponse answers req. Only an invalid request is an error: model,
// embedding and index failures degrade the answer instead.
func (s *Service) GenerateResponse(ctx context.Context, req Request) (*Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, retrieval.ErrEmptyQuery)
	}
	if req.SessionID != "" {
		if err := logging.ValidateID(req.SessionID, "session_id"); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		ctx = logging.WithSessionID(ctx, req.SessionID)
	}
	if req.UserID != "" {
		ctx = logging.WithUserID(ctx, req.UserID)
	}
	if req.CourseID != "" {
		ctx = logging.WithCourseID(ctx, req.CourseID)
	}
	ctx = logging.WithRequestID(ctx, uuid.NewString())

	start := time.Now()
	ctx, span := tracer.Start(ctx, "Service.GenerateResponse")
	defer span.End()

	// The slot is reserved before any model call so that exchanges land in
	// memory in arrival order.
	var ticket *session.Ticket
	if req.SessionID != "" {
		ticket = s.sequencer.Reserve(req.SessionID)
	}

	namespace := s.namespaceFor(ctx, req.CourseID)
	span.SetAttributes(attribute.String("namespace", namespace))

	history := s.history(ctx, req)
	span.SetAttributes(attribute.Int("history_turns", len(history)))

	ret, err := s.retriever.Retrieve(ctx, namespace, query, history)
	if err != nil {
		ticket.Abort()
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	chunks := make([]string, len(ret.Results))
	for i, r := range ret.Results {
		chunks[i] = r.Content
	}
	answer := s.engine.Generate(ctx, chunks, history, query)
	if ctx.Err() != nil && !answer.Failed {
		// The caller gave up before the answer was ready.
		answer.Text, answer.Failed = generation.Apology, true
	}

	out := s.processor.Process(postprocess.Input{
		Text:    answer.Text,
		Results: ret.Results,
		Flags: postprocess.Flags{
			MockEmbeddings:   s.embedder.IsMock(),
			MockGenerator:    answer.Mock,
			GenerationFailed: answer.Failed,
		},
		Query: query,
		User:  req.User,
	})

	resp := &Response{
		Response:        answer.Text,
		Sources:         out.Sources,
		Confidence:      out.Confidence,
		GrammarPoints:   out.GrammarPoints,
		Vocabulary:      out.Vocabulary,
		Recommendations: out.Recommendations,
		JLPTLevel:       out.JLPTLevel,
		Context:         out.Context,
		GrammarTopic:    out.GrammarTopic,
		VocabularyTopic: out.VocabularyTopic,
		Namespace:       namespace,
		RetrievalQuery:  ret.Query,
		Generator:       answer.Generator,
		Degraded:        ret.Degraded,
	}

	outcome := s.remember(ctx, ticket, query, answer)
	if outcome == outcomeGrounded && resp.Confidence == 0 {
		outcome = outcomeDegraded
	}
	s.metrics.response(ctx, outcome, namespace, start)
	span.SetAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("sources", len(resp.Sources)),
		attribute.Float64("confidence", resp.Confidence),
	)
	if answer.Failed {
		span.SetStatus(codes.Error, "generation failed")
	} else {
		span.SetStatus(codes.Ok, "success")
	}

	logging.For(ctx, s.logger).Debug("response generated",
		zap.String("namespace", namespace),
		zap.String("generator", answer.Generator),
		zap.Bool("reformulated", ret.Reformulated),
		zap.Int("sources", len(resp.Sources)),
		zap.Float64("confidence", resp.Confidence),
		zap.String("outcome", outcome))

	s.notify(req, resp, answer)
	return resp, nil
}

// remember commits the exchange to session memory. Failed generations and
// requests canceled before generation finished leave memory untouched.
func (s *Service) remember(ctx context.Context, ticket *session.Ticket, query string, answer generation.Answer) string {
	switch {
	case ctx.Err() != nil:
		ticket.Abort()
		return outcomeCanceled
	case answer.Failed:
		ticket.Abort()
		return outcomeFailed
	case ticket == nil:
		return outcomeGrounded
	}
	err := ticket.Commit(ctx,
		session.Turn{Role: session.RoleUser, Text: query},
		session.Turn{Role: session.RoleAssistant, Text: answer.Text},
	)
	if err != nil {
		s.logger.Warn("session memory update failed", zap.Error(err))
		if ctx.Err() != nil {
			return outcomeCanceled
		}
	}
	return outcomeGrounded
}

// namespaceFor picks the course namespace when it holds entries, else the
// default one.
func (s *Service) namespaceFor(ctx context.Context, courseID string) string {
	if strings.TrimSpace(courseID) == "" {
		return s.opts.DefaultNamespace
	}
	ns := vectorstore.CourseNamespace(courseID)
	n, err := s.index.Count(ctx, ns)
	if err != nil {
		s.logger.Warn("course namespace lookup failed, using default",
			zap.String("namespace", ns), zap.Error(err))
		return s.opts.DefaultNamespace
	}
	if n == 0 {
		return s.opts.DefaultNamespace
	}
	return ns
}

// history returns the caller-supplied exchanges, or the session snapshot.
func (s *Service) history(ctx context.Context, req Request) []session.Turn {
	if len(req.ConversationHistory) > 0 {
		turns := make([]session.Turn, 0, 2*len(req.ConversationHistory))
		for _, ex := range req.ConversationHistory {
			if m := strings.TrimSpace(ex.Message); m != "" {
				turns = append(turns, session.Turn{Role: session.RoleUser, Text: m})
			}
			if r := strings.TrimSpace(ex.Response); r != "" {
				turns = append(turns, session.Turn{Role: session.RoleAssistant, Text: r})
			}
		}
		return turns
	}
	if req.SessionID == "" {
		return nil
	}
	turns, err := s.sequencer.Store().Snapshot(ctx, req.SessionID)
	if err != nil {
		s.logger.Warn("session snapshot failed, answering without history",
			zap.String("session_id", req.SessionID), zap.Error(err))
		return nil
	}
	return turns
}

func (s *Service) notify(req Request, resp *Response, answer generation.Answer) {
	if req.UserID == "" {
		return
	}
	messageType := req.MessageType
	if messageType == "" {
		messageType = resp.Context.QueryType
	}
	words := make([]string, len(resp.Vocabulary))
	for i, v := range resp.Vocabulary {
		words[i] = v.Word
	}
	s.dispatcher.Notify(req.UserID, messageType, analytics.Event{
		SessionID:       req.SessionID,
		CourseID:        req.CourseID,
		Namespace:       resp.Namespace,
		QueryType:       resp.Context.QueryType,
		DifficultyLevel: resp.Context.DifficultyLevel,
		GrammarPoints:   resp.GrammarPoints,
		Vocabulary:      words,
		JLPTLevel:       resp.JLPTLevel,
		Confidence:      resp.Confidence,
		Sources:         len(resp.Sources),
		Generator:       answer.Generator,
		Failed:          answer.Failed,
		Timestamp:       time.Now(),
	})
}

// ClearSession forgets a session's memory.
func (s *Service) ClearSession(ctx context.Context, sessionID string) error {
	return s.sequencer.Store().Clear(ctx, sessionID)
}

// Close waits for pending analytics notifications, then closes every owned
// collaborator. It is safe to call more than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		errs := []error{s.dispatcher.Close()}
		for _, c := range s.closers {
			errs = append(errs, c.Close())
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
