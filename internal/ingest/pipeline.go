package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/tutord/internal/manifest"
	"github.com/fyrsmithlabs/tutord/internal/vectorstore"
)

var tracer = otel.Tracer("tutord.ingest")

// Entry metadata keys written next to the header path.
const (
	MetaDocumentID   = "document_id"
	MetaOrigin       = "origin"
	MetaDocumentType = "document_type"
	MetaPosition     = "position"
)

// Embedder embeds chunk texts.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Recorder stores ingestion outcomes. Get reports what the previous
// ingestion of a document left in the index, so a shorter revision can
// remove the chunks it no longer has.
type Recorder interface {
	Record(ctx context.Context, r manifest.Record) error
	Get(ctx context.Context, namespace, documentID string) (manifest.Record, error)
}

// Writer writes a document's chunks and removes its stale ones in one step.
// vectorstore.Serialized implements it.
type Writer interface {
	Replace(ctx context.Context, namespace string, entries []vectorstore.Entry, stale []string) error
}

// PipelineConfig bounds embedding fan-out.
type PipelineConfig struct {
	BatchSize   int
	Concurrency int
}

// Pipeline converts, chunks, embeds and indexes documents.
type Pipeline struct {
	registry *Registry
	urls     *URLConverter
	chunker  *Chunker
	embedder Embedder
	index    Writer
	recorder Recorder
	cfg      PipelineConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewPipeline wires the ingestion stages. recorder may be nil.
func NewPipeline(registry *Registry, urls *URLConverter, chunker *Chunker, embedder Embedder,
	index Writer, recorder Recorder, cfg PipelineConfig, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if urls == nil {
		urls = NewURLConverter(URLConfig{})
	}
	return &Pipeline{
		registry: registry,
		urls:     urls,
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Result describes one successful ingestion.
type Result struct {
	DocumentID   string
	Origin       string
	DocumentType string
	Namespace    string
	Chunks       int
	IngestedAt   time.Time
}

// Ingest runs src through every stage and upserts its chunks into
// namespace. The outcome is recorded in the manifest either way.
func (p *Pipeline) Ingest(ctx context.Context, namespace string, src Source) (Result, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Ingest")
	defer span.End()

	docType := ResolveType(src)
	res := Result{
		DocumentID:   DocumentID(src.Origin),
		Origin:       src.Origin,
		DocumentType: docType,
		Namespace:    namespace,
		IngestedAt:   p.now(),
	}
	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.String("document_type", docType),
		attribute.String("document_id", res.DocumentID),
	)
	log := p.logger.With(
		zap.String("origin", src.Origin),
		zap.String("document_id", res.DocumentID),
		zap.String("namespace", namespace),
	)

	previous := p.previousChunks(ctx, namespace, res.DocumentID)
	chunks, err := p.ingest(ctx, namespace, src, res.DocumentID, docType, previous)
	res.Chunks = len(chunks)
	p.record(ctx, res, previous, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("ingestion failed", zap.Error(err))
		return res, wrapIngestion(err)
	}

	span.SetAttributes(attribute.Int("chunks", res.Chunks))
	span.SetStatus(codes.Ok, "success")
	log.Info("document ingested", zap.Int("chunks", res.Chunks))
	return res, nil
}

func (p *Pipeline) ingest(ctx context.Context, namespace string, src Source, docID, docType string, previous int) ([]Chunk, error) {
	if src.Origin == "" {
		return nil, errors.New("origin required")
	}
	if err := vectorstore.ValidateNamespace(namespace); err != nil {
		return nil, err
	}

	src.DocumentType = docType
	converted, err := p.registry.Convert(ctx, src)
	if err != nil {
		return nil, err
	}
	chunks, err := p.chunker.Chunk(docID, converted)
	if err != nil {
		return nil, err
	}

	vectors, err := p.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}

	entries := make([]vectorstore.Entry, len(chunks))
	for i, c := range chunks {
		md := copyMetadata(src.Metadata)
		for k, v := range c.Metadata {
			md[k] = v
		}
		md[MetaDocumentID] = docID
		md[MetaOrigin] = src.Origin
		md[MetaDocumentType] = docType
		md[MetaPosition] = strconv.Itoa(c.Position)
		entries[i] = vectorstore.Entry{ID: c.ID(), Vector: vectors[i], Content: c.Text, Metadata: md}
	}

	var stale []string
	for pos := len(chunks); pos < previous; pos++ {
		stale = append(stale, ChunkID(docID, pos))
	}
	if err := p.index.Replace(ctx, namespace, entries, stale); err != nil {
		return nil, err
	}
	return chunks, nil
}

// previousChunks returns how many chunks of docID the index holds from an
// earlier ingestion, 0 when unknown.
func (p *Pipeline) previousChunks(ctx context.Context, namespace, docID string) int {
	if p.recorder == nil {
		return 0
	}
	rec, err := p.recorder.Get(ctx, namespace, docID)
	if err != nil {
		if !errors.Is(err, manifest.ErrNotFound) {
			p.logger.Warn("manifest read failed", zap.String("document_id", docID), zap.Error(err))
		}
		return 0
	}
	return rec.Chunks
}

// embed embeds chunk texts in batches with bounded concurrency, preserving
// chunk order.
func (p *Pipeline) embed(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for start := 0; start < len(chunks); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Text)
			}
			out, err := p.embedder.EmbedDocuments(gctx, texts)
			if err != nil {
				return fmt.Errorf("embedding chunks %d-%d: %w", start, end-1, err)
			}
			if len(out) != len(texts) {
				return fmt.Errorf("embedding chunks %d-%d: got %d vectors for %d texts", start, end-1, len(out), len(texts))
			}
			copy(vectors[start:end], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (p *Pipeline) record(ctx context.Context, res Result, previous int, ingestErr error) {
	if p.recorder == nil {
		return
	}
	rec := manifest.Record{
		DocumentID:   res.DocumentID,
		Origin:       res.Origin,
		DocumentType: res.DocumentType,
		Namespace:    res.Namespace,
		Status:       manifest.StatusProcessed,
		Chunks:       res.Chunks,
		IngestedAt:   res.IngestedAt,
	}
	if ingestErr != nil {
		rec.Status = manifest.StatusFailed
		rec.Error = ingestErr.Error()
		// The earlier revision is still indexed.
		rec.Chunks = previous
	}
	// The manifest is bookkeeping; a failed write never fails ingestion.
	if err := p.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		p.logger.Warn("manifest write failed", zap.String("document_id", res.DocumentID), zap.Error(err))
	}
}

// DocumentTypes lists the document types the pipeline converts.
func (p *Pipeline) DocumentTypes() []string {
	return p.registry.Types()
}

// LessonResult is the outcome of one syllabus lesson.
type LessonResult struct {
	Lesson Lesson
	Result Result
	Err    error
}

// IngestSyllabus ingests the first limit lessons linked from indexURL, in
// order. A failing lesson is reported and the batch continues; only a
// failure to read the index page is returned as an error.
func (p *Pipeline) IngestSyllabus(ctx context.Context, namespace, indexURL string, limit int) ([]LessonResult, error) {
	lessons, err := p.urls.Syllabus(ctx, indexURL)
	if err != nil {
		return nil, wrapIngestion(err)
	}
	if limit > 0 && len(lessons) > limit {
		lessons = lessons[:limit]
	}
	p.logger.Info("syllabus loaded", zap.String("url", indexURL), zap.Int("lessons", len(lessons)))

	results := make([]LessonResult, 0, len(lessons))
	for _, l := range lessons {
		if ctx.Err() != nil {
			results = append(results, LessonResult{Lesson: l, Err: wrapIngestion(ctx.Err())})
			continue
		}
		res, err := p.Ingest(ctx, namespace, Source{
			Origin:       l.URL,
			DocumentType: "url",
			Metadata:     map[string]string{"lesson": l.Title},
		})
		results = append(results, LessonResult{Lesson: l, Result: res, Err: err})
	}
	return results, nil
}

func wrapIngestion(err error) error {
	if err == nil || errors.Is(err, ErrIngestion) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrIngestion, err)
}
