package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("tutord.vectorstore.chromem")

// errEmbeddingRequired is returned by the collection embedding func. Entries
// always carry vectors, so chromem never needs to embed on its own.
var errEmbeddingRequired = errors.New("entry vector required")

// ChromemConfig holds configuration for the embedded chromem-go index.
type ChromemConfig struct {
	// Path is the persistence directory. Empty keeps the index in memory.
	Path string

	// Compress enables gzip compression for stored gob files.
	Compress bool
}

// ChromemIndex implements Index on an embedded chromem-go DB.
//
// Each namespace is one chromem collection. Vectors are normalized before
// they are stored because chromem scores by dot product.
type ChromemIndex struct {
	db          *chromem.DB
	logger      *zap.Logger
	path        string
	quarantined []string
}

// NewChromemIndex opens or creates the index at cfg.Path.
func NewChromemIndex(cfg ChromemConfig, logger *zap.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.Path == "" {
		logger.Info("chromem index in memory")
		return &ChromemIndex{db: chromem.NewDB(), logger: logger}, nil
	}

	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", cfg.Path, err)
	}
	db, quarantined, err := openResilientDB(cfg.Path, cfg.Compress, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: opening chromem at %s: %v", ErrIndexUnavailable, cfg.Path, err)
	}

	logger.Info("chromem index opened",
		zap.String("path", cfg.Path),
		zap.Bool("compress", cfg.Compress),
		zap.Int("namespaces", len(db.ListCollections())),
	)
	return &ChromemIndex{db: db, logger: logger, path: cfg.Path, quarantined: quarantined}, nil
}

// Quarantined lists collection directories moved aside on open.
func (c *ChromemIndex) Quarantined() []string {
	return c.quarantined
}

func refuseEmbedding(context.Context, string) ([]float32, error) {
	return nil, errEmbeddingRequired
}

// Upsert adds or replaces entries in namespace, creating it when missing.
func (c *ChromemIndex) Upsert(ctx context.Context, namespace string, entries []Entry) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", namespace), attribute.Int("entry_count", len(entries)))

	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	if _, err := vectorDimension(entries); err != nil {
		return err
	}

	collection, err := c.db.GetOrCreateCollection(namespace, nil, refuseEmbedding)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: opening namespace %s: %v", ErrIndexUnavailable, namespace, err)
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:        e.ID,
			Content:   e.Content,
			Metadata:  copyMetadata(e.Metadata),
			Embedding: normalize(e.Vector),
		}
	}

	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: writing namespace %s: %v", ErrIndexUnavailable, namespace, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query returns up to k entries by descending cosine similarity.
func (c *ChromemIndex) Query(ctx context.Context, namespace string, vector []float32, k int) ([]Result, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Query")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", namespace), attribute.Int("k", k))

	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if k <= 0 || len(vector) == 0 {
		return []Result{}, nil
	}

	collection := c.db.GetCollection(namespace, refuseEmbedding)
	if collection == nil {
		return []Result{}, nil
	}
	count := collection.Count()
	if count == 0 {
		return []Result{}, nil
	}
	// chromem rejects nResults larger than the collection.
	if k > count {
		k = count
	}

	matches, err := collection.QueryEmbedding(ctx, normalize(vector), k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: querying namespace %s: %v", ErrIndexUnavailable, namespace, err)
	}

	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{
			ID:       m.ID,
			Content:  m.Content,
			Metadata: m.Metadata,
			Score:    m.Similarity,
		}
	}
	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// Exists reports whether namespace has been created.
func (c *ChromemIndex) Exists(_ context.Context, namespace string) (bool, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return false, err
	}
	return c.db.GetCollection(namespace, refuseEmbedding) != nil, nil
}

// Count returns the number of entries in namespace, 0 when missing.
func (c *ChromemIndex) Count(_ context.Context, namespace string) (int, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return 0, err
	}
	collection := c.db.GetCollection(namespace, refuseEmbedding)
	if collection == nil {
		return 0, nil
	}
	return collection.Count(), nil
}

// Drop deletes namespace and its files. Dropping a missing namespace is a no-op.
func (c *ChromemIndex) Drop(ctx context.Context, namespace string) error {
	_, span := chromemTracer.Start(ctx, "ChromemIndex.Drop")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", namespace))

	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	if err := c.db.DeleteCollection(namespace); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: dropping namespace %s: %v", ErrIndexUnavailable, namespace, err)
	}
	c.logger.Info("namespace dropped", zap.String("namespace", namespace))
	return nil
}

// Delete removes entries by id from namespace.
func (c *ChromemIndex) Delete(ctx context.Context, namespace string, ids []string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", namespace), attribute.Int("entry_count", len(ids)))

	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	collection := c.db.GetCollection(namespace, refuseEmbedding)
	if collection == nil {
		return nil
	}
	if err := collection.Delete(ctx, nil, nil, ids...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: deleting from namespace %s: %v", ErrIndexUnavailable, namespace, err)
	}
	return nil
}

// Close is a no-op. chromem persists on every write.
func (c *ChromemIndex) Close() error {
	return nil
}

func copyMetadata(md map[string]string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := float32(1 / math.Sqrt(sum))
	for i, x := range v {
		out[i] = x * norm
	}
	return out
}
