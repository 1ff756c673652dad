package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var qdrantTracer = otel.Tracer("tutord.vectorstore.qdrant")

// pointNamespace seeds UUIDv5 point ids. Qdrant only accepts uuids or
// integers as point ids, so chunk ids are hashed.
var pointNamespace = uuid.MustParse("5b0c6f5e-2f43-4c43-9a9b-6c6f6e5d7475")

// Reserved payload keys. Every other string payload value is metadata.
const (
	payloadChunkID = "chunk_id"
	payloadContent = "content"
)

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Default: "localhost"
	Host string

	// Port is the gRPC port, not the REST port. Default: 6334
	Port int

	UseTLS bool
	APIKey string

	// MaxRetries bounds retry attempts for transient failures. Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled per retry. Default: 200ms
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size. Default: 50MB
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// IsTransientError reports whether err is a gRPC error worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantIndex implements Index on a Qdrant server. Each namespace is one
// collection with cosine distance, sized by the first upsert.
type QdrantIndex struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger

	// known caches namespaces confirmed to exist.
	known sync.Map
}

// NewQdrantIndex connects to Qdrant and runs a health check.
func NewQdrantIndex(ctx context.Context, cfg QdrantConfig, logger *zap.Logger) (*QdrantIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if !cfg.UseTLS {
		logger.Warn("qdrant gRPC using plaintext", zap.String("host", cfg.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to qdrant: %v", ErrIndexUnavailable, err)
	}

	idx := &QdrantIndex{client: client, config: cfg, logger: logger}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := idx.healthCheck(hctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant index connected", zap.String("host", cfg.Host), zap.Int("port", cfg.Port))
	return idx, nil
}

func (q *QdrantIndex) healthCheck(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.HealthCheck")
	defer span.End()

	if _, err := q.client.HealthCheck(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: qdrant health check: %v", ErrIndexUnavailable, err)
	}
	span.SetStatus(codes.Ok, "healthy")
	return nil
}

// retry runs op with exponential backoff while it fails transiently.
func (q *QdrantIndex) retry(ctx context.Context, name string, op func() error) error {
	backoff := q.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", name, err)
		}
		if attempt >= q.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, q.config.MaxRetries, err)
		}
		q.logger.Debug("retrying qdrant operation",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// PointID returns the qdrant point id for a chunk id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

func (q *QdrantIndex) ensureNamespace(ctx context.Context, namespace string, dim int) error {
	exists, err := q.Exists(ctx, namespace)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	err = q.retry(ctx, "create_collection", func() error {
		return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: namespace,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
	if err != nil {
		// A concurrent creator may have won the race.
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.AlreadyExists {
			q.known.Store(namespace, true)
			return nil
		}
		return err
	}
	q.known.Store(namespace, true)
	q.logger.Info("namespace created", zap.String("namespace", namespace), zap.Int("dimension", dim))
	return nil
}

// Upsert adds or replaces entries in namespace, creating it when missing.
func (q *QdrantIndex) Upsert(ctx context.Context, namespace string, entries []Entry) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", namespace), attribute.Int("entry_count", len(entries)))

	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	dim, err := vectorDimension(entries)
	if err != nil {
		return err
	}

	if err := q.ensureNamespace(ctx, namespace, dim); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: creating namespace %s: %v", ErrIndexUnavailable, namespace, err)
	}

	points := make([]*qdrant.PointStruct, len(entries))
	for i, e := range entries {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(e.ID)),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: toPayload(e),
		}
	}

	wait := true
	err = q.retry(ctx, "upsert", func() error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: namespace,
			Points:         points,
			Wait:           &wait,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: writing namespace %s: %v", ErrIndexUnavailable, namespace, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query returns up to k entries by descending cosine similarity.
func (q *QdrantIndex) Query(ctx context.Context, namespace string, vector []float32, k int) ([]Result, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Query")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", namespace), attribute.Int("k", k))

	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if k <= 0 || len(vector) == 0 {
		return []Result{}, nil
	}
	exists, err := q.Exists(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []Result{}, nil
	}

	var points []*qdrant.ScoredPoint
	err = q.retry(ctx, "query", func() error {
		res, err := q.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: namespace,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: querying namespace %s: %v", ErrIndexUnavailable, namespace, err)
	}

	results := make([]Result, len(points))
	for i, p := range points {
		results[i] = fromPayload(p.GetPayload())
		results[i].Score = p.GetScore()
	}
	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// Exists reports whether the namespace collection exists.
func (q *QdrantIndex) Exists(ctx context.Context, namespace string) (bool, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return false, err
	}
	if _, ok := q.known.Load(namespace); ok {
		return true, nil
	}

	var exists bool
	err := q.retry(ctx, "collection_exists", func() error {
		info, err := q.client.GetCollectionInfo(ctx, namespace)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
				exists = false
				return nil
			}
			return err
		}
		exists = info != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: checking namespace %s: %v", ErrIndexUnavailable, namespace, err)
	}
	if exists {
		q.known.Store(namespace, true)
	}
	return exists, nil
}

// Count returns the exact number of points in namespace, 0 when missing.
func (q *QdrantIndex) Count(ctx context.Context, namespace string) (int, error) {
	exists, err := q.Exists(ctx, namespace)
	if err != nil || !exists {
		return 0, err
	}
	var n uint64
	err = q.retry(ctx, "count", func() error {
		c, err := q.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: namespace,
			Exact:          qdrant.PtrOf(true),
		})
		n = c
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: counting namespace %s: %v", ErrIndexUnavailable, namespace, err)
	}
	return int(n), nil
}

// Drop deletes the namespace collection. Dropping a missing namespace is a no-op.
func (q *QdrantIndex) Drop(ctx context.Context, namespace string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Drop")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", namespace))

	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	err := q.retry(ctx, "delete_collection", func() error {
		err := q.client.DeleteCollection(ctx, namespace)
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			return nil
		}
		return err
	})
	q.known.Delete(namespace)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: dropping namespace %s: %v", ErrIndexUnavailable, namespace, err)
	}
	q.logger.Info("namespace dropped", zap.String("namespace", namespace))
	return nil
}

// Delete removes points by chunk id from namespace.
func (q *QdrantIndex) Delete(ctx context.Context, namespace string, ids []string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", namespace), attribute.Int("entry_count", len(ids)))

	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	exists, err := q.Exists(ctx, namespace)
	if err != nil || !exists {
		return err
	}

	points := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		points[i] = qdrant.NewIDUUID(PointID(id))
	}
	wait := true
	err = q.retry(ctx, "delete", func() error {
		_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: namespace,
			Points:         qdrant.NewPointsSelector(points...),
			Wait:           &wait,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: deleting from namespace %s: %v", ErrIndexUnavailable, namespace, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func toPayload(e Entry) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(e.Metadata)+2)
	for k, v := range e.Metadata {
		payload[k] = stringValue(v)
	}
	payload[payloadChunkID] = stringValue(e.ID)
	payload[payloadContent] = stringValue(e.Content)
	return payload
}

func fromPayload(payload map[string]*qdrant.Value) Result {
	r := Result{Metadata: make(map[string]string, len(payload))}
	for k, v := range payload {
		sv, ok := v.GetKind().(*qdrant.Value_StringValue)
		if !ok {
			continue
		}
		switch k {
		case payloadChunkID:
			r.ID = sv.StringValue
		case payloadContent:
			r.Content = sv.StringValue
		default:
			r.Metadata[k] = sv.StringValue
		}
	}
	return r
}
