package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Options selects and configures a backend.
type Options struct {
	// Provider is "chromem" (default) or "qdrant".
	Provider string
	Chromem  ChromemConfig
	Qdrant   QdrantConfig

	// Registry records namespace dimensions. Nil keeps them in memory.
	Registry DimensionRegistry
	Metrics  *Metrics
}

// New opens the configured backend and wraps it in Serialized.
//
// chromem needs no external service and is the default. qdrant requires a
// reachable server at construction time.
func New(ctx context.Context, opts Options, logger *zap.Logger) (*Serialized, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		backend Index
		err     error
	)
	switch opts.Provider {
	case "chromem", "":
		backend, err = NewChromemIndex(opts.Chromem, logger.Named("chromem"))
	case "qdrant":
		backend, err = NewQdrantIndex(ctx, opts.Qdrant, logger.Named("qdrant"))
	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider %q (supported: chromem, qdrant)", ErrInvalidConfig, opts.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewSerialized(backend,
		WithDimensionRegistry(opts.Registry),
		WithLogger(logger),
		WithMetrics(opts.Metrics),
	), nil
}
