package tutor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutord/internal/ingest"
	"github.com/fyrsmithlabs/tutord/internal/manifest"
	"github.com/fyrsmithlabs/tutord/internal/vectorstore"
)

// MetaCourseID routes a document into its course namespace.
const MetaCourseID = "course_id"

// ProcessDocument ingests an uploaded document. Failures are reported in
// the result, never returned.
func (s *Service) ProcessDocument(ctx context.Context, req DocumentRequest) *DocumentResult {
	namespace := s.documentNamespace(req.Metadata)
	src := ingest.Source{
		Origin:       req.Filename,
		Content:      req.Content,
		DocumentType: req.DocumentType,
		Metadata:     req.Metadata,
	}

	res, err := s.pipeline.Ingest(ctx, namespace, src)
	out := &DocumentResult{
		Filename:     req.Filename,
		Status:       DocumentProcessed,
		DocumentType: res.DocumentType,
		DocumentID:   res.DocumentID,
		Namespace:    namespace,
		Chunks:       res.Chunks,
		ProcessedAt:  res.IngestedAt,
	}
	if err != nil {
		out.Status = DocumentFailed
		out.Error = err.Error()
	}
	s.metrics.document(ctx, out.Status)
	return out
}

// IngestURL fetches and ingests one page. Metadata key course_id selects
// the namespace.
func (s *Service) IngestURL(ctx context.Context, rawURL string, metadata map[string]string) (ingest.Result, error) {
	res, err := s.pipeline.Ingest(ctx, s.documentNamespace(metadata), ingest.Source{
		Origin:       strings.TrimSpace(rawURL),
		DocumentType: "url",
		Metadata:     metadata,
	})
	s.metrics.document(ctx, statusOf(err))
	return res, err
}

// IngestSyllabus ingests up to limit lessons linked from indexURL into
// namespace, or the default namespace when empty. limit <= 0 uses the
// configured syllabus limit.
func (s *Service) IngestSyllabus(ctx context.Context, namespace, indexURL string, limit int) ([]ingest.LessonResult, error) {
	if namespace == "" {
		namespace = s.opts.DefaultNamespace
	}
	if limit <= 0 {
		limit = s.opts.SyllabusLimit
	}
	results, err := s.pipeline.IngestSyllabus(ctx, namespace, indexURL, limit)
	for _, r := range results {
		s.metrics.document(ctx, statusOf(r.Err))
	}
	return results, err
}

// DropNamespace deletes a namespace, its recorded dimension and its
// manifest rows. It is the only way to switch embedding providers for a
// namespace that already holds vectors.
func (s *Service) DropNamespace(ctx context.Context, namespace string) (int, error) {
	if err := vectorstore.ValidateNamespace(namespace); err != nil {
		return 0, err
	}
	if err := s.index.Drop(ctx, namespace); err != nil {
		return 0, fmt.Errorf("dropping namespace %s: %w", namespace, err)
	}
	if s.manifest == nil {
		return 0, nil
	}
	n, err := s.manifest.RemoveNamespace(ctx, namespace)
	if err != nil {
		return 0, err
	}
	s.logger.Info("namespace dropped", zap.String("namespace", namespace), zap.Int("documents", n))
	return n, nil
}

// Documents lists manifest records, newest first. An empty namespace lists
// every namespace; limit <= 0 means no limit.
func (s *Service) Documents(ctx context.Context, namespace string, limit int) ([]manifest.Record, error) {
	if namespace != "" {
		if err := vectorstore.ValidateNamespace(namespace); err != nil {
			return nil, err
		}
	}
	if s.manifest == nil {
		return nil, nil
	}
	return s.manifest.List(ctx, namespace, limit)
}

func (s *Service) documentNamespace(metadata map[string]string) string {
	if id := strings.TrimSpace(metadata[MetaCourseID]); id != "" {
		return vectorstore.CourseNamespace(id)
	}
	return s.opts.DefaultNamespace
}

func statusOf(err error) DocumentStatus {
	if err != nil {
		return DocumentFailed
	}
	return DocumentProcessed
}
