package tutor

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutord/internal/fallback"
)

// SystemStatus reports the active providers and the state of the index and
// manifest. The service is degraded when either chain fell back to its mock
// or the default namespace is empty.
func (s *Service) SystemStatus(ctx context.Context) Status {
	st := Status{
		ModelsLoaded: ModelsLoaded{
			EmbeddingModel: s.embedder != nil,
			LLMModel:       s.engine != nil,
		},
		Embeddings:       provider(s.embedder.Name(), s.embedder.IsMock(), s.embedRep),
		Generator:        provider(s.engine.Name(), s.engine.IsMock(), s.genRep),
		DefaultNamespace: s.opts.DefaultNamespace,
		DocumentTypes:    s.pipeline.DocumentTypes(),
		LastUpdated:      s.started,
	}
	if q, ok := s.index.(interface{ Quarantined() []string }); ok {
		st.Quarantined = q.Quarantined()
	}
	if a, ok := s.sessions.(interface{ ActiveSessions() int }); ok {
		n := a.ActiveSessions()
		st.ActiveSessions = &n
	}

	if n, err := s.index.Count(ctx, s.opts.DefaultNamespace); err != nil {
		s.logger.Warn("counting default namespace failed", zap.Error(err))
	} else {
		st.IndexedChunks = n
		st.ModelsLoaded.IndexCreated = n > 0
	}

	if s.manifest != nil {
		sum, err := s.manifest.Summarize(ctx)
		if err != nil {
			s.logger.Warn("reading manifest summary failed", zap.Error(err))
		} else {
			st.GrammarDataFiles = sum.Processed
			st.FailedDocuments = sum.Failed
			st.Namespaces = sum.Namespaces
			if !sum.LastIngested.IsZero() {
				st.LastUpdated = sum.LastIngested
			}
		}
	}

	st.Status = StateOperational
	if st.Embeddings.Mock || st.Generator.Mock || !st.ModelsLoaded.IndexCreated {
		st.Status = StateDegraded
	}
	return st
}

func provider(name string, mock bool, rep fallback.Report) Provider {
	p := Provider{Name: name, Mock: mock}
	for _, sk := range rep.Skipped {
		msg := sk.Name
		if sk.Err != nil {
			msg += ": " + sk.Err.Error()
		}
		p.Skipped = append(p.Skipped, msg)
	}
	return p
}
