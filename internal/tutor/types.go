package tutor

import (
	"time"

	"github.com/fyrsmithlabs/tutord/internal/postprocess"
)

// Exchange is one prior question and answer supplied by the caller.
type Exchange struct {
	Message  string `json:"message"`
	Response string `json:"response"`
}

// Request is one tutoring query.
type Request struct {
	Query string                  `json:"query"`
	User  postprocess.UserContext `json:"user_context"`
	// CourseID selects the course namespace when it holds entries.
	CourseID string `json:"course_id,omitempty"`
	// ConversationHistory overrides session memory when non-empty.
	ConversationHistory []Exchange `json:"conversation_history,omitempty"`
	SessionID           string     `json:"session_id,omitempty"`
	UserID              string     `json:"user_id,omitempty"`
	MessageType         string     `json:"message_type,omitempty"`
}

// Response is the structured answer.
type Response struct {
	Response        string                   `json:"response"`
	Sources         []postprocess.Source     `json:"sources"`
	Confidence      float64                  `json:"confidence"`
	GrammarPoints   []string                 `json:"grammar_points"`
	Vocabulary      []postprocess.Vocabulary `json:"vocabulary"`
	Recommendations []string                 `json:"recommendations"`
	JLPTLevel       string                   `json:"jlpt_level,omitempty"`
	Context         postprocess.QueryContext `json:"context"`
	GrammarTopic    string                   `json:"grammar_topic,omitempty"`
	VocabularyTopic string                   `json:"vocabulary_topic,omitempty"`

	// Diagnostics, not part of the answer.
	Namespace      string `json:"namespace"`
	RetrievalQuery string `json:"retrieval_query"`
	Generator      string `json:"generator"`
	Degraded       string `json:"degraded,omitempty"`
}

// DocumentStatus is the outcome of ProcessDocument.
type DocumentStatus string

const (
	DocumentProcessed DocumentStatus = "processed"
	DocumentFailed    DocumentStatus = "failed"
)

// DocumentRequest is an uploaded document.
type DocumentRequest struct {
	Content      string            `json:"content"`
	Filename     string            `json:"filename"`
	DocumentType string            `json:"document_type,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// DocumentResult reports one ingestion.
type DocumentResult struct {
	Filename     string         `json:"filename"`
	Status       DocumentStatus `json:"status"`
	DocumentType string         `json:"document_type"`
	DocumentID   string         `json:"document_id,omitempty"`
	Namespace    string         `json:"namespace"`
	Chunks       int            `json:"chunks"`
	ProcessedAt  time.Time      `json:"processed_at"`
	Error        string         `json:"error,omitempty"`
}

// ServiceState is the overall health.
type ServiceState string

const (
	StateOperational ServiceState = "operational"
	StateDegraded    ServiceState = "degraded"
)

// ModelsLoaded reports which stages can serve requests.
type ModelsLoaded struct {
	// EmbeddingModel is true whenever a provider is active, the mock included.
	EmbeddingModel bool `json:"embedding_model"`
	LLMModel       bool `json:"llm_model"`
	IndexCreated   bool `json:"index_created"`
}

// Provider names one active backend.
type Provider struct {
	Name    string   `json:"name"`
	Mock    bool     `json:"mock"`
	Skipped []string `json:"skipped,omitempty"`
}

// Status is the SystemStatus report. Quarantined lists index collections
// set aside as unreadable at open; ActiveSessions is reported by in-process
// session memory only.
type Status struct {
	Status           ServiceState   `json:"status"`
	ModelsLoaded     ModelsLoaded   `json:"models_loaded"`
	Embeddings       Provider       `json:"embeddings"`
	Generator        Provider       `json:"generator"`
	DefaultNamespace string         `json:"default_namespace"`
	IndexedChunks    int            `json:"indexed_chunks"`
	GrammarDataFiles int            `json:"grammar_data_files"`
	FailedDocuments  int            `json:"failed_documents"`
	Namespaces       map[string]int `json:"namespaces,omitempty"`
	DocumentTypes    []string       `json:"document_types"`
	Quarantined      []string       `json:"quarantined,omitempty"`
	ActiveSessions   *int           `json:"active_sessions,omitempty"`
	LastUpdated      time.Time      `json:"last_updated"`
}
