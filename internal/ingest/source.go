package ingest

import (
	"errors"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Sentinel errors. All of them are returned wrapped in ErrIngestion.
var (
	ErrIngestion       = errors.New("ingestion failed")
	ErrEmptyContent    = errors.New("document content is empty")
	ErrFetch           = errors.New("fetching document failed")
	ErrUnsupportedType = errors.New("unsupported document type")
	ErrNoChunks        = errors.New("document produced no chunks")
)

// documentNamespace seeds UUIDv5 document ids.
var documentNamespace = uuid.MustParse("0f6d2a4e-8c1b-5d7e-9a3f-747574647264")

// Source is one document to ingest. For the url type Origin is the URL and
// Content is empty.
type Source struct {
	Origin       string
	Content      string
	DocumentType string
	Metadata     map[string]string
}

// Chunk is one indexed unit of a document.
type Chunk struct {
	DocumentID string
	Position   int
	Text       string
	// Metadata holds the active header path, keyed h3, h4, ...
	Metadata map[string]string
}

// ID returns the stable chunk id "<document id>:<position>".
func (c Chunk) ID() string {
	return ChunkID(c.DocumentID, c.Position)
}

// ChunkID formats a chunk id.
func ChunkID(documentID string, position int) string {
	return documentID + ":" + strconv.Itoa(position)
}

// DocumentID derives the document id from its origin, so re-ingesting the
// same origin replaces rather than duplicates its chunks.
func DocumentID(origin string) string {
	return uuid.NewSHA1(documentNamespace, []byte(NormalizeOrigin(origin))).String()
}

// NormalizeOrigin canonicalizes an origin. URLs lose their fragment and
// trailing slash and get a lowercase scheme and host; file names are cleaned.
func NormalizeOrigin(origin string) string {
	origin = strings.TrimSpace(origin)
	if isURL(origin) {
		u, err := url.Parse(origin)
		if err == nil {
			u.Scheme = strings.ToLower(u.Scheme)
			u.Host = strings.ToLower(u.Host)
			u.Fragment = ""
			u.Path = strings.TrimSuffix(u.Path, "/")
			return u.String()
		}
	}
	if origin == "" {
		return origin
	}
	return filepath.Clean(origin)
}

func isURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func copyMetadata(md map[string]string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
