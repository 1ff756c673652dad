package tutor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tutord/internal/ingest"
	"github.com/fyrsmithlabs/tutord/internal/manifest"
	"github.com/fyrsmithlabs/tutord/internal/vectorstore"
)

func TestProcessDocument(t *testing.T) {
	tests := []struct {
		name       string
		req        DocumentRequest
		wantStatus DocumentStatus
		wantType   string
		wantNS     string
	}{
		{
			name:       "markdown",
			req:        DocumentRequest{Content: grammarLesson, Filename: "grammar.md"},
			wantStatus: DocumentProcessed,
			wantType:   "markdown",
			wantNS:     vectorstore.DefaultNamespace,
		},
		{
			name: "html into course",
			req: DocumentRequest{
				Content:  "<h3>Particles</h3><p>The particle は marks the topic.</p>",
				Filename: "particles.html",
				Metadata: map[string]string{MetaCourseID: "jp-201"},
			},
			wantStatus: DocumentProcessed,
			wantType:   "html",
			wantNS:     "course_jp_201",
		},
		{
			name:       "empty content",
			req:        DocumentRequest{Content: "  ", Filename: "empty.txt"},
			wantStatus: DocumentFailed,
			wantType:   "text",
			wantNS:     vectorstore.DefaultNamespace,
		},
		{
			name:       "unsupported type",
			req:        DocumentRequest{Content: "%PDF-1.4", Filename: "lesson.pdf", DocumentType: "pdf"},
			wantStatus: DocumentFailed,
			wantType:   "pdf",
			wantNS:     vectorstore.DefaultNamespace,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res := f.svc.ProcessDocument(context.Background(), tt.req)

			assert.Equal(t, tt.wantStatus, res.Status, res.Error)
			assert.Equal(t, tt.req.Filename, res.Filename)
			assert.Equal(t, tt.wantType, res.DocumentType)
			assert.Equal(t, tt.wantNS, res.Namespace)
			assert.False(t, res.ProcessedAt.IsZero())
			if tt.wantStatus == DocumentFailed {
				assert.NotEmpty(t, res.Error)
				assert.Zero(t, res.Chunks)
			} else {
				assert.Empty(t, res.Error)
				assert.Positive(t, res.Chunks)
			}

			rec, err := f.manifest.Get(context.Background(), res.Namespace, res.DocumentID)
			require.NoError(t, err)
			assert.Equal(t, manifest.Status(tt.wantStatus), rec.Status)
		})
	}
}

func TestProcessDocument_ReingestIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.ingestLesson(t, nil)
	second := f.ingestLesson(t, nil)
	assert.Equal(t, first.DocumentID, second.DocumentID)

	n, err := f.index.Count(ctx, vectorstore.DefaultNamespace)
	require.NoError(t, err)
	assert.Equal(t, first.Chunks, n)

	sum, err := f.manifest.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Processed)
}

func TestIngestURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body>
<h3>Navigation</h3><p>Home | Lessons</p>
<h3>Particles</h3><p>The particle は marks the topic.</p>
<h3>Footer</h3><p>Copyright</p>
</body></html>`)
	}))
	defer srv.Close()

	f := newFixture(t)
	res, err := f.svc.IngestURL(context.Background(), srv.URL+"/lesson-1", map[string]string{MetaCourseID: "jp101"})
	require.NoError(t, err)
	assert.Equal(t, "course_jp101", res.Namespace)
	assert.Equal(t, 1, res.Chunks, "page chrome sections are trimmed")

	_, err = f.svc.IngestURL(context.Background(), "not a url", nil)
	assert.ErrorIs(t, err, ingest.ErrIngestion)
}

func TestIngestSyllabus(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/index", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<dl>
<dd><a href="/lesson/1">Lesson 1</a></dd>
<dd><a href="/lesson/2">Lesson 2</a></dd>
<dd><a href="/lesson/3">Lesson 3</a></dd>
</dl>`)
	})
	mux.HandleFunc("/lesson/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/lesson/2" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<h3>Menu</h3><p>nav</p><h3>%s</h3><p>The particle は</p><h3>End</h3><p>footer</p>`, r.URL.Path)
	})

	f := newFixture(t)
	results, err := f.svc.IngestSyllabus(context.Background(), "", srv.URL+"/index", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "Lesson 1", results[0].Lesson.Title)
	assert.Equal(t, vectorstore.DefaultNamespace, results[0].Result.Namespace)
	assert.ErrorIs(t, results[1].Err, ingest.ErrIngestion)
}

func TestDropNamespace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingestLesson(t, map[string]string{MetaCourseID: "jp101"})
	f.ingestLesson(t, nil)

	// One file in two namespaces is two manifest rows.
	st := f.svc.SystemStatus(ctx)
	assert.Equal(t, 2, st.GrammarDataFiles)
	assert.Equal(t, map[string]int{"course_jp101": 1, vectorstore.DefaultNamespace: 1}, st.Namespaces)

	removed, err := f.svc.DropNamespace(ctx, "course_jp101")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	n, err := f.index.Count(ctx, "course_jp101")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = f.index.Count(ctx, vectorstore.DefaultNamespace)
	require.NoError(t, err)
	assert.Positive(t, n)

	_, ok, err := f.manifest.Dimension(ctx, "course_jp101")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.DropNamespace(ctx, "../etc")
	assert.ErrorIs(t, err, vectorstore.ErrInvalidNamespace)
}

func TestSystemStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st := f.svc.SystemStatus(ctx)
	assert.Equal(t, StateDegraded, st.Status, "empty default namespace")
	assert.False(t, st.ModelsLoaded.IndexCreated)
	assert.True(t, st.ModelsLoaded.EmbeddingModel)
	assert.True(t, st.ModelsLoaded.LLMModel)
	assert.Equal(t, f.svc.started, st.LastUpdated)

	doc := f.ingestLesson(t, nil)
	f.svc.ProcessDocument(ctx, DocumentRequest{Content: "", Filename: "broken.md"})

	st = f.svc.SystemStatus(ctx)
	assert.Equal(t, StateOperational, st.Status)
	assert.True(t, st.ModelsLoaded.IndexCreated)
	assert.Equal(t, 1, st.GrammarDataFiles)
	assert.Equal(t, 1, st.FailedDocuments)
	assert.Equal(t, doc.Chunks, st.IndexedChunks)
	assert.Equal(t, "keyword", st.Embeddings.Name)
	assert.Equal(t, "scripted", st.Generator.Name)
	assert.False(t, st.LastUpdated.Before(doc.ProcessedAt.Truncate(time.Millisecond)))
	assert.Contains(t, st.DocumentTypes, "markdown")
	assert.Empty(t, st.Quarantined)
	require.NotNil(t, st.ActiveSessions)
	assert.Zero(t, *st.ActiveSessions)
}

func TestDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingestLesson(t, map[string]string{MetaCourseID: "jp101"})
	f.ingestLesson(t, nil)

	all, err := f.svc.Documents(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	course, err := f.svc.Documents(ctx, "course_jp101", 10)
	require.NoError(t, err)
	require.Len(t, course, 1)
	assert.Equal(t, "grammar.md", course[0].Origin)

	_, err = f.svc.Documents(ctx, "Course JP", 0)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidNamespace)
}
