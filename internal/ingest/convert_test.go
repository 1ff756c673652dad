package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lessonHTML = `<html><body>
<div><h3>Menu</h3><p>Home and Lessons</p></div>
<h3>Particles</h3><p>は marks the topic.</p>
<h3>Verb Conjugation</h3><p>食べる becomes 食べます.</p>
<div><h3>Footer</h3><p>Copyright</p></div>
</body></html>`

func newLessonServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/lesson", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(lessonHTML))
	})
	mux.HandleFunc("/notes.md", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/markdown")
		_, _ = w.Write([]byte("# nav\n### A\nalpha\n### B\nbeta\n### C\ngamma"))
	})
	mux.HandleFunc("/image.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "")
		_, _ = w.Write([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("a", 2048)))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestURLConverter_HTML(t *testing.T) {
	srv := newLessonServer(t)
	conv := NewURLConverter(URLConfig{})

	out, err := conv.Convert(context.Background(), Source{Origin: srv.URL + "/lesson"})
	require.NoError(t, err)
	assert.True(t, out.TrimEdges)
	assert.Contains(t, out.Markdown, "### Particles")
	assert.Contains(t, out.Markdown, "食べる")

	chunks, err := newTestChunker(t).Chunk("doc", out)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Particles", chunks[0].Metadata["h3"])
	assert.Equal(t, "Verb Conjugation", chunks[1].Metadata["h3"])
}

func TestURLConverter_Markdown(t *testing.T) {
	srv := newLessonServer(t)
	out, err := NewURLConverter(URLConfig{}).Convert(context.Background(), Source{Origin: srv.URL + "/notes.md"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.Markdown, "# nav"))
}

func TestURLConverter_Errors(t *testing.T) {
	srv := newLessonServer(t)
	conv := NewURLConverter(URLConfig{MaxBytes: 1024})
	ctx := context.Background()

	tests := []struct {
		name   string
		origin string
		want   error
	}{
		{"not found", srv.URL + "/missing", ErrFetch},
		{"bad scheme", "ftp://example.com/file", ErrFetch},
		{"unsupported body", srv.URL + "/image.png", ErrUnsupportedType},
		{"empty body", srv.URL + "/empty", ErrEmptyContent},
		{"too large", srv.URL + "/big", ErrFetch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := conv.Convert(ctx, Source{Origin: tt.origin})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestURLConverter_UserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.UserAgent()
		_, _ = w.Write([]byte("plain text body"))
	}))
	defer srv.Close()

	_, err := NewURLConverter(URLConfig{UserAgent: "tutord-test"}).Convert(context.Background(), Source{Origin: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "tutord-test", got)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(nil)
	ctx := context.Background()

	assert.Equal(t, []string{"html", "markdown", "md", "text", "txt", "url"}, reg.Types())

	out, err := reg.Convert(ctx, Source{Origin: "a.md", Content: "### A\r\nbody", DocumentType: "MD"})
	require.NoError(t, err)
	assert.Equal(t, "### A\nbody", out.Markdown)
	assert.False(t, out.TrimEdges)

	out, err = reg.Convert(ctx, Source{Origin: "a.html", Content: "<h3>Keigo</h3><p>丁寧語</p>"})
	require.NoError(t, err)
	assert.Contains(t, out.Markdown, "### Keigo")
	assert.False(t, out.TrimEdges)

	_, err = reg.Convert(ctx, Source{Origin: "a.pdf", Content: "x", DocumentType: "pdf"})
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = reg.Convert(ctx, Source{Origin: "a.txt", Content: "   "})
	assert.ErrorIs(t, err, ErrEmptyContent)
}
