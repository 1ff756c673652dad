package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const syllabusHTML = `<html><body>
<a href="/about">About</a>
<dl>
  <dt>Unit 1</dt>
  <dd><a href="lesson1.html">Lesson 1: <b>Particles</b></a></dd>
  <dd><a href="https://other.example/lesson2">Lesson 2</a> <a href="#notes">notes</a></dd>
  <dd><a href="lesson1.html#top">Lesson 1 again</a></dd>
  <dd><a href="mailto:teacher@example.com">mail</a></dd>
</dl>
</body></html>`

func TestParseSyllabus(t *testing.T) {
	base, _ := url.Parse("https://example.com/course/index.html")
	lessons, err := ParseSyllabus(strings.NewReader(syllabusHTML), base)
	require.NoError(t, err)

	assert.Equal(t, []Lesson{
		{Title: "Lesson 1: Particles", URL: "https://example.com/course/lesson1.html"},
		{Title: "Lesson 2", URL: "https://other.example/lesson2"},
	}, lessons)
}

func TestURLConverter_Syllabus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(syllabusHTML))
	}))
	defer srv.Close()

	lessons, err := NewURLConverter(URLConfig{}).Syllabus(context.Background(), srv.URL+"/course/")
	require.NoError(t, err)
	require.Len(t, lessons, 2)
	assert.Equal(t, srv.URL+"/course/lesson1.html", lessons[0].URL)
}
