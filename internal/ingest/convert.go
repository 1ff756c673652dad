package ingest

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/gabriel-vasile/mimetype"
)

// Converted is a source normalized to markdown.
type Converted struct {
	Markdown string
	// TrimEdges marks documents whose first and last sections are page
	// chrome (navigation, footers) and should not be indexed.
	TrimEdges bool
}

// Converter normalizes a Source to markdown.
type Converter interface {
	Convert(ctx context.Context, src Source) (Converted, error)
}

// TextConverter passes markdown and plain text through.
type TextConverter struct{}

// Convert implements Converter.
func (TextConverter) Convert(_ context.Context, src Source) (Converted, error) {
	if strings.TrimSpace(src.Content) == "" {
		return Converted{}, ErrEmptyContent
	}
	return Converted{Markdown: normalizeNewlines(src.Content)}, nil
}

// HTMLConverter converts uploaded HTML to markdown.
type HTMLConverter struct{}

// Convert implements Converter.
func (HTMLConverter) Convert(_ context.Context, src Source) (Converted, error) {
	if strings.TrimSpace(src.Content) == "" {
		return Converted{}, ErrEmptyContent
	}
	md, err := htmlToMarkdown(src.Content, "")
	if err != nil {
		return Converted{}, err
	}
	return Converted{Markdown: md}, nil
}

func htmlToMarkdown(content, pageURL string) (string, error) {
	var (
		md  string
		err error
	)
	if pageURL != "" {
		// Resolves relative links against the page.
		md, err = htmltomarkdown.ConvertString(content, converter.WithDomain(pageURL))
	} else {
		md, err = htmltomarkdown.ConvertString(content)
	}
	if err != nil {
		return "", fmt.Errorf("converting html: %w", err)
	}
	if strings.TrimSpace(md) == "" {
		return "", ErrEmptyContent
	}
	return normalizeNewlines(md), nil
}

// URLConfig configures URLConverter.
type URLConfig struct {
	Timeout  time.Duration
	MaxBytes int64
	// UserAgent is sent with every request.
	UserAgent string
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// URLConverter fetches a page and converts it to markdown. HTML becomes
// markdown; markdown and plain bodies pass through; anything else is
// rejected with ErrUnsupportedType.
type URLConverter struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

// NewURLConverter creates a URLConverter.
func NewURLConverter(cfg URLConfig) *URLConverter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 * 1024 * 1024
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "tutord/1.0"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &URLConverter{client: client, maxBytes: cfg.MaxBytes, userAgent: cfg.UserAgent}
}

// Convert implements Converter. The page URL is src.Origin.
func (c *URLConverter) Convert(ctx context.Context, src Source) (Converted, error) {
	body, contentType, err := c.fetch(ctx, src.Origin)
	if err != nil {
		return Converted{}, err
	}
	if strings.TrimSpace(string(body)) == "" {
		return Converted{}, ErrEmptyContent
	}

	switch kind := classify(body, contentType); kind {
	case "html":
		md, err := htmlToMarkdown(string(body), src.Origin)
		if err != nil {
			return Converted{}, err
		}
		return Converted{Markdown: md, TrimEdges: true}, nil
	case "text":
		return Converted{Markdown: normalizeNewlines(string(body)), TrimEdges: true}, nil
	default:
		return Converted{}, fmt.Errorf("%w: %s served %s", ErrUnsupportedType, src.Origin, kind)
	}
}

func (c *URLConverter) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", fmt.Errorf("%w: invalid url %q", ErrFetch, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html, text/markdown;q=0.9, text/plain;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: %s returned %s", ErrFetch, rawURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading %s: %v", ErrFetch, rawURL, err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, "", fmt.Errorf("%w: %s exceeds %d bytes", ErrFetch, rawURL, c.maxBytes)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// classify returns "html", "text" or the sniffed MIME type. The declared
// Content-Type wins for markdown, which sniffing reports as plain text.
func classify(body []byte, contentType string) string {
	declared, _, _ := mime.ParseMediaType(contentType)
	switch declared {
	case "text/html", "application/xhtml+xml":
		return "html"
	case "text/markdown", "text/x-markdown", "text/plain":
		return "text"
	}

	sniffed := mimetype.Detect(body)
	switch {
	case sniffed.Is("text/html"), sniffed.Is("application/xhtml+xml"):
		return "html"
	case sniffed.Is("text/plain"):
		return "text"
	}
	return sniffed.String()
}

// Registry picks a Converter by document type.
type Registry struct {
	converters map[string]Converter
}

// NewRegistry registers the built-in converters: markdown, md, text, txt,
// html and url.
func NewRegistry(urls *URLConverter) *Registry {
	if urls == nil {
		urls = NewURLConverter(URLConfig{})
	}
	r := &Registry{converters: map[string]Converter{}}
	for _, t := range []string{"markdown", "md", "text", "txt"} {
		r.Register(t, TextConverter{})
	}
	r.Register("html", HTMLConverter{})
	r.Register("url", urls)
	return r
}

// Register adds or replaces the converter for a document type.
func (r *Registry) Register(documentType string, c Converter) {
	r.converters[strings.ToLower(documentType)] = c
}

// Types lists registered document types, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.converters))
	for t := range r.converters {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Convert converts src with the converter for its type. An empty type is
// inferred from the origin.
func (r *Registry) Convert(ctx context.Context, src Source) (Converted, error) {
	docType := ResolveType(src)
	c, ok := r.converters[docType]
	if !ok {
		return Converted{}, fmt.Errorf("%w: %q", ErrUnsupportedType, src.DocumentType)
	}
	return c.Convert(ctx, src)
}

// ResolveType returns the lowercase document type of src, inferring it from
// the origin when unset.
func ResolveType(src Source) string {
	if t := strings.ToLower(strings.TrimSpace(src.DocumentType)); t != "" {
		return t
	}
	if isURL(src.Origin) {
		return "url"
	}
	switch strings.ToLower(filepath.Ext(src.Origin)) {
	case ".md", ".markdown":
		return "markdown"
	case ".html", ".htm":
		return "html"
	default:
		return "text"
	}
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}
