package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Lesson is one syllabus entry.
type Lesson struct {
	Title string
	URL   string
}

// Syllabus fetches an index page and returns its lesson links.
func (c *URLConverter) Syllabus(ctx context.Context, indexURL string) ([]Lesson, error) {
	body, _, err := c.fetch(ctx, indexURL)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(indexURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url %q", ErrFetch, indexURL)
	}
	return ParseSyllabus(bytes.NewReader(body), base)
}

// ParseSyllabus returns every link nested in a <dd> element, in document
// order. Relative links are resolved against base; duplicates and
// non-http links are skipped.
func ParseSyllabus(r io.Reader, base *url.URL) ([]Lesson, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing syllabus: %w", err)
	}

	var (
		lessons []Lesson
		seen    = map[string]bool{}
	)
	var walk func(n *html.Node, inDD bool)
	walk = func(n *html.Node, inDD bool) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Dd:
				inDD = true
			case atom.A:
				if inDD {
					if l, ok := lessonFromAnchor(n, base); ok && !seen[l.URL] {
						seen[l.URL] = true
						lessons = append(lessons, l)
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child, inDD)
		}
	}
	walk(doc, false)
	return lessons, nil
}

func lessonFromAnchor(n *html.Node, base *url.URL) (Lesson, bool) {
	var href string
	for _, a := range n.Attr {
		if a.Key == "href" {
			href = strings.TrimSpace(a.Val)
			break
		}
	}
	if href == "" || strings.HasPrefix(href, "#") {
		return Lesson{}, false
	}
	u, err := url.Parse(href)
	if err != nil {
		return Lesson{}, false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Lesson{}, false
	}
	u.Fragment = ""
	return Lesson{Title: strings.Join(strings.Fields(nodeText(n)), " "), URL: u.String()}, true
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
