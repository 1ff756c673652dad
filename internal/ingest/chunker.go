package ingest

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// ChunkerConfig configures header splitting and oversize section splitting.
type ChunkerConfig struct {
	// Headers are the markdown header markers to split on, e.g. "###".
	// Metadata keys are "h" plus the marker length: "###" labels h3.
	Headers      []string
	ChunkSize    int // runes
	ChunkOverlap int
}

// Chunker splits markdown on header boundaries. Sections longer than
// ChunkSize runes are split again with a recursive character splitter and
// keep their parent's header metadata.
type Chunker struct {
	headers  []string // longest first
	size     int
	splitter textsplitter.RecursiveCharacter
}

// NewChunker validates cfg and builds a Chunker.
func NewChunker(cfg ChunkerConfig) (*Chunker, error) {
	if len(cfg.Headers) == 0 {
		cfg.Headers = []string{"###", "####"}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 512
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be within [0, %d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}

	headers := make([]string, 0, len(cfg.Headers))
	for _, h := range cfg.Headers {
		h = strings.TrimSpace(h)
		if h == "" || strings.Trim(h, "#") != "" {
			return nil, fmt.Errorf("invalid header marker %q", h)
		}
		headers = append(headers, h)
	}
	sort.Slice(headers, func(i, j int) bool { return len(headers[i]) > len(headers[j]) })

	return &Chunker{
		headers: headers,
		size:    cfg.ChunkSize,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		),
	}, nil
}

type section struct {
	lines    []string
	metadata map[string]string
}

func (s section) text() string {
	return strings.TrimSpace(strings.Join(s.lines, "\n"))
}

// Chunk splits doc into ordered chunks owned by documentID.
func (c *Chunker) Chunk(documentID string, doc Converted) ([]Chunk, error) {
	if strings.TrimSpace(doc.Markdown) == "" {
		return nil, ErrEmptyContent
	}

	sections := c.splitHeaders(doc.Markdown)
	if doc.TrimEdges {
		if len(sections) <= 2 {
			return nil, fmt.Errorf("%w: %d sections before trimming page edges", ErrNoChunks, len(sections))
		}
		sections = sections[1 : len(sections)-1]
	}

	var chunks []Chunk
	for _, s := range sections {
		text := s.text()
		pieces := []string{text}
		if utf8.RuneCountInString(text) > c.size {
			split, err := c.splitter.SplitText(text)
			if err != nil {
				return nil, fmt.Errorf("splitting section: %w", err)
			}
			pieces = split
		}
		for _, p := range pieces {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			chunks = append(chunks, Chunk{
				DocumentID: documentID,
				Position:   len(chunks),
				Text:       p,
				Metadata:   copyMetadata(s.metadata),
			})
		}
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	return chunks, nil
}

// splitHeaders groups lines under the active header path. Header lines are
// dropped from the text, fenced code blocks are never split, and sections
// without text are discarded.
func (c *Chunker) splitHeaders(markdown string) []section {
	var (
		out     []section
		current = section{metadata: map[string]string{}}
		active  = map[string]string{}
		fence   string
	)
	flush := func() {
		if current.text() != "" {
			out = append(out, current)
		}
		current = section{metadata: copyMetadata(active)}
	}

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)

		if fence != "" {
			if strings.HasPrefix(trimmed, fence) {
				fence = ""
			}
			current.lines = append(current.lines, line)
			continue
		}
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			fence = trimmed[:3]
			current.lines = append(current.lines, line)
			continue
		}

		if marker, label, ok := c.header(trimmed); ok {
			flush()
			level := len(marker)
			for key := range active {
				if headerLevel(key) >= level {
					delete(active, key)
				}
			}
			active[headerKey(marker)] = label
			current.metadata = copyMetadata(active)
			continue
		}
		current.lines = append(current.lines, line)
	}
	flush()
	return out
}

func (c *Chunker) header(line string) (marker, label string, ok bool) {
	for _, h := range c.headers {
		if strings.HasPrefix(line, h+" ") {
			label = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(line[len(h):]), "#"))
			if label == "" {
				return "", "", false
			}
			return h, label, true
		}
	}
	return "", "", false
}

func headerKey(marker string) string {
	return fmt.Sprintf("h%d", len(marker))
}

func headerLevel(key string) int {
	var n int
	_, _ = fmt.Sscanf(key, "h%d", &n)
	return n
}
