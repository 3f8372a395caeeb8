// Package chunker splits parsed document text into ordered, position-tracked
// units: headings, paragraphs, sentences and table rows.
//
// Every chunk's StartPos/EndPos are byte offsets into the original text and
// text[StartPos:EndPos] == chunk.Text always holds.
package chunker

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"mercator-hq/auditor/pkg/audit"
)

// Config controls chunk granularity.
type Config struct {
	// MaxChunkSize is the paragraph length in runes above which a paragraph is
	// split into sentences. Zero disables the limit.
	// Default: 500
	MaxChunkSize int `yaml:"max_chunk_size"`

	// SplitSentences always emits sentence chunks instead of paragraphs.
	SplitSentences bool `yaml:"split_sentences"`

	// MaxHeadingLength is the longest line, in runes, still considered a
	// numbered heading.
	// Default: 60
	MaxHeadingLength int `yaml:"max_heading_length"`
}

// DefaultConfig returns the default chunker configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxChunkSize:     500,
		MaxHeadingLength: 60,
	}
}

// Chunker turns document text into chunks. It is stateless and safe for
// concurrent use.
type Chunker struct {
	config *Config
	logger *slog.Logger
}

// New creates a Chunker. A nil config uses DefaultConfig.
func New(config *Config, logger *slog.Logger) *Chunker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxHeadingLength <= 0 {
		config.MaxHeadingLength = 60
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{config: config, logger: logger.With("component", "chunker")}
}

var (
	numberedHeading = regexp.MustCompile(`^(第[一二三四五六七八九十百千零〇\d]+[章节条部分编款]|[一二三四五六七八九十]+、|\d+(\.\d+)*[\s、.．]|[IVX]+\.\s)`)
	tableSeparator  = regexp.MustCompile(`^\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?$`)
)

// line is one source line with its byte span, trailing newline excluded.
type line struct {
	start, end int
	text       string
}

// Chunk splits text into chunks for documentID.
func (c *Chunker) Chunk(documentID, text string) []audit.DocumentChunk {
	b := &builder{docID: documentID, source: text}

	lines := splitLines(text)
	section := ""
	tableIndex := -1
	inTable := false
	rowIndex := 0
	var para []line

	flushPara := func() {
		if len(para) == 0 {
			return
		}
		c.emitParagraph(b, para[0].start, para[len(para)-1].end, section)
		para = nil
	}

	for _, ln := range lines {
		trimmed := strings.TrimSpace(ln.text)
		switch {
		case trimmed == "":
			flushPara()
			inTable = false

		case isTableLine(trimmed):
			flushPara()
			if tableSeparator.MatchString(trimmed) {
				continue
			}
			if !inTable {
				inTable = true
				tableIndex++
				rowIndex = 0
			}
			typ := audit.ChunkTableRow
			if rowIndex == 0 {
				typ = audit.ChunkTableHeader
			}
			b.add(ln.start, ln.end, typ, map[string]any{
				"section":     section,
				"table_index": tableIndex,
				"row_index":   rowIndex,
			})
			rowIndex++

		case c.isHeading(trimmed):
			flushPara()
			inTable = false
			b.add(ln.start, ln.end, audit.ChunkHeading, map[string]any{"section": section})
			section = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))

		default:
			inTable = false
			para = append(para, ln)
		}
	}
	flushPara()

	c.logger.Debug("document chunked",
		"document_id", documentID,
		"chunks", len(b.chunks),
		"bytes", len(text),
	)
	return b.chunks
}

// emitParagraph emits [start,end) as one paragraph, or as sentences when
// configured or when the paragraph is too long.
func (c *Chunker) emitParagraph(b *builder, start, end int, section string) {
	body := b.source[start:end]
	long := c.config.MaxChunkSize > 0 && utf8.RuneCountInString(body) > c.config.MaxChunkSize
	if !c.config.SplitSentences && !long {
		b.add(start, end, audit.ChunkParagraph, map[string]any{"section": section})
		return
	}
	for _, s := range splitSentences(body) {
		b.add(start+s[0], start+s[1], audit.ChunkSentence, map[string]any{
			"section":         section,
			"paragraph_start": start,
		})
	}
}

func (c *Chunker) isHeading(trimmed string) bool {
	if strings.HasPrefix(trimmed, "#") {
		return true
	}
	if utf8.RuneCountInString(trimmed) > c.config.MaxHeadingLength {
		return false
	}
	if !numberedHeading.MatchString(trimmed) {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(trimmed)
	return !isTerminator(last)
}

func isTableLine(trimmed string) bool {
	if strings.Contains(trimmed, "\t") {
		return true
	}
	return strings.Count(trimmed, "|") >= 2
}

// builder accumulates chunks, trimming surrounding whitespace while keeping
// offsets aligned with the source.
type builder struct {
	docID  string
	source string
	chunks []audit.DocumentChunk
}

func (b *builder) add(start, end int, typ audit.ChunkType, meta map[string]any) {
	for start < end {
		r, size := utf8.DecodeRuneInString(b.source[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		start += size
	}
	for end > start {
		r, size := utf8.DecodeLastRuneInString(b.source[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= size
	}
	if start == end {
		return
	}
	idx := len(b.chunks)
	b.chunks = append(b.chunks, audit.DocumentChunk{
		ID:         fmt.Sprintf("%s#%d", b.docID, idx),
		DocumentID: b.docID,
		Index:      idx,
		Text:       b.source[start:end],
		Type:       typ,
		StartPos:   start,
		EndPos:     end,
		Metadata:   meta,
	})
}

func splitLines(text string) []line {
	var lines []line
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			end := i
			if end > start && text[end-1] == '\r' {
				end--
			}
			lines = append(lines, line{start: start, end: end, text: text[start:end]})
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, line{start: start, end: len(text), text: text[start:]})
	}
	return lines
}

func isTerminator(r rune) bool {
	switch r {
	case '。', '！', '？', '；', '!', '?', ';', '.':
		return true
	}
	return false
}

// splitSentences returns [start,end) byte spans of sentences in s. An ASCII
// period only ends a sentence when followed by whitespace or end of text, so
// decimals and abbreviations like "3.5" stay intact.
func splitSentences(s string) [][2]int {
	var spans [][2]int
	start := 0
	for i, r := range s {
		if !isTerminator(r) {
			continue
		}
		next := i + utf8.RuneLen(r)
		if r == '.' || r == '!' || r == '?' || r == ';' {
			if next < len(s) {
				nr, _ := utf8.DecodeRuneInString(s[next:])
				if !unicode.IsSpace(nr) {
					continue
				}
			}
		}
		spans = append(spans, [2]int{start, next})
		start = next
	}
	if start < len(s) {
		spans = append(spans, [2]int{start, len(s)})
	}
	return spans
}
