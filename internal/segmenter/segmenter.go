// Package segmenter turns raw extracted-document bytes into an ordered
// sequence of bounded text segments suitable for embedding. Input is the
// plain-text/markdown output of the upstream extraction pipeline; inline
// placeholders such as "[Image: page_3_image_1.png]" pass through untouched.
package segmenter

import (
	"bytes"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// ErrExtraction is returned when the byte stream is not parseable text or
// contains no extractable content. Fatal to the build that requested it.
var ErrExtraction = errors.New("document contains no extractable text")

// minSegmentSize is the threshold below which a trailing fragment is folded
// into the previous segment instead of standing alone.
const minSegmentSize = 50

// Segment is a bounded unit of document text with positional metadata.
type Segment struct {
	SequenceNumber int
	Text           string
	// Page is the 1-based page the segment starts on, derived from form-feed
	// page breaks emitted by the extraction pipeline. Best-effort.
	Page int
	// SourceLocator is the heading path enclosing the segment when the
	// source carries markdown structure, e.g. "# Results > ## Methods".
	SourceLocator string
}

// Segmenter splits documents into segments of at most targetSize runes,
// preferring sentence and paragraph boundaries over hard cuts.
type Segmenter struct {
	targetSize int
	parser     goldmark.Markdown
}

// New creates a Segmenter with the given target segment size in runes.
func New(targetSize int) *Segmenter {
	return &Segmenter{
		targetSize: targetSize,
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
	}
}

// Segment splits content into ordered segments. Sequence numbers start at 0
// and are contiguous. Concatenating the segment texts in order reproduces
// the document's extractable text (modulo whitespace normalization).
func (s *Segmenter) Segment(content []byte) ([]Segment, error) {
	if len(content) == 0 || bytes.IndexByte(content, 0) >= 0 || !utf8.Valid(content) {
		return nil, ErrExtraction
	}

	var segments []Segment
	seq := 0

	// Extraction emits one form feed per page break; a document without any
	// is treated as a single page.
	pages := strings.Split(string(content), "\f")
	for pageIdx, page := range pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		for _, sec := range s.sections([]byte(page)) {
			for _, piece := range s.pack(sec.text) {
				segments = append(segments, Segment{
					SequenceNumber: seq,
					Text:           piece,
					Page:           pageIdx + 1,
					SourceLocator:  sec.headingPath,
				})
				seq++
			}
		}
	}

	if len(segments) == 0 {
		return nil, ErrExtraction
	}
	return segments, nil
}

// section is a run of text under one heading path.
type section struct {
	headingPath string
	text        string
}

// headingInfo tracks heading level and text for building heading paths.
type headingInfo struct {
	level int
	text  string
}

// sections walks the markdown AST and gathers text runs keyed by heading
// hierarchy. Plain text with no markdown structure comes back as a single
// section with an empty heading path.
func (s *Segmenter) sections(content []byte) []section {
	reader := text.NewReader(content)
	doc := s.parser.Parser().Parse(reader)

	var (
		out     []section
		builder strings.Builder
		stack   []headingInfo
		curPath string
	)

	flush := func() {
		if strings.TrimSpace(builder.String()) != "" {
			out = append(out, section{headingPath: curPath, text: builder.String()})
		}
		builder.Reset()
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			flush()
			level := node.Level
			for len(stack) > 0 && stack[len(stack)-1].level >= level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, headingInfo{level: level, text: nodeText(node, content)})
			curPath = headingPath(stack)
			// Heading text also flows into the section body via the child
			// text nodes below, so concatenated segments keep every word.
			return ast.WalkContinue, nil

		case *ast.Text:
			builder.Write(node.Segment.Value(content))
			if node.SoftLineBreak() || node.HardLineBreak() {
				builder.WriteByte('\n')
			}
			return ast.WalkContinue, nil

		case *ast.String:
			builder.Write(node.Value)
			return ast.WalkContinue, nil

		case *ast.CodeBlock:
			writeCodeLines(&builder, node.Lines(), content)
			return ast.WalkContinue, nil

		case *ast.FencedCodeBlock:
			writeCodeLines(&builder, node.Lines(), content)
			return ast.WalkContinue, nil

		case *ast.Paragraph, *ast.List, *ast.ListItem:
			if builder.Len() > 0 && !strings.HasSuffix(builder.String(), "\n") {
				builder.WriteByte('\n')
			}
			return ast.WalkContinue, nil

		default:
			// Table rows from the extension render as pipe-joined cells so
			// tabular content stays retrievable as text.
			kind := n.Kind().String()
			if strings.Contains(kind, "TableRow") || strings.Contains(kind, "TableHeader") {
				if builder.Len() > 0 && !strings.HasSuffix(builder.String(), "\n") {
					builder.WriteByte('\n')
				}
				builder.WriteString(rowText(n, content))
				builder.WriteByte('\n')
				return ast.WalkSkipChildren, nil
			}
			return ast.WalkContinue, nil
		}
	})

	flush()
	return out
}

// pack splits a section's text into pieces of at most targetSize runes,
// breaking at sentence boundaries where possible. A trailing fragment
// shorter than minSegmentSize merges into the previous piece.
func (s *Segmenter) pack(sectionText string) []string {
	sentences := splitSentences(sectionText)
	if len(sentences) == 0 {
		return nil
	}

	var pieces []string
	var cur strings.Builder
	curRunes := 0

	emit := func() {
		if cur.Len() > 0 {
			pieces = append(pieces, strings.TrimSpace(cur.String()))
			cur.Reset()
			curRunes = 0
		}
	}

	for _, sent := range sentences {
		n := utf8.RuneCountInString(sent)
		if n > s.targetSize {
			// A single oversized sentence gets hard-split at word boundaries.
			emit()
			pieces = append(pieces, hardSplit(sent, s.targetSize)...)
			continue
		}
		if curRunes > 0 && curRunes+1+n > s.targetSize {
			emit()
		}
		if curRunes > 0 {
			cur.WriteByte(' ')
			curRunes++
		}
		cur.WriteString(sent)
		curRunes += n
	}
	emit()

	// Fold an undersized trailing fragment into its predecessor.
	if len(pieces) >= 2 {
		last := pieces[len(pieces)-1]
		if utf8.RuneCountInString(last) < minSegmentSize {
			pieces[len(pieces)-2] = pieces[len(pieces)-2] + " " + last
			pieces = pieces[:len(pieces)-1]
		}
	}
	return pieces
}

// splitSentences breaks text after sentence terminators or newlines.
// Unterminated trailing text is kept so no content is dropped.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	flush := func(end int) {
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			sentences = append(sentences, s)
		}
		start = end
	}

	for i, r := range runes {
		switch r {
		case '\n':
			flush(i + 1)
		case '.', '!', '?':
			if sentenceBoundary(runes, i) {
				flush(i + 1)
			}
		}
	}
	flush(len(runes))
	return sentences
}

// sentenceBoundary reports whether the terminator at i ends a sentence:
// end of text, or whitespace followed by an uppercase letter or digit.
// Abbreviations ("e.g. this"), decimals ("3.14") and file names inside
// placeholders ("[Image: page_3_image_1.png]") stay whole.
func sentenceBoundary(runes []rune, i int) bool {
	j := i + 1
	if j == len(runes) {
		return true
	}
	if !unicode.IsSpace(runes[j]) {
		return false
	}
	for j < len(runes) && unicode.IsSpace(runes[j]) {
		j++
	}
	return j == len(runes) || unicode.IsUpper(runes[j]) || unicode.IsDigit(runes[j])
}

// hardSplit cuts text into pieces of at most limit runes, preferring the
// last space within each window.
func hardSplit(text string, limit int) []string {
	var pieces []string
	runes := []rune(text)
	for start := 0; start < len(runes); {
		end := start + limit
		if end >= len(runes) {
			pieces = append(pieces, strings.TrimSpace(string(runes[start:])))
			break
		}
		cut := end
		if idx := strings.LastIndex(string(runes[start:end]), " "); idx > 0 {
			cut = start + utf8.RuneCountInString(string(runes[start:end])[:idx]) + 1
		}
		pieces = append(pieces, strings.TrimSpace(string(runes[start:cut])))
		start = cut
	}
	return pieces
}

func writeCodeLines(builder *strings.Builder, lines *text.Segments, content []byte) {
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		builder.Write(line.Value(content))
	}
}

// nodeText extracts the plain text of a node and its children.
func nodeText(n ast.Node, content []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(content))
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// rowText joins a table row's cells with pipe separators.
func rowText(row ast.Node, content []byte) string {
	var b strings.Builder
	cells := 0
	_ = ast.Walk(row, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if strings.Contains(node.Kind().String(), "TableCell") {
			if cells > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(nodeText(node, content))
			cells++
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

// headingPath builds "# H1 > ## H2" style paths from the heading stack.
func headingPath(stack []headingInfo) string {
	parts := make([]string, len(stack))
	for i, h := range stack {
		parts[i] = strings.Repeat("#", h.level) + " " + h.text
	}
	return strings.Join(parts, " > ")
}
