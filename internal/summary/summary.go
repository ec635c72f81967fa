// Package summary generates concise publication summaries. Unlike the query
// path it works on the whole extracted document, not retrieved segments, so
// no index has to exist before a summary can be produced.
package summary

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"docsage/internal/contextutil"
	"docsage/internal/fetch"
	"docsage/internal/llm"
	"docsage/internal/segmenter"
)

// maxInputRunes bounds how much document text is handed to the generation
// model. Roughly 5,000 tokens worth of text.
const maxInputRunes = 25000

const summaryPrompt = "Create a concise and clear summary for the following text, " +
	"highlighting key insights and important points. Keep the summary short and " +
	"focused on essential information: "

// Summarizer fetches a document and produces a whole-document summary.
type Summarizer struct {
	source fetch.Source
	gen    llm.Generator
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(source fetch.Source, gen llm.Generator) *Summarizer {
	return &Summarizer{
		source: source,
		gen:    gen,
	}
}

// Summarize downloads the document behind reference and returns a concise
// summary of its text. Oversized documents are truncated to maxInputRunes
// before generation.
func (s *Summarizer) Summarize(ctx context.Context, reference string) (string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	content, err := s.source.Fetch(ctx, reference)
	if err != nil {
		return "", err
	}
	if bytes.IndexByte(content, 0) >= 0 || !utf8.Valid(content) {
		return "", fmt.Errorf("%w: document is not text", segmenter.ErrExtraction)
	}

	text := strings.TrimSpace(string(content))
	if text == "" {
		return "", fmt.Errorf("%w: document is empty", segmenter.ErrExtraction)
	}
	if runes := []rune(text); len(runes) > maxInputRunes {
		text = string(runes[:maxInputRunes])
		logger.DebugContext(ctx, "document truncated for summarization", "reference", reference, "runes", maxInputRunes)
	}

	answer, err := s.gen.Chat(ctx, []llm.Message{
		{Role: "user", Content: summaryPrompt + text},
	})
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}

	logger.InfoContext(ctx, "summary generated", "reference", reference, "summary_runes", utf8.RuneCountInString(answer))
	return answer, nil
}
