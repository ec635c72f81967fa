// Package query answers natural-language questions against an existing
// index. The engine never builds an index implicitly: callers must run the
// build path first, keeping the read and write paths independently
// reasoned-about.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"docsage/internal/contextutil"
	"docsage/internal/llm"
	"docsage/internal/vectorstore"
)

// errEmptyRetrieval marks a query whose retrieval returned zero segments.
// Ask and AskStream catch it and degrade to a fixed "no relevant content"
// answer, so it never escapes the engine.
var errEmptyRetrieval = errors.New("retrieval returned no segments")

// noContextAnswer is returned when retrieval comes back empty.
const noContextAnswer = "I couldn't find any relevant content in this document to answer the question."

// maxContextRunes bounds the assembled context window handed to the
// generation model.
const maxContextRunes = 8000

const systemPrompt = "You are a research assistant that answers questions about a publication " +
	"using only the provided excerpts. If the excerpts do not contain enough information " +
	"to answer, say so. Cite page numbers when the excerpts carry them."

// Retrieved describes one segment used to answer a question.
type Retrieved struct {
	SequenceNumber int     `json:"sequence_number"`
	Score          float32 `json:"score"`
	Page           int     `json:"page,omitempty"`
	SourceLocator  string  `json:"source_locator,omitempty"`
}

// Result is the answer to a question plus the segments that produced it.
// For streamed answers, Answer is empty and the tokens went to the caller.
type Result struct {
	Answer    string
	Segments  []Retrieved
	NoContext bool
}

// Engine retrieves and generates answers against built indexes.
type Engine struct {
	store    vectorstore.Store
	embedder llm.Embedder
	gen      llm.Generator
}

// NewEngine creates a query engine.
func NewEngine(store vectorstore.Store, embedder llm.Embedder, gen llm.Generator) *Engine {
	return &Engine{
		store:    store,
		embedder: embedder,
		gen:      gen,
	}
}

// Ask answers a question from the collection's topK most similar segments.
// Returns vectorstore.ErrCollectionNotFound if the index was never built.
func (e *Engine) Ask(ctx context.Context, collection, question string, topK int) (Result, error) {
	messages, result, err := e.prepare(ctx, collection, question, topK)
	if errors.Is(err, errEmptyRetrieval) {
		return Result{Answer: noContextAnswer, NoContext: true}, nil
	}
	if err != nil {
		return Result{}, err
	}

	answer, err := e.gen.Chat(ctx, messages)
	if err != nil {
		return Result{}, fmt.Errorf("generation failed: %w", err)
	}
	result.Answer = answer
	return result, nil
}

// AskStream answers like Ask but relays generated tokens to onToken as they
// arrive. The stream is finite and non-restartable; a canned no-context
// answer is delivered as a single token.
func (e *Engine) AskStream(ctx context.Context, collection, question string, topK int, onToken func(token string) error) (Result, error) {
	messages, result, err := e.prepare(ctx, collection, question, topK)
	if errors.Is(err, errEmptyRetrieval) {
		if err := onToken(noContextAnswer); err != nil {
			return Result{}, err
		}
		return Result{Answer: noContextAnswer, NoContext: true}, nil
	}
	if err != nil {
		return Result{}, err
	}

	if err := e.gen.ChatStream(ctx, messages, onToken); err != nil {
		return Result{}, fmt.Errorf("generation failed: %w", err)
	}
	result.Answer = ""
	return result, nil
}

// prepare runs the shared retrieve-and-assemble steps: existence check,
// question embedding, topK retrieval, dedup, and context assembly.
func (e *Engine) prepare(ctx context.Context, collection, question string, topK int) ([]llm.Message, Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := e.store.Exists(ctx, collection)
	if err != nil {
		return nil, Result{}, err
	}
	if !exists {
		return nil, Result{}, fmt.Errorf("%w: %s", vectorstore.ErrCollectionNotFound, collection)
	}

	embeddings, err := e.embedder.EmbedTexts(ctx, []string{question})
	if err != nil {
		return nil, Result{}, fmt.Errorf("failed to embed question: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, Result{}, fmt.Errorf("no embedding returned for question")
	}

	hits, err := e.store.Query(ctx, collection, embeddings[0], topK)
	if err != nil {
		return nil, Result{}, err
	}

	hits = dedupe(hits)
	logger.InfoContext(ctx, "retrieval completed", "collection", collection, "topk", topK, "hits", len(hits))

	if len(hits) == 0 {
		return nil, Result{}, fmt.Errorf("%w: %s", errEmptyRetrieval, collection)
	}

	result := Result{Segments: make([]Retrieved, 0, len(hits))}
	var contextBuilder strings.Builder
	contextBuilder.WriteString("--- Excerpts from the document ---\n\n")
	used := 0

	for _, hit := range hits {
		n := utf8.RuneCountInString(hit.Text)
		if used > 0 && used+n > maxContextRunes {
			break
		}
		used += n

		if hit.Page > 0 {
			fmt.Fprintf(&contextBuilder, "[Page %d]", hit.Page)
		}
		if hit.SourceLocator != "" {
			fmt.Fprintf(&contextBuilder, " Section: %s", hit.SourceLocator)
		}
		contextBuilder.WriteString("\n")
		contextBuilder.WriteString(hit.Text)
		contextBuilder.WriteString("\n\n")

		result.Segments = append(result.Segments, Retrieved{
			SequenceNumber: hit.SequenceNumber,
			Score:          hit.Score,
			Page:           hit.Page,
			SourceLocator:  hit.SourceLocator,
		})
	}
	contextBuilder.WriteString("--- End excerpts ---")

	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("%s\n\n%s", question, contextBuilder.String())},
	}
	return messages, result, nil
}

// dedupe drops hits that duplicate an earlier sequence number or repeat
// identical text, which can happen when a failed build left partial points
// behind before a retry re-upserted them.
func dedupe(hits []vectorstore.Scored) []vectorstore.Scored {
	seenSeq := make(map[int]bool, len(hits))
	seenText := make(map[string]bool, len(hits))
	out := hits[:0]
	for _, h := range hits {
		if seenSeq[h.SequenceNumber] || seenText[h.Text] {
			continue
		}
		seenSeq[h.SequenceNumber] = true
		seenText[h.Text] = true
		out = append(out, h)
	}
	return out
}
