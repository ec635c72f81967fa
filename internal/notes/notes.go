// Package notes coordinates the research-notes log: answers a user chose to
// keep, stored per document and addressable for retrieval like any other
// indexed content.
package notes

import (
	"context"
	"fmt"
	"strings"

	"docsage/internal/contextutil"
	"docsage/internal/index"
	"docsage/internal/storage"
)

// Coordinator appends and fetches notes keyed by content id, and can build
// a queryable index over the accumulated notes of a document.
type Coordinator struct {
	repo    storage.NoteStore
	manager *index.Manager
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(repo storage.NoteStore, manager *index.Manager) *Coordinator {
	return &Coordinator{
		repo:    repo,
		manager: manager,
	}
}

// Append adds an answer to the document's notes.
func (c *Coordinator) Append(ctx context.Context, contentID, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("empty note")
	}
	if err := c.repo.Append(ctx, contentID, text); err != nil {
		return err
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "note appended", "content_id", contentID, "length", len(text))
	return nil
}

// Fetch returns the document's accumulated notes.
// Returns storage.ErrNotFound when no notes were ever saved.
func (c *Coordinator) Fetch(ctx context.Context, contentID string) (string, error) {
	return c.repo.Get(ctx, contentID)
}

// Index rebuilds the notes collection for a document from its saved notes,
// so the notes themselves become queryable. Notes change on every append,
// so this is always a delete-then-rebuild.
func (c *Coordinator) Index(ctx context.Context, contentID, collection string) (index.Handle, error) {
	body, err := c.repo.Get(ctx, contentID)
	if err != nil {
		return index.Handle{}, err
	}
	return c.manager.RebuildFromContent(ctx, contentID, collection, []byte(body))
}
