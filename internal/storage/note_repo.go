package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_note_store.go -package=mocks docsage/internal/storage NoteStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

// NoteStore defines the interface for research-note storage operations.
// Notes are keyed by the same content id as the document's vector
// collection, so notes and index share addressing.
type NoteStore interface {
	// Get returns the saved notes for a content id.
	// Returns empty string and ErrNotFound if none exist.
	Get(ctx context.Context, contentID string) (string, error)
	// Append adds text to the notes for a content id, creating the record
	// if needed.
	Append(ctx context.Context, contentID, text string) error
}

// NoteRepo provides methods for research-note operations.
// It implements the NoteStore interface.
type NoteRepo struct {
	db *sql.DB
}

// NewNoteRepo creates a new NoteRepo.
func NewNoteRepo(db *sql.DB) *NoteRepo {
	return &NoteRepo{db: db}
}

// Get returns the saved notes for a content id.
func (r *NoteRepo) Get(ctx context.Context, contentID string) (string, error) {
	var body string
	err := r.db.QueryRowContext(ctx,
		"SELECT body FROM research_notes WHERE content_id = ?", contentID,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query notes: %w", err)
	}
	return body, nil
}

// Append adds text to the notes for a content id. Existing notes grow by a
// blank-line separated block; a first append creates the record.
func (r *NoteRepo) Append(ctx context.Context, contentID, text string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO research_notes (content_id, body, updated_at)
		 VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (content_id) DO UPDATE SET
		 body = body || char(10) || char(10) || excluded.body, updated_at = CURRENT_TIMESTAMP`,
		contentID, text,
	)
	if err != nil {
		return fmt.Errorf("failed to append notes: %w", err)
	}
	return nil
}
