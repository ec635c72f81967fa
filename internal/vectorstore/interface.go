// Package vectorstore defines the vector storage port and its two
// interchangeable backends: a managed remote store (Qdrant) and an embedded
// synchronous store (SQLite). Callers depend only on Store; backend choice
// is a wiring decision made once at startup.
package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_store.go -package=mocks docsage/internal/vectorstore Store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

var (
	// ErrBackendUnavailable signals a transient transport or backend fault,
	// distinct from "does not exist". Safe to retry with backoff.
	ErrBackendUnavailable = errors.New("vector backend unavailable")

	// ErrSchemaConflict signals a dimension/metric mismatch against an
	// existing collection. Fatal; requires an explicit reload.
	ErrSchemaConflict = errors.New("collection schema conflict")

	// ErrCollectionNotFound signals a query against a collection that was
	// never created.
	ErrCollectionNotFound = errors.New("collection not found")
)

// Metric is the similarity metric a collection is created with.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricDot       Metric = "dot"
	MetricEuclidean Metric = "euclidean"
)

// Point is a stored vector with its segment text and position metadata.
// Identity within a collection is derived from SequenceNumber, so re-upserting
// the same segment overwrites rather than duplicates.
type Point struct {
	SequenceNumber int
	Vector         []float32
	Text           string
	Page           int
	SourceLocator  string
}

// Scored is a query hit: a point plus its similarity score.
type Scored struct {
	Point
	Score float32
}

// Store is the vector storage port.
type Store interface {
	// Exists reports whether the collection exists. Backend unreachability
	// surfaces as ErrBackendUnavailable, never as "does not exist".
	Exists(ctx context.Context, collection string) (bool, error)

	// Create creates the collection. Creating an existing collection with
	// the same parameters is a no-op; differing parameters return
	// ErrSchemaConflict. Concurrent creators may both call this safely.
	Create(ctx context.Context, collection string, dimension int, metric Metric) error

	// Upsert inserts or replaces points by their deterministic identity.
	// Partial failures are reported via *UpsertError naming the failed
	// sequence numbers; surviving points are not rolled back.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Query returns the topK most similar points, ordered by descending
	// score with ties broken by ascending sequence number.
	Query(ctx context.Context, collection string, vector []float32, topK int) ([]Scored, error)

	// Delete removes the collection. Deleting a non-existent collection is
	// not an error.
	Delete(ctx context.Context, collection string) error
}

// PointID returns the deterministic identity of a point within a collection.
// Both backends use it, so concurrent builds of the same content overwrite
// each other's points instead of doubling them.
func PointID(collection string, sequence int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("docsage://"+collection+"/"+strconv.Itoa(sequence))).String()
}

// UpsertError reports which points failed during a partially-failed upsert.
type UpsertError struct {
	// FailedSequences lists the sequence numbers that were not stored.
	FailedSequences []int
	Err             error
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("upsert failed for %d points: %v", len(e.FailedSequences), e.Err)
}

func (e *UpsertError) Unwrap() error {
	return e.Err
}
