package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"docsage/internal/contextutil"
)

// SQLiteStore implements Store on an embedded SQLite database. Similarity is
// computed in-process with brute-force cosine/dot scans, which is plenty for
// per-document collections of a few hundred segments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed store. The schema is created by
// storage.Migrate; the db handle is shared with the notes repository.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Exists reports whether the collection exists.
func (s *SQLiteStore) Exists(ctx context.Context, collection string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM collections WHERE name = ?", collection,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return true, nil
}

// Create registers the collection. The insert is idempotent; a concurrent
// second creator lands on the conflict clause and then validates parameters.
func (s *SQLiteStore) Create(ctx context.Context, collection string, dimension int, metric Metric) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (name, dimension, metric) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO NOTHING`,
		collection, dimension, string(metric),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	var gotDim int
	var gotMetric string
	err = s.db.QueryRowContext(ctx,
		"SELECT dimension, metric FROM collections WHERE name = ?", collection,
	).Scan(&gotDim, &gotMetric)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if gotDim != dimension || gotMetric != string(metric) {
		return fmt.Errorf("%w: collection %s has dimension %d metric %s, want %d %s",
			ErrSchemaConflict, collection, gotDim, gotMetric, dimension, metric)
	}
	return nil
}

// Upsert inserts or replaces points keyed by (collection, sequence number).
func (s *SQLiteStore) Upsert(ctx context.Context, collection string, points []Point) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO points (collection, seq, point_id, vector, text, page, source_locator)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (collection, seq) DO UPDATE SET
		 vector = excluded.vector, text = excluded.text, page = excluded.page, source_locator = excluded.source_locator`,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	var failed []int
	var lastErr error
	for _, p := range points {
		if _, err := stmt.ExecContext(ctx,
			collection, p.SequenceNumber, PointID(collection, p.SequenceNumber),
			encodeVector(p.Vector), p.Text, p.Page, p.SourceLocator,
		); err != nil {
			failed = append(failed, p.SequenceNumber)
			lastErr = err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(failed) > 0 {
		return &UpsertError{FailedSequences: failed, Err: lastErr}
	}
	logger.DebugContext(ctx, "upserted points", "collection", collection, "count", len(points))
	return nil
}

// Query scans the collection's points and returns the topK most similar,
// ordered by descending score with ties broken by ascending sequence number.
func (s *SQLiteStore) Query(ctx context.Context, collection string, vector []float32, topK int) ([]Scored, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be greater than 0")
	}

	var metric string
	err := s.db.QueryRowContext(ctx,
		"SELECT metric FROM collections WHERE name = ?", collection,
	).Scan(&metric)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, vector, text, page, source_locator FROM points WHERE collection = ?", collection,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var results []Scored
	for rows.Next() {
		var p Point
		var blob []byte
		if err := rows.Scan(&p.SequenceNumber, &blob, &p.Text, &p.Page, &p.SourceLocator); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		p.Vector = decodeVector(blob)
		results = append(results, Scored{Point: p, Score: score(Metric(metric), vector, p.Vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	sortScored(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete removes the collection and its points. Idempotent.
func (s *SQLiteStore) Delete(ctx context.Context, collection string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM points WHERE collection = ?", collection); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", collection); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// score computes similarity under the collection's metric. Euclidean is
// negated so that "higher is better" holds for every metric.
func score(metric Metric, a, b []float32) float32 {
	switch metric {
	case MetricDot:
		return dot(a, b)
	case MetricEuclidean:
		return -euclidean(a, b)
	default:
		return cosine(a, b)
	}
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func cosine(a, b []float32) float32 {
	na := norm(a)
	nb := norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot(a, b) / (na * nb)
}

func euclidean(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

func norm(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

// encodeVector packs a float32 slice as little-endian bytes for BLOB storage.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}
