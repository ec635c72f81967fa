package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"docsage/internal/contextutil"
)

// upsertBatchSize bounds a single upsert call so one bad batch does not
// discard the whole build's points.
const upsertBatchSize = 64

// QdrantStore implements Store against a managed Qdrant deployment.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore creates a Qdrant-backed store. urlStr should be in the
// format "http://host:port" (e.g. "http://localhost:6333"); the gRPC port
// is derived from the HTTP port.
func NewQdrantStore(urlStr string) (*QdrantStore, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334 // Default gRPC port
	if parsedURL.Port() != "" {
		if httpPort, err := strconv.Atoi(parsedURL.Port()); err == nil {
			// gRPC port is typically HTTP port + 1
			port = httpPort + 1
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantStore{client: client}, nil
}

// Exists reports whether the collection exists.
func (s *QdrantStore) Exists(ctx context.Context, collection string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return exists, nil
}

// Create creates the collection, tolerating a concurrent creator. The
// "already exists" response is success as long as the existing parameters
// match; a mismatch is ErrSchemaConflict.
func (s *QdrantStore) Create(ctx context.Context, collection string, dimension int, metric Metric) error {
	logger := contextutil.LoggerFromContext(ctx)

	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: distanceFor(metric),
		}),
	})
	if err == nil {
		logger.InfoContext(ctx, "collection created", "collection", collection, "dimension", dimension, "metric", metric)
		return nil
	}

	// Create-first rather than check-then-create: a concurrent first writer
	// wins and everyone else validates against what it wrote.
	exists, existsErr := s.client.CollectionExists(ctx, collection)
	if existsErr != nil || !exists {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return s.validateSchema(ctx, collection, dimension, metric)
}

// validateSchema compares an existing collection's parameters against the
// requested ones.
func (s *QdrantStore) validateSchema(ctx context.Context, collection string, dimension int, metric Metric) error {
	info, err := s.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	config := info.GetConfig()
	if config == nil || config.GetParams() == nil {
		return fmt.Errorf("%w: collection %s has no readable config", ErrSchemaConflict, collection)
	}
	vectorsConfig := config.GetParams().GetVectorsConfig()
	if vectorsConfig == nil || vectorsConfig.GetParams() == nil {
		return fmt.Errorf("%w: collection %s has no vector params", ErrSchemaConflict, collection)
	}

	params := vectorsConfig.GetParams()
	if int(params.GetSize()) != dimension {
		return fmt.Errorf("%w: collection %s has dimension %d, want %d", ErrSchemaConflict, collection, params.GetSize(), dimension)
	}
	if params.GetDistance() != distanceFor(metric) {
		return fmt.Errorf("%w: collection %s has distance %s, want %s", ErrSchemaConflict, collection, params.GetDistance(), distanceFor(metric))
	}
	return nil
}

// Upsert inserts or replaces points in batches. Points are keyed by their
// deterministic id, so repeated upserts of the same segment overwrite.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(points) == 0 {
		return nil
	}

	var failed []int
	var lastErr error
	for start := 0; start < len(points); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}
		batch := points[start:end]

		qdrantPoints := make([]*qdrant.PointStruct, 0, len(batch))
		for _, point := range batch {
			qdrantPoints = append(qdrantPoints, &qdrant.PointStruct{
				Id:      qdrant.NewID(PointID(collection, point.SequenceNumber)),
				Vectors: qdrant.NewVectors(point.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"sequence_number": point.SequenceNumber,
					"text":            point.Text,
					"page":            point.Page,
					"source_locator":  point.SourceLocator,
				}),
			})
		}

		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         qdrantPoints,
		})
		if err != nil {
			for _, p := range batch {
				failed = append(failed, p.SequenceNumber)
			}
			lastErr = err
			logger.ErrorContext(ctx, "failed to upsert batch", "collection", collection, "from", start, "to", end, "error", err)
			continue
		}
	}

	if len(failed) > 0 {
		return &UpsertError{FailedSequences: failed, Err: fmt.Errorf("%w: %v", ErrBackendUnavailable, lastErr)}
	}
	logger.InfoContext(ctx, "upserted points", "collection", collection, "count", len(points))
	return nil
}

// Query returns the topK most similar points, ordered by descending score
// with ties broken by ascending sequence number.
func (s *QdrantStore) Query(ctx context.Context, collection string, vector []float32, topK int) ([]Scored, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if topK <= 0 {
		return nil, fmt.Errorf("topK must be greater than 0")
	}

	limit := uint64(topK)
	scoredPoints, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	results := make([]Scored, 0, len(scoredPoints))
	for _, hit := range scoredPoints {
		payload := hit.GetPayload()
		results = append(results, Scored{
			Point: Point{
				SequenceNumber: payloadInt(payload, "sequence_number"),
				Text:           payloadString(payload, "text"),
				Page:           payloadInt(payload, "page"),
				SourceLocator:  payloadString(payload, "source_locator"),
			},
			Score: hit.GetScore(),
		})
	}

	sortScored(results)
	logger.DebugContext(ctx, "query completed", "collection", collection, "topk", topK, "results", len(results))
	return results, nil
}

// Delete removes the collection. Deleting a non-existent collection is a no-op.
func (s *QdrantStore) Delete(ctx context.Context, collection string) error {
	logger := contextutil.LoggerFromContext(ctx)

	err := s.client.DeleteCollection(ctx, collection)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	logger.InfoContext(ctx, "collection deleted", "collection", collection)
	return nil
}

func distanceFor(metric Metric) qdrant.Distance {
	switch metric {
	case MetricDot:
		return qdrant.Distance_Dot
	case MetricEuclidean:
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "doesn't exist") || strings.Contains(msg, "does not exist")
}

func payloadInt(payload map[string]*qdrant.Value, key string) int {
	if v, ok := payload[key]; ok && v != nil {
		return int(v.GetIntegerValue())
	}
	return 0
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok && v != nil {
		return v.GetStringValue()
	}
	return ""
}

// sortScored orders hits by descending score, ascending sequence on ties.
func sortScored(results []Scored) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].SequenceNumber < results[j].SequenceNumber
	})
}
