// Package index owns the document index lifecycle: deciding whether a
// vector collection must be built, building it exactly once, and exposing
// existence checks. The vector backend is the single source of truth for
// "does an index exist"; the in-memory state map is an advisory
// short-circuit that is always reconcilable against a fresh backend probe.
package index

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"docsage/internal/contextutil"
	"docsage/internal/fetch"
	"docsage/internal/llm"
	"docsage/internal/metrics"
	"docsage/internal/segmenter"
	"docsage/internal/vectorstore"
)

// State is the lifecycle state of an index.
type State int

const (
	StateAbsent State = iota
	StateBuilding
	StateReady
	// StateStale is never entered automatically: the system has no signal
	// that a source document changed, so staleness is resolved only by an
	// explicit reload.
	StateStale
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	case StateStale:
		return "stale"
	case StateFailed:
		return "failed"
	default:
		return "absent"
	}
}

// Handle describes an index owned by the Manager.
type Handle struct {
	ContentID  string
	Collection string
	Backend    string
	State      State
}

// Config carries the build parameters shared by every collection.
type Config struct {
	// Backend is a label for handles: "managed" or "local".
	Backend   string
	Dimension int
	Metric    vectorstore.Metric
	// EmbedBatchSize bounds texts per embedding call; EmbedRate caps
	// embedding calls per second, the managed endpoints are rate limited.
	EmbedBatchSize int
	EmbedRate      float64
}

// Manager orchestrates identifier, segmenter, embedder, and vector store
// into an idempotent build pipeline.
type Manager struct {
	store    vectorstore.Store
	embedder llm.Embedder
	source   fetch.Source
	seg      *segmenter.Segmenter
	cfg      Config

	limiter *rate.Limiter
	group   singleflight.Group

	mu     sync.Mutex
	states map[string]State
}

// NewManager creates a Manager.
func NewManager(store vectorstore.Store, embedder llm.Embedder, source fetch.Source, seg *segmenter.Segmenter, cfg Config) *Manager {
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 16
	}
	if cfg.EmbedRate <= 0 {
		cfg.EmbedRate = 5
	}
	return &Manager{
		store:    store,
		embedder: embedder,
		source:   source,
		seg:      seg,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.EmbedRate), 1),
		states:   map[string]State{},
	}
}

// Check probes the backend for the collection without building.
func (m *Manager) Check(ctx context.Context, collection string) (bool, error) {
	exists, err := m.store.Exists(ctx, collection)
	if err != nil {
		return false, err
	}
	if exists {
		m.setState(collection, StateReady)
	} else if m.state(collection) == StateReady {
		// Ready in memory but gone on the backend: someone deleted it out
		// from under us. The backend wins.
		m.setState(collection, StateAbsent)
	}
	return exists, nil
}

// Ensure returns a Ready handle, building the index first if the backend
// does not have it. Repeated calls for an existing index are cheap
// existence probes; at most one full build runs per collection at a time,
// and concurrent callers share the first caller's build.
func (m *Manager) Ensure(ctx context.Context, reference, contentID, collection string) (Handle, error) {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := m.store.Exists(ctx, collection)
	if err != nil {
		return m.handle(contentID, collection), err
	}
	if exists {
		m.setState(collection, StateReady)
		logger.DebugContext(ctx, "index already exists", "collection", collection)
		return m.handle(contentID, collection), nil
	}

	return m.build(ctx, contentID, collection, func() ([]byte, error) {
		return m.source.Fetch(ctx, reference)
	})
}

// Reload unconditionally deletes the collection and rebuilds it from the
// source document. This is the only path out of a stale or corrupt index.
func (m *Manager) Reload(ctx context.Context, reference, contentID, collection string) (Handle, error) {
	if err := m.store.Delete(ctx, collection); err != nil {
		return m.handle(contentID, collection), err
	}
	m.setState(collection, StateAbsent)
	return m.build(ctx, contentID, collection, func() ([]byte, error) {
		return m.source.Fetch(ctx, reference)
	})
}

// RebuildFromContent deletes the collection and rebuilds it from bytes the
// caller already holds. Used for indexing saved research notes, which live
// in local storage rather than behind a document reference.
func (m *Manager) RebuildFromContent(ctx context.Context, contentID, collection string, content []byte) (Handle, error) {
	if err := m.store.Delete(ctx, collection); err != nil {
		return m.handle(contentID, collection), err
	}
	m.setState(collection, StateAbsent)
	fetched := make([]byte, len(content))
	copy(fetched, content)
	return m.build(ctx, contentID, collection, func() ([]byte, error) {
		return fetched, nil
	})
}

// build runs the full pipeline behind a singleflight keyed by collection,
// so two users opening the same never-indexed document trigger one build.
// The pipeline runs on the initiating caller's context: a joiner shares
// that context's cancellation and deadline, and if the initiator gives up
// the shared build fails for everyone. The state still resolves to Failed,
// and the next Ensure starts a fresh build.
func (m *Manager) build(ctx context.Context, contentID, collection string, load func() ([]byte, error)) (Handle, error) {
	_, err, shared := m.group.Do(collection, func() (any, error) {
		return nil, m.runBuild(ctx, collection, load)
	})
	if shared {
		contextutil.LoggerFromContext(ctx).DebugContext(ctx, "joined in-flight build", "collection", collection)
	}
	return m.handle(contentID, collection), err
}

// runBuild is the build pipeline: load, segment, embed, create, upsert.
// It always leaves the collection in Ready or Failed; a finished call never
// leaves Building behind.
func (m *Manager) runBuild(ctx context.Context, collection string, load func() ([]byte, error)) (err error) {
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()

	m.setState(collection, StateBuilding)
	defer func() {
		metrics.IndexBuildDuration.WithLabelValues(m.cfg.Backend).Observe(time.Since(start).Seconds())
		if err != nil {
			m.setState(collection, StateFailed)
			metrics.IndexBuildsTotal.WithLabelValues(m.cfg.Backend, "error").Inc()
			logger.ErrorContext(ctx, "index build failed", "collection", collection, "error", err)
		} else {
			m.setState(collection, StateReady)
			metrics.IndexBuildsTotal.WithLabelValues(m.cfg.Backend, "ok").Inc()
			logger.InfoContext(ctx, "index build completed", "collection", collection, "took", time.Since(start))
		}
	}()

	content, err := load()
	if err != nil {
		return err
	}

	segments, err := m.seg.Segment(content)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "document segmented", "collection", collection, "segments", len(segments))
	metrics.IndexSegments.WithLabelValues(m.cfg.Backend).Observe(float64(len(segments)))

	vectors, err := m.embedAll(ctx, segments)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	// Idempotent create: a concurrent builder that lost the race treats
	// "already exists with matching schema" as success.
	if err = m.store.Create(ctx, collection, m.cfg.Dimension, m.cfg.Metric); err != nil {
		return err
	}

	points := make([]vectorstore.Point, len(segments))
	for i, seg := range segments {
		points[i] = vectorstore.Point{
			SequenceNumber: seg.SequenceNumber,
			Vector:         vectors[i],
			Text:           seg.Text,
			Page:           seg.Page,
			SourceLocator:  seg.SourceLocator,
		}
	}
	if err = m.store.Upsert(ctx, collection, points); err != nil {
		// Partial uploads are not rolled back; reload clears them.
		return err
	}
	return nil
}

// embedAll embeds segment texts in rate-limited batches, preserving order.
func (m *Manager) embedAll(ctx context.Context, segments []segmenter.Segment) ([][]float32, error) {
	vectors := make([][]float32, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(segments); start += m.cfg.EmbedBatchSize {
		end := start + m.cfg.EmbedBatchSize
		if end > len(segments) {
			end = len(segments)
		}
		g.Go(func() error {
			if err := m.limiter.Wait(gctx); err != nil {
				return err
			}
			texts := make([]string, end-start)
			for i, seg := range segments[start:end] {
				texts[i] = seg.Text
			}
			batch, err := m.embedder.EmbedTexts(gctx, texts)
			if err != nil {
				return err
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (m *Manager) handle(contentID, collection string) Handle {
	return Handle{
		ContentID:  contentID,
		Collection: collection,
		Backend:    m.cfg.Backend,
		State:      m.state(collection),
	}
}

func (m *Manager) state(collection string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[collection]
}

func (m *Manager) setState(collection string, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == StateAbsent {
		delete(m.states, collection)
		return
	}
	m.states[collection] = s
}
