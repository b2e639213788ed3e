package spancache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Mirascope/spancache/pkg/spankv"
)

var (
	// ErrMissingTimeRange is returned by Search when either bound of
	// the required time range is absent.
	ErrMissingTimeRange = errors.New("search requires both startTime and endTime")

	// ErrMissingSpanIdentity is returned by Ingest when a span in the
	// batch lacks a trace or span id. The batch is rejected before any
	// storage write.
	ErrMissingSpanIdentity = errors.New("span is missing traceId or spanId")

	// ErrMissingEnvironment is returned when an operation does not name
	// the environment partition it targets. Rejected before any routing,
	// so nothing ever reads or writes an unnamed partition.
	ErrMissingEnvironment = errors.New("an environment id is required")
)

// Partition is one logical cache instance, scoped per environment. All
// operations on a partition run to completion under its lock, so the
// merge, retention, and query logic never observe interleaved writes.
// Distinct partitions are fully independent.
type Partition struct {
	mu      sync.Mutex
	env     string
	store   spankv.Store
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// Ingest merges a batch of spans into the cache. Each span is merged
// with any existing record for its (traceId, spanId), rewritten with a
// fresh write time and expiry, and the retention sweep runs once after
// the whole batch. Writes are not atomic across the batch: spans
// written before a storage failure remain committed, and a retry will
// complete the rest because the merge is idempotent.
func (p *Partition) Ingest(ctx context.Context, batch *IngestBatch) error {
	for i := range batch.Spans {
		if batch.Spans[i].TraceID == "" || batch.Spans[i].SpanID == "" {
			return ErrMissingSpanIdentity
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	receivedAt := batch.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}
	batchID := uuid.NewString()

	merges := 0
	for _, span := range batch.Spans {
		incoming := CachedSpan{
			Span:               span,
			ReceivedAt:         receivedAt,
			EnvironmentID:      batch.EnvironmentID,
			ProjectID:          batch.ProjectID,
			OrganizationID:     batch.OrganizationID,
			ServiceName:        batch.ServiceName,
			ServiceVersion:     batch.ServiceVersion,
			ResourceAttributes: batch.ResourceAttributes,
		}

		key := spanKey(span.TraceID, span.SpanID)
		existing, err := p.loadSpan(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			merges++
		}

		merged := mergeSpans(existing, incoming)
		payload, err := json.Marshal(&merged)
		if err != nil {
			return fmt.Errorf("serialize span %s: %w", key, err)
		}

		record := CacheRecord{
			Span:       merged,
			ReceivedAt: now,
			ExpiresAt:  now.Add(p.cfg.TTL),
			SizeBytes:  int64(len(payload)),
		}
		encoded, err := json.Marshal(&record)
		if err != nil {
			return fmt.Errorf("serialize record %s: %w", key, err)
		}
		if err := p.store.Put(ctx, key, encoded); err != nil {
			return fmt.Errorf("write span %s: %w", key, err)
		}
	}

	p.metrics.spansIngested(p.env, len(batch.Spans), merges)
	p.logger.DebugContext(ctx, "batch ingested",
		"environment", p.env,
		"batch_id", batchID,
		"spans", len(batch.Spans),
		"merged", merges,
	)

	return p.sweep(ctx, now)
}

// Search scans all non-expired cached spans, keeps the ones satisfying
// every supplied predicate, and returns the sorted summary projection.
func (p *Partition) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		return nil, ErrMissingTimeRange
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	entries, err := p.store.List(ctx, spanKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("search scan: %w", err)
	}

	var matched []*CachedSpan
	for _, entry := range entries {
		rec, err := decodeRecord(entry.Value)
		if err != nil || rec.Expired(now) {
			continue
		}
		if matchesSearch(&rec.Span, req) {
			matched = append(matched, &rec.Span)
		}
	}

	sortSpans(matched, req.SortBy, req.SortOrder)

	spans := make([]SummarySpan, len(matched))
	for i, s := range matched {
		spans[i] = summarize(s)
	}

	return &SearchResult{
		Spans:   spans,
		Total:   len(spans),
		HasMore: false,
	}, nil
}

// TraceDetail reassembles one trace from its cached spans: the detail
// projection sorted ascending by start time, the root span identity,
// and the total trace duration.
func (p *Partition) TraceDetail(ctx context.Context, traceID string) (*TraceDetail, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	entries, err := p.store.List(ctx, traceKeyPrefix(traceID))
	if err != nil {
		return nil, fmt.Errorf("trace scan %s: %w", traceID, err)
	}

	var spans []*CachedSpan
	for _, entry := range entries {
		rec, err := decodeRecord(entry.Value)
		if err != nil || rec.Expired(now) {
			continue
		}
		spans = append(spans, &rec.Span)
	}

	sortSpans(spans, SortByStartTime, SortOrderAsc)
	rootSpanID, totalDurationMs := reconstructTrace(spans)

	details := make([]DetailSpan, len(spans))
	for i, s := range spans {
		details[i] = detail(s)
	}

	return &TraceDetail{
		TraceID:         traceID,
		Spans:           details,
		RootSpanID:      rootSpanID,
		TotalDurationMs: totalDurationMs,
	}, nil
}

// Exists reports whether a live record exists for (traceId, spanId).
// Observing an expired record deletes it; this is the only read with a
// write side effect.
func (p *Partition) Exists(ctx context.Context, traceID, spanID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := spanKey(traceID, spanID)
	data, err := p.store.Get(ctx, key)
	if errors.Is(err, spankv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read span %s: %w", key, err)
	}

	rec, err := decodeRecord(data)
	if err != nil || rec.Expired(p.now()) {
		if err := p.store.Delete(ctx, key); err != nil {
			return false, fmt.Errorf("delete expired span %s: %w", key, err)
		}
		return false, nil
	}
	return true, nil
}

// loadSpan fetches the current merged span for key, treating absence
// and undecodable payloads as "no existing record".
func (p *Partition) loadSpan(ctx context.Context, key string) (*CachedSpan, error) {
	data, err := p.store.Get(ctx, key)
	if errors.Is(err, spankv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read span %s: %w", key, err)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, nil
	}
	return &rec.Span, nil
}

func decodeRecord(data []byte) (*CacheRecord, error) {
	var rec CacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode cache record: %w", err)
	}
	return &rec, nil
}

// Service owns the storage handle and hands out one partition per
// environment id, each with its own namespaced keyspace.
type Service struct {
	mu         sync.Mutex
	store      spankv.Store
	cfg        Config
	logger     *slog.Logger
	metrics    *Metrics
	now        func() time.Time
	partitions map[string]*Partition
}

// NewService creates the cache service over a storage backend.
func NewService(store spankv.Store, cfg Config, logger *slog.Logger, metrics *Metrics) *Service {
	return &Service{
		store:      store,
		cfg:        cfg,
		logger:     logger.With("component", "spancache"),
		metrics:    metrics,
		now:        time.Now,
		partitions: make(map[string]*Partition),
	}
}

// WithClock overrides the service clock. Intended for tests that need
// to advance time past the TTL.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Partition returns the cache partition owning environmentID, creating
// it on first use.
func (s *Service) Partition(environmentID string) *Partition {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.partitions[environmentID]; ok {
		return p
	}
	p := &Partition{
		env:     environmentID,
		store:   spankv.WithPrefix(s.store, "env:"+environmentID+":"),
		cfg:     s.cfg,
		logger:  s.logger,
		metrics: s.metrics,
		now:     func() time.Time { return s.now() },
	}
	s.partitions[environmentID] = p
	return p
}

// Ingest routes a batch to its environment's partition.
func (s *Service) Ingest(ctx context.Context, batch *IngestBatch) error {
	if batch.EnvironmentID == "" {
		return ErrMissingEnvironment
	}
	return s.Partition(batch.EnvironmentID).Ingest(ctx, batch)
}

// Search runs a query against one environment's partition.
func (s *Service) Search(ctx context.Context, environmentID string, req *SearchRequest) (*SearchResult, error) {
	if environmentID == "" {
		return nil, ErrMissingEnvironment
	}
	return s.Partition(environmentID).Search(ctx, req)
}

// TraceDetail reassembles a trace within one environment's partition.
func (s *Service) TraceDetail(ctx context.Context, environmentID, traceID string) (*TraceDetail, error) {
	if environmentID == "" {
		return nil, ErrMissingEnvironment
	}
	return s.Partition(environmentID).TraceDetail(ctx, traceID)
}

// Exists checks for a live span record within one environment's
// partition.
func (s *Service) Exists(ctx context.Context, environmentID, traceID, spanID string) (bool, error) {
	if environmentID == "" {
		return false, ErrMissingEnvironment
	}
	return s.Partition(environmentID).Exists(ctx, traceID, spanID)
}
