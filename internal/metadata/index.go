package metadata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/metricsd/internal/config"
	"github.com/fyrsmithlabs/metricsd/internal/sanitize"
	"github.com/fyrsmithlabs/metricsd/internal/telemetry"
	"github.com/fyrsmithlabs/metricsd/internal/vectorstore"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// MaxQueryLength bounds a sanitized search query, in characters.
	MaxQueryLength = 1000

	// MaxFieldLength bounds every free-text metadata field, in characters.
	MaxFieldLength = 2000

	// DefaultSearchLimit is the conventional maxResults for callers
	// without a preference.
	DefaultSearchLimit = 10

	// DefaultMaxResults caps maxResults; larger requests are reduced to it.
	DefaultMaxResults = 100

	// DefaultCacheSize bounds the search result cache.
	DefaultCacheSize = 128

	// DefaultOperationTimeout bounds each vector backend call.
	DefaultOperationTimeout = 30 * time.Second
)

// Config tunes an Index.
type Config struct {
	CacheSize        int
	MaxResults       int
	OperationTimeout time.Duration
}

// ConfigFrom maps the index config section onto Config.
func ConfigFrom(c config.IndexConfig) Config {
	return Config{
		CacheSize:        c.CacheSize,
		MaxResults:       c.MaxResults,
		OperationTimeout: c.OperationTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = DefaultOperationTimeout
	}
	return c
}

type cacheKey struct {
	query string
	limit int
}

// Index stores metric metadata in a VectorIndex and answers similarity
// searches through a bounded cache.
//
// The cache evicts in insertion order: hits never refresh an entry. It is
// cleared by every successful Index or IndexBatch call and never expires
// otherwise. A search that overlaps an index call may return the
// pre-index ranking but never caches it.
type Index struct {
	store  VectorIndex
	cfg    Config
	logger *zap.Logger

	mu         sync.Mutex
	cache      *simplelru.LRU[cacheKey, []SearchResult]
	generation uint64

	group singleflight.Group
}

// NewIndex creates an Index over store.
func NewIndex(store VectorIndex, cfg Config, logger *zap.Logger) (*Index, error) {
	if store == nil {
		return nil, errors.New("metadata index requires a vector store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	cache, err := simplelru.NewLRU[cacheKey, []SearchResult](cfg.CacheSize, nil)
	if err != nil {
		return nil, fmt.Errorf("creating result cache: %w", err)
	}

	return &Index{
		store:  store,
		cfg:    cfg,
		logger: logger,
		cache:  cache,
	}, nil
}

// Index validates m, stores it under its name, replacing any previous
// entry, and clears the search cache. It returns the stored name.
//
// A missing name yields ErrMissingField. A malformed name or an
// over-long field yields a *ValidationError. Nothing is written when
// validation fails.
func (x *Index) Index(ctx context.Context, m MetricMetadata) (string, error) {
	names, err := x.IndexBatch(ctx, []MetricMetadata{m})
	if err != nil {
		return "", err
	}
	return names[0], nil
}

// IndexBatch validates every entry before writing any of them, then
// upserts them in one backend call and clears the cache once. When a name
// repeats, the last entry wins.
func (x *Index) IndexBatch(ctx context.Context, entries []MetricMetadata) ([]string, error) {
	if len(entries) == 0 {
		return []string{}, nil
	}

	names := make([]string, len(entries))
	docs := make([]vectorstore.Document, 0, len(entries))
	position := make(map[string]int, len(entries))
	for i, m := range entries {
		doc, err := prepare(m)
		if err != nil {
			telemetry.IndexOperations.WithLabelValues(telemetry.ResultInvalid).Inc()
			if len(entries) > 1 {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			return nil, err
		}
		names[i] = doc.ID
		if p, ok := position[doc.ID]; ok {
			docs[p] = doc
			continue
		}
		position[doc.ID] = len(docs)
		docs = append(docs, doc)
	}

	opCtx, cancel := context.WithTimeout(ctx, x.cfg.OperationTimeout)
	defer cancel()
	if err := x.store.Upsert(opCtx, docs); err != nil {
		telemetry.IndexOperations.WithLabelValues(telemetry.ResultError).Inc()
		x.logger.Error("failed to index metric metadata",
			zap.Int("count", len(docs)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to index metric metadata: %w", err)
	}

	x.ClearCache()
	telemetry.IndexOperations.WithLabelValues(telemetry.ResultSuccess).Add(float64(len(docs)))
	x.logger.Debug("indexed metric metadata", zap.Int("count", len(docs)))
	return names, nil
}

// prepare validates m and turns it into a sanitized document.
func prepare(m MetricMetadata) (vectorstore.Document, error) {
	if m.Name == "" {
		return vectorstore.Document{}, fmt.Errorf("%w: name", ErrMissingField)
	}
	if err := sanitize.ValidateMetricName(m.Name); err != nil {
		return vectorstore.Document{}, invalid("name", err)
	}
	for _, f := range m.textFields() {
		if err := sanitize.ValidateLength(f.name, *f.value, MaxFieldLength); err != nil {
			return vectorstore.Document{}, invalid(f.name, err)
		}
	}

	for _, f := range m.textFields() {
		*f.value = sanitize.Text(*f.value)
	}

	return vectorstore.Document{
		ID:       m.Name,
		Content:  documentText(m),
		Metadata: m.toMap(),
	}, nil
}

// documentText builds the searchable text: the description when present,
// otherwise labeled classification fragments, otherwise the name.
func documentText(m MetricMetadata) string {
	if m.Description != "" {
		return m.Description
	}

	var parts []string
	for _, f := range []struct{ label, value string }{
		{"Category", m.Category},
		{"Subcategory", m.Subcategory},
		{"Golden signal", m.GoldenSignalType},
		{"Meter type", m.MeterType},
	} {
		if f.value != "" {
			parts = append(parts, f.label+": "+f.value)
		}
	}
	if len(parts) == 0 {
		return m.Name
	}
	return strings.Join(parts, ". ")
}

// Search returns up to maxResults metrics ranked by similarity to query.
//
// A blank query returns an empty slice. maxResults below 1 or a sanitized
// query longer than MaxQueryLength yields a *ValidationError; maxResults
// above the configured cap is reduced to it. Results are served from the
// cache when the same sanitized query and limit were seen since the last
// index call.
func (x *Index) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	q := sanitize.Text(query)
	if q == "" {
		return []SearchResult{}, nil
	}
	if err := sanitize.ValidateLength("query", q, MaxQueryLength); err != nil {
		return nil, invalid("query", err)
	}
	if maxResults < 1 {
		return nil, &ValidationError{
			Field:   "max_results",
			Message: fmt.Sprintf("must be at least 1, got %d", maxResults),
		}
	}
	if maxResults > x.cfg.MaxResults {
		maxResults = x.cfg.MaxResults
	}

	key := cacheKey{query: q, limit: maxResults}

	x.mu.Lock()
	if cached, ok := x.cache.Peek(key); ok {
		x.mu.Unlock()
		telemetry.CacheLookups.WithLabelValues(telemetry.ResultHit).Inc()
		return slices.Clone(cached), nil
	}
	gen := x.generation
	x.mu.Unlock()
	telemetry.CacheLookups.WithLabelValues(telemetry.ResultMiss).Inc()

	flightKey := strconv.FormatUint(gen, 10) + "\x00" + strconv.Itoa(maxResults) + "\x00" + q
	ch := x.group.DoChan(flightKey, func() (any, error) {
		// shared by every waiter, so it must outlive any single caller
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), x.cfg.OperationTimeout)
		defer cancel()
		return x.query(opCtx, q, maxResults)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	results := res.Val.([]SearchResult)

	x.mu.Lock()
	if x.generation == gen && !x.cache.Contains(key) {
		if evicted := x.cache.Add(key, results); evicted {
			telemetry.CacheEvictions.Inc()
		}
	}
	x.mu.Unlock()

	return slices.Clone(results), nil
}

func (x *Index) query(ctx context.Context, q string, k int) ([]SearchResult, error) {
	start := time.Now()
	matches, err := x.store.Query(ctx, q, k)
	telemetry.SearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		x.logger.Error("metadata search failed", zap.Int("k", k), zap.Error(err))
		return nil, fmt.Errorf("failed to search metric metadata: %w", err)
	}

	results := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, SearchResult{
			MetricMetadata: fromMap(m.ID, m.Metadata),
			Score:          score(m.Distance),
		})
	}
	slices.SortStableFunc(results, func(a, b SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// score converts a cosine distance to a similarity in [0,1].
func score(distance float64) float64 {
	s := 1 - distance
	switch {
	case math.IsNaN(s), s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

// Count returns the number of indexed metrics.
func (x *Index) Count(ctx context.Context) (int, error) {
	opCtx, cancel := context.WithTimeout(ctx, x.cfg.OperationTimeout)
	defer cancel()
	n, err := x.store.Count(opCtx)
	if err != nil {
		return 0, fmt.Errorf("failed to count metric metadata: %w", err)
	}
	return n, nil
}

// CacheLen returns the number of cached search results.
func (x *Index) CacheLen() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.cache.Len()
}

// ClearCache drops every cached search result.
func (x *Index) ClearCache() {
	x.mu.Lock()
	x.cache.Purge()
	x.generation++
	x.mu.Unlock()
	telemetry.CacheClears.Inc()
}
