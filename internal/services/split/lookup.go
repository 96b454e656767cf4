package split

import (
	"context"
	"strings"
	"sync"
	"time"

	"defilens/internal/adapters/upstream"
	"defilens/internal/domain/split"
	"defilens/internal/metrics"
	"defilens/pkg/errors"
	"defilens/pkg/logger"
)

// categoryIndex is an immutable protocol→category index. Upstream
// breakdown payloads key protocols inconsistently by display name or slug
// depending on endpoint, hence the two maps.
type categoryIndex struct {
	byName map[string]string
	bySlug map[string]string
}

// category resolves a protocol's category, trying the exact lowercased
// name first and falling back to the slug. Nil receiver and unknown
// protocols both resolve to "".
func (ix *categoryIndex) category(name string) string {
	if ix == nil || name == "" {
		return ""
	}
	if cat, ok := ix.byName[strings.ToLower(name)]; ok {
		return cat
	}
	if cat, ok := ix.bySlug[split.Slug(name)]; ok {
		return cat
	}
	return ""
}

// extended returns a copy of the index enriched with the categories an
// overview payload carries for its own protocols. The receiver is never
// mutated; snapshots handed to concurrent requests stay immutable.
func (ix *categoryIndex) extended(protocols []upstream.OverviewProtocol) *categoryIndex {
	if ix == nil {
		return nil
	}
	out := &categoryIndex{
		byName: make(map[string]string, len(ix.byName)+len(protocols)),
		bySlug: make(map[string]string, len(ix.bySlug)+len(protocols)),
	}
	for k, v := range ix.byName {
		out.byName[k] = v
	}
	for k, v := range ix.bySlug {
		out.bySlug[k] = v
	}
	for _, p := range protocols {
		cat := strings.ToLower(p.Category)
		if cat == "" {
			continue
		}
		if p.Name != "" {
			out.byName[strings.ToLower(p.Name)] = cat
		}
		if p.DisplayName != "" {
			out.byName[strings.ToLower(p.DisplayName)] = cat
		}
		if p.Slug != "" {
			out.bySlug[strings.ToLower(p.Slug)] = cat
		}
	}
	return out
}

// CategoryLookup holds the process-wide protocol-category index with a
// TTL. Concurrent requests during a miss each rebuild independently; the
// last writer wins and replaces the snapshot atomically. The refresher
// worker keeps the index warm so request paths rarely hit the miss case.
type CategoryLookup struct {
	client *upstream.Client
	ttl    time.Duration
	log    *logger.Logger

	mu        sync.RWMutex
	index     *categoryIndex
	fetchedAt time.Time
}

// NewCategoryLookup creates an empty lookup; the first Index call fills it.
func NewCategoryLookup(client *upstream.Client, ttl time.Duration) *CategoryLookup {
	return &CategoryLookup{
		client: client,
		ttl:    ttl,
		log:    logger.Get().With("component", "category_lookup"),
	}
}

// Index returns the current index snapshot, rebuilding it when the TTL has
// lapsed. Returns nil when the protocols list cannot be fetched and no
// fresh snapshot exists; category filters then degrade to pass-through.
func (l *CategoryLookup) Index(ctx context.Context) *categoryIndex {
	l.mu.RLock()
	index, fetchedAt := l.index, l.fetchedAt
	l.mu.RUnlock()

	if index != nil && time.Since(fetchedAt) < l.ttl {
		metrics.CategoryLookupHits.WithLabelValues("hit").Inc()
		return index
	}

	metrics.CategoryLookupHits.WithLabelValues("miss").Inc()
	if err := l.Refresh(ctx); err != nil {
		l.log.Warnw("Failed to rebuild protocol category lookup", "error", err)
		return nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.index
}

// Size returns how many protocols the current index covers.
func (l *CategoryLookup) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.index == nil {
		return 0
	}
	return len(l.index.byName)
}

// Refresh rebuilds the index from the protocols list unconditionally.
func (l *CategoryLookup) Refresh(ctx context.Context) error {
	resp, err := l.client.FetchProtocols(ctx)
	if err != nil {
		metrics.CategoryLookupHits.WithLabelValues("refresh_error").Inc()
		return errors.Wrap(err, "fetch protocols for category lookup")
	}

	index := &categoryIndex{
		byName: make(map[string]string, len(resp.Protocols)),
		bySlug: make(map[string]string, len(resp.Protocols)),
	}
	for _, p := range resp.Protocols {
		cat := strings.ToLower(p.Category)
		if cat == "" || p.Name == "" {
			continue
		}
		index.byName[strings.ToLower(p.Name)] = cat
		index.bySlug[split.Slug(p.Name)] = cat
		if p.Slug != "" {
			index.bySlug[strings.ToLower(p.Slug)] = cat
		}
	}

	l.mu.Lock()
	l.index = index
	l.fetchedAt = time.Now()
	l.mu.Unlock()

	l.log.Debugw("Rebuilt protocol category lookup", "protocols", len(index.byName))
	return nil
}
