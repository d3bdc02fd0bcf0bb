// Package cache provides the process-wide result cache shared by all chat
// sessions: a fingerprint-keyed tool-call cache, a normalized-query response
// cache, an ad-hoc context blob store, and a recent-query list for
// autocomplete. The cache is correctness-optional — a session produces the
// same answer whether or not it is populated; only latency changes.
//
// The cache is an explicitly constructed instance injected by the composition
// root and passed to every session and tool. It is safe for concurrent use:
// readers run concurrently, writers serialize through one lock.
package cache

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// maxResponses bounds the normalized-query response cache.
	maxResponses = 100
	// maxToolCalls bounds the fingerprint-keyed tool-call cache.
	maxToolCalls = 50
	// maxRecentQueries bounds the recent-query list.
	maxRecentQueries = 20
	// trimSlack is the extra headroom removed beyond the overflow when a
	// cache exceeds its capacity, so trims happen in batches rather than on
	// every insert.
	trimSlack = 10
)

// Stats reports the current entry counts per cache section.
type Stats struct {
	// Responses is the number of cached query responses.
	Responses int
	// Contexts is the number of cached context blobs.
	Contexts int
	// ToolCalls is the number of cached tool-call results.
	ToolCalls int
	// Recent is the number of recorded recent queries.
	Recent int
}

// Cache is the shared result cache. Construct with [New]; the zero value is
// not usable.
type Cache struct {
	mu sync.RWMutex

	responses map[string]string
	contexts  map[string]any
	toolCalls map[string]string
	recent    []string

	metrics *cacheMetrics
}

// New constructs an empty Cache registering its metrics against reg.
// Pass a fresh prometheus.NewRegistry() in tests to keep them hermetic.
func New(reg prometheus.Registerer) *Cache {
	return &Cache{
		responses: make(map[string]string),
		contexts:  make(map[string]any),
		toolCalls: make(map[string]string),
		metrics:   newCacheMetrics(reg),
	}
}

// NormalizeQuery returns the cache key form of a user query: lowercased and
// trimmed of surrounding whitespace.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// CacheResponse stores a response under the normalized query and records the
// query in the recent list.
func (c *Cache) CacheResponse(query, response string) {
	key := NormalizeQuery(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	before := len(c.responses)
	c.responses[key] = response
	c.recordQueryLocked(key)

	if before >= maxResponses {
		evicted := trimOldest(c.responses, before-maxResponses+trimSlack)
		c.metrics.evictions.WithLabelValues(sectionResponse).Add(float64(evicted))
	}
}

// CachedResponse returns the cached response for a query, if present.
func (c *Cache) CachedResponse(query string) (string, bool) {
	key := NormalizeQuery(query)

	c.mu.RLock()
	resp, ok := c.responses[key]
	c.mu.RUnlock()

	c.metrics.observe(sectionResponse, ok)
	return resp, ok
}

// HasResponse reports whether a response is cached for the query.
func (c *Cache) HasResponse(query string) bool {
	key := NormalizeQuery(query)
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.responses[key]
	return ok
}

// PutToolCall stores a tool result under the fingerprint of name + args.
func (c *Cache) PutToolCall(toolName string, args []Arg, result string) {
	key := Fingerprint(toolName, args)

	c.mu.Lock()
	defer c.mu.Unlock()

	before := len(c.toolCalls)
	c.toolCalls[key] = result

	if before >= maxToolCalls {
		evicted := trimOldest(c.toolCalls, before-maxToolCalls+trimSlack)
		c.metrics.evictions.WithLabelValues(sectionToolCall).Add(float64(evicted))
	}
}

// GetToolCall returns the cached result for a tool invocation, if present.
func (c *Cache) GetToolCall(toolName string, args []Arg) (string, bool) {
	key := Fingerprint(toolName, args)

	c.mu.RLock()
	result, ok := c.toolCalls[key]
	c.mu.RUnlock()

	c.metrics.observe(sectionToolCall, ok)
	return result, ok
}

// HasToolCall reports whether a result is cached for the tool invocation.
func (c *Cache) HasToolCall(toolName string, args []Arg) bool {
	key := Fingerprint(toolName, args)
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.toolCalls[key]
	return ok
}

// CacheContext stores an ad-hoc context blob under key. The context store is
// independent of the fingerprint caches and is not capacity-bounded; callers
// use a small fixed set of keys.
func (c *Cache) CacheContext(key string, blob any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contexts[key] = blob
}

// Context returns the context blob stored under key, if present.
func (c *Cache) Context(key string) (any, bool) {
	c.mu.RLock()
	blob, ok := c.contexts[key]
	c.mu.RUnlock()

	c.metrics.observe(sectionContext, ok)
	return blob, ok
}

// RecordQuery adds a normalized query to the recent list if absent.
// An already-present query keeps its position; it is not promoted.
func (c *Cache) RecordQuery(query string) {
	key := NormalizeQuery(query)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordQueryLocked(key)
}

// recordQueryLocked inserts key at the front of the recent list when absent,
// capping the list length. Caller holds c.mu.
func (c *Cache) recordQueryLocked(key string) {
	for _, q := range c.recent {
		if q == key {
			return
		}
	}
	c.recent = append([]string{key}, c.recent...)
	if len(c.recent) > maxRecentQueries {
		c.recent = c.recent[:maxRecentQueries]
	}
}

// RecentQueries returns the recorded queries, most recent first.
func (c *Cache) RecentQueries() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.recent))
	copy(out, c.recent)
	return out
}

// Suggestions returns recent queries containing the partial input,
// case-insensitively, most recent first.
func (c *Cache) Suggestions(partial string) []string {
	needle := strings.ToLower(partial)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	for _, q := range c.recent {
		if strings.Contains(q, needle) {
			out = append(out, q)
		}
	}
	return out
}

// Clear empties every cache section including the recent-query list.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = make(map[string]string)
	c.contexts = make(map[string]any)
	c.toolCalls = make(map[string]string)
	c.recent = nil
}

// ClearResponses empties only the response cache.
func (c *Cache) ClearResponses() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = make(map[string]string)
}

// ClearContexts empties only the context blob store.
func (c *Cache) ClearContexts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contexts = make(map[string]any)
}

// ClearToolCalls empties only the tool-call cache.
func (c *Cache) ClearToolCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolCalls = make(map[string]string)
}

// Stats returns current per-section entry counts.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Responses: len(c.responses),
		Contexts:  len(c.contexts),
		ToolCalls: len(c.toolCalls),
		Recent:    len(c.recent),
	}
}

// trimOldest removes the n "oldest" entries from m, returning the number
// removed. "Oldest" is approximated by ascending lexicographic key order, not
// insertion time — a deterministic bounded eviction, deliberately kept so two
// instances holding the same entries trim identically.
func trimOldest(m map[string]string, n int) int {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if n > len(keys) {
		n = len(keys)
	}
	for _, k := range keys[:n] {
		delete(m, k)
	}
	return n
}
