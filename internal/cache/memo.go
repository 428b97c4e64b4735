// Package cache memoizes derived tables by the content hash of their input, so
// re-running a dashboard filter never re-runs the normalizer on unchanged data.
package cache

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"dashnorm/internal"
)

// Memo is a bounded LRU of computed values. Concurrent misses on the same key
// share one computation. Cached values are shared: callers must not mutate them.
type Memo[V any] struct {
	entries *lru.Cache[string, V]
	group   singleflight.Group
	hits    atomic.Int64
	misses  atomic.Int64
}

func New[V any](size int) (*Memo[V], error) {
	if size <= 0 {
		size = 1
	}
	entries, err := lru.New[string, V](size)
	if err != nil {
		return nil, err
	}
	return &Memo[V]{entries: entries}, nil
}

// Get returns the cached value for key, computing and storing it on a miss.
// Errors are not cached. The bool reports whether the value came from the cache.
func (m *Memo[V]) Get(key string, compute func() (V, error)) (V, bool, error) {
	if v, ok := m.entries.Get(key); ok {
		m.hits.Add(1)
		return v, true, nil
	}

	res, err, _ := m.group.Do(key, func() (any, error) {
		if v, ok := m.entries.Get(key); ok {
			return v, nil
		}
		m.misses.Add(1)
		v, err := compute()
		if err != nil {
			return v, err
		}
		m.entries.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return res.(V), false, nil
}

// Invalidate drops every entry whose key starts with the given content hash.
func (m *Memo[V]) Invalidate(hash string) int {
	removed := 0
	prefix := hash + "/"
	for _, key := range m.entries.Keys() {
		if strings.HasPrefix(key, prefix) && m.entries.Remove(key) {
			removed++
		}
	}
	return removed
}

func (m *Memo[V]) Purge() {
	m.entries.Purge()
}

func (m *Memo[V]) Len() int {
	return m.entries.Len()
}

func (m *Memo[V]) Stats() (hits, misses int64) {
	return m.hits.Load(), m.misses.Load()
}

// Key builds a cache key from a content hash and the parts that shape the result.
func Key(hash string, parts ...string) string {
	return hash + "/" + strings.Join(parts, "/")
}

// Fingerprint hashes parts into one short token, e.g. a cache key plus the
// definition of whatever shaped the cached value.
func Fingerprint(parts ...string) string {
	h := xxhash.New()
	for _, p := range parts {
		_, _ = h.WriteString(p)
		_, _ = h.Write([]byte{0x1f})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// HashTable hashes the schema and every cell of a table. Row maps are read in
// column order, and absent cells hash differently from empty strings.
func HashTable(table *internal.Table) string {
	h := xxhash.New()
	cols := table.Columns
	known := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		known[c] = struct{}{}
		_, _ = h.WriteString(c)
		_, _ = h.Write([]byte{0x1f})
	}
	_, _ = h.Write([]byte{0x1e})

	writeCell := func(row internal.Row, c string) {
		if cell, ok := row[c]; ok && cell != nil {
			_, _ = h.Write([]byte{0x01})
			_, _ = h.WriteString(*cell)
		} else {
			_, _ = h.Write([]byte{0x00})
		}
		_, _ = h.Write([]byte{0x1f})
	}
	for _, row := range table.Rows {
		for _, c := range cols {
			writeCell(row, c)
		}
		for _, c := range extraColumns(row, known) {
			_, _ = h.WriteString(c)
			writeCell(row, c)
		}
		_, _ = h.Write([]byte{0x1e})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func extraColumns(row internal.Row, known map[string]struct{}) []string {
	if len(row) == 0 {
		return nil
	}
	var extra []string
	for c := range row {
		if _, ok := known[c]; !ok {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	return extra
}
