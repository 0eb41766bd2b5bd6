package cache

import (
	"context"
	"sync"

	"github.com/Sternrassler/storefront-client/pkg/domain"
)

const layerMemory = "memory"

// Memory is the process-local, unbounded page store.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]domain.PageResult
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]domain.PageResult)}
}

// Get returns the stored page for key, or ErrCacheMiss.
func (m *Memory) Get(_ context.Context, key Key) (domain.PageResult, error) {
	m.mu.RLock()
	result, ok := m.entries[key.String()]
	m.mu.RUnlock()

	if !ok {
		CacheMisses.WithLabelValues(layerMemory).Inc()
		return domain.PageResult{}, ErrCacheMiss
	}
	CacheHits.WithLabelValues(layerMemory).Inc()
	return result, nil
}

// Put stores result under key, replacing any previous value.
func (m *Memory) Put(_ context.Context, key Key, result domain.PageResult) error {
	m.mu.Lock()
	m.entries[key.String()] = result
	m.mu.Unlock()

	CachePuts.WithLabelValues(layerMemory).Inc()
	return nil
}

// Clear drops every entry.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]domain.PageResult)
	m.mu.Unlock()

	CacheClears.WithLabelValues(layerMemory).Inc()
	return nil
}

// Len returns the number of stored pages.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
