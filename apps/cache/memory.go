// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package cache

import (
	"context"
	"encoding/json"
	"sync"
)

// Memory is an in-memory Cache. The zero value is ready to use.
type Memory struct {
	mu      sync.RWMutex
	entries []Entry
}

var _ Cache = (*Memory)(nil)
var _ Serializer = (*Memory)(nil)

// NewMemory returns an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{}
}

// Add implements Cache.Add.
func (m *Memory) Add(ctx context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		m.put(e)
	}
	return nil
}

// put must be called with the write lock held.
func (m *Memory) put(e Entry) {
	k := e.Key()
	for i := range m.entries {
		if m.entries[i].Key() == k {
			m.entries[i] = e
			return
		}
	}
	m.entries = append(m.entries, e)
}

// Remove implements Cache.Remove.
func (m *Memory) Remove(ctx context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rm := range entries {
		k := rm.Key()
		kept := m.entries[:0]
		for _, e := range m.entries {
			if e.Key() == k && e.AccessToken == rm.AccessToken && e.RefreshToken == rm.RefreshToken {
				continue
			}
			kept = append(kept, e)
		}
		m.entries = kept
	}
	return nil
}

// Find implements Cache.Find. Results are returned in insertion order.
func (m *Memory) Find(ctx context.Context, q Query) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found []Entry
	for _, e := range m.entries {
		if q.Matches(e) {
			found = append(found, e)
		}
	}
	return found, nil
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Entries returns a copy of every entry.
func (m *Memory) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry(nil), m.entries...)
}

// Clear removes every entry.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
}

// Marshal implements Marshaler.
func (m *Memory) Marshal() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(m.entries)
}

// Unmarshal implements Unmarshaler. The cache content is replaced.
func (m *Memory) Unmarshal(b []byte) error {
	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	for _, e := range entries {
		m.put(e)
	}
	return nil
}

var (
	defaultMu    sync.Mutex
	defaultCache *Memory
)

// Default returns the process wide cache used when no cache is configured.
func Default() *Memory {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultCache == nil {
		defaultCache = NewMemory()
	}
	return defaultCache
}

// ResetDefault replaces the process wide cache with an empty one.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultCache = NewMemory()
}
