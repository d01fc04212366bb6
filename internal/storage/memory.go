package storage

import (
	"context"
	"sync"
)

// Memory is an in-memory kernel.StorageAdapter, used by cmd/fck-sim and
// tests that do not want a BoltDB file on disk.
type Memory struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// Get implements kernel.StorageAdapter.Get.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Set implements kernel.StorageAdapter.Set.
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}
