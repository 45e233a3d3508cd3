package cart

import (
	"context"
	"sync"
)

// MemorySnapshotStore 内存快照存储（本地模式与测试）
type MemorySnapshotStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	saves int
}

// NewMemorySnapshotStore 创建内存存储
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{data: make(map[string][]byte)}
}

// Load 读取快照
func (m *MemorySnapshotStore) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// Save 写入快照
func (m *MemorySnapshotStore) Save(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(payload))
	copy(stored, payload)
	m.data[key] = stored
	m.saves++
	return nil
}

// Delete 删除快照
func (m *MemorySnapshotStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Saves 累计写入次数
func (m *MemorySnapshotStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
