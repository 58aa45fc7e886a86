package cache

import (
	"context"
	"sync"
)

// Record 某个 URL 最近一次成功抓取的结果。只做整条替换，不做局部修改
type Record struct {
	// Token 源站返回的 Last-Modified，原样回传给 If-Modified-Since
	Token string `json:"token"`
	Body  string `json:"body"`
}

// Store URL → Record 的存储，生命周期由调用方管理
type Store interface {
	Get(ctx context.Context, url string) (Record, bool, error)
	Put(ctx context.Context, url string, rec Record) error
}

// Flusher 需要在一轮运行结束后落盘的存储实现（例如 FileStore）
type Flusher interface {
	Flush(ctx context.Context) error
}

// MemoryStore 进程内存储，适合单次运行
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Get(_ context.Context, url string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[url]
	return rec, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, url string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[url] = rec
	return nil
}

// Len 当前缓存的 URL 数
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Snapshot 返回所有记录的拷贝
func (m *MemoryStore) Snapshot() map[string]Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Record, len(m.records))
	for k, v := range m.records {
		out[k] = v
	}
	return out
}

// Load 用给定记录整体替换当前内容
func (m *MemoryStore) Load(records map[string]Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]Record, len(records))
	for k, v := range records {
		m.records[k] = v
	}
}
