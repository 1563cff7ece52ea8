package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// MemStore is an in-memory ObjectStore used as a test double and for
// local development without an object store running.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string]memObject

	// FailPuts makes the next n Put calls fail, for exercising retry
	// paths in tests.
	FailPuts int
}

type memObject struct {
	data        []byte
	contentType string
}

func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string]memObject)}
}

func (m *MemStore) Put(_ context.Context, key string, body io.Reader, _ int64, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailPuts > 0 {
		m.FailPuts--
		return fmt.Errorf("injected put failure for %s", key)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[key] = memObject{data: data, contentType: contentType}
	return nil
}

func (m *MemStore) Stat(_ context.Context, key string) (*ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &ObjectInfo{Size: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (m *MemStore) StreamGet(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	info, err := m.Stat(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	m.mu.RLock()
	obj := m.objects[key]
	m.mu.RUnlock()

	return io.NopCloser(bytes.NewReader(obj.data)), info, nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemStore) DeleteMany(ctx context.Context, keys []string) (bool, []string) {
	for _, key := range keys {
		_ = m.Delete(ctx, key)
	}
	return true, nil
}

func (m *MemStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.objects[key]; !ok {
		return "", ErrNotFound
	}
	return "memory://" + key, nil
}

// Len reports the number of stored objects.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
