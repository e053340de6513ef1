package storage

import (
	"bytes"
	"context"
	"maps"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory implementation of ObjectStore for testing.
type MockStore struct {
	mu      sync.RWMutex
	objects map[string]*Object
	calls   MockCalls

	// PutErr, when set, is returned by every Put.
	PutErr error
}

// MockCalls tracks method invocations for test verification.
type MockCalls struct {
	Put    int
	Get    int
	Exists int
	Delete int
	List   int
	Clear  int
}

// NewMockStore creates a new in-memory object store.
func NewMockStore() *MockStore {
	return &MockStore{objects: make(map[string]*Object)}
}

func cloneObject(obj *Object) *Object {
	out := &Object{
		Key:      obj.Key,
		Type:     obj.Type,
		Data:     bytes.Clone(obj.Data),
		Metadata: obj.Metadata,
	}
	out.Metadata.Custom = maps.Clone(obj.Metadata.Custom)
	return out
}

// Put stores a copy of obj.
func (m *MockStore) Put(_ context.Context, obj *Object) error {
	if err := ValidateKey(obj.Key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Put++

	if m.PutErr != nil {
		return m.PutErr
	}

	stored := cloneObject(obj)
	now := time.Now().UTC()
	stored.Metadata.CreatedAt = now
	stored.Metadata.LastAccessed = now
	m.objects[obj.Key] = stored
	return nil
}

// Get retrieves a copy of an object by key.
func (m *MockStore) Get(_ context.Context, key string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Get++

	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound{Key: key}
	}
	obj.Metadata.LastAccessed = time.Now().UTC()
	return cloneObject(obj), nil
}

// Exists checks if an object exists.
func (m *MockStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Exists++

	_, ok := m.objects[key]
	return ok, nil
}

// Delete removes an object.
func (m *MockStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Delete++

	if _, ok := m.objects[key]; !ok {
		return ErrNotFound{Key: key}
	}
	delete(m.objects, key)
	return nil
}

// List returns sorted keys matching the type filter.
func (m *MockStore) List(_ context.Context, objectType ObjectType) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.List++

	var keys []string
	for key, obj := range m.objects {
		if objectType == "" || obj.Type == objectType {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes all objects.
func (m *MockStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Clear++

	m.objects = make(map[string]*Object)
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error { return nil }

// Calls returns a snapshot of call counts.
func (m *MockStore) Calls() MockCalls {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// Len returns the number of stored objects.
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
