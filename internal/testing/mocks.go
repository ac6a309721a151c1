package testing

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/qfitlab/qfit/internal/reliability"
)

// MockObjectStorage is an in-memory reliability.ObjectStorage for tests that
// exercise backup behavior without a bucket.
type MockObjectStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
	deleteErr error
}

// NewMockObjectStorage creates an empty mock object store.
func NewMockObjectStorage() *MockObjectStorage {
	return &MockObjectStorage{objects: make(map[string][]byte)}
}

// SetUploadError makes subsequent uploads fail with err.
func (m *MockObjectStorage) SetUploadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadErr = err
}

// SetDeleteError makes subsequent deletes fail with err.
func (m *MockObjectStorage) SetDeleteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
}

// Seed stores an object directly, bypassing Upload.
func (m *MockObjectStorage) Seed(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
}

// Get returns a stored object's bytes.
func (m *MockObjectStorage) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

// Keys returns all stored object keys.
func (m *MockObjectStorage) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	return keys
}

// Upload implements reliability.ObjectStorage.
func (m *MockObjectStorage) Upload(_ context.Context, key string, body io.Reader, _ int64) error {
	m.mu.Lock()
	uploadErr := m.uploadErr
	m.mu.Unlock()
	if uploadErr != nil {
		return uploadErr
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

// List implements reliability.ObjectStorage.
func (m *MockObjectStorage) List(_ context.Context, prefix string) ([]reliability.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var infos []reliability.ObjectInfo
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, reliability.ObjectInfo{
				Key:          key,
				SizeBytes:    int64(len(data)),
				LastModified: time.Now(),
			})
		}
	}
	return infos, nil
}

// Delete implements reliability.ObjectStorage.
func (m *MockObjectStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, key)
	return nil
}
