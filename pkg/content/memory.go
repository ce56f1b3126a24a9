package content

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// MemoryStore is an in-memory ObjectStore used in tests and local
// development. Objects are plain byte slices keyed by name.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// FailAfter, when > 0, makes every opened stream return FailErr after
	// that many bytes. Used to exercise worker retry and resume paths.
	FailAfter int64
	FailErr   error
}

// NewMemoryStore creates an empty in-memory object store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put stores an object.
func (m *MemoryStore) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
}

// Size returns the object's size.
func (m *MemoryStore) Size(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return 0, ErrObjectNotFound
	}
	return int64(len(data)), nil
}

// Open returns a reader over the object starting at offset.
func (m *MemoryStore) Open(_ context.Context, key string, offset int64) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	if offset < 0 || offset > int64(len(data)) {
		offset = int64(len(data))
	}

	r := io.Reader(bytes.NewReader(data[offset:]))
	if m.FailAfter > 0 {
		r = &failingReader{r: io.LimitReader(r, m.FailAfter), err: m.FailErr}
	}
	return io.NopCloser(r), nil
}

// HealthCheck always succeeds.
func (m *MemoryStore) HealthCheck(context.Context) error {
	return nil
}

// failingReader yields err once the wrapped (limited) reader is drained.
type failingReader struct {
	r   io.Reader
	err error
}

func (f *failingReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF {
		if f.err != nil {
			return n, f.err
		}
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}

// Ensure MemoryStore implements ObjectStore.
var _ ObjectStore = (*MemoryStore)(nil)
