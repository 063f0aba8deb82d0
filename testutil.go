package synode

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
)

// MockFileReader serves graph documents from memory.
type MockFileReader struct {
	mu    sync.RWMutex
	files map[string][]byte
	err   error
}

func NewMockFileReader() *MockFileReader {
	return &MockFileReader{files: make(map[string][]byte)}
}

// ReadFile returns the document at path, or an error wrapping fs.ErrNotExist.
func (m *MockFileReader) ReadFile(path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	data, ok := m.files[filepath.Clean(path)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
	}
	return data, nil
}

func (m *MockFileReader) AddFile(path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filepath.Clean(path)] = []byte(content)
}

// SetError makes every ReadFile fail with err until it is reset with nil.
func (m *MockFileReader) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
