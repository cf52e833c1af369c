// Package preview manages temporary thumbnail resources for attached photos.
package preview

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"sync"

	_ "golang.org/x/image/webp" // register decoder

	"fixit/pkg/schema"
)

type resource struct {
	data        []byte
	contentType string
}

// Store is an in-memory registry of preview handles. Safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	items map[string]resource
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{items: make(map[string]resource)}
}

// Acquire registers data under a new handle.
func (s *Store) Acquire(data []byte, contentType string) (string, error) {
	handle, err := schema.NewPreviewHandle()
	if err != nil {
		return "", fmt.Errorf("generate preview handle: %w", err)
	}
	s.mu.Lock()
	s.items[handle] = resource{data: data, contentType: contentType}
	s.mu.Unlock()
	return handle, nil
}

// Release drops a handle. Unknown handles are ignored.
func (s *Store) Release(handle string) {
	s.mu.Lock()
	delete(s.items, handle)
	s.mu.Unlock()
}

// Open returns the bytes and content type behind a live handle.
func (s *Store) Open(handle string) ([]byte, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[handle]
	return r.data, r.contentType, ok
}

// Len returns the number of live handles.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Decode reports whether data holds a decodable image header.
func Decode(data []byte) error {
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("decode preview: %w", err)
	}
	return nil
}
