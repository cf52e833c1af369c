package preview

import (
	"fmt"

	"fixit/pkg/schema"
)

// Preview is what the presentation layer needs to show one thumbnail.
type Preview struct {
	ID       string `json:"id"`
	Location string `json:"location"`
	Loading  bool   `json:"loading"`
	Broken   bool   `json:"broken,omitempty"`
}

// Set owns the handles derived for one form. It is not safe for concurrent use;
// the owning state machine serializes access.
type Set struct {
	store   *Store
	prefix  string
	handles []string
}

// NewSet creates a set whose locations are prefix + handle.
func NewSet(store *Store, prefix string) *Set {
	return &Set{store: store, prefix: prefix}
}

// Derive releases every handle from the previous derivation, then acquires one per photo.
func (s *Set) Derive(photos []schema.Photo) ([]Preview, error) {
	s.Release()

	previews := make([]Preview, 0, len(photos))
	for _, p := range photos {
		handle, err := s.store.Acquire(p.Data, p.ContentType)
		if err != nil {
			s.Release()
			return nil, fmt.Errorf("derive preview %s: %w", p.ID, err)
		}
		s.handles = append(s.handles, handle)
		previews = append(previews, Preview{
			ID:       p.ID,
			Location: s.prefix + handle,
			Loading:  true,
		})
	}
	return previews, nil
}

// Release drops every handle this set holds.
func (s *Set) Release() {
	for _, h := range s.handles {
		s.store.Release(h)
	}
	s.handles = nil
}

// Held returns the number of handles currently owned.
func (s *Set) Held() int {
	return len(s.handles)
}
