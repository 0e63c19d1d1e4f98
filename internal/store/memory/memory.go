package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ragkb/internal/domain"
)

// Storage is an in-memory document store that keeps insertion order.
type Storage struct {
	mu   sync.RWMutex
	docs []domain.Document
	pos  map[string]int
	now  func() time.Time
}

var _ domain.DocumentStore = (*Storage)(nil)

// NewStorage returns an empty store.
func NewStorage() *Storage {
	return &Storage{pos: make(map[string]int), now: time.Now}
}

// GetAll returns a copy of every document in insertion order.
func (s *Storage) GetAll(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Document, len(s.docs))
	copy(out, s.docs)
	return out, nil
}

// Get returns the document with the given ID.
func (s *Storage) Get(_ context.Context, id string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.pos[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("get %q: %w", id, domain.ErrNotFound)
	}
	return s.docs[i], nil
}

// Add stores doc, assigning an ID and creation time when missing.
// Adding an existing ID replaces the document in place.
func (s *Storage) Add(_ context.Context, doc domain.Document) (domain.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.pos[doc.ID]; ok {
		s.docs[i] = doc
		return doc, nil
	}
	s.pos[doc.ID] = len(s.docs)
	s.docs = append(s.docs, doc)
	return doc, nil
}

// Remove deletes the document with the given ID.
func (s *Storage) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.pos[id]
	if !ok {
		return fmt.Errorf("remove %q: %w", id, domain.ErrNotFound)
	}
	s.docs = append(s.docs[:i], s.docs[i+1:]...)
	delete(s.pos, id)
	for j := i; j < len(s.docs); j++ {
		s.pos[s.docs[j].ID] = j
	}
	return nil
}

// Clear removes every document.
func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = nil
	s.pos = make(map[string]int)
	return nil
}

// Close is a no-op.
func (s *Storage) Close() error { return nil }
