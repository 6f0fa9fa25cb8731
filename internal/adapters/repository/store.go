// Package repository provides the externally owned entity state the engine
// reads ranks from and writes winners to.
//
// The engine treats entities as an external mutable record: callers create
// and rank them, the engine only ever writes a winner's new rank, exactly
// once per resolved tie group.
package repository

import (
	"context"
	"sync"

	"github.com/okian/rolloff/internal/domain/model"
)

// Default store configuration constants.
const (
	defaultUpdateBuffer = 256
)

// CollectionState gates tie detection: detection runs only while the
// owning collection is still pending.
type CollectionState string

// Collection lifecycle states.
const (
	StatePending CollectionState = "pending"
	StateStarted CollectionState = "started"
)

// Update notifies the detection layer that a relevant entity was added or
// had its rank set.
type Update struct {
	CollectionID string
	Entity       model.Entity
}

// Store provides read/write access to collections of ranked entities.
type Store interface {
	// AddEntity registers an entity in a collection, creating the
	// collection in the pending state when it does not exist yet.
	AddEntity(ctx context.Context, collectionID string, e model.Entity) error

	// SetRank sets an entity's rank, overwriting any previous value.
	SetRank(ctx context.Context, collectionID string, id model.EntityID, rank float64) error

	// Entities returns a snapshot of the collection's entities in
	// insertion order.
	Entities(ctx context.Context, collectionID string) ([]model.Entity, error)

	// State returns the collection's lifecycle state.
	State(ctx context.Context, collectionID string) (CollectionState, error)

	// Start transitions the collection to started. Idempotent.
	Start(ctx context.Context, collectionID string) error

	// Delete removes the collection and all its entities.
	Delete(ctx context.Context, collectionID string) error

	// ApplyWinner writes the winner's new rank. This is the engine's only
	// mutation and does not emit an update notification.
	ApplyWinner(ctx context.Context, collectionID string, id model.EntityID, rank float64) error

	// Updates exposes add/rank notifications to the detection layer.
	Updates() <-chan Update
}

// collection holds one set of entities and their lifecycle state.
type collection struct {
	state    CollectionState
	order    []model.EntityID
	entities map[model.EntityID]*model.Entity
}

// MemoryStore implements Store in memory. Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*collection
	updates     chan Update
}

// StoreOption applies a configuration option to the MemoryStore.
type StoreOption func(*MemoryStore)

// WithUpdateBuffer sets the buffer of the update notification channel.
// When the buffer is full, notifications are dropped rather than blocking
// writers; a later update re-arms detection.
func WithUpdateBuffer(n int) StoreOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.updates = make(chan Update, n)
		}
	}
}

// NewMemoryStore creates an empty in-memory store with configuration
// options.
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		collections: make(map[string]*collection),
		updates:     make(chan Update, defaultUpdateBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddEntity registers an entity, creating the pending collection on first
// use, and notifies the detection layer.
func (s *MemoryStore) AddEntity(ctx context.Context, collectionID string, e model.Entity) error {
	s.mu.Lock()
	c, ok := s.collections[collectionID]
	if !ok {
		c = &collection{
			state:    StatePending,
			entities: make(map[model.EntityID]*model.Entity),
		}
		s.collections[collectionID] = c
	}
	if _, exists := c.entities[e.ID]; exists {
		s.mu.Unlock()
		return ErrDuplicateEntity
	}
	stored := e
	c.order = append(c.order, e.ID)
	c.entities[e.ID] = &stored
	s.mu.Unlock()

	s.notify(Update{CollectionID: collectionID, Entity: e})
	return nil
}

// SetRank sets an entity's rank and notifies the detection layer.
func (s *MemoryStore) SetRank(ctx context.Context, collectionID string, id model.EntityID, rank float64) error {
	s.mu.Lock()
	e, err := s.entity(collectionID, id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	r := rank
	e.Rank = &r
	snapshot := *e
	s.mu.Unlock()

	s.notify(Update{CollectionID: collectionID, Entity: snapshot})
	return nil
}

// Entities returns a snapshot of the collection in insertion order.
func (s *MemoryStore) Entities(ctx context.Context, collectionID string) ([]model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collectionID]
	if !ok {
		return nil, ErrCollectionNotFound
	}
	out := make([]model.Entity, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.entities[id])
	}
	return out, nil
}

// State returns the collection's lifecycle state.
func (s *MemoryStore) State(ctx context.Context, collectionID string) (CollectionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collectionID]
	if !ok {
		return "", ErrCollectionNotFound
	}
	return c.state, nil
}

// Start transitions the collection to started. Idempotent; detection never
// runs again for a started collection.
func (s *MemoryStore) Start(ctx context.Context, collectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collectionID]
	if !ok {
		return ErrCollectionNotFound
	}
	c.state = StateStarted
	return nil
}

// Delete removes the collection entirely.
func (s *MemoryStore) Delete(ctx context.Context, collectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collectionID]; !ok {
		return ErrCollectionNotFound
	}
	delete(s.collections, collectionID)
	return nil
}

// ApplyWinner writes the winner's new rank without emitting an update, so
// the winner application never re-triggers detection.
func (s *MemoryStore) ApplyWinner(ctx context.Context, collectionID string, id model.EntityID, rank float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entity(collectionID, id)
	if err != nil {
		return err
	}
	r := rank
	e.Rank = &r
	return nil
}

// Updates exposes the notification channel.
func (s *MemoryStore) Updates() <-chan Update {
	return s.updates
}

// entity must be called with s.mu held.
func (s *MemoryStore) entity(collectionID string, id model.EntityID) (*model.Entity, error) {
	c, ok := s.collections[collectionID]
	if !ok {
		return nil, ErrCollectionNotFound
	}
	e, ok := c.entities[id]
	if !ok {
		return nil, ErrEntityNotFound
	}
	return e, nil
}

func (s *MemoryStore) notify(u Update) {
	select {
	case s.updates <- u:
	default:
		// Detection re-arms on the next update; dropping is safe.
	}
}
