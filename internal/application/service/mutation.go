package service

import (
	"context"
	"sync"

	"github.com/garyjia/logistics-console/internal/apperrors"
	"github.com/garyjia/logistics-console/internal/domain/entity"
)

// MutationResult is the outcome of a line-item mutation. Rollback reverts
// the local change of a committed mutation; it never calls the backend.
type MutationResult struct {
	OK   bool
	Item entity.LineItem

	once     sync.Once
	rollback func()
}

// Rollback undoes the local effect of the mutation. Calling it more than once,
// or on a failed mutation, does nothing.
func (r *MutationResult) Rollback() {
	if r == nil || r.rollback == nil {
		return
	}
	r.once.Do(r.rollback)
}

// mutation is one create, update or delete. apply changes the local list
// and returns its inverse; both run with the store lock held.
type mutation struct {
	op         string
	key        string
	item       entity.LineItem
	optimistic bool
	persist    func(ctx context.Context) (entity.LineItem, error)
	apply      func(item entity.LineItem) (undo func())
}

// run executes a mutation while holding the row's busy slot. The change is
// applied before (optimistic) or after the backend call; a failed call
// reverts an optimistic change.
func (s *LineItemStore) run(ctx context.Context, m mutation) (*MutationResult, error) {
	gen, err := s.acquire(m.key)
	if err != nil {
		return nil, err
	}
	defer s.release(m.key)

	var undo func()
	if m.optimistic {
		undo = s.applyLocked(gen, m.apply, m.item)
	}

	item, err := m.persist(ctx)
	if err != nil {
		if undo != nil {
			s.mu.Lock()
			undo()
			s.mu.Unlock()
		}
		return &MutationResult{Item: m.item}, &apperrors.PersistenceError{Op: m.op, Err: err}
	}

	if !m.optimistic {
		undo = s.applyLocked(gen, m.apply, item)
	}

	return &MutationResult{
		OK:   true,
		Item: item,
		rollback: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			undo()
		},
	}, nil
}

// applyLocked applies a change unless the store was reloaded or reset since
// the mutation started, in which case the change belongs to a stale list.
func (s *LineItemStore) applyLocked(gen uint64, apply func(entity.LineItem) func(), item entity.LineItem) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return func() {}
	}
	undo := apply(item)
	return func() {
		if gen == s.generation {
			undo()
		}
	}
}

func (s *LineItemStore) acquire(key string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return 0, apperrors.ErrNotLoaded
	}
	if s.busy[key] {
		return 0, apperrors.ErrRowBusy
	}
	s.busy[key] = true
	return s.generation, nil
}

func (s *LineItemStore) release(key string) {
	s.mu.Lock()
	delete(s.busy, key)
	s.mu.Unlock()
}
