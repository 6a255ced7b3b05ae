package dataset

import (
	"fmt"
	"sync"

	"github.com/katalvlaran/lvfit/errs"
)

// Store is the ordered list of datasets of a session. It always holds at
// least one dataset; Default selects the one unprefixed commands act on.
type Store struct {
	mu   sync.RWMutex
	sets []*Dataset
	def  int
}

// NewStore returns a store holding one empty dataset (@0).
func NewStore() *Store { return &Store{sets: []*Dataset{New("")}} }

// Len returns the number of datasets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sets)
}

// Get returns dataset i.
func (s *Store) Get(i int) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.sets) {
		return nil, fmt.Errorf("dataset: no dataset @%d: %w", i, errs.ErrEvaluation)
	}

	return s.sets[i], nil
}

// All returns every dataset in order.
func (s *Store) All() []*Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]*Dataset(nil), s.sets...)
}

// Append adds d and returns its index.
func (s *Store) Append(d *Dataset) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = append(s.sets, d)

	return len(s.sets) - 1
}

// Replace puts d at index i.
func (s *Store) Replace(i int, d *Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.sets) {
		return fmt.Errorf("dataset: no dataset @%d: %w", i, errs.ErrEvaluation)
	}
	s.sets[i] = d

	return nil
}

// Delete removes dataset i; later datasets shift down. Deleting the only
// dataset leaves a fresh empty one in its place.
func (s *Store) Delete(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.sets) {
		return fmt.Errorf("dataset: no dataset @%d: %w", i, errs.ErrEvaluation)
	}
	if len(s.sets) == 1 {
		s.sets[0] = New("")
		return nil
	}
	s.sets = append(s.sets[:i], s.sets[i+1:]...)
	if s.def >= len(s.sets) || s.def > i {
		s.def--
	}

	return nil
}

// Default returns the index of the default dataset.
func (s *Store) Default() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.def
}

// Use makes dataset i the default.
func (s *Store) Use(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.sets) {
		return fmt.Errorf("dataset: no dataset @%d: %w", i, errs.ErrEvaluation)
	}
	s.def = i

	return nil
}
