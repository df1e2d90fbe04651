// Package memstore is an in-memory WriteStore, used by the REST and
// scheduler tests. No backend type in pkg/config selects it, so the
// engine itself always runs on sqlitestore or remotestore. It performs
// the same weight-sum validation the persisted backends must perform.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/acticloud/heatspreader/pkg/store"
	"github.com/acticloud/heatspreader/pkg/types"
)

// Store is a mutex-guarded map of stack name to stack.
type Store struct {
	mu     sync.RWMutex
	stacks map[string]*types.MulticloudStack
}

// New returns an empty Store.
func New() *Store {
	return &Store{stacks: make(map[string]*types.MulticloudStack)}
}

func clone(s *types.MulticloudStack) *types.MulticloudStack {
	out := *s
	out.Weights = make(map[string]float64, len(s.Weights))
	for k, v := range s.Weights {
		out.Weights[k] = v
	}
	out.CloudOrder = append([]string(nil), s.CloudOrder...)
	return &out
}

func validateWeights(s *types.MulticloudStack) error {
	if s.StackName == "" {
		return fmt.Errorf("stack_name is required")
	}
	if s.Count < 0 {
		return fmt.Errorf("count must be non-negative")
	}
	if s.CountParameter == "" {
		return fmt.Errorf("count_parameter is required")
	}
	if total := s.TotalWeight(); total > 1 {
		return fmt.Errorf("total cloud weight over 1 (total weight: %v)", total)
	}
	return nil
}

// List returns every registered stack, ordered by stack name.
func (s *Store) List(ctx context.Context) ([]*types.MulticloudStack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.MulticloudStack, 0, len(s.stacks))
	for _, st := range s.stacks {
		out = append(out, clone(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StackName < out[j].StackName })
	return out, nil
}

// Get returns a single stack by name.
func (s *Store) Get(ctx context.Context, stackName string) (*types.MulticloudStack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stacks[stackName]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(st), nil
}

// Create registers a new stack.
func (s *Store) Create(ctx context.Context, stack *types.MulticloudStack) error {
	if err := validateWeights(stack); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stacks[stack.StackName]; exists {
		return fmt.Errorf("stack %q already exists", stack.StackName)
	}
	s.stacks[stack.StackName] = clone(stack)
	return nil
}

// Update replaces a stack's fields in place.
func (s *Store) Update(ctx context.Context, stack *types.MulticloudStack) error {
	if err := validateWeights(stack); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stacks[stack.StackName]; !exists {
		return store.ErrNotFound
	}
	s.stacks[stack.StackName] = clone(stack)
	return nil
}

// Delete removes a stack.
func (s *Store) Delete(ctx context.Context, stackName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stacks[stackName]; !exists {
		return store.ErrNotFound
	}
	delete(s.stacks, stackName)
	return nil
}

// SetWeight sets (or adds) a single cloud's weight on a stack.
func (s *Store) SetWeight(ctx context.Context, stackName, cloudName string, weight float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stacks[stackName]
	if !ok {
		return store.ErrNotFound
	}

	previous, had := st.Weights[cloudName]
	st.Weights[cloudName] = weight
	if err := validateWeights(st); err != nil {
		if had {
			st.Weights[cloudName] = previous
		} else {
			delete(st.Weights, cloudName)
		}
		return err
	}
	if !had {
		st.CloudOrder = append(st.CloudOrder, cloudName)
	}
	return nil
}

// RemoveWeight removes a cloud from a stack's weight map.
func (s *Store) RemoveWeight(ctx context.Context, stackName, cloudName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stacks[stackName]
	if !ok {
		return store.ErrNotFound
	}
	delete(st.Weights, cloudName)
	for i, c := range st.CloudOrder {
		if c == cloudName {
			st.CloudOrder = append(st.CloudOrder[:i], st.CloudOrder[i+1:]...)
			break
		}
	}
	return nil
}

// Close is a no-op; memstore owns no external resources.
func (s *Store) Close() error { return nil }
