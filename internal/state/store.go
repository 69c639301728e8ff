// Package state holds the canonical in-memory representation of every
// workflow instance.
package state

import (
	"fmt"
	"sort"
	"sync"

	"github.com/petrijr/flowgate/pkg/api"
)

// Store is a goroutine-safe map of workflow states. Callers always receive
// copies; the only way to change a stored workflow is Update, which applies
// a function to a copy and swaps it in when the function succeeds.
type Store struct {
	mu        sync.RWMutex
	workflows map[string]*api.WorkflowState

	// revs holds a store-wide sequence number per workflow, taken on every
	// write. It changes even when versioning is switched off.
	revs map[string]uint64
	seq  uint64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		workflows: make(map[string]*api.WorkflowState),
		revs:      make(map[string]uint64),
	}
}

func (s *Store) bump(workflowID string) {
	s.seq++
	s.revs[workflowID] = s.seq
}

// Revision returns a number that changes whenever the workflow is written.
// It is zero for unknown workflows.
func (s *Store) Revision(workflowID string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revs[workflowID]
}

// Create inserts a new workflow keyed by wf.WorkflowID.
func (s *Store) Create(wf *api.WorkflowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[wf.WorkflowID]; ok {
		return fmt.Errorf("%w: %s", api.ErrWorkflowExists, wf.WorkflowID)
	}
	s.workflows[wf.WorkflowID] = wf.Clone()
	s.bump(wf.WorkflowID)
	return nil
}

// Get returns a copy of the workflow.
func (s *Store) Get(workflowID string) (*api.WorkflowState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[workflowID]
	if !ok {
		return nil, false
	}
	return wf.Clone(), true
}

// Update applies fn to a copy of the workflow and stores the copy if fn
// returns nil. On error the stored workflow is left untouched.
func (s *Store) Update(workflowID string, fn func(wf *api.WorkflowState) error) (*api.WorkflowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrWorkflowNotFound, workflowID)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.workflows[workflowID] = next
	s.bump(workflowID)
	return next.Clone(), nil
}

// List returns copies of the workflows matching filter, ordered by ID.
func (s *Store) List(filter api.WorkflowFilter) []*api.WorkflowState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*api.WorkflowState, 0, len(s.workflows))
	for _, wf := range s.workflows {
		if filter.Stage != "" && wf.Stage != filter.Stage {
			continue
		}
		if filter.Status != "" && wf.Status != filter.Status {
			continue
		}
		out = append(out, wf.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkflowID < out[j].WorkflowID })
	return out
}

// Snapshot returns copies of every workflow, ordered by ID.
func (s *Store) Snapshot() []*api.WorkflowState {
	return s.List(api.WorkflowFilter{})
}

// Replace discards the current contents and loads all.
func (s *Store) Replace(all []*api.WorkflowState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows = make(map[string]*api.WorkflowState, len(all))
	s.revs = make(map[string]uint64, len(all))
	for _, wf := range all {
		if wf == nil || wf.WorkflowID == "" {
			continue
		}
		s.workflows[wf.WorkflowID] = wf.Clone()
		s.bump(wf.WorkflowID)
	}
}

// Len returns the number of stored workflows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workflows)
}
