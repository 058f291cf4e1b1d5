// Package memory is the in-process workflow store used by tests and
// single-binary deployments.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/store"
)

type Store struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
}

func NewStore() *Store {
	return &Store{workflows: make(map[string]*models.Workflow)}
}

func (s *Store) Save(_ context.Context, workflow *models.Workflow) error {
	if workflow == nil || workflow.ID == "" {
		return fmt.Errorf("workflow id is required: %w", store.ErrWorkflowInvalid)
	}

	clone, err := cloneWorkflow(workflow)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}

	clone.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.workflows[clone.ID]; ok {
		clone.CreatedAt = existing.CreatedAt
	}

	s.workflows[clone.ID] = clone

	return nil
}

func (s *Store) Get(_ context.Context, id string) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflow, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, store.ErrWorkflowNotFound)
	}

	return cloneWorkflow(workflow)
}

func (s *Store) List(_ context.Context) ([]*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Workflow, 0, len(s.workflows))

	for _, workflow := range s.workflows {
		clone, err := cloneWorkflow(workflow)
		if err != nil {
			return nil, err
		}

		out = append(out, clone)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.workflows, id)

	return nil
}

// cloneWorkflow deep-copies through JSON so callers cannot mutate stored
// nodes or connections behind the store's back.
func cloneWorkflow(workflow *models.Workflow) (*models.Workflow, error) {
	data, err := json.Marshal(workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to clone workflow %s: %w", workflow.ID, err)
	}

	var clone models.Workflow

	err = json.Unmarshal(data, &clone)
	if err != nil {
		return nil, fmt.Errorf("failed to clone workflow %s: %w", workflow.ID, err)
	}

	return &clone, nil
}
