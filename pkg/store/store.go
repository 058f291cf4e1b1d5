// Package store holds workflow definitions. Backends are small: workflows
// are written whole and read whole, there is no partial update surface.
package store

import (
	"context"
	"errors"

	"github.com/conveyor-automation/conveyor/pkg/models"
)

// ErrWorkflowNotFound indicates no workflow exists with the given ID.
var ErrWorkflowNotFound = errors.New("workflow not found")

// ErrWorkflowInvalid indicates the workflow failed structural validation on save.
var ErrWorkflowInvalid = errors.New("workflow invalid")

// WorkflowStore is the workflow definition repository.
type WorkflowStore interface {
	// Save inserts or replaces a workflow, bumping UpdatedAt.
	Save(ctx context.Context, workflow *models.Workflow) error

	// Get returns the workflow with the given ID or ErrWorkflowNotFound.
	Get(ctx context.Context, id string) (*models.Workflow, error)

	// List returns all workflows ordered by creation time.
	List(ctx context.Context) ([]*models.Workflow, error)

	// Delete removes a workflow. Deleting an unknown ID is not an error.
	Delete(ctx context.Context, id string) error
}
