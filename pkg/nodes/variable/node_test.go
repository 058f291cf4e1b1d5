package variable

import (
	"context"
	"log/slog"
	"os"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

func TestCreateRequiresVariables(t *testing.T) {
	factory := NewNodeFactory()

	_, err := factory.Create(&models.Node{ID: "v", Type: "variable"})
	require.ErrorIs(t, err, ErrNoVariables)

	_, err = factory.Create(&models.Node{
		ID: "v", Type: "variable",
		Config: map[string]any{"variables": map[string]any{}},
	})
	require.ErrorIs(t, err, ErrNoVariables)
}

func TestExecuteBindsIntoScope(t *testing.T) {
	scope := models.NewScope(nil, map[string]any{"region": "us"})

	node := &Node{}

	result, err := node.Execute(context.Background(), protocol.NodeInput{
		Config: map[string]any{
			"variables": map[string]any{"region": "eu", "retries": 2},
		},
		Scope: scope,
	}, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	require.NoError(t, err)

	v, _ := scope.Lookup("region")
	assert.Equal(t, "eu", v)

	v, _ = scope.Lookup("retries")
	assert.Equal(t, 2, v)

	assert.Equal(t, map[string]any{"region": "eu", "retries": 2}, result)
}
