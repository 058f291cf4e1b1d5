package filewrite

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestCreateRequiresFileName(t *testing.T) {
	_, err := NewNodeFactory().Create(&models.Node{ID: "w", Type: "file_write"})
	require.ErrorIs(t, err, ErrFileNameMissing)
}

func TestExecuteWritesStringContent(t *testing.T) {
	dir := t.TempDir()

	node, err := NewNodeFactory().Create(&models.Node{
		ID: "w", Type: "file_write",
		Config: map[string]any{"file_name": "out.txt"},
	})
	require.NoError(t, err)

	result, err := node.Execute(context.Background(), protocol.NodeInput{
		Config: map[string]any{
			"file_name": "out.txt",
			"directory": dir,
			"content":   "hello",
		},
	}, testLogger())
	require.NoError(t, err)

	written, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(written))

	output := result.(map[string]any)
	assert.Equal(t, 5, output["bytes"])
}

func TestExecuteEncodesStructuredContent(t *testing.T) {
	dir := t.TempDir()

	node := &Node{}

	_, err := node.Execute(context.Background(), protocol.NodeInput{
		Config: map[string]any{
			"file_name": "out.json",
			"directory": dir,
			"content":   map[string]any{"rows": 3},
		},
	}, testLogger())
	require.NoError(t, err)

	written, err := os.ReadFile(filepath.Join(dir, "out.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"rows": 3}`, string(written))
}

func TestExecuteRefusesOverwriteByDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	node := &Node{}

	_, err := node.Execute(context.Background(), protocol.NodeInput{
		Config: map[string]any{
			"file_name": "out.txt",
			"directory": dir,
			"content":   "replacement",
		},
	}, testLogger())
	require.ErrorIs(t, err, ErrFileExists)

	_, err = node.Execute(context.Background(), protocol.NodeInput{
		Config: map[string]any{
			"file_name": "out.txt",
			"directory": dir,
			"content":   "replacement",
			"overwrite": true,
		},
	}, testLogger())
	require.NoError(t, err)

	written, _ := os.ReadFile(path)
	assert.Equal(t, "replacement", string(written))
}
