// Package filewrite provides a node that writes content to a file on the
// robot's local filesystem.
package filewrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

var (
	// ErrFileNameMissing is returned when the node config has no file_name.
	ErrFileNameMissing = errors.New("missing 'file_name' in configuration")
	// ErrFileExists is returned when the target exists and overwrite is false.
	ErrFileExists = errors.New("target file already exists")
)

type NodeFactory struct{}

func NewNodeFactory() *NodeFactory {
	return &NodeFactory{}
}

func (*NodeFactory) ID() string {
	return "file_write"
}

func (f *NodeFactory) Create(node *models.Node) (protocol.Executable, error) {
	if node.ConfigString("file_name", "") == "" {
		return nil, ErrFileNameMissing
	}

	return &Node{}, nil
}

func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_name": map[string]any{
				"type":        "string",
				"description": "Name of the file to write. Supports templating.",
			},
			"directory": map[string]any{
				"type":        "string",
				"description": "Directory to write into, created if absent",
				"default":     os.TempDir(),
			},
			"content": map[string]any{
				"description": "Content to write. Non-string values are JSON-encoded.",
			},
			"overwrite": map[string]any{
				"type":        "boolean",
				"description": "Replace the file if it already exists",
				"default":     false,
			},
		},
		"required": []string{"file_name"},
	}
}

type Node struct{}

func (n *Node) Execute(ctx context.Context, input protocol.NodeInput, logger *slog.Logger) (any, error) {
	logger = logger.With("node_type", "file_write")

	fileName, _ := input.Config["file_name"].(string)
	if fileName == "" {
		return nil, ErrFileNameMissing
	}

	directory, _ := input.Config["directory"].(string)
	if directory == "" {
		directory = os.TempDir()
	}

	overwrite, _ := input.Config["overwrite"].(bool)

	content, err := encodeContent(input.Config["content"])
	if err != nil {
		return nil, err
	}

	err = os.MkdirAll(directory, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	path := filepath.Join(directory, fileName)

	if !overwrite {
		_, err = os.Stat(path)
		if err == nil {
			return nil, fmt.Errorf("%w: %s", ErrFileExists, path)
		}
	}

	err = os.WriteFile(path, content, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	logger.InfoContext(ctx, "Wrote file", "path", path, "bytes", len(content))

	return map[string]any{"path": path, "bytes": len(content)}, nil
}

func encodeContent(content any) ([]byte, error) {
	switch v := content.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode content: %w", err)
		}

		return encoded, nil
	}
}
