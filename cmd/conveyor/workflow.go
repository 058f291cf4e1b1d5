package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/conveyor-automation/conveyor/pkg/log"
	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/nodes"
	"github.com/conveyor-automation/conveyor/pkg/registry"
	"github.com/conveyor-automation/conveyor/pkg/workflow"
)

var errUsage = errors.New("expected a workflow file argument")

func loadWorkflow(path string) (*models.Workflow, error) {
	if path == "" {
		return nil, errUsage
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var wf models.Workflow

	err = json.Unmarshal(body, &wf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse workflow file: %w", err)
	}

	return &wf, nil
}

func newLocalRegistry() *registry.Registry {
	reg := registry.NewRegistry(log.WithModule("conveyor"))
	nodes.RegisterDefaults(reg)

	return reg
}

func validateWorkflow(_ context.Context, path string) error {
	wf, err := loadWorkflow(path)
	if err != nil {
		return err
	}

	_, err = workflow.Compile(wf, newLocalRegistry())
	if err != nil {
		return fmt.Errorf("workflow %s is invalid: %w", wf.ID, err)
	}

	fmt.Printf("workflow %s is valid\n", wf.ID)

	return nil
}

func runWorkflow(ctx context.Context, path string, vars []string) error {
	wf, err := loadWorkflow(path)
	if err != nil {
		return err
	}

	reg := newLocalRegistry()

	plan, err := workflow.Compile(wf, reg)
	if err != nil {
		return fmt.Errorf("workflow %s is invalid: %w", wf.ID, err)
	}

	variables, err := parseVars(vars)
	if err != nil {
		return err
	}

	logger := log.WithModule("conveyor")
	executor := workflow.NewExecutor(reg, nil, nil, logger)

	run := executor.Prepare(plan, workflow.RunOptions{
		RunID:     "run-" + uuid.New().String()[:8],
		Variables: variables,
	})

	result, err := run.Execute(ctx)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(out))

	return nil
}

func parseVars(vars []string) (map[string]any, error) {
	if len(vars) == 0 {
		return nil, nil
	}

	out := make(map[string]any, len(vars))

	for _, kv := range vars {
		key, value, found := strings.Cut(kv, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid variable %q, expected key=value", kv)
		}

		out[key] = value
	}

	return out, nil
}
