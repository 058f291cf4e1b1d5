package filewatch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestNewDetectorValidation(t *testing.T) {
	_, err := NewDetector(map[string]any{}, testLogger())
	require.ErrorIs(t, err, ErrPathMissing)

	_, err = NewDetector(map[string]any{"path": "/tmp", "pattern": "[unclosed"}, testLogger())
	require.ErrorIs(t, err, ErrPatternInvalid)

	_, err = NewDetector(map[string]any{"path": "/tmp", "pattern": "*.csv"}, testLogger())
	require.NoError(t, err)
}

type fireCollector struct {
	mu       sync.Mutex
	payloads []map[string]any
}

func (c *fireCollector) fire(_ context.Context, payload map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.payloads = append(c.payloads, payload)

	return nil
}

func (c *fireCollector) files() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.payloads))
	for _, p := range c.payloads {
		names = append(names, p["file"].(string))
	}

	return names
}

func TestDetectorFiresOnMatchingCreate(t *testing.T) {
	dir := t.TempDir()

	detector, err := NewDetector(map[string]any{
		"path":    dir,
		"pattern": "*.csv",
		"events":  []any{"created"},
	}, testLogger())
	require.NoError(t, err)

	collector := &fireCollector{}

	require.NoError(t, detector.Start(context.Background(), collector.fire))

	t.Cleanup(func() { _ = detector.Stop(context.Background()) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.csv"), []byte("a,b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		return len(collector.files()) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Contains(t, collector.files(), "report.csv")
	assert.NotContains(t, collector.files(), "notes.txt", "pattern must filter non-matching files")
}
