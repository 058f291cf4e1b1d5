package httprequest

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func createNode(t *testing.T) protocol.Executable {
	t.Helper()

	node, err := NewNodeFactory().Create(&models.Node{ID: "call", Type: "http_request"})
	require.NoError(t, err)

	return node
}

func TestExecuteJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name": "conveyor", "count": 2}`))
	}))
	defer server.Close()

	node := createNode(t)

	result, err := node.Execute(context.Background(), protocol.NodeInput{
		Config: map[string]any{"url": server.URL},
	}, testLogger())
	require.NoError(t, err)

	response := result.(map[string]any)
	assert.Equal(t, http.StatusOK, response["status_code"])

	body := response["body"].(map[string]any)
	assert.Equal(t, "conveyor", body["name"])
	assert.Equal(t, float64(2), body["count"])
}

func TestExecutePostWithHeadersAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	defer server.Close()

	node := createNode(t)

	result, err := node.Execute(context.Background(), protocol.NodeInput{
		Config: map[string]any{
			"url":     server.URL,
			"method":  "POST",
			"body":    `{"name": "conveyor"}`,
			"headers": map[string]any{"Authorization": "Bearer s3cret"},
		},
	}, testLogger())
	require.NoError(t, err)

	response := result.(map[string]any)
	assert.Equal(t, http.StatusCreated, response["status_code"])
	assert.Equal(t, "created", response["body"])
}

func TestExecuteServerErrorSurfacesAsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	node := createNode(t)

	_, err := node.Execute(context.Background(), protocol.NodeInput{
		Config: map[string]any{"url": server.URL},
	}, testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
}

func TestExecuteMissingURL(t *testing.T) {
	node := createNode(t)

	_, err := node.Execute(context.Background(), protocol.NodeInput{Config: map[string]any{}}, testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrURLMissing)
}
