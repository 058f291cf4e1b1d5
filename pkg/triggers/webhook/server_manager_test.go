package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

type capturedFire struct {
	mu       sync.Mutex
	payloads []map[string]any
}

func (c *capturedFire) fire(_ context.Context, payload map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.payloads = append(c.payloads, payload)

	return nil
}

func (c *capturedFire) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.payloads)
}

func newTestServer(t *testing.T, handler *Handler) (*ServerManager, *httptest.Server) {
	t.Helper()

	sm := NewServerManager(0, testLogger())
	require.NoError(t, sm.Register("/hooks/orders", handler))

	server := httptest.NewServer(http.HandlerFunc(sm.handleWebhook))
	t.Cleanup(server.Close)

	return sm, server
}

func TestWebhookDeliversJSONPayload(t *testing.T) {
	captured := &capturedFire{}

	_, server := newTestServer(t, &Handler{
		TriggerID: "t1",
		Fire:      captured.fire,
		Logger:    testLogger(),
	})

	resp, err := http.Post(server.URL+"/hooks/orders", "application/json",
		bytes.NewBufferString(`{"order_id": "o-42"}`))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, 1, captured.count())

	body := captured.payloads[0]["body"].(map[string]any)
	assert.Equal(t, "o-42", body["order_id"])
}

func TestWebhookUnknownPath(t *testing.T) {
	captured := &capturedFire{}

	_, server := newTestServer(t, &Handler{TriggerID: "t1", Fire: captured.fire, Logger: testLogger()})

	resp, err := http.Post(server.URL+"/hooks/unknown", "application/json", nil)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 0, captured.count())
}

func TestWebhookRejectsNonPost(t *testing.T) {
	captured := &capturedFire{}

	_, server := newTestServer(t, &Handler{TriggerID: "t1", Fire: captured.fire, Logger: testLogger()})

	resp, err := http.Get(server.URL + "/hooks/orders")
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWebhookSignatureVerification(t *testing.T) {
	const secret = "s3cret"

	captured := &capturedFire{}

	_, server := newTestServer(t, &Handler{
		TriggerID: "t1",
		Secret:    secret,
		Fire:      captured.fire,
		Logger:    testLogger(),
	})

	body := []byte(`{"order_id": "o-42"}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	signature := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	t.Run("valid signature accepted", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, server.URL+"/hooks/orders", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set(signatureHeader, signature)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, 1, captured.count())
	})

	t.Run("bad signature rejected", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, server.URL+"/hooks/orders", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set(signatureHeader, "sha256=deadbeef")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, 1, captured.count())
	})

	t.Run("missing signature rejected", func(t *testing.T) {
		resp, err := http.Post(server.URL+"/hooks/orders", "application/json", bytes.NewReader(body))
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestRegisterDuplicatePath(t *testing.T) {
	sm := NewServerManager(0, testLogger())

	require.NoError(t, sm.Register("/hooks/a", &Handler{TriggerID: "t1", Logger: testLogger()}))
	require.Error(t, sm.Register("/hooks/a", &Handler{TriggerID: "t2", Logger: testLogger()}))

	sm.Unregister("/hooks/a")
	require.NoError(t, sm.Register("/hooks/a", &Handler{TriggerID: "t3", Logger: testLogger()}))
}

func TestDetectorValidation(t *testing.T) {
	factory := NewDetectorFactory(NewServerManager(0, testLogger()))

	_, err := factory.Create(map[string]any{"path": "no-slash"}, testLogger())
	require.ErrorIs(t, err, ErrPathInvalid)

	detector, err := factory.Create(map[string]any{"path": "/hooks/ok"}, testLogger())
	require.NoError(t, err)
	require.NoError(t, detector.Validate())
}
