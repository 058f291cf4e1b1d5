package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

const signatureHeader = "X-Signature-256"

const maxBodyBytes = 1 << 20 // 1 MiB

// Handler is one registered webhook endpoint: its path, optional HMAC
// secret, and the fire function of the owning trigger.
type Handler struct {
	TriggerID string
	Secret    string
	Fire      protocol.FireFunc
	Logger    *slog.Logger
}

// ServerManager multiplexes every webhook trigger in the process onto one
// shared HTTP listener. Paths are registered and released as triggers start
// and stop.
type ServerManager struct {
	server   *http.Server
	handlers map[string]*Handler
	mu       sync.RWMutex
	logger   *slog.Logger
	port     int
	started  bool
}

func NewServerManager(port int, logger *slog.Logger) *ServerManager {
	return &ServerManager{
		handlers: make(map[string]*Handler),
		logger:   logger.With("module", "webhook_server_manager"),
		port:     port,
	}
}

func (sm *ServerManager) Register(path string, handler *Handler) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.handlers[path]; exists {
		return fmt.Errorf("webhook path %s already registered", path)
	}

	sm.handlers[path] = handler
	sm.logger.Info("Registered webhook handler", "path", path, "trigger_id", handler.TriggerID)

	return nil
}

func (sm *ServerManager) Unregister(path string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	handler, exists := sm.handlers[path]
	if exists {
		delete(sm.handlers, path)
		sm.logger.Info("Unregistered webhook handler", "path", path, "trigger_id", handler.TriggerID)
	}
}

// Start brings up the shared listener. It is idempotent: the first caller
// starts the server, later callers return immediately.
func (sm *ServerManager) Start(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.started {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", sm.handleWebhook)

	sm.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", sm.port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sm.logger.Info("Starting webhook HTTP server", "addr", sm.server.Addr)

		err := sm.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			sm.logger.Error("Webhook server failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()

		err := sm.Shutdown(context.Background())
		if err != nil {
			sm.logger.Error("Failed to shut down webhook server", "error", err)
		}
	}()

	sm.started = true

	return nil
}

func (sm *ServerManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	server := sm.server
	sm.server = nil
	sm.started = false
	sm.mu.Unlock()

	if server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

func (sm *ServerManager) handleWebhook(w http.ResponseWriter, r *http.Request) {
	sm.mu.RLock()
	handler, exists := sm.handlers[r.URL.Path]
	sm.mu.RUnlock()

	if !exists {
		http.Error(w, "webhook path not found", http.StatusNotFound)

		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)

		return
	}

	if handler.Secret != "" && !verifySignature(handler.Secret, body, r.Header.Get(signatureHeader)) {
		handler.Logger.Warn("Webhook signature verification failed", "path", r.URL.Path)
		http.Error(w, "invalid signature", http.StatusUnauthorized)

		return
	}

	var parsed any
	if len(body) > 0 {
		err = json.Unmarshal(body, &parsed)
		if err != nil {
			parsed = string(body)
		}
	}

	payload := map[string]any{
		"body":    parsed,
		"headers": flattenHeaders(r.Header),
		"query":   r.URL.Query().Encode(),
		"path":    r.URL.Path,
	}

	err = handler.Fire(r.Context(), payload)
	if err != nil {
		handler.Logger.Error("Webhook fire failed", "error", err)
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"status":"accepted"}`))
}

// verifySignature checks a GitHub-style sha256= HMAC over the raw body.
func verifySignature(secret string, body []byte, signature string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key := range headers {
		flat[key] = headers.Get(key)
	}

	return flat
}
