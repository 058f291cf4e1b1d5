// Package httprequest provides a node that performs an HTTP request and
// exposes the parsed response to downstream nodes.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

const defaultTimeoutSeconds = 30

var (
	// ErrURLMissing is returned when the node config has no url.
	ErrURLMissing = errors.New("missing or invalid 'url' in configuration")
	// ErrServerError is returned for 5xx responses.
	ErrServerError = errors.New("server error during HTTP request")
)

type NodeFactory struct{}

func NewNodeFactory() *NodeFactory {
	return &NodeFactory{}
}

func (*NodeFactory) ID() string {
	return "http_request"
}

func (f *NodeFactory) Create(node *models.Node) (protocol.Executable, error) {
	timeout := time.Duration(node.ConfigInt("timeout_seconds", defaultTimeoutSeconds)) * time.Second

	return &Node{
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to send the HTTP request to. Supports templating.",
				"examples": []string{
					"https://api.example.com/orders",
					"https://api.example.com/orders/{{order_id}}",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use",
				"default":     "GET",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"description":          "HTTP headers to include in the request. Values support templating.",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Request body content. Supports templating for dynamic JSON or text content.",
			},
			"timeout_seconds": map[string]any{
				"type":        "integer",
				"description": "Request timeout in seconds",
				"default":     defaultTimeoutSeconds,
				"minimum":     1,
			},
		},
		"required": []string{"url"},
	}
}

// Node performs one HTTP request per dispatch. Retries are the orchestrator's
// concern, expressed through the node's failure policy.
type Node struct {
	client *http.Client
}

func (n *Node) Execute(ctx context.Context, input protocol.NodeInput, logger *slog.Logger) (any, error) {
	logger = logger.With("node_type", "http_request")

	url, ok := input.Config["url"].(string)
	if !ok || url == "" {
		return nil, ErrURLMissing
	}

	method, _ := input.Config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	method = strings.ToUpper(method)

	var bodyReader io.Reader

	if body, ok := input.Config["body"].(string); ok && body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	if headers, ok := input.Config["headers"].(map[string]any); ok {
		for key, value := range headers {
			req.Header.Set(key, fmt.Sprint(value))
		}
	}

	logger.DebugContext(ctx, "Sending HTTP request", "method", method, "url", url)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	result, err := n.processResponse(ctx, resp, logger)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return result, fmt.Errorf("%w (status %d)", ErrServerError, resp.StatusCode)
	}

	return result, nil
}

func (n *Node) processResponse(ctx context.Context, resp *http.Response, logger *slog.Logger) (map[string]any, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var body any

	err = json.Unmarshal(bodyBytes, &body)
	if err != nil {
		body = string(bodyBytes)

		logger.DebugContext(ctx, "Response is not JSON, returning as string")
	}

	logger.InfoContext(ctx, "HTTP request completed", "status_code", resp.StatusCode, "body_length", len(bodyBytes))

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     resp.Header,
	}, nil
}
