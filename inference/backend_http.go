package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/interfaces"
)

// maxResponseBytes caps the body read from an inference server.
const maxResponseBytes = 8 << 20

var _ interfaces.InferenceBackend = (*HTTPBackend)(nil)

// HTTPBackend calls an inference server over HTTP. The remote backend is a
// hosted GPU endpoint reached with a bearer token; the local backend is a
// model server on the same host. Both speak the same JSON contract:
// POST {"image_b64", "task"} and answer {"text"} or {"error"}.
type HTTPBackend struct {
	name     entities.BackendName
	endpoint string
	token    string
	client   *http.Client
}

type invokeRequest struct {
	ImageB64 string            `json:"image_b64"`
	Task     entities.TaskKind `json:"task"`
}

type invokeResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// NewRemoteBackend creates the hosted backend.
func NewRemoteBackend(endpoint, token string, client *http.Client) (*HTTPBackend, error) {
	return newHTTPBackend(entities.BackendRemote, endpoint, token, client)
}

// NewLocalBackend creates the backend for a model server on this host.
func NewLocalBackend(endpoint string, client *http.Client) (*HTTPBackend, error) {
	return newHTTPBackend(entities.BackendLocal, endpoint, "", client)
}

func newHTTPBackend(name entities.BackendName, endpoint, token string, client *http.Client) (*HTTPBackend, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid %s inference endpoint %q", name, endpoint)
	}
	if client == nil {
		// Attempt deadlines come from the caller's context.
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &HTTPBackend{name: name, endpoint: endpoint, token: token, client: client}, nil
}

// Name returns the backend name
func (b *HTTPBackend) Name() entities.BackendName {
	return b.name
}

// Invoke sends the image and returns the raw model text.
func (b *HTTPBackend) Invoke(ctx context.Context, image []byte, task entities.TaskKind) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("empty image")
	}

	body, err := json.Marshal(invokeRequest{
		ImageB64: base64.StdEncoding.EncodeToString(image),
		Task:     task,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, snippet(respBody))
	}

	var out invokeResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("server error: %s", out.Error)
	}
	return out.Text, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
