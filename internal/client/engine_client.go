package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/brightclass/api/internal/config"
	"github.com/brightclass/api/internal/model"
)

// WorkflowIngress delivers job envelopes to the external workflow
// engine. The engine is an opaque, non-transactional collaborator:
// a 2xx reply means "accepted for async processing" and nothing more.
type WorkflowIngress interface {
	Submit(ctx context.Context, env *model.DispatchEnvelope) (*SubmitAck, error)
}

// SubmitAck is the engine's synchronous reply to a submission. The
// engine sometimes includes an immediate partial result; callers must
// treat it as informational only — completion is confirmed through
// the callback path, never through this reply.
type SubmitAck struct {
	RequestID string          `json:"request_id,omitempty"`
	Status    string          `json:"status,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// EngineClient implements WorkflowIngress over plain HTTP.
type EngineClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewEngineClient creates a workflow engine client. The timeout bounds
// every submission; the engine is an untrusted, possibly slow
// dependency and must never block other jobs.
func NewEngineClient(cfg *config.EngineConfig) *EngineClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EngineClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

// Submit posts the envelope to the engine's ingress endpoint. Exactly
// one outbound call per invocation. Timeouts, connection errors and
// non-2xx replies are all transport failures surfaced to the caller.
func (c *EngineClient) Submit(ctx context.Context, env *model.DispatchEnvelope) (*SubmitAck, error) {
	bodyBytes, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ingress", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Engine] ✗ POST %s — request failed: %v", req.URL.String(), err)
		return nil, fmt.Errorf("failed to reach workflow engine: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read engine response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[Engine] ← %d POST %s — %s", resp.StatusCode, req.URL.String(), string(respBody))
		return nil, fmt.Errorf("workflow engine error (status %d): %s", resp.StatusCode, string(respBody))
	}

	// No response-shape contract beyond "2xx means accepted". An
	// unparseable body is still a successful submission.
	ack := &SubmitAck{}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, ack); err != nil {
			log.Printf("[Engine] non-JSON accept reply for %s: %s", env.ClientMsgID, string(respBody))
			return &SubmitAck{}, nil
		}
	}
	return ack, nil
}

// IsConfigured returns true if the client has a target URL.
func (c *EngineClient) IsConfigured() bool {
	return c.baseURL != ""
}
