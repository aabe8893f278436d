// File: internal/hub/client.go

// Package hub talks to the collaborator hub endpoint: publishing
// capsule bundles and fetching, claiming and completing externally
// posted tasks. Every call is bounded by a client-side timeout and fails
// open (empty or false result) on any transport error: a dead hub must
// never block or fail a local solidification.
package hub

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/crucible-cli/internal/assets"
	"github.com/xkilldash9x/crucible-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	protocolName    = "a2a"
	protocolVersion = "1"

	msgTaskFetch      = "task.fetch"
	msgTaskClaim      = "task.claim"
	msgTaskComplete   = "task.complete"
	msgCapsulePublish = "capsule.publish"
)

// Task is an externally posted unit of work offered by the hub.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Reward      string `json:"reward,omitempty"`
}

// Bundle is the published artifact: the gene, capsule and event of one
// committed cycle, sanitized before leaving the node.
type Bundle struct {
	Gene    assets.Gene    `json:"gene"`
	Capsule assets.Capsule `json:"capsule"`
	Event   assets.Event   `json:"event"`
}

// Client is the collaborator interface the engine depends on.
type Client interface {
	FetchTasks(ctx context.Context) ([]Task, error)
	ClaimTask(ctx context.Context, taskID string) bool
	CompleteTask(ctx context.Context, taskID, assetID string) bool
	PublishBundle(ctx context.Context, b Bundle) error
}

// envelope is the JSON frame wrapping every hub message.
type envelope struct {
	Protocol        string `json:"protocol"`
	ProtocolVersion string `json:"protocol_version"`
	MessageType     string `json:"message_type"`
	MessageID       string `json:"message_id"`
	SenderID        string `json:"sender_id"`
	Timestamp       string `json:"timestamp"`
	Payload         any    `json:"payload"`
}

// HTTPClient implements Client over HTTPS POST to a configured base URL.
type HTTPClient struct {
	logger  *zap.Logger
	baseURL string
	nodeID  string
	http    *http.Client
	limiter *rate.Limiter
}

// New builds an HTTPClient from configuration.
func New(cfg config.HubConfig, logger *zap.Logger) *HTTPClient {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		logger:  logger.Named("hub"),
		baseURL: cfg.BaseURL,
		nodeID:  cfg.NodeID,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// post sends one envelope and decodes the response payload into out
// (when out is non-nil). Transport and status errors are returned for
// the caller to swallow according to its fail-open contract.
func (c *HTTPClient) post(ctx context.Context, messageType string, payload, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("hub base URL is not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	env := envelope{
		Protocol:        protocolName,
		ProtocolVersion: protocolVersion,
		MessageType:     messageType,
		MessageID:       uuid.New().String(),
		SenderID:        c.nodeID,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Payload:         payload,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build hub request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("hub request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("hub returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode hub response: %w", err)
	}
	return nil
}

// FetchTasks pulls the currently available tasks. Any error yields an
// empty list.
func (c *HTTPClient) FetchTasks(ctx context.Context) ([]Task, error) {
	var resp struct {
		Tasks []Task `json:"tasks"`
	}
	if err := c.post(ctx, msgTaskFetch, map[string]any{}, &resp); err != nil {
		c.logger.Warn("Task fetch failed; treating as no tasks available.", zap.Error(err))
		return nil, nil
	}
	return resp.Tasks, nil
}

// ClaimTask attempts to claim a task for this node.
func (c *HTTPClient) ClaimTask(ctx context.Context, taskID string) bool {
	var resp struct {
		Claimed bool `json:"claimed"`
	}
	payload := map[string]any{"task_id": taskID, "node_id": c.nodeID}
	if err := c.post(ctx, msgTaskClaim, payload, &resp); err != nil {
		c.logger.Warn("Task claim failed.", zap.String("task_id", taskID), zap.Error(err))
		return false
	}
	return resp.Claimed
}

// CompleteTask reports a claimed task as done, referencing the capsule
// asset that resolves it.
func (c *HTTPClient) CompleteTask(ctx context.Context, taskID, assetID string) bool {
	var resp struct {
		Completed bool `json:"completed"`
	}
	payload := map[string]any{"task_id": taskID, "node_id": c.nodeID, "asset_id": assetID}
	if err := c.post(ctx, msgTaskComplete, payload, &resp); err != nil {
		c.logger.Warn("Task completion failed.", zap.String("task_id", taskID), zap.Error(err))
		return false
	}
	return resp.Completed
}

// PublishBundle broadcasts a sanitized gene/capsule/event bundle.
func (c *HTTPClient) PublishBundle(ctx context.Context, b Bundle) error {
	if err := c.post(ctx, msgCapsulePublish, Sanitize(b), nil); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// Sanitize strips fields that must not leave the node: event meta can
// carry raw validation output and local paths, and the environment
// fingerprint is reduced to its hash-like form only.
func Sanitize(b Bundle) Bundle {
	b.Event.Meta = nil
	b.Event.PersonalityState = ""
	b.Capsule.EnvFingerprint = shortFingerprint(b.Capsule.EnvFingerprint)
	return b
}

func shortFingerprint(fp string) string {
	const max = 16
	if len(fp) <= max {
		return fp
	}
	return fp[:max]
}
