package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sony/gobreaker"
)

// Provider status vocabulary as it appears on the wire.
const (
	StatusPending    = "pending"
	StatusAssigned   = "assigned"
	StatusSubmitted  = "submitted"
	StatusPublished  = "published"
	StatusModRemoved = "mod-removed"
	StatusCancelled  = "cancelled"
	StatusFailed     = "failed"
)

// TaskSubmission is one fulfilment record inside a webhook payload.
type TaskSubmission struct {
	SubmissionURL string `json:"submissionUrl"`
}

// WebhookPayload is the asynchronous callback the marketplace sends when a
// task changes state.
type WebhookPayload struct {
	ID             string           `json:"_id"`
	ThreadURL      string           `json:"threadUrl"`
	TaskType       string           `json:"taskType"`
	Status         string           `json:"status"`
	Content        string           `json:"content"`
	ClientPrice    *float64         `json:"clientPrice"`
	TaskSubmission []TaskSubmission `json:"taskSubmission"`
	PublishedAt    string           `json:"publishedAt"`
}

// CreateTaskResult is the provider's answer to a task creation.
type CreateTaskResult struct {
	ExternalID  string
	RawRequest  string
	RawResponse string
}

// Options configures a marketplace client.
type Options struct {
	BaseURL     string
	APIKeyEnv   string
	ProjectID   string // provider-side project id
	BreakerTrip uint32
	BreakerWait time.Duration
}

// Client talks to the posting-task marketplace. The circuit breaker is
// process-wide: all submission runs share it.
type Client struct {
	baseURL   string
	apiKey    string
	projectID string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker
}

// NewClient creates a marketplace client from options, applying defaults.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.crowdreply.io"
	}
	if opts.BreakerTrip == 0 {
		opts.BreakerTrip = 5
	}
	if opts.BreakerWait == 0 {
		opts.BreakerWait = 60 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "marketplace",
		MaxRequests: 1,
		Timeout:     opts.BreakerWait,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerTrip
		},
	})

	return &Client{
		baseURL:   opts.BaseURL,
		apiKey:    os.Getenv(opts.APIKeyEnv),
		projectID: opts.ProjectID,
		client:    &http.Client{Timeout: 30 * time.Second},
		breaker:   breaker,
	}
}

// ProjectID returns the provider-side project id this client submits under.
func (c *Client) ProjectID() string { return c.projectID }

// IsConfigured returns whether the API key is available.
func (c *Client) IsConfigured() bool { return c.apiKey != "" }

// CreateTask asks the marketplace to post content on the target thread.
func (c *Client) CreateTask(ctx context.Context, targetURL, content string, upvotes int) (*CreateTaskResult, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("marketplace API key not configured")
	}

	reqBody := map[string]any{
		"threadUrl": targetURL,
		"content":   content,
		"taskType":  "comment",
		"projectId": c.projectID,
	}
	if upvotes > 0 {
		reqBody["upvotes"] = upvotes
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling task request: %w", err)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.doCreate(ctx, data)
	})
	if err != nil {
		return nil, err
	}

	created := result.(*CreateTaskResult)
	created.RawRequest = string(data)
	return created, nil
}

func (c *Client) doCreate(ctx context.Context, data []byte) (*CreateTaskResult, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/tasks", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("marketplace API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("marketplace API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decoding task response: %w", err)
	}
	if parsed.ID == "" {
		return nil, fmt.Errorf("marketplace response missing task id")
	}

	return &CreateTaskResult{ExternalID: parsed.ID, RawResponse: string(respBody)}, nil
}
