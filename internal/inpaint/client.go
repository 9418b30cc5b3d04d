// Package inpaint talks to the asynchronous image-generation backend. A
// request carries the room photo, the placement mask and the prompt; the
// backend answers with a task id that is polled until a terminal state.
package inpaint

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrMissingTaskID means the backend accepted the request but returned
	// no task identifier to poll.
	ErrMissingTaskID = errors.New("inpaint: backend returned no task id")
	// ErrTaskFailed means the backend reported a terminal failed state.
	ErrTaskFailed = errors.New("inpaint: generation task failed")
	// ErrPollTimeout means the task did not reach a terminal state within
	// the configured attempt and duration bounds.
	ErrPollTimeout = errors.New("inpaint: generation task timed out")
)

const (
	statusPending    = "pending"
	statusProcessing = "processing"
	statusSucceeded  = "succeeded"
	statusFailed     = "failed"

	defaultPollInterval = 1800 * time.Millisecond
	defaultMaxAttempts  = 100
	defaultMaxWait      = 5 * time.Minute
)

// Options configures the generation client.
type Options struct {
	BaseURL      string
	APIKey       string
	Model        string
	HTTPClient   *http.Client
	Logger       zerolog.Logger
	PollInterval time.Duration
	MaxAttempts  int
	MaxWait      time.Duration
}

// Client submits inpainting jobs and polls them to completion.
type Client struct {
	baseURL      string
	apiKey       string
	model        string
	httpClient   *http.Client
	logger       zerolog.Logger
	pollInterval time.Duration
	maxAttempts  int
	maxWait      time.Duration
}

// NewClient builds a generation client. BaseURL and APIKey are required.
func NewClient(opts Options) (*Client, error) {
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("inpaint: base url is required")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("inpaint: api key is required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = defaultMaxWait
	}

	return &Client{
		baseURL:      opts.BaseURL,
		apiKey:       opts.APIKey,
		model:        strings.TrimSpace(opts.Model),
		httpClient:   opts.HTTPClient,
		logger:       opts.Logger,
		pollInterval: opts.PollInterval,
		maxAttempts:  opts.MaxAttempts,
		maxWait:      opts.MaxWait,
	}, nil
}

type createTaskRequest struct {
	Model        string `json:"model,omitempty"`
	Prompt       string `json:"prompt"`
	ImageURL     string `json:"image_url"`
	MaskImage    string `json:"mask_image"`
	ReferenceURL string `json:"reference_url,omitempty"`
}

type createTaskResponse struct {
	Output struct {
		TaskID string `json:"task_id"`
	} `json:"output"`
	TaskID  string `json:"task_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type taskStatusResponse struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		Results    []struct {
			URL string `json:"url"`
		} `json:"results"`
		Message string `json:"message"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Request describes one inpainting job.
type Request struct {
	Prompt    string
	SceneURL  string
	MaskPNG   []byte
	CutoutURL string
}

// Generate submits the job and blocks until the backend reports success,
// failure, or the polling bounds are exceeded. Returns the output image URL.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("inpaint: prompt is required")
	}
	if strings.TrimSpace(req.SceneURL) == "" {
		return "", fmt.Errorf("inpaint: scene url is required")
	}
	if len(req.MaskPNG) == 0 {
		return "", fmt.Errorf("inpaint: mask is required")
	}

	taskID, err := c.createTask(ctx, req)
	if err != nil {
		return "", err
	}

	c.logger.Info().Str("task_id", taskID).Msg("inpaint task submitted")

	return c.waitForCompletion(ctx, taskID)
}

func (c *Client) createTask(ctx context.Context, req Request) (string, error) {
	payload := createTaskRequest{
		Model:        c.model,
		Prompt:       req.Prompt,
		ImageURL:     req.SceneURL,
		MaskImage:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(req.MaskPNG),
		ReferenceURL: req.CutoutURL,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("inpaint: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tasks", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("inpaint: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("inpaint: submit task: %w", err)
	}
	defer resp.Body.Close()

	var decoded createTaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("inpaint: decode create response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("inpaint: create status %d: %s %s", resp.StatusCode, decoded.Code, decoded.Message)
	}

	taskID := decoded.Output.TaskID
	if taskID == "" {
		taskID = decoded.TaskID
	}
	if taskID == "" {
		return "", ErrMissingTaskID
	}

	return taskID, nil
}

func (c *Client) waitForCompletion(ctx context.Context, taskID string) (string, error) {
	deadline := time.Now().Add(c.maxWait)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		status, outputURL, reason, err := c.taskStatus(ctx, taskID)
		if err != nil {
			return "", err
		}

		switch status {
		case statusSucceeded:
			if outputURL == "" {
				return "", fmt.Errorf("%w: task %s succeeded without an output url", ErrTaskFailed, taskID)
			}
			return outputURL, nil
		case statusFailed:
			c.logger.Warn().Str("task_id", taskID).Str("reason", reason).Msg("inpaint task failed")
			return "", fmt.Errorf("%w: %s", ErrTaskFailed, reason)
		case statusPending, statusProcessing:
			// keep polling
		default:
			c.logger.Warn().Str("task_id", taskID).Str("status", status).Msg("unknown task status, still polling")
		}

		if time.Now().After(deadline) {
			break
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("inpaint: wait for task %s: %w", taskID, ctx.Err())
		case <-ticker.C:
		}
	}

	return "", fmt.Errorf("%w: task %s", ErrPollTimeout, taskID)
}

func (c *Client) taskStatus(ctx context.Context, taskID string) (status, outputURL, reason string, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tasks/"+taskID, nil)
	if err != nil {
		return "", "", "", fmt.Errorf("inpaint: build status request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", "", "", fmt.Errorf("inpaint: poll task: %w", err)
	}
	defer resp.Body.Close()

	var decoded taskStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", "", "", fmt.Errorf("inpaint: decode status response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", "", "", fmt.Errorf("inpaint: status %d: %s %s", resp.StatusCode, decoded.Code, decoded.Message)
	}

	status = normalizeStatus(decoded.Output.TaskStatus)
	if len(decoded.Output.Results) > 0 {
		outputURL = decoded.Output.Results[0].URL
	}
	reason = decoded.Output.Message
	if reason == "" {
		reason = decoded.Message
	}

	return status, outputURL, reason, nil
}

func normalizeStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "queued", "submitted":
		return statusPending
	case "processing", "running", "in_progress":
		return statusProcessing
	case "succeeded", "success", "completed", "done":
		return statusSucceeded
	case "failed", "error", "canceled", "cancelled":
		return statusFailed
	default:
		return strings.ToLower(strings.TrimSpace(raw))
	}
}
