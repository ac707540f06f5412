// Package render talks to an external media render service.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mulmocast-backend/internal/generation"
	"mulmocast-backend/internal/models"
)

// Remote render states.
const (
	StatusQueued    = "queued"
	StatusRendering = "rendering"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
	backoffs     []time.Duration
}

type CreateRenderRequest struct {
	ExternalID string            `json:"external_id"`
	OutputKind models.OutputKind `json:"output_kind"`
	Script     models.Script     `json:"script"`
}

type CreateRenderResponse struct {
	Data struct {
		RenderID string `json:"render_id"`
	} `json:"data"`
}

type RenderStatusResponse struct {
	Status      string `json:"status"` // "queued", "rendering", "succeeded", "failed"
	Progress    int    `json:"progress"`
	Error       string `json:"error,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

func NewClient(baseURL, apiKey string, pollInterval time.Duration) *Client {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       apiKey,
		pollInterval: pollInterval,
		backoffs:     []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithBackoffs replaces the retry schedule.
func (c *Client) WithBackoffs(backoffs ...time.Duration) *Client {
	c.backoffs = backoffs
	return c
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) CreateRender(ctx context.Context, renderReq CreateRenderRequest) (string, error) {
	jsonData, err := json.Marshal(renderReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/renders", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("failed to create render: status %d, body: %s", resp.StatusCode, string(body))
	}

	var result CreateRenderResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w, body: %s", err, string(body))
	}

	if result.Data.RenderID == "" {
		return "", fmt.Errorf("render_id is empty in response, body: %s", string(body))
	}

	return result.Data.RenderID, nil
}

func (c *Client) GetRenderStatus(ctx context.Context, renderID string) (*RenderStatusResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+"/renders/"+renderID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to get render status: status %d, body: %s", resp.StatusCode, string(body))
	}

	var result RenderStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}

func (c *Client) CancelRender(ctx context.Context, renderID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, c.baseURL+"/renders/"+renderID, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to cancel render: status %d, body: %s", resp.StatusCode, string(body))
	}

	return nil
}

// DownloadFile fetches a finished render. Download links are presigned, so no
// api key is sent.
func (c *Client) DownloadFile(ctx context.Context, downloadURL string) (*generation.Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to download file: status %d, body: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &generation.Artifact{ContentType: contentType, Data: data}, nil
}

// RetryWithBackoff executes a function with exponential backoff retry logic
func (c *Client) RetryWithBackoff(ctx context.Context, fn func() error, maxRetries int) error {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i < len(c.backoffs) && i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoffs[i]):
			}
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}
