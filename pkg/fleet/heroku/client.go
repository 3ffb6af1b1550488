package heroku

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"tierscale/pkg/config"
	"tierscale/pkg/logger"
)

// Dyno is one dyno as reported by the dyno list endpoint
type Dyno struct {
	Name  string `json:"name"` // e.g. worker.1
	Type  string `json:"type"` // process type, e.g. worker
	State string `json:"state"`
}

// FormationUpdate is the body of the formation update endpoint
type FormationUpdate struct {
	Quantity int `json:"quantity"`
}

// Formation is a process type's configured quantity
type Formation struct {
	Type     string `json:"type"`
	Quantity int    `json:"quantity"`
}

// ErrorResponse platform API error body
type ErrorResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Client is the platform API client
type Client struct {
	apiKey     string
	appName    string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new platform API client
func NewClient(cfg config.HerokuConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.heroku.com"
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		apiKey:  cfg.APIKey,
		appName: cfg.AppName,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ListDynos lists the app's dynos
func (c *Client) ListDynos(ctx context.Context) ([]Dyno, error) {
	endpoint := fmt.Sprintf("%s/apps/%s/dynos", c.baseURL, url.PathEscape(c.appName))

	respData, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var dynos []Dyno
	if err := json.Unmarshal(respData, &dynos); err != nil {
		return nil, fmt.Errorf("failed to parse dyno list response: %w", err)
	}
	return dynos, nil
}

// UpdateFormation sets the quantity of a process type
func (c *Client) UpdateFormation(ctx context.Context, processType string, quantity int) (*Formation, error) {
	endpoint := fmt.Sprintf("%s/apps/%s/formation/%s",
		c.baseURL, url.PathEscape(c.appName), url.PathEscape(processType))

	respData, err := c.doRequest(ctx, http.MethodPatch, endpoint, &FormationUpdate{Quantity: quantity})
	if err != nil {
		return nil, err
	}

	var formation Formation
	if err := json.Unmarshal(respData, &formation); err != nil {
		return nil, fmt.Errorf("failed to parse formation response: %w", err)
	}
	return &formation, nil
}

// doRequest performs an HTTP request with proper authentication
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)

		logger.Debugf("Platform API Request: %s %s, Body: %s", method, endpoint, string(jsonData))
	} else {
		logger.Debugf("Platform API Request: %s %s", method, endpoint)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.heroku+json; version=3")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	logger.Debugf("Platform API Response: Status %d, Body: %s", resp.StatusCode, string(respData))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(respData, &errResp); err == nil && errResp.Message != "" {
			return nil, fmt.Errorf("platform API error (status %d): %s", resp.StatusCode, errResp.Message)
		}
		return nil, fmt.Errorf("platform API error (status %d): %s", resp.StatusCode, string(respData))
	}

	return respData, nil
}
