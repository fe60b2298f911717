package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shellbot/shellbot/pkg/types"
)

// Client is an HTTP client for the shellbot API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new shellbot API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			// Distro switches pull images; commands are bounded by the caller's context.
			Timeout: 10 * time.Minute,
		},
	}
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// doRequest performs an HTTP request with API key authentication.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	reqURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	return resp, nil
}

// do performs a request and decodes a JSON response into dest.
func (c *Client) do(ctx context.Context, method, path string, body, dest interface{}) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

// Term runs a shell command in the sandbox.
func (c *Client) Term(ctx context.Context, command string) (*types.ExecutionResult, error) {
	var result types.ExecutionResult
	if err := c.do(ctx, http.MethodPost, "/term", types.TermRequest{Command: command}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Distros lists the supported distros.
func (c *Client) Distros(ctx context.Context) ([]types.DistroListing, error) {
	var listings []types.DistroListing
	if err := c.do(ctx, http.MethodGet, "/distros", nil, &listings); err != nil {
		return nil, err
	}
	return listings, nil
}

// CompleteDistro returns distro names containing prefix.
func (c *Client) CompleteDistro(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	path := "/distros/complete?q=" + url.QueryEscape(prefix)
	if err := c.do(ctx, http.MethodGet, path, nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// SwitchDistro switches the sandbox to name.
func (c *Client) SwitchDistro(ctx context.Context, name string) (*types.DistroSwitchResponse, error) {
	var resp types.DistroSwitchResponse
	if err := c.do(ctx, http.MethodPut, "/distro", types.DistroRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns the sandbox status.
func (c *Client) Status(ctx context.Context) (*types.SandboxStatus, error) {
	var st types.SandboxStatus
	if err := c.do(ctx, http.MethodGet, "/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
