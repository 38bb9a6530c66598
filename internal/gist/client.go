package gist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const defaultBaseURL = "https://api.github.com"

// maxErrorBody bounds how much of an error response body is echoed into
// error messages.
const maxErrorBody = 512

// Client talks to the gist REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates an API client authenticating with token.
// If httpClient is nil, http.DefaultClient is used.
func NewClient(token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    defaultBaseURL,
		token:      token,
	}
}

// WithBaseURL points the client at a different API host. Used by tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = base
	return c
}

// do sends a JSON request and decodes the response into result.
func (c *Client) do(ctx context.Context, method, endpoint string, body, result any) error {
	var payload io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request body: %w", err)
		}

		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, payload)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("sending request to %s: %w", endpoint, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("reading response from %s: %w", endpoint, err)}
	}

	if err := classifyStatus(resp.StatusCode, endpoint, respBody); err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response from %s: %w", endpoint, err)
		}
	}

	return nil
}

func classifyStatus(status int, endpoint string, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusUnauthorized:
		return ErrBadCredential
	case status >= 500 || status == http.StatusTooManyRequests:
		return &TransientError{Err: fmt.Errorf("API %s returned status %d", endpoint, status)}
	default:
		return fmt.Errorf("API %s returned status %d: %s", endpoint, status, sanitizeBody(body))
	}
}

// sanitizeBody extracts the API's message field if present and bounds
// what gets echoed into error text.
func sanitizeBody(body []byte) string {
	var apiErr struct {
		Message string `json:"message"`
	}

	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		return apiErr.Message
	}

	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}

	return string(body)
}

type gistRequest struct {
	Description string           `json:"description,omitempty"`
	Public      *bool            `json:"public,omitempty"`
	Files       map[string]*File `json:"files,omitempty"`
}

// Create makes a new gist from the given blobs and returns it.
func (c *Client) Create(ctx context.Context, description string, public bool, files map[string]*File) (*Gist, error) {
	req := gistRequest{
		Description: description,
		Public:      &public,
		Files:       files,
	}

	var g Gist
	if err := c.do(ctx, http.MethodPost, "/gists", req, &g); err != nil {
		return nil, fmt.Errorf("creating gist: %w", err)
	}

	if g.ID == "" {
		return nil, &ShapeError{Field: "id"}
	}

	return &g, nil
}

// Get fetches a gist with its history and resolves any truncated files
// to their full content.
func (c *Client) Get(ctx context.Context, id string) (*Gist, error) {
	var g Gist
	if err := c.do(ctx, http.MethodGet, "/gists/"+url.PathEscape(id), nil, &g); err != nil {
		return nil, fmt.Errorf("fetching gist %s: %w", id, err)
	}

	if g.Files == nil {
		return nil, &ShapeError{Field: "files"}
	}

	for name, file := range g.Files {
		if file == nil || !file.Truncated {
			continue
		}

		content, err := c.fetchRaw(ctx, file.RawURL)
		if err != nil {
			return nil, fmt.Errorf("resolving truncated file %s: %w", name, err)
		}

		file.Content = content
		file.Truncated = false
	}

	return &g, nil
}

// fetchRaw downloads the full content of a truncated file.
func (c *Client) fetchRaw(ctx context.Context, rawURL string) (string, error) {
	if rawURL == "" {
		return "", &ShapeError{Field: "raw_url"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransientError{Err: fmt.Errorf("downloading raw content: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransientError{Err: fmt.Errorf("reading raw content: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("raw download returned status %d", resp.StatusCode)
	}

	return string(body), nil
}

// Update replaces blobs of an existing gist. A nil *File deletes the
// named blob.
func (c *Client) Update(ctx context.Context, id, description string, files map[string]*File) (*Gist, error) {
	req := gistRequest{
		Description: description,
		Files:       files,
	}

	var g Gist
	if err := c.do(ctx, http.MethodPatch, "/gists/"+url.PathEscape(id), req, &g); err != nil {
		return nil, fmt.Errorf("updating gist %s: %w", id, err)
	}

	return &g, nil
}

// Delete removes a gist.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/gists/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("deleting gist %s: %w", id, err)
	}

	return nil
}

// Fork copies someone else's gist into the authenticated account and
// returns the new gist.
func (c *Client) Fork(ctx context.Context, id string) (*Gist, error) {
	var g Gist
	if err := c.do(ctx, http.MethodPost, "/gists/"+url.PathEscape(id)+"/forks", nil, &g); err != nil {
		return nil, fmt.Errorf("forking gist %s: %w", id, err)
	}

	if g.ID == "" {
		return nil, &ShapeError{Field: "id"}
	}

	return &g, nil
}
