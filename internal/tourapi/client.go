// Package tourapi is a client for the tour status REST API. A Client bound
// to a user is a progress.Sink.
package tourapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	BaseURL    string
	UserID     string
	HTTPClient *http.Client
	// Timeout applies when HTTPClient is nil. Defaults to 10 seconds.
	Timeout time.Duration
}

type Client struct {
	baseURL string
	userID  string
	client  *http.Client
}

// Error is a non-2xx answer from the API.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("tourapi: %d: %s", e.StatusCode, e.Message)
}

// IsBadRequest reports whether err is a 400, e.g. an unknown tour name.
func IsBadRequest(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusBadRequest
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("tourapi: BaseURL is required")
	}
	if cfg.UserID == "" {
		return nil, fmt.Errorf("tourapi: UserID is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		userID:  cfg.UserID,
		client:  httpClient,
	}, nil
}

// SaveStatus records the completion flag of tourName for the client's user.
func (c *Client) SaveStatus(ctx context.Context, tourName string, completed bool) error {
	body := map[string]any{"userId": c.userID, "tourName": tourName, "completed": completed}
	return c.post(ctx, "/api/tour-status/update", body, nil)
}

// FetchStatus returns the completion flag of every known tour for the
// client's user.
func (c *Client) FetchStatus(ctx context.Context) (map[string]bool, error) {
	var resp struct {
		UserID string          `json:"userId"`
		Tours  map[string]bool `json:"tours"`
	}
	if err := c.get(ctx, "/api/tour-status/"+url.PathEscape(c.userID), &resp); err != nil {
		return nil, err
	}
	return resp.Tours, nil
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("tourapi: marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("tourapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("tourapi: create request: %w", err)
	}
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("tourapi: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("tourapi: read response body: %w", err)
	}

	var env struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	_ = json.Unmarshal(data, &env)

	if resp.StatusCode >= 400 {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &Error{StatusCode: resp.StatusCode, Message: msg}
	}
	if dest == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, dest)
}
