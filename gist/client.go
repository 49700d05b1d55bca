package gist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Errors the caller is expected to branch on. Anything else comes back as
// a *StatusError or a wrapped transport error.
var (
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("API rate limit exceeded")
)

// StatusError reports a non-2xx response that is not a 404 or rate limit.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected response: %s", e.Status)
}

// Owner identifies who a gist belongs to.
type Owner struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// File is one file inside a gist. Content is only populated when fetching
// a gist by id; the listing endpoint omits it.
type File struct {
	Filename string `json:"filename"`
	Type     string `json:"type"`
	Language string `json:"language,omitempty"`
	Content  string `json:"content,omitempty"`
	Size     int    `json:"size,omitempty"`
}

// Gist is a public gist as the listing API returns it.
type Gist struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Files       map[string]File `json:"files"`
	Comments    int             `json:"comments"`
	Owner       Owner           `json:"owner"`
	Public      bool            `json:"public"`
}

// Client is a read-only lookup client for the public gist API.
type Client struct {
	base string
	http *http.Client
}

func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimSuffix(base, "/"),
		http: &http.Client{Timeout: 20 * time.Second},
	}
}

// FetchByUsername lists a user's public gists. 404 maps to ErrNotFound,
// 403 and 429 to ErrRateLimited.
func (c *Client) FetchByUsername(ctx context.Context, username string) ([]Gist, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is required")
	}

	var gists []Gist
	if err := c.get(ctx, fmt.Sprintf("%s/users/%s/gists", c.base, username), &gists); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		return nil, err
	}
	return gists, nil
}

// FetchByID fetches one gist including file contents.
func (c *Client) FetchByID(ctx context.Context, id string) (*Gist, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("gist id is required")
	}

	var gist Gist
	if err := c.get(ctx, fmt.Sprintf("%s/gists/%s", c.base, id), &gist); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("gist %q: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &gist, nil
}

func (c *Client) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
