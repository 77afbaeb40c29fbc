// Package graph is a read-only client for the mail folder endpoints of the
// Microsoft Graph API.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the Graph v1.0 endpoint.
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultPageSize is the $top used for folder listings.
	DefaultPageSize = 200

	// DefaultMaxPages bounds how many @odata.nextLink pages a listing follows.
	DefaultMaxPages = 5

	folderFields = "displayName,id,unreadItemCount"
)

// Folder is a mail folder as returned by the listing endpoints.
// UnreadItemCount is nil when the API omits the field.
type Folder struct {
	ID              string `json:"id"`
	DisplayName     string `json:"displayName"`
	UnreadItemCount *int   `json:"unreadItemCount"`
}

// Unread returns the unread count, treating a missing field as zero.
func (f Folder) Unread() int {
	if f.UnreadItemCount == nil {
		return 0
	}
	return *f.UnreadItemCount
}

type folderPage struct {
	Value    []Folder `json:"value"`
	NextLink string   `json:"@odata.nextLink"`
}

type graphErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client performs authenticated GETs against Graph. The token is supplied
// per call so one client can serve successive sign-ins.
type Client struct {
	baseURL    string
	httpClient *http.Client
	pageSize   int
	maxPages   int
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL sets the Graph base URL (tests point this at httptest).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the default timeout for HTTP requests.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithPageSize sets the $top used for folder listings.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithMaxPages bounds how many pages a listing follows.
func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// NewClient creates a Graph client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		pageSize: DefaultPageSize,
		maxPages: DefaultMaxPages,
	}

	if baseURL := os.Getenv("REDLINE_GRAPH_URL"); baseURL != "" {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the configured Graph base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// InboxUnread returns the unread count of the well-known inbox folder.
// A response without unreadItemCount yields zero.
func (c *Client) InboxUnread(ctx context.Context, token string) (int, error) {
	var folder Folder
	endpoint := c.baseURL + "/me/mailFolders('inbox')?$select=unreadItemCount"
	if err := c.get(ctx, "inbox_unread", token, endpoint, &folder); err != nil {
		return 0, err
	}
	return folder.Unread(), nil
}

// TopLevelFolders lists the mailbox's top-level folders.
func (c *Client) TopLevelFolders(ctx context.Context, token string) ([]Folder, error) {
	return c.listFolders(ctx, "list_folders", token, "/me/mailFolders")
}

// InboxChildFolders lists the folders nested directly under the inbox.
func (c *Client) InboxChildFolders(ctx context.Context, token string) ([]Folder, error) {
	return c.listFolders(ctx, "list_inbox_children", token, "/me/mailFolders('inbox')/childFolders")
}

func (c *Client) listFolders(ctx context.Context, op, token, path string) ([]Folder, error) {
	q := url.Values{}
	q.Set("$select", folderFields)
	q.Set("$top", fmt.Sprintf("%d", c.pageSize))
	next := c.baseURL + path + "?" + q.Encode()

	var folders []Folder
	for page := 0; next != "" && page < c.maxPages; page++ {
		var p folderPage
		if err := c.get(ctx, op, token, next, &p); err != nil {
			return nil, err
		}
		folders = append(folders, p.Value...)
		next = p.NextLink
		if next != "" && !c.sameOrigin(next) {
			return nil, NewAPIError(op, 0, ErrForeignNextLink)
		}
	}
	return folders, nil
}

// sameOrigin reports whether link has the scheme and host of the base URL.
func (c *Client) sameOrigin(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, base.Scheme) && strings.EqualFold(u.Host, base.Host)
}

func (c *Client) get(ctx context.Context, op, token, endpoint string, out interface{}) error {
	if token == "" {
		return NewAPIError(op, 0, ErrNoToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return NewAPIError(op, 0, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return NewAPIError(op, 0, ErrTimeout)
		}
		return NewAPIError(op, 0, fmt.Errorf("%w: %v", ErrServerUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		apiErr := NewAPIError(op, resp.StatusCode, fmt.Errorf("unexpected status: %s", resp.Status))
		if resp.StatusCode == http.StatusUnauthorized {
			apiErr.Err = ErrUnauthorized
		}
		var ge graphErrorBody
		if json.Unmarshal(body, &ge) == nil && ge.Error.Code != "" {
			apiErr.Code = ge.Error.Code
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewAPIError(op, resp.StatusCode, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
