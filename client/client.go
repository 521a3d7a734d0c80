// Package client talks to the outreach HTTP API. It implements
// composer.Backend so a composer session can run against a remote server.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"outreach/composer"
	"outreach/models"
)

var _ composer.Backend = (*Client)(nil)

const defaultTimeout = 15 * time.Second

// APIError is a non-2xx response from the API
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL string
	token   string
	http    *fasthttp.Client
	timeout time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the underlying fasthttp client
func WithHTTPClient(hc *fasthttp.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New returns a client for the API rooted at baseURL, e.g.
// "http://localhost:5000/api/v1".
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &fasthttp.Client{Name: "outreachctl"},
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if c.token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.token)
	}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(body)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(resp.Body(), &body); err != nil || body.Error == "" {
			body.Error = fasthttp.StatusMessage(status)
		}
		return &APIError{Status: status, Message: body.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func connPath(connectionID uint, suffix string) string {
	return fmt.Sprintf("/connections/%d%s", connectionID, suffix)
}

type timelineResponse struct {
	Timeline *models.Timeline `json:"timeline"`
}

// GetDraft returns the stored draft content, "" when there is none
func (c *Client) GetDraft(ctx context.Context, connectionID uint) (string, error) {
	var resp struct {
		Draft *struct {
			Content string `json:"content"`
		} `json:"draft"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, connPath(connectionID, "/draft"), nil, &resp); err != nil {
		return "", err
	}
	if resp.Draft == nil {
		return "", nil
	}
	return resp.Draft.Content, nil
}

func (c *Client) SaveDraft(ctx context.Context, connectionID uint, content string) error {
	body := map[string]string{"content": content}
	return c.do(ctx, fasthttp.MethodPut, connPath(connectionID, "/draft"), body, nil)
}

func (c *Client) SendEmail(ctx context.Context, connectionID uint, stageLabel, subject, body string) error {
	req := map[string]string{
		"stage":   stageLabel,
		"subject": subject,
		"body":    body,
	}
	return c.do(ctx, fasthttp.MethodPost, connPath(connectionID, "/send"), req, nil)
}

func (c *Client) UpdateStage(ctx context.Context, connectionID, stageID uint, update models.StageUpdate) (*models.Timeline, error) {
	var resp timelineResponse
	path := connPath(connectionID, fmt.Sprintf("/timeline/stages/%d", stageID))
	if err := c.do(ctx, fasthttp.MethodPatch, path, update, &resp); err != nil {
		return nil, err
	}
	return resp.Timeline, nil
}

func (c *Client) AdvanceTimeline(ctx context.Context, connectionID uint, trigger string, stageID uint) (*models.Timeline, error) {
	var resp timelineResponse
	req := map[string]interface{}{
		"trigger":  trigger,
		"stage_id": stageID,
	}
	if err := c.do(ctx, fasthttp.MethodPost, connPath(connectionID, "/timeline/advance"), req, &resp); err != nil {
		return nil, err
	}
	return resp.Timeline, nil
}

func (c *Client) GetTimeline(ctx context.Context, connectionID uint) (*models.Timeline, error) {
	var resp timelineResponse
	if err := c.do(ctx, fasthttp.MethodGet, connPath(connectionID, "/timeline"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Timeline, nil
}

func (c *Client) MarkComposerOpened(ctx context.Context, connectionID uint) error {
	return c.do(ctx, fasthttp.MethodPost, connPath(connectionID, "/composer-open"), nil, nil)
}

// GetConnection returns the connection with its timeline preloaded
func (c *Client) GetConnection(ctx context.Context, connectionID uint) (*models.Connection, error) {
	var resp struct {
		Connection *models.Connection `json:"connection"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, connPath(connectionID, ""), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Connection == nil {
		return nil, &APIError{Status: fasthttp.StatusNotFound, Message: "connection missing from response"}
	}
	return resp.Connection, nil
}

// ListConnections returns every connection owned by the caller
func (c *Client) ListConnections(ctx context.Context) ([]models.Connection, error) {
	var resp struct {
		Connections []models.Connection `json:"connections"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, "/connections", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Connections, nil
}

// UpdateStatus overrides the connection's email status
func (c *Client) UpdateStatus(ctx context.Context, connectionID uint, status models.EmailStatus) (*models.Connection, error) {
	var resp struct {
		Connection *models.Connection `json:"connection"`
	}
	body := map[string]string{"email_status": string(status)}
	if err := c.do(ctx, fasthttp.MethodPut, connPath(connectionID, "/status"), body, &resp); err != nil {
		return nil, err
	}
	return resp.Connection, nil
}
