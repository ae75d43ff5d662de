// Package apiclient is a typed client for the learnhub HTTP API. It backs
// the CLI and the MCP tools.
package apiclient

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

	"github.com/roasbeef/learnhub/internal/plan"
	"github.com/roasbeef/learnhub/internal/summary"
	"github.com/roasbeef/learnhub/internal/transcript"
)

const (
	// DefaultBaseURL is where learnhubd listens by default.
	DefaultBaseURL = "http://localhost:8080"

	// DefaultTimeout bounds a single API call. Summaries can spend a
	// while in upstream backoff.
	DefaultTimeout = 2 * time.Minute

	// planRequestIDHeader mirrors the header the server sets on submit.
	planRequestIDHeader = "X-Plan-Request-Id"
)

// ErrPlanNotReady is returned when the plan has not arrived yet or has
// expired.
var ErrPlanNotReady = errors.New("learning plan not ready")

// StatusError is a non-2xx reply from the API.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
	Detail     string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("api returned %d", e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}

	return msg
}

// SubmitReply is the relayed workflow engine reply to a plan submission.
type SubmitReply struct {
	RequestID   string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client talks to a learnhubd instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Health returns the server's health report.
func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/health", nil,
		&out); err != nil {

		return nil, err
	}

	return out, nil
}

// Summarize requests a video summary.
func (c *Client) Summarize(ctx context.Context,
	req summary.Request) (*summary.Response, error) {

	var out summary.Response
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/summarize", req,
		&out); err != nil {

		return nil, err
	}

	return &out, nil
}

// Transcript fetches the transcript, or fallback metadata, for a video id
// or URL.
func (c *Client) Transcript(ctx context.Context,
	video string) (*transcript.Result, error) {

	path := "/api/v1/transcript?videoId=" + url.QueryEscape(video)

	var out transcript.Result
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// SubmitPlan submits a learner profile. Any engine reply, including a
// non-2xx one, is returned as is.
func (c *Client) SubmitPlan(ctx context.Context,
	profile map[string]any) (*SubmitReply, error) {

	resp, err := c.do(ctx, http.MethodPost,
		"/api/v1/learning-plan/submit", profile)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// The server only answers with its own error envelope when it
	// rejected the submission before reaching the engine.
	requestID := resp.Header.Get(planRequestIDHeader)
	if requestID == "" {
		return nil, readStatusError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read submit reply: %w", err)
	}

	return &SubmitReply{
		RequestID:   requestID,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// GetPlan fetches a stored plan. It returns ErrPlanNotReady on a 404.
func (c *Client) GetPlan(ctx context.Context, id string) (*plan.Record,
	error) {

	var out plan.Record
	err := c.doJSON(ctx, http.MethodGet, planPath(id), nil, &out)

	var statusErr *StatusError
	if errors.As(err, &statusErr) &&
		statusErr.StatusCode == http.StatusNotFound {

		return nil, fmt.Errorf("%w: %s", ErrPlanNotReady, id)
	}
	if err != nil {
		return nil, err
	}

	return &out, nil
}

// DeletePlan removes a stored plan. Deleting an absent plan succeeds.
func (c *Client) DeletePlan(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, planPath(id), nil, nil)
}

func planPath(id string) string {
	return "/api/v1/learning-plan?id=" + url.QueryEscape(id)
}

// do sends a request with an optional JSON body.
func (c *Client) do(ctx context.Context, method, path string,
	body any) (*http.Response, error) {

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path,
		reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	return resp, nil
}

// doJSON sends a request and decodes a 2xx JSON reply into out, which may
// be nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body,
	out any) error {

	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readStatusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s reply: %w", path, err)
	}

	return nil
}

// apiError mirrors the server's error envelope.
type apiError struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

// readStatusError builds a StatusError from an error reply.
func readStatusError(resp *http.Response) error {
	statusErr := &StatusError{StatusCode: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var envelope apiError
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Code != "" {
		statusErr.Code = envelope.Error.Code
		statusErr.Message = envelope.Error.Message
		if detail, ok := envelope.Error.Details["detail"].(string); ok {
			statusErr.Detail = detail
		}

		return statusErr
	}

	statusErr.Message = strings.TrimSpace(string(raw))

	return statusErr
}
