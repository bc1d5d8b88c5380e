// Package meta is the client for the remote advertising platform (a Graph
// API style HTTP service). It owns authentication, uniform error
// classification, and the durable request log. The remote platform is the
// system of record: callers only trust a mutation after a successful Call.
package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"metamirror/internal/utils"
	"metamirror/pkg/reqlog"
)

const DefaultBaseURL = "https://graph.facebook.com/v18.0"

// Config carries the credentials and transport knobs. Values are copied at
// construction and never change for the process lifetime.
type Config struct {
	BaseURL     string
	AccessToken string
	AccountID   string
	PageID      string

	// RetryMax is passed to retryablehttp. It defaults to 0: one attempt
	// per invocation, because a re-sent create can double-create a remote
	// resource.
	RetryMax int
}

type Client struct {
	baseURL     string
	accessToken string
	accountID   string
	pageID      string
	http        *retryablehttp.Client
	reqLog      *reqlog.Logger
}

// Result is a successful remote response.
type Result struct {
	Body       json.RawMessage
	HTTPStatus int
}

// ID extracts the remote-assigned identifier from the response body.
func (r *Result) ID() string {
	return gjson.GetBytes(r.Body, "id").String()
}

// APIError is the uniform failure shape for both application-level
// rejections and transport failures. Body preserves the platform's raw
// error envelope when one was received.
type APIError struct {
	Message    string
	Code       int64
	Subcode    int64
	HTTPStatus int
	Body       json.RawMessage
}

func (e *APIError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("remote platform error (HTTP %d): %s", e.HTTPStatus, e.Message)
	}
	return "remote platform error: " + e.Message
}

// Transport reports whether the failure happened below the application
// layer (no HTTP response, or a remote 5xx).
func (e *APIError) Transport() bool {
	return e.HTTPStatus == 0 || e.HTTPStatus >= 500
}

func NewClient(cfg Config, reqLog *reqlog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	rc := retryablehttp.NewClient()
	rc.Logger = stdlog.New(io.Discard, "", 0)
	rc.RetryMax = cfg.RetryMax

	return &Client{
		baseURL:     cfg.BaseURL,
		accessToken: cfg.AccessToken,
		accountID:   cfg.AccountID,
		pageID:      cfg.PageID,
		http:        rc,
		reqLog:      reqLog,
	}
}

func (c *Client) AccountID() string { return c.accountID }
func (c *Client) PageID() string    { return c.pageID }

// Call performs one authenticated request against the platform. Endpoint is
// the path portion ("/act_123/campaigns", "/camp_1"). Body, when non-nil, is
// sent as JSON. Every call is logged to the request log before returning,
// but a log write failure never fails the call.
func (c *Client) Call(ctx context.Context, method, endpoint string, body interface{}) (*Result, error) {
	fullURL, err := c.buildURL(endpoint)
	if err != nil {
		return nil, &APIError{Message: err.Error()}
	}

	var reqBody io.Reader
	if body != nil && method != http.MethodGet {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, &APIError{Message: "encode request body: " + err.Error()}
		}
		reqBody = bytes.NewReader(encoded)
	}

	c.logCall(fmt.Sprintf("API request: %s %s", method, endpoint), body)

	req, err := retryablehttp.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		apiErr := &APIError{Message: err.Error()}
		c.logCall(fmt.Sprintf("API error: %s %s", method, endpoint), map[string]interface{}{"error": apiErr.Message})
		return nil, apiErr
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		apiErr := &APIError{Message: err.Error()}
		c.logCall(fmt.Sprintf("API error: %s %s", method, endpoint), map[string]interface{}{"error": apiErr.Message})
		return nil, apiErr
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		apiErr := &APIError{Message: err.Error(), HTTPStatus: resp.StatusCode}
		c.logCall(fmt.Sprintf("API error: %s %s", method, endpoint), map[string]interface{}{"error": apiErr.Message, "status": resp.StatusCode})
		return nil, apiErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := classifyError(respBody, resp.StatusCode)
		c.logCall(fmt.Sprintf("API error: %s %s", method, endpoint), map[string]interface{}{
			"error":  json.RawMessage(normalizeJSON(respBody)),
			"status": resp.StatusCode,
		})
		return nil, apiErr
	}

	c.logCall(fmt.Sprintf("API response: %s %s", method, endpoint), json.RawMessage(normalizeJSON(respBody)))

	return &Result{Body: respBody, HTTPStatus: resp.StatusCode}, nil
}

func (c *Client) buildURL(endpoint string) (string, error) {
	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return "", err
	}
	// Credential travels as a transport-level query parameter on every call.
	q := u.Query()
	q.Set("access_token", c.accessToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// classifyError prefers the platform's structured error envelope and falls
// back to the raw body text, always preserving the HTTP status.
func classifyError(body []byte, status int) *APIError {
	apiErr := &APIError{HTTPStatus: status, Body: body}
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		apiErr.Message = msg.String()
		apiErr.Code = gjson.GetBytes(body, "error.code").Int()
		apiErr.Subcode = gjson.GetBytes(body, "error.error_subcode").Int()
		return apiErr
	}
	apiErr.Message = http.StatusText(status)
	if len(body) > 0 {
		apiErr.Message = string(body)
	}
	return apiErr
}

// logCall appends to the request log. Best-effort: failures are reported on
// the process logger and swallowed so they can never affect the call outcome.
func (c *Client) logCall(message string, data interface{}) {
	if c.reqLog == nil {
		return
	}
	if err := c.reqLog.Append(message, data); err != nil {
		utils.Log.Warnf("request log append failed: %v", err)
	}
}

// normalizeJSON keeps valid JSON verbatim and wraps anything else so the
// request log stays one parseable object per line.
func normalizeJSON(body []byte) []byte {
	if json.Valid(body) && len(body) > 0 {
		return body
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}
