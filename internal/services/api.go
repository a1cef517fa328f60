// Base request executor for the repertoire backend
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/repertoire/internal/shared"
	"golang.org/x/oauth2"
)

// RequestIDHeader carries the correlation ID of a request.
const RequestIDHeader = "X-Request-ID"

// Request describes one call against the backend.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is JSON encoded unless it is already a []byte.
	Body   any
	Header http.Header

	// Public requests never carry a bearer token and are sent even when signed out.
	Public bool
	// RefreshExempt requests are never retried through a token refresh.
	RefreshExempt bool
	// Invalidates names cache tags to mark stale once the request succeeds.
	Invalidates []string

	// ID is sent as X-Request-ID. Generated when empty.
	ID string
}

// URL joins base and the request path and query.
func (r Request) URL(base string) string {
	u := strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(r.Path, "/")
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}
	return u
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// OK reports a 2xx status.
func (r *APIResponse) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the body into v.
func (r *APIResponse) Decode(v any) error {
	if r == nil || len(r.Body) == 0 {
		return fmt.Errorf("%w: empty response body", shared.ErrAPIRequest)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Doer executes a [Request]. Every layer of the pipeline implements it.
type Doer interface {
	Do(ctx context.Context, req Request) (*APIResponse, error)
}

// Executor performs exactly one HTTP call per [Request].
//
// A bearer token from the token source is attached to protected requests. Without a token,
// protected requests fail fast with a 401 [RequestError] and never reach the network.
// Status codes are passed through untouched: no retry, no interpretation.
type Executor struct {
	baseURL    string
	httpClient *http.Client
	tokens     oauth2.TokenSource
	logger     *log.Logger
}

// NewExecutor creates an executor against baseURL. A nil tokens source sends every request unauthenticated.
func NewExecutor(baseURL string, client *http.Client, tokens oauth2.TokenSource, logger *log.Logger) *Executor {
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}

	return &Executor{
		baseURL:    baseURL,
		httpClient: client,
		tokens:     tokens,
		logger:     shared.WithLogger(logger, "component", "executor"),
	}
}

// BaseURL returns the backend root the executor targets.
func (e *Executor) BaseURL() string {
	return e.baseURL
}

// Do issues req. A non-2xx status returns both the response and a [*RequestError].
func (e *Executor) Do(ctx context.Context, req Request) (*APIResponse, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if req.ID == "" {
		req.ID = shared.GenerateID()
	}

	var token *oauth2.Token
	if !req.Public {
		token = e.token()
		if token == nil {
			return nil, &RequestError{
				StatusCode: http.StatusUnauthorized,
				Message:    "not signed in",
				Err:        shared.ErrNotAuthenticated,
			}
		}
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, &RequestError{Message: "failed to encode request body", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL(e.baseURL), body)
	if err != nil {
		return nil, &RequestError{Message: "failed to create request", Err: err}
	}

	for k, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set(RequestIDHeader, req.ID)
	if token != nil {
		token.SetAuthHeader(httpReq)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		e.logger.Debug("request failed", "method", req.Method, "path", req.Path, "request_id", req.ID, "error", err)
		return nil, &RequestError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}

	var jsonData any
	if err := json.Unmarshal(data, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	e.logger.Debug("request complete", "method", req.Method, "path", req.Path, "status", resp.StatusCode, "request_id", req.ID)

	if !apiResp.OK() {
		return apiResp, newStatusError(apiResp)
	}
	return apiResp, nil
}

func (e *Executor) token() *oauth2.Token {
	if e.tokens == nil {
		return nil
	}
	tok, err := e.tokens.Token()
	if err != nil || tok == nil || tok.AccessToken == "" {
		return nil
	}
	return tok
}

func encodeBody(v any) (io.Reader, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.NewReader(b), nil
	case json.RawMessage:
		return bytes.NewReader(b), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	}
}
