package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/desertthunder/repertoire/internal/shared"
	tu "github.com/desertthunder/repertoire/internal/testing"
	"golang.org/x/oauth2"
)

func staticTokens(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
}

func TestExecutor(t *testing.T) {
	ctx := context.Background()

	t.Run("New", func(t *testing.T) {
		t.Run("With Custom BaseURL and Client", func(t *testing.T) {
			customClient := &http.Client{}
			e := NewExecutor("http://example.com", customClient, nil, nil)

			if e.BaseURL() != "http://example.com" {
				t.Errorf("expected baseURL 'http://example.com', got %s", e.BaseURL())
			}
			if e.httpClient != customClient {
				t.Error("expected custom client to be used")
			}
		})

		t.Run("With Empty BaseURL and Nil Client", func(t *testing.T) {
			e := NewExecutor("", nil, nil, nil)

			if e.BaseURL() != "http://localhost:5000" {
				t.Errorf("expected default baseURL, got %s", e.BaseURL())
			}
			if e.httpClient != http.DefaultClient {
				t.Error("expected http.DefaultClient to be used")
			}
		})
	})

	t.Run("Attaches Bearer Token", func(t *testing.T) {
		var gotAuth, gotID string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotID = r.Header.Get(RequestIDHeader)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		}))
		defer server.Close()

		e := NewExecutor(server.URL, nil, staticTokens("abc"), nil)
		resp, err := e.Do(ctx, Request{Path: "/songs"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if gotAuth != "Bearer abc" {
			t.Errorf("expected 'Bearer abc', got %q", gotAuth)
		}
		if gotID == "" {
			t.Error("expected a generated request id")
		}
		if !resp.IsJSON || resp.JSONData == nil {
			t.Error("expected JSON response data")
		}
	})

	t.Run("Public Request Omits Token", func(t *testing.T) {
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		e := NewExecutor(server.URL, nil, staticTokens("abc"), nil)
		if _, err := e.Do(ctx, Request{Path: "/auth/sign-in", Public: true}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if gotAuth != "" {
			t.Errorf("expected no Authorization header, got %q", gotAuth)
		}
	})

	t.Run("Protected Request Without Token Fails Fast", func(t *testing.T) {
		called := false
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		defer server.Close()

		for name, tokens := range map[string]oauth2.TokenSource{
			"nil source":  nil,
			"empty token": staticTokens(""),
		} {
			t.Run(name, func(t *testing.T) {
				e := NewExecutor(server.URL, nil, tokens, nil)
				resp, err := e.Do(ctx, Request{Path: "/songs"})

				if resp != nil {
					t.Error("expected no response")
				}
				if !errors.Is(err, shared.ErrNotAuthenticated) {
					t.Errorf("expected ErrNotAuthenticated, got %v", err)
				}
				if StatusOf(err) != http.StatusUnauthorized {
					t.Errorf("expected status 401, got %d", StatusOf(err))
				}
				if IsUnauthorized(err) {
					t.Error("local failure should not count as a server 401")
				}
			})
		}

		if called {
			t.Error("expected no network call")
		}
	})

	t.Run("Sends Method Query And JSON Body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPut {
				t.Errorf("expected PUT, got %s", r.Method)
			}
			if r.URL.Path != "/artists/1" {
				t.Errorf("expected /artists/1, got %s", r.URL.Path)
			}
			if r.URL.Query().Get("withAlbums") != "true" {
				t.Errorf("expected withAlbums query, got %s", r.URL.RawQuery)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected JSON content type, got %q", ct)
			}
			body, _ := io.ReadAll(r.Body)
			if strings.TrimSpace(string(body)) != `{"name":"x"}` {
				t.Errorf("unexpected body %s", body)
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		e := NewExecutor(server.URL+"/", nil, staticTokens("abc"), nil)
		resp, err := e.Do(ctx, Request{
			Method: http.MethodPut,
			Path:   "artists/1",
			Query:  url.Values{"withAlbums": []string{"true"}},
			Body:   map[string]string{"name": "x"},
			ID:     "req-1",
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("expected 204, got %d", resp.StatusCode)
		}
	})

	t.Run("Error Statuses", func(t *testing.T) {
		tc := []struct {
			name     string
			status   int
			body     string
			sentinel error
			message  string
		}{
			{name: "Unauthorized", status: http.StatusUnauthorized, body: `{"error":"expired"}`, sentinel: shared.ErrTokenExpired, message: "expired"},
			{name: "Forbidden", status: http.StatusForbidden, body: `{}`, sentinel: shared.ErrForbidden},
			{name: "Not Found", status: http.StatusNotFound, body: `{"error":"no such song"}`, sentinel: shared.ErrNotFound, message: "no such song"},
			{name: "Server Error", status: http.StatusInternalServerError, body: `boom`, sentinel: shared.ErrAPIRequest},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
					w.Write([]byte(tt.body))
				}))
				defer server.Close()

				e := NewExecutor(server.URL, nil, staticTokens("abc"), nil)
				resp, err := e.Do(ctx, Request{Path: "/x"})

				if resp == nil || resp.StatusCode != tt.status {
					t.Fatalf("expected response with status %d, got %+v", tt.status, resp)
				}
				var reqErr *RequestError
				if !errors.As(err, &reqErr) {
					t.Fatalf("expected RequestError, got %T", err)
				}
				if reqErr.StatusCode != tt.status {
					t.Errorf("expected status %d, got %d", tt.status, reqErr.StatusCode)
				}
				if reqErr.ServerMessage() != tt.message {
					t.Errorf("expected message %q, got %q", tt.message, reqErr.ServerMessage())
				}
				if !errors.Is(err, tt.sentinel) {
					t.Errorf("expected %v, got %v", tt.sentinel, err)
				}
			})
		}
	})

	t.Run("Transport Failure", func(t *testing.T) {
		client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection refused"))}
		e := NewExecutor("http://example.com", client, staticTokens("abc"), nil)

		_, err := e.Do(ctx, Request{Path: "/x"})
		if StatusOf(err) != 0 {
			t.Errorf("expected status 0, got %d", StatusOf(err))
		}
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
		if !strings.Contains(err.Error(), "connection refused") {
			t.Errorf("expected transport error in message, got %v", err)
		}
	})

	t.Run("Body Read Failure", func(t *testing.T) {
		client := &http.Client{Transport: tu.NewMockRoundTripper(&http.Response{
			StatusCode: http.StatusOK,
			Body:       &tu.FCloser{},
		}, nil)}
		e := NewExecutor("http://example.com", client, staticTokens("abc"), nil)

		if _, err := e.Do(ctx, Request{Path: "/x"}); err == nil {
			t.Error("expected error when reading body fails")
		}
	})
}

func TestAPIResponse(t *testing.T) {
	t.Run("Decode", func(t *testing.T) {
		resp := &APIResponse{StatusCode: 200, Body: []byte(`{"id":"7"}`)}

		var v struct {
			ID string `json:"id"`
		}
		if err := resp.Decode(&v); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if v.ID != "7" {
			t.Errorf("expected id 7, got %q", v.ID)
		}
	})

	t.Run("Decode Empty Body", func(t *testing.T) {
		var v map[string]any
		if err := (&APIResponse{StatusCode: 204}).Decode(&v); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})
}
