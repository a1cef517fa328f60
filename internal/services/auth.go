package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/repertoire/internal/shared"
)

// AuthPaths are the backend endpoints of the authentication flow.
type AuthPaths struct {
	SignIn        string
	Refresh       string
	RealtimeToken string
}

// AuthPathsFromConfig reads the endpoints from the [api] config section.
func AuthPathsFromConfig(cfg shared.APIConfig) AuthPaths {
	return AuthPaths{
		SignIn:        cfg.SignInPath,
		Refresh:       cfg.RefreshPath,
		RealtimeToken: cfg.RealtimeTokenPath,
	}
}

// Credentials is the body of a sign-in request.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenEnvelope struct {
	Token string `json:"token"`
}

// AuthService talks to the authentication endpoints.
//
// Refresh uses anon, an executor without a token source, so it never competes with the refresh
// coordinator for the session. RealtimeToken uses authed, the plain base executor.
type AuthService struct {
	anon   Doer
	authed Doer
	paths  AuthPaths
	logger *log.Logger
}

// NewAuthService creates an AuthService.
func NewAuthService(anon, authed Doer, paths AuthPaths, logger *log.Logger) *AuthService {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &AuthService{
		anon:   anon,
		authed: authed,
		paths:  paths,
		logger: shared.WithLogger(logger, "component", "auth"),
	}
}

// Paths returns the configured endpoints.
func (s *AuthService) Paths() AuthPaths {
	return s.paths
}

// SignInRequest builds the sign-in call. It is public and exempt from refresh: a 401 here means bad credentials.
func (s *AuthService) SignInRequest(email, password string) Request {
	return Request{
		Method:        http.MethodPut,
		Path:          s.paths.SignIn,
		Body:          Credentials{Email: email, Password: password},
		Public:        true,
		RefreshExempt: true,
	}
}

// Refresh exchanges token for a new one. Any failure, including an empty token, wraps [shared.ErrRefreshFailed].
func (s *AuthService) Refresh(ctx context.Context, token string) (string, error) {
	if s.anon == nil {
		return "", fmt.Errorf("%w: no refresh transport", shared.ErrRefreshFailed)
	}

	resp, err := s.anon.Do(ctx, Request{
		Method:        http.MethodPut,
		Path:          s.paths.Refresh,
		Body:          tokenEnvelope{Token: token},
		Public:        true,
		RefreshExempt: true,
	})
	if err != nil {
		s.logger.Debug("refresh rejected", "status", StatusOf(err))
		return "", fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}

	newToken, err := TokenFromResponse(resp)
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}
	return newToken, nil
}

// RealtimeToken fetches a short-lived connection token for the realtime server.
func (s *AuthService) RealtimeToken(ctx context.Context) (string, error) {
	if s.authed == nil {
		return "", shared.ErrNotAuthenticated
	}

	resp, err := s.authed.Do(ctx, Request{
		Method:        http.MethodGet,
		Path:          s.paths.RealtimeToken,
		RefreshExempt: true,
	})
	if err != nil {
		return "", err
	}
	return TokenFromResponse(resp)
}

// TokenFromResponse extracts a token from a JSON string, a {"token": ...} object, or a plain text body.
func TokenFromResponse(resp *APIResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: no response", shared.ErrAuthFailed)
	}

	body := strings.TrimSpace(string(resp.Body))
	var token string

	switch v := resp.JSONData.(type) {
	case string:
		token = v
	case map[string]any:
		if s, ok := v["token"].(string); ok {
			token = s
		}
	case nil:
		if !resp.IsJSON {
			token = body
		}
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: response carried no token", shared.ErrAuthFailed)
	}
	return token, nil
}
