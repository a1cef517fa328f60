package pipeline

import (
	"context"
	"io"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/repertoire/internal/metrics"
	"github.com/desertthunder/repertoire/internal/services"
	"github.com/desertthunder/repertoire/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/sync/semaphore"
)

// TokenStore is the part of the session the coordinator reads and mutates.
type TokenStore interface {
	oauth2.TokenSource
	SetToken(ctx context.Context, token string) error
	SignOut(ctx context.Context) error
}

// Refresher exchanges an expired token for a new one.
type Refresher interface {
	Refresh(ctx context.Context, token string) (string, error)
}

// Coordinator retries requests that fail with 401 after a single-flight token refresh.
//
// The first caller to take the lock after a 401 refreshes; callers that find the lock held
// wait for it and retry with whatever token is current. A caller whose context ends during
// its refresh releases the lock without touching the session, and the next waiter refreshes. A generation counter, snapshotted
// before each request, tells a caller that acquires a free lock whether a refresh already
// finished since its request was sent, in which case it retries instead of refreshing again.
// Each request is retried at most once.
type Coordinator struct {
	next       services.Doer
	tokens     TokenStore
	refresher  Refresher
	lock       *semaphore.Weighted
	generation atomic.Uint64

	refreshPath string
	exempt      map[string]struct{}
	logger      *log.Logger
}

// CoordinatorConfig holds the refresh eligibility rules.
type CoordinatorConfig struct {
	// RefreshPath is never itself refreshed.
	RefreshPath string
	// Exempt paths never enter refresh handling.
	Exempt []string
}

// NewCoordinator wraps next. It panics when next, tokens or refresher is nil.
func NewCoordinator(next services.Doer, tokens TokenStore, refresher Refresher, cfg CoordinatorConfig, logger *log.Logger) *Coordinator {
	if next == nil || tokens == nil || refresher == nil {
		panic("pipeline: coordinator requires an executor, a token store and a refresher")
	}
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}

	exempt := make(map[string]struct{}, len(cfg.Exempt))
	for _, p := range cfg.Exempt {
		exempt[normalizePath(p)] = struct{}{}
	}

	return &Coordinator{
		next:        next,
		tokens:      tokens,
		refresher:   refresher,
		lock:        semaphore.NewWeighted(1),
		refreshPath: normalizePath(cfg.RefreshPath),
		exempt:      exempt,
		logger:      shared.WithLogger(logger, "component", "coordinator"),
	}
}

// Eligible reports whether a 401 on req may be recovered with a refresh.
func (c *Coordinator) Eligible(req services.Request) bool {
	if req.RefreshExempt || req.Public {
		return false
	}
	path := normalizePath(req.Path)
	if c.refreshPath != "" && path == c.refreshPath {
		return false
	}
	_, exempt := c.exempt[path]
	return !exempt
}

// Do sends req and recovers from an expired token.
func (c *Coordinator) Do(ctx context.Context, req services.Request) (*services.APIResponse, error) {
	if req.ID == "" {
		req.ID = shared.GenerateID()
	}

	gen := c.generation.Load()
	resp, err := c.next.Do(ctx, req)
	if !services.IsUnauthorized(err) || !c.Eligible(req) {
		return resp, err
	}

	token := c.currentToken()
	if token == "" {
		return resp, err
	}
	return c.recover(ctx, req, gen, token, resp, err)
}

func (c *Coordinator) recover(ctx context.Context, req services.Request, gen uint64, token string, resp *services.APIResponse, reqErr error) (*services.APIResponse, error) {
	logger := c.logger.With("path", req.Path, "request_id", req.ID)

	if !c.lock.TryAcquire(1) {
		logger.Debug("waiting for in-flight refresh")
		if err := c.lock.Acquire(ctx, 1); err != nil {
			return resp, reqErr
		}
	}

	if c.generation.Load() != gen {
		c.lock.Release(1)
		logger.Debug("token changed since request was sent")
		metrics.RecordRefresh(metrics.RefreshJoined)
		return c.retry(ctx, req)
	}

	// A holder that gave up leaves the generation unchanged; refresh whatever token is current.
	if current := c.currentToken(); current != token {
		if current == "" {
			c.lock.Release(1)
			return resp, reqErr
		}
		token = current
	}

	newToken, err := c.refresher.Refresh(ctx, token)
	if err != nil && ctx.Err() != nil {
		c.lock.Release(1)
		logger.Debug("refresh abandoned by caller", "error", err)
		metrics.RecordRefresh(metrics.RefreshAbandoned)
		return resp, reqErr
	}
	if err != nil {
		if serr := c.tokens.SignOut(context.WithoutCancel(ctx)); serr != nil {
			logger.Warn("failed to persist sign-out", "error", serr)
		}
		c.generation.Add(1)
		c.lock.Release(1)

		logger.Info("token refresh failed, signed out", "error", err)
		metrics.RecordRefresh(metrics.RefreshFailed)
		return resp, reqErr
	}

	if serr := c.tokens.SetToken(context.WithoutCancel(ctx), newToken); serr != nil {
		logger.Warn("failed to persist refreshed token", "error", serr)
	}
	c.generation.Add(1)
	c.lock.Release(1)

	logger.Info("token refreshed")
	metrics.RecordRefresh(metrics.RefreshSucceeded)
	return c.retry(ctx, req)
}

func (c *Coordinator) retry(ctx context.Context, req services.Request) (*services.APIResponse, error) {
	return c.next.Do(ctx, req)
}

func (c *Coordinator) currentToken() string {
	tok, err := c.tokens.Token()
	if err != nil || tok == nil {
		return ""
	}
	return tok.AccessToken
}

func normalizePath(p string) string {
	p, _, _ = strings.Cut(p, "?")
	p = "/" + strings.Trim(p, "/")
	return p
}
