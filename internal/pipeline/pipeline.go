// package pipeline composes the authenticated request pipeline
//
// A request flows Interceptor -> Coordinator -> Executor. The coordinator hides expired
// tokens behind a single-flight refresh; the interceptor maps terminal failures to navigation
// or notifications and emits a [Completion] to registered observers on success.
package pipeline

import (
	"context"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/repertoire/internal/metrics"
	"github.com/desertthunder/repertoire/internal/services"
	"github.com/desertthunder/repertoire/internal/shared"
)

// Completion describes a request that succeeded.
type Completion struct {
	Request  services.Request
	Response *services.APIResponse
	At       time.Time
}

// Observer reacts to successful completions. Observers run synchronously, in registration
// order, before the result is returned to the caller.
type Observer interface {
	Observe(Completion)
}

// ObserverFunc adapts a function to [Observer].
type ObserverFunc func(Completion)

func (f ObserverFunc) Observe(c Completion) { f(c) }

type observers struct {
	mu   sync.RWMutex
	list []Observer
}

func (o *observers) add(obs Observer) {
	if obs == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.list = append(o.list, obs)
}

func (o *observers) notify(c Completion) {
	o.mu.RLock()
	list := slices.Clone(o.list)
	o.mu.RUnlock()

	for _, obs := range list {
		obs.Observe(c)
	}
}

// Invalidator marks cached entries stale by tag.
type Invalidator interface {
	InvalidateTags(tags ...string) int
}

// InvalidateOnSuccess returns an observer that invalidates [services.Request.Invalidates].
func InvalidateOnSuccess(inv Invalidator, logger *log.Logger) Observer {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	logger = shared.WithLogger(logger, "component", "invalidator")

	return ObserverFunc(func(c Completion) {
		if len(c.Request.Invalidates) == 0 {
			return
		}
		marked := inv.InvalidateTags(c.Request.Invalidates...)
		metrics.RecordInvalidation("mutation", marked)
		logger.Debug("invalidated after mutation", "tags", c.Request.Invalidates, "marked", marked, "request_id", c.Request.ID)
	})
}

// Options configures [New].
type Options struct {
	// Executor is the base executor, normally a [*services.Executor] reading the session's tokens.
	Executor  services.Doer
	Tokens    TokenStore
	Refresher Refresher
	Refresh   CoordinatorConfig
	Routes    Routes
	Navigator Navigator
	Notifier  Notifier
	Logger    *log.Logger
}

// Pipeline is the entry point for every backend call.
type Pipeline struct {
	coordinator *Coordinator
	interceptor *Interceptor
}

// New composes the pipeline layers.
func New(opts Options) *Pipeline {
	coordinator := NewCoordinator(opts.Executor, opts.Tokens, opts.Refresher, opts.Refresh, opts.Logger)
	interceptor := NewInterceptor(coordinator, opts.Routes, opts.Navigator, opts.Notifier, opts.Logger)
	return &Pipeline{coordinator: coordinator, interceptor: interceptor}
}

// Do sends req through every layer.
func (p *Pipeline) Do(ctx context.Context, req services.Request) (*services.APIResponse, error) {
	return p.interceptor.Do(ctx, req)
}

// Observe registers an observer of successful completions.
func (p *Pipeline) Observe(o Observer) {
	p.interceptor.Observe(o)
}

// Coordinator exposes the refresh layer.
func (p *Pipeline) Coordinator() *Coordinator {
	return p.coordinator
}
