package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/repertoire/internal/metrics"
	"github.com/desertthunder/repertoire/internal/services"
	"github.com/desertthunder/repertoire/internal/shared"
)

// GenericFailureMessage is shown when a failure carries no server message.
const GenericFailureMessage = "Something went wrong. Please try again."

// Navigator moves the client to a route.
type Navigator interface {
	Navigate(route string)
}

// Notifier shows a transient, non-blocking message.
type Notifier interface {
	Notify(message string)
}

// Target is a logical navigation destination.
type Target int

const (
	TargetNone Target = iota
	TargetUnauthorized
	TargetNotFound
)

// EffectKind is what the interceptor does for a finished request.
type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectNavigate
	EffectNotify
	EffectSuccess
)

func (k EffectKind) String() string {
	switch k {
	case EffectNavigate:
		return "navigate"
	case EffectNotify:
		return "notify"
	case EffectSuccess:
		return "success"
	default:
		return "none"
	}
}

// Effect is the outcome of [Classify].
type Effect struct {
	Kind    EffectKind
	Target  Target
	Message string
}

// Classify maps a final status and server message to a side effect.
//
// status is 0 when no response was received. 401 is left to the coordinator.
func Classify(status int, message string) Effect {
	switch {
	case status >= 200 && status < 300:
		return Effect{Kind: EffectSuccess}
	case status == http.StatusUnauthorized:
		return Effect{Kind: EffectNone}
	case status == http.StatusForbidden:
		return Effect{Kind: EffectNavigate, Target: TargetUnauthorized}
	case status == http.StatusNotFound:
		return Effect{Kind: EffectNavigate, Target: TargetNotFound}
	}

	if message == "" {
		message = GenericFailureMessage
	}
	return Effect{Kind: EffectNotify, Message: message}
}

// Routes maps navigation targets to client routes.
type Routes struct {
	Unauthorized string
	NotFound     string
}

// RoutesFromConfig reads the [routes] config section.
func RoutesFromConfig(cfg shared.RoutesConfig) Routes {
	return Routes{Unauthorized: cfg.Unauthorized, NotFound: cfg.NotFound}
}

func (r Routes) route(t Target) string {
	switch t {
	case TargetUnauthorized:
		return r.Unauthorized
	case TargetNotFound:
		return r.NotFound
	default:
		return ""
	}
}

// Interceptor turns terminal failures into navigation or notifications and publishes
// successful completions to observers. The result is always returned unchanged.
type Interceptor struct {
	next      services.Doer
	routes    Routes
	navigator Navigator
	notifier  Notifier
	observers *observers
	logger    *log.Logger
}

// NewInterceptor wraps next. navigator and notifier may be nil.
func NewInterceptor(next services.Doer, routes Routes, navigator Navigator, notifier Notifier, logger *log.Logger) *Interceptor {
	if next == nil {
		panic("pipeline: interceptor requires a next layer")
	}
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &Interceptor{
		next:      next,
		routes:    routes,
		navigator: navigator,
		notifier:  notifier,
		observers: &observers{},
		logger:    shared.WithLogger(logger, "component", "interceptor"),
	}
}

// Observe registers o to receive every successful completion.
func (i *Interceptor) Observe(o Observer) {
	i.observers.add(o)
}

// Do sends req and applies the side effect of its outcome.
func (i *Interceptor) Do(ctx context.Context, req services.Request) (*services.APIResponse, error) {
	if req.ID == "" {
		req.ID = shared.GenerateID()
	}

	start := time.Now()
	resp, err := i.next.Do(ctx, req)
	status, message := outcome(resp, err)
	metrics.RecordRequest(req.Method, status, time.Since(start))

	if errors.Is(err, context.Canceled) {
		return resp, err
	}

	effect := Classify(status, message)
	if err != nil && effect.Kind == EffectSuccess {
		effect = Classify(0, message)
	}

	switch effect.Kind {
	case EffectNavigate:
		route := i.routes.route(effect.Target)
		i.logger.Debug("navigating after failure", "status", status, "route", route, "request_id", req.ID)
		metrics.RecordEffect(effect.Kind.String())
		if i.navigator != nil && route != "" {
			i.navigator.Navigate(route)
		}
	case EffectNotify:
		i.logger.Debug("notifying failure", "status", status, "request_id", req.ID)
		metrics.RecordEffect(effect.Kind.String())
		if i.notifier != nil {
			i.notifier.Notify(effect.Message)
		}
	case EffectSuccess:
		i.observers.notify(Completion{Request: req, Response: resp, At: time.Now()})
	}
	return resp, err
}

func outcome(resp *services.APIResponse, err error) (int, string) {
	var reqErr *services.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode, reqErr.ServerMessage()
	}
	if resp != nil {
		return resp.StatusCode, ""
	}
	return 0, ""
}
