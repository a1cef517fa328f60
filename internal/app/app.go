// package app wires the request pipeline and its collaborators for one process
//
// An [App] owns everything with application lifetime: the database, the session store, the
// query cache, the drawer state, the realtime connection and the pipeline itself.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/repertoire/internal/cache"
	"github.com/desertthunder/repertoire/internal/drawers"
	"github.com/desertthunder/repertoire/internal/library"
	"github.com/desertthunder/repertoire/internal/models"
	"github.com/desertthunder/repertoire/internal/pipeline"
	"github.com/desertthunder/repertoire/internal/realtime"
	"github.com/desertthunder/repertoire/internal/repositories"
	"github.com/desertthunder/repertoire/internal/services"
	"github.com/desertthunder/repertoire/internal/session"
	"github.com/desertthunder/repertoire/internal/shared"
	"github.com/desertthunder/repertoire/internal/tasks"
	"github.com/desertthunder/repertoire/internal/ui"
)

// Options configures [New].
type Options struct {
	Config *shared.Config
	Logger *log.Logger
	// Out receives navigation echoes; nil keeps navigation silent.
	Out io.Writer
	// Err receives error toasts. Defaults to [os.Stderr].
	Err        io.Writer
	HTTPClient *http.Client
	// Transport overrides the Centrifugo transport.
	Transport realtime.TransportFactory
}

// App is the composed client.
type App struct {
	Config     *shared.Config
	Logger     *log.Logger
	DB         *sql.DB
	Events     *repositories.SessionEventRepository
	Session    *session.Store
	Cache      *cache.Cache
	Drawers    *drawers.Store
	Navigator  *ui.Navigator
	Notifier   *ui.Notifier
	Auth       *services.AuthService
	Pipeline   *pipeline.Pipeline
	Library    *library.Client
	Tasks      *tasks.Engine
	Realtime   *realtime.Connection
	Subscriber *realtime.Subscriber

	routes shared.RoutesConfig
}

// New opens the database, restores the session and composes the pipeline.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = shared.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	errOut := opts.Err
	if errOut == nil {
		errOut = os.Stderr
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.API.Timeout()}
	}

	db, err := shared.OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, DB: db, routes: cfg.Routes}
	a.Events = repositories.NewSessionEventRepository(db)

	store, err := session.Open(ctx, repositories.NewSettingsRepository(db), a.Events, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.Session = store

	a.Cache = cache.New(logger)
	a.Session.OnSignIn(a.Cache.Reset)

	a.Drawers = &drawers.Store{}
	a.Navigator = ui.NewNavigator(cfg.Routes.Home, a.Session, opts.Out, logger)
	a.Notifier = ui.NewNotifier(errOut, cfg.Notifications, logger)

	base := services.NewExecutor(cfg.API.BaseURL, client, a.Session, logger)
	anon := services.NewExecutor(cfg.API.BaseURL, client, nil, logger)
	a.Auth = services.NewAuthService(anon, base, services.AuthPathsFromConfig(cfg.API), logger)

	a.Pipeline = pipeline.New(pipeline.Options{
		Executor:  base,
		Tokens:    a.Session,
		Refresher: a.Auth,
		Refresh:   pipeline.CoordinatorConfig{RefreshPath: cfg.API.RefreshPath, Exempt: cfg.API.RefreshExempt},
		Routes:    pipeline.RoutesFromConfig(cfg.Routes),
		Navigator: a.Navigator,
		Notifier:  a.Notifier,
		Logger:    logger,
	})

	a.Library = library.New(a.Pipeline, a.Cache, cfg.API)
	a.Pipeline.Observe(drawers.NewSynchronizer(a.Drawers, a.Library.Paths(), logger))
	a.Pipeline.Observe(pipeline.InvalidateOnSuccess(a.Cache, logger))
	a.Tasks = tasks.NewEngine(a.Library, logger)

	factory := opts.Transport
	if factory == nil {
		factory = func() (realtime.Transport, error) {
			if cfg.Realtime.Endpoint == "" {
				return nil, fmt.Errorf("%w: realtime.endpoint is not set", shared.ErrInvalidConfig)
			}
			return realtime.NewCentrifugeTransport(cfg.Realtime.Endpoint, a.Auth.RealtimeToken, logger), nil
		}
	}
	a.Realtime = realtime.NewConnection(factory, logger)
	a.Subscriber = realtime.NewSubscriber(a.Realtime, a.Cache, cfg.Realtime.ChannelPrefix, logger)

	return a, nil
}

// StartRealtime keeps the subscriber on the signed-in user's channel from now on.
//
// Connection failures are logged and never returned: search results simply stay cached until
// the next read after a local invalidation.
func (a *App) StartRealtime() {
	a.Session.OnChange(func(prev, next session.Session) {
		if prev.UserID() == next.UserID() {
			return
		}
		a.syncRealtime(next.UserID())
	})
	a.syncRealtime(a.Session.UserID())
}

func (a *App) syncRealtime(userID string) {
	if err := a.Subscriber.Sync(userID); err != nil {
		a.Logger.Warn("realtime subscription unavailable", "user", userID, "error", err)
	}
}

// SignIn exchanges credentials for a token through the pipeline, moves to the home route and
// starts history gating there.
func (a *App) SignIn(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password", shared.ErrMissingArgument)
	}

	resp, err := a.Pipeline.Do(ctx, a.Auth.SignInRequest(email, password))
	if err != nil {
		if services.StatusOf(err) == http.StatusUnauthorized {
			return fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
		}
		return err
	}
	token, err := services.TokenFromResponse(resp)
	if err != nil {
		return err
	}

	a.Navigator.Navigate(a.routes.Home)
	return a.Session.SignIn(ctx, token, a.Navigator.Position())
}

// SignOut clears the session and moves to the sign-in route.
func (a *App) SignOut(ctx context.Context) error {
	if err := a.Session.SignOut(ctx); err != nil {
		return err
	}
	a.Navigator.Navigate(a.routes.SignIn)
	return nil
}

// Status is the snapshot served at /status.
type Status struct {
	SignedIn     bool          `json:"signed_in"`
	UserID       string        `json:"user_id,omitempty"`
	Route        string        `json:"route"`
	Channel      string        `json:"channel,omitempty"`
	RealtimeRefs int           `json:"realtime_refs"`
	Cache        cache.Stats   `json:"cache"`
	Drawers      drawers.State `json:"drawers"`
}

// Status returns the current snapshot.
func (a *App) Status() Status {
	s := a.Session.Snapshot()
	return Status{
		SignedIn:     s.SignedIn(),
		UserID:       s.UserID(),
		Route:        a.Navigator.Current(),
		Channel:      a.Subscriber.Channel(),
		RealtimeRefs: a.Realtime.Refs(),
		Cache:        a.Cache.Stats(),
		Drawers:      a.Drawers.Snapshot(),
	}
}

// OpenDrawer shows ref in its drawer after confirming it exists.
func (a *App) OpenDrawer(ctx context.Context, ref models.EntityRef) error {
	if _, err := a.Library.Get(ctx, ref); err != nil {
		return err
	}
	a.Drawers.Open(ref.Kind, ref.ID)
	return nil
}

// RecentEvents returns the newest session audit events.
func (a *App) RecentEvents(ctx context.Context, limit int) ([]repositories.SessionEvent, error) {
	return a.Events.Recent(ctx, limit)
}

// Close releases the realtime connection and the database.
func (a *App) Close() error {
	var errs []error
	if err := a.Subscriber.Deactivate(); err != nil {
		errs = append(errs, err)
	}
	a.Realtime.Close()
	if err := a.DB.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
