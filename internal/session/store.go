package session

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/repertoire/internal/repositories"
	"github.com/desertthunder/repertoire/internal/shared"
	"golang.org/x/oauth2"
)

// TokenKey is the settings key the bearer token is persisted under.
const TokenKey = "session.token"

// Settings is durable key/value storage for the token.
type Settings interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Recorder keeps an audit trail of session changes.
type Recorder interface {
	Record(ctx context.Context, kind repositories.SessionEventKind, userID string) (*repositories.SessionEvent, error)
}

// ChangeFunc observes a session transition.
type ChangeFunc func(prev, next Session)

// Store is the single owner of the [Session].
//
// Mutations are applied atomically as one [Event]. Listeners run after the lock is released,
// in registration order, and only when the session actually changed.
// Store implements [oauth2.TokenSource] for the request executor.
type Store struct {
	mu        sync.RWMutex
	writeMu   sync.Mutex
	state     Session
	settings  Settings
	recorder  Recorder
	onSignIn  []func()
	listeners []ChangeFunc
	logger    *log.Logger
}

// NewStore creates an empty, signed-out store. settings and recorder may be nil.
func NewStore(settings Settings, recorder Recorder, logger *log.Logger) *Store {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &Store{
		settings: settings,
		recorder: recorder,
		logger:   shared.WithLogger(logger, "component", "session"),
	}
}

// Open creates a store and restores the persisted token.
func Open(ctx context.Context, settings Settings, recorder Recorder, logger *log.Logger) (*Store, error) {
	s := NewStore(settings, recorder, logger)
	if err := s.Restore(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Restore loads the persisted token without notifying listeners or resetting history gating.
func (s *Store) Restore(ctx context.Context) error {
	if s.settings == nil {
		return nil
	}

	token, ok, err := s.settings.Get(ctx, TokenKey)
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}
	if !ok {
		return nil
	}

	s.mu.Lock()
	s.state.Token = token
	s.mu.Unlock()

	s.logger.Debug("session restored", "user", UserIDFromToken(token))
	return nil
}

// OnSignIn registers fn to run on every sign-in, before change listeners.
func (s *Store) OnSignIn(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSignIn = append(s.onSignIn, fn)
}

// OnChange registers a listener for session transitions.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Token implements [oauth2.TokenSource].
func (s *Store) Token() (*oauth2.Token, error) {
	token := s.Snapshot().Token
	if token == "" {
		return nil, shared.ErrNotAuthenticated
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}

// UserID returns the user id carried by the current token.
func (s *Store) UserID() string {
	return s.Snapshot().UserID()
}

// CanGoBack reports whether navigating back from position is allowed.
func (s *Store) CanGoBack(position int) bool {
	return s.Snapshot().CanGoBack(position)
}

// CanGoForward reports whether forward navigation is allowed.
func (s *Store) CanGoForward() bool {
	return s.Snapshot().CanGoForward()
}

// SignIn stores token, resets cached state and starts history gating at historyIndex.
func (s *Store) SignIn(ctx context.Context, token string, historyIndex int) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", shared.ErrInvalidInput)
	}
	return s.Dispatch(ctx, SignedIn{Token: token, HistoryIndex: historyIndex})
}

// SetToken replaces the token after a refresh.
func (s *Store) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", shared.ErrInvalidInput)
	}
	return s.Dispatch(ctx, TokenRefreshed{Token: token})
}

// SignOut clears the token. History gating is kept.
func (s *Store) SignOut(ctx context.Context) error {
	return s.Dispatch(ctx, SignedOut{})
}

// Navigated records a history navigation.
func (s *Store) Navigated() {
	// Navigation never touches the token, so there is nothing to persist.
	_ = s.Dispatch(context.Background(), Navigated{})
}

// Dispatch applies e, persists the token and notifies listeners.
//
// The in-memory session is updated even when persistence fails; the error is returned.
func (s *Store) Dispatch(ctx context.Context, e Event) error {
	s.writeMu.Lock()
	s.mu.Lock()
	prev := s.state
	next := Apply(prev, e)
	s.state = next
	hooks := append([]func(){}, s.onSignIn...)
	listeners := append([]ChangeFunc{}, s.listeners...)
	s.mu.Unlock()

	err := s.persist(ctx, e, prev, next)
	s.writeMu.Unlock()

	if _, ok := e.(SignedIn); ok {
		for _, fn := range hooks {
			fn()
		}
	}

	if prev != next {
		for _, fn := range listeners {
			fn(prev, next)
		}
	}
	return err
}

func (s *Store) persist(ctx context.Context, e Event, prev, next Session) error {
	var kind repositories.SessionEventKind
	var err error

	switch e.(type) {
	case SignedIn:
		kind = repositories.SessionSignedIn
		err = s.saveToken(ctx, next.Token)
	case TokenRefreshed:
		kind = repositories.SessionRefreshed
		err = s.saveToken(ctx, next.Token)
	case SignedOut:
		if !prev.SignedIn() {
			return nil
		}
		kind = repositories.SessionSignedOut
		if s.settings != nil {
			if derr := s.settings.Delete(ctx, TokenKey); derr != nil {
				err = fmt.Errorf("failed to clear session: %w", derr)
			}
		}
	default:
		return nil
	}

	userID := next.UserID()
	if kind == repositories.SessionSignedOut {
		userID = prev.UserID()
	}
	s.logger.Info("session changed", "event", string(kind), "user", userID)

	if s.recorder != nil {
		if _, rerr := s.recorder.Record(ctx, kind, userID); rerr != nil {
			s.logger.Warn("failed to record session event", "event", string(kind), "error", rerr)
		}
	}
	return err
}

func (s *Store) saveToken(ctx context.Context, token string) error {
	if s.settings == nil {
		return nil
	}
	if err := s.settings.Set(ctx, TokenKey, token); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}
