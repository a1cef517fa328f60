package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/desertthunder/repertoire/internal/cache"
	"github.com/desertthunder/repertoire/internal/models"
	"github.com/desertthunder/repertoire/internal/realtime"
	"github.com/desertthunder/repertoire/internal/repositories"
	"github.com/desertthunder/repertoire/internal/services"
	"github.com/desertthunder/repertoire/internal/shared"
	"github.com/golang-jwt/jwt/v5"
)

type stubSubscription struct {
	channel    string
	subscribed bool
}

func (s *stubSubscription) Channel() string             { return s.channel }
func (s *stubSubscription) OnPublication(func([]byte))  {}
func (s *stubSubscription) Subscribe() error            { s.subscribed = true; return nil }
func (s *stubSubscription) Unsubscribe() error          { s.subscribed = false; return nil }

type stubTransport struct {
	mu        sync.Mutex
	connected bool
	subs      map[string]*stubSubscription
}

func (t *stubTransport) Connect() error    { t.mu.Lock(); t.connected = true; t.mu.Unlock(); return nil }
func (t *stubTransport) Disconnect() error { t.mu.Lock(); t.connected = false; t.mu.Unlock(); return nil }
func (t *stubTransport) Close()            {}

func (t *stubTransport) Subscription(channel string) (realtime.Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subs == nil {
		t.subs = make(map[string]*stubSubscription)
	}
	if s, ok := t.subs[channel]; ok {
		return s, nil
	}
	s := &stubSubscription{channel: channel}
	t.subs[channel] = s
	return s, nil
}

func userToken(t *testing.T, sub string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: sub}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func backend(t *testing.T, token string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/auth/sign-in" {
			var creds services.Credentials
			json.NewDecoder(r.Body).Decode(&creds)
			if creds.Password != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"invalid credentials"}`))
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"token": token})
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.URL.Path == "/songs/missing":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"song not found"}`))
		case r.URL.Path == "/songs/boom":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"database offline"}`))
		default:
			w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newApp(t *testing.T, baseURL, dbPath string, transport *stubTransport, errOut *bytes.Buffer) *App {
	t.Helper()
	cfg := shared.DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.Database.Path = dbPath

	a, err := New(context.Background(), Options{
		Config:    cfg,
		Logger:    shared.NewLogger(&bytes.Buffer{}),
		Err:       errOut,
		Transport: func() (realtime.Transport, error) { return transport, nil },
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return a
}

func TestApp(t *testing.T) {
	ctx := context.Background()
	token := userToken(t, "u1")
	srv := backend(t, token)
	dbPath := filepath.Join(t.TempDir(), "repertoire.db")

	transport := &stubTransport{}
	var toasts bytes.Buffer
	a := newApp(t, srv.URL, dbPath, transport, &toasts)
	a.StartRealtime()

	t.Run("Bad Credentials", func(t *testing.T) {
		if err := a.SignIn(ctx, "me@example.com", "wrong"); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
		if a.Session.Snapshot().SignedIn() {
			t.Error("expected to stay signed out")
		}
	})

	t.Run("Sign In", func(t *testing.T) {
		a.Cache.Set("GET /search?query=old", []string{cache.TagSearch}, 1)

		if err := a.SignIn(ctx, "me@example.com", "secret"); err != nil {
			t.Fatalf("failed to sign in: %v", err)
		}
		if a.Session.UserID() != "u1" {
			t.Errorf("expected user u1, got %q", a.Session.UserID())
		}
		if a.Cache.Stats().Entries != 0 {
			t.Error("expected sign-in to flush the cache")
		}
		if a.Subscriber.Channel() != "search:u1" || !transport.connected {
			t.Errorf("expected realtime subscription, channel=%q", a.Subscriber.Channel())
		}
		if a.Session.CanGoForward() {
			t.Error("expected forward navigation blocked right after sign-in")
		}
	})

	t.Run("Delete Closes Drawer And Invalidates", func(t *testing.T) {
		ref := models.EntityRef{Kind: models.Song, ID: "7"}
		if err := a.OpenDrawer(ctx, ref); err != nil {
			t.Fatalf("failed to open drawer: %v", err)
		}
		if _, err := a.Library.Search(ctx, "blue", nil); err != nil {
			t.Fatalf("search failed: %v", err)
		}

		if _, err := a.Library.Delete(ctx, ref, models.DeleteFlags{}); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if !a.Drawers.Snapshot().Song.Empty() {
			t.Error("expected the song drawer cleared")
		}
		if e, _ := a.Cache.Get("GET /search?query=blue"); !e.Stale {
			t.Error("expected search results stale after delete")
		}
	})

	t.Run("Failure Effects", func(t *testing.T) {
		if _, err := a.Library.Get(ctx, models.EntityRef{Kind: models.Song, ID: "missing"}); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if a.Navigator.Current() != a.Config.Routes.NotFound {
			t.Errorf("expected navigation to %s, got %s", a.Config.Routes.NotFound, a.Navigator.Current())
		}

		if _, err := a.Library.Get(ctx, models.EntityRef{Kind: models.Song, ID: "boom"}); err == nil {
			t.Error("expected server error")
		}
		if !bytes.Contains(toasts.Bytes(), []byte("database offline")) {
			t.Errorf("expected a toast with the server message, got %q", toasts.String())
		}
	})

	t.Run("Status", func(t *testing.T) {
		st := a.Status()
		if !st.SignedIn || st.UserID != "u1" || st.RealtimeRefs != 1 {
			t.Errorf("unexpected status %+v", st)
		}
	})

	t.Run("Persistence", func(t *testing.T) {
		if err := a.Close(); err != nil {
			t.Fatalf("failed to close: %v", err)
		}

		b := newApp(t, srv.URL, dbPath, &stubTransport{}, &bytes.Buffer{})
		defer b.Close()

		if got := b.Session.Snapshot().Token; got != token {
			t.Errorf("expected the token restored, got %q", got)
		}

		events, err := b.RecentEvents(ctx, 10)
		if err != nil || len(events) == 0 || events[0].Kind != repositories.SessionSignedIn {
			t.Errorf("expected a signed_in audit event, got %+v %v", events, err)
		}

		if err := b.SignOut(ctx); err != nil {
			t.Fatalf("failed to sign out: %v", err)
		}
		if b.Navigator.Current() != b.Config.Routes.SignIn {
			t.Errorf("expected navigation to sign-in, got %s", b.Navigator.Current())
		}
		if _, err := b.Library.Search(ctx, "x", nil); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected fail-fast after sign-out, got %v", err)
		}
	})
}
