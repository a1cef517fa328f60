package realtime

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/repertoire/internal/cache"
	"github.com/desertthunder/repertoire/internal/shared"
)

type fakeSubscription struct {
	channel      string
	handlers     []func([]byte)
	subscribes   int
	unsubscribes int
	subscribeErr error
}

func (s *fakeSubscription) Channel() string                   { return s.channel }
func (s *fakeSubscription) OnPublication(fn func(data []byte)) { s.handlers = append(s.handlers, fn) }
func (s *fakeSubscription) Subscribe() error {
	if s.subscribeErr != nil {
		return s.subscribeErr
	}
	s.subscribes++
	return nil
}

func (s *fakeSubscription) Unsubscribe() error                { s.unsubscribes++; return nil }

func (s *fakeSubscription) publish(data string) {
	for _, fn := range s.handlers {
		fn([]byte(data))
	}
}

// fakeTransport records lifecycle calls and creates subscriptions on demand.
type fakeTransport struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	closed      bool
	created     int
	subs          map[string]*fakeSubscription
	connectErr    error
	disconnectErr error
	subscribeErr  error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[string]*fakeSubscription)}
}

func (t *fakeTransport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connectErr != nil {
		return t.connectErr
	}
	t.connects++
	return nil
}

func (t *fakeTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnects++
	return t.disconnectErr
}

func (t *fakeTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

func (t *fakeTransport) Subscription(channel string) (Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sub, ok := t.subs[channel]; ok {
		return sub, nil
	}
	t.created++
	sub := &fakeSubscription{channel: channel, subscribeErr: t.subscribeErr}
	t.subs[channel] = sub
	return sub, nil
}

func factoryFor(t *fakeTransport, builds *int) TransportFactory {
	return func() (Transport, error) {
		*builds++
		return t, nil
	}
}

func TestChannelName(t *testing.T) {
	if got := ChannelName("", "42"); got != "search:42" {
		t.Errorf("expected search:42, got %q", got)
	}
	if got := ChannelName("library", "42"); got != "library:42" {
		t.Errorf("expected library:42, got %q", got)
	}
}

func TestActionOf(t *testing.T) {
	tc := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{name: "Flat", data: `{"action":"SEARCH_CACHE_INVALIDATION"}`, want: SearchInvalidation},
		{name: "Nested Data", data: `{"data":{"action":"SEARCH_CACHE_INVALIDATION"}}`, want: SearchInvalidation},
		{name: "Other Fields", data: `{"action":"SONG_UPDATED","id":"7"}`, want: "SONG_UPDATED"},
		{name: "No Action", data: `{}`, want: ""},
		{name: "Malformed", data: `not json`, wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ActionOf([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestConnection(t *testing.T) {
	t.Run("Lazy Single Build And Refcounted Connect", func(t *testing.T) {
		ft := newFakeTransport()
		builds := 0
		conn := NewConnection(factoryFor(ft, &builds), nil)

		if builds != 0 {
			t.Fatal("expected no transport before first acquire")
		}

		a, err := conn.Acquire()
		if err != nil {
			t.Fatalf("failed to acquire: %v", err)
		}
		b, _ := conn.Acquire()
		if ft.connects != 1 || conn.Refs() != 2 {
			t.Errorf("expected 1 connect and 2 refs, got %d and %d", ft.connects, conn.Refs())
		}

		a.Release()
		a.Release()
		if ft.disconnects != 0 {
			t.Error("expected connection kept while a reference remains")
		}

		b.Release()
		if ft.disconnects != 1 || conn.Refs() != 0 {
			t.Errorf("expected disconnect at zero refs, got %d (refs=%d)", ft.disconnects, conn.Refs())
		}

		c, _ := conn.Acquire()
		defer c.Release()
		if builds != 1 {
			t.Errorf("expected the transport to be reused, built %d times", builds)
		}
		if ft.connects != 2 {
			t.Errorf("expected reconnect on reuse, got %d connects", ft.connects)
		}
	})

	t.Run("Factory Failure", func(t *testing.T) {
		conn := NewConnection(func() (Transport, error) { return nil, errors.New("bad endpoint") }, nil)
		if _, err := conn.Acquire(); !errors.Is(err, shared.ErrRealtimeUnavailable) {
			t.Errorf("expected ErrRealtimeUnavailable, got %v", err)
		}
	})

	t.Run("Connect Failure Holds No Reference", func(t *testing.T) {
		ft := newFakeTransport()
		ft.connectErr = errors.New("refused")
		builds := 0
		conn := NewConnection(factoryFor(ft, &builds), nil)

		if _, err := conn.Acquire(); err == nil {
			t.Fatal("expected connect error")
		}
		if conn.Refs() != 0 {
			t.Errorf("expected 0 refs, got %d", conn.Refs())
		}
	})

	t.Run("Close", func(t *testing.T) {
		ft := newFakeTransport()
		builds := 0
		conn := NewConnection(factoryFor(ft, &builds), nil)
		ref, _ := conn.Acquire()

		conn.Close()
		if !ft.closed {
			t.Error("expected transport closed")
		}
		if err := ref.Release(); err != nil {
			t.Errorf("expected inert release after close, got %v", err)
		}
		if _, err := conn.Acquire(); !errors.Is(err, shared.ErrRealtimeUnavailable) {
			t.Errorf("expected ErrRealtimeUnavailable after close, got %v", err)
		}
	})
}

func TestSubscriber(t *testing.T) {
	setup := func() (*Subscriber, *fakeTransport, *cache.Cache, *Connection) {
		ft := newFakeTransport()
		builds := 0
		conn := NewConnection(factoryFor(ft, &builds), nil)
		c := cache.New(nil)
		return NewSubscriber(conn, c, "search", nil), ft, c, conn
	}

	t.Run("Activating Twice Yields One Subscription", func(t *testing.T) {
		s, ft, _, conn := setup()

		if err := s.Activate("42"); err != nil {
			t.Fatalf("failed to activate: %v", err)
		}
		if err := s.Activate("42"); err != nil {
			t.Fatalf("failed to re-activate: %v", err)
		}

		if ft.created != 1 || s.Registered() != 1 {
			t.Errorf("expected 1 subscription, transport created %d, registry has %d", ft.created, s.Registered())
		}
		sub := ft.subs["search:42"]
		if sub == nil || sub.subscribes != 1 || len(sub.handlers) != 1 {
			t.Errorf("expected one subscribe and one handler, got %+v", sub)
		}
		if conn.Refs() != 1 || s.Channel() != "search:42" {
			t.Errorf("unexpected state refs=%d channel=%q", conn.Refs(), s.Channel())
		}
	})

	t.Run("Reactivation Reuses Subscription And Handler", func(t *testing.T) {
		s, ft, _, conn := setup()

		s.Activate("42")
		if err := s.Deactivate(); err != nil {
			t.Fatalf("failed to deactivate: %v", err)
		}
		if conn.Refs() != 0 || ft.disconnects != 1 {
			t.Errorf("expected disconnect after deactivation, refs=%d disconnects=%d", conn.Refs(), ft.disconnects)
		}

		s.Activate("42")
		sub := ft.subs["search:42"]
		if ft.created != 1 || len(sub.handlers) != 1 {
			t.Errorf("expected reuse, created=%d handlers=%d", ft.created, len(sub.handlers))
		}
		if sub.subscribes != 2 || sub.unsubscribes != 1 {
			t.Errorf("expected 2 subscribes and 1 unsubscribe, got %d/%d", sub.subscribes, sub.unsubscribes)
		}
	})

	t.Run("Switching Users", func(t *testing.T) {
		s, ft, _, conn := setup()

		s.Activate("1")
		s.Activate("2")

		if ft.subs["search:1"].unsubscribes != 1 {
			t.Error("expected the previous channel to be unsubscribed")
		}
		if s.Channel() != "search:2" || conn.Refs() != 1 {
			t.Errorf("unexpected state channel=%q refs=%d", s.Channel(), conn.Refs())
		}
	})

	t.Run("Sync", func(t *testing.T) {
		s, _, _, conn := setup()

		s.Sync("42")
		if conn.Refs() != 1 {
			t.Error("expected activation for a known user")
		}
		s.Sync("")
		if conn.Refs() != 0 || s.Channel() != "" {
			t.Error("expected deactivation for an unknown user")
		}
		if err := s.Activate(""); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Invalidation Marks Search Entries Once", func(t *testing.T) {
		s, ft, c, _ := setup()
		c.Set("search?q=a", []string{cache.TagSearch}, 1)
		c.Set("search?q=b", []string{cache.TagSearch}, 2)
		c.Set("songs", []string{cache.TagSong}, 3)

		s.Activate("42")
		ft.subs["search:42"].publish(`{"action":"SEARCH_CACHE_INVALIDATION"}`)

		for _, e := range c.Entries() {
			if e.HasTag(cache.TagSearch) {
				if !e.Stale || e.Invalidations != 1 {
					t.Errorf("expected %s stale once, got %+v", e.Key, e)
				}
			} else if e.Stale {
				t.Errorf("expected %s untouched", e.Key)
			}
		}
	})

	t.Run("Subscribe Failure Releases And Logs", func(t *testing.T) {
		ft := newFakeTransport()
		ft.subscribeErr = errors.New("permission denied")
		ft.disconnectErr = errors.New("socket closed")
		builds := 0
		conn := NewConnection(factoryFor(ft, &builds), nil)

		var logs bytes.Buffer
		logger := shared.NewLogger(&logs)
		shared.ApplyLogLevel(logger, "debug")
		s := NewSubscriber(conn, cache.New(nil), "search", logger)

		if err := s.Activate("42"); !errors.Is(err, shared.ErrRealtimeUnavailable) {
			t.Fatalf("expected ErrRealtimeUnavailable, got %v", err)
		}
		if conn.Refs() != 0 || s.Channel() != "" {
			t.Errorf("expected no reference held, refs=%d channel=%q", conn.Refs(), s.Channel())
		}
		if !strings.Contains(logs.String(), "release failed") || !strings.Contains(logs.String(), "socket closed") {
			t.Errorf("expected the release error logged, got %q", logs.String())
		}
	})

	t.Run("Other Actions Ignored", func(t *testing.T) {
		s, ft, c, _ := setup()
		c.Set("search?q=a", []string{cache.TagSearch}, 1)

		s.Activate("42")
		ft.subs["search:42"].publish(`{"action":"SONG_UPDATED"}`)
		ft.subs["search:42"].publish(`garbage`)

		if c.Stats().Stale != 0 {
			t.Error("expected no invalidation")
		}
	})
}
