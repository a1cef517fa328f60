package realtime

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/repertoire/internal/cache"
	"github.com/desertthunder/repertoire/internal/metrics"
	"github.com/desertthunder/repertoire/internal/shared"
)

// SearchInvalidation is the action that invalidates cached search results.
const SearchInvalidation = "SEARCH_CACHE_INVALIDATION"

// SearchTag is the cache tag invalidated by [SearchInvalidation].
const SearchTag = cache.TagSearch

// DefaultChannelPrefix is the namespace of per-user search channels.
const DefaultChannelPrefix = "search"

// ChannelName returns "<prefix>:<userID>".
func ChannelName(prefix, userID string) string {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return prefix + ":" + userID
}

// Invalidator marks cached entries stale by tag.
type Invalidator interface {
	InvalidateTags(tags ...string) int
}

type registration struct {
	sub Subscription
}

type activation struct {
	userID  string
	channel string
	ref     *Ref
}

// Subscriber subscribes the signed-in user's channel and invalidates search results on demand.
//
// Subscriptions are kept in a registry keyed by channel and reused across activations; the
// publication handler is registered once per subscription.
type Subscriber struct {
	conn   *Connection
	cache  Invalidator
	prefix string

	mu       sync.Mutex
	registry map[string]*registration
	active   *activation
	logger   *log.Logger
}

// NewSubscriber creates a subscriber on conn that invalidates entries through inv.
func NewSubscriber(conn *Connection, inv Invalidator, prefix string, logger *log.Logger) *Subscriber {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &Subscriber{
		conn:     conn,
		cache:    inv,
		prefix:   prefix,
		registry: make(map[string]*registration),
		logger:   shared.WithLogger(logger, "component", "subscriber"),
	}
}

// Sync activates for userID, or deactivates when it is empty.
func (s *Subscriber) Sync(userID string) error {
	if userID == "" {
		return s.Deactivate()
	}
	return s.Activate(userID)
}

// Activate subscribes to the channel of userID. Activating the active user again is a no-op;
// a different user replaces the current activation.
func (s *Subscriber) Activate(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", shared.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	channel := ChannelName(s.prefix, userID)
	if s.active != nil {
		if s.active.channel == channel {
			return nil
		}
		s.deactivateLocked()
	}

	ref, err := s.conn.Acquire()
	if err != nil {
		return err
	}

	reg, err := s.registration(ref.Transport(), channel)
	if err != nil {
		s.release(ref, channel)
		return err
	}

	if err := reg.sub.Subscribe(); err != nil {
		s.release(ref, channel)
		return fmt.Errorf("%w: subscribe %s: %w", shared.ErrRealtimeUnavailable, channel, err)
	}

	s.active = &activation{userID: userID, channel: channel, ref: ref}
	s.logger.Info("subscribed", "channel", channel)
	return nil
}

func (s *Subscriber) release(ref *Ref, channel string) {
	if err := ref.Release(); err != nil {
		s.logger.Debug("release failed", "channel", channel, "error", err)
	}
}

func (s *Subscriber) registration(t Transport, channel string) (*registration, error) {
	if reg, ok := s.registry[channel]; ok {
		return reg, nil
	}

	sub, err := t.Subscription(channel)
	if err != nil {
		return nil, fmt.Errorf("%w: channel %s: %w", shared.ErrRealtimeUnavailable, channel, err)
	}
	sub.OnPublication(s.HandlePublication)

	reg := &registration{sub: sub}
	s.registry[channel] = reg
	return reg, nil
}

// Deactivate unsubscribes and releases the connection reference. The subscription stays registered.
func (s *Subscriber) Deactivate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deactivateLocked()
}

func (s *Subscriber) deactivateLocked() error {
	if s.active == nil {
		return nil
	}
	act := s.active
	s.active = nil

	var unsubErr error
	if reg, ok := s.registry[act.channel]; ok {
		unsubErr = reg.sub.Unsubscribe()
	}
	releaseErr := act.ref.Release()
	s.logger.Info("unsubscribed", "channel", act.channel)

	if unsubErr != nil {
		s.logger.Debug("unsubscribe failed", "channel", act.channel, "error", unsubErr)
	}
	return releaseErr
}

// Channel returns the active channel, or "".
func (s *Subscriber) Channel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ""
	}
	return s.active.channel
}

// Registered returns how many channel subscriptions exist.
func (s *Subscriber) Registered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.registry)
}

// Message is the payload of a publication. A nested "data" object is also accepted.
type Message struct {
	Action string   `json:"action"`
	Data   *Message `json:"data,omitempty"`
}

// ActionOf returns the action carried by a publication payload.
func ActionOf(data []byte) (string, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", err
	}
	if msg.Action == "" && msg.Data != nil {
		return msg.Data.Action, nil
	}
	return msg.Action, nil
}

// HandlePublication reacts to one inbound payload. Unknown or malformed payloads are ignored.
func (s *Subscriber) HandlePublication(data []byte) {
	action, err := ActionOf(data)
	if err != nil {
		s.logger.Debug("ignoring malformed publication", "error", err)
		return
	}
	if action != SearchInvalidation {
		metrics.RecordRealtimeEvent("other")
		return
	}
	metrics.RecordRealtimeEvent(action)

	marked := s.cache.InvalidateTags(SearchTag)
	metrics.RecordInvalidation("realtime", marked)
	s.logger.Debug("search cache invalidated", "marked", marked)
}
