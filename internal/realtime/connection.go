// package realtime keeps cached search results fresh from server-pushed events
//
// One [Connection] owns the transport for the lifetime of the application. It builds the
// transport on first use, connects when the first reference is acquired and disconnects when
// the last one is released; the same transport is reused across cycles. The [Subscriber]
// holds a reference while a user is signed in and subscribes to that user's channel.
package realtime

import (
	"errors"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/repertoire/internal/metrics"
	"github.com/desertthunder/repertoire/internal/shared"
)

// Subscription is one channel subscription of a [Transport].
type Subscription interface {
	Channel() string
	// OnPublication registers a handler for the payload of each publication.
	OnPublication(func(data []byte))
	Subscribe() error
	Unsubscribe() error
}

// Transport is a pub/sub client connection. Reconnects and backoff are its own concern.
type Transport interface {
	Connect() error
	Disconnect() error
	// Subscription returns the existing subscription for channel or creates it.
	Subscription(channel string) (Subscription, error)
	Close()
}

// TransportFactory builds the transport. A [Connection] calls it at most once successfully.
type TransportFactory func() (Transport, error)

// Connection is a reference-counted handle to a lazily built [Transport].
type Connection struct {
	mu        sync.Mutex
	factory   TransportFactory
	transport Transport
	refs      int
	closed    bool
	logger    *log.Logger
}

// NewConnection creates a connection handle. Nothing is built until [Connection.Acquire].
func NewConnection(factory TransportFactory, logger *log.Logger) *Connection {
	if factory == nil {
		panic("realtime: connection requires a transport factory")
	}
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &Connection{factory: factory, logger: shared.WithLogger(logger, "component", "realtime")}
}

// Ref is one holder's share of a [Connection]. Release it exactly once; extra calls are no-ops.
type Ref struct {
	conn *Connection
	once sync.Once
}

// Transport returns the shared transport.
func (r *Ref) Transport() Transport {
	r.conn.mu.Lock()
	defer r.conn.mu.Unlock()
	return r.conn.transport
}

// Release drops the reference, disconnecting when it was the last.
func (r *Ref) Release() error {
	var err error
	r.once.Do(func() { err = r.conn.release() })
	return err
}

// Acquire returns a reference, building the transport on first use and connecting when no
// other reference is held.
func (c *Connection) Acquire() (*Ref, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, shared.ErrRealtimeUnavailable
	}

	if c.transport == nil {
		t, err := c.factory()
		if err != nil {
			return nil, errors.Join(shared.ErrRealtimeUnavailable, err)
		}
		c.transport = t
		c.logger.Debug("transport created")
	}

	if c.refs == 0 {
		if err := c.transport.Connect(); err != nil {
			return nil, errors.Join(shared.ErrRealtimeUnavailable, err)
		}
		c.logger.Info("connected")
	}

	c.refs++
	metrics.SetRealtimeRefs(c.refs)
	return &Ref{conn: c}, nil
}

func (c *Connection) release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refs == 0 {
		return nil
	}
	c.refs--
	metrics.SetRealtimeRefs(c.refs)

	if c.refs > 0 || c.transport == nil {
		return nil
	}
	c.logger.Info("disconnected")
	return c.transport.Disconnect()
}

// Refs returns the number of held references.
func (c *Connection) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}

// Close tears the transport down for good. Outstanding references become inert.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.refs = 0
	metrics.SetRealtimeRefs(0)
	if c.transport != nil {
		c.transport.Close()
	}
}
