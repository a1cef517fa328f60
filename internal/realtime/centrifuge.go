package realtime

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/centrifugal/centrifuge-go"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/repertoire/internal/shared"
)

// TokenFunc fetches a connection token for the realtime server.
type TokenFunc func(ctx context.Context) (string, error)

const tokenTimeout = 10 * time.Second

// CentrifugeTransport is a [Transport] backed by a Centrifugo JSON client.
type CentrifugeTransport struct {
	client *centrifuge.Client
	logger *log.Logger
}

// connectionToken fetches a connection token. Only a signed-out session is reported as
// unauthorized, which stops the client; an expired bearer is an ordinary error, so the
// client retries with backoff and picks up the token once the session refreshes it.
func connectionToken(ctx context.Context, tokens TokenFunc) (string, error) {
	token, err := tokens(ctx)
	if errors.Is(err, shared.ErrNotAuthenticated) {
		return "", centrifuge.ErrUnauthorized
	}
	return token, err
}

// NewCentrifugeTransport creates a client for endpoint. tokens is called whenever the client
// needs a connection token; a signed-out session stops reconnect attempts.
func NewCentrifugeTransport(endpoint string, tokens TokenFunc, logger *log.Logger) *CentrifugeTransport {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	logger = shared.WithLogger(logger, "component", "centrifuge")

	client := centrifuge.NewJsonClient(endpoint, centrifuge.Config{
		GetToken: func(centrifuge.ConnectionTokenEvent) (string, error) {
			ctx, cancel := context.WithTimeout(context.Background(), tokenTimeout)
			defer cancel()
			return connectionToken(ctx, tokens)
		},
	})

	client.OnConnecting(func(e centrifuge.ConnectingEvent) {
		logger.Debug("connecting", "code", e.Code, "reason", e.Reason)
	})
	client.OnConnected(func(e centrifuge.ConnectedEvent) {
		logger.Debug("connected", "client_id", e.ClientID)
	})
	client.OnDisconnected(func(e centrifuge.DisconnectedEvent) {
		logger.Debug("disconnected", "code", e.Code, "reason", e.Reason)
	})
	client.OnError(func(e centrifuge.ErrorEvent) {
		logger.Debug("transport error", "error", e.Error)
	})

	return &CentrifugeTransport{client: client, logger: logger}
}

func (t *CentrifugeTransport) Connect() error    { return t.client.Connect() }
func (t *CentrifugeTransport) Disconnect() error { return t.client.Disconnect() }
func (t *CentrifugeTransport) Close()            { t.client.Close() }

// Subscription returns the client's subscription for channel, creating it when missing.
func (t *CentrifugeTransport) Subscription(channel string) (Subscription, error) {
	if sub, ok := t.client.GetSubscription(channel); ok {
		return &centrifugeSubscription{sub: sub}, nil
	}

	sub, err := t.client.NewSubscription(channel)
	if errors.Is(err, centrifuge.ErrDuplicateSubscription) {
		if existing, ok := t.client.GetSubscription(channel); ok {
			return &centrifugeSubscription{sub: existing}, nil
		}
	}
	if err != nil {
		return nil, err
	}

	sub.OnError(func(e centrifuge.SubscriptionErrorEvent) {
		t.logger.Debug("subscription error", "channel", channel, "error", e.Error)
	})
	return &centrifugeSubscription{sub: sub}, nil
}

type centrifugeSubscription struct {
	sub *centrifuge.Subscription
}

func (s *centrifugeSubscription) Channel() string { return s.sub.Channel }

func (s *centrifugeSubscription) OnPublication(fn func(data []byte)) {
	s.sub.OnPublication(func(e centrifuge.PublicationEvent) {
		fn(e.Data)
	})
}

func (s *centrifugeSubscription) Subscribe() error   { return s.sub.Subscribe() }
func (s *centrifugeSubscription) Unsubscribe() error { return s.sub.Unsubscribe() }
