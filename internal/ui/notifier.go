package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/repertoire/internal/metrics"
	"github.com/desertthunder/repertoire/internal/shared"
	"golang.org/x/time/rate"
)

// Notifier prints transient error toasts.
//
// Toasts beyond the configured rate are dropped so a burst of failing requests does not flood
// the terminal.
type Notifier struct {
	mu      sync.Mutex
	w       io.Writer
	limiter *rate.Limiter
	logger  *log.Logger
}

// NewNotifier creates a notifier writing to w. A zero PerSecond disables the limit.
func NewNotifier(w io.Writer, cfg shared.NotificationConfig, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}

	limit := rate.Inf
	if cfg.PerSecond > 0 {
		limit = rate.Limit(cfg.PerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Notifier{
		w:       w,
		limiter: rate.NewLimiter(limit, burst),
		logger:  shared.WithLogger(logger, "component", "notifier"),
	}
}

// Notify shows message unless the rate limit is exhausted.
func (n *Notifier) Notify(message string) {
	if !n.limiter.Allow() {
		n.logger.Debug("notification dropped", "message", message)
		metrics.RecordNotificationDropped()
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.w, styles.Toast(message))
}
