package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/repertoire/internal/shared"
)

// Gate decides whether history moves are allowed. [session.Store] implements it.
type Gate interface {
	CanGoBack(position int) bool
	CanGoForward() bool
	Navigated()
}

// Navigator is a history stack of routes.
//
// Position is the index of the current entry. Navigating truncates forward entries like a
// browser does. Every successful move is reported to the gate.
type Navigator struct {
	mu      sync.Mutex
	entries []string
	pos     int
	gate    Gate
	w       io.Writer
	logger  *log.Logger
}

// NewNavigator creates a navigator positioned at start. Moves are echoed to w when it is non-nil.
func NewNavigator(start string, gate Gate, w io.Writer, logger *log.Logger) *Navigator {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	if start == "" {
		start = "/"
	}
	return &Navigator{
		entries: []string{start},
		gate:    gate,
		w:       w,
		logger:  shared.WithLogger(logger, "component", "navigator"),
	}
}

// Navigate pushes route. Navigating to the current route is a no-op.
func (n *Navigator) Navigate(route string) {
	n.mu.Lock()
	if n.entries[n.pos] == route {
		n.mu.Unlock()
		return
	}
	n.entries = append(n.entries[:n.pos+1], route)
	n.pos++
	pos := n.pos
	n.mu.Unlock()

	n.moved("navigate", route, pos)
}

// Back moves one entry back. It fails with [shared.ErrNavigationBlocked] at the start of
// history or when the gate refuses.
func (n *Navigator) Back() (string, error) {
	n.mu.Lock()
	if n.pos == 0 {
		n.mu.Unlock()
		return "", fmt.Errorf("%w: no earlier entry", shared.ErrNavigationBlocked)
	}
	if n.gate != nil && !n.gate.CanGoBack(n.pos) {
		n.mu.Unlock()
		return "", fmt.Errorf("%w: cannot go back past sign-in", shared.ErrNavigationBlocked)
	}
	n.pos--
	route, pos := n.entries[n.pos], n.pos
	n.mu.Unlock()

	n.moved("back", route, pos)
	return route, nil
}

// Forward moves one entry forward. It fails with [shared.ErrNavigationBlocked] at the end of
// history or when the gate refuses.
func (n *Navigator) Forward() (string, error) {
	n.mu.Lock()
	if n.pos == len(n.entries)-1 {
		n.mu.Unlock()
		return "", fmt.Errorf("%w: no later entry", shared.ErrNavigationBlocked)
	}
	if n.gate != nil && !n.gate.CanGoForward() {
		n.mu.Unlock()
		return "", fmt.Errorf("%w: forward disabled after sign-in", shared.ErrNavigationBlocked)
	}
	n.pos++
	route, pos := n.entries[n.pos], n.pos
	n.mu.Unlock()

	n.moved("forward", route, pos)
	return route, nil
}

// Position returns the current history index.
func (n *Navigator) Position() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pos
}

// Current returns the current route.
func (n *Navigator) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.entries[n.pos]
}

// Entries returns a copy of the history stack.
func (n *Navigator) Entries() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.entries...)
}

func (n *Navigator) moved(how, route string, pos int) {
	if n.gate != nil {
		n.gate.Navigated()
	}
	n.logger.Debug(how, "route", route, "position", pos)
	if n.w != nil {
		fmt.Fprintf(n.w, "%s %s\n", styles.Help("→"), styles.Route(route))
	}
}
