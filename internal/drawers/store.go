package drawers

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/repertoire/internal/models"
	"github.com/desertthunder/repertoire/internal/pipeline"
	"github.com/desertthunder/repertoire/internal/shared"
)

// Store coordinates concurrent access to the drawer [State].
type Store struct {
	mu    sync.RWMutex
	state State
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Open shows entity id in the drawer of kind.
func (s *Store) Open(kind models.EntityKind, id string) {
	s.Update(func(st State) State {
		return st.With(kind, Drawer{EntityID: id, Open: true})
	})
}

// Close hides and clears the drawer of kind.
func (s *Store) Close(kind models.EntityKind) {
	s.Update(func(st State) State {
		return st.With(kind, Drawer{})
	})
}

// Update applies fn as one atomic transition and returns the new state.
func (s *Store) Update(fn func(State) State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = fn(s.state)
	return s.state
}

// Synchronizer closes drawers whose entity was deleted by a successful request.
type Synchronizer struct {
	store  *Store
	paths  models.EntityPaths
	logger *log.Logger
}

// NewSynchronizer creates a [pipeline.Observer] that cascades deletes into store.
func NewSynchronizer(store *Store, paths models.EntityPaths, logger *log.Logger) *Synchronizer {
	if paths == nil {
		paths = models.DefaultEntityPaths()
	}
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &Synchronizer{
		store:  store,
		paths:  paths,
		logger: shared.WithLogger(logger, "component", "drawers"),
	}
}

// Observe implements [pipeline.Observer].
func (s *Synchronizer) Observe(c pipeline.Completion) {
	if !strings.EqualFold(c.Request.Method, http.MethodDelete) {
		return
	}
	ref, ok := s.paths.Match(c.Request.Path)
	if !ok {
		return
	}

	flags := models.FlagsFromQuery(c.Request.Query)
	before := s.store.Snapshot()
	after := s.store.Update(func(st State) State {
		return Cascade(ref, flags, st)
	})

	if before != after {
		s.logger.Debug("closed drawers after delete", "kind", string(ref.Kind), "id", ref.ID, "request_id", c.Request.ID)
	}
}
