// package drawers holds the per-entity side panel state and keeps it consistent with deletions
package drawers

import (
	"github.com/desertthunder/repertoire/internal/models"
)

// Drawer is a side panel bound to at most one entity.
type Drawer struct {
	EntityID string
	Open     bool
}

// Empty reports whether the drawer shows nothing.
func (d Drawer) Empty() bool {
	return d == Drawer{}
}

// State holds one drawer per entity kind.
type State struct {
	Artist   Drawer
	Album    Drawer
	Song     Drawer
	Playlist Drawer
}

// Get returns the drawer of kind.
func (s State) Get(kind models.EntityKind) Drawer {
	switch kind {
	case models.Artist:
		return s.Artist
	case models.Album:
		return s.Album
	case models.Song:
		return s.Song
	case models.Playlist:
		return s.Playlist
	default:
		return Drawer{}
	}
}

// With returns a copy of s with the drawer of kind replaced.
func (s State) With(kind models.EntityKind, d Drawer) State {
	switch kind {
	case models.Artist:
		s.Artist = d
	case models.Album:
		s.Album = d
	case models.Song:
		s.Song = d
	case models.Playlist:
		s.Playlist = d
	}
	return s
}

// Cascade returns the drawer state after ref was deleted with flags.
//
// The deleted entity's own drawer is cleared when it shows that entity. Artist deletes clear
// the album drawer with WithAlbums and the song drawer with WithSongs; album deletes clear the
// song drawer with WithSongs. These cascades apply regardless of which entity is shown.
func Cascade(ref models.EntityRef, flags models.DeleteFlags, s State) State {
	if s.Get(ref.Kind).EntityID == ref.ID {
		s = s.With(ref.Kind, Drawer{})
	}

	switch ref.Kind {
	case models.Artist:
		if flags.WithAlbums {
			s.Album = Drawer{}
		}
		if flags.WithSongs {
			s.Song = Drawer{}
		}
	case models.Album:
		if flags.WithSongs {
			s.Song = Drawer{}
		}
	}
	return s
}
