// package models defines entity kinds and endpoint helpers for the repertoire client
package models

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// EntityKind identifies one of the four entity roots.
type EntityKind string

const (
	Artist   EntityKind = "artist"
	Album    EntityKind = "album"
	Song     EntityKind = "song"
	Playlist EntityKind = "playlist"
)

// Kinds lists every entity kind in a stable order.
var Kinds = []EntityKind{Artist, Album, Song, Playlist}

// ParseKind converts a user supplied name ("artist", "albums", ...) to an [EntityKind].
func ParseKind(s string) (EntityKind, error) {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")
	for _, k := range Kinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// Query flag names understood by artist and album deletes.
const (
	FlagWithAlbums = "withAlbums"
	FlagWithSongs  = "withSongs"
)

// DeleteFlags are the cascade flags of a delete request.
type DeleteFlags struct {
	WithAlbums bool
	WithSongs  bool
}

// Values encodes the flags as query parameters. Unset flags are omitted.
func (f DeleteFlags) Values() url.Values {
	v := url.Values{}
	if f.WithAlbums {
		v.Set(FlagWithAlbums, "true")
	}
	if f.WithSongs {
		v.Set(FlagWithSongs, "true")
	}
	return v
}

// FlagsFromQuery reads the cascade flags from request query parameters.
func FlagsFromQuery(q url.Values) DeleteFlags {
	return DeleteFlags{
		WithAlbums: queryBool(q, FlagWithAlbums),
		WithSongs:  queryBool(q, FlagWithSongs),
	}
}

func queryBool(q url.Values, key string) bool {
	if q == nil {
		return false
	}
	b, err := strconv.ParseBool(q.Get(key))
	return err == nil && b
}

// EntityRef points at a single entity.
type EntityRef struct {
	Kind EntityKind
	ID   string
}

func (r EntityRef) String() string {
	return string(r.Kind) + "/" + r.ID
}

// EntityPaths maps each entity kind to its endpoint root, e.g. "/artists".
type EntityPaths map[EntityKind]string

// DefaultEntityPaths returns the plural roots used by the reference backend.
func DefaultEntityPaths() EntityPaths {
	return EntityPaths{
		Artist:   "/artists",
		Album:    "/albums",
		Song:     "/songs",
		Playlist: "/playlists",
	}
}

// Path returns the endpoint of a single entity.
func (p EntityPaths) Path(ref EntityRef) string {
	return strings.TrimSuffix(p[ref.Kind], "/") + "/" + url.PathEscape(ref.ID)
}

// Match reports whether path addresses exactly one entity of a known root, i.e. "<root>/<id>".
func (p EntityPaths) Match(path string) (EntityRef, bool) {
	path, _, _ = strings.Cut(path, "?")
	for _, kind := range Kinds {
		root := strings.TrimSuffix(p[kind], "/")
		if root == "" {
			continue
		}
		rest, ok := strings.CutPrefix(path, root+"/")
		if !ok {
			continue
		}
		rest = strings.TrimSuffix(rest, "/")
		if rest == "" || strings.Contains(rest, "/") {
			return EntityRef{}, false
		}
		id, err := url.PathUnescape(rest)
		if err != nil {
			return EntityRef{}, false
		}
		return EntityRef{Kind: kind, ID: id}, true
	}
	return EntityRef{}, false
}
