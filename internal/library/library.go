// package library is a thin client for the repertoire entity endpoints
//
// Payloads are opaque: reads return raw JSON and are cached by endpoint and arguments.
// Deletes go through the pipeline with the tags they invalidate, so the drawer and cache
// observers react to them.
package library

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/repertoire/internal/cache"
	"github.com/desertthunder/repertoire/internal/models"
	"github.com/desertthunder/repertoire/internal/services"
	"github.com/desertthunder/repertoire/internal/shared"
)

// PathsFromConfig reads the entity roots from the [api] config section.
func PathsFromConfig(cfg shared.APIConfig) models.EntityPaths {
	paths := models.DefaultEntityPaths()
	for kind, p := range map[models.EntityKind]string{
		models.Artist:   cfg.ArtistPath,
		models.Album:    cfg.AlbumPath,
		models.Song:     cfg.SongPath,
		models.Playlist: cfg.PlaylistPath,
	} {
		if p != "" {
			paths[kind] = p
		}
	}
	return paths
}

// TagFor returns the cache tag of kind.
func TagFor(kind models.EntityKind) string {
	switch kind {
	case models.Artist:
		return cache.TagArtist
	case models.Album:
		return cache.TagAlbum
	case models.Song:
		return cache.TagSong
	case models.Playlist:
		return cache.TagPlaylist
	default:
		return ""
	}
}

// Result is a read result.
type Result struct {
	Data json.RawMessage
	// Cached reports whether Data came from the cache.
	Cached bool
}

// Client reads and deletes repertoire entities.
type Client struct {
	pipe       services.Doer
	cache      *cache.Cache
	paths      models.EntityPaths
	searchPath string
}

// New creates a client sending requests through pipe and caching reads in c.
func New(pipe services.Doer, c *cache.Cache, cfg shared.APIConfig) *Client {
	searchPath := cfg.SearchPath
	if searchPath == "" {
		searchPath = "/search"
	}
	return &Client{pipe: pipe, cache: c, paths: PathsFromConfig(cfg), searchPath: searchPath}
}

// Paths returns the entity roots in use.
func (c *Client) Paths() models.EntityPaths {
	return c.paths
}

// Search runs a search query. Results are tagged [cache.TagSearch].
func (c *Client) Search(ctx context.Context, query string, params url.Values) (*Result, error) {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	if query != "" {
		q.Set("query", query)
	}
	return c.read(ctx, services.Request{Path: c.searchPath, Query: q}, cache.TagSearch)
}

// List reads the collection of kind.
func (c *Client) List(ctx context.Context, kind models.EntityKind, params url.Values) (*Result, error) {
	root, ok := c.paths[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown entity kind %q", shared.ErrInvalidArgument, kind)
	}
	return c.read(ctx, services.Request{Path: root, Query: params}, TagFor(kind))
}

// Get reads a single entity.
func (c *Client) Get(ctx context.Context, ref models.EntityRef) (*Result, error) {
	if err := c.validate(ref); err != nil {
		return nil, err
	}
	return c.read(ctx, services.Request{Path: c.paths.Path(ref)}, TagFor(ref.Kind))
}

// DeleteRequest builds the delete call for ref. Flags are only sent for artists and albums.
func (c *Client) DeleteRequest(ref models.EntityRef, flags models.DeleteFlags) services.Request {
	req := services.Request{
		Method:      http.MethodDelete,
		Path:        c.paths.Path(ref),
		Invalidates: InvalidatedBy(ref.Kind, flags),
	}
	switch ref.Kind {
	case models.Artist:
		req.Query = flags.Values()
	case models.Album:
		req.Query = models.DeleteFlags{WithSongs: flags.WithSongs}.Values()
	}
	if len(req.Query) == 0 {
		req.Query = nil
	}
	return req
}

// Delete removes ref.
func (c *Client) Delete(ctx context.Context, ref models.EntityRef, flags models.DeleteFlags) (*services.APIResponse, error) {
	if err := c.validate(ref); err != nil {
		return nil, err
	}
	return c.pipe.Do(ctx, c.DeleteRequest(ref, flags))
}

// Remember stores data as the fresh read of ref, as returned by a successful write.
func (c *Client) Remember(ref models.EntityRef, data []byte) error {
	if err := c.validate(ref); err != nil {
		return err
	}
	key := cacheKey(services.Request{Path: c.paths.Path(ref)})
	c.cache.Set(key, []string{TagFor(ref.Kind)}, json.RawMessage(data))
	return nil
}

// InvalidatedBy returns the cache tags a delete of kind with flags makes stale.
func InvalidatedBy(kind models.EntityKind, flags models.DeleteFlags) []string {
	tags := []string{TagFor(kind), cache.TagSearch}
	switch kind {
	case models.Artist:
		if flags.WithAlbums {
			tags = append(tags, cache.TagAlbum)
		}
		if flags.WithSongs {
			tags = append(tags, cache.TagSong)
		}
	case models.Album:
		if flags.WithSongs {
			tags = append(tags, cache.TagSong)
		}
	}
	return tags
}

func (c *Client) validate(ref models.EntityRef) error {
	if _, ok := c.paths[ref.Kind]; !ok {
		return fmt.Errorf("%w: unknown entity kind %q", shared.ErrInvalidArgument, ref.Kind)
	}
	if strings.TrimSpace(ref.ID) == "" {
		return fmt.Errorf("%w: entity id", shared.ErrMissingArgument)
	}
	return nil
}

func (c *Client) read(ctx context.Context, req services.Request, tag string) (*Result, error) {
	key := cacheKey(req)
	data, hit, err := c.cache.Query(ctx, key, []string{tag}, func(ctx context.Context) (any, error) {
		resp, err := c.pipe.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(resp.Body), nil
	})
	if err != nil {
		return nil, err
	}
	raw, _ := data.(json.RawMessage)
	return &Result{Data: raw, Cached: hit}, nil
}

func cacheKey(req services.Request) string {
	key := http.MethodGet + " " + req.Path
	if len(req.Query) > 0 {
		key += "?" + req.Query.Encode()
	}
	return key
}
