// package cache implements the tagged client-side query cache
//
// Entries are keyed by endpoint and arguments and carry one or more invalidation tags.
// Invalidating a tag marks every matching entry stale, so the next [Cache.Query] for it
// re-fetches. [Cache.Reset] drops everything, used when the signed-in identity changes.
package cache

import (
	"context"
	"io"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/repertoire/internal/shared"
	"golang.org/x/sync/singleflight"
)

// Well-known invalidation tags.
const (
	TagSearch   = "Search"
	TagArtist   = "Artist"
	TagAlbum    = "Album"
	TagSong     = "Song"
	TagPlaylist = "Playlist"
)

// Entry is one cached read result.
type Entry struct {
	Key       string
	Tags      []string
	Data      any
	FetchedAt time.Time
	Stale     bool
	// Invalidations counts how many invalidation events marked this entry.
	Invalidations int
}

// HasTag reports whether the entry carries tag.
func (e Entry) HasTag(tag string) bool {
	return slices.Contains(e.Tags, tag)
}

// FetchFunc loads the data of a missing or stale entry.
type FetchFunc func(ctx context.Context) (any, error)

// InvalidateFunc observes an invalidation: the tags requested and the number of entries marked.
type InvalidateFunc func(tags []string, marked int)

// Stats summarizes the cache for display.
type Stats struct {
	Entries       int
	Stale         int
	Hits          int
	Misses        int
	Invalidations int
	Resets        int
}

// Cache is safe for concurrent use. Concurrent queries for the same key share one fetch.
type Cache struct {
	mu        sync.RWMutex
	entries   map[string]*Entry
	group     singleflight.Group
	listeners []InvalidateFunc
	// generation changes on Reset so fetches started before it are not stored.
	generation uint64
	stats      Stats
	now        func() time.Time
	logger     *log.Logger
}

// New creates an empty cache.
func New(logger *log.Logger) *Cache {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &Cache{
		entries: make(map[string]*Entry),
		now:     time.Now,
		logger:  shared.WithLogger(logger, "component", "cache"),
	}
}

// Query returns the fresh entry for key or fetches it. hit reports whether the cached data was used.
//
// A failed fetch leaves any existing (stale) entry in place and returns the error.
func (c *Cache) Query(ctx context.Context, key string, tags []string, fetch FetchFunc) (data any, hit bool, err error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !e.Stale {
		c.stats.Hits++
		cached := e.Data
		c.mu.Unlock()
		return cached, true, nil
	}
	c.stats.Misses++
	gen := c.generation
	c.mu.Unlock()

	v, err, joined := c.group.Do(key, func() (any, error) {
		fetched, ferr := fetch(ctx)
		if ferr != nil {
			return nil, ferr
		}
		c.store(gen, key, tags, fetched)
		return fetched, nil
	})
	if joined {
		c.logger.Debug("joined in-flight fetch", "key", key)
	}
	if err != nil {
		return nil, false, err
	}
	return v, false, nil
}

func (c *Cache) store(gen uint64, key string, tags []string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.logger.Debug("dropping fetch started before reset", "key", key)
		return
	}

	c.entries[key] = &Entry{
		Key:       key,
		Tags:      slices.Clone(tags),
		Data:      data,
		FetchedAt: c.now(),
	}
}

// Set stores data under key as a fresh entry.
func (c *Cache) Set(key string, tags []string, data any) {
	c.mu.RLock()
	gen := c.generation
	c.mu.RUnlock()
	c.store(gen, key, tags, data)
}

// Get returns a copy of the entry stored under key.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns a copy of every entry sorted by key.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// InvalidateTags marks every entry carrying any of tags stale and returns how many were marked.
//
// An entry matching several tags is marked once per call.
func (c *Cache) InvalidateTags(tags ...string) int {
	if len(tags) == 0 {
		return 0
	}

	c.mu.Lock()
	marked := 0
	for _, e := range c.entries {
		if !slices.ContainsFunc(tags, e.HasTag) {
			continue
		}
		e.Stale = true
		e.Invalidations++
		marked++
	}
	c.stats.Invalidations++
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	c.logger.Debug("invalidated tags", "tags", tags, "marked", marked)
	for _, fn := range listeners {
		fn(tags, marked)
	}
	return marked
}

// Reset drops every entry. In-flight fetches complete but are not stored.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]*Entry)
	c.generation++
	c.stats.Resets++
	c.logger.Debug("cache reset", "dropped", n)
}

// OnInvalidate registers fn to observe invalidations.
func (c *Cache) OnInvalidate(fn InvalidateFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.stats
	s.Entries = len(c.entries)
	for _, e := range c.entries {
		if e.Stale {
			s.Stale++
		}
	}
	return s
}
