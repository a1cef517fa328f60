package library

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"testing"

	"github.com/desertthunder/repertoire/internal/cache"
	"github.com/desertthunder/repertoire/internal/models"
	"github.com/desertthunder/repertoire/internal/services"
	"github.com/desertthunder/repertoire/internal/shared"
)

// recordingDoer answers every request with body and records it.
type recordingDoer struct {
	body     string
	err      error
	requests []services.Request
}

func (d *recordingDoer) Do(_ context.Context, req services.Request) (*services.APIResponse, error) {
	d.requests = append(d.requests, req)
	if d.err != nil {
		return nil, d.err
	}
	return &services.APIResponse{StatusCode: http.StatusOK, Body: []byte(d.body), IsJSON: true}, nil
}

func defaultAPI() shared.APIConfig {
	return shared.APIConfig{SearchPath: "/search"}
}

func TestPathsFromConfig(t *testing.T) {
	paths := PathsFromConfig(shared.APIConfig{SongPath: "/v2/songs"})
	if paths[models.Song] != "/v2/songs" {
		t.Errorf("expected override, got %q", paths[models.Song])
	}
	if paths[models.Artist] != "/artists" {
		t.Errorf("expected default artist root, got %q", paths[models.Artist])
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("Cached Until Invalidated", func(t *testing.T) {
		doer := &recordingDoer{body: `{"songs":[]}`}
		c := cache.New(nil)
		lib := New(doer, c, defaultAPI())

		first, err := lib.Search(ctx, "blue", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first.Cached || string(first.Data) != `{"songs":[]}` {
			t.Errorf("unexpected first result %+v", first)
		}

		second, _ := lib.Search(ctx, "blue", nil)
		if !second.Cached || len(doer.requests) != 1 {
			t.Errorf("expected cached result, requests=%d", len(doer.requests))
		}

		c.InvalidateTags(cache.TagSearch)
		third, _ := lib.Search(ctx, "blue", nil)
		if third.Cached || len(doer.requests) != 2 {
			t.Errorf("expected refetch after invalidation, requests=%d", len(doer.requests))
		}

		req := doer.requests[0]
		if req.Path != "/search" || req.Query.Get("query") != "blue" {
			t.Errorf("unexpected request %+v", req)
		}
	})

	t.Run("Errors Are Not Cached", func(t *testing.T) {
		doer := &recordingDoer{err: &services.RequestError{StatusCode: 500}}
		lib := New(doer, cache.New(nil), defaultAPI())

		if _, err := lib.Search(ctx, "x", nil); err == nil {
			t.Fatal("expected error")
		}
		doer.err = nil
		doer.body = `[]`
		if res, err := lib.Search(ctx, "x", nil); err != nil || res.Cached {
			t.Errorf("expected fresh fetch after error, got %+v %v", res, err)
		}
	})
}

func TestListAndGet(t *testing.T) {
	ctx := context.Background()
	doer := &recordingDoer{body: `{}`}
	c := cache.New(nil)
	lib := New(doer, c, defaultAPI())

	if _, err := lib.List(ctx, models.Album, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := lib.Get(ctx, models.EntityRef{Kind: models.Song, ID: "7"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if e, ok := c.Get("GET /albums"); !ok || !e.HasTag(cache.TagAlbum) {
		t.Errorf("expected albums cached with Album tag, got %+v", e)
	}
	if e, ok := c.Get("GET /songs/7"); !ok || !e.HasTag(cache.TagSong) {
		t.Errorf("expected song cached with Song tag, got %+v", e)
	}

	if _, err := lib.List(ctx, models.EntityKind("genre"), nil); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := lib.Get(ctx, models.EntityRef{Kind: models.Song}); !errors.Is(err, shared.ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	tc := []struct {
		name      string
		ref       models.EntityRef
		flags     models.DeleteFlags
		wantPath  string
		wantQuery string
		wantTags  []string
	}{
		{
			name:      "Artist With Cascades",
			ref:       models.EntityRef{Kind: models.Artist, ID: "1"},
			flags:     models.DeleteFlags{WithAlbums: true, WithSongs: true},
			wantPath:  "/artists/1",
			wantQuery: "withAlbums=true&withSongs=true",
			wantTags:  []string{cache.TagArtist, cache.TagSearch, cache.TagAlbum, cache.TagSong},
		},
		{
			name:      "Album Drops With Albums",
			ref:       models.EntityRef{Kind: models.Album, ID: "2"},
			flags:     models.DeleteFlags{WithAlbums: true, WithSongs: true},
			wantPath:  "/albums/2",
			wantQuery: "withSongs=true",
			wantTags:  []string{cache.TagAlbum, cache.TagSearch, cache.TagSong},
		},
		{
			name:     "Song Ignores Flags",
			ref:      models.EntityRef{Kind: models.Song, ID: "3"},
			flags:    models.DeleteFlags{WithSongs: true},
			wantPath: "/songs/3",
			wantTags: []string{cache.TagSong, cache.TagSearch},
		},
		{
			name:     "Playlist",
			ref:      models.EntityRef{Kind: models.Playlist, ID: "4"},
			wantPath: "/playlists/4",
			wantTags: []string{cache.TagPlaylist, cache.TagSearch},
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			doer := &recordingDoer{}
			lib := New(doer, cache.New(nil), defaultAPI())

			if _, err := lib.Delete(ctx, tt.ref, tt.flags); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			req := doer.requests[0]
			if req.Method != http.MethodDelete || req.Path != tt.wantPath {
				t.Errorf("unexpected request %s %s", req.Method, req.Path)
			}
			if got := req.Query.Encode(); got != tt.wantQuery {
				t.Errorf("expected query %q, got %q", tt.wantQuery, got)
			}
			if !slices.Equal(req.Invalidates, tt.wantTags) {
				t.Errorf("expected tags %v, got %v", tt.wantTags, req.Invalidates)
			}
		})
	}

	t.Run("Validation", func(t *testing.T) {
		doer := &recordingDoer{}
		lib := New(doer, cache.New(nil), defaultAPI())

		if _, err := lib.Delete(ctx, models.EntityRef{Kind: models.Artist, ID: " "}, models.DeleteFlags{}); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if len(doer.requests) != 0 {
			t.Error("expected no request for invalid input")
		}
	})
}

func TestRemember(t *testing.T) {
	ctx := context.Background()
	doer := &recordingDoer{body: `{"id":"7","title":"old"}`}
	lib := New(doer, cache.New(nil), defaultAPI())
	ref := models.EntityRef{Kind: models.Song, ID: "7"}

	if err := lib.Remember(ref, []byte(`{"id":"7","title":"new"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := lib.Get(ctx, ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Cached || string(res.Data) != `{"id":"7","title":"new"}` {
		t.Errorf("expected the written entity served from cache, got %+v", res)
	}
	if len(doer.requests) != 0 {
		t.Errorf("expected no request, got %d", len(doer.requests))
	}

	if err := lib.Remember(models.EntityRef{Kind: models.Song}, []byte(`{}`)); !errors.Is(err, shared.ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument, got %v", err)
	}
}
