package tasks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/repertoire/internal/cache"
	"github.com/desertthunder/repertoire/internal/library"
	"github.com/desertthunder/repertoire/internal/models"
	"github.com/desertthunder/repertoire/internal/pipeline"
	"github.com/desertthunder/repertoire/internal/services"
	"github.com/desertthunder/repertoire/internal/session"
	"github.com/desertthunder/repertoire/internal/shared"
)

// fakeLibrary fails deletes of ids listed in failing and counts calls.
type fakeLibrary struct {
	mu      sync.Mutex
	failing map[string]bool
	deleted []string
	lists   atomic.Int32
}

func (f *fakeLibrary) List(_ context.Context, kind models.EntityKind, _ url.Values) (*library.Result, error) {
	f.lists.Add(1)
	if kind == models.Playlist {
		return nil, &services.RequestError{StatusCode: http.StatusInternalServerError}
	}
	return &library.Result{Data: []byte(`[]`)}, nil
}

func (f *fakeLibrary) Delete(_ context.Context, ref models.EntityRef, _ models.DeleteFlags) (*services.APIResponse, error) {
	if f.failing[ref.ID] {
		resp := &services.APIResponse{StatusCode: http.StatusNotFound}
		return resp, &services.RequestError{StatusCode: http.StatusNotFound}
	}
	f.mu.Lock()
	f.deleted = append(f.deleted, ref.ID)
	f.mu.Unlock()
	return &services.APIResponse{StatusCode: http.StatusOK}, nil
}

func songs(ids ...string) []models.EntityRef {
	refs := make([]models.EntityRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, models.EntityRef{Kind: models.Song, ID: id})
	}
	return refs
}

func TestBulkDelete(t *testing.T) {
	ctx := context.Background()
	fast := BulkOpts{NumWorkers: 3, RateLimit: 1000}

	t.Run("Partial Failure", func(t *testing.T) {
		lib := &fakeLibrary{failing: map[string]bool{"2": true}}
		prog := make(chan ProgressUpdate, 16)

		res, err := NewEngine(lib, nil).BulkDelete(ctx, prog, songs("1", "2", "3"), models.DeleteFlags{}, fast)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Total != 3 || res.Succeeded != 2 || res.Failed != 1 {
			t.Errorf("unexpected summary %+v", res)
		}
		for _, r := range res.Results {
			if r.Ref.ID == "2" && r.Status != http.StatusNotFound {
				t.Errorf("expected 404 for the failed item, got %d", r.Status)
			}
		}

		close(prog)
		var updates []ProgressUpdate
		for u := range prog {
			updates = append(updates, u)
		}
		if len(updates) != 4 || updates[0].Phase != DeleteEntities {
			t.Fatalf("expected start plus 3 item updates, got %d", len(updates))
		}
		if last := updates[3]; last.Step != 3 || last.Total != 3 {
			t.Errorf("unexpected last update %+v", last)
		}
	})

	t.Run("Nothing To Delete", func(t *testing.T) {
		if _, err := NewEngine(&fakeLibrary{}, nil).BulkDelete(ctx, nil, nil, models.DeleteFlags{}, fast); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Cancelled Context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		lib := &fakeLibrary{}
		res, err := NewEngine(lib, nil).BulkDelete(cctx, nil, songs("1", "2"), models.DeleteFlags{}, fast)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Failed != 2 || len(lib.deleted) != 0 {
			t.Errorf("expected every item skipped, got %+v", res)
		}
	})
}

func TestPrefetch(t *testing.T) {
	lib := &fakeLibrary{}
	res, err := NewEngine(lib, nil).Prefetch(context.Background(), nil, nil, BulkOpts{RateLimit: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lib.lists.Load() != int32(len(models.Kinds)) {
		t.Errorf("expected one list per kind, got %d", lib.lists.Load())
	}
	if res.Succeeded != 3 || res.Failed != 1 {
		t.Errorf("expected the playlist read to fail, got %+v", res)
	}
}

func TestBulkDeleteThroughPipeline(t *testing.T) {
	ctx := context.Background()
	var refreshes atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/refresh" {
			refreshes.Add(1)
			w.Write([]byte(`{"token":"fresh"}`))
			return
		}
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"token expired"}`))
			return
		}
		if r.Method != http.MethodDelete || !strings.HasPrefix(r.URL.Path, "/songs/") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	store := session.NewStore(nil, nil, nil)
	if err := store.SignIn(ctx, "stale", 0); err != nil {
		t.Fatalf("failed to sign in: %v", err)
	}

	cfg := shared.APIConfig{BaseURL: srv.URL, RefreshPath: "/refresh"}
	anon := services.NewExecutor(srv.URL, nil, nil, nil)
	base := services.NewExecutor(srv.URL, nil, store, nil)
	auth := services.NewAuthService(anon, base, services.AuthPathsFromConfig(cfg), nil)

	pipe := pipeline.New(pipeline.Options{
		Executor:  base,
		Tokens:    store,
		Refresher: auth,
		Refresh:   pipeline.CoordinatorConfig{RefreshPath: cfg.RefreshPath},
	})
	c := cache.New(nil)
	c.Set("GET /search?query=x", []string{cache.TagSearch}, 1)
	pipe.Observe(pipeline.InvalidateOnSuccess(c, nil))

	lib := library.New(pipe, c, cfg)
	res, err := NewEngine(lib, nil).BulkDelete(ctx, nil, songs("1", "2", "3", "4", "5", "6"), models.DeleteFlags{}, BulkOpts{NumWorkers: 6, RateLimit: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Succeeded != 6 {
		t.Errorf("expected every delete to recover, got %+v", res)
	}
	if got := refreshes.Load(); got != 1 {
		t.Errorf("expected exactly 1 refresh, got %d", got)
	}
	if e, _ := c.Get("GET /search?query=x"); !e.Stale {
		t.Error("expected search results invalidated by the deletes")
	}
}
