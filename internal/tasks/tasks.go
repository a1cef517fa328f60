package tasks

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/repertoire/internal/library"
	"github.com/desertthunder/repertoire/internal/models"
	"github.com/desertthunder/repertoire/internal/services"
	"github.com/desertthunder/repertoire/internal/shared"
	"golang.org/x/time/rate"
)

// Library is the subset of [library.Client] the engine drives.
type Library interface {
	List(ctx context.Context, kind models.EntityKind, params url.Values) (*library.Result, error)
	Delete(ctx context.Context, ref models.EntityRef, flags models.DeleteFlags) (*services.APIResponse, error)
}

// BulkOpts contains configuration for bulk operations.
type BulkOpts struct {
	NumWorkers int     // Concurrent workers (default: 4, max: 10)
	RateLimit  float64 // Requests per second (default: 5)
}

func (o BulkOpts) withDefaults() BulkOpts {
	if o.NumWorkers <= 0 {
		o.NumWorkers = 4
	}
	if o.NumWorkers > 10 {
		o.NumWorkers = 10
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 5.0
	}
	return o
}

// ItemResult is the outcome of one item of a bulk operation.
type ItemResult struct {
	Ref    models.EntityRef
	Status int
	Cached bool
	Err    error
}

// BulkResult summarizes a bulk operation. Results are in completion order.
type BulkResult struct {
	Total     int
	Succeeded int
	Failed    int
	Results   []ItemResult
}

// Engine runs bulk operations through the request pipeline.
type Engine struct {
	lib    Library
	logger *log.Logger
}

// NewEngine creates an engine over lib.
func NewEngine(lib Library, logger *log.Logger) *Engine {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &Engine{lib: lib, logger: shared.WithLogger(logger, "component", "tasks")}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// BulkDelete deletes refs concurrently with rate limiting and progress tracking.
//
// Failed deletes are reported per item; the error return is reserved for invalid input.
func (e *Engine) BulkDelete(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	refs []models.EntityRef,
	flags models.DeleteFlags,
	opts BulkOpts,
) (*BulkResult, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: nothing to delete", shared.ErrMissingArgument)
	}
	return e.run(ctx, prog, DeleteEntities, refs, opts, func(ctx context.Context, ref models.EntityRef) ItemResult {
		resp, err := e.lib.Delete(ctx, ref, flags)
		res := ItemResult{Ref: ref, Err: err, Status: services.StatusOf(err)}
		if resp != nil {
			res.Status = resp.StatusCode
		}
		return res
	}), nil
}

// Prefetch reads the collection of every kind so later reads are served from the cache.
func (e *Engine) Prefetch(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	kinds []models.EntityKind,
	opts BulkOpts,
) (*BulkResult, error) {
	if len(kinds) == 0 {
		kinds = models.Kinds
	}
	refs := make([]models.EntityRef, 0, len(kinds))
	for _, k := range kinds {
		refs = append(refs, models.EntityRef{Kind: k})
	}
	return e.run(ctx, prog, PrefetchLists, refs, opts, func(ctx context.Context, ref models.EntityRef) ItemResult {
		out, err := e.lib.List(ctx, ref.Kind, nil)
		res := ItemResult{Ref: ref, Err: err, Status: services.StatusOf(err)}
		if out != nil {
			res.Cached = out.Cached
		}
		return res
	}), nil
}

// run implements the worker pool shared by bulk operations.
func (e *Engine) run(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	phase Phase,
	refs []models.EntityRef,
	opts BulkOpts,
	fn func(context.Context, models.EntityRef) ItemResult,
) *BulkResult {
	opts = opts.withDefaults()
	result := &BulkResult{Total: len(refs), Results: make([]ItemResult, 0, len(refs))}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan models.EntityRef, len(refs))
	results := make(chan ItemResult, len(refs))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range jobs {
				results <- fn(ctx, ref)
			}
		}()
	}

	e.sendProgress(prog, startedUpdate(phase, len(refs)))
	go func() {
		defer close(jobs)
		for i, ref := range refs {
			if err := limiter.Wait(ctx); err != nil {
				for _, skipped := range refs[i:] {
					results <- ItemResult{Ref: skipped, Err: err}
				}
				return
			}
			jobs <- ref
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)
		if res.Err == nil {
			result.Succeeded++
			e.sendProgress(prog, completedUpdate(phase, completed, len(refs), res))
		} else {
			result.Failed++
			e.logger.Debug("item failed", "phase", phase.String(), "ref", label(res.Ref), "error", res.Err)
			e.sendProgress(prog, failedUpdate(phase, completed, len(refs), res))
		}
	}
	return result
}
