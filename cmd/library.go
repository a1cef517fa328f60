package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/repertoire/internal/formatter"
	"github.com/desertthunder/repertoire/internal/library"
	"github.com/desertthunder/repertoire/internal/models"
	"github.com/desertthunder/repertoire/internal/shared"
	"github.com/desertthunder/repertoire/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Search runs a search query.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := strings.Join(cmd.Args().Slice(), " ")
	if query == "" {
		return fmt.Errorf("%w: query", shared.ErrMissingArgument)
	}
	return r.read(ctx, cmd, func(lib *library.Client) (*library.Result, error) {
		return lib.Search(ctx, query, nil)
	})
}

// List reads every entity of a kind.
func (r *Runner) List(ctx context.Context, cmd *cli.Command) error {
	kind, err := models.ParseKind(cmd.Args().First())
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	return r.read(ctx, cmd, func(lib *library.Client) (*library.Result, error) {
		return lib.List(ctx, kind, nil)
	})
}

// Get reads one entity.
func (r *Runner) Get(ctx context.Context, cmd *cli.Command) error {
	ref, err := parseRef(cmd.Args().Get(0), cmd.Args().Get(1))
	if err != nil {
		return err
	}
	return r.read(ctx, cmd, func(lib *library.Client) (*library.Result, error) {
		return lib.Get(ctx, ref)
	})
}

func (r *Runner) read(ctx context.Context, cmd *cli.Command, fn func(*library.Client) (*library.Result, error)) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	a, err := r.open(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer r.close()

	res, err := fn(a.Library)
	if err != nil {
		return err
	}
	if format == formatter.JSON {
		return r.writePlain("%s\n", res.Data)
	}
	return r.writePlain("%s\n", formatter.IndentJSON(res.Data))
}

// Delete removes entities of one kind. Several ids are deleted concurrently.
func (r *Runner) Delete(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) < 2 {
		return fmt.Errorf("%w: kind and at least one id", shared.ErrMissingArgument)
	}
	kind, err := models.ParseKind(args[0])
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	refs := make([]models.EntityRef, 0, len(args)-1)
	for _, id := range args[1:] {
		refs = append(refs, models.EntityRef{Kind: kind, ID: id})
	}

	opened := make([]models.EntityRef, 0)
	for _, pair := range cmd.StringSlice("open") {
		k, id, _ := strings.Cut(pair, "=")
		ref, err := parseRef(k, id)
		if err != nil {
			return fmt.Errorf("%w: --open %q", err, pair)
		}
		opened = append(opened, ref)
	}

	flags := models.DeleteFlags{WithAlbums: cmd.Bool("with-albums"), WithSongs: cmd.Bool("with-songs")}

	a, err := r.open(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer r.close()

	for _, ref := range opened {
		a.Drawers.Open(ref.Kind, ref.ID)
	}

	prog := make(chan tasks.ProgressUpdate, len(refs)+1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range prog {
			r.logger.Info(u.Message, "phase", u.Phase.String())
		}
	}()

	res, err := a.Tasks.BulkDelete(ctx, prog, refs, flags, bulkOpts(cmd))
	close(prog)
	<-done
	if err != nil {
		return err
	}

	r.writePlain("Deleted %d of %d %s(s)\n", res.Succeeded, res.Total, kind)
	r.writePlain("%s\n", formatter.RenderDrawers(a.Drawers.Snapshot()))
	if res.Failed > 0 {
		return fmt.Errorf("%w: %d delete(s) failed", shared.ErrAPIRequest, res.Failed)
	}
	return nil
}

// Prefetch warms the cache with the collections of the given kinds, or all of them.
func (r *Runner) Prefetch(ctx context.Context, cmd *cli.Command) error {
	var kinds []models.EntityKind
	for _, arg := range cmd.Args().Slice() {
		kind, err := models.ParseKind(arg)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		kinds = append(kinds, kind)
	}

	a, err := r.open(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer r.close()

	res, err := a.Tasks.Prefetch(ctx, nil, kinds, bulkOpts(cmd))
	if err != nil {
		return err
	}
	for _, item := range res.Results {
		if item.Err != nil {
			r.writePlain("✗ %s: %v\n", item.Ref.Kind, item.Err)
			continue
		}
		r.writePlain("✓ %s\n", item.Ref.Kind)
	}
	return r.writePlain("%s", formatter.RenderCache(a.Cache.Stats(), a.Cache.Entries()))
}

func bulkOpts(cmd *cli.Command) tasks.BulkOpts {
	return tasks.BulkOpts{NumWorkers: int(cmd.Int("workers")), RateLimit: cmd.Float("rate")}
}

func parseRef(kind, id string) (models.EntityRef, error) {
	k, err := models.ParseKind(kind)
	if err != nil {
		return models.EntityRef{}, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	if strings.TrimSpace(id) == "" {
		return models.EntityRef{}, fmt.Errorf("%w: %s id", shared.ErrMissingArgument, k)
	}
	return models.EntityRef{Kind: k, ID: id}, nil
}
