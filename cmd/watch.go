package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/repertoire/internal/server"
	"github.com/desertthunder/repertoire/internal/shared"
	"github.com/urfave/cli/v3"
)

// Watch subscribes the signed-in user's channel and reports invalidations until ctx is done.
// With --listen it also serves the status endpoint.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer r.close()

	if !a.Session.Snapshot().SignedIn() {
		return fmt.Errorf("%w: run 'auth login' first", shared.ErrNotAuthenticated)
	}

	a.Cache.OnInvalidate(func(tags []string, marked int) {
		r.writePlain("invalidated %v (%d entries)\n", tags, marked)
	})
	a.StartRealtime()

	if a.Subscriber.Channel() == "" {
		return fmt.Errorf("%w: no channel for the current session", shared.ErrRealtimeUnavailable)
	}
	r.writePlain("Watching %s\n", a.Subscriber.Channel())

	if addr := cmd.String("listen"); addr != "" {
		router := server.NewRouter(func() any { return a.Status() }, r.logger)
		r.logger.Info("status server", "addr", addr, "routes", router.Routes())
		return server.Serve(ctx, addr, router, r.logger)
	}

	<-ctx.Done()
	return nil
}
