package main

import (
	"context"

	"github.com/desertthunder/repertoire/internal/formatter"
	"github.com/urfave/cli/v3"
)

// History prints the session gating state and the newest session events.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	a, err := r.open(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer r.close()

	events, err := a.RecentEvents(ctx, int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	view := formatter.NewSessionView(a.Session.Snapshot(), events)
	if format == formatter.JSON {
		return r.writeJSON(view, true)
	}
	return r.writePlain("%s", formatter.RenderSession(view))
}
