package main

import (
	"context"

	"github.com/desertthunder/repertoire/internal/formatter"
	"github.com/urfave/cli/v3"
)

// AuthLogin signs in through the pipeline and persists the token.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer r.close()

	if err := a.SignIn(ctx, cmd.String("email"), cmd.String("password")); err != nil {
		return err
	}

	r.logger.Info("authentication successful", "user", a.Session.UserID())
	return r.writePlain("✓ Signed in\n")
}

// AuthLogout clears the persisted session.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer r.close()

	if !a.Session.Snapshot().SignedIn() {
		return r.writePlain("Not signed in\n")
	}
	if err := a.SignOut(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Signed out\n")
}

// AuthStatus reports the session without contacting the backend.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer r.close()

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	view := formatter.NewSessionView(a.Session.Snapshot(), nil)
	if format == formatter.JSON {
		return r.writeJSON(view, true)
	}
	return r.writePlain("%s", formatter.RenderSession(view))
}
