package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/repertoire/internal/app"
	"github.com/desertthunder/repertoire/internal/formatter"
	"github.com/desertthunder/repertoire/internal/models"
	"github.com/desertthunder/repertoire/internal/shared"
	"github.com/desertthunder/repertoire/internal/tasks"
	"github.com/desertthunder/repertoire/internal/ui"
	"github.com/urfave/cli/v3"
)

const shellHelp = `search <query>              search the repertoire
list <kind>                 list a collection
get <kind> <id>             read one entity
open <kind> <id>            show an entity in its drawer
close <kind>                close a drawer
delete <kind> <id> [albums] [songs]
drawers                     show the drawers
go <route> | back | forward navigate
where                       show the current route and history
cache                       show the query cache
login <email> <password>    sign in
logout                      sign out
quit                        leave the shell`

// Shell reads commands from input until EOF or quit. Every command runs in the same process,
// so navigation history, drawers, cache and the realtime subscription persist between lines.
func (r *Runner) Shell(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer r.close()

	a.StartRealtime()
	styles := ui.Styles()
	r.writePlain("%s\n", styles.Title("repertoire shell"))
	r.writePlain("%s\n", styles.Help("type help for commands"))

	scanner := bufio.NewScanner(r.input)
	for {
		r.writePlain("%s ", styles.Route(a.Navigator.Current()+" >"))
		if !scanner.Scan() {
			break
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			break
		}
		if err := r.dispatch(ctx, a, fields[0], fields[1:]); err != nil {
			if errors.Is(err, shared.ErrNavigationBlocked) {
				r.writePlain("%s\n", styles.Warn(err.Error()))
				continue
			}
			r.writePlain("%s\n", styles.Err("✗ "+err.Error()))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	r.writePlain("\n")
	return scanner.Err()
}

func (r *Runner) dispatch(ctx context.Context, a *app.App, name string, args []string) error {
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	switch name {
	case "help", "?":
		return r.writePlain("%s\n", ui.Styles().Help(shellHelp))
	case "search":
		if len(args) == 0 {
			return fmt.Errorf("%w: query", shared.ErrMissingArgument)
		}
		res, err := a.Library.Search(ctx, strings.Join(args, " "), nil)
		if err != nil {
			return err
		}
		return r.printResult(res.Data, res.Cached)
	case "list":
		kind, err := models.ParseKind(arg(0))
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		res, err := a.Library.List(ctx, kind, nil)
		if err != nil {
			return err
		}
		return r.printResult(res.Data, res.Cached)
	case "get":
		ref, err := parseRef(arg(0), arg(1))
		if err != nil {
			return err
		}
		res, err := a.Library.Get(ctx, ref)
		if err != nil {
			return err
		}
		return r.printResult(res.Data, res.Cached)
	case "open":
		ref, err := parseRef(arg(0), arg(1))
		if err != nil {
			return err
		}
		if err := a.OpenDrawer(ctx, ref); err != nil {
			return err
		}
		return r.writePlain("%s\n", formatter.RenderDrawers(a.Drawers.Snapshot()))
	case "close":
		kind, err := models.ParseKind(arg(0))
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		a.Drawers.Close(kind)
		return r.writePlain("%s\n", formatter.RenderDrawers(a.Drawers.Snapshot()))
	case "delete", "rm":
		ref, err := parseRef(arg(0), arg(1))
		if err != nil {
			return err
		}
		var flags models.DeleteFlags
		for _, f := range args[2:] {
			switch f {
			case "albums":
				flags.WithAlbums = true
			case "songs":
				flags.WithSongs = true
			default:
				return fmt.Errorf("%w: unknown delete option %q", shared.ErrInvalidArgument, f)
			}
		}
		res, err := a.Tasks.BulkDelete(ctx, nil, []models.EntityRef{ref}, flags, tasks.BulkOpts{})
		if err != nil {
			return err
		}
		if item := res.Results[0]; item.Err != nil {
			return item.Err
		}
		r.writePlain("%s\n", ui.Styles().OK("✓ deleted "+ref.String()))
		return r.writePlain("%s\n", formatter.RenderDrawers(a.Drawers.Snapshot()))
	case "drawers":
		return r.writePlain("%s\n", formatter.RenderDrawers(a.Drawers.Snapshot()))
	case "go":
		if arg(0) == "" {
			return fmt.Errorf("%w: route", shared.ErrMissingArgument)
		}
		a.Navigator.Navigate(arg(0))
		return nil
	case "back":
		_, err := a.Navigator.Back()
		return err
	case "forward":
		_, err := a.Navigator.Forward()
		return err
	case "where":
		entries := a.Navigator.Entries()
		for i, e := range entries {
			marker := " "
			if i == a.Navigator.Position() {
				marker = "*"
			}
			r.writePlain("%s %d %s\n", marker, i, e)
		}
		return nil
	case "cache":
		return r.writePlain("%s", formatter.RenderCache(a.Cache.Stats(), a.Cache.Entries()))
	case "login":
		if err := a.SignIn(ctx, arg(0), arg(1)); err != nil {
			return err
		}
		return r.writePlain("%s\n", ui.Styles().OK("✓ signed in as "+a.Session.UserID()))
	case "logout":
		if err := a.SignOut(ctx); err != nil {
			return err
		}
		return r.writePlain("%s\n", ui.Styles().OK("✓ signed out"))
	default:
		return fmt.Errorf("%w: unknown command %q (try help)", shared.ErrInvalidArgument, name)
	}
}

func (r *Runner) printResult(data []byte, cached bool) error {
	if cached {
		r.writePlain("%s\n", ui.Styles().Help("(cached)"))
	}
	return r.writePlain("%s\n", formatter.IndentJSON(data))
}
