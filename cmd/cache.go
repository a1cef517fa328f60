package main

import (
	"context"

	"github.com/desertthunder/repertoire/internal/formatter"
	"github.com/urfave/cli/v3"
)

// Cache runs the requested searches, applies invalidations and prints the cache.
//
// The cache lives in memory, so this only shows what one invocation produced.
func (r *Runner) Cache(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	a, err := r.open(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer r.close()

	for _, q := range cmd.StringSlice("query") {
		if _, err := a.Library.Search(ctx, q, nil); err != nil {
			r.logger.Warn("search failed", "query", q, "error", err)
		}
	}
	if tags := cmd.StringSlice("invalidate"); len(tags) > 0 {
		marked := a.Cache.InvalidateTags(tags...)
		r.logger.Info("invalidated", "tags", tags, "marked", marked)
	}

	entries := a.Cache.Entries()
	switch format {
	case formatter.JSON:
		return r.writeJSON(map[string]any{
			"stats":   a.Cache.Stats(),
			"entries": formatter.EntryRows(entries),
		}, true)
	case formatter.CSV:
		data, err := formatter.ExportEntriesCSV(entries)
		if err != nil {
			return err
		}
		_, err = r.output.Write(data)
		return err
	default:
		return r.writePlain("%s", formatter.RenderCache(a.Cache.Stats(), entries))
	}
}
