package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/repertoire/internal/cache"
	"github.com/desertthunder/repertoire/internal/formatter"
	"github.com/desertthunder/repertoire/internal/library"
	"github.com/desertthunder/repertoire/internal/models"
	"github.com/desertthunder/repertoire/internal/services"
	"github.com/desertthunder/repertoire/internal/shared"
	"github.com/urfave/cli/v3"
)

// APIRequest sends a raw request through the pipeline. The HTTP method is the subcommand name.
//
// Writes to an entity path invalidate the affected tags; a JSON body returned by PUT or PATCH
// becomes the cached read of that entity.
func (r *Runner) APIRequest(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	path, rawQuery, _ := strings.Cut(path, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return fmt.Errorf("%w: query: %v", shared.ErrInvalidInput, err)
	}

	req := services.Request{
		Method: strings.ToUpper(cmd.Name),
		Path:   path,
		Query:  query,
		Public: cmd.Bool("public"),
	}
	if data := cmd.String("data"); data != "" {
		if !json.Valid([]byte(data)) {
			return fmt.Errorf("%w: data is not valid JSON", shared.ErrInvalidInput)
		}
		req.Body = json.RawMessage(data)
	}

	a, err := r.open(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer r.close()

	ref, entity := a.Library.Paths().Match(req.Path)
	writeThrough := false
	if entity {
		switch req.Method {
		case http.MethodDelete:
			req.Invalidates = library.InvalidatedBy(ref.Kind, models.FlagsFromQuery(query))
		case http.MethodPut, http.MethodPatch:
			req.Invalidates = []string{library.TagFor(ref.Kind), cache.TagSearch}
			writeThrough = true
		}
	}

	r.logger.Info("request", "method", req.Method, "path", req.Path)
	resp, err := a.Pipeline.Do(ctx, req)
	if err == nil && writeThrough && resp.IsJSON {
		if rerr := a.Library.Remember(ref, resp.Body); rerr != nil {
			r.logger.Debug("write-through skipped", "error", rerr)
		}
	}
	if werr := formatter.WriteResponse(r.output, resp, format); werr != nil {
		return werr
	}
	return err
}
