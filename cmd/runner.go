package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/repertoire/internal/app"
	"github.com/desertthunder/repertoire/internal/realtime"
	"github.com/desertthunder/repertoire/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	transport  realtime.TransportFactory
	logger     *log.Logger
	output     io.Writer
	errOut     io.Writer
	input      io.Reader
	app        *app.App
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	// Config skips loading --config when set.
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Transport  realtime.TransportFactory
	Logger     *log.Logger
	Output     io.Writer
	ErrOutput  io.Writer
	Input      io.Reader
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.ErrOutput == nil {
		opts.ErrOutput = os.Stderr
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		transport:  opts.Transport,
		logger:     opts.Logger,
		output:     opts.Output,
		errOut:     opts.ErrOutput,
		input:      opts.Input,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, apiCommand, cacheCommand, historyCommand, watchCommand, shellCommand,
	} {
		commands = append(commands, fn(r))
	}
	return append(commands, libraryCommands(r)...)
}

// loadConfig resolves the configuration: an injected config, the --config file when it exists,
// or the embedded defaults.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	if r.config != nil {
		return r.config, nil
	}

	path := r.configPath
	if path == "" && cmd != nil {
		path = cmd.String("config")
	}

	config := shared.DefaultConfig()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := shared.LoadConfig(path)
			if err != nil {
				return nil, err
			}
			config = loaded
		} else {
			r.logger.Debug("config file not found, using defaults", "path", path)
		}
	}

	level := config.Log.Level
	if cmd != nil && cmd.String("log-level") != "" {
		level = cmd.String("log-level")
	}
	if err := shared.ApplyLogLevel(r.logger, level); err != nil {
		return nil, fmt.Errorf("%w: log level %q", err, level)
	}

	r.config = config
	return config, nil
}

// open builds the application once per process.
func (r *Runner) open(ctx context.Context, cmd *cli.Command, echo bool) (*app.App, error) {
	if r.app != nil {
		return r.app, nil
	}
	config, err := r.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	opts := app.Options{
		Config:     config,
		Logger:     r.logger,
		Err:        r.errOut,
		HTTPClient: r.httpClient,
		Transport:  r.transport,
	}
	if echo {
		opts.Out = r.output
	}

	a, err := app.New(ctx, opts)
	if err != nil {
		return nil, err
	}
	r.app = a
	return a, nil
}

func (r *Runner) close() {
	if r.app == nil {
		return
	}
	if err := r.app.Close(); err != nil {
		r.logger.Warn("failed to close cleanly", "error", err)
	}
	r.app = nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
