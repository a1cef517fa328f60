// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
			Sources: cli.EnvVars("REPERTOIRE_CONFIG"),
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level (debug, info, warn, error); overrides log.level",
		},
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: text or json",
		Value:   "text",
	}
}

func workerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Concurrent requests",
			Value: 4,
		},
		&cli.FloatFlag{
			Name:  "rate",
			Usage: "Requests per second",
			Value: 5,
		},
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create config.toml if missing, initialize the database and run migrations",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "rollback",
				Usage: "Roll back the most recent migration after migrating",
			},
		},
		Action: r.Setup,
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in and persist the bearer token",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "email",
						Aliases:  []string{"e"},
						Usage:    "Account email",
						Required: true,
						Sources:  cli.EnvVars("REPERTOIRE_EMAIL"),
					},
					&cli.StringFlag{
						Name:     "password",
						Aliases:  []string{"p"},
						Usage:    "Account password",
						Required: true,
						Sources:  cli.EnvVars("REPERTOIRE_PASSWORD"),
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "logout",
				Usage:  "Sign out and clear the persisted token",
				Action: r.AuthLogout,
			},
			{
				Name:   "status",
				Usage:  "Show whether a session is active",
				Flags:  []cli.Flag{formatFlag()},
				Action: r.AuthStatus,
			},
		},
	}
}

// apiCommand handles raw calls through the request pipeline
func apiCommand(r *Runner) *cli.Command {
	bodyFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "JSON body to send",
			},
			&cli.BoolFlag{
				Name:  "public",
				Usage: "Send without the bearer token",
			},
			formatFlag(),
		}
	}
	method := func(name, usage string) *cli.Command {
		return &cli.Command{
			Name:  name,
			Usage: usage,
			Arguments: []cli.Argument{
				&cli.StringArg{Name: "path"},
			},
			Flags:  bodyFlags(),
			Action: r.APIRequest,
		}
	}
	return &cli.Command{
		Name:  "api",
		Usage: "Send a raw request through the authenticated pipeline",
		Commands: []*cli.Command{
			method("get", "GET a path, prints the response"),
			method("post", "POST a JSON body"),
			method("put", "PUT a JSON body"),
			method("patch", "PATCH a JSON body"),
			method("delete", "DELETE a path"),
		},
	}
}

// libraryCommands handles repertoire reads and deletes
func libraryCommands(r *Runner) []*cli.Command {
	return []*cli.Command{
		{
			Name:      "search",
			Usage:     "Search the repertoire (cached until invalidated)",
			ArgsUsage: "<query>",
			Flags:     []cli.Flag{formatFlag()},
			Action:    r.Search,
		},
		{
			Name:      "list",
			Usage:     "List artists, albums, songs or playlists",
			ArgsUsage: "<kind>",
			Flags:     []cli.Flag{formatFlag()},
			Action:    r.List,
		},
		{
			Name:      "get",
			Usage:     "Read one entity",
			ArgsUsage: "<kind> <id>",
			Flags:     []cli.Flag{formatFlag()},
			Action:    r.Get,
		},
		{
			Name:      "delete",
			Aliases:   []string{"rm"},
			Usage:     "Delete one or more entities of a kind",
			ArgsUsage: "<kind> <id>...",
			Flags: append([]cli.Flag{
				&cli.BoolFlag{
					Name:  "with-albums",
					Usage: "Also delete the artist's albums",
				},
				&cli.BoolFlag{
					Name:  "with-songs",
					Usage: "Also delete the artist's or album's songs",
				},
				&cli.StringSliceFlag{
					Name:  "open",
					Usage: "Drawer to show before deleting, as kind=id (repeatable)",
				},
			}, workerFlags()...),
			Action: r.Delete,
		},
		{
			Name:      "prefetch",
			Usage:     "Warm the cache with entity collections",
			ArgsUsage: "[kind]...",
			Flags:     workerFlags(),
			Action:    r.Prefetch,
		},
	}
}

// cacheCommand shows the query cache of a short session
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Warm the cache, optionally invalidate tags, and show its entries",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "query",
				Usage: "Search query to run first (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "invalidate",
				Usage: "Tag to invalidate after reading (repeatable)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json or csv",
				Value:   "text",
			},
		},
		Action: r.Cache,
	}
}

// historyCommand shows the session and its audit trail
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show the session gating state and recent session events",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of events",
				Value: 20,
			},
			formatFlag(),
		},
		Action: r.History,
	}
}

// watchCommand keeps the realtime subscription open
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Subscribe to search invalidations until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Serve /metrics, /status and /healthz on this address",
			},
		},
		Action: r.Watch,
	}
}

// shellCommand starts the interactive shell
func shellCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "shell",
		Aliases: []string{"sh"},
		Usage:   "Interactive session with navigation history, drawers and realtime invalidation",
		Action:  r.Shell,
	}
}
