package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/twigapp/twig/internal/commands"
	"github.com/twigapp/twig/internal/core/config"
	"github.com/twigapp/twig/internal/core/dialog"
	"github.com/twigapp/twig/internal/core/remote"
	"github.com/twigapp/twig/internal/core/sync"
	"github.com/twigapp/twig/internal/data/db"
	"github.com/twigapp/twig/internal/data/jsonfile"
	"github.com/twigapp/twig/internal/data/stores"
	"github.com/twigapp/twig/internal/twig"
	"github.com/twigapp/twig/pkg/logutils"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	// When installed via `go install module@version`, init() populates
	// these from runtime/debug.BuildInfo instead.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	v, c, d := version, commit, date

	// When installed via `go install module@version`, ldflags aren't set
	// so version remains "dev". Fall back to runtime/debug.BuildInfo which
	// Go populates automatically with the module version and VCS metadata.
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					c = s.Value
				case "vcs.time":
					d = s.Value
				}
			}
		}
	}

	short := c
	if len(c) > 7 {
		short = c[:7]
	}

	return fmt.Sprintf("%s (%s) %s", v, short, d)
}

func main() {
	ctx := context.Background()

	var (
		logCloser func()
		twigApp   = &twig.App{}
		database  *db.DB
		engine    *sync.Engine
	)

	flags := &commands.Flags{}

	app := &cli.Command{
		Name:      "twig",
		Usage:     "Keep an outline of nested items, synced across devices",
		UsageText: "twig [global options] command [command options]",
		Description: `Twig keeps your items in one ordered tree: nested lists of tasks and notes
with states and color tags.

The outline lives in a local database and optionally syncs through a remote
record store, so edits made offline reconcile when connectivity returns.

Run 'twig item ls' to see the outline.
Run 'twig sync enable' to start syncing with the configured remote.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("TWIG_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to <data-dir>/twig.log)",
				Sources:     cli.EnvVars("TWIG_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("TWIG_CONFIG"),
				Value:       commands.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("TWIG_DATA_DIR"),
				Value:       commands.DefaultDataDir(),
				Destination: &flags.DataDir,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			// Always log to a file; use explicit path or default to <datadir>/twig.log
			logFile := flags.LogFile
			if logFile == "" {
				logFile = filepath.Join(flags.DataDir, "twig.log")
			}

			logger, closer, err := logutils.New(flags.LogLevel, logFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			logCloser = closer

			cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.Config = cfg

			// Open database connection
			dbOpts := db.OpenOptions{
				MaxOpenConns: cfg.Database.MaxOpenConns,
				MaxIdleConns: cfg.Database.MaxIdleConns,
				BusyTimeout:  cfg.Database.BusyTimeout,
			}
			database, err = db.Open(cfg.DataDir, dbOpts)
			if err != nil && stores.IsCorruptionError(err) {
				log.Error().Err(err).Msg("database corrupt, backing it up and starting fresh")
				if recErr := stores.RecoverFromCorruption(cfg.DataDir); recErr != nil {
					return ctx, fmt.Errorf("recover database: %w", recErr)
				}
				database, err = db.Open(cfg.DataDir, dbOpts)
			}
			if err != nil {
				return ctx, fmt.Errorf("open database: %w", err)
			}

			// Create stores
			recordStore := stores.NewRecordStore(database)
			stateStore := stores.NewStateStore(database)

			changeLogStore, err := jsonfile.NewChangeLogStore(cfg.ChangeLogDir())
			if err != nil {
				return ctx, fmt.Errorf("open change log: %w", err)
			}
			changeLog, err := sync.NewChangeLog(changeLogStore)
			if err != nil {
				return ctx, fmt.Errorf("load change log: %w", err)
			}

			undoStore, err := jsonfile.NewUndoStore(cfg.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("open undo store: %w", err)
			}

			// Conflict prompts read the --resolve flag lazily: the flag lives
			// on subcommands and is only parsed after this hook runs.
			asker := dialog.AskerFunc(func(ctx context.Context, q dialog.Question) (dialog.Answer, error) {
				a, err := commands.NewAsker(flags.Resolve)
				if err != nil {
					return dialog.Answer{}, err
				}
				return a.Pose(ctx, q)
			})

			remoteSvc := remote.NewHTTPService(remote.HTTPConfig{
				BaseURL:   cfg.Remote.BaseURL,
				AuthToken: cfg.Remote.AuthToken,
				BatchSize: cfg.Remote.BatchSize,
				Timeout:   cfg.Remote.Timeout,
			}, log.Logger)

			// Reconstruct the live tree from local storage
			root, index, err := twig.LoadOutline(ctx, recordStore, stateStore, log.Logger)
			if err != nil {
				return ctx, fmt.Errorf("load outline: %w", err)
			}

			engine = sync.NewEngine(sync.Config{
				Remote:    remoteSvc,
				Records:   recordStore,
				State:     stateStore,
				ChangeLog: changeLog,
				Resolver:  sync.NewResolver(asker, log.Logger),
				Asker:     asker,
				Logger:    log.Logger,
			})
			if err := engine.Start(ctx, root, index); err != nil {
				return ctx, fmt.Errorf("start sync engine: %w", err)
			}

			// A launch resync may have rebuilt the tree
			svc := twig.NewOutlineService(engine.Root(), index, recordStore, engine, undoStore, log.Logger)

			// Populate the pre-allocated App struct (commands already hold a pointer to it)
			*twigApp = *twig.NewApp(svc, engine, cfg, database, index)

			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			// Stop the sync engine's dispatch goroutine
			if engine != nil {
				engine.Close()
			}

			// Close database connection
			if database != nil {
				if err := database.Close(); err != nil {
					log.Error().Err(err).Msg("failed to close database")
					return err
				}
			}

			// Close log file
			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	app.EnableShellCompletion = true

	app = commands.NewItemCmd(flags, twigApp).Register(app)
	app = commands.NewSyncCmd(flags, twigApp).Register(app)
	app = commands.NewUndoCmd(flags, twigApp).Register(app)
	app = commands.NewConfigCmd(flags).Register(app)

	app.Action = func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() > 0 {
			return fmt.Errorf("unknown command %q. Run 'twig --help' for usage", c.Args().First())
		}
		return cli.ShowAppHelp(c)
	}

	exitCode := 0
	runErr := app.Run(ctx, os.Args)
	if runErr != nil {
		fmt.Println()
		fmt.Println(runErr.Error())
		exitCode = 1
	}

	os.Exit(exitCode)
}
