package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/twigapp/twig/internal/core/sync"
	"github.com/twigapp/twig/internal/data/jsonfile"
	"github.com/twigapp/twig/internal/twig"
)

// SyncCmd implements the twig sync command group.
type SyncCmd struct {
	flags *Flags
	app   *twig.App

	// watch flags
	watchInterval time.Duration
}

// NewSyncCmd creates a new sync command.
func NewSyncCmd(flags *Flags, app *twig.App) *SyncCmd {
	return &SyncCmd{flags: flags, app: app, watchInterval: 5 * time.Minute}
}

// Register adds the sync command to the application.
func (cmd *SyncCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "sync",
		Usage: "Manage synchronization with the remote record store",
		Description: `Sync commands control reconciliation with the configured remote.

Requires a remote.base_url in the config file. While sync is disabled or the
remote is unreachable, edits accumulate in a local change log and are
transmitted on the next successful sync.

Examples:
  twig sync status
  twig sync enable
  twig sync now
  twig sync now --resolve local`,
		Commands: []*cli.Command{
			cmd.statusCmd(),
			cmd.enableCmd(),
			cmd.disableCmd(),
			cmd.nowCmd(),
			cmd.watchCmd(),
		},
	})

	return app
}

func (cmd *SyncCmd) statusCmd() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show sync status",
		UsageText: "twig sync status",
		Action:    cmd.runStatus,
	}
}

func (cmd *SyncCmd) enableCmd() *cli.Command {
	return &cli.Command{
		Name:      "enable",
		Usage:     "Enable sync and perform a full reconcile",
		UsageText: "twig sync enable [--resolve local|remote]",
		Description: `Turns sync on and pushes the whole local outline to the remote.

Edits made while sync was off are not tracked against remote versions, so
enabling always reconciles from scratch.`,
		Flags:  cmd.resolveFlag(),
		Action: cmd.runEnable,
	}
}

func (cmd *SyncCmd) disableCmd() *cli.Command {
	return &cli.Command{
		Name:      "disable",
		Usage:     "Disable sync",
		UsageText: "twig sync disable",
		Action:    cmd.runDisable,
	}
}

func (cmd *SyncCmd) nowCmd() *cli.Command {
	return &cli.Command{
		Name:      "now",
		Usage:     "Reconcile with the remote now",
		UsageText: "twig sync now [--resolve local|remote]",
		Flags:     cmd.resolveFlag(),
		Action:    cmd.runNow,
	}
}

func (cmd *SyncCmd) watchCmd() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Keep reconciling until interrupted",
		UsageText: "twig sync watch [--interval <dur>] [--resolve local|remote]",
		Description: `Runs until interrupted, reconciling on a fixed interval and whenever
another process writes the local database.`,
		Flags: append(cmd.resolveFlag(),
			&cli.DurationFlag{
				Name:        "interval",
				Aliases:     []string{"i"},
				Usage:       "poll interval between reconciles",
				Value:       cmd.watchInterval,
				Destination: &cmd.watchInterval,
			},
		),
		Action: cmd.runWatch,
	}
}

// resolveFlag is shared by the commands that may hit a sync conflict.
func (cmd *SyncCmd) resolveFlag() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "resolve",
			Usage:       "pre-answer conflict prompts: local or remote",
			Destination: &cmd.flags.Resolve,
		},
	}
}

func (cmd *SyncCmd) runStatus(ctx context.Context, c *cli.Command) error {
	out := c.Root().Writer

	if !cmd.app.Config.SyncConfigured() {
		_, _ = fmt.Fprintln(out, "sync: not configured (set remote.base_url in the config file)")
		return nil
	}

	_, _ = fmt.Fprintf(out, "sync: %s\n", cmd.app.Engine.State())
	if pending := cmd.app.Engine.PendingChanges(); pending > 0 {
		_, _ = fmt.Fprintf(out, "pending changes: %d\n", pending)
	}
	return nil
}

func (cmd *SyncCmd) runEnable(ctx context.Context, c *cli.Command) error {
	if !cmd.app.Config.SyncConfigured() {
		return fmt.Errorf("no remote configured: set remote.base_url in the config file")
	}

	if err := cmd.app.Engine.Enable(ctx); err != nil {
		return fmt.Errorf("enable sync: %w", err)
	}

	// The full resync rebuilt the tree.
	cmd.app.Outline.SetRoot(cmd.app.Engine.Root())

	_, _ = fmt.Fprintln(c.Root().Writer, "sync enabled")
	return nil
}

func (cmd *SyncCmd) runDisable(ctx context.Context, c *cli.Command) error {
	if err := cmd.app.Engine.Disable(ctx); err != nil {
		return fmt.Errorf("disable sync: %w", err)
	}

	_, _ = fmt.Fprintln(c.Root().Writer, "sync disabled")
	return nil
}

func (cmd *SyncCmd) runNow(ctx context.Context, c *cli.Command) error {
	if !cmd.app.Config.SyncConfigured() {
		return fmt.Errorf("no remote configured: set remote.base_url in the config file")
	}

	if err := cmd.app.Engine.Resync(ctx); err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	// A full resync may have swapped the root.
	cmd.app.Outline.SetRoot(cmd.app.Engine.Root())

	_, _ = fmt.Fprintln(c.Root().Writer, "synced")
	return nil
}

func (cmd *SyncCmd) runWatch(ctx context.Context, c *cli.Command) error {
	if !cmd.app.Config.SyncConfigured() {
		return fmt.Errorf("no remote configured: set remote.base_url in the config file")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Writes by other twig processes trigger an immediate reconcile. Our own
	// writes land here too and cause one extra reconcile.
	trigger := make(chan struct{}, 1)
	watcher, err := jsonfile.NewDataWatcher(cmd.app.Config.DatabaseFile(), func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}, log.Logger)
	if err != nil {
		return fmt.Errorf("watch database: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	ticker := time.NewTicker(cmd.watchInterval)
	defer ticker.Stop()

	_, _ = fmt.Fprintf(c.Root().Writer, "watching (every %s, ctrl-c to stop)\n", cmd.watchInterval)

	reconcile := func() error {
		if err := cmd.app.Engine.Resync(ctx); err != nil {
			if errors.Is(err, sync.ErrClosed) || cmd.app.Engine.State() == sync.StateDisabled {
				return err
			}
			log.Warn().Err(err).Msg("reconcile failed, will retry")
			return nil
		}
		cmd.app.Outline.SetRoot(cmd.app.Engine.Root())
		return nil
	}

	if err := reconcile(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := reconcile(); err != nil {
				return err
			}
		case <-trigger:
			if err := reconcile(); err != nil {
				return err
			}
		}
	}
}
