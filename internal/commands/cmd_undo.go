package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/twigapp/twig/internal/twig"
)

// UndoCmd implements the twig undo command.
type UndoCmd struct {
	flags *Flags
	app   *twig.App
}

// NewUndoCmd creates a new undo command.
func NewUndoCmd(flags *Flags, app *twig.App) *UndoCmd {
	return &UndoCmd{flags: flags, app: app}
}

// Register adds the undo command to the application.
func (cmd *UndoCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "undo",
		Usage:     "Restore the most recently removed items",
		UsageText: "twig undo",
		Description: `Reverts the most recent 'twig item rm'.

Removal batches are restored newest first. The removal stack is persisted, so
removals from earlier invocations can be undone too.`,
		Action: cmd.run,
	})

	return app
}

func (cmd *UndoCmd) run(ctx context.Context, c *cli.Command) error {
	restored, err := cmd.app.Outline.Undo(ctx)
	if err != nil {
		return fmt.Errorf("undo: %w", err)
	}
	if len(restored) == 0 {
		_, _ = fmt.Fprintln(c.Root().Writer, "nothing to undo")
		return nil
	}

	for _, node := range restored {
		_, _ = fmt.Fprintf(c.Root().Writer, "restored %s (%s)\n", node.Data.Text, node.ID)
	}
	return nil
}
