package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/twigapp/twig/internal/core/outline"
	"github.com/twigapp/twig/internal/core/validate"
	"github.com/twigapp/twig/internal/twig"
	"github.com/twigapp/twig/pkg/iojson"
)

// itemIDArg reads the positional item id at pos, rejecting malformed ids
// before they reach the outline.
func itemIDArg(c *cli.Command, pos int) (string, error) {
	id := c.Args().Get(pos)
	if err := validate.ItemIDField("id", id); err != nil {
		return "", err
	}
	return id, nil
}

// itemDoc is the portable JSON shape for export/import: a nested outline
// without ids or sync metadata.
type itemDoc struct {
	Text     string    `json:"text"`
	State    string    `json:"state,omitempty"`
	Tag      *int      `json:"tag,omitempty"`
	Children []itemDoc `json:"children,omitempty"`
}

// ItemCmd implements the twig item command group.
type ItemCmd struct {
	flags *Flags
	app   *twig.App

	// add flags
	addParent   string
	addPosition int

	// tag flags
	tagValue int

	// mv flags
	mvParent   string
	mvPosition int

	// ls flags
	lsAll bool

	// import flags
	importParent string
	importReader iojson.FileReader[itemDoc]
}

// NewItemCmd creates a new item command.
func NewItemCmd(flags *Flags, app *twig.App) *ItemCmd {
	return &ItemCmd{flags: flags, app: app}
}

// Register adds the item command to the application.
func (cmd *ItemCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "item",
		Usage: "Manage outline items",
		Description: `Item commands for working with the outline tree.

Items form a single tree. Every item has text, an optional lifecycle state
(in-progress, done, trashed), and an optional color tag (0-6).

Examples:
  twig item ls                              # show the outline
  twig item add "buy milk"                  # add under the root
  twig item add --parent <id> "2% kind"     # add under an item
  twig item done <id>                       # mark done
  twig item rm <id>                         # remove an item and its subtree`,
		Commands: []*cli.Command{
			cmd.lsCmd(),
			cmd.addCmd(),
			cmd.editCmd(),
			cmd.doneCmd(),
			cmd.stateCmd(),
			cmd.tagCmd(),
			cmd.mvCmd(),
			cmd.rmCmd(),
			cmd.exportCmd(),
			cmd.importCmd(),
		},
	})

	return app
}

func (cmd *ItemCmd) lsCmd() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "Show the outline",
		UsageText: "twig item ls [--all]",
		Description: `Prints the outline as an indented tree with ids.

Trashed items are hidden unless --all is given.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "all",
				Aliases:     []string{"a"},
				Usage:       "include trashed items",
				Destination: &cmd.lsAll,
			},
		},
		Action: cmd.runLs,
	}
}

func (cmd *ItemCmd) addCmd() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Add a new item",
		UsageText: "twig item add [--parent <id>] [--at <pos>] <text>",
		Description: `Adds an item under the root, or under --parent.

Examples:
  twig item add "groceries"
  twig item add --parent 4f2c... "buy milk"
  twig item add --at 0 "most important"`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "parent",
				Aliases:     []string{"p"},
				Usage:       "parent item id (defaults to the root)",
				Destination: &cmd.addParent,
			},
			&cli.IntFlag{
				Name:        "at",
				Usage:       "position among siblings (defaults to last)",
				Value:       -1,
				Destination: &cmd.addPosition,
			},
		},
		Action: cmd.runAdd,
	}
}

func (cmd *ItemCmd) editCmd() *cli.Command {
	return &cli.Command{
		Name:          "edit",
		Usage:         "Change an item's text",
		UsageText:     "twig item edit <id> <text>",
		ShellComplete: ItemIDCompleter(cmd.app),
		Action:        cmd.runEdit,
	}
}

func (cmd *ItemCmd) doneCmd() *cli.Command {
	return &cli.Command{
		Name:          "done",
		Usage:         "Mark an item done",
		UsageText:     "twig item done <id>",
		ShellComplete: ItemIDCompleter(cmd.app),
		Action: func(ctx context.Context, c *cli.Command) error {
			return cmd.runSetState(ctx, c, outline.StateDone)
		},
	}
}

func (cmd *ItemCmd) stateCmd() *cli.Command {
	return &cli.Command{
		Name:          "state",
		Usage:         "Set an item's state",
		UsageText:     "twig item state <id> <none|in-progress|done|trashed>",
		ShellComplete: ItemIDCompleter(cmd.app),
		Action:        cmd.runState,
	}
}

func (cmd *ItemCmd) tagCmd() *cli.Command {
	return &cli.Command{
		Name:      "tag",
		Usage:     "Set an item's color tag",
		UsageText: "twig item tag [--value <0-6|-1>] <id>",
		Description: `Sets the item's color tag. Tags run 0 through 6; -1 clears the tag.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "value",
				Aliases:     []string{"v"},
				Usage:       "tag value (0-6, -1 to clear)",
				Value:       int(outline.TagNone),
				Destination: &cmd.tagValue,
			},
		},
		ShellComplete: ItemIDCompleter(cmd.app),
		Action:        cmd.runTag,
	}
}

func (cmd *ItemCmd) mvCmd() *cli.Command {
	return &cli.Command{
		Name:      "mv",
		Usage:     "Move an item",
		UsageText: "twig item mv [--parent <id>] [--at <pos>] <id>",
		Description: `Moves an item among its siblings, or under a new parent.

Examples:
  twig item mv --at 0 <id>                 # first among current siblings
  twig item mv --parent <other> <id>       # reparent, appended last`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "parent",
				Aliases:     []string{"p"},
				Usage:       "new parent item id (defaults to current parent)",
				Destination: &cmd.mvParent,
			},
			&cli.IntFlag{
				Name:        "at",
				Usage:       "position among siblings (defaults to last)",
				Value:       -1,
				Destination: &cmd.mvPosition,
			},
		},
		ShellComplete: ItemIDCompleter(cmd.app),
		Action:        cmd.runMv,
	}
}

func (cmd *ItemCmd) rmCmd() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "Remove an item and its subtree",
		UsageText: "twig item rm <id>",
		Description: `Removes an item and everything under it.

The removal can be reverted later with 'twig undo'.`,
		ShellComplete: ItemIDCompleter(cmd.app),
		Action:        cmd.runRm,
	}
}

func (cmd *ItemCmd) exportCmd() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export a subtree as JSON",
		UsageText: "twig item export [<id>]",
		Description: `Writes the item and everything under it as a nested JSON document.

Without an id the whole outline is exported. The document carries no ids or
sync metadata, so it can be imported into any outline.`,
		ShellComplete: ItemIDCompleter(cmd.app),
		Action:        cmd.runExport,
	}
}

func (cmd *ItemCmd) importCmd() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a JSON subtree",
		UsageText: "twig item import [--parent <id>] [-f <file>]",
		Description: `Reads a document produced by 'twig item export' and adds its items
under the root, or under --parent. New ids are assigned on import.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "parent",
				Aliases:     []string{"p"},
				Usage:       "parent item id (defaults to the root)",
				Destination: &cmd.importParent,
			},
			cmd.importReader.Flag(),
		},
		Action: cmd.runImport,
	}
}

func (cmd *ItemCmd) runLs(ctx context.Context, c *cli.Command) error {
	root := cmd.app.Outline.Root()
	w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)

	var print func(n *outline.Node, depth int)
	print = func(n *outline.Node, depth int) {
		if !cmd.lsAll && n.Data.State == outline.StateTrashed {
			return
		}
		marker := " "
		switch n.Data.State {
		case outline.StateInProgress:
			marker = "~"
		case outline.StateDone:
			marker = "x"
		case outline.StateTrashed:
			marker = "-"
		}
		tag := ""
		if n.Data.Tag != outline.TagNone {
			tag = fmt.Sprintf("#%d", n.Data.Tag)
		}
		_, _ = fmt.Fprintf(w, "%s[%s] %s\t%s\t%s\n", strings.Repeat("  ", depth), marker, n.Data.Text, tag, n.ID)
		for _, child := range n.Children() {
			print(child, depth+1)
		}
	}
	print(root, 0)

	return w.Flush()
}

func (cmd *ItemCmd) runAdd(ctx context.Context, c *cli.Command) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: twig item add <text>")
	}

	node, err := cmd.app.Outline.Add(ctx, cmd.addParent, strings.Join(c.Args().Slice(), " "), cmd.addPosition)
	if err != nil {
		return fmt.Errorf("add item: %w", err)
	}

	_, _ = fmt.Fprintln(c.Root().Writer, node.ID)
	return nil
}

func (cmd *ItemCmd) runEdit(ctx context.Context, c *cli.Command) error {
	if c.NArg() < 2 {
		return fmt.Errorf("usage: twig item edit <id> <text>")
	}

	id, err := itemIDArg(c, 0)
	if err != nil {
		return err
	}
	text := strings.Join(c.Args().Slice()[1:], " ")
	if err := cmd.app.Outline.SetText(ctx, id, text); err != nil {
		return fmt.Errorf("edit item: %w", err)
	}

	_, _ = fmt.Fprintln(c.Root().Writer, "updated")
	return nil
}

func (cmd *ItemCmd) runSetState(ctx context.Context, c *cli.Command, state outline.State) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: twig item %s <id>", c.Name)
	}

	id, err := itemIDArg(c, 0)
	if err != nil {
		return err
	}
	if err := cmd.app.Outline.SetState(ctx, id, state); err != nil {
		return fmt.Errorf("set state: %w", err)
	}

	_, _ = fmt.Fprintln(c.Root().Writer, state.String())
	return nil
}

func (cmd *ItemCmd) runState(ctx context.Context, c *cli.Command) error {
	if c.NArg() < 2 {
		return fmt.Errorf("usage: twig item state <id> <none|in-progress|done|trashed>")
	}

	id, err := itemIDArg(c, 0)
	if err != nil {
		return err
	}
	state, err := parseState(c.Args().Get(1))
	if err != nil {
		return err
	}
	if err := cmd.app.Outline.SetState(ctx, id, state); err != nil {
		return fmt.Errorf("set state: %w", err)
	}

	_, _ = fmt.Fprintln(c.Root().Writer, state.String())
	return nil
}

func (cmd *ItemCmd) runTag(ctx context.Context, c *cli.Command) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: twig item tag <id>")
	}

	id, err := itemIDArg(c, 0)
	if err != nil {
		return err
	}
	if err := cmd.app.Outline.SetTag(ctx, id, outline.Tag(cmd.tagValue)); err != nil {
		return fmt.Errorf("set tag: %w", err)
	}

	_, _ = fmt.Fprintln(c.Root().Writer, "tagged")
	return nil
}

func (cmd *ItemCmd) runMv(ctx context.Context, c *cli.Command) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: twig item mv <id>")
	}

	id, err := itemIDArg(c, 0)
	if err != nil {
		return err
	}
	if err := cmd.app.Outline.Move(ctx, id, cmd.mvParent, cmd.mvPosition); err != nil {
		return fmt.Errorf("move item: %w", err)
	}

	_, _ = fmt.Fprintln(c.Root().Writer, "moved")
	return nil
}

func (cmd *ItemCmd) runRm(ctx context.Context, c *cli.Command) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: twig item rm <id>")
	}

	id, err := itemIDArg(c, 0)
	if err != nil {
		return err
	}
	if err := cmd.app.Outline.Remove(ctx, id); err != nil {
		return fmt.Errorf("remove item: %w", err)
	}

	_, _ = fmt.Fprintln(c.Root().Writer, "removed")
	return nil
}

func (cmd *ItemCmd) runExport(ctx context.Context, c *cli.Command) error {
	node := cmd.app.Outline.Root()
	if c.NArg() > 0 {
		id, err := itemIDArg(c, 0)
		if err != nil {
			return err
		}
		if node, err = cmd.app.Outline.Lookup(id); err != nil {
			return fmt.Errorf("export item: %w", err)
		}
	}
	return iojson.Write(c.Root().Writer, docFromNode(node))
}

func (cmd *ItemCmd) runImport(ctx context.Context, c *cli.Command) error {
	doc, err := cmd.importReader.Read()
	if err != nil {
		return fmt.Errorf("import item: %w", err)
	}

	node, err := cmd.importDoc(ctx, cmd.importParent, doc)
	if err != nil {
		return fmt.Errorf("import item: %w", err)
	}

	_, _ = fmt.Fprintln(c.Root().Writer, node.ID)
	return nil
}

// importDoc recreates a document subtree through the outline service so every
// new item is persisted and routed through sync.
func (cmd *ItemCmd) importDoc(ctx context.Context, parentID string, doc itemDoc) (*outline.Node, error) {
	node, err := cmd.app.Outline.Add(ctx, parentID, doc.Text, -1)
	if err != nil {
		return nil, err
	}

	if doc.State != "" && doc.State != outline.StateNone.String() {
		state, err := parseState(doc.State)
		if err != nil {
			return nil, err
		}
		if err := cmd.app.Outline.SetState(ctx, node.ID, state); err != nil {
			return nil, err
		}
	}
	if doc.Tag != nil {
		if err := cmd.app.Outline.SetTag(ctx, node.ID, outline.Tag(*doc.Tag)); err != nil {
			return nil, err
		}
	}

	for _, child := range doc.Children {
		if _, err := cmd.importDoc(ctx, node.ID, child); err != nil {
			return nil, err
		}
	}
	return node, nil
}

func docFromNode(n *outline.Node) itemDoc {
	doc := itemDoc{Text: n.Data.Text}
	if n.Data.State != outline.StateNone {
		doc.State = n.Data.State.String()
	}
	if n.Data.Tag != outline.TagNone {
		tag := int(n.Data.Tag)
		doc.Tag = &tag
	}
	for _, child := range n.Children() {
		doc.Children = append(doc.Children, docFromNode(child))
	}
	return doc
}

func parseState(s string) (outline.State, error) {
	switch s {
	case "none":
		return outline.StateNone, nil
	case "in-progress":
		return outline.StateInProgress, nil
	case "done":
		return outline.StateDone, nil
	case "trashed":
		return outline.StateTrashed, nil
	default:
		return outline.StateNone, fmt.Errorf("invalid state %q: must be none, in-progress, done, or trashed", s)
	}
}
