package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/twigapp/twig/pkg/iojson"
)

// ConfigCmd implements the twig config command group.
type ConfigCmd struct {
	flags  *Flags
	format string
}

// NewConfigCmd creates a new config command.
func NewConfigCmd(flags *Flags) *ConfigCmd {
	return &ConfigCmd{flags: flags}
}

// Register adds the config command to the application.
func (cmd *ConfigCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Commands: []*cli.Command{
			{
				Name:        "validate",
				Usage:       "Validate the configuration file",
				UsageText:   "twig config validate [options]",
				Description: "Validates the resolved configuration: remote URL, batch size, timeouts, and pool limits.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "format",
						Usage:       "output format (text, json)",
						Value:       "text",
						Destination: &cmd.format,
					},
				},
				Action: cmd.runValidate,
			},
			{
				Name:        "show",
				Usage:       "Print the resolved configuration",
				UsageText:   "twig config show",
				Description: "Prints the effective configuration after defaults and the config file are merged.",
				Action:      cmd.runShow,
			},
		},
	})

	return app
}

func (cmd *ConfigCmd) runValidate(ctx context.Context, c *cli.Command) error {
	err := cmd.flags.Config.Validate()

	if cmd.format == "json" {
		out := struct {
			Valid      bool   `json:"valid"`
			Error      string `json:"error,omitempty"`
			ConfigPath string `json:"config_path"`
			DataDir    string `json:"data_dir"`
		}{
			Valid:      err == nil,
			ConfigPath: cmd.flags.ConfigPath,
			DataDir:    cmd.flags.Config.DataDir,
		}
		if err != nil {
			out.Error = err.Error()
		}
		return iojson.Write(c.Root().Writer, out)
	}

	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	_, _ = fmt.Fprintln(c.Root().Writer, "configuration valid")
	_, _ = fmt.Fprintf(c.Root().Writer, "config file: %s\n", cmd.flags.ConfigPath)
	_, _ = fmt.Fprintf(c.Root().Writer, "data dir:    %s\n", cmd.flags.Config.DataDir)
	return nil
}

func (cmd *ConfigCmd) runShow(ctx context.Context, c *cli.Command) error {
	// Never print the auth token.
	cfg := *cmd.flags.Config
	if cfg.Remote.AuthToken != "" {
		cfg.Remote.AuthToken = "(set)"
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, _ = c.Root().Writer.Write(data)
	return nil
}
