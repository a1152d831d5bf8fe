// Package commands defines all Cobra CLI commands for the ragchat binary.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragchat-go/internal/audit"
	"github.com/54b3r/ragchat-go/internal/config"
	"github.com/54b3r/ragchat-go/internal/logging"
)

// app carries the state resolved once in PersistentPreRunE and shared by
// every subcommand.
type app struct {
	// configPath holds the --config flag value.
	configPath string
	// cfg is the resolved configuration.
	cfg *config.Config
	// log is the logger built from cfg.Logging.
	log *slog.Logger
}

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "ragchat",
		Short: "ragchat: a chat relay that remembers past conversations",
		Long: `ragchat relays a conversation to a chat model. Before every turn it
recalls earlier messages similar to the new one and places them ahead of
the live history, then stores both sides of the exchange for later recall.

Settings come from defaults, a YAML config file (~/.ragchat/config.yaml),
./.env and the environment, in increasing precedence.
See 'ragchat --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Bootstrap logger until the configured one exists.
			boot := logging.New(config.Default().Logging)

			cfg, path, err := config.Load(a.configPath, boot)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = logging.New(cfg.Logging)
			slog.SetDefault(a.log)

			audit.LogCommandStart(cmd.Context(), a.log, cmd.Name(), path, cfg)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to YAML config file (default: ~/.ragchat/config.yaml)")

	root.AddCommand(
		NewServeCmd(a),
		NewAskCmd(a),
		NewSearchCmd(a),
		NewBackfillCmd(a),
		NewVersionCmd(),
	)

	return root
}
