// Package commands defines all Cobra CLI commands for the pfai binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/pfai-go/internal/audit"
	"github.com/54b3r/pfai-go/internal/config"
	"github.com/54b3r/pfai-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pfai",
		Short: "PF-AI — your portfolio assistant powered by LLMs",
		Long: `PF-AI is a local-first AI assistant for investment portfolio data.

It answers natural language questions about holdings, transaction history,
and portfolio valuation, using tool calls against your portfolio dataset.
Tool results are cached, compressed to fit the model's context budget, and
the conversation survives context-limit failures through automatic session
recreation with continuity.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.pfai/config.yaml).
See 'pfai --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.pfai/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewChatCmd(),
		NewServeCmd(),
		NewCacheCmd(),
		NewVersionCmd(),
	)

	return root
}
