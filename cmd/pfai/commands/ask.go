package commands

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/pfai-go/internal/logging"
)

// NewAskCmd constructs the `pfai ask` command, which sends a single natural
// language question to the assistant and streams the response to stdout.
func NewAskCmd() *cobra.Command {
	var dataPath string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the portfolio assistant a question",
		Long: `Ask the PF-AI assistant a natural language question about your portfolio.

The assistant queries your holdings, transaction history, and valuation data
through tool calls and answers grounded in the results.

Examples:
  pfai ask "what are my US equity positions?"
  pfai ask "show transactions over $1000 since March"
  pfai ask --data ./portfolio.json "when was my portfolio at its highest value?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			data, err := loadDataset(dataPath, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			store, closeStore := openCheckpoints(log)
			defer closeStore()

			mgr, _, _, err := buildManager(ctx, data, asStore(store), prometheus.DefaultRegisterer, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer mgr.Close()

			_, err = mgr.SendStream(ctx, args[0], func(token string) error {
				_, werr := fmt.Fprint(os.Stdout, token)
				return werr
			})
			if err != nil {
				return err //nolint:wrapcheck // CLI entry point — error goes directly to cobra
			}
			fmt.Fprintln(os.Stdout)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "Path to a portfolio dataset JSON file (default: bundled sample)")

	return cmd
}
