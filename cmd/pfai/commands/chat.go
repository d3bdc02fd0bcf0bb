package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/pfai-go/internal/logging"
	"github.com/54b3r/pfai-go/internal/tracing"
)

// NewChatCmd constructs the `pfai chat` command, an interactive REPL over a
// persistent conversation session.
func NewChatCmd() *cobra.Command {
	var dataPath string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session with the portfolio assistant",
		Long: `Start an interactive chat session. The conversation carries context across
turns, survives model context-limit failures through automatic session
recreation, and checkpoints its state so it can be resumed.

In-session commands:
  /stats    show conversation statistics
  /clear    discard the conversation and start a fresh session
  /quit     exit (also: exit, quit, Ctrl-D)

Examples:
  pfai chat
  pfai chat --data ./portfolio.json
  MODEL_PROVIDER=openai pfai chat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Langfuse tracing is opt-in, a no-op when keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			}

			data, err := loadDataset(dataPath, log)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}

			store, closeStore := openCheckpoints(log)
			defer closeStore()

			mgr, _, _, err := buildManager(ctx, data, asStore(store), prometheus.DefaultRegisterer, log)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			defer mgr.Close()

			fmt.Printf("pfai chat — session %s (type /quit to exit)\n", mgr.ID())

			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					fmt.Println()
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}

				switch line {
				case "/quit", "quit", "exit":
					return nil
				case "/clear":
					mgr.ClearHistory(ctx)
					fmt.Printf("conversation cleared — new session %s\n", mgr.ID())
					continue
				case "/stats":
					st := mgr.ConversationStats()
					fmt.Printf("turns: %d  tokens: %d  avg/turn: %d  duration: %s  context: %.0f%%\n",
						st.TotalTurns, st.TotalTokens, st.AverageTokensPerTurn,
						st.Duration.Round(1e9), st.ContextUtilization*100)
					continue
				}

				_, err := mgr.SendStream(ctx, line, func(token string) error {
					_, werr := fmt.Fprint(os.Stdout, token)
					return werr
				})
				fmt.Println()
				if err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
				}
			}
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "Path to a portfolio dataset JSON file (default: bundled sample)")

	return cmd
}
