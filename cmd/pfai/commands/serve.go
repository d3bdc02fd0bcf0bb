package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/pfai-go/internal/logging"
	"github.com/54b3r/pfai-go/internal/server"
	"github.com/54b3r/pfai-go/internal/tracing"
)

// NewServeCmd constructs the `pfai serve` command, which starts the HTTP
// server exposing the assistant over a REST/SSE API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var dataPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the PF-AI HTTP server",
		Long: `Start the PF-AI HTTP server on localhost.

The server exposes POST /api/chat (SSE streaming), session history and stats
endpoints, cache administration, and Prometheus metrics on GET /metrics.
Set PFAI_API_KEY to require Bearer authentication on the API routes.

Examples:
  pfai serve
  pfai serve --port 9090
  MODEL_PROVIDER=azure pfai serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Langfuse tracing is opt-in, a no-op when keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			data, err := loadDataset(dataPath, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			store, closeStore := openCheckpoints(log)
			defer closeStore()

			mgr, resultCache, chatModel, err := buildManager(ctx, data, asStore(store), prometheus.DefaultRegisterer, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer mgr.Close()

			backendName := os.Getenv("MODEL_PROVIDER")
			if backendName == "" {
				backendName = "ollama"
			}
			pingers := []server.Pinger{
				server.NewLLMPinger(chatModel, backendName),
			}
			if store != nil {
				pingers = append(pingers, server.NewStorePinger(store))
			}

			srv, err := server.New(mgr, resultCache, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("PFAI_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")
	cmd.Flags().StringVar(&dataPath, "data", "", "Path to a portfolio dataset JSON file (default: bundled sample)")

	return cmd
}
