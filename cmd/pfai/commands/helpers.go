package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/pfai-go/internal/cache"
	"github.com/54b3r/pfai-go/internal/checkpoint"
	"github.com/54b3r/pfai-go/internal/portfolio"
	"github.com/54b3r/pfai-go/internal/provider"
	"github.com/54b3r/pfai-go/internal/session"
	"github.com/54b3r/pfai-go/internal/tools"
)

// systemInstructions is the system prompt opening every conversation.
const systemInstructions = `You are a portfolio assistant for an investment account.
You answer questions about the user's holdings, transaction history, and
portfolio valuation using the provided tools. Always ground your answers in
tool results — never invent positions, prices, or dates. When a tool returns
no matching records, say so plainly. Amounts are in the account's base
currency unless a holding states otherwise.`

// loadDataset resolves the portfolio dataset: an explicit file path wins,
// then the PFAI_DATA environment variable, then the bundled sample data.
func loadDataset(path string, log *slog.Logger) (portfolio.Providers, error) {
	if path == "" {
		path = os.Getenv("PFAI_DATA")
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return portfolio.Providers{}, fmt.Errorf("dataset: read %s: %w", path, err)
		}
		container, err := portfolio.LoadContainer(raw)
		if err != nil {
			return portfolio.Providers{}, fmt.Errorf("dataset: parse %s: %w", path, err)
		}
		log.Info("dataset loaded", slog.String("path", path))
		return portfolio.NewProviders(container), nil
	}

	container, err := portfolio.SampleContainer()
	if err != nil {
		return portfolio.Providers{}, fmt.Errorf("dataset: bundled sample: %w", err)
	}
	log.Info("dataset: using bundled sample data")
	return portfolio.NewProviders(container), nil
}

// openCheckpoints opens the session checkpoint store. PFAI_CHECKPOINT_DB
// overrides the default path (~/.pfai/checkpoints.db); set it to "disabled"
// to run without persistence. Failures are non-fatal — the assistant works
// without checkpoints, it just cannot resume after a restart.
func openCheckpoints(log *slog.Logger) (*checkpoint.SQLiteStore, func()) {
	dbPath := os.Getenv("PFAI_CHECKPOINT_DB")
	if dbPath == "disabled" {
		log.Info("checkpoints: disabled via PFAI_CHECKPOINT_DB=disabled")
		return nil, func() {}
	}
	if dbPath == "" {
		var err error
		dbPath, err = checkpoint.DefaultDBPath()
		if err != nil {
			log.Warn("checkpoints: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, func() {}
		}
	}

	store, err := checkpoint.Open(dbPath)
	if err != nil {
		log.Warn("checkpoints: failed to open store, disabling", slog.Any("error", err))
		return nil, func() {}
	}
	log.Info("checkpoints: store opened", slog.String("path", dbPath))
	return store, func() { _ = store.Close() }
}

// buildManager wires the full assistant stack: model provider, cached data
// tools, conversation backend factory, and the session manager. The returned
// cache is shared between the tools and the HTTP server's response cache.
func buildManager(ctx context.Context, data portfolio.Providers, store checkpoint.Store, reg prometheus.Registerer, log *slog.Logger) (*session.Manager, *cache.Cache, model.ToolCallingChatModel, error) {
	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

	resultCache := cache.New(reg)

	// Oversized tool results are recorded into the active backend's
	// conversation buffer in bounded chunks. The active backend changes on
	// session recreation, so the hook resolves it through a guarded slot.
	var (
		mu     sync.Mutex
		active *session.EinoBackend
	)

	deps := &tools.Deps{
		Cache:           resultCache,
		Providers:       data,
		MaxResultTokens: envInt("PFAI_MAX_TOOL_RESPONSE_TOKENS", 0),
		OnResult: func(_, result string) {
			mu.Lock()
			backend := active
			mu.Unlock()
			if backend != nil {
				backend.Buffer().AddToolResponseSafely(result)
			}
		},
	}

	factory := func(ctx context.Context) (session.Backend, error) {
		backend, err := session.NewEinoBackend(ctx, &session.EinoConfig{
			ChatModel:        chatModel,
			Tools:            tools.All(deps),
			Instructions:     systemInstructions,
			MaxContextTokens: envInt("PFAI_MAX_CONTEXT_TOKENS", 0),
		})
		if err != nil {
			return nil, err
		}
		mu.Lock()
		active = backend
		mu.Unlock()
		return backend, nil
	}

	mgr, err := session.New(ctx, &session.Config{
		Factory:      factory,
		Instructions: systemInstructions,
		Checkpoints:  store,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise session manager: %w", err)
	}

	return mgr, resultCache, chatModel, nil
}

// asStore converts the concrete checkpoint store to the session interface,
// preserving nil so a disabled store stays disabled.
func asStore(s *checkpoint.SQLiteStore) checkpoint.Store {
	if s == nil {
		return nil
	}
	return s
}

// envInt reads an integer environment variable, returning def when the
// variable is unset or malformed.
func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
