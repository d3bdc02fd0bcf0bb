package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/pfai-go/internal/logging"
)

// Each dependency probe gets its own deadline so a hung backend cannot stall
// the whole readiness response.
const probeTimeout = 5 * time.Second

// Pinger reports the reachability of one external dependency. Implementations
// must be safe for concurrent use.
type Pinger interface {
	// Ping returns nil when the dependency is reachable, a descriptive
	// error otherwise.
	Ping(ctx context.Context) error

	// Name is the label shown in readiness responses, e.g. "ollama" or
	// "checkpoints".
	Name() string
}

type readyCheck struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// handleReady serves GET /api/ready. It probes every registered dependency
// and returns 200 only when all of them answer; any failure yields 503 with
// the per-dependency breakdown in the body. /api/health stays a pure
// liveness check and never touches dependencies.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := readyResponse{Ready: true}
	for _, p := range s.pingers {
		probeCtx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := p.Ping(probeCtx)
		cancel()

		check := readyCheck{Name: p.Name(), OK: err == nil}
		if err != nil {
			check.Error = err.Error()
			resp.Ready = false
			log.Warn("readiness probe failed",
				slog.String("dependency", p.Name()),
				slog.Any("error", err),
			)
		}
		resp.Checks = append(resp.Checks, check)
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("ready encode error", slog.Any("error", err))
	}
}
