package api

import (
	"context"
	"net/http"
	"time"

	"github.com/agenttrust/trustcore/internal/authn"
	"github.com/agenttrust/trustcore/internal/capability"
	"github.com/agenttrust/trustcore/internal/ledger"
	"github.com/agenttrust/trustcore/internal/logger"
	"github.com/agenttrust/trustcore/internal/metrics"
	"github.com/agenttrust/trustcore/internal/ratelimit"
	"github.com/agenttrust/trustcore/internal/registry"
	"github.com/agenttrust/trustcore/internal/reputation"
)

// Server wires the trust core's engines to the HTTP surface described
// in spec §6.
type Server struct {
	registry   *registry.Registry
	ledger     *ledger.Ledger
	capability *capability.Engine
	reputation *reputation.Engine
	authn      *authn.Authenticator
	limiter    *ratelimit.Limiter
	log        *logger.Logger

	rateLimitWindow time.Duration
	httpServer      *http.Server
}

// Deps bundles the Server's collaborators.
type Deps struct {
	Registry   *registry.Registry
	Ledger     *ledger.Ledger
	Capability *capability.Engine
	Reputation *reputation.Engine
	Authn      *authn.Authenticator
	Limiter    *ratelimit.Limiter
	Log        *logger.Logger

	RateLimitWindow time.Duration
}

// NewServer constructs a Server over deps.
func NewServer(deps Deps) *Server {
	return &Server{
		registry:        deps.Registry,
		ledger:          deps.Ledger,
		capability:      deps.Capability,
		reputation:      deps.Reputation,
		authn:           deps.Authn,
		limiter:         deps.Limiter,
		log:             deps.Log,
		rateLimitWindow: deps.RateLimitWindow,
	}
}

// Routes builds the HTTP handler for every endpoint in spec §6.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.Handle("GET /api/metrics", metrics.Handler())

	mux.HandleFunc("POST /api/agents", s.rateLimited(s.requireServiceKey(s.handleRegisterAgent)))
	mux.HandleFunc("GET /api/agents", s.rateLimited(s.handleListAgents))
	mux.HandleFunc("GET /api/agents/{id}", s.rateLimited(s.handleGetAgent))
	mux.HandleFunc("POST /api/agents/{id}/revoke", s.rateLimited(s.requireServiceKey(s.handleRevokeAgent)))

	mux.HandleFunc("POST /api/events", s.rateLimited(s.requireAgentSignature(s.handleAppendEvent)))
	mux.HandleFunc("GET /api/events", s.rateLimited(s.handleQueryEvents))
	mux.HandleFunc("GET /api/events/{id}", s.rateLimited(s.handleGetEvent))
	mux.HandleFunc("GET /api/events/last-hash/{agentId}", s.rateLimited(s.handleLastHash))
	mux.HandleFunc("POST /api/events/verify-chain", s.rateLimited(s.handleVerifyChain))

	mux.HandleFunc("POST /api/capabilities", s.rateLimited(s.requireServiceKey(s.handleMintCapability)))
	mux.HandleFunc("POST /api/capabilities/validate", s.rateLimited(s.handleValidateCapability))
	mux.HandleFunc("POST /api/capabilities/check-permission", s.rateLimited(s.handleCheckPermission))
	mux.HandleFunc("GET /api/capabilities", s.rateLimited(s.handleListCapabilities))
	mux.HandleFunc("POST /api/capabilities/{id}/revoke", s.rateLimited(s.requireServiceKey(s.handleRevokeCapability)))

	mux.HandleFunc("GET /api/reputation/{agentId}", s.rateLimited(s.handleGetReputation))
	mux.HandleFunc("GET /api/reputation", s.rateLimited(s.handleListReputation))
	mux.HandleFunc("POST /api/outcomes", s.rateLimited(s.requireServiceKey(s.handleRecordOutcome)))
	mux.HandleFunc("POST /api/reputation/{agentId}/domain", s.rateLimited(s.requireServiceKey(s.handleUpdateDomainScore)))
	mux.HandleFunc("GET /api/reputation/{agentId}/should-downgrade", s.rateLimited(s.handleShouldDowngrade))

	return mux
}

// Start listens on addr until ctx is cancelled, then shuts down
// gracefully (spec §6: exit 0 on clean shutdown after SIGINT/SIGTERM).
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api server listening", logger.String("addr", addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
