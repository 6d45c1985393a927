package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	agentHandler "github.com/petpal/health-backend/internal/handler/agent"
	healthHandler "github.com/petpal/health-backend/internal/handler/health"
	"github.com/petpal/health-backend/internal/handler/live"
	"github.com/petpal/health-backend/internal/handler/status"
	middlewarePkg "github.com/petpal/health-backend/internal/middleware"
	"github.com/petpal/health-backend/internal/model/agent"
	healthService "github.com/petpal/health-backend/internal/service/health"
	"github.com/petpal/health-backend/internal/service/relay"
)

// NewRouter wires HTTP and WebSocket routes to core services. The relay's
// session registry is shared by every WebSocket endpoint.
func NewRouter(info status.Info, agents agent.Store, healthSvc *healthService.Service, liveRelay *relay.Relay) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	sessions := liveRelay.Sessions()

	status.New(info, agents, sessions).RegisterRoutes(r)
	healthHandler.New(healthSvc, sessions).RegisterRoutes(r)
	live.New(liveRelay).RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		agentHandler.New(agents).RegisterRoutes(api)
	})

	return r
}
