package gatewayhttp

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/homepilot/control-plane/internal/bus"
	"github.com/homepilot/control-plane/internal/config"
	"github.com/homepilot/control-plane/internal/devicemanager"
	"github.com/homepilot/control-plane/internal/domains/energy"
	"github.com/homepilot/control-plane/internal/domains/security"
	"github.com/homepilot/control-plane/internal/errs"
	"github.com/homepilot/control-plane/internal/httpjson"
	"github.com/homepilot/control-plane/internal/obslog"
	"github.com/homepilot/control-plane/internal/perfmon"
)

const shutdownDrain = 3 * time.Second

// Deps are the collaborators the gateway dispatches to. It holds no
// business logic of its own.
type Deps struct {
	Config     *config.Config
	Log        *obslog.Logger
	Supervisor *bus.Supervisor
	Bus        *bus.Bus
	Monitor    *perfmon.Monitor
	Metrics    *perfmon.Registry
	Devices    devicemanager.Manager
	Demo       devicemanager.Manager
	Energy     *energy.Module
	Security   *security.Module
	History    *errs.History
}

// Server is the HTTP+realtime gateway.
type Server struct {
	cfg        *config.Config
	log        *obslog.Logger
	supervisor *bus.Supervisor
	bus        *bus.Bus
	monitor    *perfmon.Monitor
	metrics    *perfmon.Registry
	devices    devicemanager.Manager
	demo       devicemanager.Manager
	energy     *energy.Module
	security   *security.Module
	history    *errs.History
	gate       *InternalGate
	hub        *Hub
	upgrader   websocket.Upgrader

	router     *mux.Router
	httpServer *http.Server
	ready      atomic.Bool
	startedAt  time.Time
}

// New assembles the gateway: router, middleware stack in policy order,
// routes, and the realtime hub wired to the bus's broadcast topics.
func New(deps Deps) (*Server, error) {
	gate, err := NewInternalGate(deps.Config.Auth.InternalBearerToken, deps.Config.Auth.TrustedNetworks, deps.Log)
	if err != nil {
		return nil, fmt.Errorf("build internal gate: %w", err)
	}

	s := &Server{
		cfg:        deps.Config,
		log:        deps.Log,
		supervisor: deps.Supervisor,
		bus:        deps.Bus,
		monitor:    deps.Monitor,
		metrics:    deps.Metrics,
		devices:    deps.Devices,
		demo:       deps.Demo,
		energy:     deps.Energy,
		security:   deps.Security,
		history:    deps.History,
		gate:       gate,
		hub:        NewHub(),
		startedAt:  time.Now(),
	}

	allowed := make(map[string]bool, len(deps.Config.CORS.AllowedOrigins))
	for _, o := range deps.Config.CORS.AllowedOrigins {
		allowed[o] = true
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin] || allowed["*"]
		},
	}

	s.router = mux.NewRouter()
	s.registerRoutes(s.router)
	s.hub.SubscribeBroadcasts(deps.Bus)

	rateLimiter := NewRateLimiter(deps.Config.RateLimit.MaxRequestsPerMinute, deps.Log)

	// Middleware in the mandated order: CORS, security headers, rate
	// limit, validation, request id, performance tap. The recovery wrapper
	// sits outermost so a panic anywhere below maps to 500 {error:internal}.
	var handler http.Handler = s.router
	handler = PerfTap(deps.Monitor)(handler)
	handler = RequestID(handler)
	handler = ValidateRequest(handler)
	handler = rateLimiter.Handler(handler)
	handler = SecurityHeaders(handler)
	handler = CORS(deps.Config.CORS.AllowedOrigins, deps.Log)(handler)
	handler = s.recover(handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", deps.Config.Server.Host, deps.Config.Server.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// recover maps any downstream panic to 500 {error:"internal"}, recording
// the original error under the request id.
func (s *Server) recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.history.Record("gateway", fmt.Sprintf("panic serving %s: %v", r.URL.Path, rec), errs.SeverityCritical)
				s.log.WithContext(r.Context()).WithField("path", r.URL.Path).Error("handler panic")
				httpjson.Write(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Router exposes the mux for module route registration before Start.
func (s *Server) Router() *mux.Router { return s.router }

// SetReady flips the /ready endpoint once the supervisor finished LoadAll.
func (s *Server) SetReady(ready bool) { s.ready.Store(ready) }

// Hub exposes the realtime hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start runs the listener until the server is shut down.
func (s *Server) Start() error {
	s.log.WithModule("gateway").WithField("addr", s.httpServer.Addr).Info("gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, waits up to the drain window for
// in-flight requests, then disconnects realtime clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)

	drainCtx, cancel := context.WithTimeout(ctx, shutdownDrain)
	defer cancel()
	err := s.httpServer.Shutdown(drainCtx)

	s.hub.CloseAll()
	return err
}

// contextWithTimeout bounds a realtime-initiated device call the same way
// HTTP requests are bounded by their own context.
func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 3*time.Second)
}
