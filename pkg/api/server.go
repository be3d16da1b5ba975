// Package api implements the HTTP surface: a chi router, a request-id ->
// auth -> RBAC middleware chain, JWT + API-key authentication, and the
// handlers fronting job lifecycle, the Nautobot/CheckMK gateways, the
// agent bus, credentials, and the audit log. Grounded on the middleware
// shape exercised by kubernaut's pkg/gateway/middleware tests
// (chi.NewRouter + router.Use(...)) and pkg/http/cors's go-chi/cors usage.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/config"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/agentbus"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/audit"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/checkmk"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/cockpitlog"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/jobs"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/nautobot"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/offboard"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/rbac"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/repository"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/vault"
)

// Deps bundles every collaborator the API layer calls into; cmd/cockpit-server
// constructs these at boot and hands them to NewServer.
type Deps struct {
	Config      *config.AuthConfig
	Users       *repository.UserRepository
	RBAC        *rbac.Checker
	Audit       *audit.Store
	Templates   *repository.TemplateRepository
	Schedules   *repository.ScheduleRepository
	Inventories *repository.InventoryRepository
	Dispatcher  *jobs.Dispatcher
	Credentials *vault.CredentialStore
	Nautobot    *nautobot.Client
	Resolvers   *nautobot.Resolvers
	CheckMK     *checkmk.Client
	Offboard    *offboard.Service
	AgentBus    *agentbus.Bus
	AgentCmds   *repository.AgentCommandRepository
	GitRepos    *repository.GitRepositoryRepository
	CORSOrigins []string
}

// Server holds every dependency a handler method needs and owns the
// validator and prometheus collectors used across the whole surface.
type Server struct {
	cfg         *config.AuthConfig
	users       *repository.UserRepository
	rbac        *rbac.Checker
	audit       *audit.Store
	templates   *repository.TemplateRepository
	schedules   *repository.ScheduleRepository
	inventories *repository.InventoryRepository
	dispatch    *jobs.Dispatcher
	credentials *vault.CredentialStore
	nb          *nautobot.Client
	resolvers   *nautobot.Resolvers
	cmk         *checkmk.Client
	offboardSvc *offboard.Service
	agentBus    *agentbus.Bus
	agentCmds   *repository.AgentCommandRepository
	gitRepos    *repository.GitRepositoryRepository
	corsOrigins []string

	tokens    *tokenIssuer
	validate  *validator.Validate
	logger    *logrus.Entry
	reqTotal  *prometheus.CounterVec
	reqDur    *prometheus.HistogramVec
}

func NewServer(d Deps) *Server {
	return &Server{
		cfg:         d.Config,
		users:       d.Users,
		rbac:        d.RBAC,
		audit:       d.Audit,
		templates:   d.Templates,
		schedules:   d.Schedules,
		inventories: d.Inventories,
		dispatch:    d.Dispatcher,
		credentials: d.Credentials,
		nb:          d.Nautobot,
		resolvers:   d.Resolvers,
		cmk:         d.CheckMK,
		offboardSvc: d.Offboard,
		agentBus:    d.AgentBus,
		agentCmds:   d.AgentCmds,
		gitRepos:    d.GitRepos,
		corsOrigins: d.CORSOrigins,
		tokens:      newTokenIssuer(d.Config),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      cockpitlog.WithComponent("api"),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cockpit_http_requests_total",
			Help: "Total HTTP requests handled, by method, route and status class.",
		}, []string{"method", "route", "status_class"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "cockpit_http_request_duration_seconds",
			Help: "HTTP request duration in seconds, by method and route.",
		}, []string{"method", "route"}),
	}
}

// Collector exposes the server's prometheus metrics for registration with
// a process-wide registry.
func (s *Server) Collector() []prometheus.Collector {
	return []prometheus.Collector{s.reqTotal, s.reqDur}
}

// Router assembles the full middleware chain and route table. Chain order:
// request-id -> real-ip -> recoverer -> CORS -> rate limit -> metrics, then
// per-route auth/RBAC applied only where a route requires it.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders:   []string{"Authorization", "X-Api-Key", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httprate.LimitByIP(100, time.Minute))
	r.Use(httpMetrics(s.reqTotal, s.reqDur))

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/api-key-login", s.handleAPIKeyLogin)
	r.Post("/auth/refresh", s.handleRefresh)

	r.Route("/api", func(api chi.Router) {
		api.Use(s.authenticate)

		api.Route("/jobs", func(jr chi.Router) {
			jr.With(requirePermission("jobs", "read")).Get("/templates", s.handleListTemplates)
			jr.With(requirePermission("jobs", "write")).Post("/templates", s.handleCreateTemplate)
			jr.With(requirePermission("jobs", "write")).Post("/templates/{templateID}/start", s.handleStartRun)
			jr.With(requirePermission("jobs", "read")).Get("/runs", s.handleListRuns)
			jr.With(requirePermission("jobs", "read")).Get("/runs/{runID}", s.handleGetRun)
			jr.With(requirePermission("jobs", "read")).Get("/runs/{runID}/results", s.handleGetRunResults)
			jr.With(requirePermission("jobs", "write")).Post("/runs/{runID}/cancel", s.handleCancelRun)
		})

		api.Route("/nautobot", func(nr chi.Router) {
			nr.With(requirePermission("devices", "read")).Get("/*", s.handleNautobotGet)
			nr.With(requirePermission("devices", "write")).Post("/devices/{deviceID}/offboard", s.handleOffboard)
		})

		api.Route("/credentials", func(cr chi.Router) {
			cr.With(requirePermission("credentials", "write")).Post("/", s.handleCreateCredential)
			cr.With(requirePermission("credentials", "write")).Post("/rotate", s.handleRotateCredentials)
		})

		api.Route("/agents", func(ar chi.Router) {
			ar.With(requirePermission("devices", "read")).Get("/", s.handleListAgents)
			ar.With(requirePermission("devices", "write")).Post("/{agentID}/commands", s.handleSendAgentCommand)
			ar.With(requirePermission("devices", "write")).Post("/{agentID}/git-pull", s.handleAgentGitPull)
			ar.With(requirePermission("devices", "write")).Post("/{agentID}/docker-restart", s.handleAgentDockerRestart)
		})

		api.Route("/git-repositories", func(gr chi.Router) {
			gr.With(requirePermission("settings", "read")).Get("/", s.handleListGitRepositories)
			gr.With(requirePermission("settings", "write")).Post("/", s.handleCreateGitRepository)
			gr.With(requirePermission("settings", "write")).Delete("/{repoID}", s.handleDeleteGitRepository)
		})

		api.With(requirePermission("logs", "read")).Get("/logs", s.handleQueryLogs)
	})

	return r
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		return rc.RoutePattern()
	}
	return r.URL.Path
}

// decodeAndValidate JSON-decodes body into dst and runs struct tag
// validation, returning an apperrors.Validation error on either failure.
func decodeAndValidate(s *Server, r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.New(apperrors.Validation, "invalid request body: "+err.Error())
	}
	if err := s.validate.Struct(dst); err != nil {
		return apperrors.New(apperrors.Validation, "validation failed: "+err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an apperrors.Error onto its HTTP status, attaching the
// WWW-Authenticate challenge header for authentication failures. Any other
// error is treated as an unexpected internal failure.
func writeError(w http.ResponseWriter, err error) {
	if ae, ok := apperrors.As(err); ok {
		if challenge := ae.WWWAuthenticate(); challenge != "" {
			w.Header().Set("WWW-Authenticate", challenge)
		}
		writeJSON(w, ae.HTTPStatus(), map[string]string{"error": ae.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

// backgroundContext is used by handlers that must keep working past the
// request's own cancellation (e.g. publishing tasks after a timeout-prone
// device round trip already answered the client).
func backgroundContext() context.Context { return context.Background() }
