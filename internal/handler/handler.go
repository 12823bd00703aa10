// Package handler exposes the booking, auth and branch services as a JSON
// REST API under /api.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"appointment-booking-api/internal/logging"
	"appointment-booking-api/internal/middleware"
	"appointment-booking-api/internal/model"
	"appointment-booking-api/internal/service"
)

type Handler struct {
	appts    *service.AppointmentService
	auth     *service.AuthService
	branches *service.BranchService
	log      logrus.FieldLogger
	validate *validator.Validate
}

// New builds the handler. now drives the "date not in the past" rule and
// defaults to time.Now.
func New(appts *service.AppointmentService, authSvc *service.AuthService, branches *service.BranchService, log logrus.FieldLogger, now func() time.Time) *Handler {
	if log == nil {
		log = logging.Discard()
	}
	if now == nil {
		now = time.Now
	}
	return &Handler{
		appts:    appts,
		auth:     authSvc,
		branches: branches,
		log:      log,
		validate: newValidator(now),
	}
}

// RouterConfig carries the pieces of the HTTP stack that live outside the
// handler. Everything but Secret is optional.
type RouterConfig struct {
	Secret  string
	Limiter *middleware.RateLimiter
	Metrics middleware.HTTPRecorder
	// MetricsHandler and Health are mounted at /metrics and /health.
	MetricsHandler http.Handler
	Health         http.Handler
	Origins        []string
}

// Routes wires every endpoint. Fixed-segment appointment routes are
// registered before the bare {id} routes.
func (h *Handler) Routes(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	user := func(f http.HandlerFunc) http.Handler {
		return middleware.RequireAuth(cfg.Secret)(f)
	}
	admin := func(f http.HandlerFunc) http.Handler {
		return middleware.RequireAuth(cfg.Secret)(middleware.RequireRole(model.RoleAdmin)(f))
	}
	limited := func(f http.HandlerFunc) http.Handler {
		if cfg.Limiter == nil {
			return f
		}
		return cfg.Limiter.Limit(f)
	}

	if cfg.Health != nil {
		r.Handle("/health", cfg.Health).Methods(http.MethodGet)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()

	api.Handle("/auth/login", limited(h.login)).Methods(http.MethodPost)
	api.Handle("/auth/register", limited(h.register)).Methods(http.MethodPost)
	api.Handle("/auth/refresh", limited(h.refresh)).Methods(http.MethodPost)
	api.Handle("/auth/logout", user(h.logout)).Methods(http.MethodPost)
	api.Handle("/auth/me", user(h.me)).Methods(http.MethodGet)
	api.HandleFunc("/auth/user/{id:[0-9]+}", h.user).Methods(http.MethodGet)

	api.HandleFunc("/branches", h.listBranches).Methods(http.MethodGet)
	api.HandleFunc("/branches/{id:[0-9]+}", h.getBranch).Methods(http.MethodGet)

	api.HandleFunc("/appointments/pending", h.pending).Methods(http.MethodGet)
	api.HandleFunc("/appointments/{id:[0-9]+}/audits", h.audits).Methods(http.MethodGet)
	api.Handle("/appointments/{id:[0-9]+}/approve", admin(h.approve)).Methods(http.MethodPost)
	api.Handle("/appointments/{id:[0-9]+}/reject", admin(h.reject)).Methods(http.MethodPost)
	api.Handle("/appointments/{id:[0-9]+}/status", admin(h.updateStatus)).Methods(http.MethodPost)
	api.HandleFunc("/appointments/{id:[0-9]+}", h.getAppointment).Methods(http.MethodGet)
	api.Handle("/appointments/{id:[0-9]+}", user(h.updateAppointment)).Methods(http.MethodPut)
	api.HandleFunc("/appointments", h.listAppointments).Methods(http.MethodGet)
	api.Handle("/appointments", user(h.createAppointment)).Methods(http.MethodPost)

	// CORS sits outside the router so preflights never hit a 405.
	var out http.Handler = r
	out = middleware.CORS(cfg.Origins)(out)
	out = middleware.Recover(h.log)(out)
	out = middleware.Logging(h.log)(out)
	return out
}

// pathID reads the {id} route variable; the route pattern guarantees digits.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) withID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
	}
	return id, ok
}
