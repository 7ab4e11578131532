package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/costwatch/costwatch-dashboard/config"
	"github.com/costwatch/costwatch-dashboard/dashboard"
	"github.com/costwatch/costwatch-dashboard/dataset"
	"github.com/costwatch/costwatch-dashboard/observability"
	"github.com/costwatch/costwatch-dashboard/source"
	"github.com/costwatch/costwatch-dashboard/threshold"
)

// Deps are the components the server routes to.
type Deps struct {
	Secret     SecretProvider
	Source     *source.Holder
	Datasets   *dataset.Set
	Thresholds *threshold.Controller
	Builder    *dashboard.Builder
	Views      *Views
	Metrics    *observability.Metrics
	Logger     *slog.Logger
	Clock      clock.Clock
}

// Server routes dashboard requests.
type Server struct {
	corsOrigin  string
	bearerToken string
	tlsCertFile string
	tlsKeyFile  string
	serve       func(*http.Server) error                 // optional override for tests
	serveTLS    func(*http.Server, string, string) error // optional override for tests

	secret     SecretProvider
	source     *source.Holder
	datasets   *dataset.Set
	thresholds *threshold.Controller
	builder    *dashboard.Builder
	views      *Views
	metrics    *observability.Metrics
	log        *slog.Logger
	clk        clock.Clock

	upgrader websocket.Upgrader
	handler  http.Handler
}

// NewServer builds a Server from cfg and deps.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		return nil, fmt.Errorf("both tls cert_file and key_file must be set together")
	}
	if deps.Source == nil || deps.Datasets == nil || deps.Thresholds == nil || deps.Builder == nil {
		return nil, errors.New("source, datasets, thresholds and builder are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Views == nil {
		deps.Views = NewViews(deps.Clock, cfg.ViewTTL(), nil)
	}

	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}

	s := &Server{
		corsOrigin:  corsOrigin,
		bearerToken: strings.TrimSpace(cfg.BearerToken),
		tlsCertFile: cfg.TLS.CertFile,
		tlsKeyFile:  cfg.TLS.KeyFile,
		secret:      deps.Secret,
		source:      deps.Source,
		datasets:    deps.Datasets,
		thresholds:  deps.Thresholds,
		builder:     deps.Builder,
		views:       deps.Views,
		metrics:     deps.Metrics,
		log:         deps.Logger,
		clk:         deps.Clock,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleStatus).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/providers/source", s.handleListSourceProviders).Methods(http.MethodGet)
	v1.HandleFunc("/providers/source", s.handleSetSourceProvider).Methods(http.MethodPost)

	v1.HandleFunc("/datasets", s.handleListDatasets).Methods(http.MethodGet)
	v1.HandleFunc("/datasets/{name}/refresh", s.handleRefreshDataset).Methods(http.MethodPost)

	v1.HandleFunc("/views", s.handleCreateView).Methods(http.MethodPost)
	v1.HandleFunc("/views/{id}", s.handleGetView).Methods(http.MethodGet)
	v1.HandleFunc("/views/{id}", s.handleDeleteView).Methods(http.MethodDelete)
	v1.HandleFunc("/views/{id}/chart", s.handleGetChart).Methods(http.MethodGet)
	v1.HandleFunc("/views/{id}/highlight", s.handleEnterHighlight).Methods(http.MethodPut)
	v1.HandleFunc("/views/{id}/highlight/{kind}", s.handleLeaveHighlight).Methods(http.MethodDelete)
	v1.HandleFunc("/views/{id}/stream", s.handleStream).Methods(http.MethodGet)

	v1.HandleFunc("/alert-rules", s.handlePutAlertRule).Methods(http.MethodPut)

	r.NotFoundHandler = http.HandlerFunc(http.NotFound)

	r.Use(s.authorize)
	if s.metrics != nil {
		r.Use(func(next http.Handler) http.Handler {
			return s.metrics.WrapHandler(routeTemplate, next)
		})
	}

	var h http.Handler = r
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{log: s.log}))(h)
	h = withRequestID(h)
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{s.corsOrigin}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Request-ID"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
	)(h)
	return h
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "source": s.source.Name()})
}

func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.bearerToken == "" {
		return true
	}

	const prefix = "Bearer "
	authz := r.Header.Get("Authorization")

	if !strings.HasPrefix(authz, prefix) {
		// Browsers cannot set headers on a websocket handshake.
		if websocket.IsWebSocketUpgrade(r) {
			return r.URL.Query().Get("access_token") == s.bearerToken
		}
		return false
	}

	token := strings.TrimSpace(authz[len(prefix):])
	return token == s.bearerToken
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.corsOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == s.corsOrigin
}

// ListenAndServe starts the HTTP server and shuts it down when ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 10 * time.Second}

	serve := s.serve
	if serve == nil {
		serve = func(srv *http.Server) error { return srv.ListenAndServe() }
	}
	serveTLS := s.serveTLS
	if serveTLS == nil {
		serveTLS = func(srv *http.Server, cert, key string) error { return srv.ListenAndServeTLS(cert, key) }
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	var err error
	// Enable TLS when both cert and key are provided.
	if s.tlsCertFile != "" || s.tlsKeyFile != "" {
		if s.tlsCertFile == "" || s.tlsKeyFile == "" {
			return fmt.Errorf("TLS requires both cert and key to be configured")
		}
		err = serveTLS(srv, s.tlsCertFile, s.tlsKeyFile)
	} else {
		err = serve(srv)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
