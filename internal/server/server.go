package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyprcat/gateway/internal/catalog"
	"github.com/hyprcat/gateway/internal/config"
	"github.com/hyprcat/gateway/internal/events"
	"github.com/hyprcat/gateway/internal/federation"
	"github.com/hyprcat/gateway/internal/governance"
	"github.com/hyprcat/gateway/internal/identity"
	"github.com/hyprcat/gateway/internal/provenance"
	"github.com/hyprcat/gateway/internal/store"
	"github.com/hyprcat/gateway/internal/wallet"
)

// Server ties the gateway services to the HTTP surface.
type Server struct {
	cfg      *config.Config
	log      *zap.Logger
	store    store.Store
	catalog  *catalog.Service
	identity *identity.Service
	wallets  *wallet.Store
	payments *governance.PaymentService
	fed      *federation.Engine
	prov     *provenance.Service
	bus      *events.Bus

	limiter  *rateLimiter
	metrics  *Metrics
	registry *prometheus.Registry
	router   *mux.Router
	upgrader websocket.Upgrader
	http     *http.Server

	startedAt time.Time
}

// Deps carries the wired services into New. Everything is required
// except the bus, which falls back to a fresh one.
type Deps struct {
	Config   *config.Config
	Log      *zap.Logger
	Store    store.Store
	Catalog  *catalog.Service
	Identity *identity.Service
	Wallets  *wallet.Store
	Payments *governance.PaymentService
	Fed      *federation.Engine
	Prov     *provenance.Service
	Bus      *events.Bus
}

func New(d Deps) *Server {
	if d.Bus == nil {
		d.Bus = events.NewBus()
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &Server{
		cfg:      d.Config,
		log:      d.Log,
		store:    d.Store,
		catalog:  d.Catalog,
		identity: d.Identity,
		wallets:  d.Wallets,
		payments: d.Payments,
		fed:      d.Fed,
		prov:     d.Prov,
		bus:      d.Bus,
		limiter:  newRateLimiter(d.Config.RateLimitWindow, d.Config.RateLimitMax),
		metrics:  newMetrics(registry),
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		startedAt: time.Now(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.problem(w, req, KindNotFound, "no resource at "+req.URL.Path, nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.problem(w, req, KindMethodNotAllowed, "method not supported for "+req.URL.Path, nil)
	})

	// Infra endpoints skip content negotiation and rate limiting.
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.negotiateMiddleware, s.authMiddleware, s.rateLimitMiddleware)

	// Discovery.
	api.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	api.HandleFunc("/.well-known/hyprcat", s.handleWellKnown).Methods(http.MethodGet)
	api.HandleFunc("/catalog", s.handleCatalog).Methods(http.MethodGet)
	api.HandleFunc("/prompts", s.handlePrompts).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	// Resource registry.
	api.HandleFunc("/nodes", s.handleRegister).Methods(http.MethodPost)
	api.PathPrefix("/nodes/").HandlerFunc(s.handleNode).Methods(http.MethodGet)

	// Identity.
	api.HandleFunc("/auth/challenge", s.handleChallenge).Methods(http.MethodPost)
	api.HandleFunc("/auth/verify", s.handleVerify).Methods(http.MethodPost)
	api.HandleFunc("/auth/profile", s.handleProfile).Methods(http.MethodGet)
	api.HandleFunc("/wallet", s.handleWallet).Methods(http.MethodGet)

	// Affordances.
	api.HandleFunc("/operations/checkout", s.handleCheckout).Methods(http.MethodPost)
	api.HandleFunc("/operations/query", s.handleQuery).Methods(http.MethodPost)
	api.HandleFunc("/operations/lrs/export", s.handleLRSExport).Methods(http.MethodGet)
	api.HandleFunc("/operations/token/mint", s.handleTokenMint).Methods(http.MethodPost)
	api.HandleFunc("/operations/token/burn", s.handleTokenBurn).Methods(http.MethodDelete)
	// Collection-style aliases for the same operations.
	api.HandleFunc("/operations/tokens/mint", s.handleTokenMint).Methods(http.MethodPost)
	api.HandleFunc("/operations/tokens/{tokenId}", s.handleTokenBurn).Methods(http.MethodDelete)

	// Provenance.
	api.HandleFunc("/provenance/chains/{chainId}", s.handleProvenanceChain).Methods(http.MethodGet)
	api.HandleFunc("/provenance/history", s.handleProvenanceHistory).Methods(http.MethodGet)

	return r
}

// Handler returns the fully assembled middleware stack. Exposed so
// tests can drive the server through httptest.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = s.loggingMiddleware(h)
	h = s.securityHeadersMiddleware(h)
	h = s.corsMiddleware(h)
	h = s.traceMiddleware(h)
	h = s.recoverMiddleware(h)
	return h
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         s.cfg.Host + ":" + s.cfg.Port,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * s.cfg.RequestTimeout,
		IdleTimeout:  60 * time.Second,
	}
	s.log.Info("gateway listening",
		zap.String("addr", s.http.Addr),
		zap.String("base_url", s.cfg.BaseURL))
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Close()
	s.bus.Close()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func muxCurrentRoute(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return tpl
}
