package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/gridbase/gridbase/internal/dtable"
	"github.com/gridbase/gridbase/internal/formula"
	"github.com/gridbase/gridbase/internal/rules"
	"github.com/gridbase/gridbase/internal/store"
)

// Config holds the server configuration
type Config struct {
	Host            string
	Port            int
	Concurrency     int
	RulesDir        string
	DBPath          string
	MaxNodes        int
	EvalTimeout     time.Duration
	EnableMetrics   bool
	EnableCORS      bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a default server configuration
func DefaultConfig() *Config {
	budget := formula.DefaultBudget()
	return &Config{
		Host:            "localhost",
		Port:            8080,
		Concurrency:     8,
		MaxNodes:        budget.MaxNodes,
		EvalTimeout:     budget.MaxDuration,
		EnableMetrics:   true,
		EnableCORS:      true,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// EvalMetrics tracks formula, rule and table executions.
type EvalMetrics struct {
	totalEvals      prometheus.Counter
	evalDuration    prometheus.HistogramVec
	evalStatus      prometheus.CounterVec
	liveConnections prometheus.Gauge
}

// NewEvalMetrics registers evaluation metrics with the default registerer.
func NewEvalMetrics() *EvalMetrics {
	return NewEvalMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewEvalMetricsWithRegistry registers evaluation metrics with a custom registerer
func NewEvalMetricsWithRegistry(registerer prometheus.Registerer) *EvalMetrics {
	m := &EvalMetrics{
		totalEvals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridbase_evaluations_total",
			Help: "Total number of formula evaluations started",
		}),
		evalDuration: *prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "gridbase_evaluation_duration_seconds",
			Help: "Formula evaluation duration in seconds",
		}, []string{"kind", "status"}),
		evalStatus: *prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridbase_evaluation_status_total",
			Help: "Total evaluations by kind and status",
		}, []string{"kind", "status"}),
		liveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridbase_live_connections",
			Help: "Number of open live-evaluation websocket connections",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(m.totalEvals)
		registerer.MustRegister(m.evalDuration)
		registerer.MustRegister(m.evalStatus)
		registerer.MustRegister(m.liveConnections)
	}

	return m
}

// Observe records one evaluation. Kind is formula, batch, rule or table.
func (m *EvalMetrics) Observe(kind string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.totalEvals.Inc()
	m.evalDuration.WithLabelValues(kind, status).Observe(time.Since(start).Seconds())
	m.evalStatus.WithLabelValues(kind, status).Inc()
}

// Server is the formula engine HTTP server.
type Server struct {
	config    *Config
	engine    *formula.Engine
	rules     *rules.Registry
	ruleExec  *rules.Executor
	tables    *dtable.Registry
	tableExec *dtable.Executor
	store     *store.Store
	metrics   *EvalMetrics
	server    *http.Server
	upgrader  websocket.Upgrader
}

// New creates a new server around a fresh engine.
func New(config *Config) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}

	budget := formula.DefaultBudget()
	if config.MaxNodes > 0 {
		budget.MaxNodes = config.MaxNodes
	}
	if config.EvalTimeout > 0 {
		budget.MaxDuration = config.EvalTimeout
	}
	engine := formula.NewEngineWith(formula.NewRegistry(), budget)

	s := &Server{
		config:    config,
		engine:    engine,
		rules:     rules.NewRegistry(),
		ruleExec:  rules.NewExecutor(engine),
		tables:    dtable.NewRegistry(),
		tableExec: dtable.NewExecutor(engine),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return config.EnableCORS
			},
		},
	}

	return s, nil
}

// Engine exposes the underlying formula engine.
func (s *Server) Engine() *formula.Engine {
	return s.engine
}

// LoadArtifacts loads rule and table files and, when configured, opens
// the sqlite store. Any artifact that fails to parse aborts startup.
func (s *Server) LoadArtifacts() error {
	if s.config.RulesDir != "" {
		log.Info().Str("dir", s.config.RulesDir).Msg("Loading rule artifacts...")
		if err := s.rules.LoadDir(s.config.RulesDir, s.engine); err != nil {
			return fmt.Errorf("failed to load business rules: %w", err)
		}
		if err := s.tables.LoadDir(s.config.RulesDir, s.engine); err != nil {
			return fmt.Errorf("failed to load decision tables: %w", err)
		}
	}

	if s.config.DBPath != "" {
		st, err := store.Open(s.config.DBPath)
		if err != nil {
			return err
		}
		if err := st.SyncFunctionCatalog(s.engine.Functions()); err != nil {
			st.Close()
			return err
		}
		s.store = st
	}

	return nil
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	if s.metrics == nil {
		s.metrics = NewEvalMetrics()
	}

	router := mux.NewRouter()

	if s.config.EnableCORS {
		router.Use(s.corsMiddleware)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.recoveryMiddleware)

	// Formula endpoints
	api.HandleFunc("/formulas/evaluate", s.evaluateFormula).Methods("POST")
	api.HandleFunc("/formulas/evaluate-batch", s.evaluateBatch).Methods("POST")
	api.HandleFunc("/formulas/validate", s.validateFormula).Methods("POST")
	api.HandleFunc("/formulas/functions", s.listFunctions).Methods("GET")
	api.HandleFunc("/formulas/live", s.liveFormulas).Methods("GET")

	// Rule and table endpoints
	api.HandleFunc("/rules", s.listRules).Methods("GET")
	api.HandleFunc("/rules/{id}/execute", s.executeRule).Methods("POST")
	api.HandleFunc("/tables", s.listTables).Methods("GET")
	api.HandleFunc("/tables/{id}/execute", s.executeTable).Methods("POST")

	// Saved query endpoints (sqlite-backed, 501 without --db)
	api.HandleFunc("/queries", s.createQuery).Methods("POST")
	api.HandleFunc("/queries", s.listQueries).Methods("GET")
	api.HandleFunc("/queries/{id}/execute", s.executeQuery).Methods("POST")

	if s.config.EnableCORS {
		api.Methods("OPTIONS").HandlerFunc(s.handleOptions)
	}

	if s.config.EnableMetrics {
		router.Handle("/metrics", promhttp.Handler())
	}

	router.HandleFunc("/health", s.healthCheck)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	router := s.Router()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	log.Info().
		Str("addr", addr).
		Int("functions", s.engine.Registry().Len()).
		Int("rules", s.rules.Count()).
		Int("tables", s.tables.Count()).
		Bool("store", s.store != nil).
		Bool("metrics", s.config.EnableMetrics).
		Msg("Starting Gridbase formula server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	return nil
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	log.Info().Msg("Shutting down server...")
	err := s.server.Shutdown(ctx)
	if s.store != nil {
		s.store.Close()
	}
	return err
}

// StartWithGracefulShutdown starts the server and handles graceful shutdown
func (s *Server) StartWithGracefulShutdown() error {
	if err := s.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer shutdownCancel()

		if err := s.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}

		cancel()
	}()

	<-ctx.Done()
	log.Info().Msg("Server shutdown complete")
	return nil
}

// GetAddr returns the server address
func (s *Server) GetAddr() string {
	if s.server != nil && s.config.Port == 0 {
		return s.server.Addr
	}
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// handleOptions handles CORS preflight requests
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	// CORS headers are already set by middleware
	w.WriteHeader(http.StatusOK)
}
