// Package api provides the HTTP API server for costrisk
// It exposes the regression detector, predictor, simulator, seasonality
// detector and the full analysis pipeline as JSON endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"costrisk/decision/cost"
	"costrisk/decision/estimation"
	"costrisk/decision/iac"
	"costrisk/decision/montecarlo"
	"costrisk/decision/policy"
	"costrisk/decision/probabilistic"
	"costrisk/decision/regression"
	"costrisk/decision/seasonality"
	riskerrors "costrisk/pkg/errors"
	"costrisk/pkg/platform"
)

const requestIDHeader = "X-Request-ID"

// HistoryStore is the persistence the server can use. Both the ClickHouse and
// PostgreSQL stores satisfy it.
type HistoryStore interface {
	estimation.HistorySource
	Ping(ctx context.Context) error
	RecordAnalysis(ctx context.Context, a *estimation.Analysis) error
}

// Server is the HTTP API server
type Server struct {
	httpServer   *http.Server
	store        HistoryStore
	engine       *estimation.Engine
	detector     *regression.Detector
	predictor    *probabilistic.Predictor
	policyEngine *policy.Engine
	config       *Config
	logger       *slog.Logger
	registry     *prometheus.Registry
	metrics      *metrics
}

// Config holds server configuration
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64
	CORSOrigins    []string
	// APIKey, when set, is required on /api/v1 routes.
	APIKey         string
	Estimation     estimation.Config
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxRequestSize: 10 * 1024 * 1024, // 10MB
		CORSOrigins:    []string{"*"},
		Estimation:     estimation.DefaultConfig(),
	}
}

type metrics struct {
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	simulation prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "costrisk",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "costrisk",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		simulation: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "costrisk",
			Name:      "simulation_duration_seconds",
			Help:      "Monte Carlo simulation wall time",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}),
	}
}

// NewServer creates a new API server. store may be nil, in which case
// analyses use only the history supplied in requests.
func NewServer(store HistoryStore, config *Config, logger *slog.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	engine := estimation.NewEngine(config.Estimation).WithLogger(logger)
	if store != nil {
		engine.WithHistorySource(store)
	}

	registry := prometheus.NewRegistry()

	return &Server{
		store:        store,
		engine:       engine,
		detector:     regression.NewDetector(config.Estimation.Weights),
		predictor:    probabilistic.NewPredictor(config.Estimation.Predictor),
		policyEngine: policy.NewEngine(),
		config:       config,
		logger:       logger,
		registry:     registry,
		metrics:      newMetrics(registry),
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	v1 := http.NewServeMux()
	s.route(v1, "/api/v1/detect", s.handleDetect)
	s.route(v1, "/api/v1/predict", s.handlePredict)
	s.route(v1, "/api/v1/simulate", s.handleSimulate)
	s.route(v1, "/api/v1/seasonality", s.handleSeasonality)
	s.route(v1, "/api/v1/analyze", s.handleAnalyze)

	mux := http.NewServeMux()
	s.route(mux, "/health", s.handleHealth)
	s.route(mux, "/ready", s.handleReady)
	mux.Handle("/api/v1/", platform.APIKeyMiddleware(s.config.APIKey, v1))
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("costrisk API server starting", "port", s.config.Port)
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown starts server with graceful shutdown handling
func (s *Server) StartWithGracefulShutdown() error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-quit:
		s.logger.Info("shutting down server", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// route registers h and records per-route metrics.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.metrics.requests.WithLabelValues(pattern, r.Method, fmt.Sprint(rec.status)).Inc()
		s.metrics.latency.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"remote", r.RemoteAddr,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+platform.APIKeyHeader+", "+requestIDHeader)
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "1.0.0",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.jsonResponse(w, http.StatusOK, map[string]string{
			"status":  "ready",
			"history": "disabled",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("history store not ready", "error", err)
		s.jsonError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ready",
		"history": "connected",
	})
}

// =============================================================================
// COMPONENT ENDPOINTS
// =============================================================================

// DetectRequest scores planned changes without running the full pipeline.
type DetectRequest struct {
	Resources []estimation.ResourceInput `json:"resources"`
}

// DetectResponse lists one detection per resource, in request order.
type DetectResponse struct {
	Detections      []regression.Detection `json:"detections"`
	HighestSeverity regression.Severity    `json:"highest_severity"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if !s.decode(w, r, &req) {
		return
	}

	resp := DetectResponse{
		Detections:      make([]regression.Detection, 0, len(req.Resources)),
		HighestSeverity: regression.SeverityLow,
	}
	for _, in := range req.Resources {
		d := s.detector.Detect(in.Change, in.Estimate)
		if d.Severity.Rank() > resp.HighestSeverity.Rank() {
			resp.HighestSeverity = d.Severity
		}
		resp.Detections = append(resp.Detections, d)
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// PredictRequest asks for uncertainty bands around one point estimate.
type PredictRequest struct {
	ResourceID   string  `json:"resource_id"`
	ResourceType string  `json:"resource_type"`
	BaseCost     float64 `json:"base_cost"`
	Confidence   float64 `json:"confidence"`
	ColdStart    bool    `json:"cold_start"`
}

// PredictResponse carries the estimate and its scenario view.
type PredictResponse struct {
	Estimate  probabilistic.Estimate         `json:"estimate"`
	Scenarios probabilistic.ScenarioAnalysis `json:"scenarios"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ResourceType == "" {
		s.jsonError(w, http.StatusBadRequest, "resource_type is required")
		return
	}

	est := s.predictor.GenerateEstimate(req.BaseCost, req.Confidence, req.ResourceType, req.ColdStart, req.ResourceID)
	s.jsonResponse(w, http.StatusOK, PredictResponse{
		Estimate:  est,
		Scenarios: est.ToScenarioAnalysis(),
	})
}

// SimulateRequest runs a Monte Carlo simulation over explicit inputs.
// Zero RunCount and Seed fall back to the server defaults.
type SimulateRequest struct {
	Inputs   []montecarlo.UncertaintyInput `json:"inputs"`
	RunCount int                           `json:"run_count,omitempty"`
	Seed     uint64                        `json:"seed,omitempty"`
	Budget   *float64                      `json:"budget,omitempty"`
}

// SimulateResponse wraps the simulation result.
type SimulateResponse struct {
	Result *montecarlo.Result `json:"result"`

	// BreachProbability is P(total > budget), present when a budget was sent.
	BreachProbability *float64 `json:"breach_probability,omitempty"`
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if !s.decode(w, r, &req) {
		return
	}

	cfg := s.config.Estimation.Simulation
	if req.RunCount != 0 {
		cfg.RunCount = req.RunCount
	}
	if req.Seed != 0 {
		cfg.Seed = req.Seed
	}

	start := time.Now()
	result, err := montecarlo.NewSimulator(cfg).Run(r.Context(), req.Inputs)
	if err != nil {
		s.handleError(w, "simulation failed", err)
		return
	}
	s.metrics.simulation.Observe(time.Since(start).Seconds())

	resp := SimulateResponse{Result: result}
	if req.Budget != nil {
		p := result.ProbabilityAbove(*req.Budget)
		resp.BreachProbability = &p
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// SeasonalityRequest analyzes a daily cost series. A zero Threshold uses the
// configured default.
type SeasonalityRequest struct {
	Series    []seasonality.CostPoint `json:"series"`
	Threshold float64                 `json:"threshold,omitempty"`
	BaseCost  *float64                `json:"base_cost,omitempty"`
}

// SeasonalityResponse carries the analysis and, when a base cost was sent,
// the adjusted cost.
type SeasonalityResponse struct {
	Analysis     seasonality.Analysis `json:"analysis"`
	AdjustedCost *float64             `json:"adjusted_cost,omitempty"`
}

func (s *Server) handleSeasonality(w http.ResponseWriter, r *http.Request) {
	var req SeasonalityRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Threshold < 0 || req.Threshold >= 1 {
		s.jsonError(w, http.StatusBadRequest, "threshold must be in [0, 1)")
		return
	}

	cfg := s.config.Estimation.Seasonality
	if req.Threshold > 0 {
		cfg.Threshold = req.Threshold
	}
	analysis := seasonality.NewDetector(cfg).Detect(req.Series)

	resp := SeasonalityResponse{Analysis: analysis}
	if req.BaseCost != nil {
		adjusted := analysis.Apply(*req.BaseCost)
		resp.AdjustedCost = &adjusted
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// =============================================================================
// ANALYZE ENDPOINT
// =============================================================================

// AnalyzeRequest runs the full pipeline. Plan, when set, is a Terraform plan
// JSON whose changes are merged with Resources; Estimates attaches cost
// estimates to plan resources by address.
type AnalyzeRequest struct {
	estimation.Request
	Plan      json.RawMessage          `json:"plan,omitempty"`
	Estimates map[string]cost.Estimate `json:"estimates,omitempty"`
	Policies  []policy.Policy          `json:"policies,omitempty"`
	CostLimit *float64                 `json:"cost_limit,omitempty"`
}

// AnalyzeResponse is the analysis plus its policy decision.
type AnalyzeResponse struct {
	Analysis *estimation.Analysis     `json:"analysis"`
	Policy   *policy.EvaluationResult `json:"policy"`
	Summary  estimation.RunSummary    `json:"summary"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx := r.Context()

	if len(req.Plan) > 0 {
		changes, err := iac.NewParser().ParseBytes(req.Plan)
		if err != nil {
			s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid terraform plan: %v", err))
			return
		}
		for _, c := range changes {
			in := estimation.ResourceInput{Change: c}
			if est, ok := req.Estimates[c.ID]; ok {
				est := est
				in.Estimate = &est
			}
			req.Resources = append(req.Resources, in)
		}
	}
	if len(req.Resources) == 0 {
		s.jsonError(w, http.StatusBadRequest, "no resources to analyze")
		return
	}

	start := time.Now()
	analysis, err := s.engine.Analyze(ctx, req.Request)
	if err != nil {
		s.handleError(w, "analysis failed", err)
		return
	}
	if analysis.Simulation != nil {
		s.metrics.simulation.Observe(time.Since(start).Seconds())
	}

	policies := req.Policies
	if req.CostLimit != nil {
		policies = append(policies, policy.Policy{
			ID:        "api-cost-limit",
			Name:      "Cost Limit",
			Type:      policy.PolicyTypeCostLimit,
			Severity:  policy.SeverityError,
			Threshold: *req.CostLimit,
			Enabled:   true,
		})
	}

	polResult, err := s.policyEngine.Evaluate(policy.EvaluationRequest{
		Analysis:       analysis,
		Environment:    req.Environment,
		CustomPolicies: policies,
	})
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("policy evaluation failed: %v", err))
		return
	}

	if s.store != nil {
		if err := s.store.RecordAnalysis(ctx, analysis); err != nil {
			// the caller still gets the result
			s.logger.Warn("failed to record analysis",
				"run_id", analysis.AuditTrail.RunID,
				"error", err,
			)
		}
	}

	s.jsonResponse(w, http.StatusOK, AnalyzeResponse{
		Analysis: analysis,
		Policy:   polResult,
		Summary:  analysis.Summary(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode enforces POST, limits the body and decodes JSON into v. It writes
// the error response and returns false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Method != http.MethodPost {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return false
	}
	return true
}

func (s *Server) handleError(w http.ResponseWriter, msg string, err error) {
	if riskerrors.IsValidation(err) {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("%s: %v", msg, err),
			"code":  codeOf(err),
		})
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.jsonError(w, http.StatusServiceUnavailable, msg)
		return
	}
	s.logger.Error(msg, "error", err)
	s.jsonError(w, http.StatusInternalServerError, fmt.Sprintf("%s: %v", msg, err))
}

func codeOf(err error) string {
	var rerr *riskerrors.Error
	if errors.As(err, &rerr) {
		return rerr.Code
	}
	return ""
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}
