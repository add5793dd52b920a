package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"bizledger/internal/cache"
	"bizledger/internal/log"
	"bizledger/internal/services"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

// Options configures a Server. Zero values fall back to defaults.
type Options struct {
	DefaultOwnerID string
	Logger         *log.Logger
	// Janitor, when set, periodically drops idle rate-limit entries.
	Janitor *cache.Janitor
	// RateLimit is the number of writes allowed per client per minute.
	RateLimit int
}

type Server struct {
	http.Server
	svc          *services.ExpenseService
	logger       *log.Logger
	defaultOwner string
	limiter      *rateLimiter
	metrics      securityMetrics
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc *services.ExpenseService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	owner := opts.DefaultOwnerID
	if owner == "" {
		owner = "default"
	}

	s := &Server{
		svc:          svc,
		logger:       logger,
		defaultOwner: owner,
		limiter:      newRateLimiter(opts.RateLimit, time.Minute),
	}
	if opts.Janitor != nil {
		opts.Janitor.Register(s.limiter)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/types", s.handleListTypes)
	mux.HandleFunc("POST /api/types", s.handleSaveType)
	mux.HandleFunc("GET /api/types/{id}/labels", s.handleListLabels)
	mux.HandleFunc("POST /api/labels", s.handleSaveLabel)

	mux.HandleFunc("POST /api/vehicles", s.handleSaveVehicle)
	mux.HandleFunc("GET /api/vehicles/{id}/odometer", s.handleOdometer)
	mux.HandleFunc("GET /api/vehicles/{id}/ledger", s.handleLedger)

	mux.HandleFunc("POST /api/businesses", s.handleSaveBusiness)
	mux.HandleFunc("GET /api/business", s.handleBusiness)
	mux.HandleFunc("POST /api/ratio", s.handleRatio)

	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("GET /api/grid/{year}", s.handleGrid)
	mux.HandleFunc("GET /api/grid/{year}/export.xlsx", s.handleExportXLSX)

	var h http.Handler = mux
	h = s.withSecurity(h)
	h = s.withTrace(h)
	h = log.RequestIDMiddleware(RequestIDHeader, generateRequestID)(h)
	h = log.Middleware(logger)(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops the server once; later calls return nil.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		stats := s.metrics.snapshot()
		s.logger.InfoContext(ctx, "HTTP server shutting down",
			"rate_limit_hits", stats.RateLimitHits,
			"suspicious_requests", stats.SuspiciousRequests)
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// SecurityStats returns the counters collected since start.
func (s *Server) SecurityStats() SecurityStats {
	return s.metrics.snapshot()
}

// withTrace logs each completed request with its status and duration.
func (s *Server) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogHTTPEnd(r.Context(), r, rw.statusCode, time.Since(start).Milliseconds(), extractClientIP(r))
	})
}

// withSecurity applies security headers, flags probes and rate limits writes.
func (s *Server) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		clientIP := extractClientIP(r)
		setSecurityHeaders(w, r)

		if reason := suspiciousReason(r); reason != "" {
			s.metricsSuspicious()
			log.FromContext(ctx).WarnContext(ctx, "Suspicious request",
				log.FieldClientIP, clientIP,
				log.FieldPath, r.URL.Path,
				"reason", reason)
		}

		if r.Method != http.MethodGet && r.Method != http.MethodHead && !s.limiter.allow(clientIP, &s.metrics) {
			log.FromContext(ctx).WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").
				Header("Retry-After", "60").
				Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsSuspicious() {
	atomic.AddInt64(&s.metrics.suspiciousRequests, 1)
}

// responseWriter captures the status code written by a handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	NewResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.svc.Ping(ctx); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Readiness check failed", log.FieldError, err.Error())
		ErrorResponse(http.StatusServiceUnavailable, "backend unavailable").Write(w)
		return
	}
	NewResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}
