// Package http serves the sync daemon's status surface: health, sync
// status, the dashboard figures, manual push/pull and prometheus metrics.
package http

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nirmaan/internal/ledger"
	"nirmaan/internal/log"
	"nirmaan/internal/services"
)

// SyncService is what the server needs from the sync engine.
type SyncService interface {
	Push(ctx context.Context) services.Report
	Pull(ctx context.Context) services.Report
	Status() services.Status
	Online() bool
}

// Snapshotter provides the ledger state the dashboard is computed from.
type Snapshotter interface {
	Snapshot() ledger.Snapshot
}

// Options tune the server. Zero values pick the defaults.
type Options struct {
	// Gatherer backs /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer
	// SyncRateLimit caps manual push/pull requests per client per minute (default: 12)
	SyncRateLimit int
	// SyncTimeout bounds one manual push or pull (default: 2m)
	SyncTimeout time.Duration
	// Ready reports whether background sync is running. /healthz answers
	// 503 while it returns false. Nil means always ready.
	Ready  func() bool
	Logger *log.Logger
}

type Server struct {
	http.Server
	sync        SyncService
	ledger      Snapshotter
	log         *log.Logger
	limiter     *windowLimiter
	syncTimeout time.Duration
	ready       func() bool

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run server.
func NewServer(addr string, svc SyncService, snap Snapshotter, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default(log.ComponentHTTP)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.SyncRateLimit <= 0 {
		opts.SyncRateLimit = 12
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = 2 * time.Minute
	}

	mux := http.NewServeMux()
	s := &Server{
		sync:        svc,
		ledger:      snap,
		log:         opts.Logger.WithComponent(log.ComponentHTTP),
		limiter:     newWindowLimiter(opts.SyncRateLimit, time.Minute),
		syncTimeout: opts.SyncTimeout,
		ready:       opts.Ready,
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           log.Middleware(s.log)(withSecurityHeaders(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /dashboard", s.handleDashboard)
	mux.HandleFunc("POST /sync/push", s.withRateLimit(s.handleSync(services.DirectionPush)))
	mux.HandleFunc("POST /sync/pull", s.withRateLimit(s.handleSync(services.DirectionPull)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	return s
}

// Shutdown stops the rate limiter cleanup and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client := clientAddr(r)
		ok, wait := s.limiter.allow(client, time.Now())
		if !ok {
			s.log.WarnContext(r.Context(), "Rate limit exceeded", "client_ip", client, log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}
		next(w, r)
	}
}
