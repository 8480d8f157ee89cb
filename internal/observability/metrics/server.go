package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	rtsup "remindbot/internal/runtime/supervisor"
	logx "remindbot/pkg/logx"
)

const DefaultAddr = "127.0.0.1:9310"

// ServerConfig controls the optional /metrics listener.
type ServerConfig struct {
	Enabled bool
	Addr    string
	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool
}

// Server serves /metrics, /healthz and optionally pprof. Start, Stop and
// Reconfigure are serialized; the listener is restarted when it dies.
type Server struct {
	gatherer prometheus.Gatherer
	log      logx.Logger

	life sync.Mutex
	sup  *rtsup.Supervisor

	mu   sync.Mutex
	cfg  ServerConfig
	addr string
}

func NewServer(cfg ServerConfig, gatherer prometheus.Gatherer, log logx.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{cfg: cfg, gatherer: gatherer, log: log.With(logx.String("comp", "metrics"))}
}

// Addr reports the bound address while serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) config() ServerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Reconfigure applies cfg, restarting the listener when the address or the
// pprof switch changed.
func (s *Server) Reconfigure(ctx context.Context, cfg ServerConfig) {
	s.life.Lock()
	defer s.life.Unlock()

	prev := s.config()
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	if s.sup != nil && (!cfg.Enabled || prev.Addr != cfg.Addr || prev.Pprof != cfg.Pprof) {
		s.stopLocked(ctx)
	}
	s.startLocked(ctx)
}

// Start launches the listener unless it is disabled or already running.
func (s *Server) Start(ctx context.Context) {
	s.life.Lock()
	defer s.life.Unlock()
	s.startLocked(ctx)
}

func (s *Server) Stop(ctx context.Context) {
	s.life.Lock()
	defer s.life.Unlock()
	s.stopLocked(ctx)
}

func (s *Server) startLocked(ctx context.Context) {
	if s.sup != nil || !s.config().Enabled {
		return
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.sup.GoRestart("listen", s.serveOnce, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
}

func (s *Server) stopLocked(ctx context.Context) {
	if s.sup == nil {
		return
	}
	sup := s.sup
	s.sup = nil
	if err := sup.Stop(ctx); err != nil && ctx.Err() != nil {
		s.log.Warn("metrics stop timed out", logx.Err(err))
		return
	}
	s.log.Info("metrics stopped")
}

// Handler builds the mux served by the listener.
func (s *Server) Handler(withPprof bool) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if withPprof {
		mux.HandleFunc("/debug/pprof/", hpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", hpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", hpprof.Trace)
	}
	return mux
}

func (s *Server) serveOnce(ctx context.Context) error {
	cur := s.config()
	addr := strings.TrimSpace(cur.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if !isLoopbackAddr(addr) {
		s.log.Warn("metrics listening on a non-loopback address", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(cur.Pprof),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.addr = ""
		s.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	})
	defer stop()

	s.log.Info("metrics started", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", cur.Pprof))
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return nil
	}
	if errors.Is(err, http.ErrServerClosed) {
		return errors.New("metrics listener closed unexpectedly")
	}
	return err
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
