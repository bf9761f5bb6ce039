// Package gateway is the dialdesk HTTP surface: carrier webhooks, the admin
// and metrics API, and the live dashboard WebSocket feed.
package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/soyeahso/dialdesk/internal/config"
	"github.com/soyeahso/dialdesk/internal/logging"
	"github.com/soyeahso/dialdesk/internal/routing"
	"github.com/soyeahso/dialdesk/internal/store"
	"github.com/soyeahso/dialdesk/internal/version"
)

// CallPlacer places outbound calls through the carrier.
type CallPlacer interface {
	PlaceCall(ctx context.Context, toNumber, voiceURL, statusCallbackURL string) (string, error)
}

// Server is the dialdesk gateway HTTP + WebSocket server.
type Server struct {
	cfg     config.Config
	log     *logging.Logger
	coord   *routing.Coordinator
	ledger  *store.AgentLedger
	calls   *store.CallStore
	metrics *store.MetricsStore
	hub     *Hub
	dialer  CallPlacer
	version string

	webhookLimiter *rate.Limiter

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithDialer sets the outbound call placer. Without one the request_call
// endpoint reports the feature unavailable.
func WithDialer(d CallPlacer) ServerOption {
	return func(s *Server) {
		s.dialer = d
	}
}

// New creates a gateway server.
func New(cfg config.Config, log *logging.Logger, coord *routing.Coordinator,
	ledger *store.AgentLedger, calls *store.CallStore, metrics *store.MetricsStore,
	hub *Hub, opts ...ServerOption) *Server {

	allowedOrigins := cfg.Gateway.AllowedOrigins
	s := &Server{
		cfg:            cfg,
		log:            log.Sub("gateway"),
		coord:          coord,
		ledger:         ledger,
		calls:          calls,
		metrics:        metrics,
		hub:            hub,
		version:        version.Version,
		webhookLimiter: newRateLimiter(cfg.Gateway.WebhookRate),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(allowedOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newRateLimiter(cfg config.RateLimit) *rate.Limiter {
	if cfg.PerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(cfg.PerMinute)/60.0), burst)
}

// checkWebSocketOrigin returns a function that validates WebSocket Origin
// headers. If no origins are configured, only same-origin (no Origin header)
// or non-browser clients are allowed.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan", "auto":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start begins listening for HTTP and WebSocket connections. It blocks until
// the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Gateway)

	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)

	handler := withMiddleware(mux, s.log, s.cfg.Gateway.AllowedOrigins)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.Gateway.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.Gateway.TLS.CertPath, s.cfg.Gateway.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		tlsCfg := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		ln = tls.NewListener(ln, tlsCfg)
		s.log.Info().Msg("TLS enabled")
	} else if s.cfg.Gateway.Bind != "loopback" {
		s.log.Warn().Msg("TLS is not enabled — webhook traffic will be transmitted in cleartext")
	}

	s.startedAt = time.Now()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Gateway.Bind).
		Bool("auth", s.cfg.Gateway.Auth.Token != "").
		Msg("gateway server ready")

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.hub.CloseAll()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}
