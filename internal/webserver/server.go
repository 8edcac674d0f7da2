// Package webserver はOAuthコールバック、ヘルスチェック、メトリクス、
// オーバーレイ用WebSocketを1つのHTTPサーバーで提供する。
package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nantokaworks/twitch-lighter/internal/shared/logger"
	"github.com/nantokaworks/twitch-lighter/internal/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Options struct {
	Port int
	// Callback handles the OAuth redirect on /callback.
	Callback http.Handler
	Hub      *Hub
	// Transports reports which event sources are connected (for /health).
	Transports func() map[string]bool
}

type Server struct {
	opts Options
	srv  *http.Server
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status     string          `json:"status"`
	Version    version.Info    `json:"version"`
	Transports map[string]bool `json:"transports,omitempty"`
	Overlays   int             `json:"overlays"`
}

func New(opts Options) *Server {
	s := &Server{opts: opts}
	s.srv = &http.Server{
		Addr:        fmt.Sprintf(":%d", opts.Port),
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	return s
}

// Handler returns the router. WebSocketは長時間接続のためWriteTimeoutは設定しない。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	if s.opts.Callback != nil {
		mux.Handle("/callback", s.opts.Callback)
	}
	if s.opts.Hub != nil {
		mux.Handle("/ws", s.opts.Hub)
	}
	// ルートパスへのアクセスは404を返す
	mux.HandleFunc("/", http.NotFound)
	return mux
}

// Start binds the port and serves in the background. Binding errors are
// returned immediately.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to start web server on port %d: %w", s.opts.Port, err)
	}

	if s.opts.Hub != nil {
		go s.opts.Hub.Run()
	}

	logger.Info("Starting web server", zap.String("address", s.srv.Addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Web server stopped unexpectedly", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the web server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.opts.Hub != nil {
		s.opts.Hub.Stop()
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown web server gracefully: %w", err)
	}
	logger.Info("Web server shutdown complete")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Version: version.Current()}
	if s.opts.Transports != nil {
		resp.Transports = s.opts.Transports()
	}
	if s.opts.Hub != nil {
		resp.Overlays = s.opts.Hub.ClientCount()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("Failed to write health response", zap.Error(err))
	}
}

