//go:build linux
// +build linux

package core

import (
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fzft/go-edge-proxy/config"
	"github.com/fzft/go-edge-proxy/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server wires a TCP listener into a reactor and runs it until a stop
// signal arrives.
type Server struct {
	cfg     *config.Config
	handler AppHandler
}

func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// SetHandler overrides the app handler chosen from the config (echo, or
// relay when an upstream is set).
func (s *Server) SetHandler(handler AppHandler) {
	s.handler = handler
}

func (s *Server) Run() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		log.Logger.Error("listen error", zap.Error(err))
		return err
	}

	reactor, err := NewReactor(ln, sigCh, s.cfg)
	if err != nil {
		return err
	}

	if s.handler != nil {
		reactor.SetHandler(s.handler)
	}

	if s.cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(s.cfg.MetricsAddr, mux); err != nil {
				log.Logger.Error("metrics endpoint error", zap.Error(err))
			}
		}()
	}

	log.Logger.Info("listening",
		zap.String("addr", s.cfg.ListenAddr),
		zap.String("upstream", s.cfg.UpstreamAddr))
	reactor.Run()
	log.Logger.Info("shutting down server")
	return nil
}
