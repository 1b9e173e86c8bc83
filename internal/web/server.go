package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gcslink/internal/bus"
	"gcslink/internal/fc"
	"gcslink/internal/router"
)

// ConnectionManager is the subset of the flight controller manager the
// HTTP layer needs.
type ConnectionManager interface {
	Connect(ctx context.Context, cfg fc.ConnectionConfig) error
	Disconnect(ctx context.Context, userRequested bool)
	Status() fc.Status
}

// Server exposes the REST API and the WebSocket streams.
type Server struct {
	logger  *slog.Logger
	manager ConnectionManager
	router  *router.Router
	bus     bus.MessageBus
	build   BuildInfo
	ports   func() ([]string, error)

	httpSrv *http.Server
}

func NewServer(logger *slog.Logger, addr string, manager ConnectionManager, rt *router.Router, b bus.MessageBus, build BuildInfo) *Server {
	s := &Server{
		logger:  logger,
		manager: manager,
		router:  rt,
		bus:     b,
		build:   build,
		ports:   fc.ListSerialPorts,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/api/about", s.handleAbout)

	r.Route("/api/fc", func(r chi.Router) {
		r.Post("/connect", s.handleConnect)
		r.Post("/disconnect", s.handleDisconnect)
		r.Get("/status", s.handleStatus)
		r.Get("/ports", s.handlePorts)
	})

	r.Get("/ws/fc/{topic}", s.handleTopicStream)
	r.Get("/ws/connection", s.handleConnectionStream)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpSrv.Addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}
