package main

import (
	"net/http"
	"time"

	"github.com/tiptoro/gateway/internal/config"
	"github.com/tiptoro/gateway/internal/infrastructure"
	"github.com/tiptoro/gateway/pkg/middleware"
)

// Server composes infrastructure, domain modules, and the HTTP stack.
type Server struct {
	infra   *infrastructure.Infrastructure
	modules *Modules
	handler http.Handler
	cfg     *config.Config
}

func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	modules, err := NewModules(infra, cfg)
	if err != nil {
		return nil, err
	}

	router := buildRouter(infra)
	modules.Mount(router)

	mw := middleware.New()
	mw.Use(middleware.Logger(infra.Logger))
	mw.Use(middleware.CORS(""))

	return &Server{
		infra:   infra,
		modules: modules,
		handler: mw.Apply(router),
		cfg:     cfg,
	}, nil
}

// Start brings up infrastructure, begins serving, and marks the service
// ready once every startup hook has finished.
func (s *Server) Start() error {
	if err := s.infra.Start(); err != nil {
		return err
	}

	serveHTTP(&s.cfg.Server, s.handler, s.infra.Lifecycle, s.infra.Logger)

	go func() {
		s.infra.Lifecycle.WaitForStartup()
		s.infra.Logger.Info("all subsystems ready")
	}()

	return nil
}

func (s *Server) Shutdown(timeout time.Duration) error {
	s.infra.Logger.Info("initiating shutdown")
	return s.infra.Lifecycle.Shutdown(timeout)
}
