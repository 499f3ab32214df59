package httpserver

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"subgate/internal/config"
	"subgate/internal/page"
	"subgate/internal/releases"
)

// Deps are the collaborators the routes are built from.
type Deps struct {
	Upstream Upstream
	Pages    *page.Store
	Catalog  *releases.Catalog
}

// Server wraps Fiber app and configuration.
type Server struct {
	app *fiber.App
	cfg *config.FinalConfig
}

// New builds a Fiber server with common middlewares.
func New(cfg *config.FinalConfig, deps Deps) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "subgate",
		ReadTimeout:           time.Duration(cfg.Gateway.ReadTimeoutSec) * time.Second,
		WriteTimeout:          time.Duration(cfg.Gateway.WriteTimeoutSec) * time.Second,
		IdleTimeout:           time.Duration(cfg.Gateway.IdleTimeoutSec) * time.Second,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())

	RegisterRoutes(app, cfg, deps)

	return &Server{app: app, cfg: cfg}
}

// App exposes the Fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Start runs Fiber server and handles graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := cfgAddress(s.cfg.Gateway.Address)
	log.Info().Str("addr", addr).Str("upstream", s.cfg.Upstream.BaseURL).Msg("subgate listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(addr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.Gateway.ShutdownTimeoutSec)*time.Second)
		defer cancel()
		return s.app.ShutdownWithContext(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func cfgAddress(addr string) string {
	if addr == "" {
		return ":" // default Fiber listens on 0.0.0.0
	}
	return addr
}
