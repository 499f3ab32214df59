package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"subgate/internal/config"
	"subgate/internal/page"
	"subgate/internal/releases"
	httpserver "subgate/internal/server/http"
	"subgate/internal/upstream"
	"subgate/pkg/cfg"
	"subgate/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	env := cfg.String("APP_ENV", "dev")
	configPath := cfg.String("APP_CONFIG", "config.yaml")

	conf, err := config.Build(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build config")
	}

	cleanup := logger.Setup(env, conf.Log.Level)
	defer cleanup()

	pages := page.NewStore(conf.Page.Template, conf.Page.Placeholder, logger.Component("page"))
	if err := pages.Reload(); err != nil {
		log.Warn().Err(err).Msg("page template not loaded")
	}

	// the host check is printed as plain text: it is read by whoever deploys the gateway
	if err := httpserver.CheckHost(conf, pages); err != nil {
		fmt.Fprintf(os.Stderr, "subgate cannot run on this host: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if conf.Page.Watch {
		go func() {
			if err := pages.Watch(ctx, 200*time.Millisecond); err != nil {
				log.Warn().Err(err).Msg("page template watch stopped")
			}
		}()
	}

	deps := httpserver.Deps{
		Upstream: upstream.New(conf.Upstream, conf.Timeouts, upstream.WithLogger(logger.Component("upstream"))),
		Pages:    pages,
	}

	if conf.Releases.Catalog != "" {
		resolver := releases.NewResolver(conf.Releases.APIBase, conf.Releases.Token, nil, logger.Component("releases"))
		catalog := releases.NewCatalog(resolver, conf.Releases.Catalog, conf.Releases.Output, logger.Component("releases"))
		if err := catalog.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("initial release catalog refresh failed")
		}
		if err := catalog.Start(ctx, conf.Releases.Schedule); err != nil {
			log.Fatal().Err(err).Msg("failed to schedule release catalog")
		}
		defer catalog.Stop()
		deps.Catalog = catalog
	}

	srv := httpserver.New(conf, deps)
	if err := srv.Start(ctx); err != nil {
		log.Error().Err(err).Msg("server error")
	}
}
