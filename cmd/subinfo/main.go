// Command subinfo resolves a subscription page's user info and links the way
// the page does: from a saved page's embedded data when given, otherwise from
// the panel API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"subgate/internal/config"
	"subgate/pkg/cache"
	"subgate/pkg/cfg"
	"subgate/pkg/hydration"
	"subgate/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	origin := flag.String("origin", cfg.String("SUBINFO_ORIGIN", ""), "panel origin, e.g. https://panel.example.com")
	path := flag.String("path", "", "subscription page path, e.g. /sub/<token>")
	saved := flag.String("page", "", "saved page html with embedded data (optional)")
	configPath := flag.String("config", "", "gateway config to take cache settings from (optional)")
	flag.Parse()

	cleanup := logger.Setup(cfg.String("APP_ENV", "dev"), cfg.String("LOG_LEVEL", "info"))
	defer cleanup()

	if *origin == "" || *path == "" {
		fmt.Fprintln(os.Stderr, "usage: subinfo -origin https://panel.example.com -path /sub/<token> [-page saved.html] [-config config.yaml]")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	slot := hydration.NewSlot()
	if *saved != "" {
		html, err := os.ReadFile(*saved)
		if err != nil {
			log.Fatal().Err(err).Str("page", *saved).Msg("read saved page")
		}
		data, err := hydration.FromPage(html)
		if err != nil {
			log.Fatal().Err(err).Msg("extract embedded data")
		}
		if data != nil {
			if err := slot.Set(data); err != nil {
				log.Fatal().Err(err).Msg("install embedded data")
			}
		}
	}

	store, ttl, closeStore := openStore(ctx, *configPath)
	defer closeStore()

	fetcher := hydration.NewFetcher(
		hydration.WithStore(store),
		hydration.WithTTL(ttl),
		hydration.WithLogger(logger.Component("hydration")),
	)
	client := hydration.NewClient(slot, fetcher, *origin)

	info, err := client.GetInfo(ctx, *path)
	if err != nil {
		log.Fatal().Err(err).Msg("user info")
	}
	fmt.Printf("info (%d):\n%s\n", info.Status, info.Body)

	configs, err := client.GetConfigs(ctx, *path)
	if err != nil {
		log.Fatal().Err(err).Msg("configs")
	}
	fmt.Printf("configs (%d):\n%s\n", configs.Status, configs.Body)
}

// openStore picks the response cache from the config's cache section. Redis
// that cannot be reached falls back to memory.
func openStore(ctx context.Context, configPath string) (hydration.Store, time.Duration, func()) {
	noop := func() {}
	if configPath == "" {
		return hydration.NewMemoryStore(), hydration.DefaultTTL, noop
	}

	conf, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", configPath).Msg("load config")
	}
	ttl := config.ParseDuration(conf.Cache.TTL, hydration.DefaultTTL)
	if conf.Cache.Driver != "redis" {
		return hydration.NewMemoryStore(), ttl, noop
	}

	rc := cache.LoadConfigFromEnv().Merge(cache.Config{
		Addr:       cache.Addr(conf.Cache.Host, conf.Cache.Port),
		Password:   conf.Cache.Pass,
		DB:         conf.Cache.Db,
		DefaultTTL: ttl,
	})

	r, err := cache.Init(ctx, rc)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using memory cache")
		return hydration.NewMemoryStore(), ttl, noop
	}
	return hydration.NewRedisStore(cache.New(r), ttl), ttl, func() { _ = r.Close() }
}
