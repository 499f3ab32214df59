// Command releases resolves the app catalog once and writes the result.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"subgate/internal/releases"
	"subgate/pkg/cfg"
	"subgate/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	in := flag.String("in", cfg.String("RELEASES_CATALOG", "public/os.json"), "catalog with githubReleases entries")
	out := flag.String("out", cfg.String("RELEASES_OUTPUT", "public/os-resolved.json"), "where to write the resolved catalog")
	apiBase := flag.String("api", cfg.String("RELEASES_API_BASE", "https://api.github.com"), "release API base url")
	timeout := flag.Duration("timeout", cfg.Duration("RELEASES_TIMEOUT", 2*time.Minute), "overall deadline")
	flag.Parse()

	cleanup := logger.Setup(cfg.String("APP_ENV", "dev"), cfg.String("LOG_LEVEL", "info"))
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	r := releases.NewResolver(*apiBase, cfg.String("GITHUB_TOKEN", ""), nil, logger.Component("releases"))
	if _, err := r.ResolveFile(ctx, *in, *out); err != nil {
		fmt.Fprintf(os.Stderr, "resolve releases: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("resolved %s -> %s\n", *in, *out)
}
