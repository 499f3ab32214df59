package httpserver

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"subgate/internal/config"
	"subgate/internal/releases"
)

// RegisterRoutes mounts service endpoints first and the subscription handler
// on every other GET path.
func RegisterRoutes(app *fiber.App, cfg *config.FinalConfig, deps Deps) {
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	if strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV"))) == "dev" {
		app.Get("/debug/config", func(c *fiber.Ctx) error { return c.JSON(cfg) })
	}
	if deps.Catalog != nil {
		app.Get("/apps.json", catalogHandler(deps.Catalog))
	}

	h := newSubscriptionHandler(deps.Upstream, deps.Pages)
	app.Get("/*", h.serve)
}

func catalogHandler(cat *releases.Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body, err := cat.Current()
		if errors.Is(err, releases.ErrNotResolved) {
			return c.Status(http.StatusServiceUnavailable).SendString("release catalog not resolved yet")
		}
		if err != nil {
			return c.Status(http.StatusInternalServerError).SendString(err.Error())
		}
		c.Type("json", "utf-8")
		return c.Send(body)
	}
}
