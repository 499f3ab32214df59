package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"

	"subgate/internal/headers"
	"subgate/internal/links"
	"subgate/internal/page"
	"subgate/internal/upstream"
)

// Upstream is the panel API as the handler sees it.
type Upstream interface {
	FetchInfo(ctx context.Context, path, rawQuery, identity string) upstream.Result[json.RawMessage]
	FetchLinks(ctx context.Context, path, rawQuery string) upstream.Result[string]
	FetchRaw(ctx context.Context, path, rawQuery, identity string) (*upstream.RawResponse, error)
}

// Renderer produces the page with embedded data.
type Renderer interface {
	Ready() error
	Render(data page.InitialData) ([]byte, error)
}

type subscriptionHandler struct {
	up    Upstream
	pages Renderer
}

func newSubscriptionHandler(up Upstream, pages Renderer) *subscriptionHandler {
	return &subscriptionHandler{up: up, pages: pages}
}

// serve is mounted on every subscription path.
func (h *subscriptionHandler) serve(c *fiber.Ctx) error {
	identity := c.Get(fiber.HeaderUserAgent)
	route, err := Classify(identity, c.Get(fiber.HeaderAccept))
	if errors.Is(err, ErrMissingIdentity) {
		Requests.WithLabelValues("redirect").Inc()
		return c.Redirect("/", fiber.StatusFound)
	}
	Requests.WithLabelValues(route.String()).Inc()

	path := strings.Clone(c.Path())
	rawQuery := string(c.Request().URI().QueryString())

	if route == RouteHTML {
		return h.serveHTML(c, path, rawQuery, identity)
	}
	return h.serveRaw(c, path, rawQuery, identity)
}

// serveHTML fetches user info and links concurrently; either may fail and the
// page still renders with what arrived.
func (h *subscriptionHandler) serveHTML(c *fiber.Ctx, path, rawQuery, identity string) error {
	logReq := reqLogger(c)

	// the template check comes first so a missing page costs no upstream calls
	if err := h.pages.Ready(); err != nil {
		logReq.Error().Err(err).Msg("page unavailable")
		return c.Status(http.StatusServiceUnavailable).SendString("page template is not available")
	}

	ctx := c.UserContext()
	var (
		info   upstream.Result[json.RawMessage]
		bundle upstream.Result[string]
		g      errgroup.Group
	)
	g.Go(func() error {
		info = h.up.FetchInfo(ctx, path, rawQuery, identity)
		return nil
	})
	g.Go(func() error {
		bundle = h.up.FetchLinks(ctx, path, rawQuery)
		return nil
	})
	_ = g.Wait()

	var data page.InitialData
	if info.OK() {
		data.User = info.Value
	} else {
		Degraded.WithLabelValues("user").Inc()
		logReq.Warn().Err(info.Err).Msg("user info unavailable, embedding null")
	}
	if bundle.OK() {
		data.Links = links.Normalize(bundle.Value)
	} else {
		Degraded.WithLabelValues("links").Inc()
		logReq.Warn().Err(bundle.Err).Msg("link bundle unavailable, embedding no links")
	}

	body, err := h.pages.Render(data)
	if err != nil {
		logReq.Error().Err(err).Msg("render page")
		return c.Status(http.StatusServiceUnavailable).SendString("page template is not available")
	}

	logReq.Debug().Bool("user", data.User != nil).Int("links", len(data.Links)).Msg("page rendered")
	c.Type("html", "utf-8")
	return c.Status(http.StatusOK).Send(body)
}

// serveRaw streams the panel response to a subscription client. It never
// substitutes a payload: any failure is a plain-text error.
func (h *subscriptionHandler) serveRaw(c *fiber.Ctx, path, rawQuery, identity string) error {
	logReq := reqLogger(c)

	raw, err := h.up.FetchRaw(c.UserContext(), path, rawQuery, identity)
	if err != nil {
		Aborts.WithLabelValues("upstream").Inc()
		logReq.Error().Err(err).Msg("raw proxy upstream call failed")
		return c.Status(http.StatusBadGateway).SendString("upstream error: " + describe(err))
	}

	fields, err := headers.Forwardable(raw.HeaderBlock)
	if err != nil {
		_ = raw.Body.Close()
		Aborts.WithLabelValues("headers").Inc()
		logReq.Error().Err(err).Int("status", raw.Status).Msg("raw proxy response rejected")
		return c.Status(http.StatusBadGateway).SendString("Error! " + capitalize(err.Error()) + ".")
	}

	for _, f := range fields {
		c.Response().Header.Add(f.Name, f.Value)
	}
	logReq.Debug().Int("status", raw.Status).Int("headers", len(fields)).Msg("raw proxy")

	c.Status(raw.Status)
	return c.SendStream(raw.Body)
}

// describe drops the upstream URL from call errors; clients only see the cause.
func describe(err error) string {
	var ce *upstream.CallError
	if errors.As(err, &ce) && ce.Status != 0 {
		return fmt.Sprintf("status %d", ce.Status)
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err.Error()
	}
	if ce != nil && ce.Err != nil {
		return ce.Err.Error()
	}
	return err.Error()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
