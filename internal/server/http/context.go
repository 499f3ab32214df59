package httpserver

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	reqStartUnix = time.Now().UnixNano()
	reqCounter   uint64
)

// makeReqID returns external X-Request-Id if provided, otherwise generates UUIDv4;
// if uuid generation fails, fallback to timestamp+counter.
func makeReqID(c *fiber.Ctx) string {
	if hdr := c.Get("X-Request-Id"); hdr != "" {
		return hdr
	}
	if v, err := uuid.NewRandom(); err == nil {
		return v.String()
	}
	n := atomic.AddUint64(&reqCounter, 1)
	return fmt.Sprintf("%x-%x", reqStartUnix, n)
}

// reqID resolves the request id once per request.
func reqID(c *fiber.Ctx) string {
	if id, ok := c.Locals("reqid").(string); ok {
		return id
	}
	id := makeReqID(c)
	c.Locals("reqid", id)
	return id
}

// reqLogger returns a logger tagged with the request id and path.
func reqLogger(c *fiber.Ctx) zerolog.Logger {
	return log.With().
		Str("component", "gateway").
		Str("req", reqID(c)).
		Str("path", c.Path()).
		Logger()
}
