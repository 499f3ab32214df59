// Package hydration is the page-side data layer: it answers user info and
// link requests from data embedded in the page when present, and otherwise
// from the panel API through a short-lived GET cache.
package hydration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Client resolves the data a subscription page needs.
type Client struct {
	slot    *Slot
	fetcher *Fetcher
	origin  string
}

// NewClient wires the embedded-data slot and the fetch layer. origin is the
// panel domain (or page origin) that live requests go to.
func NewClient(slot *Slot, fetcher *Fetcher, origin string) *Client {
	if slot == nil {
		slot = NewSlot()
	}
	if fetcher == nil {
		fetcher = NewFetcher()
	}
	return &Client{slot: slot, fetcher: fetcher, origin: strings.TrimRight(origin, "/")}
}

// GetInfo returns the user document. Embedded data yields the user object with
// its links attached under "links", the same shape the info endpoint returns.
func (c *Client) GetInfo(ctx context.Context, pagePath string) (*Response, error) {
	if d, ok := c.slot.Get(); ok && d.hasUser() {
		body, err := withLinks(d.User, d.Links)
		if err == nil {
			EmbeddedHits.WithLabelValues("info").Inc()
			return &Response{Status: http.StatusOK, Header: jsonHeader(), Body: body}, nil
		}
		c.fetcher.log.Warn().Err(err).Msg("embedded user data unusable, fetching")
	}

	resp, err := c.fetcher.Send(ctx, http.MethodGet, c.pageURL(pagePath)+"/info", Options{NotifyError: true})
	if err != nil {
		return nil, fmt.Errorf("get info: %w", err)
	}
	return resp, nil
}

// GetConfigs returns the link bundle as newline-joined text.
func (c *Client) GetConfigs(ctx context.Context, pagePath string) (*Response, error) {
	if d, ok := c.slot.Get(); ok && len(d.Links) > 0 {
		EmbeddedHits.WithLabelValues("configs").Inc()
		return &Response{
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
			Body:   []byte(strings.Join(d.Links, "\n")),
		}, nil
	}

	resp, err := c.fetcher.Send(ctx, http.MethodGet, c.pageURL(pagePath), Options{NotifyError: true})
	if err != nil {
		return nil, fmt.Errorf("get configs: %w", err)
	}
	return resp, nil
}

func (c *Client) pageURL(pagePath string) string {
	if i := strings.IndexByte(pagePath, '#'); i >= 0 {
		pagePath = pagePath[:i]
	}
	if pagePath != "" && !strings.HasPrefix(pagePath, "/") {
		pagePath = "/" + pagePath
	}
	return c.origin + pagePath
}

func withLinks(user json.RawMessage, links []string) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(user, &obj); err != nil {
		return nil, fmt.Errorf("decode embedded user: %w", err)
	}
	if links == nil {
		links = []string{}
	}
	l, err := json.Marshal(links)
	if err != nil {
		return nil, err
	}
	obj["links"] = l
	return json.Marshal(obj)
}

func jsonHeader() http.Header {
	return http.Header{"Content-Type": []string{"application/json"}}
}
