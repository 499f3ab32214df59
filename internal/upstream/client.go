// Package upstream talks to the subscription panel. Each call is single-shot
// with its own deadline and identity; none of them retry.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"subgate/internal/config"
)

const (
	CallInfo  = "info"
	CallLinks = "links"
	CallRaw   = "raw"
)

// Result carries either a value or the reason it could not be fetched.
// Callers decide whether the failure degrades or aborts.
type Result[T any] struct {
	Value T
	Err   error
}

func (r Result[T]) OK() bool { return r.Err == nil }

// CallError describes a failed upstream call. Status is zero for transport failures.
type CallError struct {
	Call   string
	URL    string
	Status int
	Err    error
}

func (e *CallError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s call %s returned status %d", e.Call, e.URL, e.Status)
	}
	return fmt.Sprintf("upstream %s call %s: %v", e.Call, e.URL, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// RawResponse is the passthrough response: a header block as the panel sent it
// and the unread body. Closing Body releases the call's deadline.
type RawResponse struct {
	Status      int
	HeaderBlock string
	Body        io.ReadCloser
}

type Client struct {
	base     string
	linksUA  string
	timeouts config.Timeouts
	http     *http.Client
	log      zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient swaps the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(up config.Upstream, timeouts config.Timeouts, opts ...Option) *Client {
	c := &Client{
		base:     strings.TrimRight(up.BaseURL, "/"),
		linksUA:  up.LinksUserAgent,
		timeouts: timeouts,
		http:     http.DefaultClient,
		log:      zerolog.Nop(),
	}
	if c.linksUA == "" {
		c.linksUA = "V2rayNG"
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchInfo loads the opaque user document from {base}{path}/info with the
// caller's identity. A JSON null body yields a nil value without error.
func (c *Client) FetchInfo(ctx context.Context, path, rawQuery, identity string) Result[json.RawMessage] {
	target := c.target(strings.TrimRight(path, "/")+"/info", rawQuery)
	body, err := c.get(ctx, CallInfo, target, identity, c.timeouts.Info)
	if err != nil {
		return Result[json.RawMessage]{Err: err}
	}
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return Result[json.RawMessage]{Err: &CallError{Call: CallInfo, URL: target, Err: fmt.Errorf("body is not json")}}
	}
	if bytes.Equal(body, []byte("null")) {
		return Result[json.RawMessage]{}
	}
	return Result[json.RawMessage]{Value: json.RawMessage(body)}
}

// FetchLinks loads the link bundle using the synthetic client identity, so the
// panel answers with the bundle instead of its own page.
func (c *Client) FetchLinks(ctx context.Context, path, rawQuery string) Result[string] {
	target := c.target(path, rawQuery)
	body, err := c.get(ctx, CallLinks, target, c.linksUA, c.timeouts.Links)
	if err != nil {
		return Result[string]{Err: err}
	}
	return Result[string]{Value: string(body)}
}

// FetchRaw issues the passthrough call with the caller's real identity.
// Every failure is returned; there is no fallback payload.
func (c *Client) FetchRaw(ctx context.Context, path, rawQuery, identity string) (*RawResponse, error) {
	target := c.target(path, rawQuery)

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Raw)
	req, err := c.newRequest(ctx, target, identity)
	if err != nil {
		cancel()
		return nil, &CallError{Call: CallRaw, URL: target, Err: err}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	observe(CallRaw, start, err, resp)
	if err != nil {
		cancel()
		return nil, &CallError{Call: CallRaw, URL: target, Err: err}
	}

	c.log.Debug().Str("call", CallRaw).Str("url", target).Int("status", resp.StatusCode).Dur("in", time.Since(start)).Msg("upstream call")

	return &RawResponse{
		Status:      resp.StatusCode,
		HeaderBlock: headerBlock(resp),
		Body:        &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
	}, nil
}

func (c *Client) get(ctx context.Context, call, target, identity string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.newRequest(ctx, target, identity)
	if err != nil {
		return nil, &CallError{Call: call, URL: target, Err: err}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	observe(call, start, err, resp)
	if err != nil {
		return nil, &CallError{Call: call, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &CallError{Call: call, URL: target, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &CallError{Call: call, URL: target, Status: resp.StatusCode}
	}

	c.log.Debug().Str("call", call).Str("url", target).Int("status", resp.StatusCode).Dur("in", time.Since(start)).Msg("upstream call")
	return data, nil
}

func (c *Client) newRequest(ctx context.Context, target, identity string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", identity)
	return req, nil
}

func (c *Client) target(path, rawQuery string) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	t := c.base + path
	if rawQuery != "" {
		t += "?" + rawQuery
	}
	return t
}

// headerBlock renders the response head as "status line\r\nName: value\r\n...".
func headerBlock(resp *http.Response) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s\r\n", resp.Proto, resp.Status)
	_ = resp.Header.Write(&buf)
	return buf.String()
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
