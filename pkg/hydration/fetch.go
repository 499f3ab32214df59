package hydration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultTTL     = 60 * time.Second
	DefaultTimeout = 15 * time.Second

	MsgSlowConnection = "The connection to the server is slow. Please wait..."
	MsgConnectFailed  = "Could not connect to the server."
)

// Response is the value every data helper resolves to, whether it came from
// the network, the cache, or the embedded page data.
type Response struct {
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body"`
}

// JSON decodes the body into dst.
func (r *Response) JSON(dst any) error {
	return json.Unmarshal(r.Body, dst)
}

// TransportError means no response was received at all.
type TransportError struct {
	URL     string
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a response outside 2xx. Message is the payload's "message" or
// "detail" field when it has one.
type APIError struct {
	URL      string
	Status   int
	Message  string
	Response *Response
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("request %s: status %d: %s", e.URL, e.Status, e.Message)
	}
	return fmt.Sprintf("request %s: status %d", e.URL, e.Status)
}

// Notifier shows short user-facing messages.
type Notifier interface {
	Error(msg string)
	Success(msg string)
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct{ Log zerolog.Logger }

func (n LogNotifier) Error(msg string)   { n.Log.Error().Msg(msg) }
func (n LogNotifier) Success(msg string) { n.Log.Info().Msg(msg) }

// Options selects which notifications a request may emit.
type Options struct {
	NotifyError   bool
	NotifySuccess bool
}

// Fetcher performs requests and memoises successful GETs for a fixed TTL.
// Concurrent misses for the same URL each go to the network.
type Fetcher struct {
	http   *http.Client
	store  Store
	ttl    time.Duration
	notify Notifier
	log    zerolog.Logger
	now    func() time.Time
}

type FetcherOption func(*Fetcher)

func WithHTTPClient(hc *http.Client) FetcherOption { return func(f *Fetcher) { f.http = hc } }
func WithStore(s Store) FetcherOption             { return func(f *Fetcher) { f.store = s } }
func WithTTL(ttl time.Duration) FetcherOption      { return func(f *Fetcher) { f.ttl = ttl } }
func WithNotifier(n Notifier) FetcherOption        { return func(f *Fetcher) { f.notify = n } }
func WithLogger(l zerolog.Logger) FetcherOption    { return func(f *Fetcher) { f.log = l } }
func WithClock(now func() time.Time) FetcherOption { return func(f *Fetcher) { f.now = now } }

func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		http: &http.Client{Timeout: DefaultTimeout},
		ttl:  DefaultTTL,
		log:  zerolog.Nop(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.store == nil {
		f.store = NewMemoryStore()
	}
	if f.notify == nil {
		f.notify = LogNotifier{Log: f.log}
	}
	return f
}

// Send issues method against url. A GET whose cached entry is younger than the
// TTL is answered from the store.
func (f *Fetcher) Send(ctx context.Context, method, url string, opts Options) (*Response, error) {
	if method == "" {
		method = http.MethodGet
	}
	cacheable := method == http.MethodGet

	if cacheable {
		e, ok, err := f.store.Get(ctx, url)
		switch {
		case err != nil:
			f.log.Warn().Err(err).Str("url", url).Msg("cache read failed, fetching")
		case ok && e.Fresh(f.now(), f.ttl):
			CacheHits.Inc()
			return &e.Response, nil
		}
		CacheMisses.Inc()
	}

	resp, err := f.do(ctx, method, url)
	if err != nil {
		f.report(err, opts)
		return nil, err
	}

	if opts.NotifySuccess {
		var payload struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(resp.Body, &payload) == nil && payload.Message != "" {
			f.notify.Success(payload.Message)
		}
	}

	if cacheable {
		if err := f.store.Put(ctx, Entry{URL: url, Response: *resp, Timestamp: f.now()}); err != nil {
			f.log.Warn().Err(err).Str("url", url).Msg("cache write failed")
		}
	}
	return resp, nil
}

func (f *Fetcher) do(ctx context.Context, method, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	hr, err := f.http.Do(req)
	if err != nil {
		return nil, &TransportError{URL: url, Timeout: isTimeout(err), Err: err}
	}
	defer hr.Body.Close()

	body, err := io.ReadAll(hr.Body)
	if err != nil {
		return nil, &TransportError{URL: url, Timeout: isTimeout(err), Err: fmt.Errorf("read body: %w", err)}
	}

	resp := &Response{Status: hr.StatusCode, Header: hr.Header, Body: body}
	if hr.StatusCode < 200 || hr.StatusCode > 299 {
		return nil, &APIError{URL: url, Status: hr.StatusCode, Message: errorMessage(body), Response: resp}
	}
	return resp, nil
}

func (f *Fetcher) report(err error, opts Options) {
	var te *TransportError
	var ae *APIError
	switch {
	case errors.As(err, &te):
		if opts.NotifyError {
			if te.Timeout {
				f.notify.Error(MsgSlowConnection)
			} else {
				f.notify.Error(MsgConnectFailed)
			}
		}
	case errors.As(err, &ae):
		if opts.NotifyError && ae.Message != "" {
			f.notify.Error(ae.Message)
		}
	}
	f.log.Error().Err(err).Msg("request failed")
}

func errorMessage(body []byte) string {
	var payload struct {
		Message json.RawMessage `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	for _, raw := range []json.RawMessage{payload.Message, payload.Detail} {
		var s string
		if len(raw) > 0 && json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
	}
	return ""
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
