package httpserver

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"subgate/internal/config"
	"subgate/internal/page"
	"subgate/internal/releases"
	"subgate/internal/upstream"
)

const testTemplate = "<html><head>" + page.DefaultPlaceholder + "</head><body>app</body></html>"

type panelCall struct {
	Path string
	UA   string
}

type fakePanel struct {
	mu    sync.Mutex
	calls []panelCall
	srv   *httptest.Server
}

func newFakePanel(t *testing.T, h http.HandlerFunc) *fakePanel {
	t.Helper()
	p := &fakePanel{}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.calls = append(p.calls, panelCall{Path: r.URL.Path, UA: r.UserAgent()})
		p.mu.Unlock()
		h(w, r)
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakePanel) Calls() []panelCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]panelCall(nil), p.calls...)
}

func newTestApp(t *testing.T, panelURL string, withTemplate bool) *fiber.App {
	t.Helper()
	cfg := &config.FinalConfig{
		Upstream: config.Upstream{BaseURL: panelURL, LinksUserAgent: "V2rayNG"},
		Timeouts: config.Timeouts{Info: 2 * time.Second, Links: 2 * time.Second, Raw: 2 * time.Second},
	}
	store := page.NewStore("unused", "", zerolog.Nop())
	if withTemplate {
		store.Set([]byte(testTemplate))
	}
	app := fiber.New()
	RegisterRoutes(app, cfg, Deps{
		Upstream: upstream.New(cfg.Upstream, cfg.Timeouts),
		Pages:    store,
	})
	return app
}

func doRequest(t *testing.T, app *fiber.App, path, ua, accept string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test err=%v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, string(body)
}

func TestSubscription_MissingIdentityRedirects(t *testing.T) {
	panel := newFakePanel(t, func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("x")) })
	app := newTestApp(t, panel.srv.URL, true)

	resp, body := doRequest(t, app, "/sub/tok", "", "text/html")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status=%d want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/" {
		t.Fatalf("location=%q want /", loc)
	}
	if body != "" {
		t.Fatalf("body=%q want empty", body)
	}
	if n := len(panel.Calls()); n != 0 {
		t.Fatalf("upstream calls=%d want 0", n)
	}
}

func TestSubscription_HTMLEmbedsData(t *testing.T) {
	bundle := base64.StdEncoding.EncodeToString([]byte("vmess://abc\nvless://def\n\nFalse"))
	panel := newFakePanel(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/info") {
			w.Write([]byte(`{"username":"alice","status":"active"}`))
			return
		}
		w.Write([]byte(bundle))
	})
	app := newTestApp(t, panel.srv.URL, true)

	resp, body := doRequest(t, app, "/sub/tok", "Mozilla/5.0", "text/html,application/xhtml+xml")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("content-type=%q", resp.Header.Get("Content-Type"))
	}
	want := `window.__INITIAL_DATA__ = {"user":{"username":"alice","status":"active"},"links":["vmess://abc","vless://def"]};`
	if !strings.Contains(body, want) {
		t.Fatalf("body missing embedded data:\n%s", body)
	}
	if strings.Contains(body, page.DefaultPlaceholder) {
		t.Fatalf("placeholder left in page")
	}

	calls := panel.Calls()
	if len(calls) != 2 {
		t.Fatalf("upstream calls=%d want 2", len(calls))
	}
	for _, c := range calls {
		switch c.Path {
		case "/sub/tok/info":
			if c.UA != "Mozilla/5.0" {
				t.Fatalf("info ua=%q", c.UA)
			}
		case "/sub/tok":
			if c.UA != "V2rayNG" {
				t.Fatalf("links ua=%q", c.UA)
			}
		default:
			t.Fatalf("unexpected call %+v", c)
		}
	}
}

func TestSubscription_HTMLDegradesOnUpstreamFailure(t *testing.T) {
	panel := newFakePanel(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	app := newTestApp(t, panel.srv.URL, true)

	resp, body := doRequest(t, app, "/sub/tok", "Mozilla/5.0", "text/html")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want 200", resp.StatusCode)
	}
	if !strings.Contains(body, `window.__INITIAL_DATA__ = {"user":null,"links":[]};`) {
		t.Fatalf("body=%s", body)
	}
}

func TestSubscription_HTMLFetchesConcurrently(t *testing.T) {
	var arrived int32
	both := make(chan struct{})
	panel := newFakePanel(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&arrived, 1) == 2 {
			close(both)
		}
		select {
		case <-both:
			w.Write([]byte(`{}`))
		case <-time.After(time.Second):
			http.Error(w, "sequential", http.StatusGatewayTimeout)
		}
	})
	app := newTestApp(t, panel.srv.URL, true)

	_, body := doRequest(t, app, "/sub/tok", "Mozilla/5.0", "text/html")
	if !strings.Contains(body, `"user":{}`) {
		t.Fatalf("calls did not overlap: %s", body)
	}
}

func TestSubscription_HTMLWithoutTemplate(t *testing.T) {
	panel := newFakePanel(t, func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("{}")) })
	app := newTestApp(t, panel.srv.URL, false)

	resp, _ := doRequest(t, app, "/sub/tok", "Mozilla/5.0", "text/html")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503", resp.StatusCode)
	}
	if n := len(panel.Calls()); n != 0 {
		t.Fatalf("upstream calls=%d want 0", n)
	}
}

func TestSubscription_RawForwardsAllowlistedHeaders(t *testing.T) {
	panel := newFakePanel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Subscription-Userinfo", "upload=1; download=2; total=3; expire=4")
		w.Header().Set("Profile-Update-Interval", "12")
		w.Header().Set("Content-Disposition", `attachment; filename="sub"`)
		w.Header().Set("X-Panel-Secret", "s3cr3t")
		w.Header().Set("Set-Cookie", "session=1")
		w.Write([]byte("dm1lc3M6Ly9hYmM="))
	})
	app := newTestApp(t, panel.srv.URL, true)

	resp, body := doRequest(t, app, "/sub/tok", "clash-verge/v2", "*/*")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	if body != "dm1lc3M6Ly9hYmM=" {
		t.Fatalf("body=%q", body)
	}
	for name, want := range map[string]string{
		"Content-Type":            "text/plain; charset=utf-8",
		"Subscription-Userinfo":   "upload=1; download=2; total=3; expire=4",
		"Profile-Update-Interval": "12",
		"Content-Disposition":     `attachment; filename="sub"`,
	} {
		if got := resp.Header.Get(name); got != want {
			t.Fatalf("%s=%q want %q", name, got, want)
		}
	}
	for _, name := range []string{"X-Panel-Secret", "Set-Cookie"} {
		if got := resp.Header.Get(name); got != "" {
			t.Fatalf("%s forwarded: %q", name, got)
		}
	}

	calls := panel.Calls()
	if len(calls) != 1 || calls[0].UA != "clash-verge/v2" || calls[0].Path != "/sub/tok" {
		t.Fatalf("calls=%+v", calls)
	}
}

func TestSubscription_RawForwardsLowerCaseUpstreamNames(t *testing.T) {
	panel := newFakePanel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header()["subscription-userinfo"] = []string{"total=5"}
		w.Header()["Content-Type"] = nil
		w.Write([]byte("payload"))
	})
	app := newTestApp(t, panel.srv.URL, true)

	resp, body := doRequest(t, app, "/sub/tok", "v2rayN/6", "")
	if resp.StatusCode != http.StatusOK || body != "payload" {
		t.Fatalf("status=%d body=%q", resp.StatusCode, body)
	}
	if got := resp.Header.Get("subscription-userinfo"); got != "total=5" {
		t.Fatalf("subscription-userinfo=%q", got)
	}
}

func TestSubscription_RawWithoutAllowlistedHeadersAborts(t *testing.T) {
	panel := newFakePanel(t, func(w http.ResponseWriter, r *http.Request) {
		// an explicit empty Content-Type keeps net/http from sniffing one
		w.Header()["Content-Type"] = nil
		w.Header().Set("X-Other", "1")
		w.Write([]byte("payload"))
	})
	app := newTestApp(t, panel.srv.URL, true)

	resp, body := doRequest(t, app, "/sub/tok", "v2rayN/6", "")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status=%d want 502", resp.StatusCode)
	}
	if body != "Error! No valid headers found." {
		t.Fatalf("body=%q", body)
	}
}

func TestSubscription_RawUpstreamDownAborts(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()
	app := newTestApp(t, deadURL, true)

	resp, body := doRequest(t, app, "/sub/tok", "v2rayN/6", "application/json")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status=%d want 502", resp.StatusCode)
	}
	if !strings.HasPrefix(body, "upstream error: ") || strings.Contains(body, deadURL) {
		t.Fatalf("body=%q", body)
	}
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, "https://panel.invalid", true)
	resp, body := doRequest(t, app, "/health", "", "")
	if resp.StatusCode != http.StatusOK || body != "ok" {
		t.Fatalf("status=%d body=%q", resp.StatusCode, body)
	}
}

func TestAppsCatalog(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "os.json")
	if err := os.WriteFile(in, []byte(`{"operatingSystems":[{"name":"android","apps":[{"name":"v2rayNG"}]}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cat := releases.NewCatalog(releases.NewResolver("https://api.invalid", "", nil, zerolog.Nop()), in, "", zerolog.Nop())

	cfg := &config.FinalConfig{Upstream: config.Upstream{BaseURL: "https://panel.invalid"}}
	app := fiber.New()
	RegisterRoutes(app, cfg, Deps{Upstream: upstream.New(cfg.Upstream, cfg.Timeouts), Catalog: cat})

	resp, _ := doRequest(t, app, "/apps.json", "Mozilla/5.0", "application/json")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503 before first refresh", resp.StatusCode)
	}

	if err := cat.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	resp, body := doRequest(t, app, "/apps.json", "Mozilla/5.0", "application/json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") || !strings.Contains(body, `"v2rayNG"`) {
		t.Fatalf("content-type=%q body=%s", resp.Header.Get("Content-Type"), body)
	}
}
