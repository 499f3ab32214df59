package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBuild_ExampleConfig(t *testing.T) {
	cfgPath := filepath.Join(repoRoot(t), "example", "config.yaml")
	conf, err := Build(cfgPath)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	if conf.Gateway.Address != ":8080" {
		t.Fatalf("unexpected gateway address: %q", conf.Gateway.Address)
	}
	if conf.Upstream.BaseURL != "https://panel.example.com:443" {
		t.Fatalf("base url not trimmed: %q", conf.Upstream.BaseURL)
	}
	want := Timeouts{Info: 10 * time.Second, Links: 10 * time.Second, Raw: 17 * time.Second}
	if conf.Timeouts != want {
		t.Fatalf("timeouts=%+v want %+v", conf.Timeouts, want)
	}
	if conf.Upstream.LinksUserAgent != "V2rayNG" {
		t.Fatalf("links user agent=%q", conf.Upstream.LinksUserAgent)
	}
	if !conf.Page.Watch {
		t.Fatalf("expected page watch enabled")
	}
}

func TestBuild_InlineContentWithDefaults(t *testing.T) {
	conf, err := Build("upstream:\n  base_url: https://panel.test\n")
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if conf.Timeouts.Raw != 17*time.Second {
		t.Fatalf("raw timeout default=%s", conf.Timeouts.Raw)
	}
	if conf.Page.Placeholder != "<!-- PHP_INITIAL_DATA_PLACEHOLDER -->" {
		t.Fatalf("placeholder default=%q", conf.Page.Placeholder)
	}
	if conf.Cache.Driver != "memory" {
		t.Fatalf("cache driver default=%q", conf.Cache.Driver)
	}
}

func TestBuild_EnvOverridesFile(t *testing.T) {
	t.Setenv("UPSTREAM_RAW_TIMEOUT", "5s")
	t.Setenv("GITHUB_TOKEN", "secret")

	conf, err := Build("upstream:\n  base_url: https://panel.test\n  raw_timeout: 20s\n")
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if conf.Timeouts.Raw != 5*time.Second {
		t.Fatalf("raw timeout=%s want 5s", conf.Timeouts.Raw)
	}
	if conf.Releases.Token != "secret" {
		t.Fatalf("token not read from env")
	}

	pretty, err := conf.Pretty()
	if err != nil {
		t.Fatalf("Pretty: %v", err)
	}
	if strings.Contains(pretty, "secret") {
		t.Fatalf("token leaked into Pretty output")
	}
}

func TestBuild_MissingBaseURL(t *testing.T) {
	_, err := Build("gateway:\n  address: \":9000\"\n")
	if !errors.Is(err, ErrMissingBaseURL) {
		t.Fatalf("err=%v want ErrMissingBaseURL", err)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Second},
		{"250ms", 250 * time.Millisecond},
		{"17", 17 * time.Second},
		{"junk", time.Second},
	}
	for _, tt := range tests {
		if got := ParseDuration(tt.in, time.Second); got != tt.want {
			t.Fatalf("ParseDuration(%q)=%s want %s", tt.in, got, tt.want)
		}
	}
}

func repoRoot(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(wd, "go.mod")); err == nil {
			return wd
		}

		parent := filepath.Dir(wd)
		if parent == wd {
			t.Fatal("go.mod not found from test cwd upward")
		}
		wd = parent
	}
}
