package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Gateway  Gateway  `yaml:"gateway"`
	Upstream Upstream `yaml:"upstream"`
	Page     Page     `yaml:"page"`
	Releases Releases `yaml:"releases"`
	Cache    Cache    `yaml:"cache"`
	Log      Log      `yaml:"log"`
}

type Gateway struct {
	Address            string `yaml:"address"              env:"GATEWAY_ADDR"              env-default:":8080"`
	ReadTimeoutSec     int    `yaml:"read_timeout_sec"     env:"GATEWAY_READ_TIMEOUT"      env-default:"15"`
	WriteTimeoutSec    int    `yaml:"write_timeout_sec"    env:"GATEWAY_WRITE_TIMEOUT"     env-default:"30"`
	IdleTimeoutSec     int    `yaml:"idle_timeout_sec"     env:"GATEWAY_IDLE_TIMEOUT"      env-default:"60"`
	ShutdownTimeoutSec int    `yaml:"shutdown_timeout_sec" env:"GATEWAY_SHUTDOWN_TIMEOUT"  env-default:"15"`
}

// Upstream describes the subscription panel the gateway sits in front of.
type Upstream struct {
	BaseURL        string `yaml:"base_url"         env:"UPSTREAM_BASE_URL"`
	AllowInsecure  bool   `yaml:"allow_insecure"   env:"UPSTREAM_ALLOW_INSECURE"  env-default:"false"`
	InfoTimeout    string `yaml:"info_timeout"     env:"UPSTREAM_INFO_TIMEOUT"    env-default:"10s"`
	LinksTimeout   string `yaml:"links_timeout"    env:"UPSTREAM_LINKS_TIMEOUT"   env-default:"10s"`
	RawTimeout     string `yaml:"raw_timeout"      env:"UPSTREAM_RAW_TIMEOUT"     env-default:"17s"`
	LinksUserAgent string `yaml:"links_user_agent" env:"UPSTREAM_LINKS_UA"        env-default:"V2rayNG"`
}

type Page struct {
	Template    string `yaml:"template"    env:"PAGE_TEMPLATE"    env-default:"build/index.html"`
	Placeholder string `yaml:"placeholder" env:"PAGE_PLACEHOLDER" env-default:"<!-- PHP_INITIAL_DATA_PLACEHOLDER -->"`
	Watch       bool   `yaml:"watch"       env:"PAGE_WATCH"       env-default:"false"`
}

type Releases struct {
	Catalog  string `yaml:"catalog"  env:"RELEASES_CATALOG"  env-default:""`
	Output   string `yaml:"output"   env:"RELEASES_OUTPUT"   env-default:""`
	Schedule string `yaml:"schedule" env:"RELEASES_SCHEDULE" env-default:""`
	APIBase  string `yaml:"api_base" env:"RELEASES_API_BASE" env-default:"https://api.github.com"`
	Token    string `yaml:"-"        env:"GITHUB_TOKEN"     json:"-"`
}

type Cache struct {
	Driver string `yaml:"driver"    env:"CACHE_DRIVER"    env-default:"memory"`
	Host   string `yaml:"host"      env:"CACHE_HOST"      env-default:"localhost"`
	Port   int    `yaml:"port"      env:"CACHE_PORT"      env-default:"6379"`
	Db     int    `yaml:"db"        env:"CACHE_DB"        env-default:"0"`
	Pass   string `yaml:"password"  env:"CACHE_PASSWORD"  env-default:"" json:"-"`
	TTL    string `yaml:"ttl"       env:"CACHE_TTL"       env-default:"60s"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// Timeouts are the parsed per-call upstream deadlines.
type Timeouts struct {
	Info  time.Duration
	Links time.Duration
	Raw   time.Duration
}

type FinalConfig struct {
	Gateway  Gateway
	Upstream Upstream
	Timeouts Timeouts
	Page     Page
	Releases Releases
	Cache    Cache
	Log      Log
}

var ErrMissingBaseURL = errors.New("upstream.base_url is not set")

func Load(pathOrContent string) (*Config, error) {
	var cfg Config

	if fi, err := os.Stat(pathOrContent); err == nil && !fi.IsDir() {
		if err := cleanenv.ReadConfig(pathOrContent, &cfg); err != nil {
			return nil, fmt.Errorf("read config %q: %w", pathOrContent, err)
		}
	} else {
		// inline YAML is recognised by a newline or one of the top-level section keys
		maybeContent := pathOrContent
		if strings.Contains(maybeContent, "\n") || strings.Contains(maybeContent, "upstream:") || strings.Contains(maybeContent, "gateway:") {
			if err := yaml.Unmarshal([]byte(maybeContent), &cfg); err != nil {
				return nil, fmt.Errorf("parse config content: %w", err)
			}
		} else {
			abs := pathOrContent
			if !filepath.IsAbs(abs) {
				abs = filepath.Join(".", abs)
			}
			if err := cleanenv.ReadConfig(abs, &cfg); err != nil {
				return nil, fmt.Errorf("read config %q: %w", pathOrContent, err)
			}
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	return &cfg, nil
}

func Build(configPath string) (*FinalConfig, error) {
	raw, err := Load(configPath)
	if err != nil {
		return nil, err
	}

	fc := &FinalConfig{
		Gateway:  raw.Gateway,
		Upstream: raw.Upstream,
		Timeouts: Timeouts{
			Info:  ParseDuration(raw.Upstream.InfoTimeout, 10*time.Second),
			Links: ParseDuration(raw.Upstream.LinksTimeout, 10*time.Second),
			Raw:   ParseDuration(raw.Upstream.RawTimeout, 17*time.Second),
		},
		Page:     raw.Page,
		Releases: raw.Releases,
		Cache:    raw.Cache,
		Log:      raw.Log,
	}
	fc.Upstream.BaseURL = strings.TrimRight(strings.TrimSpace(fc.Upstream.BaseURL), "/")

	if err := fc.Validate(); err != nil {
		return nil, err
	}
	return fc, nil
}

// Validate checks the settings the gateway cannot start without.
func (fc *FinalConfig) Validate() error {
	if fc.Upstream.BaseURL == "" {
		return ErrMissingBaseURL
	}
	u, err := url.Parse(fc.Upstream.BaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("upstream.base_url %q is not an absolute url", fc.Upstream.BaseURL)
	}
	return nil
}

// ParseDuration accepts Go duration syntax or a bare number of seconds.
func ParseDuration(val string, def time.Duration) time.Duration {
	val = strings.TrimSpace(val)
	if val == "" {
		return def
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// Pretty возвращает YAML-представление FinalConfig для простого логирования.
func (fc *FinalConfig) Pretty() (string, error) {
	b, err := yaml.Marshal(fc)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(b), nil
}
