package cache

import (
	"net"
	"strconv"
	"time"

	"subgate/pkg/cfg"
)

const (
	defaultPrefix      = "subgate"
	defaultTTL         = 60 * time.Second
	defaultDialTimeout = 2 * time.Second
)

// Config addresses the Redis instance shared by response caches.
type Config struct {
	Addr        string
	Password    string
	DB          int
	Prefix      string
	DefaultTTL  time.Duration
	DialTimeout time.Duration
}

// LoadConfigFromEnv reads REDIS_* variables. TTLs accept "60s" or bare seconds.
func LoadConfigFromEnv() Config {
	return Config{
		Addr:        cfg.String("REDIS_ADDR", "127.0.0.1:6379"),
		Password:    cfg.String("REDIS_PASSWORD", ""),
		DB:          cfg.Int("REDIS_DB", 0),
		Prefix:      cfg.String("REDIS_PREFIX", defaultPrefix),
		DefaultTTL:  cfg.Duration("REDIS_DEFAULT_TTL", defaultTTL),
		DialTimeout: cfg.Duration("REDIS_DIAL_TIMEOUT", defaultDialTimeout),
	}
}

// Addr joins a host and port from a split config section.
func Addr(host string, port int) string {
	if host == "" {
		host = "127.0.0.1"
	}
	if port == 0 {
		port = 6379
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Merge overlays the non-zero fields of o on c.
func (c Config) Merge(o Config) Config {
	if o.Addr != "" {
		c.Addr = o.Addr
	}
	if o.Password != "" {
		c.Password = o.Password
	}
	if o.DB != 0 {
		c.DB = o.DB
	}
	if o.Prefix != "" {
		c.Prefix = o.Prefix
	}
	if o.DefaultTTL > 0 {
		c.DefaultTTL = o.DefaultTTL
	}
	if o.DialTimeout > 0 {
		c.DialTimeout = o.DialTimeout
	}
	return c
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = defaultPrefix
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = defaultTTL
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	return c
}
