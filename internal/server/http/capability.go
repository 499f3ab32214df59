package httpserver

import (
	"fmt"
	"net/url"
	"strings"

	"subgate/internal/config"
)

// CheckHost verifies what the gateway needs before serving: an upstream it
// can reach over an encrypted transport and a loaded page template. The
// returned error is meant to be printed as is.
func CheckHost(cfg *config.FinalConfig, pages interface{ Ready() error }) error {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("upstream base url %q is not usable; set upstream.base_url", cfg.Upstream.BaseURL)
	}
	if !strings.EqualFold(u.Scheme, "https") && !cfg.Upstream.AllowInsecure {
		return fmt.Errorf("upstream base url must use https (got %q); set upstream.allow_insecure to override", u.Scheme)
	}
	if pages == nil {
		return fmt.Errorf("page template store is not configured")
	}
	if err := pages.Ready(); err != nil {
		return fmt.Errorf("%w; build the page and set page.template", err)
	}
	return nil
}
