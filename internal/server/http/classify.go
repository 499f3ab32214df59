package httpserver

import (
	"errors"
	"strings"
)

// Route is where a subscription request goes.
type Route int

const (
	// RouteRaw proxies the panel response to a subscription client.
	RouteRaw Route = iota
	// RouteHTML renders the page with embedded data for a browser.
	RouteHTML
)

func (r Route) String() string {
	if r == RouteHTML {
		return "html"
	}
	return "raw"
}

var ErrMissingIdentity = errors.New("request has no user agent")

const htmlMediaType = "text/html"

// Classify routes on the identity and content-preference headers. A missing
// identity is an error; otherwise any Accept mentioning text/html means a browser.
func Classify(identity, accept string) (Route, error) {
	if identity == "" {
		return RouteRaw, ErrMissingIdentity
	}
	if strings.Contains(accept, htmlMediaType) {
		return RouteHTML, nil
	}
	return RouteRaw, nil
}
