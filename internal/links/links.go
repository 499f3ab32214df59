// Package links turns a subscription body into an ordered list of config URIs.
package links

import (
	"encoding/base64"
	"strings"
)

// Schemes are the URI prefixes that mark a decoded body as a real link bundle.
var Schemes = []string{"vmess://", "vless://", "trojan://", "ss://"}

// errorSentinel is what some panels emit in place of a link when generation fails.
const errorSentinel = "False"

// Normalize decodes a base64 bundle when the decoded text starts with a known
// scheme, otherwise it treats raw as plaintext. Lines are trimmed; empty lines
// and the error sentinel are dropped. Order and duplicates are preserved.
//
// A plaintext bundle that is itself valid base64 of scheme-prefixed text is
// read as encoded. Panels don't produce that in practice.
func Normalize(raw string) []string {
	return Split(Source(raw))
}

// Source picks the text the bundle should be split from.
func Source(raw string) string {
	decoded, ok := decodeBundle(raw)
	if !ok {
		return raw
	}
	text := string(decoded)
	if !HasScheme(text) {
		return raw
	}
	return text
}

// decodeBundle accepts padded or unpadded standard base64 with any whitespace
// between characters.
func decodeBundle(raw string) ([]byte, bool) {
	compact := strings.Join(strings.Fields(raw), "")
	if compact == "" {
		return nil, false
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding.Strict(), base64.RawStdEncoding.Strict()} {
		if b, err := enc.DecodeString(compact); err == nil {
			return b, true
		}
	}
	return nil, false
}

// Split breaks text on newlines and drops blanks and the error sentinel.
func Split(text string) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || line == errorSentinel {
			continue
		}
		out = append(out, line)
	}
	return out
}

// HasScheme reports whether s begins with one of the recognised schemes.
func HasScheme(s string) bool {
	for _, scheme := range Schemes {
		if strings.HasPrefix(s, scheme) {
			return true
		}
	}
	return false
}
