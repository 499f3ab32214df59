package links

import (
	"encoding/base64"
	"reflect"
	"testing"
)

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func wrap(s string, n int) string {
	var out string
	for len(s) > n {
		out += s[:n] + "\r\n "
		s = s[n:]
	}
	return out + s
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "base64 bundle",
			raw:  b64("vmess://abc\nvless://def\n\nFalse"),
			want: []string{"vmess://abc", "vless://def"},
		},
		{
			name: "base64 bundle with trailing newline",
			raw:  b64("trojan://a\r\nss://b\r\n") + "\n",
			want: []string{"trojan://a", "ss://b"},
		},
		{
			name: "base64 bundle without padding",
			raw:  base64.RawStdEncoding.EncodeToString([]byte("vmess://abc\nvless://de")),
			want: []string{"vmess://abc", "vless://de"},
		},
		{
			name: "base64 bundle wrapped across lines",
			raw:  wrap(b64("vmess://abc\ntrojan://xyz"), 8),
			want: []string{"vmess://abc", "trojan://xyz"},
		},
		{
			name: "plaintext bundle",
			raw:  "vless://one\n  vmess://two  \nFalse\n\nvless://one",
			want: []string{"vless://one", "vmess://two", "vless://one"},
		},
		{
			name: "valid base64 without scheme stays raw",
			raw:  b64("hello world"),
			want: []string{b64("hello world")},
		},
		{
			name: "not base64",
			raw:  "ss://x#name with spaces",
			want: []string{"ss://x#name with spaces"},
		},
		{
			name: "empty",
			raw:  "",
			want: []string{},
		},
		{
			name: "only sentinel",
			raw:  "False\n",
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Normalize() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestNormalize_NeverReturnsEmptyOrSentinel(t *testing.T) {
	inputs := []string{
		"\n\n\n",
		" False \n vmess://a \n",
		b64("vmess://a\nFalse\n \n"),
	}
	for _, in := range inputs {
		for _, l := range Normalize(in) {
			if l == "" || l == "False" {
				t.Fatalf("Normalize(%q) produced %q", in, l)
			}
		}
	}
}

func TestHasScheme(t *testing.T) {
	if !HasScheme("ss://abc") {
		t.Fatalf("ss scheme not recognised")
	}
	if HasScheme("http://abc") {
		t.Fatalf("http must not be recognised")
	}
}
