package origin

import (
	"strings"
	"testing"
)

func FuzzNormalizeHeader(f *testing.F) {
	for _, seed := range []string{
		"HTTPS://Example.COM:443",
		"http://010.0.0.1",
		"http://[::FFFF:192.0.2.1]",
		"null",
		"",
		"ftp://example.com",
		"https://example.com/path",
		"https://example.com,https://evil.example.com",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, originHeader string) {
		normalized, host, ok := NormalizeHeader(originHeader)
		if !ok {
			return
		}
		if normalized == "null" {
			if host != "" {
				t.Fatalf("null origin must have empty host, got %q", host)
			}
			return
		}
		if strings.ContainsAny(normalized, " \t\r\n?#") {
			t.Fatalf("normalized origin has forbidden characters: %q", normalized)
		}
		_, afterScheme, _ := strings.Cut(normalized, "://")
		if afterScheme != host {
			t.Fatalf("host=%q does not match normalized=%q", host, normalized)
		}

		again, againHost, ok := NormalizeHeader(normalized)
		if !ok || again != normalized || againHost != host {
			t.Fatalf("not idempotent: %q -> (%q, %q, %v)", normalized, again, againHost, ok)
		}

		if !IsAllowed(normalized, host, "", []string{"*"}) {
			t.Fatalf("wildcard rejected %q", normalized)
		}
		if !IsAllowed(normalized, host, host, nil) {
			t.Fatalf("origin host %q does not match itself", host)
		}
	})
}
