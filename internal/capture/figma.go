package capture

import (
	"net/url"
	"strings"
	"time"
)

// IsFigmaURL reports whether raw points at a Figma file, design, or
// prototype link.
func IsFigmaURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	host := strings.TrimPrefix(u.Hostname(), "www.")
	if host != "figma.com" {
		return false
	}

	return strings.HasPrefix(u.Path, "/file/") ||
		strings.HasPrefix(u.Path, "/design/") ||
		strings.HasPrefix(u.Path, "/proto/")
}

// ApplyFigmaDefaults tunes a target for Figma's canvas, which keeps painting
// well after the document load event. No-op for other URLs or when the
// caller already chose a selector or delay.
func ApplyFigmaDefaults(target *Target) {
	if !IsFigmaURL(target.URL) {
		return
	}

	if target.WaitSelector == "" {
		target.WaitSelector = "canvas"
	}
	if target.Delay == 0 {
		target.Delay = 10 * time.Second
	}
	target.FullPage = false
}
