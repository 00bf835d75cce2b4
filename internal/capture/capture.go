package capture

import (
	"context"
	"time"
)

// Clip restricts the screenshot to a pixel rectangle of the page.
type Clip struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Target describes one page to screenshot.
type Target struct {
	URL               string
	Format            string // png or jpeg
	Quality           int    // jpeg only
	DeviceScaleFactor float64
	ViewportWidth     int
	ViewportHeight    int
	WaitSelector      string
	Delay             time.Duration
	FullPage          bool
	Clip              *Clip
	Headers           map[string]string

	// MaskSelectors are CSS selectors whose matches are covered with black
	// overlays before the screenshot, hiding volatile content.
	MaskSelectors []string
}

// DefaultTarget returns a Target for the given URL with capture defaults.
func DefaultTarget(url string) Target {
	return Target{
		URL:               url,
		Format:            "png",
		Quality:           85,
		DeviceScaleFactor: 1.0,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		FullPage:          true,
	}
}

type CaptureMetadata struct {
	URL            string    `json:"url"`
	ViewportWidth  int       `json:"viewportWidth"`
	ViewportHeight int       `json:"viewportHeight"`
	CapturedAt     time.Time `json:"capturedAt"`
}

type CaptureResult struct {
	Image    []byte
	MimeType string
	Metadata CaptureMetadata
}

// Capturer owns a browser handle. Callers must Close it when done; there is
// no process-exit hook doing it for them.
type Capturer interface {
	Capture(ctx context.Context, target Target) (*CaptureResult, error)
	Close() error
}
