package capture

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/xerrors"
)

type PlaywrightConfig struct {
	Timeout  time.Duration
	Headless bool

	// ChromeDevtoolsProtocolURL attaches to a running browser instead of
	// launching one.
	ChromeDevtoolsProtocolURL string
}

func DefaultPlaywrightConfig() PlaywrightConfig {
	return PlaywrightConfig{
		Timeout:  30 * time.Second,
		Headless: true,
	}
}

type playwrightCapturer struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	config  PlaywrightConfig
}

// NewPlaywrightCapturer starts playwright and launches (or attaches to) the
// browser once. The returned Capturer owns both; Close releases them.
func NewPlaywrightCapturer(ctx context.Context, p PlaywrightConfig) (Capturer, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, xerrors.Errorf("failed to start playwright: %w", err)
	}

	var browser playwright.Browser
	if p.ChromeDevtoolsProtocolURL == "" {
		browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(p.Headless),
		})
		if err != nil {
			_ = pw.Stop()
			return nil, xerrors.Errorf("failed to launch browser: %w", err)
		}
	} else {
		browser, err = pw.Chromium.ConnectOverCDP(p.ChromeDevtoolsProtocolURL)
		if err != nil {
			_ = pw.Stop()
			return nil, xerrors.Errorf("failed to connect to browser via CDP at %s: %w", p.ChromeDevtoolsProtocolURL, err)
		}
	}

	return &playwrightCapturer{
		pw:      pw,
		browser: browser,
		config:  p,
	}, nil
}

func (c *playwrightCapturer) Close() error {
	if err := c.browser.Close(); err != nil {
		_ = c.pw.Stop()
		return xerrors.Errorf("failed to close browser: %w", err)
	}
	if err := c.pw.Stop(); err != nil {
		return xerrors.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

func (c *playwrightCapturer) Capture(ctx context.Context, target Target) (*CaptureResult, error) {
	browserContext, err := c.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  target.ViewportWidth,
			Height: target.ViewportHeight,
		},
		DeviceScaleFactor: playwright.Float(target.DeviceScaleFactor),
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to create browser context: %w", err)
	}
	defer browserContext.Close()

	page, err := browserContext.NewPage()
	if err != nil {
		return nil, xerrors.Errorf("failed to create new page: %w", err)
	}
	defer page.Close()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			page.Close()
		case <-done:
		}
	}()
	defer close(done)

	if len(target.Headers) > 0 {
		if err := page.SetExtraHTTPHeaders(target.Headers); err != nil {
			return nil, xerrors.Errorf("failed to set HTTP headers: %w", err)
		}
	}

	if _, err := page.Goto(target.URL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(c.config.Timeout.Milliseconds())),
	}); err != nil {
		return nil, xerrors.Errorf("failed to navigate to %s: %w", target.URL, err)
	}

	if target.WaitSelector != "" {
		if _, err := page.WaitForSelector(target.WaitSelector, playwright.PageWaitForSelectorOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(float64(c.config.Timeout.Milliseconds())),
		}); err != nil {
			return nil, xerrors.Errorf("failed to wait for selector %s: %w", target.WaitSelector, err)
		}
	}

	if target.Delay > 0 {
		select {
		case <-time.After(target.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if len(target.MaskSelectors) > 0 {
		if err := maskSelectors(page, target.MaskSelectors); err != nil {
			return nil, err
		}
	}

	options := playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(target.FullPage),
	}
	mimeType := "image/png"
	switch target.Format {
	case "jpeg":
		options.Type = playwright.ScreenshotTypeJpeg
		if target.Quality > 0 {
			options.Quality = playwright.Int(target.Quality)
		}
		mimeType = "image/jpeg"
	default:
		options.Type = playwright.ScreenshotTypePng
	}
	if target.Clip != nil {
		options.Clip = &playwright.Rect{
			X:      target.Clip.X,
			Y:      target.Clip.Y,
			Width:  target.Clip.Width,
			Height: target.Clip.Height,
		}
		options.FullPage = playwright.Bool(false)
	}

	screenshotBytes, err := page.Screenshot(options)
	if err != nil {
		return nil, xerrors.Errorf("failed to take screenshot: %w", err)
	}

	return &CaptureResult{
		Image:    screenshotBytes,
		MimeType: mimeType,
		Metadata: CaptureMetadata{
			URL:            target.URL,
			ViewportWidth:  target.ViewportWidth,
			ViewportHeight: target.ViewportHeight,
			CapturedAt:     time.Now().UTC(),
		},
	}, nil
}

// maskSelectors covers every match of the given selectors with an opaque
// overlay. The class name is randomized per capture so it cannot collide
// with page classes.
func maskSelectors(page playwright.Page, selectors []string) error {
	unique := make([]byte, 8)
	if _, err := rand.Read(unique); err != nil {
		return xerrors.Errorf("failed to generate unique identifier: %w", err)
	}
	maskClassName := fmt.Sprintf("mask-%s", hex.EncodeToString(unique))

	maskCSS := fmt.Sprintf(`
.%s {
  position: relative !important;
}
.%s::after {
  content: "" !important;
  position: absolute !important;
  top: 0 !important;
  left: 0 !important;
  right: 0 !important;
  bottom: 0 !important;
  background-color: black !important;
  z-index: 2147483646 !important;
  pointer-events: none !important;
}
`, maskClassName, maskClassName)

	script := fmt.Sprintf(`(selectors) => {
		const style = document.createElement('style');
		style.textContent = %q;
		document.head.appendChild(style);

		selectors.forEach(selector => {
			const elements = document.querySelectorAll(selector);
			elements.forEach(element => {
				const computedStyle = window.getComputedStyle(element);
				if (computedStyle.position === 'static') {
					element.style.position = 'relative';
				}
				element.classList.add(%q);
			});
		});
	}`, maskCSS, maskClassName)

	if _, err := page.Evaluate(script, selectors); err != nil {
		return xerrors.Errorf("failed to mask selectors: %w", err)
	}
	return nil
}
