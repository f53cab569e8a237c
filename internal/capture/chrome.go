// Package capture takes a still screenshot of a web page with headless Chrome.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/maauso/sitereel/internal/media"
	"github.com/maauso/sitereel/internal/storage"
)

// DefaultUserAgent identifies the capture browser as a desktop Chrome.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Static errors for page capture.
var (
	// ErrEmptyURL is returned when no URL is given.
	ErrEmptyURL = errors.New("capture: URL is required")
	// ErrInvalidURL is returned when the URL has no host.
	ErrInvalidURL = errors.New("capture: invalid URL")
	// ErrInvalidViewport is returned for non-positive viewport sizes.
	ErrInvalidViewport = errors.New("capture: viewport must be positive")
	// ErrNavigation is returned when neither the primary nor the fallback
	// navigation reaches the page.
	ErrNavigation = errors.New("capture: navigation failed")
	// ErrEmptyScreenshot is returned when the browser returns no image data.
	ErrEmptyScreenshot = errors.New("capture: empty screenshot")
)

// Error is returned when a page cannot be captured.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("capture %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Viewport is the browser viewport size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// Capturer takes a screenshot of a URL.
type Capturer interface {
	// Capture navigates to rawURL and stores a PNG of the visible viewport
	// in dst as name.
	Capture(ctx context.Context, rawURL string, vp Viewport, dst storage.Sink, name string) (media.Asset, error)
}

// Options configures the browser and the navigation policy.
type Options struct {
	// ExecPath is the Chrome binary. Empty lets chromedp find one.
	ExecPath  string
	UserAgent string
	// NoSandbox disables the Chrome sandbox, required when running as root
	// inside most containers.
	NoSandbox bool
	// NavigationTimeout bounds the primary navigation.
	NavigationTimeout time.Duration
	// FallbackTimeout bounds the wait for the navigation to commit after
	// the primary navigation gave up.
	FallbackTimeout time.Duration
	// Settle is how long to wait after navigation before the screenshot.
	Settle time.Duration
}

// DefaultOptions returns the standard capture policy.
func DefaultOptions() Options {
	return Options{
		UserAgent:         DefaultUserAgent,
		NavigationTimeout: 120 * time.Second,
		FallbackTimeout:   30 * time.Second,
		Settle:            1500 * time.Millisecond,
	}
}

// Chrome implements Capturer with a fresh headless browser per capture.
type Chrome struct {
	opts   Options
	logger *slog.Logger
}

// NewChrome creates a Chrome capturer. Zero-valued options fall back to
// DefaultOptions.
func NewChrome(opts Options, logger *slog.Logger) *Chrome {
	def := DefaultOptions()
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = def.NavigationTimeout
	}
	if opts.FallbackTimeout <= 0 {
		opts.FallbackTimeout = def.FallbackTimeout
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chrome{opts: opts, logger: logger}
}

// Capture implements Capturer.
func (c *Chrome) Capture(ctx context.Context, rawURL string, vp Viewport, dst storage.Sink, name string) (media.Asset, error) {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return media.Asset{}, &Error{URL: rawURL, Err: err}
	}
	if vp.Width <= 0 || vp.Height <= 0 {
		return media.Asset{}, &Error{URL: target, Err: fmt.Errorf("%w: %dx%d", ErrInvalidViewport, vp.Width, vp.Height)}
	}

	start := time.Now()
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, c.allocatorOptions(vp)...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	// The first Run starts the browser.
	if err := chromedp.Run(tabCtx, chromedp.EmulateViewport(int64(vp.Width), int64(vp.Height))); err != nil {
		return media.Asset{}, &Error{URL: target, Err: fmt.Errorf("start browser: %w", err)}
	}

	if err := c.navigate(ctx, tabCtx, target); err != nil {
		return media.Asset{}, &Error{URL: target, Err: err}
	}

	var buf []byte
	if err := chromedp.Run(tabCtx,
		chromedp.Sleep(c.opts.Settle),
		chromedp.CaptureScreenshot(&buf),
	); err != nil {
		return media.Asset{}, &Error{URL: target, Err: fmt.Errorf("screenshot: %w", err)}
	}
	if len(buf) == 0 {
		return media.Asset{}, &Error{URL: target, Err: ErrEmptyScreenshot}
	}

	path, _, err := dst.Store(ctx, name, bytes.NewReader(buf))
	if err != nil {
		return media.Asset{}, &Error{URL: target, Err: fmt.Errorf("write screenshot: %w", err)}
	}

	c.logger.Info("page captured",
		slog.String("url", target),
		slog.Int("width", vp.Width),
		slog.Int("height", vp.Height),
		slog.Int("bytes", len(buf)),
		slog.Duration("duration", time.Since(start)),
	)
	return media.NewAsset(path, media.KindImage), nil
}

// navigate loads target and waits for the load event. If that does not
// finish within NavigationTimeout it falls back to waiting only until the
// page has committed to an http(s) document.
func (c *Chrome) navigate(parent, tabCtx context.Context, target string) error {
	navCtx, cancel := context.WithTimeout(tabCtx, c.opts.NavigationTimeout)
	err := chromedp.Run(navCtx, chromedp.Navigate(target))
	cancel()
	if err == nil {
		return nil
	}
	if parent.Err() != nil {
		return parent.Err()
	}

	c.logger.Warn("navigation did not finish, waiting for commit",
		slog.String("url", target),
		slog.String("error", err.Error()),
		slog.Duration("fallback_timeout", c.opts.FallbackTimeout),
	)

	fbCtx, cancel := context.WithTimeout(tabCtx, c.opts.FallbackTimeout)
	defer cancel()
	var committed bool
	if ferr := chromedp.Run(fbCtx, chromedp.Poll(
		`location.protocol === "http:" || location.protocol === "https:"`,
		&committed,
		chromedp.WithPollingInterval(100*time.Millisecond),
	)); ferr != nil {
		if parent.Err() != nil {
			return parent.Err()
		}
		return fmt.Errorf("%w: %v (fallback: %v)", ErrNavigation, err, ferr)
	}
	return nil
}

func (c *Chrome) allocatorOptions(vp Viewport) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.UserAgent(c.opts.UserAgent),
		chromedp.WindowSize(vp.Width, vp.Height),
	)
	if c.opts.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if c.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.opts.ExecPath))
	}
	return opts
}

var schemePattern = regexp.MustCompile(`(?i)^https?://`)

// NormalizeURL trims rawURL and prefixes https:// when it has no http(s) scheme.
func NormalizeURL(rawURL string) (string, error) {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return "", ErrEmptyURL
	}
	if !schemePattern.MatchString(s) {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return "", ErrInvalidURL
	}
	return s, nil
}

// Verify interface implementation at compile time.
var _ Capturer = (*Chrome)(nil)
