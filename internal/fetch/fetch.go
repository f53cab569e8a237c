// Package fetch downloads remote media into a local workspace. HTTP(S) URLs
// are fetched directly; s3://bucket/key URLs are read through the S3 API when
// an S3Source is configured.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maauso/sitereel/internal/media"
	"github.com/maauso/sitereel/internal/storage"
)

// DefaultUserAgent is sent with every HTTP request. Some CDNs refuse
// requests without a browser-like agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultMaxBytes caps a single download.
const DefaultMaxBytes int64 = 200 << 20

// Static errors for fetching.
var (
	// ErrEmptyURL is returned when no URL is given.
	ErrEmptyURL = errors.New("fetch: URL is required")
	// ErrUnsupportedScheme is returned for schemes other than http, https and s3.
	ErrUnsupportedScheme = errors.New("fetch: unsupported URL scheme")
	// ErrBadStatus is returned for non-2xx HTTP responses.
	ErrBadStatus = errors.New("fetch: unexpected status")
	// ErrTooLarge is returned when the body exceeds the size cap.
	ErrTooLarge = errors.New("fetch: body exceeds size limit")
	// ErrS3NotConfigured is returned for s3:// URLs when no S3Source is set.
	ErrS3NotConfigured = errors.New("fetch: S3 is not configured")
)

// Error describes a failed download. StatusCode is zero when no HTTP
// response was received.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fetcher downloads a URL into a workspace.
type Fetcher interface {
	// Fetch stores the body at rawURL in dst as name and returns it as an
	// asset of the given kind. Nothing is left in dst if the download fails.
	Fetch(ctx context.Context, rawURL string, dst storage.Sink, name string, kind media.Kind) (media.Asset, error)
}

// source opens the body behind a parsed URL.
type source interface {
	open(ctx context.Context, u *url.URL) (io.ReadCloser, error)
}

// Client implements Fetcher for http, https and s3 URLs.
type Client struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	timeout    time.Duration
	s3         source
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(fc *Client) {
		fc.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header for HTTP requests.
func WithUserAgent(ua string) Option {
	return func(fc *Client) {
		fc.userAgent = ua
	}
}

// WithMaxBytes sets the download size cap. Non-positive values keep the default.
func WithMaxBytes(n int64) Option {
	return func(fc *Client) {
		if n > 0 {
			fc.maxBytes = n
		}
	}
}

// WithTimeout bounds each fetch, including the body transfer.
func WithTimeout(d time.Duration) Option {
	return func(fc *Client) {
		fc.timeout = d
	}
}

// WithS3 enables s3:// URLs.
func WithS3(s *S3Source) Option {
	return func(fc *Client) {
		if s != nil {
			fc.s3 = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(fc *Client) {
		if l != nil {
			fc.logger = l
		}
	}
}

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		userAgent:  DefaultUserAgent,
		maxBytes:   DefaultMaxBytes,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch implements Fetcher.
func (c *Client) Fetch(ctx context.Context, rawURL string, dst storage.Sink, name string, kind media.Kind) (media.Asset, error) {
	if strings.TrimSpace(rawURL) == "" {
		return media.Asset{}, &Error{Err: ErrEmptyURL}
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return media.Asset{}, &Error{URL: rawURL, Err: err}
	}
	display := displayURL(u)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var src source
	switch u.Scheme {
	case "http", "https":
		src = httpSource{client: c.httpClient, userAgent: c.userAgent}
	case "s3":
		if c.s3 == nil {
			return media.Asset{}, &Error{URL: display, Err: ErrS3NotConfigured}
		}
		src = c.s3
	default:
		return media.Asset{}, &Error{URL: display, Err: fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)}
	}

	start := time.Now()
	body, err := src.open(ctx, u)
	if err != nil {
		var fetchErr *Error
		if errors.As(err, &fetchErr) {
			fetchErr.URL = display
			return media.Asset{}, fetchErr
		}
		return media.Asset{}, &Error{URL: display, Err: err}
	}
	defer func() { _ = body.Close() }()

	path, n, err := dst.Store(ctx, name, &capReader{r: body, limit: c.maxBytes})
	if err != nil {
		return media.Asset{}, &Error{URL: display, Err: err}
	}

	c.logger.Debug("fetched",
		slog.String("url", display),
		slog.Int64("bytes", n),
		slog.Duration("duration", time.Since(start)),
	)
	return media.NewAsset(path, kind), nil
}

// capReader fails once more than limit bytes have been read.
type capReader struct {
	r     io.Reader
	limit int64
	read  int64
}

func (c *capReader) Read(p []byte) (int, error) {
	// Read one byte past the cap to detect oversized bodies.
	if room := c.limit + 1 - c.read; int64(len(p)) > room {
		p = p[:room]
	}
	n, err := c.r.Read(p)
	c.read += int64(n)
	if c.read > c.limit {
		return n, fmt.Errorf("%w (%d bytes)", ErrTooLarge, c.limit)
	}
	return n, err
}

type httpSource struct {
	client    *http.Client
	userAgent string
}

func (s httpSource) open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &Error{StatusCode: resp.StatusCode, Err: ErrBadStatus}
	}
	return resp.Body, nil
}

// displayURL drops credentials and the query string, which often carries
// signatures.
func displayURL(u *url.URL) string {
	v := *u
	v.User = nil
	v.RawQuery = ""
	v.Fragment = ""
	return v.String()
}

// Verify interface implementation at compile time.
var _ Fetcher = (*Client)(nil)
