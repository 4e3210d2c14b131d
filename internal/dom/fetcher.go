package dom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fakebuster/fakebuster/internal/model"
)

// ErrNotHTML is returned when a loaded resource is not an HTML document.
var ErrNotHTML = errors.New("resource is not an HTML document")

// StatusError is returned when the server answers with an error status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Fetcher loads pages for scanning.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBodySize sets the maximum page body size.
func WithMaxBodySize(size int64) FetcherOption {
	return func(f *Fetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent:   "FakeBuster/1.0",
		maxBodySize: model.MaxPageSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// IsRemote reports whether target is an http(s) URL rather than a file.
func IsRemote(target string) bool {
	lower := strings.ToLower(strings.TrimSpace(target))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// LocalPath returns the filesystem path of a non-remote target, accepting
// both plain paths and file:// URLs.
func LocalPath(target string) string {
	target = strings.TrimSpace(target)
	if u, err := url.Parse(target); err == nil && u.Scheme == "file" {
		return u.Path
	}
	return target
}

// Fetch loads target, which is either an http(s) URL or a local file path.
func (f *Fetcher) Fetch(ctx context.Context, target string) (*model.Page, error) {
	if IsRemote(target) {
		return f.fetchHTTP(ctx, target)
	}
	return f.readFile(target)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, pageURL string) (*model.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, err
	}

	page := &model.Page{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Raw:         body,
		FetchedAt:   time.Now(),
	}
	page.ComputeHash()
	page.TruncateRaw()

	if !page.IsHTML() {
		return nil, fmt.Errorf("%s (%s): %w", pageURL, page.ContentType, ErrNotHTML)
	}
	return page, nil
}

func (f *Fetcher) readFile(target string) (*model.Page, error) {
	path, err := filepath.Abs(LocalPath(target))
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path) //nolint:gosec // user-provided page path is intentional
	if err != nil {
		return nil, err
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, f.maxBodySize))
	if err != nil {
		return nil, err
	}

	page := &model.Page{
		URL:        (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(),
		StatusCode: http.StatusOK,
		Raw:        body,
		FetchedAt:  time.Now(),
	}
	page.ComputeHash()
	page.TruncateRaw()
	return page, nil
}
