package probe

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	exif "github.com/dsoprea/go-exif/v3"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
	"golang.org/x/sync/singleflight"

	"github.com/fakebuster/fakebuster/internal/model"
)

// DefaultMaxBytes is the default download limit per image.
const DefaultMaxBytes = 2 * 1024 * 1024

// ErrUnsupportedScheme is returned for URLs the prober cannot load.
var ErrUnsupportedScheme = errors.New("unsupported image URL scheme")

// Info is what the probe learned about one image.
type Info struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   string `json:"format"`
	Software string `json:"software,omitempty"`
	Artist   string `json:"artist,omitempty"`
}

// Prober fetches image headers. It is safe for concurrent use.
type Prober struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
	logger    *slog.Logger

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]result
}

type result struct {
	info Info
	err  error
}

// Option configures a Prober.
type Option func(*Prober)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Prober) {
		if c != nil {
			p.client = c
		}
	}
}

// WithMaxBytes sets the per-image download limit.
func WithMaxBytes(n int64) Option {
	return func(p *Prober) {
		if n > 0 {
			p.maxBytes = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(p *Prober) {
		p.userAgent = ua
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Prober) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Prober.
func New(opts ...Option) *Prober {
	p := &Prober{
		client:   &http.Client{},
		maxBytes: DefaultMaxBytes,
		logger:   slog.Default(),
		cache:    make(map[string]result),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe returns the natural size and EXIF tags of the image at imageURL.
// Both successes and failures are cached.
func (p *Prober) Probe(ctx context.Context, imageURL string) (Info, error) {
	p.mu.Lock()
	if r, ok := p.cache[imageURL]; ok {
		p.mu.Unlock()
		return r.info, r.err
	}
	p.mu.Unlock()

	v, err, _ := p.group.Do(imageURL, func() (any, error) {
		info, err := p.probe(ctx, imageURL)
		// A cancelled caller says nothing about the image; don't cache it.
		if ctx.Err() == nil {
			p.mu.Lock()
			p.cache[imageURL] = result{info: info, err: err}
			p.mu.Unlock()
		}
		return info, err
	})
	info, _ := v.(Info) //nolint:errcheck // v is always Info
	return info, err
}

// Cached returns the number of memoized URLs.
func (p *Prober) Cached() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cache)
}

func (p *Prober) probe(ctx context.Context, imageURL string) (Info, error) {
	data, err := p.load(ctx, imageURL)
	if err != nil {
		return Info{}, err
	}
	return Decode(data)
}

// load reads up to maxBytes of an http(s), file or data: image.
func (p *Prober) load(ctx context.Context, imageURL string) ([]byte, error) {
	if model.IsDataURI(imageURL) {
		return decodeDataURI(imageURL)
	}

	u, err := url.Parse(imageURL)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
		if err != nil {
			return nil, err
		}
		if p.userAgent != "" {
			req.Header.Set("User-Agent", p.userAgent)
		}
		req.Header.Set("Accept", "image/*")

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("GET %s: status %d", imageURL, resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, p.maxBytes))

	case "file":
		f, err := os.Open(u.Path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, p.maxBytes))

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

func decodeDataURI(dataURL string) ([]byte, error) {
	meta, payload, ok := strings.Cut(dataURL, ",")
	if !ok {
		return nil, errors.New("malformed data URI")
	}
	if !strings.HasSuffix(strings.ToLower(meta), ";base64") {
		return []byte(payload), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.URLEncoding.DecodeString(payload)
	}
	return data, err
}

// Decode reads the image header and EXIF tags from data, which may be a
// truncated prefix of the image.
func Decode(data []byte) (Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("decode image header: %w", err)
	}

	info := Info{Width: cfg.Width, Height: cfg.Height, Format: format}
	info.Software, info.Artist = exifTags(data)
	return info, nil
}

// exifTags returns the Software and Artist EXIF tags, if present.
func exifTags(data []byte) (software, artist string) {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		return "", ""
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return "", ""
	}

	for _, entry := range entries {
		value := strings.TrimSpace(strings.Trim(entry.Formatted, "\x00"))
		switch entry.TagName {
		case "Software", "ProcessingSoftware":
			if software == "" {
				software = value
			}
		case "Artist", "XPAuthor":
			if artist == "" {
				artist = value
			}
		}
	}
	return software, artist
}

// Apply copies probe results onto a scan target.
func (i Info) Apply(t *model.ScanTarget) {
	t.NaturalWidth = i.Width
	t.NaturalHeight = i.Height
	if i.Software != "" {
		t.Generator = i.Software
	}
}
