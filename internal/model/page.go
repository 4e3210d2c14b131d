package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// MaxPageSize is the maximum size of raw page content kept in memory.
const MaxPageSize = 5 * 1024 * 1024 // 5 MB

// Page is a loaded HTML page before it is parsed into a document.
type Page struct {
	// URL is the final URL of the page after redirects, or a file:// URL
	// for pages read from disk.
	URL string `json:"url"`

	// StatusCode is the HTTP status code (200 for local files).
	StatusCode int `json:"status_code"`

	// ContentType is the MIME type of the response.
	ContentType string `json:"content_type"`

	// Raw contains the response body, limited to MaxPageSize.
	Raw []byte `json:"-"`

	// Hash is the SHA-256 of Raw, used to detect page mutations.
	Hash string `json:"hash"`

	// FetchedAt is when the page was loaded.
	FetchedAt time.Time `json:"fetched_at"`
}

// ComputeHash calculates and sets the SHA-256 hash of the page's raw content.
func (p *Page) ComputeHash() {
	if len(p.Raw) == 0 {
		p.Hash = ""
		return
	}

	hash := sha256.Sum256(p.Raw)
	p.Hash = hex.EncodeToString(hash[:])
}

// IsHTML returns true if the content type indicates HTML.
// An empty content type is treated as HTML, which covers local files.
func (p *Page) IsHTML() bool {
	ct := strings.ToLower(p.ContentType)
	return ct == "" ||
		strings.HasPrefix(ct, "text/html") ||
		strings.HasPrefix(ct, "application/xhtml+xml")
}

// TruncateRaw ensures the raw content doesn't exceed MaxPageSize.
func (p *Page) TruncateRaw() {
	if len(p.Raw) > MaxPageSize {
		p.Raw = p.Raw[:MaxPageSize]
	}
}
