package model

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// MediaType identifies what kind of content was scored.
type MediaType string

const (
	// MediaImage is an <img> element scored through the image endpoint.
	MediaImage MediaType = "image"

	// MediaText is a text selection scored through the text endpoint.
	MediaText MediaType = "text"
)

// DedupKey is the canonical identity used to avoid scoring a resource twice.
// The zero value is the empty key, which is never eligible for scoring.
type DedupKey string

// Empty reports whether the key carries no identity.
func (k DedupKey) Empty() bool {
	return k == ""
}

// NewDedupKey builds the canonical key for a resource URL found on a page.
// Relative URLs are resolved against base. The fragment is dropped and the
// scheme and host are lowercased, so "#a" and "#b" variants of an image
// share one key. Empty input and data: URIs produce the empty key.
func NewDedupKey(raw string, base *url.URL) DedupKey {
	raw = strings.TrimSpace(raw)
	if raw == "" || IsDataURI(raw) {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return DedupKey(raw)
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Host != "" && u.Path == "" {
		u.Path = "/"
	}
	return DedupKey(u.String())
}

// IsDataURI reports whether s is an inline data: resource.
func IsDataURI(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) >= 5 && strings.EqualFold(s[:5], "data:")
}

// Box is an element's bounding box in CSS pixels.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether the box has no rendered area.
func (b Box) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// ScanTarget is one DOM element under consideration during a scan pass.
// It is created per pass and discarded after classification.
type ScanTarget struct {
	// Key is the dedup identity of the element's resource.
	Key DedupKey `json:"key"`

	// URL is the resolved resource URL (currentSrc analogue).
	URL string `json:"url"`

	// Box is the declared geometry.
	Box Box `json:"box"`

	// Display is the computed display value ("none" when hidden).
	Display string `json:"display,omitempty"`

	// Visibility is the computed visibility value.
	Visibility string `json:"visibility,omitempty"`

	// Opacity is the effective opacity after multiplying ancestors.
	Opacity float64 `json:"opacity"`

	// NaturalWidth and NaturalHeight are the intrinsic image dimensions.
	// Zero means unknown.
	NaturalWidth  int `json:"natural_width,omitempty"`
	NaturalHeight int `json:"natural_height,omitempty"`

	// Hidden marks elements inside a subtree that is never rendered
	// (hidden attribute, <template>, <noscript>).
	Hidden bool `json:"hidden,omitempty"`

	// Generator is the EXIF Software tag when the image carries one.
	Generator string `json:"generator,omitempty"`

	// Node is the element in the page's DOM tree.
	Node *html.Node `json:"-"`
}

// Dimensions returns the size used for the minimum-size check: the natural
// size when known, otherwise the declared box.
func (t ScanTarget) Dimensions() (width, height float64) {
	if t.NaturalWidth > 0 && t.NaturalHeight > 0 {
		return float64(t.NaturalWidth), float64(t.NaturalHeight)
	}
	return t.Box.Width, t.Box.Height
}

// Visible reports whether the element could be seen at all, ignoring size.
func (t ScanTarget) Visible() bool {
	return !t.Hidden &&
		!strings.EqualFold(t.Display, "none") &&
		!strings.EqualFold(t.Visibility, "hidden") &&
		t.Opacity > 0
}

// RenderedBox returns the box the element occupies, preferring the declared
// box and falling back to natural size for unsized images.
func (t ScanTarget) RenderedBox() Box {
	b := t.Box
	if b.Width <= 0 && t.NaturalWidth > 0 {
		b.Width = float64(t.NaturalWidth)
	}
	if b.Height <= 0 && t.NaturalHeight > 0 {
		b.Height = float64(t.NaturalHeight)
	}
	return b
}

// TriggerSource names the event that started a scan pass.
type TriggerSource string

const (
	TriggerLoad     TriggerSource = "load"
	TriggerMutation TriggerSource = "mutation"
	TriggerScroll   TriggerSource = "scroll"
	TriggerMessage  TriggerSource = "message"
)
