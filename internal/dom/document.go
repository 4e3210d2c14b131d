package dom

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/fakebuster/fakebuster/internal/model"
)

// CheckedAttr marks an element that has already been handed to a scan pass.
const CheckedAttr = "data-fb-checked"

// imageSelector matches images not yet seen by a scan pass, including
// lazy-loaded images whose source is still in data-src.
const imageSelector = "img[src]:not([" + CheckedAttr + "]), img[data-src]:not([src]):not([" + CheckedAttr + "])"

// Document is a parsed page. All access goes through its mutex because
// scan passes query and annotate it concurrently.
type Document struct {
	mu   sync.Mutex
	doc  *goquery.Document
	url  string
	base *url.URL
	hash string
}

// NewDocument parses a loaded page.
func NewDocument(page *model.Page) (*Document, error) {
	d, err := Parse(bytes.NewReader(page.Raw), page.URL)
	if err != nil {
		return nil, err
	}
	d.hash = page.Hash
	return d, nil
}

// Parse parses HTML from r. pageURL is used to resolve relative resources.
func Parse(r io.Reader, pageURL string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL %q: %w", pageURL, err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = ref
		}
	}

	return &Document{doc: doc, url: pageURL, base: base}, nil
}

// URL returns the page URL.
func (d *Document) URL() string {
	return d.url
}

// Hash returns the content hash of the page the document was parsed from.
func (d *Document) Hash() string {
	return d.hash
}

// Base returns the URL relative resources are resolved against.
func (d *Document) Base() *url.URL {
	u := *d.base
	return &u
}

// Images returns a ScanTarget for every candidate image not yet marked as
// checked, in document order.
func (d *Document) Images() []model.ScanTarget {
	d.mu.Lock()
	defer d.mu.Unlock()

	var targets []model.ScanTarget
	d.doc.Find(imageSelector).Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		src := currentSrc(n)

		width, height := declaredSize(n)
		cs := computeStyle(n)

		targets = append(targets, model.ScanTarget{
			Key:        model.NewDedupKey(src, d.base),
			URL:        resolve(src, d.base),
			Box:        model.Box{Width: width, Height: height},
			Display:    cs.display,
			Visibility: cs.visibility,
			Opacity:    cs.opacity,
			Hidden:     cs.hidden,
			Node:       n,
		})
	})
	return targets
}

// currentSrc picks the source a browser would most likely load: the first
// srcset candidate, then src, then a lazy-loading data-src.
func currentSrc(n *html.Node) string {
	if srcset := strings.TrimSpace(getAttr(n, "srcset")); srcset != "" && !model.IsDataURI(srcset) {
		if first := firstSrcsetURL(srcset); first != "" {
			return first
		}
	}
	if src := strings.TrimSpace(getAttr(n, "src")); src != "" {
		return src
	}
	return strings.TrimSpace(getAttr(n, "data-src"))
}

// firstSrcsetURL returns the URL of the first srcset candidate. A candidate
// URL runs to the next whitespace and may itself contain commas, as in CDN
// transform paths like "/w_200,h_200/a.jpg"; only trailing commas end it.
func firstSrcsetURL(srcset string) string {
	const space = " \t\n\r\f"
	s := strings.TrimLeft(srcset, ","+space)
	if end := strings.IndexAny(s, space); end >= 0 {
		s = s[:end]
	}
	return strings.TrimRight(s, ",")
}

func resolve(raw string, base *url.URL) string {
	if raw == "" || model.IsDataURI(raw) {
		return raw
	}
	u, err := base.Parse(raw)
	if err != nil {
		return raw
	}
	return u.String()
}

// MarkChecked flags n so later passes no longer select it.
func (d *Document) MarkChecked(n *html.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	setAttr(n, CheckedAttr, "true")
}

// ClaimChecked marks n and reports whether this call set the marker.
func (d *Document) ClaimChecked(n *html.Node) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if hasAttr(n, CheckedAttr) {
		return false
	}
	setAttr(n, CheckedAttr, "true")
	return true
}

// Mutate runs fn with exclusive access to the document root.
func (d *Document) Mutate(fn func(root *html.Node)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.doc.Get(0))
}

// Query returns the first element matching selector, or nil.
func (d *Document) Query(selector string) *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	sel := d.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil
	}
	return sel.Get(0)
}

// Count returns the number of elements matching selector.
func (d *Document) Count(selector string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Find(selector).Length()
}

// Text returns the normalized text content of the first element matching
// selector. Scripts and styles are skipped.
func (d *Document) Text(selector string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	sel := d.doc.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(sel.Get(0))
	return strings.Join(strings.Fields(sb.String()), " ")
}

// Render writes the document, including any annotations, as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.doc.Get(0))
}

// HTML returns the rendered document.
func (d *Document) HTML() (string, error) {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
