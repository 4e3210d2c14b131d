package annotate

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/fakebuster/fakebuster/internal/dom"
	"github.com/fakebuster/fakebuster/internal/model"
)

// CSS classes of inserted elements.
const (
	WrapClass    = "fb-wrap"
	MarkerClass  = "fb-marker"
	TooltipClass = "fb-tooltip"
)

// DefaultTooltipDuration is how long a text tooltip stays on the page.
const DefaultTooltipDuration = 5 * time.Second

// ErrDetached is returned when the element to annotate is no longer in the tree.
var ErrDetached = errors.New("annotate: element is not attached to the document")

// Renderer inserts markers and tooltips. It is safe for concurrent use.
type Renderer struct {
	thresholds      model.Thresholds
	tooltipDuration time.Duration
	logger          *slog.Logger

	mu       sync.Mutex
	tooltips map[*Tooltip]struct{}
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithThresholds sets the classification thresholds.
func WithThresholds(t model.Thresholds) Option {
	return func(r *Renderer) {
		r.thresholds = t
	}
}

// WithTooltipDuration sets the text tooltip display window.
func WithTooltipDuration(d time.Duration) Option {
	return func(r *Renderer) {
		if d > 0 {
			r.tooltipDuration = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRenderer creates a Renderer.
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		thresholds:      model.DefaultThresholds(),
		tooltipDuration: DefaultTooltipDuration,
		logger:          slog.Default(),
		tooltips:        make(map[*Tooltip]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Classify applies the renderer's thresholds.
func (r *Renderer) Classify(score float64) model.Classification {
	return r.thresholds.Classify(score)
}

// RenderImage overlays a badge on the target image and returns the
// classification shown.
func (r *Renderer) RenderImage(doc *dom.Document, target model.ScanTarget, result model.ScoreResult) (model.Classification, error) {
	c := r.Classify(result.Score)
	badge := Style(c)

	var err error
	doc.Mutate(func(_ *html.Node) {
		img := target.Node
		if img == nil || img.Parent == nil {
			err = ErrDetached
			return
		}

		wrapper := wrap(img)

		marker := element(atom.Div, map[string]string{
			"class":                  MarkerClass,
			"style":                  markerCSS(badge),
			"data-fb-classification": c.String(),
			"data-fb-score":          strconv.Itoa(result.Percent()),
			"aria-hidden":            "true",
		})
		if title := markerTitle(badge, result); title != "" {
			setAttr(marker, "title", title)
		}
		marker.AppendChild(&html.Node{Type: html.TextNode, Data: MarkerText(c, result)})
		wrapper.AppendChild(marker)
	})
	if err != nil {
		return c, err
	}

	r.logger.Debug("rendered image marker",
		"url", target.URL,
		"classification", c.String(),
		"score", result.Score,
	)
	return c, nil
}

func markerTitle(b Badge, result model.ScoreResult) string {
	parts := []string{b.Label}
	if result.Label != "" {
		parts = append(parts, result.Label)
	}
	if result.Fallback {
		parts = append(parts, "detector unavailable")
	}
	return strings.Join(parts, " · ")
}

// wrap puts img inside a relatively positioned span, reusing an existing
// wrapper from an earlier pass.
func wrap(img *html.Node) *html.Node {
	parent := img.Parent
	if parent.Type == html.ElementNode && parent.DataAtom == atom.Span && hasClass(parent, WrapClass) {
		return parent
	}

	span := element(atom.Span, map[string]string{
		"class": WrapClass,
		"style": wrapCSS,
	})
	parent.InsertBefore(span, img)
	parent.RemoveChild(img)
	span.AppendChild(img)
	return span
}

// RenderText shows a tooltip with the verdict above anchor and schedules
// its removal. A nil anchor anchors to the document body.
func (r *Renderer) RenderText(doc *dom.Document, verdict model.TextVerdict, anchor *html.Node) *Tooltip {
	c := r.Classify(verdict.Score.Score)

	tip := &Tooltip{doc: doc, done: make(chan struct{}), renderer: r}
	tip.node = element(atom.Div, map[string]string{
		"class":                  TooltipClass,
		"role":                   "status",
		"style":                  tooltipCSS,
		"data-fb-classification": c.String(),
	})
	tip.node.AppendChild(&html.Node{Type: html.TextNode, Data: verdict.ResultText})

	doc.Mutate(func(root *html.Node) {
		switch {
		case anchor != nil && anchor.Parent != nil:
			anchor.Parent.InsertBefore(tip.node, anchor)
		default:
			body := findBody(root)
			if body == nil {
				body = root
			}
			body.InsertBefore(tip.node, body.FirstChild)
		}
	})

	r.mu.Lock()
	r.tooltips[tip] = struct{}{}
	r.mu.Unlock()

	tip.mu.Lock()
	tip.timer = time.AfterFunc(r.tooltipDuration, func() {
		tip.Dismiss()
	})
	tip.mu.Unlock()

	r.logger.Debug("rendered text tooltip",
		"classification", c.String(),
		"percent", verdict.Percent,
		"duration", r.tooltipDuration,
	)
	return tip
}

// ActiveTooltips returns the number of tooltips still on the page.
func (r *Renderer) ActiveTooltips() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tooltips)
}

// Close removes every active tooltip.
func (r *Renderer) Close() {
	r.mu.Lock()
	tips := make([]*Tooltip, 0, len(r.tooltips))
	for t := range r.tooltips {
		tips = append(tips, t)
	}
	r.mu.Unlock()

	for _, t := range tips {
		t.Dismiss()
	}
}

// Tooltip is a transient text result on the page.
type Tooltip struct {
	doc      *dom.Document
	node     *html.Node
	renderer *Renderer
	once     sync.Once
	done     chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// Dismiss removes the tooltip now. It reports whether this call removed it.
func (t *Tooltip) Dismiss() bool {
	removed := false
	t.once.Do(func() {
		t.mu.Lock()
		if t.timer != nil {
			t.timer.Stop()
		}
		t.mu.Unlock()
		t.doc.Mutate(func(_ *html.Node) {
			if t.node.Parent != nil {
				t.node.Parent.RemoveChild(t.node)
			}
		})
		t.renderer.mu.Lock()
		delete(t.renderer.tooltips, t)
		t.renderer.mu.Unlock()
		close(t.done)
		removed = true
	})
	return removed
}

// Done is closed once the tooltip has been removed.
func (t *Tooltip) Done() <-chan struct{} {
	return t.done
}

// Text returns the tooltip text.
func (t *Tooltip) Text() string {
	if c := t.node.FirstChild; c != nil {
		return c.Data
	}
	return ""
}

func element(a atom.Atom, attrs map[string]string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: a.String(), DataAtom: a}
	// Fixed order keeps rendered output stable.
	for _, key := range []string{"class", "role", "style", "data-fb-classification", "data-fb-score", "aria-hidden"} {
		if v, ok := attrs[key]; ok {
			n.Attr = append(n.Attr, html.Attribute{Key: key, Val: v})
		}
	}
	return n
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
