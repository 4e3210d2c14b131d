package dom

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Computed style values used by the visibility filter.
const (
	DisplayNone      = "none"
	VisibilityHidden = "hidden"
	visibilityShown  = "visible"
)

// computedStyle is the subset of an element's computed style that decides
// whether it is rendered.
type computedStyle struct {
	display    string
	visibility string
	opacity    float64
	// hidden is set for elements in subtrees that are never rendered.
	hidden bool
}

// parseStyle parses an inline style attribute into lowercase property/value
// pairs. Later declarations win, as in CSS. "!important" is dropped.
func parseStyle(style string) map[string]string {
	props := make(map[string]string)
	for decl := range strings.SplitSeq(style, ";") {
		name, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.ToLower(strings.TrimSpace(value))
		value = strings.TrimSpace(strings.TrimSuffix(value, "!important"))
		if name == "" || value == "" {
			continue
		}
		props[name] = value
	}
	return props
}

// parsePx parses a CSS or attribute length in pixels ("120", "120px").
// Relative units are not resolved and yield 0.
func parsePx(v string) float64 {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.TrimSuffix(v, "px")
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}

// parseOpacity parses a CSS opacity, accepting percentages.
// Unparsable values count as fully opaque.
func parseOpacity(v string) float64 {
	v = strings.TrimSpace(v)
	pct := strings.HasSuffix(v, "%")
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
	if err != nil {
		return 1
	}
	if pct {
		f /= 100
	}
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// computeStyle approximates the browser cascade for n from inline styles
// and the hidden attribute of n and its ancestors.
func computeStyle(n *html.Node) computedStyle {
	cs := computedStyle{display: "inline", opacity: 1}
	visibilitySet := false

	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}

		switch cur.DataAtom {
		case atom.Template, atom.Noscript, atom.Head:
			cs.hidden = true
		}

		if hasAttr(cur, "hidden") {
			cs.display = DisplayNone
		}

		props := parseStyle(getAttr(cur, "style"))
		if d, ok := props["display"]; ok {
			if d == DisplayNone {
				cs.display = DisplayNone
			} else if cur == n && cs.display != DisplayNone {
				cs.display = d
			}
		}
		if v, ok := props["visibility"]; ok && !visibilitySet {
			if v == "collapse" {
				v = VisibilityHidden
			}
			cs.visibility = v
			visibilitySet = true
		}
		if o, ok := props["opacity"]; ok {
			cs.opacity *= parseOpacity(o)
		}
	}

	if !visibilitySet {
		cs.visibility = visibilityShown
	}
	return cs
}

// declaredSize returns the width and height set by attributes or inline
// style. Inline style wins over attributes.
func declaredSize(n *html.Node) (width, height float64) {
	width = parsePx(getAttr(n, "width"))
	height = parsePx(getAttr(n, "height"))

	props := parseStyle(getAttr(n, "style"))
	if w, ok := props["width"]; ok {
		if px := parsePx(w); px > 0 {
			width = px
		}
	}
	if h, ok := props["height"]; ok {
		if px := parsePx(h); px > 0 {
			height = px
		}
	}
	return width, height
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}

// setAttr sets or replaces an attribute on n.
func setAttr(n *html.Node, key, val string) {
	for i, attr := range n.Attr {
		if attr.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
