// Package dom loads pages and exposes them as a mutable document that scan
// passes query and annotate.
//
// # Components
//
//   - Fetcher: loads a page over HTTP(S) or from a local file
//   - Document: a parsed page guarded by a mutex, queried with goquery
//   - Source: produces the current Document for each scan pass
//
// A Document stands in for the live browser DOM. Candidate images are
// found with the selector `img[src]:not([data-fb-checked])`, their computed
// visibility is approximated from inline styles and the hidden attribute,
// and annotations are inserted directly into the node tree so the page can
// be written back out with Render.
//
// # Usage
//
//	fetcher := dom.NewFetcher(dom.WithUserAgent(cfg.UserAgent))
//	src := dom.NewPageSource(fetcher, "https://example.com/gallery")
//	doc, err := src.Snapshot(ctx)
//	for _, t := range doc.Images() { ... }
package dom
