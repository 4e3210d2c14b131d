package dom

import (
	"context"
	"sync"
)

// Source produces the document a scan pass works on.
type Source interface {
	// Snapshot returns the current document.
	Snapshot(ctx context.Context) (*Document, error)
	// URL identifies the page.
	URL() string
}

// PageSource loads its target on every snapshot. While the page content is
// unchanged the previous Document is returned, so checked markers and
// annotations survive; a changed page yields a fresh Document whose
// elements are all unchecked again, like a re-rendered DOM.
type PageSource struct {
	fetcher *Fetcher
	target  string

	mu      sync.Mutex
	current *Document
}

// NewPageSource creates a Source for a URL or file path.
func NewPageSource(fetcher *Fetcher, target string) *PageSource {
	return &PageSource{fetcher: fetcher, target: target}
}

// URL returns the target as given.
func (s *PageSource) URL() string {
	return s.target
}

// Snapshot loads the page and returns the current document.
func (s *PageSource) Snapshot(ctx context.Context) (*Document, error) {
	page, err := s.fetcher.Fetch(ctx, s.target)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.Hash() == page.Hash {
		return s.current, nil
	}

	doc, err := NewDocument(page)
	if err != nil {
		return nil, err
	}
	s.current = doc
	return doc, nil
}

// Current returns the most recent document, or nil before the first snapshot.
func (s *PageSource) Current() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// StaticSource always returns the same document.
type StaticSource struct {
	doc *Document
}

// NewStaticSource wraps an already parsed document.
func NewStaticSource(doc *Document) *StaticSource {
	return &StaticSource{doc: doc}
}

// URL returns the document URL.
func (s *StaticSource) URL() string {
	return s.doc.URL()
}

// Snapshot returns the wrapped document.
func (s *StaticSource) Snapshot(_ context.Context) (*Document, error) {
	return s.doc, nil
}
