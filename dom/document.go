// Package dom provides the document model the resampling engine operates on:
// parsing, image discovery, read-only box geometry, and the small set of
// mutations the engine performs (surface insertion, visibility toggles,
// rendering-hint writes).
package dom

import (
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Document wraps a parsed HTML document together with its base URL, which
// anchors origin decisions and relative source resolution.
type Document struct {
	root *html.Node
	gq   *goquery.Document
	base *url.URL
}

// Parse reads an HTML document from r.  baseURL may be empty for documents
// with no network origin (every remote image is then cross-origin).
func Parse(r io.Reader, baseURL string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	d := &Document{root: root, gq: goquery.NewDocumentFromNode(root)}
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, err
		}
		d.base = u
	}
	return d, nil
}

// ParseString is a convenience wrapper around Parse.
func ParseString(s, baseURL string) (*Document, error) {
	return Parse(strings.NewReader(s), baseURL)
}

// BaseURL returns the document's base URL, or nil when it has none.
func (d *Document) BaseURL() *url.URL { return d.base }

// ResolveURL resolves ref against the document base.  Absolute references and
// data URIs pass through unchanged.
func (d *Document) ResolveURL(ref string) string {
	if strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "blob:") {
		return ref
	}
	if d.base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return d.base.ResolveReference(u).String()
}

// Images returns every <img> element in document order.
func (d *Document) Images() []*Element {
	var out []*Element
	d.gq.Find("img").Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{node: s.Nodes[0], doc: d})
	})
	return out
}

// ElementFor wraps an existing node belonging to this document.
func (d *Document) ElementFor(n *html.Node) *Element {
	return &Element{node: n, doc: d}
}

// CreateImage returns a detached <img> element owned by this document.
func (d *Document) CreateImage() *Element {
	n := &html.Node{Type: html.ElementNode, Data: "img"}
	return &Element{node: n, doc: d}
}

// Contains reports whether el is still attached to this document's tree.
func (d *Document) Contains(el *Element) bool {
	for n := el.node; n != nil; n = n.Parent {
		if n == d.root {
			return true
		}
	}
	return false
}

// Render serialises the document to w.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// HTML returns the serialised document as a string.
func (d *Document) HTML() (string, error) {
	var b strings.Builder
	if err := d.Render(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}
