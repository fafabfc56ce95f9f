package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// SurfaceMarkerAttr tags generated replacement surfaces so scans skip them
// and teardown can find them.
const SurfaceMarkerAttr = "data-resampled-surface"

// Element wraps a single element node.  Identity is the underlying node
// pointer; use Node() when keying maps.
type Element struct {
	node *html.Node
	doc  *Document
}

// Node returns the underlying node, the element's identity.
func (e *Element) Node() *html.Node { return e.node }

// Document returns the owning document.
func (e *Element) Document() *Document { return e.doc }

// Attr returns the value of the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.node.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// AttrOr returns the attribute value or def when absent.
func (e *Element) AttrOr(name, def string) string {
	if v, ok := e.Attr(name); ok {
		return v
	}
	return def
}

// SetAttr sets or replaces the named attribute.
func (e *Element) SetAttr(name, val string) {
	for i, a := range e.node.Attr {
		if a.Key == name {
			e.node.Attr[i].Val = val
			return
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: val})
}

// RemoveAttr deletes the named attribute if present.
func (e *Element) RemoveAttr(name string) {
	for i, a := range e.node.Attr {
		if a.Key == name {
			e.node.Attr = append(e.node.Attr[:i], e.node.Attr[i+1:]...)
			return
		}
	}
}

// HasAttr reports whether the named attribute exists.
func (e *Element) HasAttr(name string) bool {
	_, ok := e.Attr(name)
	return ok
}

// ── source handling ───────────────────────────────────────────────────────────

// Src returns the element's raw src attribute value.
func (e *Element) Src() string { return e.AttrOr("src", "") }

// SetSrc replaces the element's source.
func (e *Element) SetSrc(src string) { e.SetAttr("src", src) }

// ResolvedSrc returns the src resolved against the document base.
func (e *Element) ResolvedSrc() string { return e.doc.ResolveURL(e.Src()) }

// SrcSet returns the raw srcset attribute value.
func (e *Element) SrcSet() string { return e.AttrOr("srcset", "") }

// SrcSetCandidates parses the srcset attribute into candidate URLs, ignoring
// width/density descriptors.
func (e *Element) SrcSetCandidates() []string {
	raw := strings.TrimSpace(e.SrcSet())
	if raw == "" {
		return nil
	}
	var urls []string
	for _, part := range strings.Split(raw, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) > 0 {
			urls = append(urls, fields[0])
		}
	}
	return urls
}

// CrossOriginMode returns the crossorigin attribute value ("anonymous" or
// "use-credentials") and whether it is present.  A bare attribute counts as
// anonymous, matching browser behaviour.
func (e *Element) CrossOriginMode() (string, bool) {
	v, ok := e.Attr("crossorigin")
	if !ok {
		return "", false
	}
	if v == "" {
		return "anonymous", true
	}
	return strings.ToLower(v), true
}

// VectorSource reports whether the source URL names a vector image.  This is
// the upstream exclusion; sniffed bytes may still reveal SVG later.
func (e *Element) VectorSource() bool {
	src := strings.ToLower(e.Src())
	if strings.HasPrefix(src, "data:image/svg") {
		return true
	}
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	return strings.HasSuffix(src, ".svg") || strings.HasSuffix(src, ".svgz")
}

// SourceID returns a compact identifier for diagnostics: the src, with data
// URIs truncated to their header.
func (e *Element) SourceID() string {
	src := e.Src()
	if strings.HasPrefix(src, "data:") {
		if i := strings.IndexByte(src, ','); i >= 0 && i < 64 {
			return src[:i] + ",…"
		}
		if len(src) > 64 {
			return src[:64] + "…"
		}
	}
	return src
}

// ── style handling ────────────────────────────────────────────────────────────

// Style returns the raw inline style attribute value.
func (e *Element) Style() (string, bool) { return e.Attr("style") }

// SetStyle replaces the whole inline style attribute.  An empty value removes
// the attribute so restores are byte-identical.
func (e *Element) SetStyle(style string) {
	if style == "" {
		e.RemoveAttr("style")
		return
	}
	e.SetAttr("style", style)
}

// StyleValue returns the value of one inline style property.
func (e *Element) StyleValue(prop string) (string, bool) {
	style, _ := e.Style()
	return styleValue(style, prop)
}

// SetStyleValue sets one inline style property, preserving the rest of the
// declaration list.
func (e *Element) SetStyleValue(prop, val string) {
	style, _ := e.Style()
	e.SetAttr("style", setStyleValue(style, prop, val))
}

// SetDisplayNone hides the element.  Callers save the prior style attribute
// first so the change can be reverted exactly.
func (e *Element) SetDisplayNone() { e.SetStyleValue("display", "none") }

// ── tree mutation ─────────────────────────────────────────────────────────────

// InsertAfter attaches other as the next sibling of e.
func (e *Element) InsertAfter(other *Element) {
	parent := e.node.Parent
	if parent == nil {
		return
	}
	if other.node.Parent != nil {
		other.node.Parent.RemoveChild(other.node)
	}
	if e.node.NextSibling != nil {
		parent.InsertBefore(other.node, e.node.NextSibling)
		return
	}
	parent.AppendChild(other.node)
}

// Detach removes the element from the tree.
func (e *Element) Detach() {
	if e.node.Parent != nil {
		e.node.Parent.RemoveChild(e.node)
	}
}

// NextSurface returns the immediately following sibling surface generated for
// this element, if one exists.
func (e *Element) NextSurface() *Element {
	for n := e.node.NextSibling; n != nil; n = n.NextSibling {
		if n.Type != html.ElementNode {
			continue
		}
		if n.Data != "img" {
			return nil
		}
		s := &Element{node: n, doc: e.doc}
		if s.HasAttr(SurfaceMarkerAttr) {
			return s
		}
		return nil
	}
	return nil
}

// IsSurface reports whether the element is a generated replacement surface.
func (e *Element) IsSurface() bool { return e.HasAttr(SurfaceMarkerAttr) }

// OuterHTML serialises just this element; used by tests and diagnostics.
func (e *Element) OuterHTML() (string, error) {
	var b strings.Builder
	if err := html.Render(&b, e.node); err != nil {
		return "", err
	}
	return b.String(), nil
}
