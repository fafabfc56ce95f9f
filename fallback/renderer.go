// Package fallback applies the CSS nearest-neighbor rendering hint when the
// kernel path is unavailable and the scale is an exact uniform integer
// magnification, the only case where blocky native scaling is correct.
package fallback

import (
	"sync"

	"golang.org/x/net/html"

	"github.com/mattew90/sharpscale/core"
	"github.com/mattew90/sharpscale/dom"
)

// savedStyle remembers an element's style attribute before the first hint
// write, so a revert is byte-identical (including attribute absence).
type savedStyle struct {
	value   string
	present bool
}

// Renderer implements core.FallbackRenderer.  The saved-style table is keyed
// by node identity and entries are dropped when the observation scheduler
// confirms an element detached, so removed elements are not pinned.
type Renderer struct {
	tolerance float64

	mu    sync.Mutex
	saved map[*html.Node]savedStyle
}

// NewRenderer creates a Renderer with the given integer-match tolerance.
func NewRenderer(tolerance float64) *Renderer {
	if tolerance <= 0 {
		tolerance = 1e-3
	}
	return &Renderer{
		tolerance: tolerance,
		saved:     make(map[*html.Node]savedStyle),
	}
}

// Apply sets the pixelated rendering hint when eligible and reports whether
// it did.  Eligibility: raster source, srcset resolving to the base source,
// and both axes scaled by the same integer factor strictly greater than 1.
func (r *Renderer) Apply(el *dom.Element, scaleX, scaleY float64) bool {
	if el.VectorSource() {
		return false
	}
	if !srcsetMatchesBase(el) {
		return false
	}
	nx, okX := core.NearInteger(scaleX, r.tolerance)
	ny, okY := core.NearInteger(scaleY, r.tolerance)
	if !okX || !okY || nx != ny || nx <= 1 {
		return false
	}

	r.save(el)
	el.SetStyleValue("image-rendering", "pixelated")
	return true
}

// Restore reverts the element's style attribute to its pre-hint value and
// drops the table entry.
func (r *Renderer) Restore(el *dom.Element) {
	r.mu.Lock()
	s, ok := r.saved[el.Node()]
	if ok {
		delete(r.saved, el.Node())
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	if s.present {
		el.SetStyle(s.value)
	} else {
		el.RemoveAttr("style")
	}
}

// Forget drops the saved entry without touching the element; called once the
// element is confirmed detached from the document.
func (r *Renderer) Forget(el *dom.Element) {
	r.mu.Lock()
	delete(r.saved, el.Node())
	r.mu.Unlock()
}

// Saved reports whether a pre-hint style is recorded for el.
func (r *Renderer) Saved(el *dom.Element) bool {
	r.mu.Lock()
	_, ok := r.saved[el.Node()]
	r.mu.Unlock()
	return ok
}

// save records the current style attribute once; later hint writes must not
// overwrite the original.
func (r *Renderer) save(el *dom.Element) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.saved[el.Node()]; ok {
		return
	}
	v, present := el.Style()
	r.saved[el.Node()] = savedStyle{value: v, present: present}
}

// srcsetMatchesBase reports whether forcing a hint would agree with the
// browser's own responsive-source selection.
func srcsetMatchesBase(el *dom.Element) bool {
	candidates := el.SrcSetCandidates()
	if len(candidates) == 0 {
		return true
	}
	return len(candidates) == 1 && candidates[0] == el.Src()
}

var _ core.FallbackRenderer = (*Renderer)(nil)
