package dom

import (
	"strconv"
	"strings"
)

// declaration is one "property: value" pair of an inline style.
type declaration struct {
	prop string
	val  string
}

func parseStyle(style string) []declaration {
	var out []declaration
	for _, part := range strings.Split(style, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i := strings.IndexByte(part, ':')
		if i < 0 {
			continue
		}
		prop := strings.ToLower(strings.TrimSpace(part[:i]))
		val := strings.TrimSpace(part[i+1:])
		if prop == "" {
			continue
		}
		out = append(out, declaration{prop: prop, val: val})
	}
	return out
}

func renderStyle(decls []declaration) string {
	var b strings.Builder
	for i, d := range decls {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(d.prop)
		b.WriteString(": ")
		b.WriteString(d.val)
	}
	return b.String()
}

// styleValue returns the last declared value for prop, matching cascade order.
func styleValue(style, prop string) (string, bool) {
	prop = strings.ToLower(prop)
	val, ok := "", false
	for _, d := range parseStyle(style) {
		if d.prop == prop {
			val, ok = d.val, true
		}
	}
	return val, ok
}

// setStyleValue replaces the declaration for prop, or appends one, keeping
// the remaining declarations in order.
func setStyleValue(style, prop, val string) string {
	prop = strings.ToLower(prop)
	decls := parseStyle(style)
	for i, d := range decls {
		if d.prop == prop {
			decls[i].val = val
			return renderStyle(decls)
		}
	}
	decls = append(decls, declaration{prop: prop, val: val})
	return renderStyle(decls)
}

// parsePx parses a pixel length ("300px" or a bare number).  Relative units
// are not resolvable from inline context and report !ok.
func parsePx(v string) (float64, bool) {
	v = strings.TrimSpace(strings.ToLower(v))
	v = strings.TrimSuffix(v, "px")
	if v == "" || strings.HasSuffix(v, "%") || strings.HasSuffix(v, "em") ||
		strings.HasSuffix(v, "vw") || strings.HasSuffix(v, "vh") {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}

// Box is the computed content-box size of an image element, per axis.  An
// axis is unset when neither inline style nor attribute specifies it.
type Box struct {
	Width, Height       float64
	HasWidth, HasHeight bool
}

// ContentBox reads the element's displayed size from inline style (px) or
// width/height attributes, and converts border-box sizes to the content box
// by subtracting border and padding extents.
func (e *Element) ContentBox() Box {
	style, _ := e.Style()

	var box Box
	box.Width, box.HasWidth = e.axisLength(style, "width")
	box.Height, box.HasHeight = e.axisLength(style, "height")

	if v, ok := styleValue(style, "box-sizing"); ok && strings.EqualFold(strings.TrimSpace(v), "border-box") {
		padL, padR, padT, padB := edgeExtents(style, "padding")
		borL, borR, borT, borB := borderExtents(style)
		if box.HasWidth {
			box.Width -= padL + padR + borL + borR
			if box.Width < 0 {
				box.Width = 0
			}
		}
		if box.HasHeight {
			box.Height -= padT + padB + borT + borB
			if box.Height < 0 {
				box.Height = 0
			}
		}
	}
	return box
}

// axisLength resolves one axis from style then the presentation attribute.
func (e *Element) axisLength(style, axis string) (float64, bool) {
	if v, ok := styleValue(style, axis); ok {
		if f, ok := parsePx(v); ok {
			return f, true
		}
		// Explicit but unresolvable (%, em): treat as unspecified.
		return 0, false
	}
	if v, ok := e.Attr(axis); ok {
		if f, ok := parsePx(v); ok {
			return f, true
		}
	}
	return 0, false
}

// edgeExtents resolves per-side lengths for a box property ("padding"),
// honouring both the shorthand and the per-side longhands.
func edgeExtents(style, prop string) (left, right, top, bottom float64) {
	if v, ok := styleValue(style, prop); ok {
		top, right, bottom, left = expandShorthand(v)
	}
	if v, ok := styleValue(style, prop+"-left"); ok {
		if f, ok := parsePx(v); ok {
			left = f
		}
	}
	if v, ok := styleValue(style, prop+"-right"); ok {
		if f, ok := parsePx(v); ok {
			right = f
		}
	}
	if v, ok := styleValue(style, prop+"-top"); ok {
		if f, ok := parsePx(v); ok {
			top = f
		}
	}
	if v, ok := styleValue(style, prop+"-bottom"); ok {
		if f, ok := parsePx(v); ok {
			bottom = f
		}
	}
	return left, right, top, bottom
}

// borderExtents resolves border widths from border-width, the border
// shorthand, or per-side longhands.
func borderExtents(style string) (left, right, top, bottom float64) {
	if v, ok := styleValue(style, "border"); ok {
		// First length token of the shorthand is the width.
		for _, tok := range strings.Fields(v) {
			if f, ok := parsePx(tok); ok {
				left, right, top, bottom = f, f, f, f
				break
			}
		}
	}
	if v, ok := styleValue(style, "border-width"); ok {
		top, right, bottom, left = expandShorthand(v)
	}
	for _, side := range []struct {
		prop string
		dst  *float64
	}{
		{"border-left-width", &left},
		{"border-right-width", &right},
		{"border-top-width", &top},
		{"border-bottom-width", &bottom},
	} {
		if v, ok := styleValue(style, side.prop); ok {
			if f, ok := parsePx(v); ok {
				*side.dst = f
			}
		}
	}
	return left, right, top, bottom
}

// expandShorthand maps 1-4 CSS shorthand values to top, right, bottom, left.
func expandShorthand(v string) (top, right, bottom, left float64) {
	var vals []float64
	for _, tok := range strings.Fields(v) {
		if f, ok := parsePx(tok); ok {
			vals = append(vals, f)
		} else {
			vals = append(vals, 0)
		}
	}
	switch len(vals) {
	case 1:
		return vals[0], vals[0], vals[0], vals[0]
	case 2:
		return vals[0], vals[1], vals[0], vals[1]
	case 3:
		return vals[0], vals[1], vals[2], vals[1]
	case 4:
		return vals[0], vals[1], vals[2], vals[3]
	}
	return 0, 0, 0, 0
}
