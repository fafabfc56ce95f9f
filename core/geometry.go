package core

import (
	"math"

	"github.com/mattew90/sharpscale/dom"
	apperrors "github.com/mattew90/sharpscale/errors"
)

// Analyzer computes per-axis scale factors from an element's content box and
// the natural resolution of its decoded resource.  It is read-only.
type Analyzer struct {
	// Tolerance is the relative deviation from 1.0 below which an axis is
	// treated as unscaled, guarding against subpixel layout jitter.
	Tolerance float64
}

// NewAnalyzer returns an Analyzer with the given tolerance (default 1e-3).
func NewAnalyzer(tolerance float64) *Analyzer {
	if tolerance <= 0 {
		tolerance = 1e-3
	}
	return &Analyzer{Tolerance: tolerance}
}

// Analyze derives ScaleInfo for an element.  A natural size of zero means the
// resource has not decoded yet and is reported as ErrNotReady, never as a
// zero or infinite scale.  Vector sources must be excluded by the caller.
func (a *Analyzer) Analyze(el *dom.Element, naturalW, naturalH int) (ScaleInfo, error) {
	if naturalW <= 0 || naturalH <= 0 {
		return ScaleInfo{}, apperrors.New(apperrors.CategoryGeometry, "analyze", apperrors.ErrNotReady)
	}

	box := el.ContentBox()
	w, h := float64(naturalW), float64(naturalH)
	switch {
	case box.HasWidth && box.HasHeight:
		w, h = box.Width, box.Height
	case box.HasWidth:
		// Unspecified axis follows the natural aspect ratio.
		w = box.Width
		h = box.Width * float64(naturalH) / float64(naturalW)
	case box.HasHeight:
		h = box.Height
		w = box.Height * float64(naturalW) / float64(naturalH)
	}
	if w <= 0 || h <= 0 {
		return ScaleInfo{}, apperrors.New(apperrors.CategoryGeometry, "analyze", apperrors.ErrInvalidDimensions)
	}

	info := ScaleInfo{
		ScaleX:       w / float64(naturalW),
		ScaleY:       h / float64(naturalH),
		TargetWidth:  int(math.Round(w)),
		TargetHeight: int(math.Round(h)),
	}
	if info.TargetWidth < 1 {
		info.TargetWidth = 1
	}
	if info.TargetHeight < 1 {
		info.TargetHeight = 1
	}
	info.NeedsResampling = deviates(info.ScaleX, a.Tolerance) || deviates(info.ScaleY, a.Tolerance)
	return info, nil
}

func deviates(scale, tolerance float64) bool {
	return math.Abs(scale-1.0) > tolerance
}

// NearInteger reports whether scale is within tolerance of an integer factor
// and returns that factor.  Used by the fallback eligibility test.
func NearInteger(scale, tolerance float64) (int, bool) {
	n := math.Round(scale)
	if n < 1 {
		return 0, false
	}
	if math.Abs(scale-n) > tolerance*n {
		return 0, false
	}
	return int(n), true
}
