package core

import (
	"errors"
	"math"
	"testing"

	"github.com/mattew90/sharpscale/dom"
	apperrors "github.com/mattew90/sharpscale/errors"
)

func imageEl(t *testing.T, markup string) *dom.Element {
	t.Helper()
	doc, err := dom.ParseString("<html><body>"+markup+"</body></html>", "")
	if err != nil {
		t.Fatal(err)
	}
	imgs := doc.Images()
	if len(imgs) != 1 {
		t.Fatalf("got %d images, want 1", len(imgs))
	}
	return imgs[0]
}

func TestAnalyzeScaleFactors(t *testing.T) {
	a := NewAnalyzer(1e-3)

	tests := []struct {
		name             string
		markup           string
		naturalW         int
		naturalH         int
		wantX, wantY     float64
		wantNeeds        bool
		wantW, wantH     int
	}{
		{
			name:     "downscale both axes",
			markup:   `<img src="a.png" width="160" height="120">`,
			naturalW: 320, naturalH: 240,
			wantX: 0.5, wantY: 0.5, wantNeeds: true, wantW: 160, wantH: 120,
		},
		{
			name:     "integer upscale",
			markup:   `<img src="a.png" width="32" height="32">`,
			naturalW: 16, naturalH: 16,
			wantX: 2, wantY: 2, wantNeeds: true, wantW: 32, wantH: 32,
		},
		{
			name:     "unscaled within tolerance",
			markup:   `<img src="a.png" width="320" height="240">`,
			naturalW: 320, naturalH: 240,
			wantX: 1, wantY: 1, wantNeeds: false, wantW: 320, wantH: 240,
		},
		{
			name:     "no displayed size falls back to natural",
			markup:   `<img src="a.png">`,
			naturalW: 320, naturalH: 240,
			wantX: 1, wantY: 1, wantNeeds: false, wantW: 320, wantH: 240,
		},
		{
			name:     "single axis completes aspect ratio",
			markup:   `<img src="a.png" width="160">`,
			naturalW: 320, naturalH: 240,
			wantX: 0.5, wantY: 0.5, wantNeeds: true, wantW: 160, wantH: 120,
		},
		{
			name:     "height only completes aspect ratio",
			markup:   `<img src="a.png" height="480">`,
			naturalW: 320, naturalH: 240,
			wantX: 2, wantY: 2, wantNeeds: true, wantW: 640, wantH: 480,
		},
		{
			name:     "non-uniform scaling",
			markup:   `<img src="a.png" width="640" height="120">`,
			naturalW: 320, naturalH: 240,
			wantX: 2, wantY: 0.5, wantNeeds: true, wantW: 640, wantH: 120,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := a.Analyze(imageEl(t, tt.markup), tt.naturalW, tt.naturalH)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(info.ScaleX-tt.wantX) > 1e-9 || math.Abs(info.ScaleY-tt.wantY) > 1e-9 {
				t.Errorf("scale = %v, %v; want %v, %v", info.ScaleX, info.ScaleY, tt.wantX, tt.wantY)
			}
			if info.NeedsResampling != tt.wantNeeds {
				t.Errorf("NeedsResampling = %v, want %v", info.NeedsResampling, tt.wantNeeds)
			}
			if info.TargetWidth != tt.wantW || info.TargetHeight != tt.wantH {
				t.Errorf("target = %dx%d, want %dx%d", info.TargetWidth, info.TargetHeight, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestAnalyzeNotReadyForZeroNatural(t *testing.T) {
	a := NewAnalyzer(0)
	el := imageEl(t, `<img src="a.png" width="100">`)
	_, err := a.Analyze(el, 0, 0)
	if !errors.Is(err, apperrors.ErrNotReady) {
		t.Fatalf("err = %v; want ErrNotReady", err)
	}
	// Never a zero or infinite scale: the error replaces the value entirely.
	_, err = a.Analyze(el, 100, 0)
	if !errors.Is(err, apperrors.ErrNotReady) {
		t.Fatalf("err = %v; want ErrNotReady for zero height", err)
	}
}

func TestAnalyzeToleranceBoundary(t *testing.T) {
	a := NewAnalyzer(0.01)
	el := imageEl(t, `<img src="a.png" width="1005" height="1000">`)
	info, err := a.Analyze(el, 1000, 1000)
	if err != nil {
		t.Fatal(err)
	}
	// 0.5% deviation sits inside the 1% tolerance band.
	if info.NeedsResampling {
		t.Fatalf("scale %v/%v within tolerance should not need resampling", info.ScaleX, info.ScaleY)
	}

	el = imageEl(t, `<img src="a.png" width="1020" height="1000">`)
	info, err = a.Analyze(el, 1000, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if !info.NeedsResampling {
		t.Fatal("2% deviation should need resampling")
	}
}

func TestNearInteger(t *testing.T) {
	tests := []struct {
		scale float64
		tol   float64
		want  int
		ok    bool
	}{
		{2.0, 1e-3, 2, true},
		{2.001, 1e-3, 2, true},
		{3.0, 1e-3, 3, true},
		{2.5, 1e-3, 0, false},
		{1.0, 1e-3, 1, true},
		{0.5, 1e-3, 0, false},
		{2.01, 1e-3, 0, false},
	}
	for _, tt := range tests {
		got, ok := NearInteger(tt.scale, tt.tol)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NearInteger(%v, %v) = %v, %v; want %v, %v", tt.scale, tt.tol, got, ok, tt.want, tt.ok)
		}
	}
}
