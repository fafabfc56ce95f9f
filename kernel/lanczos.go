package kernel

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"

	apperrors "github.com/mattew90/sharpscale/errors"
)

// kernel radius.  Fixed: the contract is Lanczos-3, not a filter menu.
const lanczosRadius = 3

// displayGamma approximates the sRGB transfer function for the linear-light
// minification workflow.
const displayGamma = 2.2

func sinc(t float64) float64 {
	if t == 0 {
		return 1
	}
	pt := math.Pi * t
	return math.Sin(pt) / pt
}

// lanczos3 is the windowed-sinc weight L(t) = sinc(t)·sinc(t/3) for |t| < 3.
func lanczos3(t float64) float64 {
	t = math.Abs(t)
	if t >= lanczosRadius {
		return 0
	}
	return sinc(t) * sinc(t/lanczosRadius)
}

// decodeToLinear converts a display-encoded channel in [0,1] to linear light.
func decodeToLinear(v float64) float64 { return math.Pow(v, displayGamma) }

// encodeToDisplay converts a linear-light channel back to display encoding.
func encodeToDisplay(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Pow(v, 1/displayGamma)
}

// toNRGBA normalises any decoded image to NRGBA for sampling.
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Bounds().Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Copy(dst, image.Point{}, img, b, xdraw.Src, nil)
	return dst
}

// texel samples source pixel (x, y) with clamp-to-edge addressing and returns
// non-premultiplied RGBA channels in [0,1].
func texel(src *image.NRGBA, w, h, x, y int) (r, g, b, a float64) {
	if x < 0 {
		x = 0
	} else if x >= w {
		x = w - 1
	}
	if y < 0 {
		y = 0
	} else if y >= h {
		y = h - 1
	}
	i := src.PixOffset(x, y)
	p := src.Pix[i : i+4 : i+4]
	return float64(p[0]) / 255, float64(p[1]) / 255, float64(p[2]) / 255, float64(p[3]) / 255
}

// convolvePixel computes one destination pixel: a 7×7 Lanczos-3 convolution
// of the source neighborhood around the back-projected coordinate, normalized
// by the weight mass actually used so edge clamping keeps unit gain.
func convolvePixel(src *image.NRGBA, srcW, srcH int, cx, cy float64, linearLight bool) (r, g, b, a float64) {
	baseX := int(math.Floor(cx))
	baseY := int(math.Floor(cy))

	var sumR, sumG, sumB, sumA, sumW float64
	for dy := -lanczosRadius; dy <= lanczosRadius; dy++ {
		sy := baseY + dy
		wy := lanczos3(cy - float64(sy))
		if wy == 0 {
			continue
		}
		for dx := -lanczosRadius; dx <= lanczosRadius; dx++ {
			sx := baseX + dx
			w := wy * lanczos3(cx-float64(sx))
			if w == 0 {
				continue
			}
			tr, tg, tb, ta := texel(src, srcW, srcH, sx, sy)
			if linearLight {
				tr = decodeToLinear(tr)
				tg = decodeToLinear(tg)
				tb = decodeToLinear(tb)
			}
			sumR += w * tr
			sumG += w * tg
			sumB += w * tb
			sumA += w * ta
			sumW += w
		}
	}
	if sumW == 0 {
		return 0, 0, 0, 0
	}
	r = sumR / sumW
	g = sumG / sumW
	b = sumB / sumW
	a = sumA / sumW
	if linearLight {
		r = encodeToDisplay(r)
		g = encodeToDisplay(g)
		b = encodeToDisplay(b)
	}
	return r, g, b, a
}

func quantize(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

// softwareProgram executes the convolution on the CPU.  The float-target
// variant renders into a float32 framebuffer and converts in a second blit
// pass; the baseline variant quantizes each pixel as it is produced.
type softwareProgram struct {
	floatTarget bool
}

func (p *softwareProgram) Draw(src *image.NRGBA, dstW, dstH int, linearLight bool) (*image.NRGBA, error) {
	if src == nil {
		return nil, apperrors.New(apperrors.CategoryKernel, "draw", apperrors.ErrEmptyInput)
	}
	srcW, srcH := src.Bounds().Dx(), src.Bounds().Dy()
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return nil, apperrors.New(apperrors.CategoryKernel, "draw", apperrors.ErrInvalidDimensions)
	}

	ratioX := float64(srcW) / float64(dstW)
	ratioY := float64(srcH) / float64(dstH)

	if p.floatTarget {
		fb := p.resamplePass(src, srcW, srcH, dstW, dstH, ratioX, ratioY, linearLight)
		return p.blitPass(fb, dstW, dstH), nil
	}

	// Baseline: no float target available; round into the surface directly.
	dst := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
	for y := 0; y < dstH; y++ {
		cy := (float64(y)+0.5)*ratioY - 0.5
		for x := 0; x < dstW; x++ {
			cx := (float64(x)+0.5)*ratioX - 0.5
			r, g, b, a := convolvePixel(src, srcW, srcH, cx, cy, linearLight)
			i := dst.PixOffset(x, y)
			dst.Pix[i+0] = quantize(r)
			dst.Pix[i+1] = quantize(g)
			dst.Pix[i+2] = quantize(b)
			dst.Pix[i+3] = quantize(a)
		}
	}
	return dst, nil
}

// resamplePass renders the convolution into a float framebuffer, avoiding
// intermediate rounding.
func (p *softwareProgram) resamplePass(src *image.NRGBA, srcW, srcH, dstW, dstH int, ratioX, ratioY float64, linearLight bool) []float32 {
	fb := make([]float32, dstW*dstH*4)
	for y := 0; y < dstH; y++ {
		cy := (float64(y)+0.5)*ratioY - 0.5
		for x := 0; x < dstW; x++ {
			cx := (float64(x)+0.5)*ratioX - 0.5
			r, g, b, a := convolvePixel(src, srcW, srcH, cx, cy, linearLight)
			i := (y*dstW + x) * 4
			fb[i+0] = float32(r)
			fb[i+1] = float32(g)
			fb[i+2] = float32(b)
			fb[i+3] = float32(a)
		}
	}
	return fb
}

// blitPass is the identity copy from the float target onto the presentable
// 8-bit surface; float targets cannot be presented directly.
func (p *softwareProgram) blitPass(fb []float32, dstW, dstH int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
	for i := 0; i < dstW*dstH; i++ {
		o := i * 4
		dst.Pix[o+0] = quantize(float64(fb[o+0]))
		dst.Pix[o+1] = quantize(float64(fb[o+1]))
		dst.Pix[o+2] = quantize(float64(fb[o+2]))
		dst.Pix[o+3] = quantize(float64(fb[o+3]))
	}
	return dst
}
