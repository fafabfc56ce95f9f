package decoder

import (
	"context"
	"io"

	"golang.org/x/image/webp"

	"github.com/mattew90/sharpscale/core"
	apperrors "github.com/mattew90/sharpscale/errors"
)

// WebP decodes WebP images using golang.org/x/image/webp.
// NOTE: golang.org/x/image/webp only supports lossy WebP decoding.
// Lossless or animated WebP goes through the libvips backend when registered.
type WebP struct{}

func NewWebP() *WebP { return &WebP{} }

func (w *WebP) CanDecode(format core.Format) bool {
	return format == core.FormatWebP
}

func (w *WebP) Decode(ctx context.Context, r io.Reader) (*core.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "webp.decode", err)
	}

	img, err := webp.Decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "webp.decode", err)
	}

	bounds := img.Bounds()
	return &core.Resource{
		Image:  img,
		Format: core.FormatWebP,
		Meta: core.Metadata{
			Width:    bounds.Dx(),
			Height:   bounds.Dy(),
			Format:   core.FormatWebP,
			HasAlpha: hasAlpha(img),
		},
	}, nil
}
