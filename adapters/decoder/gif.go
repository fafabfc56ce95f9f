package decoder

import (
	"context"
	"image/gif"
	"io"

	"github.com/mattew90/sharpscale/core"
	apperrors "github.com/mattew90/sharpscale/errors"
)

// GIF decodes GIF images using the standard library.  Animated GIFs yield
// their first frame; animation is not preserved through resampling, so the
// controller only consults the natural size for such sources.
type GIF struct{}

func NewGIF() *GIF { return &GIF{} }

func (g *GIF) CanDecode(format core.Format) bool {
	return format == core.FormatGIF
}

func (g *GIF) Decode(ctx context.Context, r io.Reader) (*core.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "gif.decode", err)
	}

	img, err := gif.Decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "gif.decode", err)
	}

	bounds := img.Bounds()
	return &core.Resource{
		Image:  img,
		Format: core.FormatGIF,
		Meta: core.Metadata{
			Width:    bounds.Dx(),
			Height:   bounds.Dy(),
			Format:   core.FormatGIF,
			HasAlpha: hasAlpha(img),
		},
	}, nil
}
