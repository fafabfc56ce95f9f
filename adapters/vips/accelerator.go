// Package vips provides a libvips-powered resampling accelerator.  When
// registered, the kernel engine tries it before the software device tiers;
// anything libvips cannot handle falls back transparently.
package vips

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/mattew90/sharpscale/core"
	apperrors "github.com/mattew90/sharpscale/errors"
	"github.com/mattew90/sharpscale/kernel"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	MaxCacheSize int
	MaxWorkers   int
	ReportLeaks  bool
}

// Backend is a kernel.Accelerator backed by libvips.  Safe for concurrent use
// across goroutines.
type Backend struct {
	cfg     BackendConfig
	started bool
}

// NewBackend returns a Backend ready for registration.  libvips starts on
// Init, not construction, so a constructed-but-unregistered backend costs
// nothing.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	return &Backend{cfg: cfg}
}

// Register installs b as the process accelerator.
func Register(cfg BackendConfig) error {
	return kernel.RegisterAccelerator(NewBackend(cfg))
}

func (b *Backend) Name() string { return "vips" }

// Init starts libvips.  Called once by kernel.RegisterAccelerator.
func (b *Backend) Init() error {
	govips.Startup(&govips.Config{
		ConcurrencyLevel: b.cfg.MaxWorkers,
		MaxCacheSize:     b.cfg.MaxCacheSize,
		ReportLeaks:      b.cfg.ReportLeaks,
		CollectStats:     true,
	})
	b.started = true
	return nil
}

// Close releases all libvips resources.
func (b *Backend) Close() {
	if b.started {
		govips.Shutdown()
		b.started = false
	}
}

// Resample renders res to dstW×dstH with vips_resize() and the Lanczos3
// kernel.  Resources without encoded bytes, vector sources, and anything
// libvips rejects fall back to the software tiers.
func (b *Backend) Resample(ctx context.Context, res *core.Resource, dstW, dstH int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryKernel, "vips.resample", err)
	}
	if res == nil || len(res.Data) == 0 || res.Format.Vector() {
		return nil, kernel.ErrFallbackToSoftware
	}
	if dstW <= 0 || dstH <= 0 {
		return nil, apperrors.New(apperrors.CategoryKernel, "vips.resample", apperrors.ErrInvalidDimensions)
	}

	// libvips shrinks-on-load for JPEG, so the full bitmap is never
	// allocated when minifying.
	ref, err := govips.NewImageFromBuffer(res.Data)
	if err != nil {
		return nil, kernel.ErrFallbackToSoftware
	}
	defer ref.Close()

	hscale := float64(dstW) / float64(ref.Width())
	vscale := float64(dstH) / float64(ref.Height())
	if err := ref.ResizeWithVScale(hscale, vscale, govips.KernelLanczos3); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryKernel, "vips.resample", err)
	}

	// Round-trip through PNG to hand back a portable image.Image; the
	// surface encode would pay this cost anyway.
	buf, _, err := ref.ExportPng(govips.NewPngExportParams())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryKernel, "vips.resample.export", err)
	}
	out, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryKernel, "vips.resample.decode", err)
	}
	return out, nil
}

var _ kernel.Accelerator = (*Backend)(nil)
