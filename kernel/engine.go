package kernel

import (
	"context"
	"errors"
	"image"

	"github.com/mattew90/sharpscale/core"
	apperrors "github.com/mattew90/sharpscale/errors"
)

// Options configures an Engine.
type Options struct {
	// Provider acquires rendering devices.  Defaults to SoftwareProvider.
	Provider DeviceProvider
	// PreferFloat requests the float-precision target tier first.
	PreferFloat bool
	// UseAccelerator tries the registered accelerator before any device.
	UseAccelerator bool
	// Logger receives negotiation diagnostics; may be nil.
	Logger core.Logger
}

// Engine implements core.Resampler: accelerator first, then tiered software
// device acquisition, then the two-pass or direct convolution draw.
type Engine struct {
	provider       DeviceProvider
	preferFloat    bool
	useAccelerator bool
	logger         core.Logger
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	if opts.Provider == nil {
		opts.Provider = SoftwareProvider
	}
	return &Engine{
		provider:       opts.Provider,
		preferFloat:    opts.PreferFloat,
		useAccelerator: opts.UseAccelerator,
		logger:         opts.Logger,
	}
}

// SetLogger attaches a structured logger for negotiation diagnostics.
func (e *Engine) SetLogger(l core.Logger) { e.logger = l }

// Resample renders res to dstW×dstH.  It returns the resampled surface and
// the name of the backend that produced it.  Every failure is reported to the
// caller for the next fallback step; nothing here mutates the document.
func (e *Engine) Resample(ctx context.Context, res *core.Resource, dstW, dstH int, scaleX, scaleY float64) (image.Image, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", apperrors.Wrap(apperrors.CategoryKernel, "resample", err)
	}
	if res == nil || res.Image == nil {
		return nil, "", apperrors.New(apperrors.CategoryKernel, "resample", apperrors.ErrEmptyInput)
	}
	if dstW <= 0 || dstH <= 0 {
		return nil, "", apperrors.New(apperrors.CategoryKernel, "resample", apperrors.ErrInvalidDimensions)
	}

	if e.useAccelerator {
		if a := RegisteredAccelerator(); a != nil {
			out, err := a.Resample(ctx, res, dstW, dstH)
			if err == nil {
				return out, a.Name(), nil
			}
			if !errors.Is(err, ErrFallbackToSoftware) && e.logger != nil {
				e.logger.Warn("kernel.accelerator.failed", "accelerator", a.Name(), "error", err.Error())
			}
		}
	}

	dev, err := e.acquire()
	if err != nil {
		return nil, "", apperrors.New(apperrors.CategoryKernel, "resample", apperrors.ErrNoDevice)
	}
	defer dev.Release()

	prog, err := dev.Compile()
	if err != nil {
		return nil, "", apperrors.New(apperrors.CategoryKernel, "resample",
			errors.Join(apperrors.ErrProgramBuild, err))
	}

	// Minification averages in linear light; magnification convolves in
	// display-encoded space where the sinc kernel rings less visibly.
	linearLight := scaleX < 1 && scaleY < 1

	out, err := prog.Draw(toNRGBA(res.Image), dstW, dstH, linearLight)
	if err != nil {
		return nil, "", apperrors.New(apperrors.CategoryKernel, "resample",
			errors.Join(apperrors.ErrDrawFailure, err))
	}
	return out, dev.Name(), nil
}

// acquire negotiates device capability tiers: float-precision target first
// when preferred, then the baseline device.
func (e *Engine) acquire() (Device, error) {
	if e.preferFloat {
		if dev, err := e.provider(DeviceOptions{FloatTarget: true}); err == nil {
			return dev, nil
		} else if e.logger != nil {
			e.logger.Debug("kernel.float_target.unavailable", "error", err.Error())
		}
	}
	return e.provider(DeviceOptions{FloatTarget: false})
}

var _ core.Resampler = (*Engine)(nil)
