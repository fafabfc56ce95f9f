// Package kernel performs the high-quality Lanczos-3 resampling pass.  A
// tiered device negotiation tries a registered accelerator first, then a
// software device with a float-precision intermediate target, then a
// baseline 8-bit software device.
package kernel

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/mattew90/sharpscale/core"
)

// ErrFallbackToSoftware indicates the accelerator cannot handle this
// operation.  The caller transparently falls back to software rendering.
var ErrFallbackToSoftware = errors.New("kernel: falling back to software rendering")

// Accelerator is an optional hardware-backed resampling provider.
//
// When registered via RegisterAccelerator, the engine tries it first for every
// resample.  If the accelerator returns ErrFallbackToSoftware or any error,
// rendering transparently falls back to the software device tiers.
type Accelerator interface {
	// Name returns the accelerator name (e.g., "vips").
	Name() string

	// Init initializes backend resources.  Called once during registration.
	Init() error

	// Close releases backend resources.
	Close()

	// Resample renders res to the destination size with a Lanczos-3 kernel.
	// Returns ErrFallbackToSoftware when the resource cannot be accelerated.
	Resample(ctx context.Context, res *core.Resource, dstW, dstH int) (image.Image, error)
}

var (
	accelMu sync.RWMutex
	accel   Accelerator
)

// RegisterAccelerator registers an accelerator for optional hardware
// resampling.  Only one accelerator can be registered; subsequent calls
// replace the previous one.  Init() is called during registration and a
// failed Init leaves the previous accelerator in place.
func RegisterAccelerator(a Accelerator) error {
	if a == nil {
		return errors.New("kernel: accelerator must not be nil")
	}
	if err := a.Init(); err != nil {
		return err
	}
	accelMu.Lock()
	old := accel
	accel = a
	accelMu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// RegisteredAccelerator returns the current accelerator, or nil if none.
func RegisteredAccelerator() Accelerator {
	accelMu.RLock()
	a := accel
	accelMu.RUnlock()
	return a
}

// ClearAccelerator removes and closes any registered accelerator.
func ClearAccelerator() {
	accelMu.Lock()
	old := accel
	accel = nil
	accelMu.Unlock()
	if old != nil {
		old.Close()
	}
}

// DeviceOptions selects device capabilities during negotiation.
type DeviceOptions struct {
	// FloatTarget requests a float-precision intermediate render target.
	FloatTarget bool
}

// Device is an acquired rendering device.  A device compiles the convolution
// program once and releases its objects when done.
type Device interface {
	Name() string
	FloatTarget() bool
	Compile() (Program, error)
	Release()
}

// Program is a compiled convolution program bound to its device.
type Program interface {
	// Draw runs the resample pass (and, on float-target devices, the blit
	// pass) and returns the destination surface.
	Draw(src *image.NRGBA, dstW, dstH int, linearLight bool) (*image.NRGBA, error)
}

// DeviceProvider acquires a device with the requested capabilities, or fails
// with an error when no such device exists.  Providers are injectable so
// capability loss and program failures are simulable.
type DeviceProvider func(opts DeviceOptions) (Device, error)

// SoftwareProvider is the default provider: a pure-Go device that always
// satisfies both capability tiers.
func SoftwareProvider(opts DeviceOptions) (Device, error) {
	return &softwareDevice{floatTarget: opts.FloatTarget}, nil
}

type softwareDevice struct {
	floatTarget bool
}

func (d *softwareDevice) Name() string {
	if d.floatTarget {
		return "software-float"
	}
	return "software"
}

func (d *softwareDevice) FloatTarget() bool { return d.floatTarget }

func (d *softwareDevice) Compile() (Program, error) {
	return &softwareProgram{floatTarget: d.floatTarget}, nil
}

func (d *softwareDevice) Release() {}
