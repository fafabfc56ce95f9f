package errors

import (
	"errors"
	"fmt"
)

// Category classifies error types for targeted handling and monitoring.
type Category string

const (
	CategoryGeometry   Category = "geometry"
	CategorySafety     Category = "safety"
	CategoryFetch      Category = "fetch"
	CategoryKernel     Category = "kernel"
	CategoryFallback   Category = "fallback"
	CategoryController Category = "controller"
	CategoryDecode     Category = "decode"
	CategoryEncode     Category = "encode"
	CategoryStorage    Category = "storage"
	CategoryConfig     Category = "config"
	CategoryInput      Category = "input"
	CategoryTransient  Category = "transient"
)

// TaskError is the structured error type used throughout the module.
type TaskError struct {
	Category  Category
	Op        string // operation name
	Err       error
	Retryable bool
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// New creates a non-retryable TaskError.
func New(category Category, op string, err error) *TaskError {
	return &TaskError{Category: category, Op: op, Err: err}
}

// Transient creates a retryable TaskError.
func Transient(op string, err error) *TaskError {
	return &TaskError{Category: CategoryTransient, Op: op, Err: err, Retryable: true}
}

// Wrap wraps an existing error with context.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(category, op, err)
}

// IsRetryable reports whether err represents a transient failure.
func IsRetryable(err error) bool {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Category == cat
	}
	return false
}

// Sentinel errors for the failure taxonomy.
var (
	// ErrNotReady means the image's resource has not loaded yet; the task
	// suspends and is retried on the next load notification.
	ErrNotReady = errors.New("image resource not loaded")

	// ErrIneligible marks the normal skip cases: vector source, scale within
	// tolerance of 1.0, or responsive-source mismatch.
	ErrIneligible = errors.New("image not eligible for resampling")

	// ErrOriginRestricted means pixel readback is not permitted for the
	// element's current source.
	ErrOriginRestricted = errors.New("pixel readback restricted by origin")

	// ErrNoDevice means no rendering device could be acquired at any tier.
	ErrNoDevice = errors.New("no rendering device available")

	// ErrProgramBuild means the convolution program could not be built on the
	// acquired device.
	ErrProgramBuild = errors.New("kernel program build failed")

	// ErrDrawFailure means a draw pass failed after the program was built.
	ErrDrawFailure = errors.New("kernel draw failed")

	// ErrFallbackIneligible means the integer rendering hint cannot apply
	// (non-integer, non-uniform, or downsampling scale).
	ErrFallbackIneligible = errors.New("integer rendering hint not applicable")

	// ErrQueueFull means the observation queue rejected a request; callers
	// retry on the next scan trigger.
	ErrQueueFull = errors.New("observation queue full")

	ErrEmptyInput        = errors.New("empty input")
	ErrInvalidDimensions = errors.New("invalid dimensions")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrResourceTooLarge  = errors.New("resource exceeds size limit")
)
