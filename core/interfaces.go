package core

import (
	"context"
	"image"
	"io"

	"github.com/mattew90/sharpscale/dom"
)

// Decoder converts raw bytes / a reader into an in-memory Resource.
// Implementations live in adapters/decoder/.
type Decoder interface {
	// Decode reads from r and returns a decoded Resource.
	Decode(ctx context.Context, r io.Reader) (*Resource, error)
	// CanDecode reports whether this decoder handles the given format hint.
	CanDecode(format Format) bool
}

// Encoder serialises a pixel buffer to bytes in a target format.
// Implementations live in adapters/encoder/.
type Encoder interface {
	Encode(ctx context.Context, img image.Image, opts EncodeOptions) ([]byte, error)
	CanEncode(format Format) bool
}

// EncodeOptions carries format-specific encoding parameters.
type EncodeOptions struct {
	Quality  int  // 1-100; 0 = use encoder default
	Lossless bool // PNG compression level selector
}

// Registry maps Format values to Decoder/Encoder implementations.
type Registry interface {
	DecoderFor(format Format) (Decoder, bool)
	EncoderFor(format Format) (Encoder, bool)
	RegisterDecoder(format Format, d Decoder)
	RegisterEncoder(format Format, e Encoder)
}

// Loader resolves a source URL to its Resource.  Implementations cache by URL
// for the process lifetime and return errors.ErrNotReady while the bytes for
// a fetch-disabled URL have not been supplied yet.
type Loader interface {
	Get(ctx context.Context, rawURL string) (*Resource, error)
}

// SafetyResolver decides whether an element's pixels may be read back, and
// performs the out-of-band refetch escape hatch.
type SafetyResolver interface {
	Resolve(el *dom.Element) SafetyDecision
	// Refetch fetches the element's source out of band, materializes it as a
	// same-origin-equivalent representation, and swaps the element's src so a
	// fresh load notification fires.  One attempt per distinct URL.
	Refetch(ctx context.Context, el *dom.Element) error
}

// Resampler renders a resource to the destination size.  It returns the
// resampled pixels and the name of the backend that produced them.
type Resampler interface {
	Resample(ctx context.Context, res *Resource, dstW, dstH int, scaleX, scaleY float64) (image.Image, string, error)
}

// FallbackRenderer applies the CSS nearest-neighbor rendering hint for exact
// integer magnification, saving the prior style for exact restore.
type FallbackRenderer interface {
	Apply(el *dom.Element, scaleX, scaleY float64) bool
	Restore(el *dom.Element)
	// Forget drops the saved-style entry once the element is detached.
	Forget(el *dom.Element)
}

// Hook observes task transitions.  OnTerminal is invoked exactly once per
// terminal transition.
type Hook interface {
	OnTerminal(ctx context.Context, ev Event)
}

// MetricsCollector receives observations from the controller and scheduler.
type MetricsCollector interface {
	RecordOutcome(status string)
	RecordBackend(backend string)
	RecordDuration(op string, d interface{ Seconds() float64 })
	RecordFetchBytes(n int64)
	RecordError(op string, category string)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}
