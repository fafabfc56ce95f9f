package core

import (
	"image"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatGIF     Format = "gif"
	FormatSVG     Format = "svg"
	FormatUnknown Format = "unknown"
)

// Vector reports whether the format has no fixed natural resolution.
func (f Format) Vector() bool { return f == FormatSVG }

// Metadata holds extracted image information.
type Metadata struct {
	Width    int
	Height   int
	Format   Format
	HasAlpha bool
	// SizeBytes is the encoded size of the resource.
	SizeBytes int64
}

// Resource is a loaded image resource: the encoded bytes alongside the
// decoded pixel buffer, keyed process-wide by source URL.
type Resource struct {
	// Encoded bytes as fetched or embedded.
	Data   []byte
	Format Format

	// Decoded pixel buffer.  Nil for vector sources.
	Image image.Image

	// Metadata extracted during decode.
	Meta Metadata
}

// Natural returns the resource's intrinsic pixel dimensions.
func (r *Resource) Natural() (w, h int) { return r.Meta.Width, r.Meta.Height }

// Status is the processing state of an image task.
type Status int

const (
	// StatusUnseen means the element has been discovered but not evaluated.
	StatusUnseen Status = iota
	// StatusWaitingForLoad suspends the task until its resource loads.
	StatusWaitingForLoad
	// StatusEvaluated means geometry analysis completed; transient.
	StatusEvaluated
	// StatusSkipped is terminal: vector source or no meaningful scaling.
	StatusSkipped
	// StatusFallbackApplied is terminal: the integer rendering hint was set.
	StatusFallbackApplied
	// StatusResampled is terminal: a resampled surface replaced the image.
	StatusResampled
	// StatusFailed is terminal: all techniques failed; the document is
	// visually identical to never having been processed.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUnseen:
		return "unseen"
	case StatusWaitingForLoad:
		return "waiting_for_load"
	case StatusEvaluated:
		return "evaluated"
	case StatusSkipped:
		return "skipped"
	case StatusFallbackApplied:
		return "fallback_applied"
	case StatusResampled:
		return "resampled"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the status stops reprocessing until a new load
// notification arrives for the element's source.
func (s Status) Terminal() bool {
	switch s {
	case StatusSkipped, StatusFallbackApplied, StatusResampled, StatusFailed:
		return true
	}
	return false
}

// ScaleInfo is the transient result of geometry analysis.
type ScaleInfo struct {
	ScaleX, ScaleY float64
	// NeedsResampling is true iff either axis deviates from 1.0 by more than
	// the relative tolerance.
	NeedsResampling bool
	// Destination surface size in pixels.
	TargetWidth, TargetHeight int
}

// SafetyDecision classifies whether an image's pixels may be read back.
type SafetyDecision int

const (
	// SafetySafe permits pixel readback: data/blob URI, same origin, or an
	// explicit cross-origin credentials opt-in on the element.
	SafetySafe SafetyDecision = iota
	// SafetyUnsafeRefetchable allows one out-of-band refetch attempt.
	SafetyUnsafeRefetchable
	// SafetyUnsafePermanent means refetching failed or will not be attempted.
	SafetyUnsafePermanent
)

func (d SafetyDecision) String() string {
	switch d {
	case SafetySafe:
		return "safe"
	case SafetyUnsafeRefetchable:
		return "unsafe_refetchable"
	case SafetyUnsafePermanent:
		return "unsafe_permanent"
	}
	return "unknown"
}

// Event is the structured diagnostic emitted once per terminal transition.
type Event struct {
	// Status is the terminal state reached.
	Status Status
	// Source identifies the image (its src URL, truncated for data URIs).
	Source string
	// Reason carries the skip/failure reason, empty on success.
	Reason string
	// Scale factors measured at evaluation, zero when never evaluated.
	ScaleX, ScaleY float64
	// Backend names the technique that produced the outcome: the resampling
	// backend on success, "hint" for the fallback, empty otherwise.
	Backend string
}
