package config

import (
	"errors"
	"time"
)

// Scope selects which images the controller evaluates.
type Scope string

const (
	// ScopeAll evaluates every raster image in the document.
	ScopeAll Scope = "all"
	// ScopeFlagged evaluates only images carrying the flag attribute.
	ScopeFlagged Scope = "flagged"
)

// RehostBackend selects where refetched cross-origin bytes are materialized.
type RehostBackend string

const (
	// RehostInline embeds the bytes as a data URI (default).
	RehostInline RehostBackend = "inline"
	// RehostLocal writes the bytes under a local directory.
	RehostLocal RehostBackend = "local"
	// RehostS3 uploads the bytes to an S3-compatible bucket.
	RehostS3 RehostBackend = "s3"
)

// Config is the top-level configuration struct.  Start from Default() and
// override what you need: Validate rejects zero values for required fields,
// so a bare Config{} does not pass.
type Config struct {
	// Master switch.  When false the controller never evaluates an element.
	Enabled bool

	// Scope and the attribute that flags an image when Scope == ScopeFlagged.
	Scope         Scope
	FlagAttribute string // default "data-resample"

	// Eligibility.
	ScaleTolerance float64 // relative deviation from 1.0 treated as no scaling; default 1e-3
	MinScale       float64 // skip upscales below this ratio even if eligible; 0 = no threshold

	// Observation scheduling.
	ThrottleInterval time.Duration // minimum spacing between document scans; default 250ms
	QueueSize        int           // max queued observations before coalescing; default 256

	// Fetch limits for resource loading and the refetch escape hatch.
	FetchTimeout  time.Duration // default 15s
	MaxImageBytes int64         // 0 = no limit
	ChunkSize     int           // streaming chunk size in bytes; default 32 KiB
	UserAgent     string

	// Kernel options.
	UseAccelerator bool // try a registered accelerator before the software device
	PreferFloat    bool // request a float-precision intermediate target; default true

	// Refetch materialization.
	Rehost RehostBackend
	Local  LocalConfig
	S3     S3Config

	// Logging.
	LogLevel string // "debug", "info", "warn", "error"
}

// LocalConfig configures the local-directory rehost target.
type LocalConfig struct {
	RootDir     string
	URLPrefix   string // prefix for rewritten src values; default RootDir
	Permissions uint32 // default 0644
}

// S3Config configures the S3-compatible rehost target.  Credentials, region,
// and endpoint belong to the injected client, not the configuration.
type S3Config struct {
	Bucket    string
	URLPrefix string // public same-origin URL prefix for uploaded objects
}

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		Enabled:          true,
		Scope:            ScopeAll,
		FlagAttribute:    "data-resample",
		ScaleTolerance:   1e-3,
		MinScale:         0,
		ThrottleInterval: 250 * time.Millisecond,
		QueueSize:        256,
		FetchTimeout:     15 * time.Second,
		ChunkSize:        32 * 1024,
		UseAccelerator:   true,
		PreferFloat:      true,
		Rehost:           RehostInline,
		LogLevel:         "info",
	}
}

// Validate returns an error if the configuration is inconsistent.
func (c Config) Validate() error {
	if c.ScaleTolerance < 0 || c.ScaleTolerance >= 0.5 {
		return errors.New("config: ScaleTolerance must be in [0, 0.5)")
	}
	if c.MinScale < 0 {
		return errors.New("config: MinScale must not be negative")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: ChunkSize must be positive")
	}
	if c.Scope != ScopeAll && c.Scope != ScopeFlagged {
		return errors.New("config: Scope must be all or flagged")
	}
	if c.Scope == ScopeFlagged && c.FlagAttribute == "" {
		return errors.New("config: FlagAttribute required when Scope is flagged")
	}
	switch c.Rehost {
	case RehostInline:
	case RehostLocal:
		if c.Local.RootDir == "" {
			return errors.New("config: Local.RootDir required for local rehost")
		}
	case RehostS3:
		if c.S3.Bucket == "" {
			return errors.New("config: S3.Bucket required for s3 rehost")
		}
	default:
		return errors.New("config: unknown Rehost backend")
	}
	return nil
}
