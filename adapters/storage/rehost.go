// Package storage provides rehost targets: places where refetched
// cross-origin bytes are materialized as a same-origin-equivalent
// representation the kernel is permitted to read back from.
package storage

import (
	"context"

	"github.com/mattew90/sharpscale/utils"
)

// Rehoster materializes raw image bytes under a stable name and returns the
// URL to swap into the element's src attribute.
type Rehoster interface {
	Rehost(ctx context.Context, name, mime string, data []byte) (string, error)
}

// Inline embeds the bytes directly as a base64 data URI.  It is the default
// target: no I/O, and a data URI is same-origin by definition.
type Inline struct{}

// NewInline returns the inline rehoster.
func NewInline() *Inline { return &Inline{} }

func (Inline) Rehost(_ context.Context, _ string, mime string, data []byte) (string, error) {
	return utils.EncodeDataURI(mime, data), nil
}
