package utils

import (
	"bytes"
	"context"
	"io"
	"sync"

	apperrors "github.com/mattew90/sharpscale/errors"
)

// Fetched images are short-lived: bytes are decoded once and the buffer is
// returned.  Pooling keeps burst scans from churning the allocator.
var fetchBufPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

// AcquireBuffer returns a reset buffer from the pool.
func AcquireBuffer() *bytes.Buffer {
	b := fetchBufPool.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

// ReleaseBuffer returns b to the pool.  Callers must not use b after this call.
func ReleaseBuffer(b *bytes.Buffer) {
	// Oversized buffers (a handful of huge images) are dropped rather than
	// pinned in the pool.
	if b == nil || b.Cap() > 8<<20 {
		return
	}
	fetchBufPool.Put(b)
}

// DrainReader reads r to EOF into a pooled buffer, checking ctx between
// chunks so a cancelled fetch stops mid-stream.  The caller owns the result
// and hands it back with ReleaseBuffer.
func DrainReader(ctx context.Context, r io.Reader, chunkSize int) (*bytes.Buffer, error) {
	if chunkSize <= 0 {
		chunkSize = 32 << 10
	}
	buf := AcquireBuffer()
	for {
		if err := ctx.Err(); err != nil {
			ReleaseBuffer(buf)
			return nil, err
		}
		_, err := io.CopyN(buf, r, int64(chunkSize))
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			ReleaseBuffer(buf)
			return nil, err
		}
	}
}

// LimitedReader caps the total bytes read from R at Max (0 means unlimited).
// Exceeding the cap yields ErrResourceTooLarge, distinguishing an oversized
// image from a truncated stream.
type LimitedReader struct {
	R   io.Reader
	Max int64

	read int64
}

func (l *LimitedReader) Read(p []byte) (int, error) {
	if l.Max <= 0 {
		return l.R.Read(p)
	}
	// Permit one byte past the cap so a stream of exactly Max bytes can
	// still deliver its EOF.
	remain := l.Max + 1 - l.read
	if remain <= 0 {
		return 0, apperrors.ErrResourceTooLarge
	}
	if int64(len(p)) > remain {
		p = p[:remain]
	}
	n, err := l.R.Read(p)
	l.read += int64(n)
	if l.read > l.Max {
		over := l.read - l.Max
		return n - int(over), apperrors.ErrResourceTooLarge
	}
	return n, err
}
