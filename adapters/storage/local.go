package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	apperrors "github.com/mattew90/sharpscale/errors"
)

// Local rehosts fetched bytes under a directory served from the document's
// own origin, returning a prefix-relative URL.
type Local struct {
	rootDir     string
	urlPrefix   string
	permissions os.FileMode
}

// NewLocal creates a Local rehoster rooted at dir.  urlPrefix is prepended to
// rewritten src values; it defaults to dir.
func NewLocal(dir, urlPrefix string, perm os.FileMode) (*Local, error) {
	if perm == 0 {
		perm = 0o644
	}
	if urlPrefix == "" {
		urlPrefix = dir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local rehost: mkdir %s: %w", dir, err)
	}
	return &Local{rootDir: dir, urlPrefix: urlPrefix, permissions: perm}, nil
}

func (l *Local) Rehost(ctx context.Context, name, _ string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.Wrap(apperrors.CategoryStorage, "local.rehost", err)
	}

	dst := filepath.Join(l.rootDir, filepath.Clean(name))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", apperrors.Wrap(apperrors.CategoryStorage, "local.rehost.mkdir", err)
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, l.permissions)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CategoryStorage, "local.rehost.open", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(dst)
		return "", apperrors.Wrap(apperrors.CategoryStorage, "local.rehost.write", err)
	}
	return path.Join(l.urlPrefix, name), nil
}
