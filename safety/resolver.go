// Package safety decides whether an image's pixel data may be read back by
// the resampling kernel, and runs the fetch-and-rehost escape hatch for
// cross-origin sources.
package safety

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/mattew90/sharpscale/adapters/storage"
	"github.com/mattew90/sharpscale/core"
	"github.com/mattew90/sharpscale/dom"
	apperrors "github.com/mattew90/sharpscale/errors"
	"github.com/mattew90/sharpscale/fetch"
	"github.com/mattew90/sharpscale/utils"
)

// refetchResult caches the outcome of one out-of-band refetch per URL, so the
// same remote asset referenced by many elements fetches at most once.
type refetchResult struct {
	hostedURL string
	failed    bool
}

// Resolver implements core.SafetyResolver.
type Resolver struct {
	loader *fetch.Loader
	rehost storage.Rehoster

	mu    sync.Mutex
	cache map[string]refetchResult // resolved source URL → result
}

// NewResolver creates a Resolver.  rehost defaults to inline data URIs.
func NewResolver(loader *fetch.Loader, rehost storage.Rehoster) *Resolver {
	if rehost == nil {
		rehost = storage.NewInline()
	}
	return &Resolver{
		loader: loader,
		rehost: rehost,
		cache:  make(map[string]refetchResult),
	}
}

// SetRehoster replaces the rehost target, e.g. with an S3-backed one.
func (r *Resolver) SetRehoster(rh storage.Rehoster) {
	if rh != nil {
		r.rehost = rh
	}
}

// Resolve classifies the element's current source.
func (r *Resolver) Resolve(el *dom.Element) core.SafetyDecision {
	src := el.Src()
	if src == "" {
		return core.SafetyUnsafePermanent
	}
	if strings.HasPrefix(src, "data:") || strings.HasPrefix(src, "blob:") {
		return core.SafetySafe
	}
	// An explicit crossorigin attribute means the load was already granted
	// anonymous or credentialed mode; readback is permitted.
	if _, ok := el.CrossOriginMode(); ok {
		return core.SafetySafe
	}

	base := el.Document().BaseURL()
	resolved, err := url.Parse(el.ResolvedSrc())
	if err != nil {
		return core.SafetyUnsafePermanent
	}
	if !resolved.IsAbs() {
		// Relative with no base: resolves against the document wherever it
		// is hosted, hence same-origin.
		return core.SafetySafe
	}
	if resolved.Scheme == "file" {
		return core.SafetySafe
	}
	if base != nil && sameOrigin(base, resolved) {
		return core.SafetySafe
	}

	r.mu.Lock()
	res, seen := r.cache[resolved.String()]
	r.mu.Unlock()
	if seen && res.failed {
		return core.SafetyUnsafePermanent
	}
	return core.SafetyUnsafeRefetchable
}

// Refetch fetches the element's source out of band, rehost the bytes as a
// same-origin-equivalent representation, and swaps the element's src.  The
// swap primes the loader, which fires the load notification that re-enters
// the element into evaluation.  One fetch per distinct URL, failures cached.
func (r *Resolver) Refetch(ctx context.Context, el *dom.Element) error {
	srcURL := el.ResolvedSrc()

	r.mu.Lock()
	cached, seen := r.cache[srcURL]
	r.mu.Unlock()
	if seen {
		if cached.failed {
			return apperrors.New(apperrors.CategorySafety, "refetch", apperrors.ErrOriginRestricted)
		}
		// Another element already rehosted this asset; reuse it.
		el.SetSrc(cached.hostedURL)
		return nil
	}

	hostedURL, err := r.fetchAndRehost(ctx, srcURL)
	r.mu.Lock()
	if err != nil {
		r.cache[srcURL] = refetchResult{failed: true}
	} else {
		r.cache[srcURL] = refetchResult{hostedURL: hostedURL}
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}

	el.SetSrc(hostedURL)
	return nil
}

func (r *Resolver) fetchAndRehost(ctx context.Context, srcURL string) (string, error) {
	data, err := r.loader.Fetch(ctx, srcURL)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", apperrors.New(apperrors.CategorySafety, "refetch", apperrors.ErrEmptyInput)
	}

	format := utils.DetectFormat(data)
	mime := utils.FormatMIME(format)
	name := objectName(data, format)

	hostedURL, err := r.rehost.Rehost(ctx, name, mime, data)
	if err != nil {
		return "", err
	}

	// Prime the resource store so the src swap behaves as a completed load.
	// A decode failure here means the replacement cannot be guaranteed; the
	// original stays visible and the URL is marked permanently unsafe.
	if _, err := r.loader.Prime(hostedURL, data); err != nil {
		return "", err
	}
	return hostedURL, nil
}

// objectName derives a stable rehost object name from the content hash.
func objectName(data []byte, format string) string {
	sum := sha256.Sum256(data)
	ext := format
	if ext == "unknown" {
		ext = "bin"
	}
	return fmt.Sprintf("%s.%s", hex.EncodeToString(sum[:8]), ext)
}

// sameOrigin compares scheme, host, and port with default-port folding.
func sameOrigin(a, b *url.URL) bool {
	if !strings.EqualFold(a.Scheme, b.Scheme) {
		return false
	}
	if !strings.EqualFold(a.Hostname(), b.Hostname()) {
		return false
	}
	return portOf(a) == portOf(b)
}

func portOf(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

var _ core.SafetyResolver = (*Resolver)(nil)
