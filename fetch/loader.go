// Package fetch loads and caches image resources by source URL.  It is the
// network collaborator: the loader performs plain byte fetches while origin
// policy stays with the safety resolver.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattew90/sharpscale/core"
	apperrors "github.com/mattew90/sharpscale/errors"
	"github.com/mattew90/sharpscale/utils"
)

// Options configures a Loader.
type Options struct {
	// Client used for http(s) fetches.  A default client with Timeout is
	// created when nil.
	Client *http.Client
	// Timeout bounds each fetch; default 15s.
	Timeout time.Duration
	// MaxBytes caps a single resource; 0 = no limit.
	MaxBytes int64
	// ChunkSize is the streaming read granularity; default 32 KiB.
	ChunkSize int
	// UserAgent sent on http(s) fetches.
	UserAgent string
	// AllowNetwork permits http(s) fetches.  When false, a URL that has not
	// been primed resolves to ErrNotReady until bytes are supplied, which is
	// how tests and offline callers model pending loads.
	AllowNetwork bool
}

type entry struct {
	res *core.Resource
}

// Loader resolves source URLs to decoded resources.  Results are cached by
// URL for the process lifetime; priming a URL afterwards fires the load
// notification that resumes suspended tasks.
type Loader struct {
	opts    Options
	reg     core.Registry
	metrics core.MetricsCollector

	mu     sync.Mutex
	cache  map[string]entry
	onLoad []func(rawURL string)
}

// NewLoader creates a Loader backed by the given codec registry.
func NewLoader(reg core.Registry, opts Options) *Loader {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 32 * 1024
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	return &Loader{
		opts:  opts,
		reg:   reg,
		cache: make(map[string]entry),
	}
}

// SetMetrics attaches a metrics collector for fetch throughput.
func (l *Loader) SetMetrics(m core.MetricsCollector) { l.metrics = m }

// OnLoad registers a callback fired whenever a resource becomes available
// for a URL (a load notification).  Callbacks run on the priming goroutine.
func (l *Loader) OnLoad(fn func(rawURL string)) {
	l.mu.Lock()
	l.onLoad = append(l.onLoad, fn)
	l.mu.Unlock()
}

// Prime decodes data and stores it as the resource for rawURL, then fires
// load notifications.  This is the external load event.
func (l *Loader) Prime(rawURL string, data []byte) (*core.Resource, error) {
	res, err := l.decode(context.Background(), data)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.cache[rawURL] = entry{res: res}
	callbacks := make([]func(string), len(l.onLoad))
	copy(callbacks, l.onLoad)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(rawURL)
	}
	return res, nil
}

// Lookup returns the cached resource for rawURL without fetching.
func (l *Loader) Lookup(rawURL string) (*core.Resource, bool) {
	l.mu.Lock()
	e, ok := l.cache[rawURL]
	l.mu.Unlock()
	if !ok {
		return nil, false
	}
	return e.res, true
}

// Get resolves rawURL to its resource, consulting the cache first.  Data URIs
// decode inline; file URLs read from disk; http(s) URLs fetch over the
// network when permitted.  A fetchable-later URL reports ErrNotReady.
func (l *Loader) Get(ctx context.Context, rawURL string) (*core.Resource, error) {
	if rawURL == "" {
		return nil, apperrors.New(apperrors.CategoryInput, "loader.get", apperrors.ErrEmptyInput)
	}
	if res, ok := l.Lookup(rawURL); ok {
		return res, nil
	}

	var (
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(rawURL, "data:"):
		_, data, err = utils.DecodeDataURI(rawURL)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryDecode, "loader.datauri", err)
		}
	case strings.HasPrefix(rawURL, "file:"):
		data, err = l.readFile(rawURL)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryFetch, "loader.file", err)
		}
	case strings.HasPrefix(rawURL, "http:"), strings.HasPrefix(rawURL, "https:"):
		if !l.opts.AllowNetwork {
			return nil, apperrors.Transient("loader.get", apperrors.ErrNotReady)
		}
		data, err = l.Fetch(ctx, rawURL)
		if err != nil {
			return nil, err
		}
	default:
		// Relative or unknown scheme with no primed bytes: not loaded yet.
		return nil, apperrors.Transient("loader.get", apperrors.ErrNotReady)
	}

	res, err := l.decode(ctx, data)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.cache[rawURL] = entry{res: res}
	l.mu.Unlock()
	return res, nil
}

// Fetch performs a plain byte fetch of rawURL with the configured limits.
// The safety resolver uses it for the out-of-band refetch.
func (l *Loader) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if !l.opts.AllowNetwork {
		return nil, apperrors.New(apperrors.CategoryFetch, "loader.fetch",
			fmt.Errorf("network fetches disabled"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryFetch, "loader.fetch", err)
	}
	if l.opts.UserAgent != "" {
		req.Header.Set("User-Agent", l.opts.UserAgent)
	}
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	resp, err := l.opts.Client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryFetch, "loader.fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.New(apperrors.CategoryFetch, "loader.fetch",
			fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL))
	}

	body := resp.Body
	var limited = &utils.LimitedReader{R: body, Max: l.opts.MaxBytes}
	buf, err := utils.DrainReader(ctx, limited, l.opts.ChunkSize)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryFetch, "loader.fetch.drain", err)
	}
	data := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)

	if l.metrics != nil {
		l.metrics.RecordFetchBytes(int64(len(data)))
	}
	return data, nil
}

func (l *Loader) readFile(rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(u.Path)
}

// decode sniffs the format and decodes data through the registry.  Vector
// bytes produce a pixel-less resource so callers can classify and skip them.
func (l *Loader) decode(ctx context.Context, data []byte) (*core.Resource, error) {
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, "loader.decode", apperrors.ErrEmptyInput)
	}
	format := core.Format(utils.DetectFormat(data))
	if format.Vector() {
		return &core.Resource{
			Data:   data,
			Format: format,
			Meta:   core.Metadata{Format: format, SizeBytes: int64(len(data))},
		}, nil
	}

	dec, ok := l.reg.DecoderFor(format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryDecode, "loader.decode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}
	res, err := dec.Decode(ctx, utils.BytesReader(data))
	if err != nil {
		return nil, err
	}
	res.Data = data
	res.Meta.SizeBytes = int64(len(data))
	return res, nil
}
