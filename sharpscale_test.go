package sharpscale_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sharpscale "github.com/mattew90/sharpscale"
	"github.com/mattew90/sharpscale/config"
	"github.com/mattew90/sharpscale/core"
	"github.com/mattew90/sharpscale/dom"
	"github.com/mattew90/sharpscale/hooks"
)

func newTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newEngine(t *testing.T, cfg config.Config) *sharpscale.Engine {
	t.Helper()
	engine, err := sharpscale.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return engine
}

func TestProcessHTMLResamplesDownscaledImage(t *testing.T) {
	engine := newEngine(t, sharpscale.DefaultConfig())
	if _, err := engine.Loader().Prime("https://example.com/photo.png", newTestPNG(t, 320, 240)); err != nil {
		t.Fatal(err)
	}

	page := `<html><body><img src="/photo.png" width="160" height="120"></body></html>`
	out, err := engine.ProcessHTML(context.Background(), strings.NewReader(page), "https://example.com/")
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(out, "data-resampled-surface") {
		t.Fatalf("no surface in output:\n%s", out)
	}
	if !strings.Contains(out, "data:image/png;base64,") {
		t.Fatal("surface src not inlined")
	}
	if !strings.Contains(out, "display: none") {
		t.Fatal("original not hidden")
	}

	processed, failed := engine.Stats()
	if processed != 1 || failed != 0 {
		t.Fatalf("stats = %d processed, %d failed", processed, failed)
	}
}

func TestProcessHTMLLeavesUnscaledPageUntouched(t *testing.T) {
	engine := newEngine(t, sharpscale.DefaultConfig())
	engine.Loader().Prime("https://example.com/photo.png", newTestPNG(t, 160, 120))

	page := `<html><head></head><body><img src="/photo.png" width="160" height="120"/></body></html>`
	out, err := engine.ProcessHTML(context.Background(), strings.NewReader(page), "https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "data-resampled-surface") || strings.Contains(out, "display: none") {
		t.Fatalf("unscaled page was modified:\n%s", out)
	}
}

func TestProcessHTMLMixedPage(t *testing.T) {
	engine := newEngine(t, sharpscale.DefaultConfig())
	engine.Loader().Prime("https://example.com/big.png", newTestPNG(t, 320, 240))
	engine.Loader().Prime("https://example.com/exact.png", newTestPNG(t, 64, 64))

	metrics := hooks.NewInMemoryMetrics()
	engine.SetMetrics(metrics)

	page := `<html><body>
		<img src="/big.png" width="160" height="120">
		<img src="/exact.png" width="64" height="64">
		<img src="/logo.svg" width="48" height="48">
	</body></html>`
	out, err := engine.ProcessHTML(context.Background(), strings.NewReader(page), "https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(out, "data-resampled-surface"); n != 1 {
		t.Fatalf("%d surfaces, want 1:\n%s", n, out)
	}

	snap := metrics.Snapshot()
	if snap.Outcomes["resampled"] != 1 {
		t.Errorf("outcomes = %v", snap.Outcomes)
	}
	if snap.Outcomes["skipped"] != 2 {
		t.Errorf("outcomes = %v; exact-size and vector images should skip", snap.Outcomes)
	}
}

func TestProcessHTMLEmitsTerminalEvents(t *testing.T) {
	engine := newEngine(t, sharpscale.DefaultConfig())
	engine.Loader().Prime("https://example.com/photo.png", newTestPNG(t, 320, 240))

	var events []core.Event
	engine.AddHook(hookFunc(func(ev core.Event) { events = append(events, ev) }))

	page := `<html><body><img src="/photo.png" width="160" height="120"></body></html>`
	if _, err := engine.ProcessHTML(context.Background(), strings.NewReader(page), "https://example.com/"); err != nil {
		t.Fatal(err)
	}

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Status != core.StatusResampled || events[0].Backend == "" {
		t.Fatalf("event = %+v", events[0])
	}
}

func TestProcessDocumentReevaluatesAfterSourceChange(t *testing.T) {
	engine := newEngine(t, sharpscale.DefaultConfig())
	engine.Loader().Prime("https://example.com/first.png", newTestPNG(t, 320, 240))
	engine.Loader().Prime("https://example.com/second.png", newTestPNG(t, 64, 64))

	page := `<html><body><img src="/first.png" width="160" height="120"></body></html>`
	doc, err := dom.Parse(strings.NewReader(page), "https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.ProcessDocument(context.Background(), doc); err != nil {
		t.Fatal(err)
	}

	el := doc.Images()[0]
	firstSurface := el.NextSurface()
	if firstSurface == nil {
		t.Fatal("no surface after first pass")
	}

	el.SetSrc("/second.png")
	if err := engine.ProcessDocument(context.Background(), doc); err != nil {
		t.Fatal(err)
	}

	surface := el.NextSurface()
	if surface == nil {
		t.Fatal("no surface after source change")
	}
	if surface.Src() == firstSurface.Src() {
		t.Fatal("surface still renders the old source")
	}
	surfaces := 0
	for _, img := range doc.Images() {
		if img.IsSurface() {
			surfaces++
		}
	}
	if surfaces != 1 {
		t.Fatalf("%d surfaces, want 1", surfaces)
	}
	if processed, _ := engine.Stats(); processed != 2 {
		t.Fatalf("processed = %d, want 2 evaluations", processed)
	}
}

type captureS3 struct {
	keys []string
}

func (c *captureS3) PutObject(_ context.Context, _, key string, body io.Reader, _ string) error {
	io.Copy(io.Discard, body)
	c.keys = append(c.keys, key)
	return nil
}

func TestS3RehostConfigRequiresClient(t *testing.T) {
	cfg := sharpscale.DefaultConfig()
	cfg.Rehost = config.RehostS3
	cfg.S3.Bucket = "cdn-images"
	if _, err := sharpscale.New(cfg); err == nil {
		t.Fatal("New accepted s3 rehost without a client")
	}

	if _, err := sharpscale.NewWithS3Client(cfg, nil); err == nil {
		t.Fatal("nil client accepted")
	}

	cfg.S3.Bucket = ""
	if _, err := sharpscale.NewWithS3Client(cfg, &captureS3{}); err == nil {
		t.Fatal("empty bucket accepted")
	}

	cfg = sharpscale.DefaultConfig()
	if _, err := sharpscale.NewWithS3Client(cfg, &captureS3{}); err == nil {
		t.Fatal("NewWithS3Client accepted a non-s3 rehost config")
	}
}

func TestS3RehostRefetchFlow(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(newTestPNG(t, 320, 240))
	}))
	defer remote.Close()

	cfg := sharpscale.DefaultConfig()
	cfg.Rehost = config.RehostS3
	cfg.S3.Bucket = "cdn-images"
	cfg.S3.URLPrefix = "https://example.com/cdn"

	client := &captureS3{}
	engine, err := sharpscale.NewWithS3Client(cfg, client)
	if err != nil {
		t.Fatal(err)
	}

	// The cross-origin load itself succeeded in the page; only readback is
	// restricted, so the engine refetches out of band and rehosts.
	engine.Loader().Prime(remote.URL+"/pic.png", newTestPNG(t, 320, 240))

	page := `<html><body><img src="` + remote.URL + `/pic.png" width="160" height="120"></body></html>`
	out, err := engine.ProcessHTML(context.Background(), strings.NewReader(page), "https://example.com/")
	if err != nil {
		t.Fatal(err)
	}

	if len(client.keys) != 1 {
		t.Fatalf("%d uploads, want 1", len(client.keys))
	}
	if !strings.Contains(out, "https://example.com/cdn/"+client.keys[0]) {
		t.Fatalf("src not swapped to the rehosted object:\n%s", out)
	}
	if !strings.Contains(out, "data-resampled-surface") {
		t.Fatalf("rehosted image not resampled:\n%s", out)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := sharpscale.DefaultConfig()
	cfg.ScaleTolerance = 0.9
	if _, err := sharpscale.New(cfg); err == nil {
		t.Fatal("invalid tolerance accepted")
	}

	cfg = sharpscale.DefaultConfig()
	cfg.Rehost = config.RehostLocal
	if _, err := sharpscale.New(cfg); err == nil {
		t.Fatal("local rehost without root dir accepted")
	}
}

type hookFunc func(core.Event)

func (f hookFunc) OnTerminal(_ context.Context, ev core.Event) { f(ev) }
