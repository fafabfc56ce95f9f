package fetch_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mattew90/sharpscale/adapters/decoder"
	"github.com/mattew90/sharpscale/core"
	apperrors "github.com/mattew90/sharpscale/errors"
	"github.com/mattew90/sharpscale/fetch"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{G: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newLoader(t *testing.T, opts fetch.Options) *fetch.Loader {
	t.Helper()
	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG())
	return fetch.NewLoader(reg, opts)
}

func TestGetDataURI(t *testing.T) {
	raw := testPNG(t, 3, 2)
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)

	l := newLoader(t, fetch.Options{})
	res, err := l.Get(context.Background(), uri)
	if err != nil {
		t.Fatal(err)
	}
	if w, h := res.Natural(); w != 3 || h != 2 {
		t.Fatalf("natural = %dx%d, want 3x2", w, h)
	}
	if res.Format != core.FormatPNG {
		t.Fatalf("format = %v", res.Format)
	}
}

func TestGetUnprimedReportsNotReady(t *testing.T) {
	l := newLoader(t, fetch.Options{AllowNetwork: false})

	for _, url := range []string{"/relative.png", "https://example.com/a.png"} {
		_, err := l.Get(context.Background(), url)
		if !errors.Is(err, apperrors.ErrNotReady) {
			t.Errorf("Get(%q) err = %v; want ErrNotReady", url, err)
		}
		if !apperrors.IsRetryable(err) {
			t.Errorf("Get(%q) must be retryable", url)
		}
	}
}

func TestPrimeFiresLoadNotifications(t *testing.T) {
	l := newLoader(t, fetch.Options{})

	var notified []string
	l.OnLoad(func(url string) { notified = append(notified, url) })

	raw := testPNG(t, 4, 4)
	if _, err := l.Prime("/hero.png", raw); err != nil {
		t.Fatal(err)
	}
	if len(notified) != 1 || notified[0] != "/hero.png" {
		t.Fatalf("notified = %v", notified)
	}

	// Primed resources resolve without network.
	res, err := l.Get(context.Background(), "/hero.png")
	if err != nil {
		t.Fatal(err)
	}
	if w, _ := res.Natural(); w != 4 {
		t.Fatalf("natural width = %d", w)
	}
}

func TestGetHTTPCachesByURL(t *testing.T) {
	raw := testPNG(t, 6, 6)
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.Write(raw)
	}))
	defer srv.Close()

	l := newLoader(t, fetch.Options{AllowNetwork: true})
	for i := 0; i < 3; i++ {
		res, err := l.Get(context.Background(), srv.URL+"/a.png")
		if err != nil {
			t.Fatal(err)
		}
		if w, h := res.Natural(); w != 6 || h != 6 {
			t.Fatalf("natural = %dx%d", w, h)
		}
	}
	if hits != 1 {
		t.Fatalf("server hit %d times, want 1", hits)
	}
}

func TestFetchRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	l := newLoader(t, fetch.Options{AllowNetwork: true})
	if _, err := l.Fetch(context.Background(), srv.URL+"/missing.png"); err == nil {
		t.Fatal("404 accepted")
	}
}

func TestGetSVGProducesPixellessResource(t *testing.T) {
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"></svg>`)
	l := newLoader(t, fetch.Options{})
	res, err := l.Prime("/icon.svg", svg)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Format.Vector() {
		t.Fatalf("format = %v, want vector", res.Format)
	}
	if res.Image != nil {
		t.Fatal("vector resource must have no pixel buffer")
	}
}

func TestGetEmptyURL(t *testing.T) {
	l := newLoader(t, fetch.Options{})
	if _, err := l.Get(context.Background(), ""); err == nil {
		t.Fatal("empty URL accepted")
	}
}
