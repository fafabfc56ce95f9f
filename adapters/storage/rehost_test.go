package storage_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattew90/sharpscale/adapters/storage"
)

func TestInlineRehost(t *testing.T) {
	r := storage.NewInline()
	url, err := r.Rehost(context.Background(), "abc.png", "image/png", []byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Fatalf("url = %q", url)
	}
}

func TestLocalRehostWritesFile(t *testing.T) {
	dir := t.TempDir()
	r, err := storage.NewLocal(dir, "/assets", 0)
	if err != nil {
		t.Fatal(err)
	}

	url, err := r.Rehost(context.Background(), "abc.png", "image/png", []byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	if url != "/assets/abc.png" {
		t.Fatalf("url = %q", url)
	}

	data, err := os.ReadFile(filepath.Join(dir, "abc.png"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload" {
		t.Fatalf("file content = %q", data)
	}
}

func TestLocalRehostCancelledContext(t *testing.T) {
	r, err := storage.NewLocal(t.TempDir(), "", 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Rehost(ctx, "abc.png", "image/png", nil); err == nil {
		t.Fatal("cancelled context accepted")
	}
}

type fakeS3 struct {
	bucket, key, mime string
	body              []byte
}

func (f *fakeS3) PutObject(_ context.Context, bucket, key string, body io.Reader, contentType string) error {
	f.bucket, f.key, f.mime = bucket, key, contentType
	b, err := io.ReadAll(body)
	f.body = b
	return err
}

func TestS3Rehost(t *testing.T) {
	client := &fakeS3{}
	r, err := storage.NewS3(client, "cdn-images", "https://example.com/cdn")
	if err != nil {
		t.Fatal(err)
	}

	url, err := r.Rehost(context.Background(), "abc.png", "image/png", []byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://example.com/cdn/abc.png" {
		t.Fatalf("url = %q", url)
	}
	if client.bucket != "cdn-images" || client.key != "abc.png" || client.mime != "image/png" || string(client.body) != "payload" {
		t.Fatalf("put = %+v", client)
	}
}

func TestS3RequiresClientAndBucket(t *testing.T) {
	if _, err := storage.NewS3(nil, "b", ""); err == nil {
		t.Fatal("nil client accepted")
	}
	if _, err := storage.NewS3(&fakeS3{}, "", ""); err == nil {
		t.Fatal("empty bucket accepted")
	}
}
