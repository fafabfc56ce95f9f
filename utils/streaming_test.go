package utils

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/mattew90/sharpscale/errors"
)

func TestDrainReader(t *testing.T) {
	payload := strings.Repeat("x", 100_000)
	buf, err := DrainReader(context.Background(), strings.NewReader(payload), 4096)
	if err != nil {
		t.Fatal(err)
	}
	defer ReleaseBuffer(buf)
	if buf.String() != payload {
		t.Errorf("drained %d bytes, want %d", buf.Len(), len(payload))
	}
}

func TestDrainReaderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := DrainReader(ctx, strings.NewReader("abc"), 1024); err == nil {
		t.Fatal("cancelled context accepted")
	}
}

func TestLimitedReader(t *testing.T) {
	t.Run("at limit", func(t *testing.T) {
		lr := &LimitedReader{R: strings.NewReader("12345"), Max: 5}
		var out bytes.Buffer
		if _, err := out.ReadFrom(lr); err != nil {
			t.Fatal(err)
		}
		if out.String() != "12345" {
			t.Errorf("read %q", out.String())
		}
	})

	t.Run("over limit", func(t *testing.T) {
		lr := &LimitedReader{R: strings.NewReader("123456"), Max: 5}
		var out bytes.Buffer
		_, err := out.ReadFrom(lr)
		if !errors.Is(err, apperrors.ErrResourceTooLarge) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("unlimited", func(t *testing.T) {
		lr := &LimitedReader{R: strings.NewReader("123456")}
		var out bytes.Buffer
		if _, err := out.ReadFrom(lr); err != nil {
			t.Fatal(err)
		}
		if out.Len() != 6 {
			t.Errorf("read %d bytes", out.Len())
		}
	})
}
