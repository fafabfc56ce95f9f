package utils

import (
	"bytes"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, "jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "png"},
		{"gif87a", []byte("GIF87a trailer"), "gif"},
		{"gif89a", []byte("GIF89a trailer"), "gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "webp"},
		{"svg bare", []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`), "svg"},
		{"svg with prolog", []byte(`<?xml version="1.0"?><svg></svg>`), "svg"},
		{"svg with bom", append([]byte{0xEF, 0xBB, 0xBF}, []byte("<svg/>")...), "svg"},
		{"too short", []byte{0x89}, "unknown"},
		{"garbage", []byte("not an image at all"), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.data); got != tt.want {
				t.Errorf("DetectFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatMIME(t *testing.T) {
	if got := FormatMIME("png"); got != "image/png" {
		t.Errorf("png mime = %q", got)
	}
	if got := FormatMIME("bogus"); got != "application/octet-stream" {
		t.Errorf("fallback mime = %q", got)
	}
}

func TestDataURIRoundTrip(t *testing.T) {
	payload := []byte{0x89, 0x50, 0x4E, 0x47, 0x00, 0xFF}
	uri := EncodeDataURI("image/png", payload)

	mime, data, err := DecodeDataURI(uri)
	if err != nil {
		t.Fatal(err)
	}
	if mime != "image/png" {
		t.Errorf("mime = %q", mime)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("data = %x, want %x", data, payload)
	}
}

func TestDecodeDataURIPercentEncoded(t *testing.T) {
	mime, data, err := DecodeDataURI("data:text/plain,hello%20world")
	if err != nil {
		t.Fatal(err)
	}
	if mime != "text/plain" || string(data) != "hello world" {
		t.Errorf("got %q / %q", mime, data)
	}
}

func TestDecodeDataURIRejectsMalformed(t *testing.T) {
	for _, uri := range []string{
		"https://example.com/a.png",
		"data:image/png;base64",
		"data:image/png;base64,!!!not-base64!!!",
	} {
		if _, _, err := DecodeDataURI(uri); err == nil {
			t.Errorf("DecodeDataURI(%q) accepted", uri)
		}
	}
}

func TestCloneBytesIndependence(t *testing.T) {
	src := []byte{1, 2, 3}
	dup := CloneBytes(src)
	src[0] = 9
	if dup[0] != 1 {
		t.Error("clone aliases source")
	}
}
