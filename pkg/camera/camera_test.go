package camera

import (
	"testing"

	"github.com/vladimirvivien/go4vl/v4l2"
)

func TestClampBounds(t *testing.T) {
	cases := []struct {
		in   int
		want byte
	}{
		{-10, 0},
		{0, 0},
		{128, 128},
		{255, 255},
		{300, 255},
	}
	for _, c := range cases {
		if got := clamp(c.in); got != c.want {
			t.Errorf("clamp(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestGreyToRGBReplicatesChannel(t *testing.T) {
	grey := []byte{0, 128, 255, 64}
	rgb := greyToRGB(grey, 2, 2)
	if len(rgb) != 12 {
		t.Fatalf("expected 12 bytes, got %d", len(rgb))
	}
	for i, v := range grey {
		if rgb[i*3] != v || rgb[i*3+1] != v || rgb[i*3+2] != v {
			t.Errorf("pixel %d: got (%d,%d,%d), want all %d", i, rgb[i*3], rgb[i*3+1], rgb[i*3+2], v)
		}
	}
}

func TestYUYVToRGBProducesExpectedSize(t *testing.T) {
	width, height := 4, 2
	yuyv := make([]byte, width*height*2)
	for i := range yuyv {
		yuyv[i] = 128
	}
	rgb := yuyvToRGB(yuyv, width, height)
	if len(rgb) != width*height*3 {
		t.Fatalf("expected %d bytes, got %d", width*height*3, len(rgb))
	}
}

func TestToRGBPassesThroughRGB24(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6}
	out, err := toRGB(data, v4l2.PixelFmtRGB24, 2, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 6 {
		t.Fatalf("expected 6 bytes, got %d", len(out))
	}
}

func TestToRGBUnknownFormatTooShort(t *testing.T) {
	data := []byte{1, 2}
	_, err := toRGB(data, 0xdeadbeef, 10, 10)
	if err != ErrNoFrame {
		t.Fatalf("expected ErrNoFrame for undersized unknown-format buffer, got %v", err)
	}
}

func TestReadBeforeOpenFails(t *testing.T) {
	h := NewHandle()
	if _, _, _, err := h.Read(); err != ErrNotOpen {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}

func TestCloseBeforeOpenIsNoop(t *testing.T) {
	h := NewHandle()
	if err := h.Close(); err != nil {
		t.Fatalf("expected nil error closing unopened handle, got %v", err)
	}
}
