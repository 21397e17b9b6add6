// Package camera implements the Camera Handle: opening a V4L2 device,
// negotiating frame geometry, and reading frames as top-left-origin RGB
// buffers that downstream processing owns outright.
package camera

import (
	"context"
	"errors"
	"time"

	"github.com/glance-auth/glance/pkg/logging"
	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
)

const (
	defaultWidth  = 640
	defaultHeight = 480
	defaultFPS    = 30
	readTimeout   = 2 * time.Second
)

// ErrNotOpen is returned when Read or Close is called before Open succeeds.
var ErrNotOpen = errors.New("camera: device not open")

// ErrNoFrame is returned when the driver delivers an empty buffer or the
// output channel is closed.
var ErrNoFrame = errors.New("camera: empty frame")

// ErrReadTimeout is returned when no frame arrives within the read timeout.
var ErrReadTimeout = errors.New("camera: read timeout")

// Handle exclusively owns one V4L2 descriptor for its entire lifetime. A
// zero-value Handle is ready for Open; re-opening the same device from
// another process or thread before Close is not supported.
type Handle struct {
	dev    *device.Device
	cancel context.CancelFunc
	format v4l2.PixFormat
	path   string
}

// NewHandle returns an unopened handle.
func NewHandle() *Handle {
	return &Handle{}
}

// Open lets the driver negotiate its own format, then starts streaming.
// No geometry or frame rate is requested from the driver: the device
// streams in whatever format it is already configured for. A negotiated
// size other than 640x480 is logged at debug level, never fatal.
func (h *Handle) Open(devicePath string) error {
	dev, err := device.Open(devicePath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := dev.Start(ctx); err != nil {
		cancel()
		_ = dev.Close()
		return err
	}

	format, err := dev.GetPixFormat()
	if err != nil {
		logging.Warnf("camera: could not confirm negotiated format for %s: %v", devicePath, err)
		format = v4l2.PixFormat{Width: defaultWidth, Height: defaultHeight, PixelFormat: v4l2.PixelFmtYUYV}
	} else if int(format.Width) != defaultWidth || int(format.Height) != defaultHeight {
		logging.Debugf("camera: %s negotiated %dx%d instead of expected %dx%d",
			devicePath, format.Width, format.Height, defaultWidth, defaultHeight)
	}

	h.dev = dev
	h.cancel = cancel
	h.format = format
	h.path = devicePath
	return nil
}

// Read pulls the next frame from the driver, converts it to packed RGB,
// and copies the bytes once so the caller owns the returned buffer.
func (h *Handle) Read() (width, height int, rgb []byte, err error) {
	if h.dev == nil {
		return 0, 0, nil, ErrNotOpen
	}

	select {
	case buf, ok := <-h.dev.GetOutput():
		if !ok || len(buf) == 0 {
			return 0, 0, nil, ErrNoFrame
		}
		w := int(h.format.Width)
		hgt := int(h.format.Height)
		converted, err := toRGB(buf, h.format.PixelFormat, w, hgt)
		if err != nil {
			return 0, 0, nil, err
		}
		out := make([]byte, len(converted))
		copy(out, converted)
		return w, hgt, out, nil
	case <-time.After(readTimeout):
		return 0, 0, nil, ErrReadTimeout
	}
}

// Close releases the descriptor. Safe to call on an unopened or
// already-closed handle.
func (h *Handle) Close() error {
	if h.dev == nil {
		return nil
	}
	if h.cancel != nil {
		h.cancel()
	}
	_ = h.dev.Stop()
	err := h.dev.Close()
	h.dev = nil
	return err
}

// toRGB converts a driver buffer to packed top-left-origin RGB, R,G,B per
// pixel. YUYV and RGB24/BGR24 are the formats actually seen on IR/RGB
// webcams in the wild; Grey covers IR sensors that stream 8-bit luminance.
func toRGB(data []byte, format v4l2.FourCCType, width, height int) ([]byte, error) {
	switch format {
	case v4l2.PixelFmtRGB24:
		return data, nil
	case v4l2.FourCCType(0x33524742): // V4L2_PIX_FMT_BGR24 ('BGR3')
		out := make([]byte, width*height*3)
		for i := 0; i < width*height && i*3+2 < len(data); i++ {
			out[i*3], out[i*3+1], out[i*3+2] = data[i*3+2], data[i*3+1], data[i*3]
		}
		return out, nil
	case v4l2.PixelFmtYUYV:
		return yuyvToRGB(data, width, height), nil
	case v4l2.PixelFmtGrey:
		return greyToRGB(data, width, height), nil
	default:
		// Best-effort: assume already-packed 3-byte-per-pixel data rather
		// than fail a working camera over an unrecognized fourcc.
		if len(data) >= width*height*3 {
			return data[:width*height*3], nil
		}
		return nil, ErrNoFrame
	}
}

func yuyvToRGB(data []byte, width, height int) []byte {
	out := make([]byte, width*height*3)
	for y := 0; y < height; y++ {
		rowIn := y * width * 2
		rowOut := y * width * 3
		for x := 0; x < width; x += 2 {
			idx := rowIn + x*2
			if idx+3 >= len(data) {
				break
			}
			y0 := int(data[idx])
			u := int(data[idx+1]) - 128
			y1 := int(data[idx+2])
			v := int(data[idx+3]) - 128

			r0, g0, b0 := yuvToRGBPixel(y0, u, v)
			outIdx := rowOut + x*3
			out[outIdx], out[outIdx+1], out[outIdx+2] = r0, g0, b0

			if x+1 < width {
				r1, g1, b1 := yuvToRGBPixel(y1, u, v)
				out[outIdx+3], out[outIdx+4], out[outIdx+5] = r1, g1, b1
			}
		}
	}
	return out
}

func yuvToRGBPixel(y, u, v int) (byte, byte, byte) {
	c := y - 16
	r := (298*c + 409*v + 128) >> 8
	g := (298*c - 100*u - 208*v + 128) >> 8
	b := (298*c + 516*u + 128) >> 8
	return clamp(r), clamp(g), clamp(b)
}

func clamp(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

func greyToRGB(data []byte, width, height int) []byte {
	out := make([]byte, width*height*3)
	for i := 0; i < width*height && i < len(data); i++ {
		out[i*3], out[i*3+1], out[i*3+2] = data[i], data[i], data[i]
	}
	return out
}
