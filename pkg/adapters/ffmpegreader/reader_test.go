package ffmpegreader

import (
	"bufio"
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/user/pedvoc/pkg/adapters/h264encoder"
	"github.com/user/pedvoc/pkg/ports"
)

func encodePNG(t *testing.T, w, h int, v uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func TestReadPNG_Stream(t *testing.T) {
	first := encodePNG(t, 4, 3, 10)
	second := encodePNG(t, 4, 3, 200)
	third := encodePNG(t, 4, 3, 99)

	var stream bytes.Buffer
	stream.Write(first)
	stream.Write(second)
	stream.Write(third)
	r := bufio.NewReader(&stream)

	got, err := readPNG(r, true)
	if err != nil {
		t.Fatalf("readPNG failed: %v", err)
	}
	if !bytes.Equal(got, first) {
		t.Errorf("first image bytes differ: got %d bytes, want %d", len(got), len(first))
	}

	// Discarding must consume exactly one image.
	if got, err := readPNG(r, false); err != nil || got != nil {
		t.Fatalf("expected discarded image, got %v (%v)", got, err)
	}

	got, err = readPNG(r, true)
	if err != nil {
		t.Fatalf("readPNG failed: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(got))
	if err != nil {
		t.Fatalf("png.Decode failed: %v", err)
	}
	if v := img.(*image.Gray).GrayAt(0, 0).Y; v != 99 {
		t.Errorf("expected third image, got pixel %d", v)
	}

	if _, err := readPNG(r, true); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestReadPNG_Malformed(t *testing.T) {
	full := encodePNG(t, 2, 2, 1)

	tests := []struct {
		name string
		data []byte
	}{
		{"bad signature", append([]byte("GIF89a.."), full[8:]...)},
		{"truncated chunk", full[:len(full)-6]},
		{"short signature", full[:4]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readPNG(bufio.NewReader(bytes.NewReader(tt.data)), true)
			if !errors.Is(err, ErrBadStream) {
				t.Errorf("expected ErrBadStream, got %v", err)
			}
		})
	}
}

func makeMP4(t *testing.T, frames int) string {
	t.Helper()
	enc := h264encoder.New()
	if err := enc.Begin(32, 24, 10, ports.EncoderOptions{Quality: 20}); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	for i := 0; i < frames; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 32, 24))
		for y := 0; y < 24; y++ {
			for x := 0; x < 32; x++ {
				img.Set(x, y, color.RGBA{R: uint8(i * 40), G: 0, B: 0, A: 255})
			}
		}
		if err := enc.EncodeFrame(img, i*100); err != nil {
			t.Fatalf("EncodeFrame failed: %v", err)
		}
	}
	data, err := enc.End()
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}

	dir, err := os.MkdirTemp("", "ffmpegreader-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp failed: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestReader_MP4(t *testing.T) {
	if !h264encoder.IsFFmpegAvailable() {
		t.Skip("ffmpeg not available")
	}
	path := makeMP4(t, 5)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	info := r.Info()
	if info.Width != 32 || info.Height != 24 {
		t.Errorf("expected 32x24, got %dx%d", info.Width, info.Height)
	}
	if info.FrameCount != 5 {
		t.Errorf("expected 5 frames from probe, got %d", info.FrameCount)
	}

	if err := r.Skip(); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}
	frame, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if frame.Format != ports.FormatPNG || frame.Image.Bounds().Dx() != 32 {
		t.Errorf("unexpected frame: format %v bounds %v", frame.Format, frame.Image.Bounds())
	}
	if frame.TimestampMs < 50 || frame.TimestampMs > 150 {
		t.Errorf("expected ~100ms for the second frame, got %d", frame.TimestampMs)
	}

	count := 2
	for {
		if _, err := r.Next(); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		count++
	}
	if count != 5 {
		t.Errorf("expected 5 frames, got %d", count)
	}
	if err := r.Skip(); err != io.EOF {
		t.Errorf("expected io.EOF after end, got %v", err)
	}
}

func TestReader_CloseEarly(t *testing.T) {
	if !h264encoder.IsFFmpegAvailable() {
		t.Skip("ffmpeg not available")
	}
	path := makeMP4(t, 8)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := r.Next(); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, os.ErrClosed) {
		t.Errorf("expected os.ErrClosed, got %v", err)
	}
}

func TestOpen_MissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(os.TempDir(), "no-such-video.mp4")); err == nil {
		t.Error("expected error for missing file")
	}
}
