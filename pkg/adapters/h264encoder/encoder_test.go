package h264encoder

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/pedvoc/pkg/ports"
)

// createTestImage creates a simple test image with gradient
func createTestImage(width, height int, frameNum int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x*255/width + frameNum*10) % 256)
			g := uint8((y*255/height + frameNum*5) % 256)
			img.Set(x, y, color.RGBA{R: r, G: g, B: 128, A: 255})
		}
	}
	return img
}

func TestEncoder_ProducesMP4(t *testing.T) {
	if !IsFFmpegAvailable() {
		t.Skip("ffmpeg not available")
	}

	enc := New()
	// Odd sizes are padded to even dimensions.
	if err := enc.Begin(161, 121, 30, ports.EncoderOptions{Quality: 30}); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := enc.EncodeFrame(createTestImage(161, 121, i), i*33); err != nil {
			t.Fatalf("EncodeFrame failed at frame %d: %v", i, err)
		}
	}

	data, err := enc.End()
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if len(data) < 8 || string(data[4:8]) != "ftyp" {
		t.Errorf("expected MP4 output starting with ftyp box")
	}
}

func TestEncoder_NotInitialized(t *testing.T) {
	enc := New()

	if err := enc.EncodeFrame(createTestImage(8, 8, 0), 0); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := enc.End(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestBuildArgs(t *testing.T) {
	args := strings.Join(buildArgs(640, 480, 30, ports.EncoderOptions{Quality: 63, Bitrate: 800}, "out.mp4"), " ")

	for _, want := range []string{"-s 640x480", "-crf 51", "-b:v 800k", "-c:v libx264"} {
		if !strings.Contains(args, want) {
			t.Errorf("expected %q in %q", want, args)
		}
	}
	if !strings.HasSuffix(args, "out.mp4") {
		t.Errorf("expected output path last, got %q", args)
	}

	defaults := strings.Join(buildArgs(640, 480, 30, ports.EncoderOptions{}, "out.mp4"), " ")
	if !strings.Contains(defaults, "-crf 23") {
		t.Errorf("expected default crf 23 in %q", defaults)
	}
}

func TestFindFFmpeg_CustomPath(t *testing.T) {
	defer SetFFmpegPath("")

	SetFFmpegPath(filepath.Join(os.TempDir(), "definitely-missing-ffmpeg"))
	if _, err := FindFFmpeg(); !errors.Is(err, ErrFFmpegNotFound) {
		t.Errorf("expected ErrFFmpegNotFound for missing custom path, got %v", err)
	}

	exe, err := os.Executable()
	if err != nil {
		t.Skip("cannot resolve test binary path")
	}
	SetFFmpegPath(exe)
	got, err := FindFFmpeg()
	if err != nil || got != exe {
		t.Errorf("expected custom path %s, got %s (%v)", exe, got, err)
	}
}
