package smartreader

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/user/pedvoc/pkg/adapters/seqreader"
)

func TestDetect_Header(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		header []byte
		want   Backend
	}{
		{"seq magic", "video.bin", []byte{0xED, 0xFE, 0, 0, 'N', 0, 'o', 0}, BackendSeq},
		{"seq extension", "V000.SEQ", []byte{0, 0, 0, 0}, BackendSeq},
		{"mp4 named seq", "V000.seq", []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p'}, BackendFFmpeg},
		{"avi", "clip.avi", []byte("RIFF\x00\x00\x00\x00"), BackendFFmpeg},
		{"empty", "clip.mkv", nil, BackendFFmpeg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detect(tt.path, tt.header); got != tt.want {
				t.Errorf("detect() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestOpen_Seq(t *testing.T) {
	dir, err := os.MkdirTemp("", "smartreader-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp failed: %v", err)
	}
	defer os.RemoveAll(dir)

	// No extension, so selection relies on the magic number.
	path := filepath.Join(dir, "V000")
	imgs := []image.Image{
		image.NewRGBA(image.Rect(0, 0, 16, 8)),
		image.NewRGBA(image.Rect(0, 0, 16, 8)),
	}
	if err := seqreader.WriteFile(path, imgs, 90, seqreader.WriteOptions{FPS: 30}); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	backend, err := Detect(path)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if backend != BackendSeq {
		t.Errorf("expected seq backend, got %s", backend)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	if _, ok := r.(*seqreader.Reader); !ok {
		t.Errorf("expected *seqreader.Reader, got %T", r)
	}
	info := r.Info()
	if info.Width != 16 || info.Height != 8 || info.FrameCount != 2 {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestDetect_MissingFile(t *testing.T) {
	if _, err := Detect(filepath.Join(os.TempDir(), "missing-smartreader.seq")); err == nil {
		t.Error("expected error for missing file")
	}
}
