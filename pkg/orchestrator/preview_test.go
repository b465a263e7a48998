package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/user/pedvoc/pkg/adapters/logger"
	"github.com/user/pedvoc/pkg/mocks"
	"github.com/user/pedvoc/pkg/pipeline"
)

type mockPreviewStage struct {
	input pipeline.PreviewInput
}

func (m *mockPreviewStage) Execute(ctx context.Context, input pipeline.PreviewInput) (pipeline.PreviewResult, error) {
	m.input = input
	frames := make([]pipeline.RenderedFrame, len(input.Frames))
	for i, f := range input.Frames {
		frames[i] = pipeline.RenderedFrame{Key: f.Key, Image: f.Image, TimestampMs: int(f.TimestampMs)}
	}
	return pipeline.PreviewResult{Frames: frames}, nil
}

type mockEncodeStage struct {
	input  pipeline.EncodeInput
	called bool
}

func (m *mockEncodeStage) Execute(ctx context.Context, input pipeline.EncodeInput) (pipeline.EncodeResult, error) {
	m.input = input
	m.called = true
	return pipeline.EncodeResult{VideoData: []byte("mp4"), FileSize: 3}, nil
}

var videoPath = filepath.Join(root, "set00", "V000.seq")

func newTestPreviewer(reader *mocks.FrameReader, fs *mocks.FileSystem) (*Previewer, *mockPreviewStage, *mockEncodeStage) {
	ps := &mockPreviewStage{}
	es := &mockEncodeStage{}
	return NewPreviewer(reader.Opener(), ps, es, &mocks.Renderer{}, fs, logger.NewNoop()), ps, es
}

func TestPreviewer_Images(t *testing.T) {
	fs := mocks.NewFileSystem()
	writeSequence(t, fs, 0, "V000")
	annoPath := filepath.Join(SetPaths(root, 0).AnnotationDir, "V000.vbb")
	fs.WriteFile("/res/set00/V000.txt", []byte("30,1,2,3,4,0.9\n45,1,2,3,4,0.5\n"))

	reader := mocks.NewFrameReader(75, 64, 48)
	p, ps, es := newTestPreviewer(reader, fs)

	result, err := p.Run(context.Background(), PreviewConfig{
		VideoPath:      videoPath,
		AnnotationPath: annoPath,
		DetectionsPath: "/res/set00/V000.txt",
		Output:         "/out",
		Every:          30,
		ScoreMin:       0.7,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Frames != 2 || result.TotalFrames != 75 {
		t.Errorf("expected 2 of 75 frames, got %d of %d", result.Frames, result.TotalFrames)
	}
	if len(ps.input.Frames) != 2 || ps.input.Frames[0].Key.Frame != 30 || ps.input.Frames[1].Key.Frame != 60 {
		t.Fatalf("unexpected preview frames %v", ps.input.Frames)
	}
	if ps.input.TotalFrames != 75 || ps.input.ScoreMin != 0.7 {
		t.Errorf("unexpected preview input totals %d score %v", ps.input.TotalFrames, ps.input.ScoreMin)
	}

	key := pipeline.FrameKey{Camera: "set00", Sequence: "V000", Frame: 30}
	if len(ps.input.Detections[key]) != 1 {
		t.Errorf("expected one detection on frame 30, got %v", ps.input.Detections)
	}
	if len(ps.input.Annotations) != 2 {
		t.Errorf("expected 2 annotated frames, got %d", len(ps.input.Annotations))
	}

	// Unselected frames are skipped without decoding.
	if len(reader.NextCalls) != 2 || len(reader.SkipCalls) != 73 {
		t.Errorf("expected 2 decodes and 73 skips, got %d/%d", len(reader.NextCalls), len(reader.SkipCalls))
	}
	if !reader.CloseCalled {
		t.Error("reader not closed")
	}

	if es.called {
		t.Error("encoder should not run for image output")
	}
	want := []string{filepath.Join("/out", "set00_V000_30.png"), filepath.Join("/out", "set00_V000_60.png")}
	if len(result.Files) != 2 || result.Files[0] != want[0] || result.Files[1] != want[1] {
		t.Errorf("unexpected files %v", result.Files)
	}
	if _, ok := fs.GetFile(want[1]); !ok {
		t.Errorf("%s not written", want[1])
	}
}

func TestPreviewer_Video(t *testing.T) {
	tests := []struct {
		name    string
		every   int
		fps     float64
		wantFPS float64
		wantTs1 int
	}{
		{"sampled retimed to 1 fps", 30, 0, 1, 1000},
		{"all frames at source rate", 1, 0, 30, 33},
		{"explicit rate", 30, 5, 5, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := mocks.NewFileSystem()
			p, _, es := newTestPreviewer(mocks.NewFrameReader(60, 64, 48), fs)

			result, err := p.Run(context.Background(), PreviewConfig{
				VideoPath: videoPath,
				Output:    "/out/preview.mp4",
				Every:     tt.every,
				FPS:       tt.fps,
				Quality:   25,
			})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if !es.called || es.input.FPS != tt.wantFPS || es.input.Quality != 25 {
				t.Fatalf("unexpected encode input fps=%v quality=%d", es.input.FPS, es.input.Quality)
			}
			if es.input.Frames[0].TimestampMs != 0 || es.input.Frames[1].TimestampMs != tt.wantTs1 {
				t.Errorf("unexpected timestamps %d, %d", es.input.Frames[0].TimestampMs, es.input.Frames[1].TimestampMs)
			}
			if result.VideoBytes != 3 {
				t.Errorf("expected 3 bytes, got %d", result.VideoBytes)
			}
			if data, ok := fs.GetFile("/out/preview.mp4"); !ok || string(data) != "mp4" {
				t.Error("video not written")
			}
		})
	}
}

func TestPreviewer_TruncatedVideo(t *testing.T) {
	reader := mocks.NewFrameReader(90, 64, 48)
	reader.FailAt = 50
	p, ps, _ := newTestPreviewer(reader, mocks.NewFileSystem())

	result, err := p.Run(context.Background(), PreviewConfig{VideoPath: videoPath, Output: "/out", Every: 30})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.DecodeErr == nil {
		t.Error("expected DecodeErr to be recorded")
	}
	if len(ps.input.Frames) != 1 || ps.input.Frames[0].Key.Frame != 30 {
		t.Errorf("expected only frame 30, got %v", ps.input.Frames)
	}
}

func TestPreviewer_NoFrames(t *testing.T) {
	p, _, _ := newTestPreviewer(mocks.NewFrameReader(10, 64, 48), mocks.NewFileSystem())

	_, err := p.Run(context.Background(), PreviewConfig{VideoPath: videoPath, Output: "/out", Every: 30})
	if !errors.Is(err, ErrNoPreviewFrames) {
		t.Errorf("expected ErrNoPreviewFrames, got %v", err)
	}
}

func TestPreviewer_BadDetections(t *testing.T) {
	fs := mocks.NewFileSystem()
	fs.WriteFile("/res/V000.txt", []byte("30,1,2\n"))
	p, _, _ := newTestPreviewer(mocks.NewFrameReader(10, 64, 48), fs)

	_, err := p.Run(context.Background(), PreviewConfig{VideoPath: videoPath, DetectionsPath: "/res/V000.txt", Output: "/out"})
	if err == nil {
		t.Error("expected error for malformed detections")
	}
}

func TestPreviewConfig_IsVideo(t *testing.T) {
	if !(PreviewConfig{Output: "a/b.MP4"}).IsVideo() {
		t.Error("expected .MP4 to be a video")
	}
	if (PreviewConfig{Output: "a/frames"}).IsVideo() {
		t.Error("expected directory output")
	}
}
