package extract

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/pedvoc/pkg/adapters/logger"
	"github.com/user/pedvoc/pkg/mocks"
	"github.com/user/pedvoc/pkg/pipeline"
	"github.com/user/pedvoc/pkg/ports"
	"github.com/user/pedvoc/pkg/sampler"
	"github.com/user/pedvoc/pkg/vbb"
)

// writeVBB writes a sequence with persons on frames 2 and 5 out of 8.
func writeVBB(t *testing.T, persons bool) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "extract-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp failed: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	label := "person"
	if !persons {
		label = "people"
	}
	seq := &vbb.Sequence{
		NFrame: 8,
		Labels: []string{label},
		Frames: make([][]vbb.Instance, 8),
	}
	seq.Frames[1] = []vbb.Instance{{ID: 1, Pos: pipeline.Box{X: 1, Y: 2, W: 3, H: 4}}}
	seq.Frames[4] = []vbb.Instance{{ID: 1, Pos: pipeline.Box{X: 5, Y: 6, W: 7, H: 8}}}

	path := filepath.Join(dir, "V000.vbb")
	if err := vbb.WriteFile(path, seq); err != nil {
		t.Fatalf("vbb.WriteFile failed: %v", err)
	}
	return path
}

func newStage(fs ports.FileSystem, reader *mocks.FrameReader, sink ports.DebugSink) *Stage {
	return NewStage(fs, reader.Opener(), &mocks.Renderer{}, sink, logger.NewNoop())
}

func TestStage_AnnotatedFramesOnly(t *testing.T) {
	fs := mocks.NewFileSystem()
	reader := mocks.NewFrameReader(8, 4, 4)
	stage := newStage(fs, reader, mocks.NewDebugSink(false))

	result, err := stage.Execute(context.Background(), pipeline.ExtractInput{
		Camera:   "set00",
		VBBPath:  writeVBB(t, true),
		SeqPath:  "set00/V000.seq",
		FrameDir: "set00/frame",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Sequence != "V000" || result.PersonFrames != 2 {
		t.Errorf("unexpected result %+v", result)
	}
	if result.FramesSaved != 2 || result.FramesTotal != 8 {
		t.Errorf("expected 2 of 8 frames saved, got %d of %d", result.FramesSaved, result.FramesTotal)
	}
	if len(reader.NextCalls) != 2 || len(reader.SkipCalls) != 6 {
		t.Errorf("expected 2 decodes and 6 skips, got %v / %v", reader.NextCalls, reader.SkipCalls)
	}
	if !reader.CloseCalled {
		t.Error("expected reader to be closed")
	}

	for _, name := range []string{"set00_V000_2.jpg", "set00_V000_5.jpg"} {
		data, ok := fs.GetFile(filepath.Join("set00/frame", name))
		if !ok {
			t.Errorf("expected %s to be written", name)
			continue
		}
		// Raw mock frames are re-encoded through the renderer.
		if len(data) != 1 || data[0] != byte(ports.FormatJPEG) {
			t.Errorf("expected re-encoded JPEG for %s, got %v", name, data)
		}
	}
}

func TestStage_KeepsJPEGPayload(t *testing.T) {
	fs := mocks.NewFileSystem()
	reader := mocks.NewFrameReader(3, 4, 4)
	reader.NextFunc = func(n int) (ports.RawFrame, error) {
		return ports.RawFrame{Data: []byte{0xFF, 0xD8, byte(n)}, Format: ports.FormatJPEG}, nil
	}
	stage := newStage(fs, reader, mocks.NewDebugSink(false))

	if _, err := stage.Execute(context.Background(), pipeline.ExtractInput{
		Camera:   "set00",
		VBBPath:  writeVBB(t, true),
		SeqPath:  "V000.seq",
		FrameDir: "frame",
	}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	data, ok := fs.GetFile(filepath.Join("frame", "set00_V000_2.jpg"))
	if !ok || len(data) != 3 || data[2] != 2 {
		t.Errorf("expected JPEG payload of frame 2 to be copied, got %v", data)
	}
}

func TestStage_AllFramesEvery(t *testing.T) {
	fs := mocks.NewFileSystem()
	reader := mocks.NewFrameReader(95, 4, 4)
	stage := newStage(fs, reader, mocks.NewDebugSink(false))

	result, err := stage.Execute(context.Background(), pipeline.ExtractInput{
		Camera:     "set06",
		VBBPath:    writeVBB(t, true),
		SeqPath:    "V000.seq",
		FrameDir:   "frame",
		AllFrames:  true,
		FrameEvery: 30,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.FramesSaved != 3 || result.FramesTotal != 95 {
		t.Errorf("expected 3 of 95 frames, got %d of %d", result.FramesSaved, result.FramesTotal)
	}
	if len(reader.NextCalls) != 3 {
		t.Errorf("expected only kept frames to be decoded, got %v", reader.NextCalls)
	}
	if _, ok := fs.GetFile(filepath.Join("frame", "set06_V000_90.jpg")); !ok {
		t.Error("expected frame 90 to be written")
	}
}

func TestStage_AllFramesEvery_UnknownCount(t *testing.T) {
	fs := mocks.NewFileSystem()
	reader := mocks.NewFrameReader(61, 4, 4)
	reader.VideoInfo.FrameCount = 0
	stage := newStage(fs, reader, mocks.NewDebugSink(false))

	result, err := stage.Execute(context.Background(), pipeline.ExtractInput{
		Camera:     "set06",
		VBBPath:    writeVBB(t, true),
		SeqPath:    "V000.seq",
		FrameDir:   "frame",
		AllFrames:  true,
		FrameEvery: 30,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.FramesSaved != 2 {
		t.Errorf("expected frames 30 and 60, got %d frames", result.FramesSaved)
	}
}

func TestStage_NoPersonsSkipsVideo(t *testing.T) {
	reader := mocks.NewFrameReader(8, 4, 4)
	stage := newStage(mocks.NewFileSystem(), reader, mocks.NewDebugSink(false))

	result, err := stage.Execute(context.Background(), pipeline.ExtractInput{
		Camera:   "set00",
		VBBPath:  writeVBB(t, false),
		SeqPath:  "V000.seq",
		FrameDir: "frame",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.PersonFrames != 0 || result.Annotations == nil {
		t.Errorf("expected empty non-nil annotations, got %+v", result.Annotations)
	}
	if len(reader.NextCalls)+len(reader.SkipCalls) != 0 {
		t.Error("video should not be read without person frames")
	}
}

func TestStage_TruncatedVideo(t *testing.T) {
	fs := mocks.NewFileSystem()
	reader := mocks.NewFrameReader(8, 4, 4)
	reader.FailAt = 4
	reader.FailErr = io.ErrUnexpectedEOF
	stage := newStage(fs, reader, mocks.NewDebugSink(false))

	result, err := stage.Execute(context.Background(), pipeline.ExtractInput{
		Camera:   "set00",
		VBBPath:  writeVBB(t, true),
		SeqPath:  "V000.seq",
		FrameDir: "frame",
	})
	if err != nil {
		t.Fatalf("expected truncated video to be tolerated, got %v", err)
	}
	var decodeErr *sampler.DecodeError
	if !errors.As(result.DecodeErr, &decodeErr) || decodeErr.Frame != 4 {
		t.Errorf("expected DecodeError at frame 4, got %v", result.DecodeErr)
	}
	if result.FramesSaved != 1 {
		t.Errorf("expected frame 2 to be saved before the failure, got %d", result.FramesSaved)
	}
}

func TestStage_FormatError(t *testing.T) {
	dir, err := os.MkdirTemp("", "extract-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp failed: %v", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "V001.vbb")
	os.WriteFile(path, []byte("not a mat file"), 0644)

	stage := newStage(mocks.NewFileSystem(), mocks.NewFrameReader(1, 4, 4), mocks.NewDebugSink(false))
	_, err = stage.Execute(context.Background(), pipeline.ExtractInput{Camera: "set00", VBBPath: path})

	var formatErr *vbb.FormatError
	if !errors.As(err, &formatErr) {
		t.Errorf("expected *vbb.FormatError, got %v", err)
	}
}

func TestStage_DebugSink(t *testing.T) {
	sink := mocks.NewDebugSink(true)
	stage := newStage(mocks.NewFileSystem(), mocks.NewFrameReader(8, 4, 4), sink)

	if _, err := stage.Execute(context.Background(), pipeline.ExtractInput{
		Camera:  "set00",
		VBBPath: writeVBB(t, true),
	}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	data, ok := sink.AnnotationsFor("set00", "V000")
	if !ok {
		t.Fatal("expected annotations to be saved to the debug sink")
	}
	if !strings.Contains(string(data), "set00_V000_5.jpg") {
		t.Errorf("expected frame key in debug JSON, got %s", data)
	}
}
