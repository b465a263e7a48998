package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/user/pedvoc/pkg/detections"
	"github.com/user/pedvoc/pkg/pipeline"
	"github.com/user/pedvoc/pkg/ports"
	"github.com/user/pedvoc/pkg/sampler"
	"github.com/user/pedvoc/pkg/vbb"
)

// ErrNoPreviewFrames is returned when the selection keeps no frame.
var ErrNoPreviewFrames = errors.New("orchestrator: no frames to preview")

// PreviewConfig describes a preview of one sequence.
type PreviewConfig struct {
	VideoPath      string
	AnnotationPath string // Optional .vbb drawn in red
	DetectionsPath string // Optional Caltech result file drawn in green
	Camera         string // Defaults to the name of the video's directory

	// Output is an .mp4 file, or a directory receiving one PNG per frame.
	Output string

	Every    int     // Keep every n-th frame; 0 or 1 keeps all
	ScoreMin float64 // Detections below this score are not drawn
	MaxWidth int
	FPS      float64 // Video frame rate; defaults to 1 with Every > 1, else the source rate
	Quality  int
}

// IsVideo reports whether the preview is encoded as a video.
func (c PreviewConfig) IsVideo() bool {
	return strings.EqualFold(filepath.Ext(c.Output), ".mp4")
}

// PreviewRunResult reports what a preview produced.
type PreviewRunResult struct {
	Frames      int      // Frames rendered
	TotalFrames int      // Frames in the video
	Files       []string // PNG files written
	VideoBytes  int64
	DecodeErr   error
}

// Previewer renders ground truth and detections over the frames of one video.
type Previewer struct {
	open         ports.FrameReaderOpener
	previewStage pipeline.Stage[pipeline.PreviewInput, pipeline.PreviewResult]
	encodeStage  pipeline.Stage[pipeline.EncodeInput, pipeline.EncodeResult]
	renderer     ports.Renderer
	fs           ports.FileSystem
	logger       ports.Logger
}

// NewPreviewer creates a new Previewer.
func NewPreviewer(
	open ports.FrameReaderOpener,
	previewStage pipeline.Stage[pipeline.PreviewInput, pipeline.PreviewResult],
	encodeStage pipeline.Stage[pipeline.EncodeInput, pipeline.EncodeResult],
	renderer ports.Renderer,
	fs ports.FileSystem,
	logger ports.Logger,
) *Previewer {
	return &Previewer{
		open:         open,
		previewStage: previewStage,
		encodeStage:  encodeStage,
		renderer:     renderer,
		fs:           fs,
		logger:       logger,
	}
}

// Run reads the selected frames, draws the overlays and writes the output.
// A truncated video is previewed up to the failing frame.
func (p *Previewer) Run(ctx context.Context, config PreviewConfig) (PreviewRunResult, error) {
	var result PreviewRunResult

	camera := config.Camera
	if camera == "" {
		camera = filepath.Base(filepath.Dir(config.VideoPath))
	}
	stem := pipeline.Stem(config.VideoPath)

	annos, err := p.annotations(config.AnnotationPath, camera)
	if err != nil {
		return result, err
	}
	dets, err := p.detections(config.DetectionsPath, camera, stem)
	if err != nil {
		return result, err
	}

	r, err := p.open(config.VideoPath)
	if err != nil {
		return result, fmt.Errorf("open video %s: %w", config.VideoPath, err)
	}
	defer r.Close()
	info := r.Info()

	every := config.Every
	var filter sampler.Filter
	if every > 1 && info.FrameCount > 0 {
		filter = sampler.Every(every, info.FrameCount)
	}

	var frames []pipeline.Frame
	total, err := sampler.Each(ctx, r, camera, stem, filter, func(f pipeline.Frame) error {
		if every > 1 && f.Key.Frame%every != 0 {
			return nil
		}
		frames = append(frames, f)
		return nil
	})
	result.TotalFrames = total

	var decodeErr *sampler.DecodeError
	switch {
	case errors.As(err, &decodeErr):
		p.logger.Warn("Sequence %s/%s truncated at frame %d: %s", camera, stem, decodeErr.Frame, decodeErr.Err.Error())
		result.DecodeErr = err
	case err != nil:
		return result, err
	}
	if len(frames) == 0 {
		return result, ErrNoPreviewFrames
	}

	p.logger.Info("Previewing %d of %d frames of %s/%s", len(frames), total, camera, stem)
	rendered, err := p.previewStage.Execute(ctx, pipeline.PreviewInput{
		Frames:      frames,
		Annotations: annos,
		Detections:  dets,
		ScoreMin:    config.ScoreMin,
		MaxWidth:    config.MaxWidth,
		TotalFrames: total,
	})
	if err != nil {
		return result, fmt.Errorf("preview stage: %w", err)
	}
	result.Frames = len(rendered.Frames)

	if config.IsVideo() {
		size, err := p.writeVideo(ctx, config, info, rendered.Frames)
		result.VideoBytes = size
		return result, err
	}
	result.Files, err = p.writeImages(config.Output, rendered.Frames)
	return result, err
}

func (p *Previewer) annotations(path, camera string) (pipeline.Annotations, error) {
	if path == "" {
		return pipeline.Annotations{}, nil
	}
	data, err := p.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read annotations: %w", err)
	}
	return vbb.Decode(bytes.NewReader(data), path, camera)
}

func (p *Previewer) detections(path, camera, stem string) (map[pipeline.FrameKey][]pipeline.ScoredBox, error) {
	out := make(map[pipeline.FrameKey][]pipeline.ScoredBox)
	if path == "" {
		return out, nil
	}
	data, err := p.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read detections: %w", err)
	}
	byFrame, err := detections.ParseCaltech(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	for frame, boxes := range byFrame {
		out[pipeline.FrameKey{Camera: camera, Sequence: stem, Frame: frame}] = boxes
	}
	return out, nil
}

// writeVideo retimes the frames at a constant rate and encodes them.
func (p *Previewer) writeVideo(ctx context.Context, config PreviewConfig, info ports.VideoInfo, frames []pipeline.RenderedFrame) (int64, error) {
	fps := config.FPS
	if fps <= 0 {
		fps = info.FPS
		if config.Every > 1 || fps <= 0 {
			fps = 1
		}
	}

	retimed := make([]pipeline.RenderedFrame, len(frames))
	for i, f := range frames {
		f.TimestampMs = int(float64(i) * 1000 / fps)
		retimed[i] = f
	}

	encoded, err := p.encodeStage.Execute(ctx, pipeline.EncodeInput{
		Frames:  retimed,
		FPS:     fps,
		Quality: config.Quality,
	})
	if err != nil {
		return 0, fmt.Errorf("encode stage: %w", err)
	}
	if err := p.fs.WriteFile(config.Output, encoded.VideoData); err != nil {
		return 0, fmt.Errorf("write preview: %w", err)
	}
	p.logger.Info("Preview written to %s (%d bytes)", config.Output, encoded.FileSize)
	return encoded.FileSize, nil
}

func (p *Previewer) writeImages(dir string, frames []pipeline.RenderedFrame) ([]string, error) {
	if err := p.fs.MkdirAll(dir); err != nil {
		return nil, fmt.Errorf("create preview directory: %w", err)
	}
	files := make([]string, 0, len(frames))
	for _, f := range frames {
		data, err := p.renderer.EncodeImage(f.Image, ports.FormatPNG, 0)
		if err != nil {
			return files, fmt.Errorf("encode %s: %w", f.Key, err)
		}
		name := strings.TrimSuffix(f.Key.String(), filepath.Ext(f.Key.String())) + ".png"
		path := filepath.Join(dir, name)
		if err := p.fs.WriteFile(path, data); err != nil {
			return files, fmt.Errorf("write %s: %w", path, err)
		}
		files = append(files, path)
	}
	p.logger.Info("Preview written to %s (%d frames)", dir, len(files))
	return files, nil
}
