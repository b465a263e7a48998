// Package preview implements the stage that draws ground truth and detections
// onto the frames of one sequence.
package preview

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"runtime"
	"sort"
	"sync"

	"github.com/user/pedvoc/pkg/pipeline"
	"github.com/user/pedvoc/pkg/ports"
)

var (
	truthColor     = color.RGBA{R: 255, A: 255}
	detectionColor = color.RGBA{G: 255, A: 255}
	counterColor   = color.RGBA{R: 255, G: 255, A: 255}
)

// Stage renders annotated preview frames.
type Stage struct {
	renderer   ports.Renderer
	sink       ports.DebugSink
	logger     ports.Logger
	numWorkers int
}

// NewStage creates a new preview stage.
func NewStage(renderer ports.Renderer, sink ports.DebugSink, logger ports.Logger, numWorkers int) *Stage {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &Stage{
		renderer:   renderer,
		sink:       sink,
		logger:     logger.WithComponent("preview"),
		numWorkers: numWorkers,
	}
}

// Execute draws every frame. Output order matches input order.
func (s *Stage) Execute(ctx context.Context, input pipeline.PreviewInput) (pipeline.PreviewResult, error) {
	if len(input.Frames) == 0 {
		return pipeline.PreviewResult{Frames: []pipeline.RenderedFrame{}}, nil
	}

	s.logger.Debug("Rendering %d frames with %d workers", len(input.Frames), s.numWorkers)

	numFrames := len(input.Frames)
	jobs := make(chan int, numFrames)
	results := make(chan indexedFrame, numFrames)
	errChan := make(chan error, s.numWorkers)

	var wg sync.WaitGroup
	for w := 0; w < s.numWorkers; w++ {
		wg.Add(1)
		go s.worker(ctx, &wg, input, jobs, results, errChan)
	}

	for i := 0; i < numFrames; i++ {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
		close(errChan)
	}()

	frames := make([]indexedFrame, 0, numFrames)
	for result := range results {
		frames = append(frames, result)
	}

	if err := <-errChan; err != nil {
		return pipeline.PreviewResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return pipeline.PreviewResult{}, err
	}

	sort.Slice(frames, func(i, j int) bool {
		return frames[i].index < frames[j].index
	})

	out := make([]pipeline.RenderedFrame, len(frames))
	for i, f := range frames {
		out[i] = f.frame
		if s.sink.Enabled() {
			s.saveDebug(f.frame)
		}
	}
	return pipeline.PreviewResult{Frames: out}, nil
}

type indexedFrame struct {
	index int
	frame pipeline.RenderedFrame
}

func (s *Stage) worker(
	ctx context.Context,
	wg *sync.WaitGroup,
	input pipeline.PreviewInput,
	jobs <-chan int,
	results chan<- indexedFrame,
	errChan chan<- error,
) {
	defer wg.Done()

	for idx := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := s.render(input, idx)
		if err != nil {
			select {
			case errChan <- fmt.Errorf("render frame %d: %w", idx+1, err):
			default:
			}
			return
		}
		results <- indexedFrame{index: idx, frame: frame}
	}
}

func (s *Stage) render(input pipeline.PreviewInput, idx int) (pipeline.RenderedFrame, error) {
	f := input.Frames[idx]

	img := f.Image
	if img == nil {
		decoded, err := s.renderer.DecodeImage(f.Data, f.Format)
		if err != nil {
			return pipeline.RenderedFrame{}, fmt.Errorf("decode %s: %w", f.Key, err)
		}
		img = decoded
	}

	scale := 1.0
	if b := img.Bounds(); input.MaxWidth > 0 && b.Dx() > input.MaxWidth {
		scale = float64(input.MaxWidth) / float64(b.Dx())
		img = s.renderer.ResizeImage(img, input.MaxWidth, int(float64(b.Dy())*scale))
	}

	canvas := s.renderer.CreateCanvas(img)

	if anno, ok := input.Annotations[f.Key]; ok {
		for _, d := range anno.Detections {
			drawBox(canvas, d.Box, scale, truthColor, 2)
		}
	}
	for _, d := range input.Detections[f.Key] {
		if d.Score < input.ScoreMin {
			continue
		}
		drawBox(canvas, d.Box, scale, detectionColor, 1)
	}

	counter := fmt.Sprintf("%d/%d", idx+1, len(input.Frames))
	if input.TotalFrames > 0 {
		counter = fmt.Sprintf("%d/%d", f.Key.Frame, input.TotalFrames)
	}
	style := ports.TextStyle{FontSize: 14, Color: counterColor, Align: ports.AlignLeft}
	_, h := canvas.MeasureText(counter, style)
	canvas.DrawText(counter, 10, 10+int(h/2), style)

	return pipeline.RenderedFrame{
		Key:         f.Key,
		Image:       canvas.ToImage(),
		TimestampMs: int(f.TimestampMs),
	}, nil
}

func drawBox(canvas ports.Canvas, b pipeline.Box, scale float64, c color.Color, width float64) {
	r := image.Rect(
		int(b.X*scale),
		int(b.Y*scale),
		int((b.X+b.W)*scale),
		int((b.Y+b.H)*scale),
	)
	canvas.DrawRectStroke(r.Min.X, r.Min.Y, r.Dx(), r.Dy(), c, width)
}

func (s *Stage) saveDebug(f pipeline.RenderedFrame) {
	data, err := s.renderer.EncodeImage(f.Image, ports.FormatPNG, 0)
	if err != nil {
		s.logger.Warn("Failed to save debug output: %s", err.Error())
		return
	}
	name := fmt.Sprintf("preview_%s_%s_%06d.png", f.Key.Camera, f.Key.Sequence, f.Key.Frame)
	if err := s.sink.SaveFrame(name, data); err != nil {
		s.logger.Warn("Failed to save debug output: %s", err.Error())
	}
}
