// Package synth writes small synthetic Caltech sets: a .seq video of moving
// boxes and the matching .vbb annotations.
package synth

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"
	"time"

	"github.com/user/pedvoc/pkg/adapters/seqreader"
	"github.com/user/pedvoc/pkg/orchestrator"
	"github.com/user/pedvoc/pkg/pipeline"
	"github.com/user/pedvoc/pkg/ports"
	"github.com/user/pedvoc/pkg/vbb"
)

// Labels of the synthetic objects. Object ids are indexes into Labels plus one.
var Labels = []string{"person", "people", "person"}

// Options configures the generated data.
type Options struct {
	Sets      []int
	Sequences int // Per set
	Frames    int // Per sequence
	Width     int
	Height    int
	FPS       float64
	Quality   int
}

// DefaultOptions returns options for a quick smoke test dataset.
func DefaultOptions() Options {
	return Options{
		Sets:      []int{0, 5, 6},
		Sequences: 1,
		Frames:    60,
		Width:     160,
		Height:    120,
		FPS:       30,
		Quality:   90,
	}
}

// Result lists what was written.
type Result struct {
	Files        []string
	Sequences    int
	Frames       int
	PersonFrames int
}

// Generator renders and stores synthetic sequences.
type Generator struct {
	renderer ports.Renderer
	fs       ports.FileSystem
	logger   ports.Logger
}

// New creates a Generator.
func New(renderer ports.Renderer, fs ports.FileSystem, logger ports.Logger) *Generator {
	return &Generator{
		renderer: renderer,
		fs:       fs,
		logger:   logger.WithComponent("synth"),
	}
}

// Generate writes setXX/VNNN.seq and annotations/setXX/VNNN.vbb under root.
func (g *Generator) Generate(ctx context.Context, root string, opts Options) (Result, error) {
	var result Result
	if opts.Frames <= 0 || opts.Width <= 0 || opts.Height <= 0 {
		return result, fmt.Errorf("synth: invalid size %dx%d with %d frames", opts.Width, opts.Height, opts.Frames)
	}
	if opts.Sequences <= 0 {
		opts.Sequences = 1
	}

	for _, n := range opts.Sets {
		paths := orchestrator.SetPaths(root, n)
		for v := 0; v < opts.Sequences; v++ {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			name := fmt.Sprintf("V%03d", v)
			seq := Sequence(name, opts.Frames, opts.Width, opts.Height)

			vbbPath := filepath.Join(paths.AnnotationDir, name+".vbb")
			var anno bytes.Buffer
			if err := vbb.Encode(&anno, seq); err != nil {
				return result, fmt.Errorf("encode %s: %w", vbbPath, err)
			}
			if err := g.fs.WriteFile(vbbPath, anno.Bytes()); err != nil {
				return result, err
			}

			seqPath := filepath.Join(paths.VideoDir, name+".seq")
			video, err := g.video(seq, opts)
			if err != nil {
				return result, fmt.Errorf("render %s: %w", seqPath, err)
			}
			if err := g.fs.WriteFile(seqPath, video); err != nil {
				return result, err
			}

			result.Files = append(result.Files, vbbPath, seqPath)
			result.Sequences++
			result.Frames += opts.Frames
			result.PersonFrames += len(seq.Annotations(orchestrator.SetName(n)))
			g.logger.Debug("Wrote %s and %s", vbbPath, seqPath)
		}
	}
	return result, nil
}

// Sequence builds the object table of a synthetic sequence. Object 1 (person)
// walks left to right from frame 6 on, object 2 (people) stands still over the
// whole video and object 3 (person) is visible in the second half.
func Sequence(name string, frames, width, height int) *vbb.Sequence {
	seq := &vbb.Sequence{
		Name:   name,
		NFrame: frames,
		Labels: append([]string(nil), Labels...),
		Frames: make([][]vbb.Instance, frames),
	}

	w, h := float64(width)/8, float64(height)/3
	for i := range seq.Frames {
		var objs []vbb.Instance
		if i >= 5 {
			x := float64(width-int(w)) * float64(i) / float64(frames)
			objs = append(objs, vbb.Instance{ID: 1, Pos: pipeline.Box{X: x, Y: float64(height) / 2, W: w, H: h}})
		}
		objs = append(objs, vbb.Instance{ID: 2, Pos: pipeline.Box{X: 2, Y: 2, W: w, H: h / 2}})
		if i >= frames/2 {
			objs = append(objs, vbb.Instance{
				ID:        3,
				Pos:       pipeline.Box{X: float64(width) - w - 4, Y: 4, W: w, H: h},
				Occlusion: 1,
			})
		}
		seq.Frames[i] = objs
	}
	return seq
}

var (
	background = color.RGBA{R: 96, G: 110, B: 96, A: 255}
	personFill = color.RGBA{R: 40, G: 40, B: 70, A: 255}
	groupFill  = color.RGBA{R: 150, G: 120, B: 60, A: 255}
)

func (g *Generator) video(seq *vbb.Sequence, opts Options) ([]byte, error) {
	frames := make([][]byte, len(seq.Frames))
	for i, objs := range seq.Frames {
		bg := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
		draw.Draw(bg, bg.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
		canvas := g.renderer.CreateCanvas(bg)
		for _, obj := range objs {
			fill := personFill
			if label, _ := seq.Label(obj.ID); label != pipeline.PersonLabel {
				fill = groupFill
			}
			b := obj.Pos.Corners()
			canvas.DrawRect(b.X1, b.Y1, b.X2-b.X1, b.Y2-b.Y1, fill)
		}
		data, err := g.renderer.EncodeImage(canvas.ToImage(), ports.FormatJPEG, opts.Quality)
		if err != nil {
			return nil, err
		}
		frames[i] = data
	}

	var buf bytes.Buffer
	err := seqreader.Encode(&buf, opts.Width, opts.Height, frames, seqreader.WriteOptions{
		FPS:         opts.FPS,
		Description: "pedvoc synthetic sequence " + seq.Name,
		Start:       time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
