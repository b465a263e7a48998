// Package extract implements the stage that decodes one annotation/video pair
// and writes the selected frames as JPEG files.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/user/pedvoc/pkg/pipeline"
	"github.com/user/pedvoc/pkg/ports"
	"github.com/user/pedvoc/pkg/sampler"
	"github.com/user/pedvoc/pkg/vbb"
)

// DefaultJPEGQuality is used when frames must be re-encoded.
const DefaultJPEGQuality = 95

// Stage decodes annotations and extracts frames.
type Stage struct {
	fs       ports.FileSystem
	open     ports.FrameReaderOpener
	renderer ports.Renderer
	sink     ports.DebugSink
	logger   ports.Logger
	quality  int
}

// NewStage creates a new extract stage.
func NewStage(fs ports.FileSystem, open ports.FrameReaderOpener, renderer ports.Renderer, sink ports.DebugSink, logger ports.Logger) *Stage {
	return &Stage{
		fs:       fs,
		open:     open,
		renderer: renderer,
		sink:     sink,
		logger:   logger.WithComponent("extract"),
		quality:  DefaultJPEGQuality,
	}
}

// Execute decodes input.VBBPath and, when input.SeqPath is set, writes the
// selected frames of the video to input.FrameDir as {key}.jpg.
//
// Without AllFrames only annotated frames are written and a sequence without
// person frames does not open its video. A truncated video is not an error:
// the frames read so far are kept and result.DecodeErr is set.
func (s *Stage) Execute(ctx context.Context, input pipeline.ExtractInput) (pipeline.ExtractResult, error) {
	result := pipeline.ExtractResult{Sequence: pipeline.Stem(input.VBBPath)}

	s.logger.Debug("Decoding annotations %s", input.VBBPath)
	annos, err := vbb.DecodeFile(input.VBBPath, input.Camera)
	if err != nil {
		return result, err
	}
	result.Annotations = annos
	result.PersonFrames = len(annos)

	if s.sink.Enabled() {
		if err := s.saveAnnotations(input.Camera, result.Sequence, annos); err != nil {
			s.logger.Warn("Failed to save debug output: %s", err.Error())
		}
	}

	if input.SeqPath == "" {
		return result, nil
	}
	if !input.AllFrames && len(annos) == 0 {
		s.logger.Warn("Sequence %s/%s has no person frames", input.Camera, result.Sequence)
		return result, nil
	}

	if err := s.fs.MkdirAll(input.FrameDir); err != nil {
		return result, fmt.Errorf("create frame directory: %w", err)
	}

	r, err := s.open(input.SeqPath)
	if err != nil {
		return result, fmt.Errorf("open video %s: %w", input.SeqPath, err)
	}
	defer r.Close()

	filter, every := s.selection(input, annos, r.Info())
	stem := pipeline.Stem(input.SeqPath)
	if stem != result.Sequence {
		s.logger.Warn("Video %s does not match annotation %s", stem, result.Sequence)
	}

	total, err := sampler.Each(ctx, r, input.Camera, result.Sequence, filter, func(f pipeline.Frame) error {
		if every > 1 && f.Key.Frame%every != 0 {
			return nil
		}
		if err := s.writeFrame(input.FrameDir, f); err != nil {
			return err
		}
		result.FramesSaved++
		return nil
	})
	result.FramesTotal = total

	var decodeErr *sampler.DecodeError
	switch {
	case errors.As(err, &decodeErr):
		s.logger.Warn("Sequence %s/%s truncated at frame %d: %s", input.Camera, result.Sequence, decodeErr.Frame, decodeErr.Err.Error())
		result.DecodeErr = err
	case err != nil:
		return result, err
	}

	s.logger.Debug("Sequence %s/%s: %d person frames, %d of %d frames saved",
		input.Camera, result.Sequence, result.PersonFrames, result.FramesSaved, result.FramesTotal)
	return result, nil
}

// selection returns the frame filter handed to the sampler and the stride
// checked in the callback when the filter cannot express it.
func (s *Stage) selection(input pipeline.ExtractInput, annos pipeline.Annotations, info ports.VideoInfo) (sampler.Filter, int) {
	if !input.AllFrames {
		return sampler.FilterFrom(annos), 0
	}
	if input.FrameEvery <= 1 {
		return nil, 0
	}
	if info.FrameCount > 0 {
		return sampler.Every(input.FrameEvery, info.FrameCount), 0
	}
	return nil, input.FrameEvery
}

// writeFrame stores JPEG payloads as read and re-encodes anything else.
func (s *Stage) writeFrame(dir string, f pipeline.Frame) error {
	data := f.Data
	if f.Format != ports.FormatJPEG || len(data) == 0 {
		encoded, err := s.renderer.EncodeImage(f.Image, ports.FormatJPEG, s.quality)
		if err != nil {
			return fmt.Errorf("encode frame %s: %w", f.Key, err)
		}
		data = encoded
	}

	path := filepath.Join(dir, f.Key.String())
	if err := s.fs.WriteFile(path, data); err != nil {
		return fmt.Errorf("write frame %s: %w", f.Key, err)
	}
	return nil
}

type jsonDetection struct {
	Box       [4]float64 `json:"pos"`
	Occlusion int        `json:"occl"`
}

type jsonAnnotation struct {
	Label      string          `json:"label"`
	Detections []jsonDetection `json:"detections"`
}

func (s *Stage) saveAnnotations(camera, sequence string, annos pipeline.Annotations) error {
	out := make(map[string]jsonAnnotation, len(annos))
	for k, a := range annos {
		ja := jsonAnnotation{Label: a.Label}
		for _, d := range a.Detections {
			ja.Detections = append(ja.Detections, jsonDetection{
				Box:       [4]float64{d.Box.X, d.Box.Y, d.Box.W, d.Box.H},
				Occlusion: d.Occlusion,
			})
		}
		out[k.String()] = ja
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return s.sink.SaveAnnotationsJSON(camera, sequence, data)
}
