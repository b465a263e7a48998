// Package sampler reads video frames in order and keys them the same way the
// annotation decoder does, optionally keeping only selected frame numbers.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/user/pedvoc/pkg/pipeline"
	"github.com/user/pedvoc/pkg/ports"
)

// DecodeError reports a read failure in the middle of a stream. Frames before
// Frame were decoded successfully.
type DecodeError struct {
	Frame int // 1-based number of the frame that failed
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("sampler: decode frame %d: %v", e.Frame, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Filter is a set of 1-based frame numbers. A nil or empty filter keeps every frame.
type Filter map[int]struct{}

// NewFilter builds a filter from frame numbers.
func NewFilter(frames ...int) Filter {
	f := make(Filter, len(frames))
	for _, n := range frames {
		f[n] = struct{}{}
	}
	return f
}

// FilterFrom builds a filter from the frame numbers of decoded annotations.
func FilterFrom(annos pipeline.Annotations) Filter {
	f := make(Filter, len(annos))
	for k := range annos {
		f[k.Frame] = struct{}{}
	}
	return f
}

// Every returns a filter keeping frames n, 2n, 3n ... up to total.
func Every(n, total int) Filter {
	f := make(Filter)
	if n <= 0 {
		return f
	}
	for i := n; i <= total; i += n {
		f[i] = struct{}{}
	}
	return f
}

// Contains reports whether frame n is kept.
func (f Filter) Contains(n int) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[n]
	return ok
}

// Frames returns the sorted frame numbers of the filter.
func (f Filter) Frames() []int {
	frames := make([]int, 0, len(f))
	for n := range f {
		frames = append(frames, n)
	}
	sort.Ints(frames)
	return frames
}

// Each reads every frame of r in order and calls fn for the frames the filter keeps.
// Frames outside the filter are skipped with r.Skip so numbering stays aligned.
// It returns the number of frames advanced through.
//
// A read failure stops the walk with a *DecodeError; an error from fn is returned
// as is.
func Each(ctx context.Context, r ports.FrameReader, camera, stem string, filter Filter, fn func(pipeline.Frame) error) (int, error) {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		default:
		}

		frameNum := n + 1
		if !filter.Contains(frameNum) {
			if err := r.Skip(); err != nil {
				if errors.Is(err, io.EOF) {
					return n, nil
				}
				return n, &DecodeError{Frame: frameNum, Err: err}
			}
			n = frameNum
			continue
		}

		raw, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, &DecodeError{Frame: frameNum, Err: err}
		}
		n = frameNum

		frame := pipeline.Frame{
			Key:         pipeline.FrameKey{Camera: camera, Sequence: stem, Frame: frameNum},
			Image:       raw.Image,
			Data:        raw.Data,
			Format:      raw.Format,
			TimestampMs: raw.TimestampMs,
		}
		if err := fn(frame); err != nil {
			return n, err
		}
	}
}

// Sample reads all frames of r into memory. stem is the sequence id (the video
// file name without extension).
//
// On a mid-stream failure the frames decoded so far are returned together with a
// *DecodeError.
func Sample(ctx context.Context, r ports.FrameReader, camera, stem string, filter Filter) (pipeline.FrameImages, error) {
	frames := make(pipeline.FrameImages)
	_, err := Each(ctx, r, camera, stem, filter, func(f pipeline.Frame) error {
		frames[f.Key] = f
		return nil
	})
	return frames, err
}

// SampleFile opens path with open, samples it and closes the reader.
func SampleFile(ctx context.Context, open ports.FrameReaderOpener, path, camera string, filter Filter) (pipeline.FrameImages, error) {
	r, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	defer r.Close()

	return Sample(ctx, r, camera, pipeline.Stem(path), filter)
}
