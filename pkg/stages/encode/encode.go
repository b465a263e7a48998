// Package encode implements the preview video encoding stage.
package encode

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/pedvoc/pkg/pipeline"
	"github.com/user/pedvoc/pkg/ports"
)

// ErrNoFrames is returned when there is nothing to encode.
var ErrNoFrames = errors.New("encode: no frames to encode")

// Stage encodes rendered preview frames into a video.
type Stage struct {
	encoder ports.VideoEncoder
	logger  ports.Logger
}

// NewStage creates a new encode stage.
func NewStage(encoder ports.VideoEncoder, logger ports.Logger) *Stage {
	return &Stage{
		encoder: encoder,
		logger:  logger.WithComponent("encode"),
	}
}

// Execute encodes all frames into a video. The first frame fixes the video size.
func (s *Stage) Execute(ctx context.Context, input pipeline.EncodeInput) (pipeline.EncodeResult, error) {
	result := pipeline.EncodeResult{}

	if len(input.Frames) == 0 {
		return result, ErrNoFrames
	}

	fps := input.FPS
	if fps <= 0 {
		fps = 30
	}

	bounds := input.Frames[0].Image.Bounds()
	opts := ports.EncoderOptions{
		Bitrate: input.Bitrate,
		Quality: input.Quality,
	}

	s.logger.Debug("Encoding %d frames at %.1f fps", len(input.Frames), fps)
	if err := s.encoder.Begin(bounds.Dx(), bounds.Dy(), fps, opts); err != nil {
		return result, fmt.Errorf("begin encoding: %w", err)
	}

	for _, frame := range input.Frames {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if err := s.encoder.EncodeFrame(frame.Image, frame.TimestampMs); err != nil {
			return result, fmt.Errorf("encode frame %s: %w", frame.Key, err)
		}
	}

	data, err := s.encoder.End()
	if err != nil {
		return result, fmt.Errorf("end encoding: %w", err)
	}

	// The last frame stays on screen for one frame interval.
	last := input.Frames[len(input.Frames)-1]
	result.VideoData = data
	result.DurationMs = last.TimestampMs + int(1000/fps)
	result.FileSize = int64(len(data))

	s.logger.Debug("Video encoded: %d bytes", result.FileSize)
	return result, nil
}
