package ports

import (
	"image"
)

// VideoInfo describes a video stream. It is available before the first frame is read;
// fields the container does not record are zero.
type VideoInfo struct {
	Width      int
	Height     int
	FrameCount int
	FPS        float64
	Codec      string // Container-specific codec or image format name
}

// RawFrame is one frame read from a video stream.
type RawFrame struct {
	Image       image.Image // Decoded pixels
	Data        []byte      // Encoded payload as stored in the container (may be nil)
	Format      ImageFormat // Format of Data
	TimestampMs int64
}

// FrameReader reads frames from a video strictly in order.
//
// There is no seek: a caller that wants frame n must call Next or Skip for every
// frame before it. Both return io.EOF once the stream is exhausted; any other error
// means the stream cannot be read further.
type FrameReader interface {
	// Info returns the stream properties known up front.
	Info() VideoInfo

	// Next decodes and returns the next frame.
	Next() (RawFrame, error)

	// Skip advances past the next frame without returning it.
	Skip() error

	// Close releases the reader and any underlying file or process.
	Close() error
}

// FrameReaderOpener opens a FrameReader for a video file.
type FrameReaderOpener func(path string) (FrameReader, error)
