// Package smartreader opens a frame reader by sniffing the video container.
//
// The selection flow:
//   - Norpix .seq (0xFEED magic or .seq extension): native seqreader
//   - anything else: ffmpegreader
package smartreader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/pedvoc/pkg/adapters/ffmpegreader"
	"github.com/user/pedvoc/pkg/adapters/mp4probe"
	"github.com/user/pedvoc/pkg/adapters/seqreader"
	"github.com/user/pedvoc/pkg/ports"
)

// Backend names the reader implementation chosen for a file.
type Backend string

const (
	// BackendSeq is the native Norpix seq reader.
	BackendSeq Backend = "seq"
	// BackendFFmpeg streams frames through an ffmpeg process.
	BackendFFmpeg Backend = "ffmpeg"
)

// ErrNoReaderAvailable is returned when the container needs ffmpeg and none is installed.
var ErrNoReaderAvailable = errors.New("smartreader: no reader available")

// Options configures the smart reader behavior.
type Options struct {
	// FFmpegPath is an optional custom path to the ffmpeg binary.
	FFmpegPath string
}

// Detect reports which backend would read path.
func Detect(path string) (Backend, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	header := make([]byte, 8)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read header: %w", err)
	}
	return detect(path, header[:n]), nil
}

func detect(path string, header []byte) Backend {
	if len(header) >= 4 && binary.LittleEndian.Uint32(header) == seqreader.Magic {
		return BackendSeq
	}
	if mp4probe.IsMP4(header) {
		return BackendFFmpeg
	}
	if strings.EqualFold(filepath.Ext(path), ".seq") {
		return BackendSeq
	}
	return BackendFFmpeg
}

// Open opens path with default options. It is a ports.FrameReaderOpener.
func Open(path string) (ports.FrameReader, error) {
	return OpenWithOptions(path, Options{})
}

// OpenWithOptions opens path with the backend Detect selects.
func OpenWithOptions(path string, opts Options) (ports.FrameReader, error) {
	backend, err := Detect(path)
	if err != nil {
		return nil, err
	}

	switch backend {
	case BackendSeq:
		return seqreader.Open(path)
	default:
		r, err := ffmpegreader.OpenWithOptions(path, ffmpegreader.Options{FFmpegPath: opts.FFmpegPath})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoReaderAvailable, err)
		}
		return r, nil
	}
}

// Opener returns a ports.FrameReaderOpener bound to opts.
func Opener(opts Options) ports.FrameReaderOpener {
	return func(path string) (ports.FrameReader, error) {
		return OpenWithOptions(path, opts)
	}
}

var _ ports.FrameReaderOpener = Open
