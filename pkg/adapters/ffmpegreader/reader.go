// Package ffmpegreader reads frames sequentially from any video ffmpeg can decode.
// ffmpeg streams every frame as a PNG image over its stdout.
package ffmpegreader

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/user/pedvoc/pkg/adapters/h264encoder"
	"github.com/user/pedvoc/pkg/adapters/mp4probe"
	"github.com/user/pedvoc/pkg/ports"
)

var (
	// ErrDecodeFailed is returned when ffmpeg exits with an error.
	ErrDecodeFailed = errors.New("ffmpegreader: decoding failed")

	// ErrBadStream is returned when the ffmpeg output is not a PNG stream.
	ErrBadStream = errors.New("ffmpegreader: malformed png stream")
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// maxChunk bounds a single PNG chunk so a corrupt length cannot exhaust memory.
const maxChunk = 256 << 20

// Options configures the reader.
type Options struct {
	// FFmpegPath is an optional custom path to the ffmpeg binary.
	FFmpegPath string
}

// Reader implements ports.FrameReader on top of an ffmpeg process.
type Reader struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	r      *bufio.Reader
	stderr bytes.Buffer

	info    ports.VideoInfo
	pending []byte // first frame, read ahead to learn the dimensions
	frame   int
	done    bool
	closed  bool
}

// Open starts ffmpeg for path with default options.
func Open(path string) (*Reader, error) {
	return OpenWithOptions(path, Options{})
}

// OpenFrameReader is a ports.FrameReaderOpener.
func OpenFrameReader(path string) (ports.FrameReader, error) {
	return Open(path)
}

// OpenWithOptions starts ffmpeg for path.
func OpenWithOptions(path string, opts Options) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}

	ffmpegPath := opts.FFmpegPath
	if ffmpegPath == "" {
		p, err := h264encoder.FindFFmpeg()
		if err != nil {
			return nil, err
		}
		ffmpegPath = p
	}

	r := &Reader{}
	if isMP4Path(path) {
		if info, err := mp4probe.ProbeFile(path); err == nil {
			r.info = info.VideoInfo()
		}
	}

	r.cmd = exec.Command(ffmpegPath,
		"-nostdin",
		"-v", "error",
		"-i", path,
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	r.cmd.Stderr = &r.stderr

	stdout, err := r.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("get stdout pipe: %w", err)
	}
	r.stdout = stdout
	r.r = bufio.NewReaderSize(stdout, 1<<20)

	if err := r.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	if r.info.Width == 0 || r.info.Height == 0 {
		if err := r.peekInfo(); err != nil {
			r.Close()
			return nil, err
		}
	}
	return r, nil
}

func isMP4Path(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v", ".mov":
		return true
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	header := make([]byte, 8)
	if _, err := io.ReadFull(f, header); err != nil {
		return false
	}
	return mp4probe.IsMP4(header)
}

// peekInfo reads the first frame ahead to take the size from its IHDR chunk.
func (r *Reader) peekInfo() error {
	data, err := readPNG(r.r, true)
	if err == io.EOF {
		if werr := r.wait(); werr != nil {
			return werr
		}
		return nil
	}
	if err != nil {
		return err
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadStream, err)
	}
	r.info.Width = cfg.Width
	r.info.Height = cfg.Height
	if r.info.Codec == "" {
		r.info.Codec = "png"
	}
	r.pending = data
	return nil
}

// Info returns what is known about the stream. FrameCount and FPS are only
// set for MP4 inputs.
func (r *Reader) Info() ports.VideoInfo {
	return r.info
}

// Next decodes the next frame.
func (r *Reader) Next() (ports.RawFrame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := r.read(true)
	if err != nil {
		return ports.RawFrame{}, err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return ports.RawFrame{}, fmt.Errorf("%w: frame %d: %v", ErrBadStream, r.frame, err)
	}
	return ports.RawFrame{
		Image:       img,
		Data:        data,
		Format:      ports.FormatPNG,
		TimestampMs: r.timestampMs(r.frame - 1),
	}, nil
}

// Skip walks past the next frame's chunks without decoding them.
func (r *Reader) Skip() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.read(false)
	return err
}

func (r *Reader) read(keep bool) ([]byte, error) {
	if r.closed {
		return nil, os.ErrClosed
	}
	if r.pending != nil {
		data := r.pending
		r.pending = nil
		r.frame++
		return data, nil
	}
	if r.done {
		return nil, io.EOF
	}

	data, err := readPNG(r.r, keep)
	if err == io.EOF {
		if werr := r.wait(); werr != nil {
			return nil, werr
		}
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	r.frame++
	return data, nil
}

func (r *Reader) wait() error {
	r.done = true
	if err := r.cmd.Wait(); err != nil {
		return fmt.Errorf("%w: %v: %s", ErrDecodeFailed, err, strings.TrimSpace(r.stderr.String()))
	}
	return nil
}

func (r *Reader) timestampMs(index int) int64 {
	if r.info.FPS <= 0 {
		return 0
	}
	return int64(float64(index) * 1000 / r.info.FPS)
}

// Close stops ffmpeg if it is still running.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.pending = nil
	if r.done {
		return nil
	}
	r.done = true
	if r.cmd.Process != nil {
		r.cmd.Process.Kill()
	}
	r.stdout.Close()
	r.cmd.Wait()
	return nil
}

// readPNG reads one PNG image from r. With keep false the bytes are discarded
// and nil is returned. A clean end of stream before the signature yields io.EOF.
func readPNG(r *bufio.Reader, keep bool) ([]byte, error) {
	sig := make([]byte, len(pngSignature))
	n, err := io.ReadFull(r, sig)
	if n == 0 && (err == io.EOF || err == io.ErrUnexpectedEOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrBadStream, err)
	}
	if !bytes.Equal(sig, pngSignature) {
		return nil, fmt.Errorf("%w: bad signature", ErrBadStream)
	}

	var buf *bytes.Buffer
	var w io.Writer = io.Discard
	if keep {
		buf = bytes.NewBuffer(append([]byte(nil), sig...))
		w = buf
	}

	head := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, head); err != nil {
			return nil, fmt.Errorf("%w: chunk header: %v", ErrBadStream, err)
		}
		length := binary.BigEndian.Uint32(head[:4])
		if length > maxChunk {
			return nil, fmt.Errorf("%w: chunk of %d bytes", ErrBadStream, length)
		}
		w.Write(head)
		// Chunk data followed by its CRC.
		if _, err := io.CopyN(w, r, int64(length)+4); err != nil {
			return nil, fmt.Errorf("%w: chunk %q: %v", ErrBadStream, head[4:8], err)
		}
		if string(head[4:8]) == "IEND" {
			break
		}
	}

	if !keep {
		return nil, nil
	}
	return buf.Bytes(), nil
}

var _ ports.FrameReader = (*Reader)(nil)
