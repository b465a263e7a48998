// Package seqreader reads Norpix StreamPix .seq video files, the container used by
// the Caltech Pedestrian dataset.
//
// A .seq file is a 1024-byte header followed by frames. Compressed frames (JPEG or
// PNG) are stored as a 4-byte size, the image payload and an 8-byte timestamp; raw
// frames occupy fixed-size slots. The format has no frame index, so frames are read
// strictly in order.
package seqreader

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"unicode/utf16"

	"github.com/user/pedvoc/pkg/ports"
)

var (
	// ErrNotSeq is returned when the input does not start with a Norpix header.
	ErrNotSeq = errors.New("seqreader: not a Norpix seq file")

	// ErrUnsupportedFormat is returned for image formats this package cannot decode.
	ErrUnsupportedFormat = errors.New("seqreader: unsupported image format")

	// ErrTruncated is returned when a frame ends before its declared size.
	ErrTruncated = errors.New("seqreader: truncated frame")
)

const (
	// Magic is the first word of every .seq file.
	Magic = 0xFEED

	// HeaderSize is the size of the fixed header.
	HeaderSize = 1024

	timestampLen = 8
	maxResync    = 16
	maxFrameSize = 64 << 20
)

// Image formats stored in the header.
const (
	FormatMono      = 100 // Uncompressed, bit depth given by BitDepth
	FormatBGR       = 101 // Uncompressed BGR
	FormatJPEG      = 102
	FormatRawColor  = 200
	FormatJPEGColor = 201
	FormatPNGMono   = 1
	FormatPNGColor  = 2
)

// Header is the decoded .seq header.
type Header struct {
	Version       int
	HeaderSize    int
	Description   string
	Width         int
	Height        int
	BitDepth      int
	BitDepthReal  int
	SizeBytes     int // Bytes of one uncompressed image
	ImageFormat   int
	NumFrames     int
	TrueImageSize int // Size of one raw frame slot including its timestamp
	FPS           float64
}

// Compressed reports whether frames are stored with a size prefix.
func (h Header) Compressed() bool {
	switch h.ImageFormat {
	case FormatJPEG, FormatJPEGColor, FormatPNGMono, FormatPNGColor:
		return true
	default:
		return false
	}
}

// FormatName returns a short name of the image format.
func (h Header) FormatName() string {
	switch h.ImageFormat {
	case FormatJPEG, FormatJPEGColor:
		return "jpeg"
	case FormatPNGMono, FormatPNGColor:
		return "png"
	case FormatBGR:
		return "bgr"
	case FormatMono, FormatRawColor:
		return "raw"
	default:
		return "unknown"
	}
}

func (h Header) payloadFormat() ports.ImageFormat {
	switch h.ImageFormat {
	case FormatJPEG, FormatJPEGColor:
		return ports.FormatJPEG
	case FormatPNGMono, FormatPNGColor:
		return ports.FormatPNG
	default:
		return ports.FormatRaw
	}
}

// ParseHeader decodes the fixed 1024-byte header.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header is %d bytes", ErrNotSeq, len(buf))
	}
	le := binary.LittleEndian
	if le.Uint32(buf[0:]) != Magic {
		return Header{}, fmt.Errorf("%w: bad magic %#x", ErrNotSeq, le.Uint32(buf[0:]))
	}

	h := Header{
		Version:       int(le.Uint32(buf[28:])),
		HeaderSize:    int(le.Uint32(buf[32:])),
		Description:   decodeUTF16(buf[36:548]),
		Width:         int(le.Uint32(buf[548:])),
		Height:        int(le.Uint32(buf[552:])),
		BitDepth:      int(le.Uint32(buf[556:])),
		BitDepthReal:  int(le.Uint32(buf[560:])),
		SizeBytes:     int(le.Uint32(buf[564:])),
		ImageFormat:   int(le.Uint32(buf[568:])),
		NumFrames:     int(le.Uint32(buf[572:])),
		TrueImageSize: int(le.Uint32(buf[580:])),
		FPS:           math.Float64frombits(le.Uint64(buf[584:])),
	}
	if h.HeaderSize < HeaderSize {
		h.HeaderSize = HeaderSize
	}
	return h, nil
}

// Reader reads frames of one .seq stream. It implements ports.FrameReader.
type Reader struct {
	r      *bufio.Reader
	closer io.Closer
	header Header
	index  int // Frames consumed so far

	firstStamp int64
	haveStamp  bool
}

// Open opens the .seq file at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seq file: %w", err)
	}

	rd, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rd.closer = f
	return rd, nil
}

// OpenFrameReader opens path as a ports.FrameReader.
func OpenFrameReader(path string) (ports.FrameReader, error) {
	return Open(path)
}

// NewReader reads the header from r and returns a reader positioned at frame 1.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReaderSize(r, 1<<16)

	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(br, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: short header", ErrNotSeq)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	h, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.HeaderSize > HeaderSize {
		if _, err := br.Discard(h.HeaderSize - HeaderSize); err != nil {
			return nil, fmt.Errorf("%w: short header", ErrNotSeq)
		}
	}

	switch h.ImageFormat {
	case FormatJPEG, FormatJPEGColor, FormatPNGMono, FormatPNGColor:
	case FormatMono, FormatBGR, FormatRawColor:
		if h.TrueImageSize < h.SizeBytes || h.SizeBytes <= 0 {
			return nil, fmt.Errorf("%w: raw frames of %d bytes in %d byte slots", ErrUnsupportedFormat, h.SizeBytes, h.TrueImageSize)
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, h.ImageFormat)
	}

	return &Reader{r: br, header: h}, nil
}

// Header returns the decoded file header.
func (r *Reader) Header() Header {
	return r.header
}

// Info returns the stream properties recorded in the header.
func (r *Reader) Info() ports.VideoInfo {
	return ports.VideoInfo{
		Width:      r.header.Width,
		Height:     r.header.Height,
		FrameCount: r.header.NumFrames,
		FPS:        r.header.FPS,
		Codec:      r.header.FormatName(),
	}
}

// Next reads and decodes the next frame.
func (r *Reader) Next() (ports.RawFrame, error) {
	data, stamp, err := r.read()
	if err != nil {
		return ports.RawFrame{}, err
	}

	img, err := r.decode(data)
	if err != nil {
		return ports.RawFrame{}, fmt.Errorf("decode frame %d: %w", r.index, err)
	}

	return ports.RawFrame{
		Image:       img,
		Data:        data,
		Format:      r.header.payloadFormat(),
		TimestampMs: stamp,
	}, nil
}

// Skip reads past the next frame without decoding its pixels.
func (r *Reader) Skip() error {
	_, _, err := r.read()
	return err
}

// Close closes the underlying file when the reader was created by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// read returns the payload and relative timestamp of the next frame.
func (r *Reader) read() ([]byte, int64, error) {
	if r.header.NumFrames > 0 && r.index >= r.header.NumFrames {
		return nil, 0, io.EOF
	}

	var (
		data  []byte
		stamp []byte
		err   error
	)
	if r.header.Compressed() {
		data, stamp, err = r.readCompressed()
	} else {
		data, stamp, err = r.readRaw()
	}
	if err != nil {
		return nil, 0, err
	}
	r.index++

	return data, r.relativeMs(stamp), nil
}

func (r *Reader) readCompressed() ([]byte, []byte, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r.r, sizeBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, io.EOF
		}
		return nil, nil, fmt.Errorf("%w: frame %d size: %v", ErrTruncated, r.index+1, err)
	}

	size := int(binary.LittleEndian.Uint32(sizeBuf[:]))
	if size <= 4 || size > maxFrameSize {
		return nil, nil, fmt.Errorf("%w: frame %d declares %d bytes", ErrTruncated, r.index+1, size)
	}

	data := make([]byte, size-4)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return nil, nil, fmt.Errorf("%w: frame %d payload: %v", ErrTruncated, r.index+1, err)
	}

	// The last frame may end without its timestamp.
	stamp := make([]byte, timestampLen)
	if n, err := io.ReadFull(r.r, stamp); err != nil {
		if n == 0 {
			return data, nil, nil
		}
		return nil, nil, fmt.Errorf("%w: frame %d timestamp: %v", ErrTruncated, r.index+1, err)
	}

	r.resync()
	return data, stamp, nil
}

// resync skips stray bytes some writers leave between a timestamp and the next
// size field, by looking for the JPEG start marker of the next payload.
func (r *Reader) resync() {
	if r.header.payloadFormat() != ports.FormatJPEG {
		return
	}
	peek, _ := r.r.Peek(4 + 2 + maxResync)
	if len(peek) < 6 || isSOI(peek[4:]) {
		return
	}
	for k := 1; k+6 <= len(peek); k++ {
		if isSOI(peek[k+4:]) {
			r.r.Discard(k)
			return
		}
	}
}

func isSOI(b []byte) bool {
	return len(b) >= 2 && b[0] == 0xFF && b[1] == 0xD8
}

func (r *Reader) readRaw() ([]byte, []byte, error) {
	slot := make([]byte, r.header.TrueImageSize)
	n, err := io.ReadFull(r.r, slot)
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, nil, io.EOF
		}
		if n < r.header.SizeBytes {
			return nil, nil, fmt.Errorf("%w: frame %d has %d of %d bytes", ErrTruncated, r.index+1, n, r.header.SizeBytes)
		}
	}

	data := slot[:r.header.SizeBytes]
	var stamp []byte
	if n >= r.header.SizeBytes+timestampLen {
		stamp = slot[r.header.SizeBytes : r.header.SizeBytes+timestampLen]
	}
	return data, stamp, nil
}

// relativeMs converts a timestamp to milliseconds since the first frame.
func (r *Reader) relativeMs(stamp []byte) int64 {
	if len(stamp) < timestampLen {
		if r.header.FPS > 0 {
			return int64(float64(r.index-1) * 1000 / r.header.FPS)
		}
		return 0
	}

	le := binary.LittleEndian
	sec := int64(le.Uint32(stamp[0:]))
	ms := int64(le.Uint16(stamp[4:]))
	us := int64(le.Uint16(stamp[6:]))
	abs := sec*1000 + ms + us/1000

	if !r.haveStamp {
		r.firstStamp = abs
		r.haveStamp = true
	}
	return abs - r.firstStamp
}

func (r *Reader) decode(data []byte) (image.Image, error) {
	h := r.header
	switch h.ImageFormat {
	case FormatJPEG, FormatJPEGColor:
		return jpeg.Decode(bytes.NewReader(data))
	case FormatPNGMono, FormatPNGColor:
		return png.Decode(bytes.NewReader(data))
	case FormatBGR:
		return decodeBGR(data, h.Width, h.Height)
	case FormatMono, FormatRawColor:
		switch h.BitDepth {
		case 8:
			return decodeGray(data, h.Width, h.Height)
		case 24:
			return decodeBGR(data, h.Width, h.Height)
		}
		return nil, fmt.Errorf("%w: raw bit depth %d", ErrUnsupportedFormat, h.BitDepth)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, h.ImageFormat)
}

func decodeGray(data []byte, w, h int) (image.Image, error) {
	if len(data) < w*h {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d gray", ErrTruncated, len(data), w, h)
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	copy(img.Pix, data[:w*h])
	return img, nil
}

func decodeBGR(data []byte, w, h int) (image.Image, error) {
	if len(data) < w*h*3 {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d BGR", ErrTruncated, len(data), w, h)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			img.SetRGBA(x, y, color.RGBA{R: data[i+2], G: data[i+1], B: data[i], A: 255})
		}
	}
	return img, nil
}

func decodeUTF16(b []byte) string {
	codes := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		c := binary.LittleEndian.Uint16(b[i:])
		if c == 0 {
			break
		}
		codes = append(codes, c)
	}
	return string(utf16.Decode(codes))
}
