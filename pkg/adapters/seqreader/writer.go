package seqreader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"
	"unicode/utf16"
)

// WriteOptions configures .seq output.
type WriteOptions struct {
	FPS         float64
	Description string
	Start       time.Time // Timestamp of the first frame
}

// Encode writes JPEG payloads as a .seq stream. All frames must share the given
// dimensions; they are not decoded.
func Encode(w io.Writer, width, height int, frames [][]byte, opts WriteOptions) error {
	fps := opts.FPS
	if fps <= 0 {
		fps = 30
	}

	h := Header{
		Version:       3,
		HeaderSize:    HeaderSize,
		Description:   opts.Description,
		Width:         width,
		Height:        height,
		BitDepth:      24,
		BitDepthReal:  8,
		SizeBytes:     width * height * 3,
		ImageFormat:   FormatJPEGColor,
		NumFrames:     len(frames),
		TrueImageSize: width*height*3 + timestampLen,
		FPS:           fps,
	}
	if _, err := w.Write(h.marshal()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	start := opts.Start
	if start.IsZero() {
		start = time.Unix(0, 0)
	}
	step := time.Duration(float64(time.Second) / fps)

	for i, data := range frames {
		var buf bytes.Buffer
		binary.Write(&buf, binary.LittleEndian, uint32(len(data)+4))
		buf.Write(data)

		t := start.Add(time.Duration(i) * step)
		binary.Write(&buf, binary.LittleEndian, uint32(t.Unix()))
		binary.Write(&buf, binary.LittleEndian, uint16(t.Nanosecond()/int(time.Millisecond)))
		binary.Write(&buf, binary.LittleEndian, uint16(t.Nanosecond()/int(time.Microsecond)%1000))

		if _, err := w.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("write frame %d: %w", i+1, err)
		}
	}
	return nil
}

// EncodeImages JPEG-encodes imgs and writes them as a .seq stream.
func EncodeImages(w io.Writer, imgs []image.Image, quality int, opts WriteOptions) error {
	if len(imgs) == 0 {
		return fmt.Errorf("no frames to write")
	}
	b := imgs[0].Bounds()

	frames := make([][]byte, len(imgs))
	for i, img := range imgs {
		if img.Bounds().Dx() != b.Dx() || img.Bounds().Dy() != b.Dy() {
			return fmt.Errorf("frame %d is %dx%d, want %dx%d", i+1, img.Bounds().Dx(), img.Bounds().Dy(), b.Dx(), b.Dy())
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return fmt.Errorf("encode frame %d: %w", i+1, err)
		}
		frames[i] = buf.Bytes()
	}
	return Encode(w, b.Dx(), b.Dy(), frames, opts)
}

// WriteFile writes imgs as a .seq file at path, creating parent directories.
func WriteFile(path string, imgs []image.Image, quality int, opts WriteOptions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create seq directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create seq file: %w", err)
	}
	if err := EncodeImages(f, imgs, quality, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (h Header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	le := binary.LittleEndian

	le.PutUint32(buf[0:], Magic)
	for i, c := range utf16.Encode([]rune("Norpix seq")) {
		le.PutUint16(buf[4+2*i:], c)
	}
	le.PutUint32(buf[28:], uint32(h.Version))
	le.PutUint32(buf[32:], uint32(h.HeaderSize))

	desc := utf16.Encode([]rune(h.Description))
	for i := 0; i < len(desc) && i < 255; i++ {
		le.PutUint16(buf[36+2*i:], desc[i])
	}

	le.PutUint32(buf[548:], uint32(h.Width))
	le.PutUint32(buf[552:], uint32(h.Height))
	le.PutUint32(buf[556:], uint32(h.BitDepth))
	le.PutUint32(buf[560:], uint32(h.BitDepthReal))
	le.PutUint32(buf[564:], uint32(h.SizeBytes))
	le.PutUint32(buf[568:], uint32(h.ImageFormat))
	le.PutUint32(buf[572:], uint32(h.NumFrames))
	le.PutUint32(buf[580:], uint32(h.TrueImageSize))
	le.PutUint64(buf[584:], math.Float64bits(h.FPS))
	return buf
}
