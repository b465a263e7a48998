package mocks

import (
	"image"
	"io"

	"github.com/user/pedvoc/pkg/ports"
)

// FrameReader is a mock implementation of ports.FrameReader serving a fixed number
// of solid frames. Frame n (1-based) has grey level n.
type FrameReader struct {
	VideoInfo ports.VideoInfo
	Frames    int

	// FailAt makes the read of that 1-based frame fail with FailErr.
	FailAt  int
	FailErr error

	NextFunc func(n int) (ports.RawFrame, error)

	// Recorded calls for verification
	NextCalls   []int
	SkipCalls   []int
	CloseCalled bool

	pos int
}

// NewFrameReader creates a mock reader with n frames of the given size.
func NewFrameReader(n, width, height int) *FrameReader {
	return &FrameReader{
		VideoInfo: ports.VideoInfo{Width: width, Height: height, FrameCount: n, FPS: 30, Codec: "mock"},
		Frames:    n,
	}
}

func (m *FrameReader) Info() ports.VideoInfo {
	return m.VideoInfo
}

func (m *FrameReader) Next() (ports.RawFrame, error) {
	n, err := m.advance()
	if err != nil {
		return ports.RawFrame{}, err
	}
	m.NextCalls = append(m.NextCalls, n)
	if m.NextFunc != nil {
		return m.NextFunc(n)
	}

	w, h := m.VideoInfo.Width, m.VideoInfo.Height
	if w == 0 || h == 0 {
		w, h = 4, 4
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(n)
	}
	return ports.RawFrame{
		Image:       img,
		Data:        []byte{uint8(n)},
		Format:      ports.FormatRaw,
		TimestampMs: int64((n - 1) * 1000 / 30),
	}, nil
}

func (m *FrameReader) Skip() error {
	n, err := m.advance()
	if err != nil {
		return err
	}
	m.SkipCalls = append(m.SkipCalls, n)
	return nil
}

func (m *FrameReader) Close() error {
	m.CloseCalled = true
	return nil
}

func (m *FrameReader) advance() (int, error) {
	n := m.pos + 1
	if m.FailAt > 0 && n == m.FailAt {
		err := m.FailErr
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}
	if n > m.Frames {
		return 0, io.EOF
	}
	m.pos = n
	return n, nil
}

// Opener returns a ports.FrameReaderOpener that always hands out m.
func (m *FrameReader) Opener() ports.FrameReaderOpener {
	return func(path string) (ports.FrameReader, error) {
		return m, nil
	}
}

var _ ports.FrameReader = (*FrameReader)(nil)
