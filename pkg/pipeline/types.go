package pipeline

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/user/pedvoc/pkg/ports"
)

// =============================================================================
// Frame Keys
// =============================================================================

// PersonLabel is the only object class kept by the annotation decoder.
const PersonLabel = "person"

// ErrInvalidFrameKey is returned when a file name cannot be parsed as a frame key.
var ErrInvalidFrameKey = errors.New("pipeline: invalid frame key")

// FrameKey identifies one frame across the whole dataset.
// Camera and Sequence come from directory and file naming; Frame is 1-based.
type FrameKey struct {
	Camera   string
	Sequence string
	Frame    int
}

// NewFrameKey builds the key for frame n of the sequence stored at path.
// The sequence id is the file name without directory and extension.
func NewFrameKey(camera, path string, n int) FrameKey {
	return FrameKey{
		Camera:   camera,
		Sequence: Stem(path),
		Frame:    n,
	}
}

// Stem returns the file name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// String renders the key as {camera}_{sequence}_{frame}.jpg.
func (k FrameKey) String() string {
	return fmt.Sprintf("%s_%s_%d.jpg", k.Camera, k.Sequence, k.Frame)
}

// Less orders keys by camera, sequence and frame number.
func (k FrameKey) Less(o FrameKey) bool {
	if k.Camera != o.Camera {
		return k.Camera < o.Camera
	}
	if k.Sequence != o.Sequence {
		return k.Sequence < o.Sequence
	}
	return k.Frame < o.Frame
}

// ParseFrameKey recovers a FrameKey from a rendered file name.
//
// The camera is the text before the first underscore and the frame number the
// digits after the last one; the sequence id is everything in between, so it may
// itself contain underscores. Camera ids cannot, and names with fewer than three
// components are rejected.
func ParseFrameKey(name string) (FrameKey, error) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	first := strings.Index(stem, "_")
	last := strings.LastIndex(stem, "_")
	if first <= 0 || last == first || last == len(stem)-1 {
		return FrameKey{}, fmt.Errorf("%w: %q", ErrInvalidFrameKey, name)
	}

	n, err := strconv.Atoi(stem[last+1:])
	if err != nil || n < 1 {
		return FrameKey{}, fmt.Errorf("%w: bad frame number in %q", ErrInvalidFrameKey, name)
	}

	return FrameKey{
		Camera:   stem[:first],
		Sequence: stem[first+1 : last],
		Frame:    n,
	}, nil
}

// SortKeys sorts keys in camera, sequence, frame order.
func SortKeys(keys []FrameKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

// =============================================================================
// Annotations
// =============================================================================

// Box is an axis-aligned box in (x, y, width, height) form, in pixels.
type Box struct {
	X float64
	Y float64
	W float64
	H float64
}

// BBox is a box in corner form (x1, y1, x2, y2), truncated to integers.
type BBox struct {
	X1 int
	Y1 int
	X2 int
	Y2 int
}

// Corners converts the box to corner form with x2 = x+w and y2 = y+h.
func (b Box) Corners() BBox {
	x, y := int(b.X), int(b.Y)
	return BBox{
		X1: x,
		Y1: y,
		X2: x + int(b.W),
		Y2: y + int(b.H),
	}
}

// Rect returns the box as an image.Rectangle.
func (b BBox) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Detection is one labelled object in one frame.
type Detection struct {
	Box       Box
	Occlusion int
}

// FrameAnnotation holds the person detections of one frame.
// Decoders never produce an entry with an empty Detections slice.
type FrameAnnotation struct {
	Label      string
	Detections []Detection
}

// BBoxes converts all detections to corner form, preserving order.
func (a FrameAnnotation) BBoxes() []BBox {
	boxes := make([]BBox, len(a.Detections))
	for i, d := range a.Detections {
		boxes[i] = d.Box.Corners()
	}
	return boxes
}

// Annotations maps frame keys to their annotation entries.
type Annotations map[FrameKey]FrameAnnotation

// Keys returns the sorted keys of the mapping.
func (a Annotations) Keys() []FrameKey {
	keys := make([]FrameKey, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	SortKeys(keys)
	return keys
}

// Merge copies all entries of other into a.
func (a Annotations) Merge(other Annotations) {
	for k, v := range other {
		a[k] = v
	}
}

// =============================================================================
// Frames
// =============================================================================

// Frame is one decoded video frame.
type Frame struct {
	Key         FrameKey
	Image       image.Image       // Decoded pixels
	Data        []byte            // Encoded payload as stored in the container (may be nil)
	Format      ports.ImageFormat // Format of Data
	TimestampMs int64
}

// FrameImages maps frame keys to decoded frames.
type FrameImages map[FrameKey]Frame

// Keys returns the sorted keys of the mapping.
func (f FrameImages) Keys() []FrameKey {
	keys := make([]FrameKey, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	SortKeys(keys)
	return keys
}

// =============================================================================
// Extract Stage Types
// =============================================================================

// ExtractInput describes one annotation/video pair to decode.
type ExtractInput struct {
	Camera     string // Camera (set) id, e.g. "set00"
	VBBPath    string
	SeqPath    string // Empty to decode annotations only
	FrameDir   string // Directory receiving {key}.jpg files
	AllFrames  bool   // Keep every frame instead of only annotated ones
	FrameEvery int    // With AllFrames, keep only frames whose number is a multiple of this
}

// ExtractResult reports what was decoded for one sequence.
type ExtractResult struct {
	Sequence     string
	Annotations  Annotations
	FramesTotal  int   // Frames advanced through in the video
	FramesSaved  int   // Frames written to FrameDir
	DecodeErr    error // Non-nil when the video was truncated by a decode failure
	PersonFrames int
}

// =============================================================================
// Export Stage Types
// =============================================================================

// Split names a VOC image set.
type Split string

const (
	SplitTrain Split = "train"
	SplitVal   Split = "val"
	SplitTest  Split = "test"
)

// ExportInput lists the extracted frames of one camera to write into the VOC tree.
type ExportInput struct {
	Camera      string
	FrameFiles  []string // Absolute paths of extracted {key}.jpg files
	Annotations Annotations
	Split       Split
	Annotate    bool // Write XML annotations and drop frames without boxes
	NextID      int  // First VOC image id to assign
}

// ExportResult lists the VOC ids written.
type ExportResult struct {
	IDs     []string
	Skipped int // Frames dropped because no valid box survived sanitizing
	NextID  int
}

// =============================================================================
// Preview Stage Types
// =============================================================================

// PreviewInput contains one sequence worth of frames to annotate visually.
type PreviewInput struct {
	Frames      []Frame // In frame order
	Annotations Annotations
	Detections  map[FrameKey][]ScoredBox
	ScoreMin    float64
	MaxWidth    int // Downscale wider frames to this width (0 keeps size)
	TotalFrames int // Counter denominator; the counter shows frame numbers when set
}

// ScoredBox is a detector output box with its confidence.
type ScoredBox struct {
	Box   Box
	Score float64
}

// PreviewResult contains the annotated frames.
type PreviewResult struct {
	Frames []RenderedFrame
}

// RenderedFrame is a frame with overlays drawn on it.
type RenderedFrame struct {
	Key         FrameKey
	Image       image.Image
	TimestampMs int
}

// =============================================================================
// Encode Stage Types
// =============================================================================

// EncodeInput contains frames to encode into a preview video.
type EncodeInput struct {
	Frames  []RenderedFrame
	FPS     float64
	Quality int
	Bitrate int
}

// EncodeResult contains the encoded video.
type EncodeResult struct {
	VideoData  []byte
	DurationMs int
	FileSize   int64
}
