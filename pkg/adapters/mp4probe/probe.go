// Package mp4probe reads video stream properties from MP4 containers without
// decoding any sample.
package mp4probe

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/pedvoc/pkg/ports"
)

// ErrNoVideoTrack is returned when the container holds no video track.
var ErrNoVideoTrack = errors.New("mp4probe: no video track found")

// Codec represents a video codec type.
type Codec string

const (
	CodecH264    Codec = "h264"
	CodecHEVC    Codec = "hevc"
	CodecAV1     Codec = "av1"
	CodecMJPEG   Codec = "mjpeg"
	CodecUnknown Codec = "unknown"
)

// Info describes the first video track of an MP4 file.
type Info struct {
	Codec      Codec
	Width      int
	Height     int
	FrameCount int
	Timescale  uint32
	Duration   uint64 // In Timescale units
	Fragmented bool
}

// FPS returns the average frame rate, or 0 when the duration is unknown.
func (i Info) FPS() float64 {
	if i.Duration == 0 || i.Timescale == 0 {
		return 0
	}
	return float64(i.FrameCount) * float64(i.Timescale) / float64(i.Duration)
}

// VideoInfo converts the probe result to ports.VideoInfo.
func (i Info) VideoInfo() ports.VideoInfo {
	return ports.VideoInfo{
		Width:      i.Width,
		Height:     i.Height,
		FrameCount: i.FrameCount,
		FPS:        i.FPS(),
		Codec:      string(i.Codec),
	}
}

// ProbeFile probes the MP4 file at path.
func ProbeFile(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return Probe(f)
}

// ProbeBytes probes in-memory MP4 data.
func ProbeBytes(data []byte) (Info, error) {
	return Probe(bytes.NewReader(data))
}

// Probe parses the box structure of r and describes its first video track.
// The reader position is reset to the start on success.
func Probe(r io.ReadSeeker) (Info, error) {
	mp4File, err := mp4.DecodeFile(r)
	if err != nil {
		return Info{}, fmt.Errorf("decode mp4: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return Info{}, fmt.Errorf("seek: %w", err)
	}

	if mp4File.IsFragmented() {
		return probeFragmented(mp4File)
	}
	return probeProgressive(mp4File)
}

func probeProgressive(f *mp4.File) (Info, error) {
	if f.Moov == nil {
		return Info{}, ErrNoVideoTrack
	}
	trak := videoTrack(f.Moov.Traks)
	if trak == nil {
		return Info{}, ErrNoVideoTrack
	}

	info := trackInfo(trak)
	if stbl := trak.Mdia.Minf.Stbl; stbl.Stsz != nil {
		info.FrameCount = int(stbl.Stsz.SampleNumber)
	}
	return info, nil
}

func probeFragmented(f *mp4.File) (Info, error) {
	if f.Init == nil || f.Init.Moov == nil {
		return Info{}, ErrNoVideoTrack
	}
	trak := videoTrack(f.Init.Moov.Traks)
	if trak == nil {
		return Info{}, ErrNoVideoTrack
	}

	info := trackInfo(trak)
	info.Fragmented = true

	var trex *mp4.TrexBox
	if mvex := f.Init.Moov.Mvex; mvex != nil {
		for _, t := range mvex.Trexs {
			if t.TrackID == trak.Tkhd.TrackID {
				trex = t
				break
			}
		}
	}

	// Sample counts and durations live in the fragments.
	var duration uint64
	for _, seg := range f.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			samples, err := frag.GetFullSamples(trex)
			if err != nil {
				return Info{}, fmt.Errorf("read fragment samples: %w", err)
			}
			for _, s := range samples {
				info.FrameCount++
				duration += uint64(s.Dur)
			}
		}
	}
	if info.Duration == 0 {
		info.Duration = duration
	}
	return info, nil
}

func videoTrack(traks []*mp4.TrakBox) *mp4.TrakBox {
	for _, trak := range traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
			continue
		}
		if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
			continue
		}
		return trak
	}
	return nil
}

func trackInfo(trak *mp4.TrakBox) Info {
	info := Info{Codec: CodecUnknown}

	if mdhd := trak.Mdia.Mdhd; mdhd != nil {
		info.Timescale = mdhd.Timescale
		info.Duration = mdhd.Duration
	}

	if stsd := trak.Mdia.Minf.Stbl.Stsd; stsd != nil {
		for _, child := range stsd.Children {
			if codec := codecOf(child.Type()); codec != CodecUnknown {
				info.Codec = codec
			}
			if vse, ok := child.(*mp4.VisualSampleEntryBox); ok {
				info.Width = int(vse.Width)
				info.Height = int(vse.Height)
			}
		}
	}

	if info.Width == 0 && trak.Tkhd != nil {
		info.Width = int(uint32(trak.Tkhd.Width) >> 16)
		info.Height = int(uint32(trak.Tkhd.Height) >> 16)
	}
	return info
}

func codecOf(boxType string) Codec {
	switch boxType {
	case "avc1", "avc3":
		return CodecH264
	case "hvc1", "hev1":
		return CodecHEVC
	case "av01":
		return CodecAV1
	case "jpeg", "mjpa":
		return CodecMJPEG
	default:
		return CodecUnknown
	}
}

// IsMP4 reports whether data starts with an ISO BMFF box of a known top-level type.
func IsMP4(header []byte) bool {
	if len(header) < 8 {
		return false
	}
	switch string(header[4:8]) {
	case "ftyp", "moov", "styp", "mdat", "free":
		return true
	}
	return false
}
