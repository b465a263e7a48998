// Package detections converts detector output between the VOC result format
// and the per-video text files read by the Caltech evaluation code.
//
// VOC results have one line per box:
//
//	<voc_id> <score> <x1> <y1> <x2> <y2>
//
// Caltech results are written to <out>/<set>/<video>.txt, one line per box:
//
//	<frame>,<x>,<y>,<w>,<h>,<score>
package detections

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/user/pedvoc/pkg/pipeline"
	"github.com/user/pedvoc/pkg/ports"
	"github.com/user/pedvoc/pkg/voc"
)

// ErrSyntax is returned for a result line that cannot be parsed.
var ErrSyntax = errors.New("detections: malformed line")

// Result is one detection in VOC result form.
type Result struct {
	ID     string
	Score  float64
	X1, Y1 float64
	X2, Y2 float64
}

// ParseVOC reads VOC result lines. Blank lines are ignored.
func ParseVOC(r io.Reader) ([]Result, error) {
	var out []Result
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 6 {
			return nil, fmt.Errorf("%w %d: want 6 fields, got %d", ErrSyntax, line, len(fields))
		}
		vals, err := parseFloats(fields[1:])
		if err != nil {
			return nil, fmt.Errorf("%w %d: %v", ErrSyntax, line, err)
		}
		out = append(out, Result{
			ID:    fields[0],
			Score: vals[0],
			X1:    vals[1],
			Y1:    vals[2],
			X2:    vals[3],
			Y2:    vals[4],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	return out, nil
}

// ParseCaltech reads one Caltech result file into boxes keyed by frame number.
func ParseCaltech(r io.Reader) (map[int][]pipeline.ScoredBox, error) {
	out := make(map[int][]pipeline.ScoredBox)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(text, ",")
		if len(fields) != 6 {
			return nil, fmt.Errorf("%w %d: want 6 fields, got %d", ErrSyntax, line, len(fields))
		}
		vals, err := parseFloats(fields)
		if err != nil {
			return nil, fmt.Errorf("%w %d: %v", ErrSyntax, line, err)
		}
		frame := int(vals[0])
		out[frame] = append(out[frame], pipeline.ScoredBox{
			Box:   pipeline.Box{X: vals[1], Y: vals[2], W: vals[3], H: vals[4]},
			Score: vals[5],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	return out, nil
}

func parseFloats(fields []string) ([]float64, error) {
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// Video identifies one result file.
type Video struct {
	Set   string
	Video string
}

// Path returns <dir>/<set>/<video>.txt.
func (v Video) Path(dir string) string {
	return filepath.Join(dir, v.Set, v.Video+".txt")
}

// Line is one Caltech result line.
type Line struct {
	Frame int
	Box   pipeline.Box
	Score float64
}

// String renders the line without a trailing newline.
func (l Line) String() string {
	return strings.Join([]string{
		strconv.Itoa(l.Frame),
		formatFloat(l.Box.X),
		formatFloat(l.Box.Y),
		formatFloat(l.Box.W),
		formatFloat(l.Box.H),
		formatFloat(l.Score),
	}, ",")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Converter maps VOC ids back to video frames through the image links of a
// VOC dataset.
type Converter struct {
	fs     ports.FileSystem
	layout voc.Layout
}

// NewConverter creates a converter for the VOC dataset rooted at vocRoot.
func NewConverter(fs ports.FileSystem, vocRoot string) *Converter {
	return &Converter{fs: fs, layout: voc.Layout{Root: vocRoot}}
}

// Resolve returns the frame an image id was linked from.
func (c *Converter) Resolve(id string) (pipeline.FrameKey, error) {
	target, err := c.fs.Readlink(c.layout.ImagePath(id))
	if err != nil {
		return pipeline.FrameKey{}, fmt.Errorf("resolve %s: %w", id, err)
	}
	return pipeline.ParseFrameKey(target)
}

// Group converts results to Caltech lines per video, sorted by frame number.
// Boxes of one frame keep their input order. Each id is resolved once.
func (c *Converter) Group(results []Result) (map[Video][]Line, error) {
	keys := make(map[string]pipeline.FrameKey)
	out := make(map[Video][]Line)
	for _, r := range results {
		key, ok := keys[r.ID]
		if !ok {
			k, err := c.Resolve(r.ID)
			if err != nil {
				return nil, err
			}
			keys[r.ID] = k
			key = k
		}
		v := Video{Set: key.Camera, Video: key.Sequence}
		out[v] = append(out[v], Line{
			Frame: key.Frame,
			Box:   pipeline.Box{X: r.X1, Y: r.Y1, W: r.X2 - r.X1, H: r.Y2 - r.Y1},
			Score: r.Score,
		})
	}
	for _, lines := range out {
		sort.SliceStable(lines, func(i, j int) bool { return lines[i].Frame < lines[j].Frame })
	}
	return out, nil
}

// Write groups results and writes one file per video under outDir.
// It returns the written paths in sorted order.
func (c *Converter) Write(outDir string, results []Result) ([]string, error) {
	grouped, err := c.Group(results)
	if err != nil {
		return nil, err
	}

	videos := make([]Video, 0, len(grouped))
	for v := range grouped {
		videos = append(videos, v)
	}
	sort.Slice(videos, func(i, j int) bool {
		if videos[i].Set != videos[j].Set {
			return videos[i].Set < videos[j].Set
		}
		return videos[i].Video < videos[j].Video
	})

	paths := make([]string, 0, len(videos))
	for _, v := range videos {
		var buf bytes.Buffer
		for _, l := range grouped[v] {
			buf.WriteString(l.String())
			buf.WriteByte('\n')
		}
		path := v.Path(outDir)
		if err := c.fs.MkdirAll(filepath.Dir(path)); err != nil {
			return nil, err
		}
		if err := c.fs.WriteFile(path, buf.Bytes()); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
