package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/user/pedvoc/pkg/ports"
	"github.com/user/pedvoc/pkg/vbb"
)

// SequenceStats describes one annotated sequence.
type SequenceStats struct {
	Camera         string
	Sequence       string
	DeclaredFrames int            // nFrame of the annotation file
	Objects        map[string]int // Object count per label
	PersonFrames   int            // Frames with at least one person
	Persons        int            // Person boxes over all frames

	Video    ports.VideoInfo // Zero when the video is missing or unreadable
	VideoErr error
}

// Inspector collects statistics about a Caltech tree without writing anything.
type Inspector struct {
	open   ports.FrameReaderOpener
	fs     ports.FileSystem
	logger ports.Logger
}

// NewInspector creates an Inspector. open may be nil to skip the videos.
func NewInspector(open ports.FrameReaderOpener, fs ports.FileSystem, logger ports.Logger) *Inspector {
	return &Inspector{
		open:   open,
		fs:     fs,
		logger: logger,
	}
}

// Inspect parses every annotation file of the given sets under root. A set
// without annotation directory is skipped; a malformed file aborts.
func (i *Inspector) Inspect(ctx context.Context, root string, sets []int) ([]SequenceStats, error) {
	var out []SequenceStats
	for _, n := range sets {
		paths := SetPaths(root, n)
		camera := SetName(n)

		names, err := i.fs.ListDir(paths.AnnotationDir, ".vbb")
		if err != nil {
			i.logger.Warn("Skipping %s: %s", camera, err.Error())
			continue
		}

		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			stats, err := i.sequence(camera, filepath.Join(paths.AnnotationDir, name))
			if err != nil {
				return out, err
			}
			if i.open != nil {
				stats.Video, stats.VideoErr = i.probe(filepath.Join(paths.VideoDir, stats.Sequence+".seq"))
			}
			out = append(out, stats)
		}
	}
	return out, nil
}

func (i *Inspector) sequence(camera, path string) (SequenceStats, error) {
	data, err := i.fs.ReadFile(path)
	if err != nil {
		return SequenceStats{}, fmt.Errorf("read %s: %w", path, err)
	}
	seq, err := vbb.Parse(bytes.NewReader(data), path)
	if err != nil {
		return SequenceStats{}, err
	}

	stats := SequenceStats{
		Camera:         camera,
		Sequence:       seq.Name,
		DeclaredFrames: seq.NFrame,
		Objects:        make(map[string]int),
	}
	for _, objs := range seq.Frames {
		for _, obj := range objs {
			label, ok := seq.Label(obj.ID)
			if !ok {
				label = "?"
			}
			stats.Objects[label]++
		}
	}
	annos := seq.Annotations(camera)
	stats.PersonFrames = len(annos)
	for _, a := range annos {
		stats.Persons += len(a.Detections)
	}
	return stats, nil
}

func (i *Inspector) probe(path string) (ports.VideoInfo, error) {
	r, err := i.open(path)
	if err != nil {
		return ports.VideoInfo{}, err
	}
	defer r.Close()
	return r.Info(), nil
}

// Labels returns the label names of stats in sorted order.
func (s SequenceStats) Labels() []string {
	labels := make([]string, 0, len(s.Objects))
	for l := range s.Objects {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}
