// Package export implements the stage that adds extracted frames of one camera
// to a VOC dataset.
package export

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/user/pedvoc/pkg/pipeline"
	"github.com/user/pedvoc/pkg/ports"
	"github.com/user/pedvoc/pkg/voc"
)

// Stage writes annotations and image links for extracted frames.
type Stage struct {
	fs     ports.FileSystem
	writer *voc.Writer
	class  string
	logger ports.Logger
}

// NewStage creates a new export stage writing objects labelled class.
func NewStage(fs ports.FileSystem, writer *voc.Writer, class string, logger ports.Logger) *Stage {
	if class == "" {
		class = pipeline.PersonLabel
	}
	return &Stage{
		fs:     fs,
		writer: writer,
		class:  class,
		logger: logger.WithComponent("export"),
	}
}

type frameFile struct {
	key  pipeline.FrameKey
	path string
}

// Execute assigns sequential ids, starting at input.NextID, to the frames in
// key order and links each into JPEGImages.
//
// With Annotate, the boxes of each frame are sanitized against the image size
// and written as XML; frames left without a box are skipped and keep no id.
func (s *Stage) Execute(ctx context.Context, input pipeline.ExportInput) (pipeline.ExportResult, error) {
	result := pipeline.ExportResult{NextID: input.NextID}
	if result.NextID <= 0 {
		result.NextID = 1
	}

	files := make([]frameFile, 0, len(input.FrameFiles))
	for _, path := range input.FrameFiles {
		key, err := pipeline.ParseFrameKey(filepath.Base(path))
		if err != nil {
			s.logger.Warn("Ignoring %s: %s", path, err.Error())
			continue
		}
		files = append(files, frameFile{key: key, path: path})
	}
	sortFrames(files)

	for _, f := range files {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		id := voc.ID(result.NextID)
		if input.Annotate {
			ok, err := s.annotate(id, f, input.Annotations)
			if err != nil {
				return result, err
			}
			if !ok {
				result.Skipped++
				continue
			}
		}

		if err := s.writer.LinkImage(id, f.path); err != nil {
			return result, err
		}
		result.IDs = append(result.IDs, id)
		result.NextID++
	}

	s.logger.Debug("Exported %d %s frames of %s (%d skipped)", len(result.IDs), input.Split, input.Camera, result.Skipped)
	return result, nil
}

func (s *Stage) annotate(id string, f frameFile, annos pipeline.Annotations) (bool, error) {
	anno, ok := annos[f.key]
	if !ok || len(anno.Detections) == 0 {
		return false, nil
	}

	data, err := s.fs.ReadFile(f.path)
	if err != nil {
		return false, fmt.Errorf("read frame %s: %w", f.key, err)
	}
	width, height, err := voc.ImageSize(data)
	if err != nil {
		return false, fmt.Errorf("frame %s: %w", f.key, err)
	}

	boxes := voc.Sanitize(anno.BBoxes(), width, height)
	if len(boxes) == 0 {
		return false, nil
	}

	ann := voc.NewAnnotation(s.writer.Dataset(), id, width, height, s.class, boxes)
	if err := s.writer.WriteAnnotation(id, ann); err != nil {
		return false, err
	}
	return true, nil
}

func sortFrames(files []frameFile) {
	sort.Slice(files, func(i, j int) bool { return files[i].key.Less(files[j].key) })
}
