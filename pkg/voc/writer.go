package voc

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/user/pedvoc/pkg/ports"
)

// ErrExists is returned by Create when the dataset root is already present.
var ErrExists = errors.New("voc: dataset already exists")

// ID formats a sequential image number as a six-digit VOC id.
func ID(n int) string {
	return fmt.Sprintf("%06d", n)
}

// Layout resolves paths inside a VOC root directory.
type Layout struct {
	Root string
}

// ImageDir returns <root>/JPEGImages.
func (l Layout) ImageDir() string { return filepath.Join(l.Root, "JPEGImages") }

// AnnotationDir returns <root>/Annotations.
func (l Layout) AnnotationDir() string { return filepath.Join(l.Root, "Annotations") }

// SplitDir returns <root>/ImageSets/Main.
func (l Layout) SplitDir() string { return filepath.Join(l.Root, "ImageSets", "Main") }

// ImagePath returns the image file of id.
func (l Layout) ImagePath(id string) string {
	return filepath.Join(l.ImageDir(), id+".jpg")
}

// AnnotationPath returns the annotation file of id.
func (l Layout) AnnotationPath(id string) string {
	return filepath.Join(l.AnnotationDir(), id+".xml")
}

// SplitPath returns the list file of set, prefixed with "<class>_" when class is set.
func (l Layout) SplitPath(class, set string) string {
	name := set
	if class != "" {
		name = class + "_" + set
	}
	return filepath.Join(l.SplitDir(), name+".txt")
}

// Splits holds the image ids of each set.
type Splits struct {
	Train []string
	Val   []string
	Test  []string
}

// TrainVal returns the train ids followed by the val ids.
func (s Splits) TrainVal() []string {
	ids := make([]string, 0, len(s.Train)+len(s.Val))
	ids = append(ids, s.Train...)
	return append(ids, s.Val...)
}

// Writer creates VOC datasets through a ports.FileSystem.
type Writer struct {
	fs      ports.FileSystem
	layout  Layout
	dataset string
}

// NewWriter creates a writer for the dataset rooted at root. dataset names
// the source in every annotation, e.g. "caltech".
func NewWriter(fs ports.FileSystem, root, dataset string) *Writer {
	return &Writer{fs: fs, layout: Layout{Root: root}, dataset: dataset}
}

// Layout returns the paths used by the writer.
func (w *Writer) Layout() Layout {
	return w.layout
}

// Dataset returns the dataset name written into annotations.
func (w *Writer) Dataset() string {
	return w.dataset
}

// Create makes the directory tree. It fails with ErrExists if the root is already there.
func (w *Writer) Create() error {
	exists, err := w.fs.Exists(w.layout.Root)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrExists, w.layout.Root)
	}
	for _, dir := range []string{w.layout.ImageDir(), w.layout.AnnotationDir(), w.layout.SplitDir()} {
		if err := w.fs.MkdirAll(dir); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// WriteAnnotation stores ann as <id>.xml.
func (w *Writer) WriteAnnotation(id string, ann Annotation) error {
	data, err := ann.Marshal()
	if err != nil {
		return err
	}
	return w.fs.WriteFile(w.layout.AnnotationPath(id), data)
}

// LinkImage makes <id>.jpg a symbolic link to src.
func (w *Writer) LinkImage(id, src string) error {
	if err := w.fs.Symlink(src, w.layout.ImagePath(id)); err != nil {
		return fmt.Errorf("link image %s: %w", id, err)
	}
	return nil
}

// CopyImage writes data as <id>.jpg.
func (w *Writer) CopyImage(id string, data []byte) error {
	return w.fs.WriteFile(w.layout.ImagePath(id), data)
}

// WriteSplits writes trainval and test lists, plus train and val when either is
// non-empty. A non-empty class prefixes the trainval and test file names.
func (w *Writer) WriteSplits(class string, s Splits) error {
	files := []struct {
		path string
		ids  []string
	}{
		{w.layout.SplitPath(class, "trainval"), s.TrainVal()},
		{w.layout.SplitPath(class, "test"), s.Test},
	}
	if len(s.Train) > 0 || len(s.Val) > 0 {
		files = append(files,
			struct {
				path string
				ids  []string
			}{w.layout.SplitPath("", "train"), s.Train},
			struct {
				path string
				ids  []string
			}{w.layout.SplitPath("", "val"), s.Val},
		)
	}

	for _, f := range files {
		var buf bytes.Buffer
		for _, id := range f.ids {
			buf.WriteString(id)
			buf.WriteByte('\n')
		}
		if err := w.fs.WriteFile(f.path, buf.Bytes()); err != nil {
			return fmt.Errorf("write split %s: %w", filepath.Base(f.path), err)
		}
	}
	return nil
}

// WriteFakeTestAnnotations writes an annotation without objects for every id of
// the test list, so VOC tooling can load the test set. It does nothing and
// returns 0 if the first test image already has an annotation.
func (w *Writer) WriteFakeTestAnnotations() (int, error) {
	ids, err := readList(w.fs, w.layout.SplitPath("", "test"))
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if exists, err := w.fs.Exists(w.layout.AnnotationPath(ids[0])); err != nil {
		return 0, err
	} else if exists {
		return 0, nil
	}

	for i, id := range ids {
		data, err := w.fs.ReadFile(w.layout.ImagePath(id))
		if err != nil {
			return i, fmt.Errorf("read image %s: %w", id, err)
		}
		width, height, err := ImageSize(data)
		if err != nil {
			return i, fmt.Errorf("image %s: %w", id, err)
		}
		if err := w.WriteAnnotation(id, NewAnnotation(w.dataset, id, width, height, "", nil)); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}

// readList returns the first field of every non-blank line. Lines of the
// "<id> <label>" form used by per-class lists are accepted.
func readList(fs ports.FileSystem, path string) ([]string, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		ids = append(ids, fields[0])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ids, nil
}
