package voc

import (
	"image"

	"github.com/user/pedvoc/pkg/ports"
)

// Reader loads image lists and annotations from a VOC root.
type Reader struct {
	fs     ports.FileSystem
	layout Layout
}

// NewReader creates a reader for the dataset rooted at root.
func NewReader(fs ports.FileSystem, root string) *Reader {
	return &Reader{fs: fs, layout: Layout{Root: root}}
}

// Images loads the ids listed in ImageSets/Main/<set>.txt.
//
// The set can either be simply "train", "val", "trainval" or "test",
// or it can be "<class>_<set>", for example "person_test".
func (r *Reader) Images(set string) ([]string, error) {
	return readList(r.fs, r.layout.SplitPath("", set))
}

// Objects loads the boxes of an image from Annotations/<id>.xml.
func (r *Reader) Objects(id string) ([]Object, error) {
	ann, err := r.Annotation(id)
	if err != nil {
		return nil, err
	}
	return ann.Objects, nil
}

// Annotation loads the full annotation document of an image.
func (r *Reader) Annotation(id string) (Annotation, error) {
	data, err := r.fs.ReadFile(r.layout.AnnotationPath(id))
	if err != nil {
		return Annotation{}, err
	}
	return ParseAnnotation(data)
}

// Set maps image ids to their objects.
type Set map[string][]Object

// Load reads every annotation of set. With a non-empty class only objects
// of that class are kept.
func (r *Reader) Load(set, class string) (Set, error) {
	ids, err := r.Images(set)
	if err != nil {
		return nil, err
	}
	out := make(Set, len(ids))
	for _, id := range ids {
		objs, err := r.Objects(id)
		if err != nil {
			return nil, err
		}
		if class != "" {
			kept := objs[:0]
			for _, o := range objs {
				if o.Name == class {
					kept = append(kept, o)
				}
			}
			objs = kept
		}
		out[id] = objs
	}
	return out, nil
}

// Regions returns the rectangles of objs.
func Regions(objs []Object) []image.Rectangle {
	rects := make([]image.Rectangle, len(objs))
	for i, o := range objs {
		rects[i] = o.BndBox.Rect()
	}
	return rects
}
