// Package vbb decodes Caltech Pedestrian .vbb annotation files.
//
// A .vbb file is a MAT-file holding one struct variable A. Its objLists field is a
// cell array with one entry per frame; each non-empty entry is a struct array whose
// elements carry an object id (1-based), a position (x, y, w, h) and an occlusion
// flag. The objLbl field maps object ids to class names.
package vbb

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/user/pedvoc/pkg/matfile"
	"github.com/user/pedvoc/pkg/pipeline"
)

// ErrInvalidCamera is returned when the camera id is empty.
var ErrInvalidCamera = errors.New("vbb: camera id must not be empty")

// FormatError reports a .vbb file whose structure does not match the expected layout.
type FormatError struct {
	Name  string // File name or stem
	Field string // Path of the offending field, e.g. "A.objLists{12}(3).pos"
	Err   error
}

func (e *FormatError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("vbb: %s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("vbb: %s: %s: %v", e.Name, e.Field, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Instance is one object occurrence in one frame.
type Instance struct {
	ID        int // 1-based object id, index into Sequence.Labels plus one
	Pos       pipeline.Box
	Occlusion int
}

// Sequence is the typed content of one .vbb file.
type Sequence struct {
	Name   string       // Sequence id (file stem)
	NFrame int          // Number of frames declared by the file
	Labels []string     // Object class names; Labels[id-1] is the class of object id
	Frames [][]Instance // Frames[i] lists the objects of frame i+1 in source order
}

// Label returns the class name of a 1-based object id.
func (s *Sequence) Label(id int) (string, bool) {
	idx := id - 1
	if idx < 0 || idx >= len(s.Labels) {
		return "", false
	}
	return s.Labels[idx], true
}

// Annotations keeps the person detections of each frame, keyed by camera, sequence
// and 1-based frame number. Frames without any person detection are omitted.
func (s *Sequence) Annotations(camera string) pipeline.Annotations {
	annos := make(pipeline.Annotations)
	for i, objs := range s.Frames {
		var dets []pipeline.Detection
		for _, obj := range objs {
			label, ok := s.Label(obj.ID)
			if !ok || label != pipeline.PersonLabel {
				continue
			}
			dets = append(dets, pipeline.Detection{Box: obj.Pos, Occlusion: obj.Occlusion})
		}
		if len(dets) == 0 {
			continue
		}
		key := pipeline.FrameKey{Camera: camera, Sequence: s.Name, Frame: i + 1}
		annos[key] = pipeline.FrameAnnotation{
			Label:      pipeline.PersonLabel,
			Detections: dets,
		}
	}
	return annos
}

// Decode reads the .vbb content of r and returns its person annotations.
// name is the file name the content came from; its stem becomes the sequence id.
// A file without person frames yields an empty map and no error.
func Decode(r io.Reader, name, camera string) (pipeline.Annotations, error) {
	if camera == "" {
		return nil, ErrInvalidCamera
	}
	seq, err := Parse(r, name)
	if err != nil {
		return nil, err
	}
	return seq.Annotations(camera), nil
}

// DecodeFile opens and decodes the .vbb file at path.
func DecodeFile(path, camera string) (pipeline.Annotations, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open annotation file: %w", err)
	}
	defer f.Close()

	return Decode(f, path, camera)
}

// ParseFile opens and parses the .vbb file at path.
func ParseFile(path string) (*Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open annotation file: %w", err)
	}
	defer f.Close()

	return Parse(f, path)
}

// Parse reads the full object table of a .vbb file, including non-person objects.
func Parse(r io.Reader, name string) (*Sequence, error) {
	stem := pipeline.Stem(name)
	fail := func(field string, err error) error {
		return &FormatError{Name: stem, Field: field, Err: err}
	}

	mf, err := matfile.Decode(r)
	if err != nil {
		return nil, fail("", err)
	}

	a, ok := mf.Var("A")
	if !ok {
		return nil, fail("A", errors.New("variable not found"))
	}
	if a.Class != matfile.ClassStruct || a.Len() < 1 {
		return nil, fail("A", fmt.Errorf("expected struct, got %s %v", a.Class, a.Dims))
	}

	seq := &Sequence{Name: stem}

	// Labels
	lbl, err := a.Field(0, "objLbl")
	if err != nil {
		return nil, fail("A.objLbl", err)
	}
	if seq.Labels, err = labels(lbl); err != nil {
		return nil, fail("A.objLbl", err)
	}

	// Per-frame object lists
	lists, err := a.Field(0, "objLists")
	if err != nil {
		return nil, fail("A.objLists", err)
	}
	if lists.Class != matfile.ClassCell {
		if !lists.IsEmpty() {
			return nil, fail("A.objLists", fmt.Errorf("expected cell, got %s", lists.Class))
		}
	}

	seq.Frames = make([][]Instance, len(lists.Cells))
	for i, cell := range lists.Cells {
		field := fmt.Sprintf("A.objLists{%d}", i+1)
		objs, err := instances(cell)
		if err != nil {
			return nil, fail(field, err)
		}
		seq.Frames[i] = objs
	}

	seq.NFrame = len(seq.Frames)
	if nf := a.FieldIndex("nFrame"); nf >= 0 {
		if v, err := a.Elems[0][nf].Float(0); err == nil {
			seq.NFrame = int(v)
		}
	}

	return seq, nil
}

func labels(arr *matfile.Array) ([]string, error) {
	if arr.IsEmpty() {
		return nil, nil
	}
	switch arr.Class {
	case matfile.ClassCell:
		out := make([]string, len(arr.Cells))
		for i, c := range arr.Cells {
			if c.Class != matfile.ClassChar && !c.IsEmpty() {
				return nil, fmt.Errorf("label %d is %s, not char", i+1, c.Class)
			}
			out[i] = c.String()
		}
		return out, nil
	case matfile.ClassChar:
		// A single label saved as a plain string.
		return []string{arr.String()}, nil
	default:
		return nil, fmt.Errorf("expected cell of char, got %s", arr.Class)
	}
}

func instances(cell *matfile.Array) ([]Instance, error) {
	if cell == nil || cell.IsEmpty() {
		return nil, nil
	}
	if cell.Class != matfile.ClassStruct {
		return nil, fmt.Errorf("expected struct array, got %s", cell.Class)
	}

	objs := make([]Instance, cell.Len())
	for j := range objs {
		id, err := scalar(cell, j, "id")
		if err != nil {
			return nil, err
		}

		posArr, err := cell.Field(j, "pos")
		if err != nil {
			return nil, err
		}
		pos, err := posArr.Floats()
		if err != nil {
			return nil, fmt.Errorf("(%d).pos: %w", j+1, err)
		}
		if len(pos) != 4 {
			return nil, fmt.Errorf("(%d).pos has %d values, want 4", j+1, len(pos))
		}

		occl, err := scalar(cell, j, "occl")
		if err != nil {
			return nil, err
		}

		objs[j] = Instance{
			ID:        int(id),
			Pos:       pipeline.Box{X: pos[0], Y: pos[1], W: pos[2], H: pos[3]},
			Occlusion: int(occl),
		}
	}
	return objs, nil
}

func scalar(s *matfile.Array, i int, name string) (float64, error) {
	v, err := s.Field(i, name)
	if err != nil {
		return 0, err
	}
	f, err := v.Float(0)
	if err != nil {
		return 0, fmt.Errorf("(%d).%s: %w", i+1, name, err)
	}
	return f, nil
}

// GetBBox converts the detections of one frame to integer corner boxes.
func GetBBox(a pipeline.FrameAnnotation) []pipeline.BBox {
	return a.BBoxes()
}

// Frames returns the sorted frame numbers of one sequence's annotations.
func Frames(annos pipeline.Annotations) []int {
	keys := annos.Keys()
	frames := make([]int, len(keys))
	for i, k := range keys {
		frames[i] = k.Frame
	}
	return frames
}
