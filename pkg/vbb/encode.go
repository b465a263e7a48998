package vbb

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/user/pedvoc/pkg/matfile"
)

var (
	topFields = []string{
		"nFrame", "objLists", "maxObj", "objInit", "objLbl",
		"objStr", "objEnd", "objHide", "altered", "log", "logLen",
	}
	objFields = []string{"id", "pos", "posv", "occl", "lock"}
)

// Encode writes seq as a .vbb MAT-file with the field layout of the Caltech
// annotation tool.
func Encode(w io.Writer, seq *Sequence) error {
	nFrame := seq.NFrame
	if len(seq.Frames) > nFrame {
		nFrame = len(seq.Frames)
	}
	maxObj := len(seq.Labels)

	objStr := make([]float64, maxObj)
	objEnd := make([]float64, maxObj)
	for i := range objStr {
		objStr[i], objEnd[i] = -1, -1
	}

	lists := make([]*matfile.Array, nFrame)
	for i := range lists {
		if i >= len(seq.Frames) || len(seq.Frames[i]) == 0 {
			lists[i] = matfile.Empty()
			continue
		}

		objs := seq.Frames[i]
		elems := make([][]*matfile.Array, len(objs))
		for j, obj := range objs {
			if obj.ID < 1 || obj.ID > maxObj {
				return fmt.Errorf("frame %d object %d: id %d outside 1..%d", i+1, j+1, obj.ID, maxObj)
			}
			elems[j] = []*matfile.Array{
				matfile.NewScalar(float64(obj.ID)),
				matfile.NewRow(obj.Pos.X, obj.Pos.Y, obj.Pos.W, obj.Pos.H),
				matfile.NewScalar(0),
				matfile.NewScalar(float64(obj.Occlusion)),
				matfile.NewScalar(0),
			}

			k := obj.ID - 1
			if objStr[k] < 0 {
				objStr[k] = float64(i + 1)
			}
			objEnd[k] = float64(i + 1)
		}
		lists[i] = matfile.NewStruct([]int{1, len(objs)}, objFields, elems...)
	}

	lbls := make([]*matfile.Array, maxObj)
	ones := make([]float64, maxObj)
	for i, l := range seq.Labels {
		lbls[i] = matfile.NewString(l)
		ones[i] = 1
	}

	a := matfile.NewStruct([]int{1, 1}, topFields, []*matfile.Array{
		matfile.NewScalar(float64(nFrame)),
		matfile.NewCell([]int{1, nFrame}, lists...),
		matfile.NewScalar(float64(maxObj)),
		matfile.NewRow(ones...),
		matfile.NewCell([]int{1, maxObj}, lbls...),
		matfile.NewRow(objStr...),
		matfile.NewRow(objEnd...),
		matfile.NewRow(make([]float64, maxObj)...),
		matfile.NewScalar(0),
		matfile.Empty(),
		matfile.NewScalar(0),
	})
	a.Name = "A"

	return matfile.Encode(w, matfile.EncodeOptions{Compress: true}, a)
}

// WriteFile encodes seq to path, creating parent directories.
func WriteFile(path string, seq *Sequence) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create annotation directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create annotation file: %w", err)
	}
	if err := Encode(f, seq); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
