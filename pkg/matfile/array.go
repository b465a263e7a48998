// Package matfile reads and writes MATLAB Level 5 MAT-files (the format written by
// save -v6 and save -v7).
//
// Arrays are decoded into a generic tree of *Array values. Numeric data of every
// storage type is widened to float64; character data is kept as runes. Sparse
// arrays and v7.3 (HDF5) files are not supported.
package matfile

import (
	"fmt"
	"strings"
)

// Class is a MATLAB array class (mxCLASS).
type Class uint8

const (
	ClassUnknown Class = 0
	ClassCell    Class = 1
	ClassStruct  Class = 2
	ClassObject  Class = 3
	ClassChar    Class = 4
	ClassSparse  Class = 5
	ClassDouble  Class = 6
	ClassSingle  Class = 7
	ClassInt8    Class = 8
	ClassUint8   Class = 9
	ClassInt16   Class = 10
	ClassUint16  Class = 11
	ClassInt32   Class = 12
	ClassUint32  Class = 13
	ClassInt64   Class = 14
	ClassUint64  Class = 15
)

// String returns the MATLAB class name.
func (c Class) String() string {
	switch c {
	case ClassCell:
		return "cell"
	case ClassStruct:
		return "struct"
	case ClassObject:
		return "object"
	case ClassChar:
		return "char"
	case ClassSparse:
		return "sparse"
	case ClassDouble:
		return "double"
	case ClassSingle:
		return "single"
	case ClassInt8:
		return "int8"
	case ClassUint8:
		return "uint8"
	case ClassInt16:
		return "int16"
	case ClassUint16:
		return "uint16"
	case ClassInt32:
		return "int32"
	case ClassUint32:
		return "uint32"
	case ClassInt64:
		return "int64"
	case ClassUint64:
		return "uint64"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// IsNumeric reports whether the class stores numbers.
func (c Class) IsNumeric() bool {
	return c >= ClassDouble && c <= ClassUint64
}

// Array is one MATLAB array. Which fields are populated depends on Class:
// numeric arrays use Real (and Imag when complex), char arrays use Runes,
// cell arrays use Cells and struct/object arrays use Fields and Elems.
// All element slices are in column-major order.
type Array struct {
	Name      string
	Class     Class
	Dims      []int
	Logical   bool
	Complex   bool
	ClassName string // Object class name

	Real  []float64
	Imag  []float64
	Runes []rune
	Cells []*Array

	Fields []string
	Elems  [][]*Array // Elems[i][f] is field Fields[f] of element i
}

// Len returns the number of elements (the product of the dimensions).
func (a *Array) Len() int {
	if a == nil || len(a.Dims) == 0 {
		return 0
	}
	n := 1
	for _, d := range a.Dims {
		n *= d
	}
	return n
}

// IsEmpty reports whether the array has no elements.
func (a *Array) IsEmpty() bool {
	return a.Len() == 0
}

// Cell returns element i of a cell array.
func (a *Array) Cell(i int) (*Array, error) {
	if a.Class != ClassCell {
		return nil, fmt.Errorf("%w: %s is %s, not cell", ErrShape, a.label(), a.Class)
	}
	if i < 0 || i >= len(a.Cells) {
		return nil, fmt.Errorf("%w: cell index %d out of range [0,%d) in %s", ErrShape, i, len(a.Cells), a.label())
	}
	return a.Cells[i], nil
}

// FieldIndex returns the position of a struct field, or -1.
func (a *Array) FieldIndex(name string) int {
	for i, f := range a.Fields {
		if f == name {
			return i
		}
	}
	return -1
}

// Field returns field name of struct element i.
func (a *Array) Field(i int, name string) (*Array, error) {
	if a.Class != ClassStruct && a.Class != ClassObject {
		return nil, fmt.Errorf("%w: %s is %s, not struct", ErrShape, a.label(), a.Class)
	}
	f := a.FieldIndex(name)
	if f < 0 {
		return nil, fmt.Errorf("%w: %s has no field %q", ErrShape, a.label(), name)
	}
	if i < 0 || i >= len(a.Elems) {
		return nil, fmt.Errorf("%w: struct index %d out of range [0,%d) in %s", ErrShape, i, len(a.Elems), a.label())
	}
	return a.Elems[i][f], nil
}

// Float returns numeric element i.
func (a *Array) Float(i int) (float64, error) {
	if !a.Class.IsNumeric() {
		return 0, fmt.Errorf("%w: %s is %s, not numeric", ErrShape, a.label(), a.Class)
	}
	if i < 0 || i >= len(a.Real) {
		return 0, fmt.Errorf("%w: index %d out of range [0,%d) in %s", ErrShape, i, len(a.Real), a.label())
	}
	return a.Real[i], nil
}

// Floats returns the real part of a numeric array.
func (a *Array) Floats() ([]float64, error) {
	if !a.Class.IsNumeric() {
		return nil, fmt.Errorf("%w: %s is %s, not numeric", ErrShape, a.label(), a.Class)
	}
	return a.Real, nil
}

// String returns the text of a char array. Multi-row arrays are read row by row
// with trailing blanks removed and rows joined by newlines.
func (a *Array) String() string {
	if a == nil || a.Class != ClassChar {
		return ""
	}
	if len(a.Dims) < 2 || a.Dims[0] <= 1 {
		return string(a.Runes)
	}
	rows, cols := a.Dims[0], a.Len()/a.Dims[0]
	if rows*cols != len(a.Runes) {
		return string(a.Runes)
	}
	lines := make([]string, rows)
	for r := 0; r < rows; r++ {
		line := make([]rune, cols)
		for c := 0; c < cols; c++ {
			line[c] = a.Runes[c*rows+r]
		}
		lines[r] = strings.TrimRight(string(line), " ")
	}
	return strings.Join(lines, "\n")
}

func (a *Array) label() string {
	if a.Name != "" {
		return a.Name
	}
	return fmt.Sprintf("%dx%s %s", firstDim(a.Dims), restDims(a.Dims), a.Class)
}

func firstDim(dims []int) int {
	if len(dims) == 0 {
		return 0
	}
	return dims[0]
}

func restDims(dims []int) string {
	if len(dims) < 2 {
		return "0"
	}
	parts := make([]string, len(dims)-1)
	for i, d := range dims[1:] {
		parts[i] = fmt.Sprint(d)
	}
	return strings.Join(parts, "x")
}

// =============================================================================
// Constructors
// =============================================================================

// Empty returns a 0x0 double array, the value MATLAB stores for [].
func Empty() *Array {
	return &Array{Class: ClassDouble, Dims: []int{0, 0}}
}

// NewDouble returns a double array with the given dimensions and column-major values.
func NewDouble(dims []int, values ...float64) *Array {
	return &Array{Class: ClassDouble, Dims: dims, Real: values}
}

// NewScalar returns a 1x1 double.
func NewScalar(v float64) *Array {
	return NewDouble([]int{1, 1}, v)
}

// NewRow returns a 1xN double row vector.
func NewRow(values ...float64) *Array {
	return NewDouble([]int{1, len(values)}, values...)
}

// NewString returns a 1xN char array.
func NewString(s string) *Array {
	r := []rune(s)
	return &Array{Class: ClassChar, Dims: []int{1, len(r)}, Runes: r}
}

// NewCell returns a cell array.
func NewCell(dims []int, cells ...*Array) *Array {
	return &Array{Class: ClassCell, Dims: dims, Cells: cells}
}

// NewStruct returns a struct array. Each element must hold one value per field.
func NewStruct(dims []int, fields []string, elems ...[]*Array) *Array {
	return &Array{Class: ClassStruct, Dims: dims, Fields: fields, Elems: elems}
}
