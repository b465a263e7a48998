package matfile

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"
)

// EncodeOptions configures MAT-file output.
type EncodeOptions struct {
	// Compress wraps each variable in an miCOMPRESSED element, as save -v7 does.
	Compress bool
	// Description replaces the default header text.
	Description string
}

// Encode writes vars as a little-endian Level 5 MAT-file.
// Numeric arrays are stored as miDOUBLE (logical and uint8 arrays as miUINT8)
// and char arrays as miUINT16.
func Encode(w io.Writer, opts EncodeOptions, vars ...*Array) error {
	desc := opts.Description
	if desc == "" {
		desc = fmt.Sprintf("MATLAB 5.0 MAT-file, Platform: GLNXA64, Created on: %s",
			time.Now().UTC().Format("Mon Jan _2 15:04:05 2006"))
	}

	header := make([]byte, headerLen)
	for i := range header[:textLen] {
		header[i] = ' '
	}
	copy(header, desc)
	binary.LittleEndian.PutUint16(header[124:], 0x0100)
	copy(header[126:], "IM")

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, v := range vars {
		if v.Name == "" {
			return fmt.Errorf("%w: top-level variable without a name", ErrShape)
		}
		var buf bytes.Buffer
		if err := writeMatrix(&buf, v, v.Name); err != nil {
			return fmt.Errorf("encode %q: %w", v.Name, err)
		}

		out := buf.Bytes()
		if opts.Compress {
			var z bytes.Buffer
			zw := zlib.NewWriter(&z)
			if _, err := zw.Write(out); err != nil {
				return fmt.Errorf("compress %q: %w", v.Name, err)
			}
			if err := zw.Close(); err != nil {
				return fmt.Errorf("compress %q: %w", v.Name, err)
			}
			var c bytes.Buffer
			writeTag(&c, miCOMPRESSED, z.Len())
			c.Write(z.Bytes())
			out = c.Bytes()
		}

		if _, err := w.Write(out); err != nil {
			return fmt.Errorf("write %q: %w", v.Name, err)
		}
	}
	return nil
}

// WriteFile encodes vars into the file at path, creating parent directories.
func WriteFile(path string, opts EncodeOptions, vars ...*Array) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, opts, vars...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeMatrix writes a complete miMATRIX element for arr.
func writeMatrix(w *bytes.Buffer, arr *Array, name string) error {
	var body bytes.Buffer

	// Array flags
	flags := uint32(arr.Class)
	if arr.Logical {
		flags |= flagLogical
	}
	if arr.Complex {
		flags |= flagComplex
	}
	flagData := make([]byte, 8)
	binary.LittleEndian.PutUint32(flagData, flags)
	writeElement(&body, miUINT32, flagData)

	// Dimensions
	dims := arr.Dims
	if len(dims) < 2 {
		return fmt.Errorf("%w: %q needs at least two dimensions, has %v", ErrShape, name, dims)
	}
	dimData := make([]byte, 4*len(dims))
	for i, d := range dims {
		binary.LittleEndian.PutUint32(dimData[4*i:], uint32(int32(d)))
	}
	writeElement(&body, miINT32, dimData)

	// Name
	writeElement(&body, miINT8, []byte(name))

	n := arr.Len()
	switch {
	case arr.Class.IsNumeric():
		if len(arr.Real) != n {
			return fmt.Errorf("%w: %q has %d values for dims %v", ErrShape, name, len(arr.Real), dims)
		}
		writeNumbers(&body, arr, arr.Real)
		if arr.Complex {
			if len(arr.Imag) != n {
				return fmt.Errorf("%w: %q has %d imaginary values for dims %v", ErrShape, name, len(arr.Imag), dims)
			}
			writeNumbers(&body, arr, arr.Imag)
		}

	case arr.Class == ClassChar:
		if len(arr.Runes) != n {
			return fmt.Errorf("%w: %q has %d runes for dims %v", ErrShape, name, len(arr.Runes), dims)
		}
		data := make([]byte, 2*n)
		for i, r := range arr.Runes {
			binary.LittleEndian.PutUint16(data[2*i:], uint16(r))
		}
		writeElement(&body, miUINT16, data)

	case arr.Class == ClassCell:
		if len(arr.Cells) != n {
			return fmt.Errorf("%w: %q has %d cells for dims %v", ErrShape, name, len(arr.Cells), dims)
		}
		for i, c := range arr.Cells {
			if c == nil {
				c = Empty()
			}
			if err := writeMatrix(&body, c, ""); err != nil {
				return fmt.Errorf("cell %d: %w", i, err)
			}
		}

	case arr.Class == ClassStruct:
		if len(arr.Elems) != n {
			return fmt.Errorf("%w: %q has %d elements for dims %v", ErrShape, name, len(arr.Elems), dims)
		}
		nameLen := 1
		for _, f := range arr.Fields {
			if len(f)+1 > nameLen {
				nameLen = len(f) + 1
			}
		}
		lenData := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenData, uint32(nameLen))
		writeElement(&body, miINT32, lenData)

		names := make([]byte, nameLen*len(arr.Fields))
		for i, f := range arr.Fields {
			copy(names[i*nameLen:], f)
		}
		writeElement(&body, miINT8, names)

		for i, elem := range arr.Elems {
			if len(elem) != len(arr.Fields) {
				return fmt.Errorf("%w: element %d of %q has %d values for %d fields", ErrShape, i, name, len(elem), len(arr.Fields))
			}
			for f, v := range elem {
				if v == nil {
					v = Empty()
				}
				if err := writeMatrix(&body, v, ""); err != nil {
					return fmt.Errorf("%s(%d).%s: %w", name, i, arr.Fields[f], err)
				}
			}
		}

	default:
		return fmt.Errorf("%w: cannot encode class %s", ErrUnsupported, arr.Class)
	}

	writeTag(w, miMATRIX, body.Len())
	w.Write(body.Bytes())
	return nil
}

func writeNumbers(w *bytes.Buffer, arr *Array, values []float64) {
	if arr.Logical || arr.Class == ClassUint8 {
		data := make([]byte, len(values))
		for i, v := range values {
			data[i] = uint8(v)
		}
		writeElement(w, miUINT8, data)
		return
	}
	data := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(data[8*i:], math.Float64bits(v))
	}
	writeElement(w, miDOUBLE, data)
}

// writeElement writes a data element, using the small element format when the
// payload fits in four bytes.
func writeElement(w *bytes.Buffer, typ uint32, data []byte) {
	if len(data) > 0 && len(data) <= 4 {
		var tag [8]byte
		binary.LittleEndian.PutUint32(tag[:], uint32(len(data))<<16|typ)
		copy(tag[4:], data)
		w.Write(tag[:])
		return
	}
	writeTag(w, typ, len(data))
	w.Write(data)
	if pad := padTo8(len(data)) - len(data); pad > 0 {
		w.Write(make([]byte, pad))
	}
}

func writeTag(w *bytes.Buffer, typ uint32, n int) {
	var tag [8]byte
	binary.LittleEndian.PutUint32(tag[:], typ)
	binary.LittleEndian.PutUint32(tag[4:], uint32(n))
	w.Write(tag[:])
}
