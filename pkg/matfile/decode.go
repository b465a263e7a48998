package matfile

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"unicode/utf8"
)

var (
	// ErrNotMAT is returned when the input does not start with a Level 5 MAT-file header.
	ErrNotMAT = errors.New("matfile: not a level 5 MAT-file")

	// ErrUnsupported is returned for valid MAT content this package does not decode.
	ErrUnsupported = errors.New("matfile: unsupported content")

	// ErrCorrupt is returned when a data element is truncated or malformed.
	ErrCorrupt = errors.New("matfile: corrupt data element")

	// ErrShape is returned when an array does not have the class or size asked for.
	ErrShape = errors.New("matfile: unexpected array shape")
)

// Data element types (miTYPE).
const (
	miINT8       = 1
	miUINT8      = 2
	miINT16      = 3
	miUINT16     = 4
	miINT32      = 5
	miUINT32     = 6
	miSINGLE     = 7
	miDOUBLE     = 9
	miINT64      = 12
	miUINT64     = 13
	miMATRIX     = 14
	miCOMPRESSED = 15
	miUTF8       = 16
	miUTF16      = 17
	miUTF32      = 18
)

const (
	headerLen   = 128
	textLen     = 116
	flagComplex = 0x0800
	flagGlobal  = 0x0400
	flagLogical = 0x0200
)

// File is a decoded MAT-file.
type File struct {
	Header    string // Descriptive text of the header
	Version   uint16
	ByteOrder binary.ByteOrder
	Vars      []*Array
}

// Var returns the top-level variable with the given name.
func (f *File) Var(name string) (*Array, bool) {
	for _, v := range f.Vars {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// Open reads and decodes the MAT-file at path.
func Open(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer fh.Close()

	return Decode(fh)
}

// Decode reads a MAT-file from r.
func Decode(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read mat-file: %w", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes decodes an in-memory MAT-file.
func DecodeBytes(data []byte) (*File, error) {
	if len(data) < headerLen {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrNotMAT, len(data))
	}

	text := strings.TrimRight(string(data[:textLen]), " \x00")
	if strings.HasPrefix(text, "MATLAB 7.3") {
		return nil, fmt.Errorf("%w: v7.3 (HDF5) files", ErrUnsupported)
	}

	var order binary.ByteOrder
	switch string(data[126:128]) {
	case "IM":
		order = binary.LittleEndian
	case "MI":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad endian indicator %q", ErrNotMAT, data[126:128])
	}

	f := &File{
		Header:    text,
		Version:   order.Uint16(data[124:126]),
		ByteOrder: order,
	}

	d := &decoder{buf: data[headerLen:], order: order}
	for d.remaining() > 0 {
		// Some writers pad the end of the file with zeros.
		if d.remaining() < 8 || allZero(d.buf[d.off:]) {
			break
		}
		typ, payload, err := d.element()
		if err != nil {
			return nil, err
		}
		arr, err := d.topLevel(typ, payload)
		if err != nil {
			return nil, err
		}
		if arr != nil {
			f.Vars = append(f.Vars, arr)
		}
	}

	return f, nil
}

// maxFieldlessElems caps struct arrays without fields, whose elements take no bytes.
const maxFieldlessElems = 1 << 20

// decoder walks a sequence of data elements.
type decoder struct {
	buf   []byte
	off   int
	order binary.ByteOrder
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.off
}

// element reads one data element tag and returns its type and payload,
// consuming the padding that follows it.
func (d *decoder) element() (uint32, []byte, error) {
	if d.remaining() < 8 {
		return 0, nil, fmt.Errorf("%w: truncated tag at offset %d", ErrCorrupt, d.off)
	}

	first := d.order.Uint32(d.buf[d.off:])

	// Small data element: size in the upper 16 bits, payload in the next 4 bytes.
	if first>>16 != 0 {
		typ := first & 0xffff
		n := int(first >> 16)
		if n > 4 {
			return 0, nil, fmt.Errorf("%w: small element of %d bytes", ErrCorrupt, n)
		}
		payload := d.buf[d.off+4 : d.off+4+n]
		d.off += 8
		return typ, payload, nil
	}

	typ := first
	n := int(d.order.Uint32(d.buf[d.off+4:]))
	start := d.off + 8
	if n < 0 || start+n > len(d.buf) {
		return 0, nil, fmt.Errorf("%w: element type %d claims %d bytes, %d left", ErrCorrupt, typ, n, len(d.buf)-start)
	}
	payload := d.buf[start : start+n]

	d.off = start + n
	if typ != miCOMPRESSED {
		d.off = start + padTo8(n)
		if d.off > len(d.buf) {
			d.off = len(d.buf)
		}
	}
	return typ, payload, nil
}

func (d *decoder) topLevel(typ uint32, payload []byte) (*Array, error) {
	switch typ {
	case miMATRIX:
		return d.matrix(payload)
	case miCOMPRESSED:
		zr, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("%w: compressed element: %v", ErrCorrupt, err)
		}
		defer zr.Close()
		inflated, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("%w: inflate: %v", ErrCorrupt, err)
		}
		inner := &decoder{buf: inflated, order: d.order}
		innerTyp, innerPayload, err := inner.element()
		if err != nil {
			return nil, err
		}
		return inner.topLevel(innerTyp, innerPayload)
	default:
		// Top-level elements other than arrays carry no variables.
		return nil, nil
	}
}

// matrix decodes the payload of an miMATRIX element.
func (d *decoder) matrix(payload []byte) (*Array, error) {
	if len(payload) == 0 {
		return Empty(), nil
	}

	sub := &decoder{buf: payload, order: d.order}

	// Array flags
	typ, flags, err := sub.element()
	if err != nil {
		return nil, err
	}
	if typ != miUINT32 || len(flags) < 8 {
		return nil, fmt.Errorf("%w: array flags have type %d and %d bytes", ErrCorrupt, typ, len(flags))
	}
	flagWord := d.order.Uint32(flags)
	arr := &Array{
		Class:   Class(flagWord & 0xff),
		Complex: flagWord&flagComplex != 0,
		Logical: flagWord&flagLogical != 0,
	}

	// Dimensions
	typ, dimData, err := sub.element()
	if err != nil {
		return nil, err
	}
	dims, err := sub.numbers(typ, dimData)
	if err != nil {
		return nil, fmt.Errorf("dimensions: %w", err)
	}
	arr.Dims = make([]int, len(dims))
	n := 1
	for i, v := range dims {
		if v < 0 || v > math.MaxInt32 || v != math.Trunc(v) {
			return nil, fmt.Errorf("%w: dimension %v in %v", ErrCorrupt, v, dims)
		}
		arr.Dims[i] = int(v)
		if arr.Dims[i] > 0 && n > math.MaxInt/arr.Dims[i] {
			return nil, fmt.Errorf("%w: dimensions %v overflow", ErrCorrupt, dims)
		}
		n *= arr.Dims[i]
	}

	// Name
	_, name, err := sub.element()
	if err != nil {
		return nil, err
	}
	arr.Name = string(name)

	switch {
	case arr.Class.IsNumeric():
		err = sub.numeric(arr)
	case arr.Class == ClassChar:
		err = sub.char(arr)
	case arr.Class == ClassCell:
		err = sub.cell(arr)
	case arr.Class == ClassStruct:
		err = sub.structure(arr)
	case arr.Class == ClassObject:
		_, className, cerr := sub.element()
		if cerr != nil {
			return nil, cerr
		}
		arr.ClassName = string(className)
		err = sub.structure(arr)
	case arr.Class == ClassSparse:
		err = fmt.Errorf("%w: sparse array %q", ErrUnsupported, arr.Name)
	default:
		err = fmt.Errorf("%w: array class %d", ErrUnsupported, uint8(arr.Class))
	}
	if err != nil {
		return nil, err
	}
	return arr, nil
}

func (d *decoder) numeric(arr *Array) error {
	typ, data, err := d.element()
	if err != nil {
		return err
	}
	if arr.Real, err = d.numbers(typ, data); err != nil {
		return fmt.Errorf("real part of %q: %w", arr.Name, err)
	}
	if arr.Complex {
		typ, data, err = d.element()
		if err != nil {
			return err
		}
		if arr.Imag, err = d.numbers(typ, data); err != nil {
			return fmt.Errorf("imaginary part of %q: %w", arr.Name, err)
		}
	}
	if len(arr.Real) != arr.Len() {
		return fmt.Errorf("%w: %q has %d values for dims %v", ErrCorrupt, arr.Name, len(arr.Real), arr.Dims)
	}
	return nil
}

func (d *decoder) char(arr *Array) error {
	if arr.Len() == 0 && d.remaining() == 0 {
		return nil
	}
	typ, data, err := d.element()
	if err != nil {
		return err
	}
	switch typ {
	case miUTF8:
		arr.Runes = make([]rune, 0, len(data))
		for len(data) > 0 {
			r, size := utf8.DecodeRune(data)
			arr.Runes = append(arr.Runes, r)
			data = data[size:]
		}
	case miUTF16:
		// One rune per code unit, as MATLAB counts them in the dimensions.
		arr.Runes = make([]rune, len(data)/2)
		for i := range arr.Runes {
			arr.Runes[i] = rune(d.order.Uint16(data[2*i:]))
		}
	default:
		codes, err := d.numbers(typ, data)
		if err != nil {
			return fmt.Errorf("char data of %q: %w", arr.Name, err)
		}
		arr.Runes = make([]rune, len(codes))
		for i, c := range codes {
			arr.Runes[i] = rune(c)
		}
	}
	if len(arr.Runes) != arr.Len() {
		return fmt.Errorf("%w: %q has %d characters for dims %v", ErrCorrupt, arr.Name, len(arr.Runes), arr.Dims)
	}
	return nil
}

func (d *decoder) cell(arr *Array) error {
	// Every cell is a tagged element of at least 8 bytes.
	n := arr.Len()
	if n > d.remaining()/8 {
		return fmt.Errorf("%w: %q claims %d cells in %d bytes", ErrCorrupt, arr.Name, n, d.remaining())
	}
	arr.Cells = make([]*Array, n)
	for i := 0; i < n; i++ {
		typ, payload, err := d.element()
		if err != nil {
			return fmt.Errorf("cell %d of %q: %w", i, arr.Name, err)
		}
		if typ != miMATRIX {
			return fmt.Errorf("%w: cell %d of %q has element type %d", ErrCorrupt, i, arr.Name, typ)
		}
		if arr.Cells[i], err = d.matrix(payload); err != nil {
			return fmt.Errorf("cell %d of %q: %w", i, arr.Name, err)
		}
	}
	return nil
}

func (d *decoder) structure(arr *Array) error {
	_, lenData, err := d.element()
	if err != nil {
		return err
	}
	if len(lenData) < 4 {
		return fmt.Errorf("%w: field name length of %q", ErrCorrupt, arr.Name)
	}
	nameLen := int(d.order.Uint32(lenData))

	_, names, err := d.element()
	if err != nil {
		return err
	}
	if nameLen <= 0 {
		if len(names) > 0 {
			return fmt.Errorf("%w: field name length %d with %d name bytes", ErrCorrupt, nameLen, len(names))
		}
	} else {
		if len(names)%nameLen != 0 {
			return fmt.Errorf("%w: %d name bytes not a multiple of %d", ErrCorrupt, len(names), nameLen)
		}
		for i := 0; i < len(names); i += nameLen {
			arr.Fields = append(arr.Fields, strings.TrimRight(string(names[i:i+nameLen]), "\x00"))
		}
	}

	n := arr.Len()
	switch {
	case len(arr.Fields) > 0 && n > d.remaining()/8/len(arr.Fields):
		return fmt.Errorf("%w: %q claims %d elements of %d fields in %d bytes", ErrCorrupt, arr.Name, n, len(arr.Fields), d.remaining())
	case len(arr.Fields) == 0 && n > maxFieldlessElems:
		return fmt.Errorf("%w: %q claims %d elements without fields", ErrCorrupt, arr.Name, n)
	}
	arr.Elems = make([][]*Array, n)
	for i := 0; i < n; i++ {
		arr.Elems[i] = make([]*Array, len(arr.Fields))
		for f, field := range arr.Fields {
			typ, payload, err := d.element()
			if err != nil {
				return fmt.Errorf("%q(%d).%s: %w", arr.Name, i, field, err)
			}
			if typ != miMATRIX {
				return fmt.Errorf("%w: %q(%d).%s has element type %d", ErrCorrupt, arr.Name, i, field, typ)
			}
			v, err := d.matrix(payload)
			if err != nil {
				return fmt.Errorf("%q(%d).%s: %w", arr.Name, i, field, err)
			}
			v.Name = field
			arr.Elems[i][f] = v
		}
	}
	return nil
}

// numbers widens a numeric data element to float64.
func (d *decoder) numbers(typ uint32, data []byte) ([]float64, error) {
	size := typeSize(typ)
	if size == 0 {
		return nil, fmt.Errorf("%w: numeric element type %d", ErrUnsupported, typ)
	}
	if len(data)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrCorrupt, len(data), size)
	}

	out := make([]float64, len(data)/size)
	for i := range out {
		b := data[i*size:]
		switch typ {
		case miINT8:
			out[i] = float64(int8(b[0]))
		case miUINT8:
			out[i] = float64(b[0])
		case miINT16:
			out[i] = float64(int16(d.order.Uint16(b)))
		case miUINT16:
			out[i] = float64(d.order.Uint16(b))
		case miINT32:
			out[i] = float64(int32(d.order.Uint32(b)))
		case miUINT32:
			out[i] = float64(d.order.Uint32(b))
		case miSINGLE:
			out[i] = float64(math.Float32frombits(d.order.Uint32(b)))
		case miDOUBLE:
			out[i] = math.Float64frombits(d.order.Uint64(b))
		case miINT64:
			out[i] = float64(int64(d.order.Uint64(b)))
		case miUINT64:
			out[i] = float64(d.order.Uint64(b))
		}
	}
	return out, nil
}

func typeSize(typ uint32) int {
	switch typ {
	case miINT8, miUINT8:
		return 1
	case miINT16, miUINT16:
		return 2
	case miINT32, miUINT32, miSINGLE:
		return 4
	case miDOUBLE, miINT64, miUINT64:
		return 8
	default:
		return 0
	}
}

func padTo8(n int) int {
	return (n + 7) &^ 7
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
