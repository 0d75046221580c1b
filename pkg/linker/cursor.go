package linker

import (
	"encoding/binary"
	"fmt"
)

// ByteReader is a bounds-checked big-endian cursor over a byte slice.
// Every accessor fails with an explicit error instead of reading out of
// range, so malformed containers surface as diagnostics rather than panics.
type ByteReader struct {
	data []byte
	pos  int
	name string // file or block name for error context
}

func NewByteReader(data []byte, name string) *ByteReader {
	return &ByteReader{data: data, name: name}
}

func (r *ByteReader) errorf(format string, args ...any) error {
	return fmt.Errorf("%s: %s", r.name, fmt.Sprintf(format, args...))
}

func (r *ByteReader) Len() int {
	return len(r.data)
}

func (r *ByteReader) Pos() int {
	return r.pos
}

func (r *ByteReader) Seek(pos int) error {
	if pos < 0 || pos > len(r.data) {
		return r.errorf("seek to %d out of range (size %d)", pos, len(r.data))
	}
	r.pos = pos
	return nil
}

func (r *ByteReader) Bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, r.errorf("read of %d bytes at %d out of range (size %d)",
			n, r.pos, len(r.data))
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *ByteReader) U8() (uint8, error) {
	b, err := r.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *ByteReader) U16() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *ByteReader) U32() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *ByteReader) I16() (int16, error) {
	v, err := r.U16()
	return int16(v), err
}

func (r *ByteReader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

// CString reads the null-terminated string starting at off.
func (r *ByteReader) CString(off int) (string, error) {
	if off < 0 || off >= len(r.data) {
		return "", r.errorf("string offset %d out of range (size %d)", off, len(r.data))
	}
	for end := off; end < len(r.data); end++ {
		if r.data[end] == 0 {
			return string(r.data[off:end]), nil
		}
	}
	return "", r.errorf("string at %d is not null-terminated", off)
}

// ByteWriter builds big-endian byte blocks, growing as needed.
type ByteWriter struct {
	buf []byte
}

func (w *ByteWriter) Bytes() []byte {
	return w.buf
}

func (w *ByteWriter) Len() int {
	return len(w.buf)
}

func (w *ByteWriter) U8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *ByteWriter) U16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *ByteWriter) U32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *ByteWriter) I16(v int16) {
	w.U16(uint16(v))
}

func (w *ByteWriter) I32(v int32) {
	w.U32(uint32(v))
}

func (w *ByteWriter) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// Pad appends zero bytes until the buffer length is a multiple of align.
func (w *ByteWriter) Pad(align int) {
	for len(w.buf)%align != 0 {
		w.buf = append(w.buf, 0)
	}
}
