package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxShortBytes is the largest payload a u16 length prefix can describe.
const MaxShortBytes = 1<<16 - 1

// ErrShort is reported when a read runs past the end of the buffer.
var ErrShort = errors.New("wire: unexpected end of data")

// Reader decodes little-endian fields. The first failed read records a
// sticky error and every later read returns the zero value, so decoders can
// read a whole record and check Err once.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Err returns the first decode error, if any.
func (r *Reader) Err() error { return r.err }

// Remaining reports the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.off }

// Offset reports the current read position.
func (r *Reader) Offset() int { return r.off }

// Done returns an error if the reader failed or data is left over.
func (r *Reader) Done() error {
	if r.err != nil {
		return r.err
	}
	if n := r.Remaining(); n != 0 {
		return fmt.Errorf("wire: %d trailing bytes at offset %d", n, r.off)
	}
	return nil
}

func (r *Reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShort, n, r.off, r.Remaining())
		return false
	}
	return true
}

// ReadU8 reads 1 unsigned byte.
func (r *Reader) ReadU8() byte {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

// ReadI8 reads 1 signed byte.
func (r *Reader) ReadI8() int8 {
	return int8(r.ReadU8())
}

// ReadU16 reads 2 bytes as little-endian uint16.
func (r *Reader) ReadU16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

// ReadU32 reads 4 bytes as little-endian uint32.
func (r *Reader) ReadU32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

// ReadI32 reads 4 bytes as little-endian int32.
func (r *Reader) ReadI32() int32 {
	return int32(r.ReadU32())
}

// ReadU64 reads 8 bytes as little-endian uint64.
func (r *Reader) ReadU64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v
}

// ReadBytes reads n raw bytes into a fresh slice.
func (r *Reader) ReadBytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	b := make([]byte, n)
	copy(b, r.data[r.off:r.off+n])
	r.off += n
	return b
}

// ReadBytes16 reads a u16 length-prefixed byte string.
func (r *Reader) ReadBytes16() []byte {
	n := r.ReadU16()
	return r.ReadBytes(int(n))
}

// ReadString16 reads a u16 length-prefixed string.
func (r *Reader) ReadString16() string {
	return string(r.ReadBytes16())
}

// ReadBytes32 reads a u32 length-prefixed byte string.
func (r *Reader) ReadBytes32() []byte {
	n := r.ReadU32()
	if r.err == nil && uint64(n) > uint64(r.Remaining()) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShort, n, r.off, r.Remaining())
		return nil
	}
	return r.ReadBytes(int(n))
}
