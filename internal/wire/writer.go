package wire

import "encoding/binary"

// Writer builds a little-endian record stream. Unlike network packets the
// output is never padded: blocks handed to the host are sized exactly to
// their content.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

// NewWriterSize preallocates n bytes of capacity.
func NewWriterSize(n int) *Writer {
	return &Writer{buf: make([]byte, 0, n)}
}

// WriteU8 writes 1 byte.
func (w *Writer) WriteU8(v byte) {
	w.buf = append(w.buf, v)
}

// WriteI8 writes 1 signed byte.
func (w *Writer) WriteI8(v int8) {
	w.buf = append(w.buf, byte(v))
}

// WriteU16 writes 2 bytes little-endian.
func (w *Writer) WriteU16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteU32 writes 4 bytes little-endian.
func (w *Writer) WriteU32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteI32 writes 4 bytes little-endian (two's complement).
func (w *Writer) WriteI32(v int32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

// WriteU64 writes 8 bytes little-endian.
func (w *Writer) WriteU64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// WriteBytes16 writes a u16 length prefix followed by b. Callers must keep
// len(b) within MaxShortBytes.
func (w *Writer) WriteBytes16(b []byte) {
	w.WriteU16(uint16(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteString16 writes s as length-prefixed UTF-8.
func (w *Writer) WriteString16(s string) {
	w.WriteU16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteBytes32 writes a u32 length prefix followed by b.
func (w *Writer) WriteBytes32(b []byte) {
	w.WriteU32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteRaw writes raw bytes.
func (w *Writer) WriteRaw(b []byte) {
	w.buf = append(w.buf, b...)
}

// Bytes returns the written content. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the current length.
func (w *Writer) Len() int {
	return len(w.buf)
}
