package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestReaderRoundTripsWriterFields(t *testing.T) {
	w := NewWriter()
	w.WriteU8(7)
	w.WriteI8(-1)
	w.WriteU16(0xBEEF)
	w.WriteI32(-42)
	w.WriteU64(1 << 40)
	w.WriteString16("avatar")
	w.WriteBytes32([]byte{1, 2, 3})

	r := NewReader(w.Bytes())
	if got := r.ReadU8(); got != 7 {
		t.Fatalf("u8: got %d", got)
	}
	if got := r.ReadI8(); got != -1 {
		t.Fatalf("i8: got %d", got)
	}
	if got := r.ReadU16(); got != 0xBEEF {
		t.Fatalf("u16: got %x", got)
	}
	if got := r.ReadI32(); got != -42 {
		t.Fatalf("i32: got %d", got)
	}
	if got := r.ReadU64(); got != 1<<40 {
		t.Fatalf("u64: got %d", got)
	}
	if got := r.ReadString16(); got != "avatar" {
		t.Fatalf("string: got %q", got)
	}
	if got := r.ReadBytes32(); !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("bytes32: got %v", got)
	}
	if err := r.Done(); err != nil {
		t.Fatalf("expected clean finish, got %v", err)
	}
}

func TestReaderShortReadIsSticky(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_ = r.ReadU32()
	if !errors.Is(r.Err(), ErrShort) {
		t.Fatalf("expected ErrShort, got %v", r.Err())
	}
	if got := r.ReadU8(); got != 0 {
		t.Fatalf("expected zero value after failure, got %d", got)
	}
	if r.Offset() != 0 {
		t.Fatalf("failed read must not advance, offset=%d", r.Offset())
	}
}

func TestReaderRejectsOversizedLengthPrefix(t *testing.T) {
	w := NewWriter()
	w.WriteU32(1 << 30)
	w.WriteRaw([]byte{9})
	r := NewReader(w.Bytes())
	if b := r.ReadBytes32(); b != nil {
		t.Fatalf("expected nil payload, got %v", b)
	}
	if !errors.Is(r.Err(), ErrShort) {
		t.Fatalf("expected ErrShort, got %v", r.Err())
	}
}

func TestDoneReportsTrailingBytes(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	r.ReadU8()
	if err := r.Done(); err == nil {
		t.Fatal("expected trailing-bytes error")
	}
}
