package rite

import (
	"encoding/binary"
	"fmt"
)

// reader is a big-endian cursor over an in-memory binary. The offset is
// absolute so that alignment padding can be computed the way mrbc does.
type reader struct {
	data []byte
	off  int
}

func (r *reader) remaining() int {
	return len(r.data) - r.off
}

// need fails with ErrTruncated when fewer than n bytes remain.
func (r *reader) need(n int, what string) error {
	if n < 0 || r.remaining() < n {
		return fmt.Errorf("%w: %s at offset %#x needs %d bytes, %d left",
			ErrTruncated, what, r.off, n, r.remaining())
	}
	return nil
}

func (r *reader) u8(what string) (uint8, error) {
	if err := r.need(1, what); err != nil {
		return 0, err
	}
	v := r.data[r.off]
	r.off++
	return v, nil
}

func (r *reader) u16(what string) (uint16, error) {
	if err := r.need(2, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) u32(what string) (uint32, error) {
	if err := r.need(4, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) bytes(n int, what string) ([]byte, error) {
	if err := r.need(n, what); err != nil {
		return nil, err
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

// str reads a fixed-width field and cuts it at the first NUL.
func (r *reader) str(n int, what string) (string, error) {
	b, err := r.bytes(n, what)
	if err != nil {
		return "", err
	}
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), nil
		}
	}
	return string(b), nil
}

// align skips the padding mrbc inserts before instruction sequences.
func (r *reader) align(what string) error {
	pad := padding(r.off)
	if pad == 0 {
		return nil
	}
	_, err := r.bytes(pad, what)
	return err
}

// padding returns the bytes needed to bring off to a 4-byte boundary.
func padding(off int) int {
	return (4 - off&3) & 3
}

// capacity bounds a slice preallocation by the bytes actually left, so a
// corrupt count cannot trigger a huge allocation.
func (r *reader) capacity(count uint32, minSize int) int {
	limit := r.remaining() / minSize
	if int64(count) < int64(limit) {
		return int(count)
	}
	return limit
}
