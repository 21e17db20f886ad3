package rite

import (
	"encoding/binary"
	"fmt"
)

// Default header values written by Encode when the File leaves them empty.
const (
	DefaultMajorVersion    = "00"
	DefaultMinorVersion    = "03"
	DefaultCompilerName    = "MATZ"
	DefaultCompilerVersion = "0000"
)

// writer accumulates big-endian output. Offsets are absolute so padding
// matches what the parser expects.
type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }

// fixed writes s into an n-byte field, NUL padded.
func (w *writer) fixed(s string, n int) {
	b := make([]byte, n)
	copy(b, s)
	w.buf = append(w.buf, b...)
}

func (w *writer) putU32(off int, v uint32) {
	binary.BigEndian.PutUint32(w.buf[off:], v)
}

// Encode serializes f into a RITE binary. Section sizes, record sizes, the
// binary size and the CRC are computed; the corresponding fields of f are
// ignored. An LVAR section is written when f.HasLVar is set, in which case
// every irep must carry NumLocals-1 locals.
func Encode(f *File) ([]byte, error) {
	if f == nil || f.Root == nil {
		return nil, fmt.Errorf("%w: no root irep to encode", ErrMalformed)
	}

	h := f.Header
	major, minor := h.MajorVersion, h.MinorVersion
	if major == "" && minor == "" {
		major, minor = DefaultMajorVersion, DefaultMinorVersion
	}
	name := h.CompilerName
	if name == "" {
		name = DefaultCompilerName
	}
	version := h.CompilerVersion
	if version == "" {
		version = DefaultCompilerVersion
	}
	irepVersion := f.IrepVersion
	if irepVersion == "" {
		irepVersion = IrepVersion
	}

	w := &writer{}
	w.fixed(Identifier, 4)
	w.fixed(major, 2)
	w.fixed(minor, 2)
	w.u16(0) // crc, patched below
	w.u32(0) // size, patched below
	w.fixed(name, 4)
	w.fixed(version, 4)

	start := len(w.buf)
	w.fixed(SectionIrep, 4)
	w.u32(0)
	w.fixed(irepVersion, 4)
	if err := encodeIrep(w, f.Root); err != nil {
		return nil, err
	}
	w.putU32(start+4, uint32(len(w.buf)-start))

	if f.HasLVar {
		start = len(w.buf)
		w.fixed(SectionLVar, 4)
		w.u32(0)
		if err := encodeLVar(w, f.Root); err != nil {
			return nil, err
		}
		w.putU32(start+4, uint32(len(w.buf)-start))
	}

	w.fixed(SectionEnd, 4)
	w.u32(SectionHeaderSize)

	w.putU32(12, uint32(len(w.buf)))
	binary.BigEndian.PutUint16(w.buf[8:], CRC(w.buf[crcOffset:]))
	return w.buf, nil
}

func encodeIrep(w *writer, irep *Irep) error {
	if irep.NumLocals > 0xffff || irep.NumRegs > 0xffff || len(irep.Children) > 0xffff {
		return fmt.Errorf("%w: irep counts exceed 16 bits", ErrMalformed)
	}

	start := len(w.buf)
	w.u32(0)
	w.u16(uint16(irep.NumLocals))
	w.u16(uint16(irep.NumRegs))
	w.u16(uint16(len(irep.Children)))

	w.u32(uint32(len(irep.Code)))
	for i := padding(len(w.buf)); i > 0; i-- {
		w.u8(0)
	}
	for _, ins := range irep.Code {
		w.u32(ins)
	}

	w.u32(uint32(len(irep.Pool)))
	for _, p := range irep.Pool {
		if len(p.Value) > 0xffff {
			return fmt.Errorf("%w: pool entry of %d bytes", ErrMalformed, len(p.Value))
		}
		w.u8(uint8(p.Type))
		w.u16(uint16(len(p.Value)))
		w.buf = append(w.buf, p.Value...)
	}

	w.u32(uint32(len(irep.Symbols)))
	for _, s := range irep.Symbols {
		if s == "" {
			w.u16(nullSymbol)
			continue
		}
		if len(s) >= nullSymbol {
			return fmt.Errorf("%w: symbol of %d bytes", ErrMalformed, len(s))
		}
		w.u16(uint16(len(s)))
		w.buf = append(w.buf, s...)
		w.u8(0)
	}
	w.putU32(start, uint32(len(w.buf)-start))

	for _, child := range irep.Children {
		if err := encodeIrep(w, child); err != nil {
			return err
		}
	}
	return nil
}

func encodeLVar(w *writer, root *Irep) error {
	var syms []string
	index := map[string]int{}
	var walkErr error
	root.Walk(func(_ []int, irep *Irep) {
		want := irep.NumLocals - 1
		if want < 0 {
			want = 0
		}
		if len(irep.Locals) != want && walkErr == nil {
			walkErr = fmt.Errorf("%w: irep with %d locals has %d LVAR entries",
				ErrMalformed, irep.NumLocals, len(irep.Locals))
		}
		for _, l := range irep.Locals {
			if _, ok := index[l.Name]; !ok && l.Name != "" {
				index[l.Name] = len(syms)
				syms = append(syms, l.Name)
			}
		}
	})
	if walkErr != nil {
		return walkErr
	}

	w.u32(uint32(len(syms)))
	for _, s := range syms {
		w.u16(uint16(len(s)))
		w.buf = append(w.buf, s...)
	}
	root.Walk(func(_ []int, irep *Irep) {
		for _, l := range irep.Locals {
			if l.Name == "" {
				w.u16(nullSymbol)
			} else {
				w.u16(uint16(index[l.Name]))
			}
			w.u16(uint16(l.Register))
		}
	})
	return nil
}
