package rite

import (
	"fmt"
	"io"
	"os"
	"slices"
)

// Options controls optional parsing checks.
type Options struct {
	// VerifyCRC rejects files whose header checksum does not match.
	VerifyCRC bool
}

// ParseFile reads and parses the RITE binary at path. A missing file
// yields an error satisfying errors.Is(err, os.ErrNotExist).
func ParseFile(path string, opts Options) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseBytes(data, opts)
}

// Parse reads r to the end and parses the content.
func Parse(r io.Reader, opts Options) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read RITE binary: %w", err)
	}
	return ParseBytes(data, opts)
}

// ParseBytes parses an in-memory RITE binary.
//
// Sections are read in order until the END footer. The LVAR section is
// applied to the irep tree parsed from the preceding IREP section; any
// other section is recorded and skipped by its declared size.
func ParseBytes(data []byte, opts Options) (*File, error) {
	r := &reader{data: data}

	header, err := parseHeader(r)
	if err != nil {
		return nil, err
	}
	if int64(header.Size) > int64(len(data)) {
		return nil, fmt.Errorf("%w: header declares %d bytes, file has %d",
			ErrTruncated, header.Size, len(data))
	}
	if opts.VerifyCRC {
		if err := VerifyCRC(data); err != nil {
			return nil, err
		}
	}

	f := &File{Header: header}
	for {
		sec, err := parseSectionHeader(r)
		if err != nil {
			return nil, err
		}
		f.Sections = append(f.Sections, sec)
		if sec.Identifier == SectionEnd {
			break
		}

		end := sec.Offset + int(sec.Size)
		if sec.Size < SectionHeaderSize || end > len(data) {
			return nil, fmt.Errorf("%w: section %q at offset %#x declares size %d",
				ErrMalformed, sec.Name(), sec.Offset, sec.Size)
		}

		switch sec.Identifier {
		case SectionIrep:
			if f.Root != nil {
				return nil, fmt.Errorf("%w: duplicate IREP section", ErrMalformed)
			}
			if f.IrepVersion, err = r.str(4, "IREP version"); err != nil {
				return nil, err
			}
			if f.Root, err = parseIrep(r); err != nil {
				return nil, err
			}
		case SectionLVar:
			if f.Root == nil {
				return nil, fmt.Errorf("%w: LVAR section before IREP section", ErrMalformed)
			}
			if err := parseLVar(r, f.Root); err != nil {
				return nil, err
			}
			f.HasLVar = true
		}

		if r.off > end {
			return nil, fmt.Errorf("%w: section %q overruns its declared size by %d bytes",
				ErrMalformed, sec.Name(), r.off-end)
		}
		r.off = end
	}

	if f.Root == nil {
		return nil, fmt.Errorf("%w: no IREP section", ErrMalformed)
	}
	return f, nil
}

func parseHeader(r *reader) (Header, error) {
	var h Header
	var err error
	if err = r.need(HeaderSize, "header"); err != nil {
		return h, err
	}
	if h.Identifier, err = r.str(4, "identifier"); err != nil {
		return h, err
	}
	if h.Identifier != Identifier {
		return h, fmt.Errorf("%w: identifier %q", ErrBadIdentifier, h.Identifier)
	}
	if h.MajorVersion, err = r.str(2, "major version"); err != nil {
		return h, err
	}
	if h.MinorVersion, err = r.str(2, "minor version"); err != nil {
		return h, err
	}
	if !slices.Contains(SupportedVersions, h.Version()) {
		return h, fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedVersion, h.Version(), SupportedVersions)
	}
	if h.CRC, err = r.u16("crc"); err != nil {
		return h, err
	}
	if h.Size, err = r.u32("binary size"); err != nil {
		return h, err
	}
	if h.CompilerName, err = r.str(4, "compiler name"); err != nil {
		return h, err
	}
	if h.CompilerVersion, err = r.str(4, "compiler version"); err != nil {
		return h, err
	}
	return h, nil
}

func parseSectionHeader(r *reader) (SectionHeader, error) {
	sec := SectionHeader{Offset: r.off}
	id, err := r.bytes(4, "section identifier")
	if err != nil {
		return sec, err
	}
	sec.Identifier = string(id)
	if sec.Size, err = r.u32("section size"); err != nil {
		return sec, err
	}
	return sec, nil
}

// parseIrep reads one irep record and, recursively, its children.
func parseIrep(r *reader) (*Irep, error) {
	start := r.off
	recordSize, err := r.u32("irep record size")
	if err != nil {
		return nil, err
	}
	nlocals, err := r.u16("irep nlocals")
	if err != nil {
		return nil, err
	}
	nregs, err := r.u16("irep nregs")
	if err != nil {
		return nil, err
	}
	nchildren, err := r.u16("irep child count")
	if err != nil {
		return nil, err
	}

	irep := &Irep{
		RecordSize: recordSize,
		NumLocals:  int(nlocals),
		NumRegs:    int(nregs),
	}

	ilen, err := r.u32("instruction count")
	if err != nil {
		return nil, err
	}
	if err := r.align("instruction padding"); err != nil {
		return nil, err
	}
	if err := r.need(int(ilen)*4, "instruction sequence"); err != nil {
		return nil, err
	}
	irep.Code = make([]uint32, ilen)
	for i := range irep.Code {
		irep.Code[i], _ = r.u32("instruction")
	}

	if irep.Pool, err = parsePool(r); err != nil {
		return nil, fmt.Errorf("irep at offset %#x: %w", start, err)
	}
	if irep.Symbols, err = parseSymbols(r); err != nil {
		return nil, fmt.Errorf("irep at offset %#x: %w", start, err)
	}

	irep.Children = make([]*Irep, 0, nchildren)
	for i := 0; i < int(nchildren); i++ {
		child, err := parseIrep(r)
		if err != nil {
			return nil, err
		}
		irep.Children = append(irep.Children, child)
	}
	return irep, nil
}

func parsePool(r *reader) ([]PoolEntry, error) {
	count, err := r.u32("pool count")
	if err != nil {
		return nil, err
	}
	pool := make([]PoolEntry, 0, r.capacity(count, 3))
	for i := uint32(0); i < count; i++ {
		tt, err := r.u8("pool entry type")
		if err != nil {
			return nil, err
		}
		n, err := r.u16("pool entry length")
		if err != nil {
			return nil, err
		}
		b, err := r.bytes(int(n), "pool entry data")
		if err != nil {
			return nil, err
		}
		pool = append(pool, PoolEntry{Type: PoolType(tt), Value: string(b)})
	}
	return pool, nil
}

func parseSymbols(r *reader) ([]string, error) {
	count, err := r.u32("symbol count")
	if err != nil {
		return nil, err
	}
	syms := make([]string, 0, r.capacity(count, 2))
	for i := uint32(0); i < count; i++ {
		n, err := r.u16("symbol length")
		if err != nil {
			return nil, err
		}
		if n == nullSymbol {
			syms = append(syms, "")
			continue
		}
		// Symbols are NUL terminated on disk.
		s, err := r.str(int(n)+1, "symbol")
		if err != nil {
			return nil, err
		}
		syms = append(syms, s)
	}
	return syms, nil
}

// parseLVar reads the LVAR symbol table and assigns local names to every
// irep of the tree, depth first.
func parseLVar(r *reader, root *Irep) error {
	count, err := r.u32("lvar symbol count")
	if err != nil {
		return err
	}
	syms := make([]string, 0, r.capacity(count, 2))
	for i := uint32(0); i < count; i++ {
		n, err := r.u16("lvar symbol length")
		if err != nil {
			return err
		}
		s, err := r.bytes(int(n), "lvar symbol")
		if err != nil {
			return err
		}
		syms = append(syms, string(s))
	}
	return parseLVarRecord(r, root, syms)
}

func parseLVarRecord(r *reader, irep *Irep, syms []string) error {
	n := irep.NumLocals - 1
	if n < 0 {
		n = 0
	}
	irep.Locals = make([]Local, 0, n)
	for i := 0; i < n; i++ {
		idx, err := r.u16("lvar symbol index")
		if err != nil {
			return err
		}
		reg, err := r.u16("lvar register")
		if err != nil {
			return err
		}
		local := Local{Register: int(reg)}
		if idx != nullSymbol {
			if int(idx) >= len(syms) {
				return fmt.Errorf("%w: lvar index %d, table has %d symbols", ErrSymbolIndex, idx, len(syms))
			}
			local.Name = syms[idx]
		}
		irep.Locals = append(irep.Locals, local)
	}
	for _, child := range irep.Children {
		if err := parseLVarRecord(r, child, syms); err != nil {
			return err
		}
	}
	return nil
}
