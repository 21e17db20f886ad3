package rite

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleFile builds a small tree: a script with one method child that has
// a block child.
func sampleFile() *File {
	block := &Irep{
		NumLocals: 2,
		NumRegs:   4,
		Code:      []uint32{0x01000026, 0x0000004a},
		Symbols:   []string{"puts"},
		Locals:    []Local{{Name: "arg", Register: 1}},
	}
	method := &Irep{
		NumLocals: 3,
		NumRegs:   6,
		Code:      []uint32{0x00080026, 0x00000029, 0x0000004a},
		Pool: []PoolEntry{
			{Type: PoolString, Value: "hello"},
			{Type: PoolFixnum, Value: "42"},
			{Type: PoolFloat, Value: "1.5"},
		},
		Symbols:  []string{"each", "", "+"},
		Children: []*Irep{block},
		Locals:   []Local{{Name: "a", Register: 1}, {Name: "", Register: 2}},
	}
	root := &Irep{
		NumLocals: 1,
		NumRegs:   3,
		Code:      []uint32{0x00800040, 0x0000004a},
		Symbols:   []string{"greet"},
		Children:  []*Irep{method},
		Locals:    []Local{},
	}
	return &File{Root: root, HasLVar: true}
}

// TestCRC checks hand-computed values of the mruby checksum.
func TestCRC(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"empty", nil, 0x0000},
		{"single byte", []byte{0x01}, 0x0001},
		{"two bytes", []byte{0x01, 0x00}, 0x0100},
		{"carry", []byte{0x01, 0x00, 0x00}, 0x1021},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CRC(tt.data))
		})
	}
}

// TestEncode_RoundTrip verifies that an encoded tree parses back to the
// same content and re-encodes to identical bytes.
func TestEncode_RoundTrip(t *testing.T) {
	src := sampleFile()
	data, err := Encode(src)
	require.NoError(t, err)

	f, err := ParseBytes(data, Options{VerifyCRC: true})
	require.NoError(t, err)

	assert.Equal(t, Identifier, f.Header.Identifier)
	assert.Equal(t, "0003", f.Header.Version())
	assert.Equal(t, "MATZ", f.Header.CompilerName)
	assert.Equal(t, uint32(len(data)), f.Header.Size)
	assert.Equal(t, IrepVersion, f.IrepVersion)
	assert.True(t, f.HasLVar)

	require.Len(t, f.Sections, 3)
	assert.Equal(t, SectionIrep, f.Sections[0].Identifier)
	assert.Equal(t, SectionLVar, f.Sections[1].Identifier)
	assert.Equal(t, "END", f.Sections[2].Name())
	assert.Equal(t, HeaderSize, f.Sections[0].Offset)

	assert.Equal(t, 3, f.Root.Count())
	method := f.Root.Children[0]
	assert.Equal(t, src.Root.Children[0].Code, method.Code)
	assert.Equal(t, src.Root.Children[0].Pool, method.Pool)
	assert.Equal(t, []string{"each", "", "+"}, method.Symbols)
	assert.Equal(t, src.Root.Children[0].Locals, method.Locals)
	assert.Equal(t, 6, method.NumRegs)
	assert.Equal(t, []Local{{Name: "arg", Register: 1}}, method.Children[0].Locals)
	assert.Empty(t, f.Root.Locals)

	again, err := Encode(f)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

// TestEncode_WithoutLVar omits the LVAR section entirely.
func TestEncode_WithoutLVar(t *testing.T) {
	src := sampleFile()
	src.HasLVar = false
	data, err := Encode(src)
	require.NoError(t, err)

	f, err := ParseBytes(data, Options{})
	require.NoError(t, err)
	assert.False(t, f.HasLVar)
	assert.Nil(t, f.Root.Children[0].Locals)
	assert.Len(t, f.Sections, 2)
}

// TestEncode_LocalCountMismatch rejects LVAR data that disagrees with
// NumLocals.
func TestEncode_LocalCountMismatch(t *testing.T) {
	src := sampleFile()
	src.Root.Children[0].Locals = src.Root.Children[0].Locals[:1]
	_, err := Encode(src)
	assert.ErrorIs(t, err, ErrMalformed)
}

// TestParse_InstructionAlignment checks that padding before the
// instruction array follows the absolute file offset.
func TestParse_InstructionAlignment(t *testing.T) {
	src := sampleFile()
	data, err := Encode(src)
	require.NoError(t, err)

	// Root record starts after header (22) + section header (8) + version
	// (4) = 34; the ilen field ends at 34+14 = 48, already aligned. The
	// method record begins at an arbitrary offset and needs padding.
	f, err := ParseBytes(data, Options{})
	require.NoError(t, err)
	assert.Equal(t, src.Root.Code, f.Root.Code)
	assert.Equal(t, src.Root.Children[0].Children[0].Code, f.Root.Children[0].Children[0].Code)
}

// TestParse_SkipsUnknownSections splices a debug section in front of the
// footer and expects it to be recorded and skipped.
func TestParse_SkipsUnknownSections(t *testing.T) {
	data, err := Encode(sampleFile())
	require.NoError(t, err)

	footer := len(data) - SectionHeaderSize
	dbg := []byte("DBG\x00")
	dbg = binary.BigEndian.AppendUint32(dbg, 12)
	dbg = append(dbg, 0xde, 0xad, 0xbe, 0xef)

	spliced := append(append(append([]byte{}, data[:footer]...), dbg...), data[footer:]...)
	binary.BigEndian.PutUint32(spliced[12:], uint32(len(spliced)))
	binary.BigEndian.PutUint16(spliced[8:], CRC(spliced[crcOffset:]))

	f, err := ParseBytes(spliced, Options{VerifyCRC: true})
	require.NoError(t, err)
	require.Len(t, f.Sections, 4)
	assert.Equal(t, "DBG", f.Sections[2].Name())
	assert.Equal(t, uint32(12), f.Sections[2].Size)
}

// TestParse_Errors covers the rejection paths.
func TestParse_Errors(t *testing.T) {
	valid, err := Encode(sampleFile())
	require.NoError(t, err)

	mutate := func(fn func(b []byte) []byte) []byte {
		return fn(append([]byte{}, valid...))
	}

	tests := []struct {
		name    string
		data    []byte
		opts    Options
		wantErr error
	}{
		{
			name:    "empty input",
			data:    nil,
			wantErr: ErrTruncated,
		},
		{
			name: "bad identifier",
			data: mutate(func(b []byte) []byte {
				copy(b, "RIFF")
				return b
			}),
			wantErr: ErrBadIdentifier,
		},
		{
			name: "mruby 2 version",
			data: mutate(func(b []byte) []byte {
				copy(b[4:], "0005")
				return b
			}),
			wantErr: ErrUnsupportedVersion,
		},
		{
			name: "truncated body",
			data: mutate(func(b []byte) []byte {
				return b[:40]
			}),
			wantErr: ErrTruncated,
		},
		{
			name: "crc mismatch",
			data: mutate(func(b []byte) []byte {
				b[len(b)-9] ^= 0xff
				return b
			}),
			opts:    Options{VerifyCRC: true},
			wantErr: ErrCRCMismatch,
		},
		{
			name: "section size too small",
			data: mutate(func(b []byte) []byte {
				binary.BigEndian.PutUint32(b[HeaderSize+4:], 4)
				return b
			}),
			wantErr: ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBytes(tt.data, tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

// TestParse_LVarSymbolIndex rejects an LVAR record pointing past the table.
func TestParse_LVarSymbolIndex(t *testing.T) {
	data, err := Encode(sampleFile())
	require.NoError(t, err)

	f, err := ParseBytes(data, Options{})
	require.NoError(t, err)
	lvar := f.Sections[1]

	// Table: count(4) + "a"(2+1) + "arg"(2+3); root has no records; the
	// method's first record follows.
	recordOff := lvar.Offset + SectionHeaderSize + 4 + 3 + 5
	binary.BigEndian.PutUint16(data[recordOff:], 9)

	_, err = ParseBytes(data, Options{})
	assert.ErrorIs(t, err, ErrSymbolIndex)
}

// TestParseFile reads from disk and reports missing files as not-exist.
func TestParseFile(t *testing.T) {
	data, err := Encode(sampleFile())
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "sample.mrb")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	f, err := ParseFile(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, f.Root.Count())

	_, err = ParseFile(filepath.Join(dir, "missing.mrb"), Options{})
	assert.ErrorIs(t, err, os.ErrNotExist)

	f, err = Parse(bytes.NewReader(data), Options{})
	require.NoError(t, err)
	assert.Equal(t, "greet", f.Root.Symbols[0])
}

// TestIrep_Walk visits ireps depth first with their paths.
func TestIrep_Walk(t *testing.T) {
	var paths [][]int
	sampleFile().Root.Walk(func(path []int, _ *Irep) {
		paths = append(paths, path)
	})
	assert.Equal(t, [][]int{nil, {0}, {0, 0}}, paths)

	name, ok := sampleFile().Root.Children[0].LocalName(1)
	assert.True(t, ok)
	assert.Equal(t, "a", name)
	_, ok = sampleFile().Root.Children[0].LocalName(2)
	assert.False(t, ok)
}
