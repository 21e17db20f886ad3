package rite

import "fmt"

// Well-known identifiers and sizes of the 1.x format.
const (
	Identifier = "RITE"

	SectionIrep  = "IREP"
	SectionLVar  = "LVAR"
	SectionDebug = "DBG\x00"
	SectionEnd   = "END\x00"

	// IrepVersion is the VM version written in the IREP section header.
	IrepVersion = "0000"

	HeaderSize        = 22
	SectionHeaderSize = 8

	// crcOffset is where checksummed content starts: right after the
	// identifier, the version and the crc field itself.
	crcOffset = 10

	// nullSymbol marks an empty symbol, or an unnamed local in LVAR records.
	nullSymbol = 0xffff
)

// SupportedVersions lists the binary format versions this package reads.
// mruby 1.0 through 1.2 write "0003"; 1.3 and 1.4 write "0004".
var SupportedVersions = []string{"0003", "0004"}

// Header is the fixed 22-byte binary header.
type Header struct {
	Identifier      string `json:"identifier" yaml:"identifier"`
	MajorVersion    string `json:"majorVersion" yaml:"majorVersion"`
	MinorVersion    string `json:"minorVersion" yaml:"minorVersion"`
	CRC             uint16 `json:"crc" yaml:"crc"`
	Size            uint32 `json:"size" yaml:"size"`
	CompilerName    string `json:"compilerName" yaml:"compilerName"`
	CompilerVersion string `json:"compilerVersion" yaml:"compilerVersion"`
}

// Version returns the combined format version, e.g. "0003".
func (h Header) Version() string {
	return h.MajorVersion + h.MinorVersion
}

// SectionHeader is the common prefix of every section. Size includes the
// header itself.
type SectionHeader struct {
	Identifier string `json:"identifier" yaml:"identifier"`
	Size       uint32 `json:"size" yaml:"size"`
	Offset     int    `json:"offset" yaml:"offset"`
}

// Name returns the identifier with trailing NUL bytes removed.
func (s SectionHeader) Name() string {
	n := s.Identifier
	for len(n) > 0 && n[len(n)-1] == 0 {
		n = n[:len(n)-1]
	}
	return n
}

// PoolType is the tag byte of a literal pool entry.
type PoolType uint8

const (
	PoolString PoolType = 0
	PoolFixnum PoolType = 1
	PoolFloat  PoolType = 2
)

// String returns "string", "fixnum", "float", or "type(N)".
func (t PoolType) String() string {
	switch t {
	case PoolString:
		return "string"
	case PoolFixnum:
		return "fixnum"
	case PoolFloat:
		return "float"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// MarshalText lets JSON and YAML output show the type name.
func (t PoolType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// PoolEntry is one literal. mrbc stores numbers in their textual form, so
// Value holds the literal text for every type.
type PoolEntry struct {
	Type  PoolType `json:"type" yaml:"type"`
	Value string   `json:"value" yaml:"value"`
}

// Local names a register in an irep. An empty Name marks a slot the
// compiler left unnamed (for example an anonymous block parameter).
type Local struct {
	Name     string `json:"name" yaml:"name"`
	Register int    `json:"register" yaml:"register"`
}

// Irep is one compiled code unit: the top-level script, a class body,
// a method or a block.
type Irep struct {
	// RecordSize is the record size stored in the file. It is informational
	// only; Encode recomputes it.
	RecordSize uint32 `json:"recordSize" yaml:"recordSize"`

	// NumLocals counts local variable slots, including self.
	NumLocals int `json:"numLocals" yaml:"numLocals"`

	// NumRegs counts VM registers used by the code.
	NumRegs int `json:"numRegs" yaml:"numRegs"`

	Code     []uint32    `json:"code" yaml:"code"`
	Pool     []PoolEntry `json:"pool" yaml:"pool"`
	Symbols  []string    `json:"symbols" yaml:"symbols"`
	Children []*Irep     `json:"children" yaml:"children"`

	// Locals holds NumLocals-1 entries when the file has an LVAR section,
	// nil otherwise.
	Locals []Local `json:"locals,omitempty" yaml:"locals,omitempty"`
}

// LocalName returns the local variable name bound to register reg.
func (ir *Irep) LocalName(reg int) (string, bool) {
	for _, l := range ir.Locals {
		if l.Register == reg && l.Name != "" {
			return l.Name, true
		}
	}
	return "", false
}

// Walk visits ir and all its descendants depth first. The path lists the
// child indexes leading from the root to the visited irep.
func (ir *Irep) Walk(fn func(path []int, irep *Irep)) {
	ir.walk(nil, fn)
}

func (ir *Irep) walk(path []int, fn func([]int, *Irep)) {
	fn(path, ir)
	for i, child := range ir.Children {
		childPath := append(append([]int(nil), path...), i)
		child.walk(childPath, fn)
	}
}

// Count returns the number of ireps in the tree rooted at ir.
func (ir *Irep) Count() int {
	n := 1
	for _, child := range ir.Children {
		n += child.Count()
	}
	return n
}

// File is a parsed RITE binary.
type File struct {
	Header Header `json:"header" yaml:"header"`

	// IrepVersion is the version string of the IREP section.
	IrepVersion string `json:"irepVersion" yaml:"irepVersion"`

	// Root is the top-level irep.
	Root *Irep `json:"root" yaml:"root"`

	// HasLVar reports whether an LVAR section was present.
	HasLVar bool `json:"hasLVar" yaml:"hasLVar"`

	// Sections lists every section in file order, footer included.
	Sections []SectionHeader `json:"sections" yaml:"sections"`
}
