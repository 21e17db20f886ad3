// Package rite reads and writes mruby 1.x compiled bytecode files (the
// "RITE" binary format produced by mrbc, usually with a .mrb extension).
//
// A RITE file is laid out as:
//
//	header   "RITE" + version + crc + size + compiler name/version (22 bytes)
//	IREP     section header + 4-byte version + a tree of irep records
//	LVAR     optional local variable names for every irep, depth first
//	...      other sections (for example DBG\0) are skipped by size
//	END\0    footer
//
// All integers are big-endian. Each irep record carries its instruction
// sequence, literal pool, symbol table and child ireps (blocks, methods,
// class bodies).
//
// The package handles:
//   - Parsing a file into a File tree (Parse, ParseBytes, ParseFile)
//   - Verifying the header CRC (CRC, VerifyCRC)
//   - Encoding a File tree back into bytes (Encode)
package rite
