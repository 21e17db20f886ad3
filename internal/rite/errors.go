package rite

import "errors"

var (
	// ErrBadIdentifier is returned when the file does not start with "RITE".
	ErrBadIdentifier = errors.New("not a RITE binary")

	// ErrUnsupportedVersion is returned for binary format versions other
	// than the mruby 1.x ones.
	ErrUnsupportedVersion = errors.New("unsupported RITE version")

	// ErrTruncated is returned when a read runs past the end of the data.
	ErrTruncated = errors.New("truncated RITE binary")

	// ErrMalformed is returned for structurally invalid content such as
	// section sizes that disagree with their payload.
	ErrMalformed = errors.New("malformed RITE binary")

	// ErrSymbolIndex is returned when an LVAR record points past the
	// section's symbol table.
	ErrSymbolIndex = errors.New("symbol index out of range")

	// ErrCRCMismatch is returned by VerifyCRC when the stored checksum does
	// not match the content.
	ErrCRCMismatch = errors.New("RITE CRC mismatch")
)
