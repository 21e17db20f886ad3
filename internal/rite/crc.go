package rite

import (
	"encoding/binary"
	"fmt"
)

const (
	crcPolynomial = 0x11021
	crcCarryBit   = 0x1000000
)

// CRC computes mruby's CRC-16/CCITT variant over data. mrbc stores this
// value in the header, computed over every byte after the crc field.
func CRC(data []byte) uint16 {
	var wk uint32
	for _, b := range data {
		wk |= uint32(b)
		for i := 0; i < 8; i++ {
			wk <<= 1
			if wk&crcCarryBit != 0 {
				wk ^= crcPolynomial << 8
			}
		}
	}
	return uint16(wk >> 8)
}

// VerifyCRC checks the header checksum of a complete binary.
func VerifyCRC(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: %d bytes is shorter than the header", ErrTruncated, len(data))
	}
	stored := binary.BigEndian.Uint16(data[8:])
	end := int(binary.BigEndian.Uint32(data[12:]))
	if end < crcOffset || end > len(data) {
		end = len(data)
	}
	if got := CRC(data[crcOffset:end]); got != stored {
		return fmt.Errorf("%w: stored %#04x, computed %#04x", ErrCRCMismatch, stored, got)
	}
	return nil
}
