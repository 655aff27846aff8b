// Package geometry holds the pure conversion and validation functions over
// device block-size metadata. The sector unit is a fixed 512 bytes,
// independent of the device logical block size; backends address logical
// blocks (LBAs) and everything above them addresses sectors.
package geometry

import (
	zbcerr "github.com/vijayvenkateshjana/libzbc/pkg/errors"
)

const (
	// SectorSize is the fixed sector unit in bytes.
	SectorSize = 512

	// SectorShift converts between bytes and sectors.
	SectorShift = 9
)

// SectorToLBA converts a sector address to a logical block address for a
// device with the given logical block size.
func SectorToLBA(logicalBlockSize uint32, sector uint64) uint64 {
	return (sector << SectorShift) / uint64(logicalBlockSize)
}

// LBAToSector converts a logical block address to a sector address.
func LBAToSector(logicalBlockSize uint32, lba uint64) uint64 {
	return (lba * uint64(logicalBlockSize)) >> SectorShift
}

// BytesToSectors converts a byte count to sectors, rounding down.
func BytesToSectors(n uint64) uint64 {
	return n >> SectorShift
}

// SectorsToBytes converts a sector count to bytes.
func SectorsToBytes(sectors uint64) uint64 {
	return sectors << SectorShift
}

// LogicalAligned reports whether a sector address falls on a logical block
// boundary.
func LogicalAligned(logicalBlockSize uint32, sector uint64) bool {
	return (sector<<SectorShift)&uint64(logicalBlockSize-1) == 0
}

// PhysicalAligned reports whether a sector address falls on a physical block
// boundary.
func PhysicalAligned(physicalBlockSize uint32, sector uint64) bool {
	return (sector<<SectorShift)&uint64(physicalBlockSize-1) == 0
}

// ByteAligned reports whether a byte offset falls on a logical block
// boundary.
func ByteAligned(logicalBlockSize uint32, offset int64) bool {
	return offset >= 0 && offset&int64(logicalBlockSize-1) == 0
}

// PowerOfTwo reports whether v is a non-zero power of two.
func PowerOfTwo(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

// ValidateBlockSizes enforces the geometry invariants a backend must satisfy
// before a handle is returned: both block sizes are powers of two, and the
// physical size is at least the logical size and a multiple of it.
func ValidateBlockSizes(logical, physical uint32) error {
	if !PowerOfTwo(logical) {
		return zbcerr.Newf(zbcerr.CodeOpenFailure,
			"logical block size %d is not a power of two", logical)
	}
	if !PowerOfTwo(physical) {
		return zbcerr.Newf(zbcerr.CodeOpenFailure,
			"physical block size %d is not a power of two", physical)
	}
	if physical < logical {
		return zbcerr.Newf(zbcerr.CodeOpenFailure,
			"physical block size %d smaller than logical block size %d", physical, logical)
	}
	if physical%logical != 0 {
		return zbcerr.Newf(zbcerr.CodeOpenFailure,
			"physical block size %d not a multiple of logical block size %d", physical, logical)
	}
	return nil
}

// ValidateIO enforces the alignment rules for a read or write request: the
// byte offset and length must both be multiples of the logical block size.
// Misaligned requests are rejected here and never reach a backend.
func ValidateIO(logicalBlockSize uint32, offset int64, length int) error {
	if offset < 0 {
		return zbcerr.InvalidArgumentf("negative I/O offset %d", offset)
	}
	if !ByteAligned(logicalBlockSize, offset) {
		return zbcerr.InvalidArgumentf(
			"I/O offset %d not aligned to logical block size %d", offset, logicalBlockSize)
	}
	if length%int(logicalBlockSize) != 0 {
		return zbcerr.InvalidArgumentf(
			"I/O length %d not a multiple of logical block size %d", length, logicalBlockSize)
	}
	return nil
}
