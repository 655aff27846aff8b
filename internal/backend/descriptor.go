package backend

import (
	"encoding/binary"

	"github.com/vijayvenkateshjana/libzbc/internal/geometry"
	zbcerr "github.com/vijayvenkateshjana/libzbc/pkg/errors"
	"github.com/vijayvenkateshjana/libzbc/pkg/types"
)

// Report Zones wire format sizes, shared by the ZBC and ZAC reply layouts.
const (
	// ReportHeaderSize is the size of the reply header in bytes.
	ReportHeaderSize = 64

	// ZoneDescriptorSize is the size of one zone descriptor in bytes.
	ZoneDescriptorSize = 64
)

// ParseReportHeader returns the number of zone descriptors announced by a
// Report Zones reply header.
func ParseReportHeader(buf []byte) (int, error) {
	if len(buf) < ReportHeaderSize {
		return 0, zbcerr.Newf(zbcerr.CodeIOError,
			"short report zones reply: %d bytes", len(buf))
	}
	listLen := binary.BigEndian.Uint32(buf[0:4])
	return int(listLen / ZoneDescriptorSize), nil
}

// ParseZoneDescriptor decodes one 64-byte zone descriptor, converting its
// LBA fields to 512-byte sectors using the device logical block size.
// Reserved type or condition values are decoding failures.
func ParseZoneDescriptor(buf []byte, logicalBlockSize uint32) (types.Zone, error) {
	var z types.Zone
	if len(buf) < ZoneDescriptorSize {
		return z, zbcerr.Newf(zbcerr.CodeIOError,
			"short zone descriptor: %d bytes", len(buf))
	}

	zt, err := types.ParseZoneType(buf[0])
	if err != nil {
		return z, zbcerr.Newf(zbcerr.CodeIOError, "zone descriptor: %v", err)
	}
	zc, err := types.ParseZoneCondition(buf[1] >> 4)
	if err != nil {
		return z, zbcerr.Newf(zbcerr.CodeIOError, "zone descriptor: %v", err)
	}

	z.Type = zt
	z.Condition = zc
	z.NonSeq = buf[1]&0x02 != 0
	z.ResetRecommended = buf[1]&0x01 != 0
	z.Length = geometry.LBAToSector(logicalBlockSize, binary.BigEndian.Uint64(buf[8:16]))
	z.Start = geometry.LBAToSector(logicalBlockSize, binary.BigEndian.Uint64(buf[16:24]))
	if z.IsSequential() && !zc.IsAbsorbing() {
		z.WritePointer = geometry.LBAToSector(logicalBlockSize, binary.BigEndian.Uint64(buf[24:32]))
	} else {
		z.WritePointer = z.Start
	}
	return z, nil
}
