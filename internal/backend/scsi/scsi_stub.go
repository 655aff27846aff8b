//go:build !linux

// Package scsi drives a ZBC SCSI device through the SG_IO pass-through
// channel. It is only available on Linux.
package scsi

import (
	zbcerr "github.com/vijayvenkateshjana/libzbc/pkg/errors"
	"github.com/vijayvenkateshjana/libzbc/pkg/types"
)

// Backend is a SCSI pass-through device.
type Backend struct{}

// Open is unavailable without the Linux SG driver.
func Open(path string, flags types.OpenFlag) (*Backend, error) {
	return nil, zbcerr.Unsupportedf("scsi backend requires linux").WithPath(path)
}

func (b *Backend) Kind() types.BackendKind { return types.BackendSCSI }
func (b *Backend) Info() types.DeviceInfo  { return types.DeviceInfo{} }

func (b *Backend) ReportZones(startSector uint64, ro types.ReportingOptions, limit int) ([]types.Zone, error) {
	return nil, zbcerr.Unsupportedf("scsi backend requires linux")
}

func (b *Backend) ZoneOp(startSector uint64, op types.ZoneOp, all bool) error {
	return zbcerr.Unsupportedf("scsi backend requires linux")
}

func (b *Backend) ReadAt(p []byte, off int64) (int, error) {
	return 0, zbcerr.Unsupportedf("scsi backend requires linux")
}

func (b *Backend) WriteAt(p []byte, off int64) (int, error) {
	return 0, zbcerr.Unsupportedf("scsi backend requires linux")
}

func (b *Backend) Flush() error { return zbcerr.Unsupportedf("scsi backend requires linux") }

func (b *Backend) SetZones(convSectors, zoneSectors uint64) error {
	return zbcerr.Unsupportedf("scsi backend requires linux")
}

func (b *Backend) SetWritePointer(startSector, wp uint64) error {
	return zbcerr.Unsupportedf("scsi backend requires linux")
}

func (b *Backend) Close() error { return nil }
