//go:build !linux

// Package blockdev drives a zoned block device through the kernel zoned
// block interface. It is only available on Linux.
package blockdev

import (
	zbcerr "github.com/vijayvenkateshjana/libzbc/pkg/errors"
	"github.com/vijayvenkateshjana/libzbc/pkg/types"
)

// Backend is a kernel zoned block device.
type Backend struct{}

// Open is unavailable without the Linux zoned block interface.
func Open(path string, flags types.OpenFlag) (*Backend, error) {
	return nil, zbcerr.Unsupportedf("block backend requires linux").WithPath(path)
}

func (b *Backend) Kind() types.BackendKind { return types.BackendBlock }
func (b *Backend) Info() types.DeviceInfo  { return types.DeviceInfo{} }

func (b *Backend) ReportZones(startSector uint64, ro types.ReportingOptions, limit int) ([]types.Zone, error) {
	return nil, zbcerr.Unsupportedf("block backend requires linux")
}

func (b *Backend) ZoneOp(startSector uint64, op types.ZoneOp, all bool) error {
	return zbcerr.Unsupportedf("block backend requires linux")
}

func (b *Backend) ReadAt(p []byte, off int64) (int, error) {
	return 0, zbcerr.Unsupportedf("block backend requires linux")
}

func (b *Backend) WriteAt(p []byte, off int64) (int, error) {
	return 0, zbcerr.Unsupportedf("block backend requires linux")
}

func (b *Backend) Flush() error { return zbcerr.Unsupportedf("block backend requires linux") }

func (b *Backend) SetZones(convSectors, zoneSectors uint64) error {
	return zbcerr.Unsupportedf("block backend requires linux")
}

func (b *Backend) SetWritePointer(startSector, wp uint64) error {
	return zbcerr.Unsupportedf("block backend requires linux")
}

func (b *Backend) Close() error { return nil }
