// Package backend defines the operation contract every device backend
// implements. Four backends exist: the kernel zoned-block interface, ATA and
// SCSI pass-through, and the file-backed emulation. The contract addresses
// 512-byte sectors; each backend converts to its transport's logical block
// addressing internally.
package backend

import (
	"github.com/vijayvenkateshjana/libzbc/pkg/types"
)

// DefaultReportLimit bounds the number of zone descriptors a single report
// call returns when the caller does not set its own limit. Enumeration is
// restartable: callers continue from the end of the last returned zone.
const DefaultReportLimit = 8192

// Backend is the polymorphic operation set over one bound device. The
// variant set is closed and fixed at build time. All calls are synchronous
// and block for the duration of the underlying I/O; none are cancellable
// once issued.
type Backend interface {
	// Kind identifies the backend variant.
	Kind() types.BackendKind

	// Info returns the device geometry captured at open time.
	Info() types.DeviceInfo

	// ReportZones returns up to limit zone descriptors for zones starting
	// at or after startSector whose condition matches ro, ascending by
	// start sector. Backends whose transport cannot filter must filter
	// the decoded zones themselves. A limit <= 0 means DefaultReportLimit.
	ReportZones(startSector uint64, ro types.ReportingOptions, limit int) ([]types.Zone, error)

	// ZoneOp executes an explicit zone operation on the zone starting at
	// startSector, or on all zones when all is set (startSector is then
	// ignored).
	ZoneOp(startSector uint64, op types.ZoneOp, all bool) error

	// ReadAt reads len(p) bytes at byte offset off.
	ReadAt(p []byte, off int64) (int, error)

	// WriteAt writes len(p) bytes at byte offset off.
	WriteAt(p []byte, off int64) (int, error)

	// Flush forces cached data to stable media.
	Flush() error

	// SetZones reconfigures the zone layout: convSectors of conventional
	// space followed by sequential zones of zoneSectors each. Emulation
	// only; other backends return an unsupported error.
	SetZones(convSectors, zoneSectors uint64) error

	// SetWritePointer moves the write pointer of the zone starting at
	// startSector. Emulation only.
	SetWritePointer(startSector, wp uint64) error

	// Close releases the device channels. Both the data and pass-through
	// channels are released best-effort even if one close fails; the
	// first failure is surfaced.
	Close() error
}
