package zbc

import (
	"sync"
	"time"

	"github.com/vijayvenkateshjana/libzbc/internal/backend"
	"github.com/vijayvenkateshjana/libzbc/internal/backend/ata"
	"github.com/vijayvenkateshjana/libzbc/internal/backend/blockdev"
	"github.com/vijayvenkateshjana/libzbc/internal/backend/emu"
	"github.com/vijayvenkateshjana/libzbc/internal/backend/scsi"
	"github.com/vijayvenkateshjana/libzbc/internal/geometry"
	"github.com/vijayvenkateshjana/libzbc/internal/metrics"
	"github.com/vijayvenkateshjana/libzbc/internal/zlog"
	"github.com/vijayvenkateshjana/libzbc/internal/zone"
	zbcerr "github.com/vijayvenkateshjana/libzbc/pkg/errors"
	"github.com/vijayvenkateshjana/libzbc/pkg/types"
)

// SectorSize is the fixed addressing unit of the public API in bytes.
const SectorSize = geometry.SectorSize

// Options control how a device is opened.
type Options struct {
	// Flags are the open-time flags. The zero value opens read-only.
	Flags types.OpenFlag

	// Backend forces a specific backend. BackendAuto probes the kernel
	// interface, then ATA, then SCSI. A forced backend that fails to bind
	// is an open failure; there is no fallback.
	Backend types.BackendKind

	// EmuLogicalBlockSize and EmuPhysicalBlockSize set the geometry of a
	// newly created emulated device. Ignored for other backends and for
	// emulated files that already carry metadata. Zero means the defaults
	// (512 and 4096 bytes).
	EmuLogicalBlockSize  uint32
	EmuPhysicalBlockSize uint32

	// Metrics receives operation metrics when set.
	Metrics *metrics.Collector
}

// Device is an open handle on one zoned block device, bound to a single
// backend for its lifetime. Methods are safe for concurrent use, but the
// library serializes nothing beyond its own bookkeeping: concurrent zone
// operations race exactly as they would on the raw device.
type Device struct {
	path    string
	backend backend.Backend
	info    types.DeviceInfo
	flags   types.OpenFlag
	metrics *metrics.Collector

	mu      sync.Mutex
	lastErr error
}

// Open binds a device path to a backend and returns the handle. The device
// geometry is validated before the handle is returned; a device reporting
// inconsistent block sizes fails the open.
func Open(path string, opts Options) (*Device, error) {
	if path == "" {
		return nil, zbcerr.New(zbcerr.CodeInvalidArgument, "empty device path")
	}

	b, err := bindBackend(path, opts)
	if err != nil {
		return nil, err
	}

	info := b.Info()
	if err := geometry.ValidateBlockSizes(info.LogicalBlockSize, info.PhysicalBlockSize); err != nil {
		b.Close()
		if ze, ok := err.(*zbcerr.Error); ok {
			return nil, ze.WithPath(path).WithBackend(b.Kind().String())
		}
		return nil, err
	}

	zlog.Infof("opened %s via %s backend: %s, lbs %d, %d sectors",
		path, b.Kind(), info.Model, info.LogicalBlockSize, info.TotalSectors)
	return &Device{
		path:    path,
		backend: b,
		info:    info,
		flags:   opts.Flags,
		metrics: opts.Metrics,
	}, nil
}

// bindBackend selects and opens the backend for a path. Probing tries the
// kernel zoned-block interface first since it needs no pass-through
// privileges, then the ATA and SCSI channels.
func bindBackend(path string, opts Options) (backend.Backend, error) {
	emuOpts := emu.Options{
		LogicalBlockSize:  opts.EmuLogicalBlockSize,
		PhysicalBlockSize: opts.EmuPhysicalBlockSize,
	}
	switch opts.Backend {
	case types.BackendBlock:
		return blockdev.Open(path, opts.Flags)
	case types.BackendATA:
		return ata.Open(path, opts.Flags)
	case types.BackendSCSI:
		return scsi.Open(path, opts.Flags)
	case types.BackendEmulated:
		return emu.Open(path, opts.Flags, emuOpts)
	case types.BackendAuto:
	default:
		return nil, zbcerr.InvalidArgumentf("backend %s", opts.Backend).WithPath(path)
	}

	var probeErr error
	if b, err := blockdev.Open(path, opts.Flags); err == nil {
		return b, nil
	} else {
		zlog.Debugf("block backend probe of %s: %v", path, err)
		probeErr = err
	}
	if b, err := ata.Open(path, opts.Flags); err == nil {
		return b, nil
	} else {
		zlog.Debugf("ata backend probe of %s: %v", path, err)
	}
	if b, err := scsi.Open(path, opts.Flags); err == nil {
		return b, nil
	} else {
		zlog.Debugf("scsi backend probe of %s: %v", path, err)
	}
	return nil, zbcerr.Newf(zbcerr.CodeOpenFailure, "no backend accepted %s", path).
		WithPath(path).WithCause(probeErr)
}

// Path returns the device path the handle was opened with.
func (d *Device) Path() string { return d.path }

// Kind returns the backend the handle is bound to.
func (d *Device) Kind() types.BackendKind { return d.backend.Kind() }

// Info returns the device geometry captured at open time.
func (d *Device) Info() types.DeviceInfo { return d.info }

// LastError returns the most recent operation error on this handle, or nil.
// It is diagnostic only and racy under concurrent operations by design.
func (d *Device) LastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

func (d *Device) finish(op string, start time.Time, err error) error {
	kind := d.backend.Kind().String()
	d.metrics.RecordOperation(kind, op, time.Since(start))
	if err != nil {
		d.metrics.RecordError(kind, op, string(zbcerr.CodeOf(err)))
		zlog.Errorf("%s on %s failed: %v", op, d.path, err)
	}
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
	return err
}

// ReportZones enumerates up to limit zones starting at or after startSector
// whose condition matches ro, ascending by start sector. The start sector
// must be a zone start. Only the low 6 bits of ro are significant. A start
// sector at or beyond the device capacity yields an empty result, not an
// error. A limit <= 0 applies the
// default limit; enumeration restarts from the end of the last returned
// zone.
func (d *Device) ReportZones(startSector uint64, ro types.ReportingOptions, limit int) ([]types.Zone, error) {
	start := time.Now()
	zones, err := d.reportZones(startSector, ro, limit)
	d.finish("report-zones", start, err)
	return zones, err
}

func (d *Device) reportZones(startSector uint64, ro types.ReportingOptions, limit int) ([]types.Zone, error) {
	if !d.info.Model.IsZoned() {
		return nil, zbcerr.NotZonedf("%s is not a zoned device", d.path).WithPath(d.path)
	}
	if startSector >= d.info.TotalSectors {
		return nil, nil
	}
	if d.info.ZoneSectors != 0 && startSector%d.info.ZoneSectors != 0 {
		return nil, zbcerr.InvalidArgumentf("report start sector %d is not a zone start", startSector).
			WithPath(d.path).WithOp("report-zones")
	}
	ro = ro.Mask()
	if limit <= 0 {
		limit = backend.DefaultReportLimit
	}

	// Backends filter accurately on their own; only descriptor sanity is
	// checked here.
	zones, err := d.backend.ReportZones(startSector, ro, limit)
	if err != nil {
		return nil, err
	}
	for _, z := range zones {
		if err := zone.CheckConsistency(z); err != nil {
			return nil, zbcerr.Newf(zbcerr.CodeIOError,
				"inconsistent zone descriptor at sector %d: %v", z.Start, err).
				WithPath(d.path).WithBackend(d.backend.Kind().String()).WithCause(err)
		}
	}
	if len(zones) > limit {
		zones = zones[:limit]
	}
	return zones, nil
}

// ZoneOp executes op on the zone starting exactly at startSector, or on
// every applicable zone when all is set. A startSector that is not a zone
// start is rejected. Single-zone operations on conventional zones fail;
// all-zones operations act only on zones in the operation's applicability
// set and silently skip the rest, conventional and absorbing zones
// included.
func (d *Device) ZoneOp(startSector uint64, op types.ZoneOp, all bool) error {
	start := time.Now()
	return d.finish(op.String(), start, d.zoneOp(startSector, op, all))
}

func (d *Device) zoneOp(startSector uint64, op types.ZoneOp, all bool) error {
	if !op.Valid() {
		return zbcerr.InvalidArgumentf("zone op %d", op).WithPath(d.path)
	}
	if !d.info.Model.IsZoned() {
		return zbcerr.NotZonedf("%s is not a zoned device", d.path).WithPath(d.path)
	}
	if all {
		return d.backend.ZoneOp(0, op, true)
	}

	// The target is re-resolved from the device on every call; the library
	// never caches zone state between operations.
	zones, err := d.backend.ReportZones(startSector, types.ReportAll, 1)
	if err != nil {
		return err
	}
	if len(zones) == 0 || zones[0].Start != startSector {
		return zbcerr.InvalidArgumentf("sector %d is not a zone start", startSector).
			WithPath(d.path).WithOp(op.String())
	}
	if zones[0].IsConventional() {
		return zbcerr.NotZonedf("zone at sector %d is conventional", startSector).
			WithPath(d.path).WithOp(op.String())
	}
	return d.backend.ZoneOp(startSector, op, false)
}

// OpenZone explicitly opens the zone starting at startSector, or all
// closed and implicitly open zones when all is set.
func (d *Device) OpenZone(startSector uint64, all bool) error {
	return d.ZoneOp(startSector, types.ZoneOpOpen, all)
}

// CloseZone closes the zone starting at startSector, or all open zones when
// all is set.
func (d *Device) CloseZone(startSector uint64, all bool) error {
	return d.ZoneOp(startSector, types.ZoneOpClose, all)
}

// FinishZone transitions the zone starting at startSector to full, or all
// open and closed zones when all is set.
func (d *Device) FinishZone(startSector uint64, all bool) error {
	return d.ZoneOp(startSector, types.ZoneOpFinish, all)
}

// ResetWritePointer returns the zone starting at startSector to empty, or
// every non-empty sequential zone when all is set.
func (d *Device) ResetWritePointer(startSector uint64, all bool) error {
	return d.ZoneOp(startSector, types.ZoneOpReset, all)
}

// ReadAt reads len(p) bytes at byte offset off. Offset and length must
// align to the logical block size unless the handle is in test mode.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	start := time.Now()
	n, err := d.readAt(p, off)
	d.finish("read", start, err)
	d.metrics.RecordTransfer(d.backend.Kind().String(), "read", n)
	return n, err
}

func (d *Device) readAt(p []byte, off int64) (int, error) {
	if !d.flags.Has(types.OpenTestMode) {
		if err := geometry.ValidateIO(d.info.LogicalBlockSize, off, len(p)); err != nil {
			return 0, err
		}
	}
	return d.backend.ReadAt(p, off)
}

// WriteAt writes len(p) bytes at byte offset off. Offset and length must
// align to the logical block size unless the handle is in test mode.
// Sequential-write constraints are enforced by the device, not here.
func (d *Device) WriteAt(p []byte, off int64) (int, error) {
	start := time.Now()
	n, err := d.writeAt(p, off)
	d.finish("write", start, err)
	d.metrics.RecordTransfer(d.backend.Kind().String(), "write", n)
	return n, err
}

func (d *Device) writeAt(p []byte, off int64) (int, error) {
	if !d.flags.Has(types.OpenReadWrite) {
		return 0, zbcerr.New(zbcerr.CodeDeviceError, "device opened read-only").WithPath(d.path)
	}
	if !d.flags.Has(types.OpenTestMode) {
		if err := geometry.ValidateIO(d.info.LogicalBlockSize, off, len(p)); err != nil {
			return 0, err
		}
	}
	return d.backend.WriteAt(p, off)
}

// Flush forces cached data and emulation metadata to stable media.
func (d *Device) Flush() error {
	start := time.Now()
	return d.finish("flush", start, d.backend.Flush())
}

// SetZones reconfigures the zone layout of an emulated device: convSectors
// of conventional space followed by sequential-write-required zones of
// zoneSectors each. All zones return to their initial conditions. Real
// device backends reject the call.
func (d *Device) SetZones(convSectors, zoneSectors uint64) error {
	start := time.Now()
	err := d.backend.SetZones(convSectors, zoneSectors)
	if err == nil {
		d.info = d.backend.Info()
	}
	return d.finish("set-zones", start, err)
}

// SetWritePointer moves the write pointer of the zone starting at
// startSector on an emulated device, deriving the zone condition from the
// new position. Real device backends reject the call.
func (d *Device) SetWritePointer(startSector, wp uint64) error {
	start := time.Now()
	return d.finish("set-wp", start, d.backend.SetWritePointer(startSector, wp))
}

// Close releases the device. The handle must not be used afterwards.
func (d *Device) Close() error {
	return d.backend.Close()
}

// LogLevel is the diagnostic verbosity of the library log.
type LogLevel = zlog.Level

// Log levels, from silent to most verbose. Each level includes everything
// below it.
const (
	LogNone    = zlog.None
	LogWarning = zlog.Warning
	LogError   = zlog.Error
	LogInfo    = zlog.Info
	LogDebug   = zlog.Debug
)

// SetLogLevel sets the process-wide library log level.
func SetLogLevel(l LogLevel) { zlog.SetLevel(l) }

// ParseLogLevel parses a log level name.
func ParseLogLevel(s string) (LogLevel, error) { return zlog.ParseLevel(s) }
