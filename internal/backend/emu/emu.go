// Package emu implements the file-backed emulation backend. Zone
// configuration and per-zone write pointers persist across process restarts
// in a sidecar metadata file keyed to the backing path; the on-disk layout
// of that file is owned by this package alone. Reconfiguration and write
// pointer changes are durable before they return success.
package emu

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v2"

	"github.com/vijayvenkateshjana/libzbc/internal/backend"
	"github.com/vijayvenkateshjana/libzbc/internal/geometry"
	"github.com/vijayvenkateshjana/libzbc/internal/zlog"
	"github.com/vijayvenkateshjana/libzbc/internal/zone"
	zbcerr "github.com/vijayvenkateshjana/libzbc/pkg/errors"
	"github.com/vijayvenkateshjana/libzbc/pkg/types"
)

// MetaSuffix is appended to the backing path to form the sidecar metadata
// file name.
const MetaSuffix = ".zbcmeta"

const (
	defaultLogicalBlockSize  = 512
	defaultPhysicalBlockSize = 4096
)

// Options tunes the emulated device geometry. Zero values take the package
// defaults (512-byte logical, 4096-byte physical blocks).
type Options struct {
	LogicalBlockSize  uint32
	PhysicalBlockSize uint32
}

// metadata is the persisted sidecar state.
type metadata struct {
	LogicalBlockSize  uint32       `yaml:"logical_block_size"`
	PhysicalBlockSize uint32       `yaml:"physical_block_size"`
	ZoneSectors       uint64       `yaml:"zone_sectors"`
	ConvSectors       uint64       `yaml:"conventional_sectors"`
	Zones             []types.Zone `yaml:"zones"`
}

// Backend is a file-backed emulated zoned device.
type Backend struct {
	path     string
	metaPath string
	file     *os.File
	info     types.DeviceInfo
	flags    types.OpenFlag
	meta     metadata
}

var _ backend.Backend = (*Backend)(nil)

// Open opens or creates the backing file at path and loads any persisted
// zone configuration. A freshly created device has no zones until SetZones
// configures it.
func Open(path string, flags types.OpenFlag, opts Options) (*Backend, error) {
	mode := os.O_RDONLY
	if flags.Has(types.OpenReadWrite) {
		mode = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(path, mode, 0o644)
	if err != nil {
		return nil, zbcerr.Newf(zbcerr.CodeOpenFailure, "emulation open: %v", err).
			WithPath(path).WithBackend("emulated").WithCause(err)
	}

	b := &Backend{
		path:     path,
		metaPath: path + MetaSuffix,
		file:     f,
		flags:    flags,
	}
	b.meta.LogicalBlockSize = opts.LogicalBlockSize
	if b.meta.LogicalBlockSize == 0 {
		b.meta.LogicalBlockSize = defaultLogicalBlockSize
	}
	b.meta.PhysicalBlockSize = opts.PhysicalBlockSize
	if b.meta.PhysicalBlockSize == 0 {
		b.meta.PhysicalBlockSize = defaultPhysicalBlockSize
	}

	if err := b.loadMeta(); err != nil {
		f.Close()
		return nil, err
	}
	if err := b.refreshInfo(); err != nil {
		f.Close()
		return nil, err
	}
	zlog.Debugf("emulation bound to %s: %d zones, %d sectors",
		path, len(b.meta.Zones), b.info.TotalSectors)
	return b, nil
}

func (b *Backend) loadMeta() error {
	data, err := os.ReadFile(b.metaPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return zbcerr.Newf(zbcerr.CodeOpenFailure, "read zone metadata: %v", err).
			WithPath(b.path).WithBackend("emulated").WithCause(err)
	}
	var m metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return zbcerr.Newf(zbcerr.CodeOpenFailure, "decode zone metadata: %v", err).
			WithPath(b.path).WithBackend("emulated").WithCause(err)
	}
	for _, z := range m.Zones {
		if err := zone.CheckConsistency(z); err != nil {
			return zbcerr.Newf(zbcerr.CodeOpenFailure, "persisted zone table invalid: %v", err).
				WithPath(b.path).WithBackend("emulated")
		}
	}
	b.meta = m
	return nil
}

// persist writes the sidecar metadata durably: the new content is synced to
// a temporary file and renamed over the old one.
func (b *Backend) persist() error {
	data, err := yaml.Marshal(&b.meta)
	if err != nil {
		return zbcerr.Newf(zbcerr.CodeIOError, "encode zone metadata: %v", err).
			WithPath(b.path).WithBackend("emulated").WithCause(err)
	}
	tmp := b.metaPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err == nil {
		_, err = f.Write(data)
		if err == nil {
			err = f.Sync()
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err == nil {
			err = os.Rename(tmp, b.metaPath)
		}
	}
	if err != nil {
		return zbcerr.Newf(zbcerr.CodeIOError, "persist zone metadata: %v", err).
			WithPath(b.path).WithBackend("emulated").WithCause(err)
	}
	return nil
}

func (b *Backend) refreshInfo() error {
	st, err := b.file.Stat()
	if err != nil {
		return zbcerr.Newf(zbcerr.CodeOpenFailure, "stat backing file: %v", err).
			WithPath(b.path).WithBackend("emulated").WithCause(err)
	}
	b.info = types.DeviceInfo{
		Model:             types.ModelHostManaged,
		LogicalBlockSize:  b.meta.LogicalBlockSize,
		PhysicalBlockSize: b.meta.PhysicalBlockSize,
		TotalSectors:      geometry.BytesToSectors(uint64(st.Size())),
		ZoneSectors:       b.meta.ZoneSectors,
		Vendor:            "libzbc emulation",
	}
	return nil
}

// Kind identifies the backend variant.
func (b *Backend) Kind() types.BackendKind { return types.BackendEmulated }

// Info returns the emulated device geometry.
func (b *Backend) Info() types.DeviceInfo { return b.info }

// ReportZones returns the zone descriptors at or after startSector matching
// ro, ascending, up to limit. The emulation supports fine-grained filtering.
func (b *Backend) ReportZones(startSector uint64, ro types.ReportingOptions, limit int) ([]types.Zone, error) {
	if limit <= 0 {
		limit = backend.DefaultReportLimit
	}
	idx := sort.Search(len(b.meta.Zones), func(i int) bool {
		return b.meta.Zones[i].Start >= startSector
	})
	zones := make([]types.Zone, 0, limit)
	for _, z := range b.meta.Zones[idx:] {
		if len(zones) == limit {
			break
		}
		if ro.Matches(z) {
			zones = append(zones, z)
		}
	}
	return zones, nil
}

func (b *Backend) findZone(startSector uint64) (*types.Zone, error) {
	idx := sort.Search(len(b.meta.Zones), func(i int) bool {
		return b.meta.Zones[i].Start >= startSector
	})
	if idx == len(b.meta.Zones) || b.meta.Zones[idx].Start != startSector {
		return nil, zbcerr.InvalidArgumentf("sector %d is not a zone start", startSector).
			WithBackend("emulated")
	}
	return &b.meta.Zones[idx], nil
}

// zoneAt returns the zone containing sector, if any.
func (b *Backend) zoneAt(sector uint64) *types.Zone {
	idx := sort.Search(len(b.meta.Zones), func(i int) bool {
		return b.meta.Zones[i].End() > sector
	})
	if idx == len(b.meta.Zones) || !b.meta.Zones[idx].Contains(sector) {
		return nil
	}
	return &b.meta.Zones[idx]
}

// ZoneOp executes an explicit zone operation. With all set, the operation
// acts on the zones its applicability set names (open zones for close,
// closed and implicitly open for open, open and closed for finish, non-empty
// for reset); everything else, including conventional and absorbing zones,
// is skipped and the call succeeds. A single-zone operation on a
// conventional zone fails instead.
func (b *Backend) ZoneOp(startSector uint64, op types.ZoneOp, all bool) error {
	if !b.flags.Has(types.OpenReadWrite) {
		return zbcerr.New(zbcerr.CodeDeviceError, "device opened read-only").
			WithBackend("emulated")
	}
	if all {
		for i := range b.meta.Zones {
			z := &b.meta.Zones[i]
			if z.IsConventional() || z.Condition.IsAbsorbing() || !zone.AppliesToAll(*z, op) {
				continue
			}
			if err := zone.ApplyOp(z, op); err != nil {
				return err
			}
		}
		return b.persist()
	}

	z, err := b.findZone(startSector)
	if err != nil {
		return err
	}
	if z.IsConventional() {
		return zbcerr.NotZonedf("zone %d is conventional", z.Start).WithBackend("emulated")
	}
	if err := zone.ApplyOp(z, op); err != nil {
		return err
	}
	return b.persist()
}

// ReadAt reads from the backing file. Sequential zones are readable only up
// to their write pointer; conventional zones read anywhere, with unwritten
// regions returning zeros.
func (b *Backend) ReadAt(p []byte, off int64) (int, error) {
	end := uint64(off) + uint64(len(p))
	if end > geometry.SectorsToBytes(b.info.TotalSectors) {
		return 0, zbcerr.InvalidArgumentf("read beyond device capacity at offset %d", off).
			WithBackend("emulated")
	}
	if err := b.checkReadable(geometry.BytesToSectors(uint64(off)), geometry.BytesToSectors(end+geometry.SectorSize-1)); err != nil {
		return 0, err
	}
	n, err := b.file.ReadAt(p, off)
	if err == io.EOF {
		// Sparse tail: the backing file may be shorter than the device.
		for i := n; i < len(p); i++ {
			p[i] = 0
		}
		return len(p), nil
	}
	if err != nil {
		return n, zbcerr.Newf(zbcerr.CodeIOError, "read backing file: %v", err).
			WithBackend("emulated").WithCause(err)
	}
	return n, nil
}

// checkReadable walks the zones overlapping [startSector, endSector) and
// rejects reads into the unwritten tail of a sequential zone or into an
// offline zone. A device with no zone table configured reads anywhere.
func (b *Backend) checkReadable(startSector, endSector uint64) error {
	for sector := startSector; sector < endSector; {
		z := b.zoneAt(sector)
		if z == nil {
			return nil
		}
		if z.Condition == types.ZoneConditionOffline {
			return zbcerr.Newf(zbcerr.CodeDeviceError, "read from offline zone %d", z.Start).
				WithBackend("emulated")
		}
		if z.IsSequential() && !z.Condition.IsAbsorbing() {
			limit := endSector
			if z.End() < limit {
				limit = z.End()
			}
			if limit > z.WritePointer {
				return zbcerr.InvalidArgumentf(
					"read beyond write pointer %d in zone %d", z.WritePointer, z.Start).
					WithBackend("emulated")
			}
		}
		sector = z.End()
	}
	return nil
}

// WriteAt writes through to the backing file, advancing the write pointer of
// the affected sequential zone. A write must not cross out of the zone it
// starts in and, for sequential-write-required zones, must start at the
// write pointer.
func (b *Backend) WriteAt(p []byte, off int64) (int, error) {
	if !b.flags.Has(types.OpenReadWrite) {
		return 0, zbcerr.New(zbcerr.CodeDeviceError, "device opened read-only").
			WithBackend("emulated")
	}
	sector := geometry.BytesToSectors(uint64(off))
	nSectors := geometry.BytesToSectors(uint64(len(p)))
	if end := uint64(off) + uint64(len(p)); end > geometry.SectorsToBytes(b.info.TotalSectors) {
		return 0, zbcerr.InvalidArgumentf("write beyond device capacity at offset %d", off).
			WithBackend("emulated")
	}

	z := b.zoneAt(sector)
	if z != nil && sector+nSectors > z.End() {
		return 0, zbcerr.InvalidArgumentf(
			"write crosses zone %d boundary: sector %d + %d sectors", z.Start, sector, nSectors).
			WithBackend("emulated")
	}
	// The transition is computed on a copy and committed only once the data
	// is on the backing file, so a failed write leaves the zone untouched.
	var advanced types.Zone
	if z != nil && z.IsSequential() {
		advanced = *z
		if err := zone.AdvanceWrite(&advanced, sector, nSectors); err != nil {
			return 0, err
		}
	}
	n, err := b.file.WriteAt(p, off)
	if err != nil {
		return n, zbcerr.Newf(zbcerr.CodeIOError, "write backing file: %v", err).
			WithBackend("emulated").WithCause(err)
	}
	if z != nil && z.IsSequential() {
		*z = advanced
	}
	return n, nil
}

// Flush syncs the backing file and the zone metadata.
func (b *Backend) Flush() error {
	if err := b.persist(); err != nil {
		return err
	}
	if err := b.file.Sync(); err != nil {
		return zbcerr.Newf(zbcerr.CodeIOError, "sync backing file: %v", err).
			WithBackend("emulated").WithCause(err)
	}
	return nil
}

// SetZones rebuilds the zone table: convSectors of conventional space at the
// start of the device, then sequential-write-required zones of zoneSectors
// each, over the current backing file capacity. The new layout is durable
// before SetZones returns.
func (b *Backend) SetZones(convSectors, zoneSectors uint64) error {
	if !b.flags.Has(types.OpenReadWrite) {
		return zbcerr.New(zbcerr.CodeDeviceError, "device opened read-only").
			WithBackend("emulated")
	}
	if zoneSectors == 0 {
		return zbcerr.InvalidArgumentf("zone size must be non-zero").WithBackend("emulated")
	}
	if !geometry.LogicalAligned(b.meta.LogicalBlockSize, zoneSectors) {
		return zbcerr.InvalidArgumentf(
			"zone size %d sectors not aligned to logical block size %d",
			zoneSectors, b.meta.LogicalBlockSize).WithBackend("emulated")
	}
	if convSectors%zoneSectors != 0 {
		return zbcerr.InvalidArgumentf(
			"conventional space %d sectors not a multiple of zone size %d",
			convSectors, zoneSectors).WithBackend("emulated")
	}
	capacity := b.info.TotalSectors
	if convSectors > capacity {
		return zbcerr.InvalidArgumentf(
			"conventional space %d sectors exceeds capacity %d", convSectors, capacity).
			WithBackend("emulated")
	}

	var zones []types.Zone
	for start := uint64(0); start < capacity; start += zoneSectors {
		length := zoneSectors
		if start+length > capacity {
			length = capacity - start
		}
		z := types.Zone{Start: start, Length: length}
		if start < convSectors {
			z.Type = types.ZoneTypeConventional
			z.Condition = types.ZoneConditionNotWP
		} else {
			z.Type = types.ZoneTypeSequentialRequired
			z.Condition = types.ZoneConditionEmpty
			z.WritePointer = start
		}
		zones = append(zones, z)
	}

	b.meta.Zones = zones
	b.meta.ZoneSectors = zoneSectors
	b.meta.ConvSectors = convSectors
	if err := b.persist(); err != nil {
		return err
	}
	b.info.ZoneSectors = zoneSectors
	zlog.Infof("emulation %s reconfigured: %d zones of %d sectors, %d conventional sectors",
		b.path, len(zones), zoneSectors, convSectors)
	return nil
}

// SetWritePointer moves the write pointer of the sequential zone starting at
// startSector and derives the matching condition: empty at the zone start,
// full at the zone end, implicitly open in between. Durable before return.
func (b *Backend) SetWritePointer(startSector, wp uint64) error {
	if !b.flags.Has(types.OpenReadWrite) {
		return zbcerr.New(zbcerr.CodeDeviceError, "device opened read-only").
			WithBackend("emulated")
	}
	z, err := b.findZone(startSector)
	if err != nil {
		return err
	}
	if z.IsConventional() {
		return zbcerr.NotZonedf("zone %d is conventional", z.Start).WithBackend("emulated")
	}
	if wp < z.Start || wp > z.End() {
		return zbcerr.InvalidArgumentf(
			"write pointer %d outside zone [%d,%d]", wp, z.Start, z.End()).
			WithBackend("emulated")
	}
	z.WritePointer = wp
	switch {
	case wp == z.Start:
		z.Condition = types.ZoneConditionEmpty
	case wp == z.End():
		z.Condition = types.ZoneConditionFull
	default:
		z.Condition = types.ZoneConditionImplicitOpen
	}
	return b.persist()
}

// Close persists the zone table and releases the backing file. Both steps
// are attempted even if the first fails; the first failure is surfaced.
func (b *Backend) Close() error {
	var first error
	if b.flags.Has(types.OpenReadWrite) {
		first = b.persist()
	}
	if err := b.file.Close(); err != nil && first == nil {
		first = zbcerr.Newf(zbcerr.CodeDeviceError, "close backing file: %v", err).
			WithPath(b.path).WithBackend("emulated").WithCause(err)
	}
	return first
}

// String describes the backend for diagnostics.
func (b *Backend) String() string {
	return fmt.Sprintf("emulated(%s)", b.path)
}
