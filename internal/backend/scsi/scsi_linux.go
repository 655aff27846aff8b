//go:build linux

// Package scsi drives a ZBC SCSI device through the SG_IO pass-through
// channel: INQUIRY and READ CAPACITY (16) at bind time, REPORT ZONES via
// ZBC IN and zone operations via ZBC OUT afterwards. Data I/O goes through
// the block node with plain pread/pwrite.
package scsi

import (
	"bytes"
	"encoding/binary"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vijayvenkateshjana/libzbc/internal/backend"
	"github.com/vijayvenkateshjana/libzbc/internal/backend/sgio"
	"github.com/vijayvenkateshjana/libzbc/internal/geometry"
	"github.com/vijayvenkateshjana/libzbc/internal/zlog"
	zbcerr "github.com/vijayvenkateshjana/libzbc/pkg/errors"
	"github.com/vijayvenkateshjana/libzbc/pkg/types"
)

// SCSI opcodes and service actions used by this backend.
const (
	opInquiry        = 0x12
	opSyncCache16    = 0x91
	opServiceActIn16 = 0x9e
	opZBCIn          = 0x95
	opZBCOut         = 0x94

	saReadCapacity16 = 0x10
	saReportZones    = 0x00

	saCloseZone  = 0x01
	saFinishZone = 0x02
	saOpenZone   = 0x03
	saResetWP    = 0x04

	// Peripheral device type for host-managed zoned block devices.
	typeHostManaged = 0x14

	cmdTimeout = 30 * time.Second
)

// Backend is a SCSI pass-through device.
type Backend struct {
	path  string
	fd    int
	info  types.DeviceInfo
	flags types.OpenFlag
}

var _ backend.Backend = (*Backend)(nil)

// Open probes path as a ZBC SCSI device. A device that does not answer
// INQUIRY over SG_IO is not a SCSI device and fails the probe.
func Open(path string, flags types.OpenFlag) (*Backend, error) {
	mode := unix.O_RDONLY
	if flags.Has(types.OpenReadWrite) {
		mode = unix.O_RDWR
	}
	if flags.Has(types.OpenExclusive) {
		mode |= unix.O_EXCL
	}
	if flags.Has(types.OpenDirect) {
		mode |= unix.O_DIRECT
	}
	fd, err := unix.Open(path, mode, 0)
	if err != nil {
		return nil, zbcerr.Newf(zbcerr.CodeOpenFailure, "open: %v", err).
			WithPath(path).WithBackend("scsi").WithErrno(int(err.(unix.Errno))).WithCause(err)
	}

	b := &Backend{path: path, fd: fd, flags: flags}
	if err := b.bind(); err != nil {
		unix.Close(fd)
		return nil, err
	}
	zlog.Debugf("scsi backend bound to %s: %s, %d sectors",
		path, b.info.Model, b.info.TotalSectors)
	return b, nil
}

// bind populates the device geometry from INQUIRY, the block device
// characteristics VPD page, READ CAPACITY (16) and a first REPORT ZONES.
func (b *Backend) bind() error {
	inq := make([]byte, 96)
	cdb := make([]byte, 6)
	cdb[0] = opInquiry
	binary.BigEndian.PutUint16(cdb[3:5], uint16(len(inq)))
	if err := sgio.Exec(b.fd, cdb, inq, sgio.FromDevice, cmdTimeout); err != nil {
		return zbcerr.Newf(zbcerr.CodeOpenFailure, "INQUIRY failed: %v", err).
			WithPath(b.path).WithBackend("scsi").WithCause(err)
	}
	b.info.Vendor = string(bytes.TrimRight(inq[8:32], " \x00"))

	switch inq[0] & 0x1f {
	case typeHostManaged:
		b.info.Model = types.ModelHostManaged
	case 0x00:
		model, err := b.zonedModelFromVPD()
		if err != nil {
			return err
		}
		b.info.Model = model
	default:
		return zbcerr.Newf(zbcerr.CodeOpenFailure,
			"peripheral device type 0x%02x is not a block device", inq[0]&0x1f).
			WithPath(b.path).WithBackend("scsi")
	}

	if err := b.readCapacity(); err != nil {
		return err
	}
	if b.info.Model.IsZoned() {
		zones, err := b.ReportZones(0, types.ReportAll, 2)
		if err != nil {
			return zbcerr.Newf(zbcerr.CodeOpenFailure, "initial report zones: %v", err).
				WithPath(b.path).WithBackend("scsi").WithCause(err)
		}
		if len(zones) > 0 {
			b.info.ZoneSectors = zones[0].Length
		}
	}
	return nil
}

// zonedModelFromVPD reads the block device characteristics page (B1h); its
// ZONED field distinguishes host-aware devices from plain block devices.
func (b *Backend) zonedModelFromVPD() (types.DeviceModel, error) {
	vpd := make([]byte, 64)
	cdb := make([]byte, 6)
	cdb[0] = opInquiry
	cdb[1] = 0x01 // EVPD
	cdb[2] = 0xb1
	binary.BigEndian.PutUint16(cdb[3:5], uint16(len(vpd)))
	if err := sgio.Exec(b.fd, cdb, vpd, sgio.FromDevice, cmdTimeout); err != nil {
		return 0, zbcerr.Newf(zbcerr.CodeOpenFailure, "VPD B1h failed: %v", err).
			WithPath(b.path).WithBackend("scsi").WithCause(err)
	}
	if vpd[8]>>4&0x3 == 0x1 {
		return types.ModelHostAware, nil
	}
	return types.ModelNotZoned, nil
}

func (b *Backend) readCapacity() error {
	data := make([]byte, 32)
	cdb := make([]byte, 16)
	cdb[0] = opServiceActIn16
	cdb[1] = saReadCapacity16
	binary.BigEndian.PutUint32(cdb[10:14], uint32(len(data)))
	if err := sgio.Exec(b.fd, cdb, data, sgio.FromDevice, cmdTimeout); err != nil {
		return zbcerr.Newf(zbcerr.CodeOpenFailure, "READ CAPACITY (16) failed: %v", err).
			WithPath(b.path).WithBackend("scsi").WithCause(err)
	}

	maxLBA := binary.BigEndian.Uint64(data[0:8])
	lbs := binary.BigEndian.Uint32(data[8:12])
	if lbs == 0 {
		return zbcerr.New(zbcerr.CodeOpenFailure, "device reports zero logical block size").
			WithPath(b.path).WithBackend("scsi")
	}
	b.info.LogicalBlockSize = lbs
	// Logical blocks per physical block exponent, low nibble of byte 13.
	b.info.PhysicalBlockSize = lbs << (data[13] & 0x0f)
	b.info.TotalSectors = geometry.LBAToSector(lbs, maxLBA+1)
	return nil
}

// Kind identifies the backend variant.
func (b *Backend) Kind() types.BackendKind { return types.BackendSCSI }

// Info returns the device geometry captured at bind time.
func (b *Backend) Info() types.DeviceInfo { return b.info }

// ReportZones issues REPORT ZONES via ZBC IN and decodes the returned
// descriptor sequence. The device performs the condition filtering; the
// reporting options are forwarded as given (already masked by the caller).
func (b *Backend) ReportZones(startSector uint64, ro types.ReportingOptions, limit int) ([]types.Zone, error) {
	if limit <= 0 {
		limit = backend.DefaultReportLimit
	}
	buf := make([]byte, backend.ReportHeaderSize+limit*backend.ZoneDescriptorSize)

	cdb := make([]byte, 16)
	cdb[0] = opZBCIn
	cdb[1] = saReportZones
	binary.BigEndian.PutUint64(cdb[2:10], geometry.SectorToLBA(b.info.LogicalBlockSize, startSector))
	binary.BigEndian.PutUint32(cdb[10:14], uint32(len(buf)))
	cdb[14] = uint8(ro)
	if err := sgio.Exec(b.fd, cdb, buf, sgio.FromDevice, cmdTimeout); err != nil {
		return nil, err
	}

	n, err := backend.ParseReportHeader(buf)
	if err != nil {
		return nil, err
	}
	if n > limit {
		n = limit
	}
	zones := make([]types.Zone, 0, n)
	for i := 0; i < n; i++ {
		off := backend.ReportHeaderSize + i*backend.ZoneDescriptorSize
		z, err := backend.ParseZoneDescriptor(buf[off:], b.info.LogicalBlockSize)
		if err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, nil
}

// ZoneOp issues the matching ZBC OUT service action.
func (b *Backend) ZoneOp(startSector uint64, op types.ZoneOp, all bool) error {
	var sa uint8
	switch op {
	case types.ZoneOpOpen:
		sa = saOpenZone
	case types.ZoneOpClose:
		sa = saCloseZone
	case types.ZoneOpFinish:
		sa = saFinishZone
	case types.ZoneOpReset:
		sa = saResetWP
	default:
		return zbcerr.InvalidArgumentf("zone op %s", op).WithBackend("scsi")
	}

	cdb := make([]byte, 16)
	cdb[0] = opZBCOut
	cdb[1] = sa
	if all {
		cdb[14] = 0x01
	} else {
		binary.BigEndian.PutUint64(cdb[2:10], geometry.SectorToLBA(b.info.LogicalBlockSize, startSector))
	}
	return sgio.Exec(b.fd, cdb, nil, sgio.NoTransfer, cmdTimeout)
}

// ReadAt reads through the block node.
func (b *Backend) ReadAt(p []byte, off int64) (int, error) {
	n, err := unix.Pread(b.fd, p, off)
	if err != nil {
		return n, zbcerr.Newf(zbcerr.CodeIOError, "pread: %v", err).
			WithBackend("scsi").WithErrno(int(err.(unix.Errno))).WithCause(err)
	}
	return n, nil
}

// WriteAt writes through the block node.
func (b *Backend) WriteAt(p []byte, off int64) (int, error) {
	n, err := unix.Pwrite(b.fd, p, off)
	if err != nil {
		return n, zbcerr.Newf(zbcerr.CodeIOError, "pwrite: %v", err).
			WithBackend("scsi").WithErrno(int(err.(unix.Errno))).WithCause(err)
	}
	return n, nil
}

// Flush issues SYNCHRONIZE CACHE (16).
func (b *Backend) Flush() error {
	cdb := make([]byte, 16)
	cdb[0] = opSyncCache16
	return sgio.Exec(b.fd, cdb, nil, sgio.NoTransfer, cmdTimeout)
}

// SetZones is an emulation-only operation.
func (b *Backend) SetZones(convSectors, zoneSectors uint64) error {
	return zbcerr.Unsupportedf("set zones on scsi backend").WithBackend("scsi")
}

// SetWritePointer is an emulation-only operation.
func (b *Backend) SetWritePointer(startSector, wp uint64) error {
	return zbcerr.Unsupportedf("set write pointer on scsi backend").WithBackend("scsi")
}

// Close releases the device channel.
func (b *Backend) Close() error {
	if err := unix.Close(b.fd); err != nil {
		return zbcerr.Newf(zbcerr.CodeDeviceError, "close: %v", err).
			WithPath(b.path).WithBackend("scsi").WithCause(err)
	}
	return nil
}
