//go:build linux

// Package sgio sends raw SCSI command blocks to a device through the Linux
// SG_IO pass-through channel. It is shared by the SCSI and ATA backends;
// command encoding beyond the transfer header lives with each backend.
package sgio

import (
	"runtime"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	zbcerr "github.com/vijayvenkateshjana/libzbc/pkg/errors"
)

// Direction is the SG_IO data transfer direction.
type Direction int32

const (
	// NoTransfer issues a command with no data phase.
	NoTransfer Direction = -1

	// ToDevice transfers the data buffer to the device.
	ToDevice Direction = -2

	// FromDevice fills the data buffer from the device.
	FromDevice Direction = -3
)

const (
	sgIO         = 0x2285
	sgInfoOKMask = 0x1
	sgInfoOK     = 0x0

	senseBufLen    = 64
	defaultTimeout = 20 * time.Second
)

// sgIOHdr mirrors struct sg_io_hdr from <scsi/sg.h>.
type sgIOHdr struct {
	interfaceID    int32
	dxferDirection int32
	cmdLen         uint8
	mxSBLen        uint8
	iovecCount     uint16
	dxferLen       uint32
	dxferp         unsafe.Pointer
	cmdp           unsafe.Pointer
	sbp            unsafe.Pointer
	timeout        uint32
	flags          uint32
	packID         int32
	usrPtr         unsafe.Pointer
	status         uint8
	maskedStatus   uint8
	msgStatus      uint8
	sbLenWr        uint8
	hostStatus     uint16
	driverStatus   uint16
	resid          int32
	duration       uint32
	info           uint32
}

// Exec issues one SCSI command block over SG_IO and blocks until it
// completes. data may be nil for commands without a data phase. On a check
// condition the returned error carries the sense key/ASC/ASCQ verbatim.
func Exec(fd int, cdb []byte, data []byte, dir Direction, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	sense := make([]byte, senseBufLen)

	hdr := sgIOHdr{
		interfaceID:    'S',
		dxferDirection: int32(dir),
		cmdLen:         uint8(len(cdb)),
		mxSBLen:        senseBufLen,
		cmdp:           unsafe.Pointer(&cdb[0]),
		sbp:            unsafe.Pointer(&sense[0]),
		timeout:        uint32(timeout.Milliseconds()),
	}
	if len(data) > 0 {
		hdr.dxferLen = uint32(len(data))
		hdr.dxferp = unsafe.Pointer(&data[0])
	}

	// The pointer conversion must appear in the syscall argument list so
	// the referenced memory is pinned for the duration of the call.
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), sgIO, uintptr(unsafe.Pointer(&hdr)))
	runtime.KeepAlive(cdb)
	runtime.KeepAlive(sense)
	runtime.KeepAlive(data)
	if errno != 0 {
		return zbcerr.Newf(zbcerr.CodeDeviceError, "SG_IO ioctl: %v", errno).
			WithErrno(int(errno)).WithCause(errno)
	}

	if hdr.info&sgInfoOKMask != sgInfoOK {
		key, asc, ascq := parseSense(sense[:hdr.sbLenWr])
		return zbcerr.Newf(zbcerr.CodeDeviceError,
			"command 0x%02x failed: status 0x%02x host 0x%02x driver 0x%02x",
			cdb[0], hdr.status, hdr.hostStatus, hdr.driverStatus).
			WithSense(key, asc, ascq)
	}
	return nil
}

// parseSense extracts key/ASC/ASCQ from fixed (0x70/0x71) or descriptor
// (0x72/0x73) format sense data.
func parseSense(sb []byte) (key, asc, ascq uint8) {
	if len(sb) == 0 {
		return 0, 0, 0
	}
	switch sb[0] & 0x7f {
	case 0x70, 0x71:
		if len(sb) >= 14 {
			return sb[2] & 0x0f, sb[12], sb[13]
		}
	case 0x72, 0x73:
		if len(sb) >= 4 {
			return sb[1] & 0x0f, sb[2], sb[3]
		}
	}
	return 0, 0, 0
}
