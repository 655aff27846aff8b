//go:build !linux

// Package sgio sends raw SCSI command blocks to a device through the Linux
// SG_IO pass-through channel. On other platforms every call reports the
// channel as unsupported.
package sgio

import (
	"time"

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

// Exec is unavailable without the Linux SG driver.
func Exec(fd int, cdb []byte, data []byte, dir Direction, timeout time.Duration) error {
	return zbcerr.Unsupportedf("SG_IO pass-through requires linux")
}
