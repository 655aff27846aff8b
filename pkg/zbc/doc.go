// Package zbc provides uniform access to zoned block devices: SMR hard
// drives and other media whose capacity is split into zones with
// sequential-write constraints.
//
// A Device is opened from a path and bound to exactly one backend for its
// lifetime. With automatic probing the kernel zoned-block interface is
// preferred, then ATA pass-through, then SCSI pass-through; the file-backed
// emulation never participates in probing and must be selected explicitly.
//
// All public addresses and lengths are expressed in fixed 512-byte sectors
// regardless of the device logical block size. Data I/O offsets and lengths
// are in bytes and must align to the logical block size unless the handle
// was opened in test mode.
package zbc
