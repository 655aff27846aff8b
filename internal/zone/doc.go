// Package zone implements the zone condition state machine: which explicit
// operations are legal in which condition, how writes advance the write
// pointer, and the consistency rules tying a zone's condition to its write
// pointer position. The emulation backend drives this machine directly; for
// real devices the same rules validate what the hardware reports.
package zone
