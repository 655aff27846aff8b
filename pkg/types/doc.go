// Package types defines the shared data model for zoned block devices:
// device models, zone descriptors, zone conditions and types, reporting
// options, zone operations, and open flags. All sector-addressed fields use
// the fixed 512-byte sector unit regardless of the device logical block size.
package types
