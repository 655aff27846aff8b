package types

import "fmt"

// DeviceModel classifies how a device exposes zones.
type DeviceModel uint8

const (
	// ModelNotZoned is a regular block device with no zone structure.
	ModelNotZoned DeviceModel = iota

	// ModelHostAware devices tolerate non-sequential writes in sequential
	// zones but perform best when the host honors the write pointer.
	ModelHostAware

	// ModelHostManaged devices reject writes that do not start at the
	// write pointer of a sequential-write-required zone.
	ModelHostManaged
)

// String returns the human-readable model name.
func (m DeviceModel) String() string {
	switch m {
	case ModelNotZoned:
		return "not-zoned"
	case ModelHostAware:
		return "host-aware"
	case ModelHostManaged:
		return "host-managed"
	default:
		return fmt.Sprintf("unknown-model(%d)", uint8(m))
	}
}

// IsZoned reports whether the model carries zone state at all.
func (m DeviceModel) IsZoned() bool {
	return m == ModelHostAware || m == ModelHostManaged
}

// ZoneType identifies the write constraint of a zone. The values are the
// raw ZBC/ZAC zone type encodings.
type ZoneType uint8

const (
	// ZoneTypeConventional zones have no write pointer and accept writes
	// anywhere.
	ZoneTypeConventional ZoneType = 0x1

	// ZoneTypeSequentialRequired zones only accept writes starting at the
	// write pointer.
	ZoneTypeSequentialRequired ZoneType = 0x2

	// ZoneTypeSequentialPreferred zones track a write pointer but tolerate
	// non-sequential writes.
	ZoneTypeSequentialPreferred ZoneType = 0x3
)

// ParseZoneType decodes a device-reported zone type byte. Values outside the
// three standard types are reserved and produce a decoding error rather than
// being carried along as unclassified bits.
func ParseZoneType(b uint8) (ZoneType, error) {
	switch t := ZoneType(b & 0x0f); t {
	case ZoneTypeConventional, ZoneTypeSequentialRequired, ZoneTypeSequentialPreferred:
		return t, nil
	default:
		return 0, fmt.Errorf("reserved zone type 0x%02x", b)
	}
}

// String returns the human-readable zone type name.
func (t ZoneType) String() string {
	switch t {
	case ZoneTypeConventional:
		return "conventional"
	case ZoneTypeSequentialRequired:
		return "seq-write-required"
	case ZoneTypeSequentialPreferred:
		return "seq-write-preferred"
	default:
		return fmt.Sprintf("reserved-type(0x%02x)", uint8(t))
	}
}

// ZoneCondition is the lifecycle state of a zone. The values are the raw
// ZBC/ZAC zone condition encodings. Conditions form a state machine, not a
// flat enumeration; legal transitions live in internal/zone.
type ZoneCondition uint8

const (
	// ZoneConditionNotWP is the fixed, non-progressing condition reported
	// for conventional zones.
	ZoneConditionNotWP ZoneCondition = 0x0

	// ZoneConditionEmpty means the write pointer is at the zone start.
	ZoneConditionEmpty ZoneCondition = 0x1

	// ZoneConditionImplicitOpen means the zone was opened automatically by
	// a write.
	ZoneConditionImplicitOpen ZoneCondition = 0x2

	// ZoneConditionExplicitOpen means the zone was opened by an explicit
	// Open zone operation.
	ZoneConditionExplicitOpen ZoneCondition = 0x3

	// ZoneConditionClosed means a partially written zone was closed.
	ZoneConditionClosed ZoneCondition = 0x4

	// ZoneConditionInactive means the zone is deactivated and holds no
	// writable capacity.
	ZoneConditionInactive ZoneCondition = 0x5

	// ZoneConditionReadOnly is an absorbing state: the zone can be read
	// but accepts no writes or zone operations.
	ZoneConditionReadOnly ZoneCondition = 0xd

	// ZoneConditionFull means the write pointer reached the zone end.
	ZoneConditionFull ZoneCondition = 0xe

	// ZoneConditionOffline is an absorbing state: the zone is dead to all
	// I/O and zone operations.
	ZoneConditionOffline ZoneCondition = 0xf
)

// ParseZoneCondition decodes a device-reported zone condition nibble. An
// unknown value is a decoding failure, never silently misinterpreted.
func ParseZoneCondition(b uint8) (ZoneCondition, error) {
	switch c := ZoneCondition(b & 0x0f); c {
	case ZoneConditionNotWP, ZoneConditionEmpty, ZoneConditionImplicitOpen,
		ZoneConditionExplicitOpen, ZoneConditionClosed, ZoneConditionInactive,
		ZoneConditionReadOnly, ZoneConditionFull, ZoneConditionOffline:
		return c, nil
	default:
		return 0, fmt.Errorf("reserved zone condition 0x%02x", b)
	}
}

// String returns the human-readable zone condition name.
func (c ZoneCondition) String() string {
	switch c {
	case ZoneConditionNotWP:
		return "not-wp"
	case ZoneConditionEmpty:
		return "empty"
	case ZoneConditionImplicitOpen:
		return "implicit-open"
	case ZoneConditionExplicitOpen:
		return "explicit-open"
	case ZoneConditionClosed:
		return "closed"
	case ZoneConditionInactive:
		return "inactive"
	case ZoneConditionReadOnly:
		return "read-only"
	case ZoneConditionFull:
		return "full"
	case ZoneConditionOffline:
		return "offline"
	default:
		return fmt.Sprintf("reserved-condition(0x%02x)", uint8(c))
	}
}

// IsOpen reports whether the condition is one of the two open states.
func (c ZoneCondition) IsOpen() bool {
	return c == ZoneConditionImplicitOpen || c == ZoneConditionExplicitOpen
}

// IsAbsorbing reports whether the condition exits the normal lifecycle.
// Absorbing zones accept no further writes or zone operations; only
// re-enumeration reveals device-initiated state changes.
func (c ZoneCondition) IsAbsorbing() bool {
	return c == ZoneConditionReadOnly || c == ZoneConditionOffline || c == ZoneConditionInactive
}

// Zone describes one zone of a device. Sector-addressed fields are in
// 512-byte sectors.
type Zone struct {
	// Start is the first sector of the zone.
	Start uint64 `yaml:"start" json:"start"`

	// Length is the zone size in sectors.
	Length uint64 `yaml:"length" json:"length"`

	// WritePointer is the next writable sector of a sequential zone. It is
	// meaningless for conventional zones.
	WritePointer uint64 `yaml:"write_pointer" json:"write_pointer"`

	// Type is the zone write constraint.
	Type ZoneType `yaml:"type" json:"type"`

	// Condition is the zone lifecycle state.
	Condition ZoneCondition `yaml:"condition" json:"condition"`

	// ResetRecommended is set when the device advises resetting the zone.
	ResetRecommended bool `yaml:"reset_recommended" json:"reset_recommended"`

	// NonSeq is set on host-aware devices for zones written
	// non-sequentially.
	NonSeq bool `yaml:"non_seq" json:"non_seq"`
}

// End returns the sector one past the last sector of the zone.
func (z Zone) End() uint64 {
	return z.Start + z.Length
}

// Contains reports whether sector falls inside the zone.
func (z Zone) Contains(sector uint64) bool {
	return sector >= z.Start && sector < z.End()
}

// IsConventional reports whether the zone has no sequential constraint.
func (z Zone) IsConventional() bool {
	return z.Type == ZoneTypeConventional
}

// IsSequential reports whether the zone tracks a write pointer.
func (z Zone) IsSequential() bool {
	return z.Type == ZoneTypeSequentialRequired || z.Type == ZoneTypeSequentialPreferred
}

// DeviceInfo is the immutable geometry of an open device, sourced from the
// bound backend at open time.
type DeviceInfo struct {
	// Model is the zone model classification.
	Model DeviceModel `json:"model"`

	// LogicalBlockSize is the logical block size in bytes (power of two).
	LogicalBlockSize uint32 `json:"logical_block_size"`

	// PhysicalBlockSize is the physical block size in bytes (power of two,
	// at least the logical block size and a multiple of it).
	PhysicalBlockSize uint32 `json:"physical_block_size"`

	// TotalSectors is the device capacity in 512-byte sectors.
	TotalSectors uint64 `json:"total_sectors"`

	// ZoneSectors is the uniform zone size in sectors, or 0 when zones are
	// not uniformly sized.
	ZoneSectors uint64 `json:"zone_sectors"`

	// Vendor is the device vendor/product identification when the
	// transport reports one.
	Vendor string `json:"vendor,omitempty"`
}

// IsZoned reports whether the device carries zone state.
func (i DeviceInfo) IsZoned() bool {
	return i.Model.IsZoned()
}
