package types

import "fmt"

// ReportingOptions selects which zones a Report Zones enumeration returns.
// Only the low 6 bits are significant; the value is masked with
// ReportingOptionsMask before it reaches a backend.
type ReportingOptions uint8

// ReportingOptionsMask is the significant portion of a reporting option.
const ReportingOptionsMask ReportingOptions = 0x3f

const (
	// ReportAll returns every zone.
	ReportAll ReportingOptions = 0x00

	// ReportEmpty returns zones in the empty condition.
	ReportEmpty ReportingOptions = 0x01

	// ReportImplicitOpen returns implicitly open zones.
	ReportImplicitOpen ReportingOptions = 0x02

	// ReportExplicitOpen returns explicitly open zones.
	ReportExplicitOpen ReportingOptions = 0x03

	// ReportClosed returns closed zones.
	ReportClosed ReportingOptions = 0x04

	// ReportFull returns full zones.
	ReportFull ReportingOptions = 0x05

	// ReportReadOnly returns read-only zones.
	ReportReadOnly ReportingOptions = 0x06

	// ReportOffline returns offline zones.
	ReportOffline ReportingOptions = 0x07

	// ReportInactive returns inactive zones.
	ReportInactive ReportingOptions = 0x08

	// ReportResetRecommended returns zones flagged for reset.
	ReportResetRecommended ReportingOptions = 0x10

	// ReportNonSeq returns zones with non-sequential write resources
	// active (host-aware devices).
	ReportNonSeq ReportingOptions = 0x11

	// ReportNotWP returns conventional (no write pointer) zones.
	ReportNotWP ReportingOptions = 0x3f
)

// Mask reduces the option to its significant 6 bits.
func (ro ReportingOptions) Mask() ReportingOptions {
	return ro & ReportingOptionsMask
}

// Matches reports whether a zone belongs in an enumeration filtered by ro.
// The option is masked first, so callers may pass raw wire values.
func (ro ReportingOptions) Matches(z Zone) bool {
	switch ro.Mask() {
	case ReportAll:
		return true
	case ReportEmpty:
		return z.Condition == ZoneConditionEmpty
	case ReportImplicitOpen:
		return z.Condition == ZoneConditionImplicitOpen
	case ReportExplicitOpen:
		return z.Condition == ZoneConditionExplicitOpen
	case ReportClosed:
		return z.Condition == ZoneConditionClosed
	case ReportFull:
		return z.Condition == ZoneConditionFull
	case ReportReadOnly:
		return z.Condition == ZoneConditionReadOnly
	case ReportOffline:
		return z.Condition == ZoneConditionOffline
	case ReportInactive:
		return z.Condition == ZoneConditionInactive
	case ReportResetRecommended:
		return z.ResetRecommended
	case ReportNonSeq:
		return z.NonSeq
	case ReportNotWP:
		return z.Condition == ZoneConditionNotWP
	default:
		return false
	}
}

// ZoneOp is an explicit zone management operation.
type ZoneOp uint8

const (
	// ZoneOpOpen explicitly opens a zone.
	ZoneOpOpen ZoneOp = iota + 1

	// ZoneOpClose closes an open zone.
	ZoneOpClose

	// ZoneOpFinish moves a zone to the full condition.
	ZoneOpFinish

	// ZoneOpReset resets the write pointer, returning the zone to empty.
	ZoneOpReset
)

// String returns the operation name.
func (op ZoneOp) String() string {
	switch op {
	case ZoneOpOpen:
		return "open"
	case ZoneOpClose:
		return "close"
	case ZoneOpFinish:
		return "finish"
	case ZoneOpReset:
		return "reset-wp"
	default:
		return fmt.Sprintf("unknown-op(%d)", uint8(op))
	}
}

// Valid reports whether op is one of the four defined operations.
func (op ZoneOp) Valid() bool {
	return op >= ZoneOpOpen && op <= ZoneOpReset
}

// BackendKind identifies one of the four backend implementations, or
// automatic probing.
type BackendKind uint8

const (
	// BackendAuto probes backends in preference order at open time.
	BackendAuto BackendKind = iota

	// BackendBlock is the kernel zoned-block interface.
	BackendBlock

	// BackendATA drives a ZAC ATA device through a pass-through channel.
	BackendATA

	// BackendSCSI drives a ZBC SCSI device through a pass-through channel.
	BackendSCSI

	// BackendEmulated is the file-backed emulation used for testing. It is
	// never probed automatically; it must be selected explicitly.
	BackendEmulated
)

// String returns the backend name.
func (k BackendKind) String() string {
	switch k {
	case BackendAuto:
		return "auto"
	case BackendBlock:
		return "block"
	case BackendATA:
		return "ata"
	case BackendSCSI:
		return "scsi"
	case BackendEmulated:
		return "emulated"
	default:
		return fmt.Sprintf("unknown-backend(%d)", uint8(k))
	}
}

// ParseBackendKind parses a backend name as used in configuration files and
// command-line flags.
func ParseBackendKind(s string) (BackendKind, error) {
	switch s {
	case "", "auto":
		return BackendAuto, nil
	case "block":
		return BackendBlock, nil
	case "ata":
		return BackendATA, nil
	case "scsi":
		return BackendSCSI, nil
	case "emulated", "emu", "fake":
		return BackendEmulated, nil
	default:
		return 0, fmt.Errorf("unknown backend %q", s)
	}
}

// OpenFlag is the bitset of open-time options for a device handle.
type OpenFlag uint32

const (
	// OpenReadWrite opens the device for both reads and writes. Without it
	// the handle is read-only.
	OpenReadWrite OpenFlag = 1 << iota

	// OpenExclusive requests exclusive access to the device.
	OpenExclusive

	// OpenDirect bypasses the page cache for data I/O.
	OpenDirect

	// OpenTestMode relaxes alignment validation so deliberately malformed
	// requests reach the backend. Conformance testing only; never enable
	// this in production configurations.
	OpenTestMode
)

// Has reports whether all bits of f are set.
func (f OpenFlag) Has(bits OpenFlag) bool {
	return f&bits == bits
}
