package zone

import (
	zbcerr "github.com/vijayvenkateshjana/libzbc/pkg/errors"
	"github.com/vijayvenkateshjana/libzbc/pkg/types"
)

// ApplyOp applies an explicit zone operation to a zone in place, enforcing
// the legal transitions:
//
//	Empty -> {ImplicitOpen, ExplicitOpen} -> Closed <-> {Imp,Exp}Open -> Full
//	Full -> Empty only via reset; ReadOnly/Offline/Inactive absorb.
//
// Idempotent cases succeed as no-ops: reset of an empty zone, finish of a
// full zone, close of a closed zone. Conventional zones must be rejected by
// the caller before this point.
func ApplyOp(z *types.Zone, op types.ZoneOp) error {
	if z.IsConventional() {
		return zbcerr.NotZonedf("zone %d is conventional", z.Start)
	}
	if z.Condition.IsAbsorbing() {
		return zbcerr.Newf(zbcerr.CodeDeviceError,
			"zone %d is %s and accepts no zone operations", z.Start, z.Condition)
	}

	switch op {
	case types.ZoneOpOpen:
		switch z.Condition {
		case types.ZoneConditionEmpty, types.ZoneConditionClosed,
			types.ZoneConditionImplicitOpen, types.ZoneConditionExplicitOpen:
			// An explicit open of an implicitly open zone converts it
			// without moving the write pointer.
			z.Condition = types.ZoneConditionExplicitOpen
			return nil
		case types.ZoneConditionFull:
			return zbcerr.InvalidArgumentf("cannot open full zone %d", z.Start)
		}

	case types.ZoneOpClose:
		switch z.Condition {
		case types.ZoneConditionImplicitOpen, types.ZoneConditionExplicitOpen:
			if z.WritePointer == z.Start {
				// Closing an unwritten open zone returns it to empty.
				z.Condition = types.ZoneConditionEmpty
			} else {
				z.Condition = types.ZoneConditionClosed
			}
			return nil
		case types.ZoneConditionClosed:
			return nil
		case types.ZoneConditionEmpty, types.ZoneConditionFull:
			return zbcerr.InvalidArgumentf("cannot close %s zone %d", z.Condition, z.Start)
		}

	case types.ZoneOpFinish:
		switch z.Condition {
		case types.ZoneConditionEmpty, types.ZoneConditionClosed,
			types.ZoneConditionImplicitOpen, types.ZoneConditionExplicitOpen:
			z.Condition = types.ZoneConditionFull
			z.WritePointer = z.End()
			return nil
		case types.ZoneConditionFull:
			return nil
		}

	case types.ZoneOpReset:
		switch z.Condition {
		case types.ZoneConditionEmpty:
			return nil
		case types.ZoneConditionImplicitOpen, types.ZoneConditionExplicitOpen,
			types.ZoneConditionClosed, types.ZoneConditionFull:
			z.Condition = types.ZoneConditionEmpty
			z.WritePointer = z.Start
			z.ResetRecommended = false
			z.NonSeq = false
			return nil
		}
	}

	return zbcerr.InvalidArgumentf("zone op %s illegal in condition %s", op, z.Condition)
}

// AppliesToAll reports whether an all-zones operation acts on a zone in
// this condition. Each operation has its own applicability set; zones
// outside it are skipped rather than failed:
//
//	open   -> closed, implicitly open
//	close  -> implicitly or explicitly open
//	finish -> open or closed
//	reset  -> any zone holding data (not empty)
//
// Conventional zones and absorbing conditions are excluded by the caller.
func AppliesToAll(z types.Zone, op types.ZoneOp) bool {
	switch op {
	case types.ZoneOpOpen:
		return z.Condition == types.ZoneConditionClosed ||
			z.Condition == types.ZoneConditionImplicitOpen
	case types.ZoneOpClose:
		return z.Condition.IsOpen()
	case types.ZoneOpFinish:
		return z.Condition.IsOpen() || z.Condition == types.ZoneConditionClosed
	case types.ZoneOpReset:
		return z.Condition != types.ZoneConditionEmpty
	default:
		return false
	}
}

// AdvanceWrite applies a write of nSectors starting at sector to a
// sequential zone, driving the implicit transitions: a first write opens an
// empty or closed zone implicitly, and a write reaching the zone end makes
// it full. Sequential-write-required zones must be written exactly at the
// write pointer.
func AdvanceWrite(z *types.Zone, sector, nSectors uint64) error {
	if z.IsConventional() {
		// No sequential constraint, nothing to track.
		return nil
	}
	if z.Condition.IsAbsorbing() {
		return zbcerr.Newf(zbcerr.CodeDeviceError,
			"write to %s zone %d", z.Condition, z.Start)
	}
	if z.Condition == types.ZoneConditionFull {
		return zbcerr.InvalidArgumentf("write to full zone %d", z.Start)
	}
	if z.Type == types.ZoneTypeSequentialRequired && sector != z.WritePointer {
		return zbcerr.InvalidArgumentf(
			"unaligned write to zone %d: sector %d, write pointer %d", z.Start, sector, z.WritePointer)
	}
	if sector+nSectors > z.End() {
		return zbcerr.InvalidArgumentf(
			"write crosses zone %d boundary: sector %d + %d sectors", z.Start, sector, nSectors)
	}

	if z.Condition == types.ZoneConditionEmpty || z.Condition == types.ZoneConditionClosed {
		z.Condition = types.ZoneConditionImplicitOpen
	}
	if z.Type == types.ZoneTypeSequentialPreferred && sector != z.WritePointer {
		z.NonSeq = true
	}
	if end := sector + nSectors; end > z.WritePointer {
		z.WritePointer = end
	}
	if z.WritePointer == z.End() {
		z.Condition = types.ZoneConditionFull
	}
	return nil
}

// CheckConsistency validates the invariants tying a zone's condition to its
// write pointer. Conventional zones must report the fixed not-write-pointer
// condition. For sequential zones: empty iff the write pointer is at the
// zone start, full iff it is at the zone end, and within [start, end)
// otherwise.
// Absorbing conditions leave the write pointer undefined and are exempt.
func CheckConsistency(z types.Zone) error {
	if z.Length == 0 {
		return zbcerr.InvalidArgumentf("zone %d has zero length", z.Start)
	}
	if z.IsConventional() {
		if z.Condition != types.ZoneConditionNotWP {
			return zbcerr.InvalidArgumentf(
				"conventional zone %d reports progressing condition %s", z.Start, z.Condition)
		}
		return nil
	}
	if z.Condition == types.ZoneConditionNotWP {
		return zbcerr.InvalidArgumentf("sequential zone %d reports not-wp condition", z.Start)
	}
	if z.Condition.IsAbsorbing() {
		return nil
	}

	wp, start, end := z.WritePointer, z.Start, z.End()
	switch z.Condition {
	case types.ZoneConditionEmpty:
		if wp != start {
			return zbcerr.InvalidArgumentf(
				"empty zone %d has write pointer %d", start, wp)
		}
	case types.ZoneConditionFull:
		if wp != end {
			return zbcerr.InvalidArgumentf(
				"full zone %d has write pointer %d, want %d", start, wp, end)
		}
	default:
		// An opened zone may still be unwritten, so the start is legal.
		if wp < start || wp >= end {
			return zbcerr.InvalidArgumentf(
				"%s zone %d has write pointer %d outside [%d,%d)", z.Condition, start, wp, start, end)
		}
	}
	return nil
}
