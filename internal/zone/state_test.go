package zone

import (
	"errors"
	"testing"

	zbcerr "github.com/vijayvenkateshjana/libzbc/pkg/errors"
	"github.com/vijayvenkateshjana/libzbc/pkg/types"
)

func seqZone(cond types.ZoneCondition, wp uint64) types.Zone {
	return types.Zone{
		Start:        1000,
		Length:       100,
		WritePointer: wp,
		Type:         types.ZoneTypeSequentialRequired,
		Condition:    cond,
	}
}

func TestApplyOpTransitions(t *testing.T) {
	tests := []struct {
		name     string
		zone     types.Zone
		op       types.ZoneOp
		wantCond types.ZoneCondition
		wantWP   uint64
		wantErr  zbcerr.Code
	}{
		{
			name:     "open empty",
			zone:     seqZone(types.ZoneConditionEmpty, 1000),
			op:       types.ZoneOpOpen,
			wantCond: types.ZoneConditionExplicitOpen,
			wantWP:   1000,
		},
		{
			name:     "open implicitly open converts",
			zone:     seqZone(types.ZoneConditionImplicitOpen, 1010),
			op:       types.ZoneOpOpen,
			wantCond: types.ZoneConditionExplicitOpen,
			wantWP:   1010,
		},
		{
			name:     "open closed",
			zone:     seqZone(types.ZoneConditionClosed, 1010),
			op:       types.ZoneOpOpen,
			wantCond: types.ZoneConditionExplicitOpen,
			wantWP:   1010,
		},
		{
			name:    "open full rejected",
			zone:    seqZone(types.ZoneConditionFull, 1100),
			op:      types.ZoneOpOpen,
			wantErr: zbcerr.CodeInvalidArgument,
		},
		{
			name:     "close written open zone",
			zone:     seqZone(types.ZoneConditionExplicitOpen, 1010),
			op:       types.ZoneOpClose,
			wantCond: types.ZoneConditionClosed,
			wantWP:   1010,
		},
		{
			name:     "close unwritten open zone returns to empty",
			zone:     seqZone(types.ZoneConditionExplicitOpen, 1000),
			op:       types.ZoneOpClose,
			wantCond: types.ZoneConditionEmpty,
			wantWP:   1000,
		},
		{
			name:     "close closed is a no-op",
			zone:     seqZone(types.ZoneConditionClosed, 1010),
			op:       types.ZoneOpClose,
			wantCond: types.ZoneConditionClosed,
			wantWP:   1010,
		},
		{
			name:    "close empty rejected",
			zone:    seqZone(types.ZoneConditionEmpty, 1000),
			op:      types.ZoneOpClose,
			wantErr: zbcerr.CodeInvalidArgument,
		},
		{
			name:    "close full rejected",
			zone:    seqZone(types.ZoneConditionFull, 1100),
			op:      types.ZoneOpClose,
			wantErr: zbcerr.CodeInvalidArgument,
		},
		{
			name:     "finish empty",
			zone:     seqZone(types.ZoneConditionEmpty, 1000),
			op:       types.ZoneOpFinish,
			wantCond: types.ZoneConditionFull,
			wantWP:   1100,
		},
		{
			name:     "finish open moves write pointer to end",
			zone:     seqZone(types.ZoneConditionImplicitOpen, 1010),
			op:       types.ZoneOpFinish,
			wantCond: types.ZoneConditionFull,
			wantWP:   1100,
		},
		{
			name:     "finish full is a no-op",
			zone:     seqZone(types.ZoneConditionFull, 1100),
			op:       types.ZoneOpFinish,
			wantCond: types.ZoneConditionFull,
			wantWP:   1100,
		},
		{
			name:     "reset full",
			zone:     seqZone(types.ZoneConditionFull, 1100),
			op:       types.ZoneOpReset,
			wantCond: types.ZoneConditionEmpty,
			wantWP:   1000,
		},
		{
			name:     "reset empty is a no-op",
			zone:     seqZone(types.ZoneConditionEmpty, 1000),
			op:       types.ZoneOpReset,
			wantCond: types.ZoneConditionEmpty,
			wantWP:   1000,
		},
		{
			name:    "offline absorbs everything",
			zone:    seqZone(types.ZoneConditionOffline, 1000),
			op:      types.ZoneOpReset,
			wantErr: zbcerr.CodeDeviceError,
		},
		{
			name:    "read-only absorbs everything",
			zone:    seqZone(types.ZoneConditionReadOnly, 1000),
			op:      types.ZoneOpFinish,
			wantErr: zbcerr.CodeDeviceError,
		},
		{
			name: "conventional rejected",
			zone: types.Zone{
				Start: 0, Length: 100,
				Type:      types.ZoneTypeConventional,
				Condition: types.ZoneConditionNotWP,
			},
			op:      types.ZoneOpReset,
			wantErr: zbcerr.CodeNotZoned,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z := tt.zone
			err := ApplyOp(&z, tt.op)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("ApplyOp succeeded, want %s", tt.wantErr)
				}
				if got := zbcerr.CodeOf(err); got != tt.wantErr {
					t.Fatalf("error class = %s, want %s", got, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyOp failed: %v", err)
			}
			if z.Condition != tt.wantCond {
				t.Errorf("condition = %s, want %s", z.Condition, tt.wantCond)
			}
			if z.WritePointer != tt.wantWP {
				t.Errorf("write pointer = %d, want %d", z.WritePointer, tt.wantWP)
			}
		})
	}
}

func TestApplyOpResetClearsFlags(t *testing.T) {
	z := seqZone(types.ZoneConditionFull, 1100)
	z.ResetRecommended = true
	z.NonSeq = true
	if err := ApplyOp(&z, types.ZoneOpReset); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if z.ResetRecommended || z.NonSeq {
		t.Errorf("reset left flags set: reset-recommended=%v non-seq=%v",
			z.ResetRecommended, z.NonSeq)
	}
}

func TestAppliesToAll(t *testing.T) {
	conds := []types.ZoneCondition{
		types.ZoneConditionEmpty,
		types.ZoneConditionImplicitOpen,
		types.ZoneConditionExplicitOpen,
		types.ZoneConditionClosed,
		types.ZoneConditionFull,
	}
	want := map[types.ZoneOp]map[types.ZoneCondition]bool{
		types.ZoneOpOpen: {
			types.ZoneConditionClosed:       true,
			types.ZoneConditionImplicitOpen: true,
		},
		types.ZoneOpClose: {
			types.ZoneConditionImplicitOpen: true,
			types.ZoneConditionExplicitOpen: true,
		},
		types.ZoneOpFinish: {
			types.ZoneConditionImplicitOpen: true,
			types.ZoneConditionExplicitOpen: true,
			types.ZoneConditionClosed:       true,
		},
		types.ZoneOpReset: {
			types.ZoneConditionImplicitOpen: true,
			types.ZoneConditionExplicitOpen: true,
			types.ZoneConditionClosed:       true,
			types.ZoneConditionFull:         true,
		},
	}

	for op, applicable := range want {
		for _, cond := range conds {
			z := seqZone(cond, 1010)
			if got := AppliesToAll(z, op); got != applicable[cond] {
				t.Errorf("AppliesToAll(%s, %s) = %v, want %v", cond, op, got, applicable[cond])
			}
		}
	}

	// Every applicable zone must also be a legal ApplyOp target, so the
	// all-zones loop never fails on a zone it selected.
	for op, applicable := range want {
		for _, cond := range conds {
			if !applicable[cond] {
				continue
			}
			z := seqZone(cond, 1010)
			if err := ApplyOp(&z, op); err != nil {
				t.Errorf("ApplyOp(%s, %s) on applicable zone failed: %v", cond, op, err)
			}
		}
	}
}

func TestAdvanceWrite(t *testing.T) {
	t.Run("first write opens implicitly", func(t *testing.T) {
		z := seqZone(types.ZoneConditionEmpty, 1000)
		if err := AdvanceWrite(&z, 1000, 10); err != nil {
			t.Fatalf("AdvanceWrite failed: %v", err)
		}
		if z.Condition != types.ZoneConditionImplicitOpen {
			t.Errorf("condition = %s, want implicit-open", z.Condition)
		}
		if z.WritePointer != 1010 {
			t.Errorf("write pointer = %d, want 1010", z.WritePointer)
		}
	})

	t.Run("write to explicitly open zone keeps condition", func(t *testing.T) {
		z := seqZone(types.ZoneConditionExplicitOpen, 1000)
		if err := AdvanceWrite(&z, 1000, 10); err != nil {
			t.Fatalf("AdvanceWrite failed: %v", err)
		}
		if z.Condition != types.ZoneConditionExplicitOpen {
			t.Errorf("condition = %s, want explicit-open", z.Condition)
		}
	})

	t.Run("write reaching end fills zone", func(t *testing.T) {
		z := seqZone(types.ZoneConditionImplicitOpen, 1090)
		if err := AdvanceWrite(&z, 1090, 10); err != nil {
			t.Fatalf("AdvanceWrite failed: %v", err)
		}
		if z.Condition != types.ZoneConditionFull {
			t.Errorf("condition = %s, want full", z.Condition)
		}
		if z.WritePointer != 1100 {
			t.Errorf("write pointer = %d, want 1100", z.WritePointer)
		}
	})

	t.Run("unaligned write to seq-required rejected", func(t *testing.T) {
		z := seqZone(types.ZoneConditionImplicitOpen, 1010)
		err := AdvanceWrite(&z, 1020, 10)
		if !errors.Is(err, zbcerr.ErrInvalidArgument) {
			t.Fatalf("expected invalid argument, got %v", err)
		}
	})

	t.Run("boundary crossing rejected", func(t *testing.T) {
		z := seqZone(types.ZoneConditionEmpty, 1000)
		err := AdvanceWrite(&z, 1000, 200)
		if !errors.Is(err, zbcerr.ErrInvalidArgument) {
			t.Fatalf("expected invalid argument, got %v", err)
		}
		if z.Condition != types.ZoneConditionEmpty {
			t.Errorf("rejected write changed condition to %s", z.Condition)
		}
	})

	t.Run("write to full rejected", func(t *testing.T) {
		z := seqZone(types.ZoneConditionFull, 1100)
		err := AdvanceWrite(&z, 1100, 1)
		if !errors.Is(err, zbcerr.ErrInvalidArgument) {
			t.Fatalf("expected invalid argument, got %v", err)
		}
	})

	t.Run("seq-preferred tolerates unaligned and flags non-seq", func(t *testing.T) {
		z := seqZone(types.ZoneConditionImplicitOpen, 1010)
		z.Type = types.ZoneTypeSequentialPreferred
		if err := AdvanceWrite(&z, 1020, 10); err != nil {
			t.Fatalf("AdvanceWrite failed: %v", err)
		}
		if !z.NonSeq {
			t.Error("non-seq flag not set")
		}
		if z.WritePointer != 1030 {
			t.Errorf("write pointer = %d, want 1030", z.WritePointer)
		}
	})

	t.Run("seq-preferred below write pointer keeps it", func(t *testing.T) {
		z := seqZone(types.ZoneConditionImplicitOpen, 1050)
		z.Type = types.ZoneTypeSequentialPreferred
		if err := AdvanceWrite(&z, 1000, 10); err != nil {
			t.Fatalf("AdvanceWrite failed: %v", err)
		}
		if z.WritePointer != 1050 {
			t.Errorf("write pointer = %d, want 1050", z.WritePointer)
		}
	})
}

func TestCheckConsistency(t *testing.T) {
	tests := []struct {
		name    string
		zone    types.Zone
		wantErr bool
	}{
		{"empty at start", seqZone(types.ZoneConditionEmpty, 1000), false},
		{"empty off start", seqZone(types.ZoneConditionEmpty, 1001), true},
		{"full at end", seqZone(types.ZoneConditionFull, 1100), false},
		{"full off end", seqZone(types.ZoneConditionFull, 1099), true},
		{"open inside", seqZone(types.ZoneConditionImplicitOpen, 1050), false},
		{"explicit open unwritten", seqZone(types.ZoneConditionExplicitOpen, 1000), false},
		{"open beyond end", seqZone(types.ZoneConditionClosed, 1100), true},
		{"open below start", seqZone(types.ZoneConditionImplicitOpen, 999), true},
		{"offline exempt", seqZone(types.ZoneConditionOffline, 0), false},
		{"read-only exempt", seqZone(types.ZoneConditionReadOnly, 0), false},
		{
			"conventional not-wp",
			types.Zone{Start: 0, Length: 10, Type: types.ZoneTypeConventional,
				Condition: types.ZoneConditionNotWP},
			false,
		},
		{
			"conventional with progressing condition",
			types.Zone{Start: 0, Length: 10, Type: types.ZoneTypeConventional,
				Condition: types.ZoneConditionEmpty},
			true,
		},
		{
			"sequential claiming not-wp",
			seqZone(types.ZoneConditionNotWP, 1000),
			true,
		},
		{
			"zero length",
			types.Zone{Start: 0, Length: 0, Type: types.ZoneTypeSequentialRequired,
				Condition: types.ZoneConditionEmpty},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckConsistency(tt.zone)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckConsistency() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
