package domain

import "testing"

func TestPositionDirection(t *testing.T) {
	tests := []struct {
		name  string
		pos   Position
		flat  bool
		long  bool
		short bool
	}{
		{"flat", Position{}, true, false, false},
		{"long", Position{NetSize: 2.5, EntryPrice: 100}, false, true, false},
		{"short", Position{NetSize: -1, EntryPrice: 100}, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pos.IsFlat(); got != tt.flat {
				t.Errorf("IsFlat() = %v, want %v", got, tt.flat)
			}
			if got := tt.pos.IsLong(); got != tt.long {
				t.Errorf("IsLong() = %v, want %v", got, tt.long)
			}
			if got := tt.pos.IsShort(); got != tt.short {
				t.Errorf("IsShort() = %v, want %v", got, tt.short)
			}
		})
	}
}

func TestPositionNotional(t *testing.T) {
	short := Position{NetSize: -3, EntryPrice: 90}

	if got := short.Notional(100); got != -300 {
		t.Errorf("Notional(100) = %g, want -300", got)
	}
	if got := short.AbsNotional(100); got != 300 {
		t.Errorf("AbsNotional(100) = %g, want 300", got)
	}

	var flat Position
	if got := flat.AbsNotional(100); got != 0 {
		t.Errorf("flat AbsNotional(100) = %g, want 0", got)
	}
}

func TestSideHelpers(t *testing.T) {
	if SideLong.Opposite() != SideShort || SideShort.Opposite() != SideLong {
		t.Error("Opposite() did not flip sides")
	}
	if SideLong.Sign() != 1 || SideShort.Sign() != -1 {
		t.Error("Sign() returned wrong values")
	}
}
